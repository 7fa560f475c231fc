package entity

import (
	"net/url"
	"strings"
)

// CrawlState is the per-run bookkeeping of a crawl. It is never persisted
// across runs.
type CrawlState struct {
	Mode     Mode
	MaxDepth int
	Failures []FailedURL
}

// NormalizeURL returns the key under which raw is tracked in the visited set:
// scheme and host are lower-cased and the fragment is dropped. Input that
// does not parse is returned unchanged.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}
