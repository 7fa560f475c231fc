package extractor

import (
	"regexp"

	"github.com/user/stealth-crawler/internal/entity"
)

// These patterns are part of the output format and must not change.
var patterns = map[entity.Mode]*regexp.Regexp{
	entity.ModeEmail: regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
	entity.ModeJPG:   regexp.MustCompile(`https?://[^"' >]+\.jpg\b`),
	entity.ModePDF:   regexp.MustCompile(`https?://[^"' >]+\.pdf\b`),
}

// Extract returns every match of the mode's pattern families in raw,
// deduplicated in first-seen order. ModeHTML extracts nothing.
func Extract(raw string, mode entity.Mode) entity.ExtractionResult {
	var out entity.ExtractionResult
	seen := make(map[string]struct{})
	for _, family := range mode.Families() {
		for _, m := range patterns[family].FindAllString(raw, -1) {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out
}

// families is the order in which Family tries the patterns.
var families = []entity.Mode{entity.ModeEmail, entity.ModeJPG, entity.ModePDF}

// Family reports which pattern family produced match. The families are
// disjoint: jpg and pdf matches carry a scheme, which no email can.
func Family(match string) (entity.Mode, bool) {
	for _, f := range families {
		if patterns[f].FindString(match) == match {
			return f, true
		}
	}
	return "", false
}

// Group splits matches by family, keeping their order within each family.
func Group(matches entity.ExtractionResult) map[entity.Mode]entity.ExtractionResult {
	groups := make(map[entity.Mode]entity.ExtractionResult)
	for _, m := range matches {
		if f, ok := Family(m); ok {
			groups[f] = append(groups[f], m)
		}
	}
	return groups
}
