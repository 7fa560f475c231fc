package repository

import (
	"context"

	"github.com/user/stealth-crawler/internal/entity"
)

// BrowserRepository is a single disguised browser tab driven serially.
type BrowserRepository interface {
	// Init launches the browser and prepares the page. It is called once per run.
	Init(ctx context.Context) error
	// Navigate loads url and returns the rendered document. Every failure is
	// reported as an error; the caller abandons the branch.
	Navigate(ctx context.Context, url string) (*entity.PageContent, error)
	// PageLinks returns the absolute http(s) links of the current page.
	// Faults yield an empty slice.
	PageLinks(ctx context.Context) []string
	// Close releases the browser. It is safe to call more than once and
	// without a successful Init.
	Close() error
}

// ChallengeChecker decides whether a fetched page is a challenge screen.
type ChallengeChecker interface {
	ChallengePresent(ctx context.Context, page *entity.PageContent) bool
}
