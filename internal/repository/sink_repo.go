package repository

import (
	"context"

	"github.com/user/stealth-crawler/internal/entity"
)

// ResultSink receives the output of a crawl run.
type ResultSink interface {
	// Begin starts a run for startURL, discarding previous output for the same target.
	Begin(ctx context.Context, startURL string) error
	// WriteMatches records the extraction result of one page.
	WriteMatches(ctx context.Context, url string, mode entity.Mode, matches entity.ExtractionResult) error
	// WriteHTML records the full markup of one page.
	WriteHTML(ctx context.Context, url, rawHTML string) error
	// WriteFailures records the failures collected during the run.
	WriteFailures(ctx context.Context, failures []entity.FailedURL) error
	// Location describes where the output went, for operator messages.
	Location() string
}
