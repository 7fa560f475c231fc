package repository

import "context"

// VisitedRepository is the deduplication set of one crawl run.
type VisitedRepository interface {
	// MarkVisited adds url and reports whether it was absent before.
	MarkVisited(ctx context.Context, url string) (bool, error)
	// Count returns the number of URLs marked so far.
	Count(ctx context.Context) (int, error)
	// Reset discards the set at the end of a run.
	Reset(ctx context.Context) error
}
