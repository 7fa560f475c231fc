package tee

import (
	"context"
	"strings"

	"github.com/user/stealth-crawler/internal/entity"
	"github.com/user/stealth-crawler/internal/repository"
)

// SinkImpl fans every write out to all of its sinks. Each sink is called
// even when an earlier one fails; the first error is returned.
type SinkImpl struct {
	sinks []repository.ResultSink
}

// NewSink combines sinks in order. The first sink's location is reported first.
func NewSink(sinks ...repository.ResultSink) *SinkImpl {
	return &SinkImpl{sinks: sinks}
}

func (t *SinkImpl) Begin(ctx context.Context, startURL string) error {
	return t.each(func(s repository.ResultSink) error { return s.Begin(ctx, startURL) })
}

func (t *SinkImpl) WriteMatches(ctx context.Context, url string, mode entity.Mode, matches entity.ExtractionResult) error {
	return t.each(func(s repository.ResultSink) error { return s.WriteMatches(ctx, url, mode, matches) })
}

func (t *SinkImpl) WriteHTML(ctx context.Context, url, rawHTML string) error {
	return t.each(func(s repository.ResultSink) error { return s.WriteHTML(ctx, url, rawHTML) })
}

func (t *SinkImpl) WriteFailures(ctx context.Context, failures []entity.FailedURL) error {
	return t.each(func(s repository.ResultSink) error { return s.WriteFailures(ctx, failures) })
}

func (t *SinkImpl) Location() string {
	locs := make([]string, 0, len(t.sinks))
	for _, s := range t.sinks {
		if loc := s.Location(); loc != "" {
			locs = append(locs, loc)
		}
	}
	return strings.Join(locs, ", ")
}

func (t *SinkImpl) each(fn func(repository.ResultSink) error) error {
	var first error
	for _, s := range t.sinks {
		if err := fn(s); err != nil && first == nil {
			first = err
		}
	}
	return first
}
