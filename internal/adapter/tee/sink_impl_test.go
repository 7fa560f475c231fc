package tee

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/user/stealth-crawler/internal/entity"
)

type recordingSink struct {
	loc   string
	err   error
	calls []string
}

func (r *recordingSink) Begin(_ context.Context, u string) error {
	r.calls = append(r.calls, "begin "+u)
	return r.err
}

func (r *recordingSink) WriteMatches(_ context.Context, u string, _ entity.Mode, _ entity.ExtractionResult) error {
	r.calls = append(r.calls, "matches "+u)
	return r.err
}

func (r *recordingSink) WriteHTML(_ context.Context, u, _ string) error {
	r.calls = append(r.calls, "html "+u)
	return r.err
}

func (r *recordingSink) WriteFailures(context.Context, []entity.FailedURL) error {
	r.calls = append(r.calls, "failures")
	return r.err
}

func (r *recordingSink) Location() string { return r.loc }

func TestSink_CallsEverySink(t *testing.T) {
	errFirst := errors.New("disk full")
	a := &recordingSink{loc: "a.txt", err: errFirst}
	b := &recordingSink{loc: "postgres", err: errors.New("conn refused")}
	s := NewSink(a, b)
	ctx := context.Background()

	assert.ErrorIs(t, s.Begin(ctx, "https://example.com"), errFirst)
	assert.ErrorIs(t, s.WriteMatches(ctx, "u", entity.ModeEmail, nil), errFirst)
	assert.ErrorIs(t, s.WriteHTML(ctx, "u", "<html>"), errFirst)
	assert.ErrorIs(t, s.WriteFailures(ctx, nil), errFirst)

	want := []string{"begin https://example.com", "matches u", "html u", "failures"}
	assert.Equal(t, want, a.calls)
	assert.Equal(t, want, b.calls)
}

func TestSink_Location(t *testing.T) {
	s := NewSink(&recordingSink{loc: "out.txt"}, &recordingSink{}, &recordingSink{loc: "postgres run 3"})
	assert.Equal(t, "out.txt, postgres run 3", s.Location())
	assert.NoError(t, NewSink().Begin(context.Background(), "x"))
}
