package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/stealth-crawler/internal/adapter/memory"
	"github.com/user/stealth-crawler/internal/entity"
	"github.com/user/stealth-crawler/internal/repository"
	"github.com/user/stealth-crawler/pkg/jitter"
	"github.com/user/stealth-crawler/pkg/metrics"
)

type fakePage struct {
	html  string
	links []string
	err   error
}

type fakeBrowser struct {
	site      map[string]fakePage
	initErr   error
	inits     int
	closes    int
	navigated []string
	current   string
	// onNavigate runs before a page is served.
	onNavigate func(url string)
}

func (b *fakeBrowser) Init(context.Context) error {
	b.inits++
	return b.initErr
}

func (b *fakeBrowser) Navigate(_ context.Context, url string) (*entity.PageContent, error) {
	b.navigated = append(b.navigated, url)
	b.current = url
	if b.onNavigate != nil {
		b.onNavigate(url)
	}
	p, ok := b.site[url]
	if !ok {
		return nil, fmt.Errorf("%w: net::ERR_NAME_NOT_RESOLVED", repository.ErrNavigationFailed)
	}
	if p.err != nil {
		return nil, p.err
	}
	return &entity.PageContent{RawHTML: p.html, SourceURL: url}, nil
}

func (b *fakeBrowser) PageLinks(context.Context) []string {
	return append([]string(nil), b.site[b.current].links...)
}

func (b *fakeBrowser) Close() error {
	b.closes++
	return nil
}

type fakeSink struct {
	begun    []string
	matches  map[string]entity.ExtractionResult
	html     []string
	failures []entity.FailedURL
	flushes  int
}

func newFakeSink() *fakeSink {
	return &fakeSink{matches: map[string]entity.ExtractionResult{}}
}

func (s *fakeSink) Begin(_ context.Context, u string) error {
	s.begun = append(s.begun, u)
	return nil
}

func (s *fakeSink) WriteMatches(_ context.Context, u string, _ entity.Mode, m entity.ExtractionResult) error {
	s.matches[u] = m
	return nil
}

func (s *fakeSink) WriteHTML(_ context.Context, u, _ string) error {
	s.html = append(s.html, u)
	return nil
}

func (s *fakeSink) WriteFailures(_ context.Context, f []entity.FailedURL) error {
	s.flushes++
	s.failures = append(s.failures, f...)
	return nil
}

func (s *fakeSink) Location() string { return "fake" }

type fixedChecker map[string]bool

func (c fixedChecker) ChallengePresent(_ context.Context, p *entity.PageContent) bool {
	return c[p.SourceURL]
}

func page(body string, links ...string) fakePage {
	return fakePage{html: "<html><body>" + body + strings.Repeat(" ", 100) + "</body></html>", links: links}
}

type harness struct {
	browser *fakeBrowser
	sink    *fakeSink
	sleeps  *jitter.Recorder
	crawler Crawler
}

func newHarness(site map[string]fakePage, opts Options) *harness {
	h := &harness{
		browser: &fakeBrowser{site: site},
		sink:    newFakeSink(),
		sleeps:  &jitter.Recorder{},
	}
	opts.Rand = jitter.NewSeeded(1)
	opts.Sleep = h.sleeps.Sleep
	h.crawler = NewCrawlerUseCase(h.browser, memory.NewVisitedRepo(), h.sink, opts)
	return h
}

func TestRun_CycleVisitedOnce(t *testing.T) {
	site := map[string]fakePage{
		"https://a.test/":  page("a", "https://a.test/b", "https://a.test/#top"),
		"https://a.test/b": page("b", "https://a.test/", "https://a.test/b"),
	}
	h := newHarness(site, Options{})

	sum, err := h.crawler.Run(context.Background(), "https://a.test/", entity.ModeEmail, 2)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"https://a.test/", "https://a.test/b"}, h.browser.navigated)
	assert.Equal(t, 2, sum.Visited)
	assert.Equal(t, 2, sum.Fetched)
	assert.Equal(t, 1, h.browser.inits)
	assert.GreaterOrEqual(t, h.browser.closes, 1)
}

func TestRun_DepthZeroFetchesOnce(t *testing.T) {
	site := map[string]fakePage{
		"https://a.test/": page("a", "https://a.test/1", "https://a.test/2"),
	}
	h := newHarness(site, Options{})

	_, err := h.crawler.Run(context.Background(), "https://a.test/", entity.ModeEmail, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.test/"}, h.browser.navigated)
	assert.Empty(t, h.sleeps.Calls)
}

func TestRun_NeverBeyondMaxDepth(t *testing.T) {
	site := map[string]fakePage{
		"https://a.test/0": page("", "https://a.test/1"),
		"https://a.test/1": page("", "https://a.test/2"),
		"https://a.test/2": page("", "https://a.test/3"),
		"https://a.test/3": page("", "https://a.test/4"),
	}
	h := newHarness(site, Options{})

	_, err := h.crawler.Run(context.Background(), "https://a.test/0", entity.ModePDF, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.test/0", "https://a.test/1", "https://a.test/2"}, h.browser.navigated)
}

func TestRun_DepthIsClamped(t *testing.T) {
	site := map[string]fakePage{
		"https://a.test/0": page("", "https://a.test/1"),
		"https://a.test/1": page("", "https://a.test/2"),
		"https://a.test/2": page("", "https://a.test/3"),
		"https://a.test/3": page(""),
	}
	h := newHarness(site, Options{})

	_, err := h.crawler.Run(context.Background(), "https://a.test/0", entity.ModeJPG, 9)
	require.NoError(t, err)
	assert.Len(t, h.browser.navigated, 3)
	assert.Equal(t, 2, h.crawler.Progress().MaxDepth)
}

func TestRun_FanOutCapped(t *testing.T) {
	var links []string
	site := map[string]fakePage{}
	for i := 0; i < 25; i++ {
		u := fmt.Sprintf("https://a.test/p%d", i)
		links = append(links, u)
		site[u] = page("")
	}
	site["https://a.test/"] = page("", links...)
	h := newHarness(site, Options{})

	_, err := h.crawler.Run(context.Background(), "https://a.test/", entity.ModeEmail, 1)
	require.NoError(t, err)
	assert.Len(t, h.browser.navigated, 11)
	require.Len(t, h.sleeps.Calls, 10)
	for _, d := range h.sleeps.Calls {
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.Less(t, d, 3*time.Second)
	}
}

func TestRun_MaxLinksOption(t *testing.T) {
	site := map[string]fakePage{
		"https://a.test/":  page("", "https://a.test/1", "https://a.test/2", "https://a.test/3"),
		"https://a.test/1": page(""),
		"https://a.test/2": page(""),
		"https://a.test/3": page(""),
	}
	h := newHarness(site, Options{MaxLinks: 2})

	_, err := h.crawler.Run(context.Background(), "https://a.test/", entity.ModeEmail, 1)
	require.NoError(t, err)
	assert.Len(t, h.browser.navigated, 3)
}

func TestRun_MaxLinksCannotRaiseFanOut(t *testing.T) {
	var links []string
	site := map[string]fakePage{}
	for i := 0; i < 25; i++ {
		u := fmt.Sprintf("https://a.test/p%d", i)
		links = append(links, u)
		site[u] = page("")
	}
	site["https://a.test/"] = page("", links...)
	h := newHarness(site, Options{MaxLinks: 25})

	_, err := h.crawler.Run(context.Background(), "https://a.test/", entity.ModeEmail, 1)
	require.NoError(t, err)
	assert.Len(t, h.browser.navigated, 1+10)
}

func TestRun_HTMLModeNeverRecurses(t *testing.T) {
	site := map[string]fakePage{
		"https://a.test/":  page("contact a@b.com", "https://a.test/1"),
		"https://a.test/1": page(""),
	}
	h := newHarness(site, Options{})

	_, err := h.crawler.Run(context.Background(), "https://a.test/", entity.ModeHTML, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.test/"}, h.browser.navigated)
	assert.Equal(t, []string{"https://a.test/"}, h.sink.html)
	assert.Empty(t, h.sink.matches)
}

func TestRun_AllModeWritesMatchesAndHTML(t *testing.T) {
	site := map[string]fakePage{
		"https://a.test/": page(`Contact a@b.com <img src="https://x.test/i.jpg"> <a href="https://x.test/d.pdf">`, "https://a.test/1"),
	}
	h := newHarness(site, Options{})

	_, err := h.crawler.Run(context.Background(), "https://a.test/", entity.ModeAll, 2)
	require.NoError(t, err)
	assert.ElementsMatch(t, entity.ExtractionResult{"a@b.com", "https://x.test/i.jpg", "https://x.test/d.pdf"}, h.sink.matches["https://a.test/"])
	assert.Equal(t, []string{"https://a.test/"}, h.sink.html)
	assert.Len(t, h.browser.navigated, 1)
}

func TestRun_FailedBranchAbandoned(t *testing.T) {
	site := map[string]fakePage{
		"https://a.test/":    page("", "https://a.test/bad", "https://a.test/short"),
		"https://a.test/bad": {err: fmt.Errorf("%w after 30s", repository.ErrCrawlTimeout), links: []string{"https://a.test/never"}},
		"https://a.test/short": {
			err: fmt.Errorf("%w: 12 characters", repository.ErrContentTooShort),
		},
	}
	h := newHarness(site, Options{RecordFailures: true})

	sum, err := h.crawler.Run(context.Background(), "https://a.test/", entity.ModeEmail, 2)
	require.NoError(t, err)
	assert.NotContains(t, h.browser.navigated, "https://a.test/never")
	assert.Len(t, sum.Failures, 2)
	assert.Equal(t, 1, h.sink.flushes)
	assert.Equal(t, 3, sum.Visited)
	assert.Equal(t, 1, sum.Fetched)
}

func TestRun_FailuresNotRecordedByDefault(t *testing.T) {
	site := map[string]fakePage{
		"https://a.test/": page("", "https://a.test/missing"),
	}
	h := newHarness(site, Options{})

	sum, err := h.crawler.Run(context.Background(), "https://a.test/", entity.ModeEmail, 1)
	require.NoError(t, err)
	assert.Empty(t, sum.Failures)
	assert.Zero(t, h.sink.flushes)
	assert.Equal(t, 1, h.crawler.Progress().Failed)
}

func TestRun_InvalidInputTouchesNothing(t *testing.T) {
	h := newHarness(map[string]fakePage{}, Options{})

	_, err := h.crawler.Run(context.Background(), "https://a.test/", entity.Mode("png"), 1)
	assert.ErrorIs(t, err, entity.ErrUnknownMode)

	_, err = h.crawler.Run(context.Background(), "a.test/no-scheme", entity.ModeEmail, 1)
	assert.ErrorIs(t, err, repository.ErrInvalidStartURL)

	assert.Zero(t, h.browser.inits)
	assert.Empty(t, h.sink.begun)
}

func TestRun_InitFailure(t *testing.T) {
	h := newHarness(map[string]fakePage{}, Options{})
	h.browser.initErr = errors.New("chrome not found")

	_, err := h.crawler.Run(context.Background(), "https://a.test/", entity.ModeEmail, 1)
	assert.Error(t, err)
	assert.Empty(t, h.sink.begun)
	assert.Equal(t, 1, h.browser.closes)
	assert.Equal(t, StatusFailed, h.crawler.Progress().Status)
}

func TestRun_ChallengeHook(t *testing.T) {
	site := map[string]fakePage{
		"https://a.test/":      page("a@b.com", "https://a.test/wall"),
		"https://a.test/wall":  page("c@d.com", "https://a.test/after"),
		"https://a.test/after": page(""),
	}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	h := newHarness(site, Options{
		Challenge:      fixedChecker{"https://a.test/wall": true},
		RecordFailures: true,
		Metrics:        m,
	})

	sum, err := h.crawler.Run(context.Background(), "https://a.test/", entity.ModeEmail, 2)
	require.NoError(t, err)
	assert.NotContains(t, h.browser.navigated, "https://a.test/after")
	assert.NotContains(t, h.sink.matches, "https://a.test/wall")
	assert.Equal(t, []entity.FailedURL{{URL: "https://a.test/wall", Reason: "challenge detected"}}, sum.Failures)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChallengesTotal))
	assert.Equal(t, 1, h.crawler.Progress().Challenges)
}

func TestRun_Metrics(t *testing.T) {
	site := map[string]fakePage{
		"https://a.test/":  page("a@b.com x@y.org", "https://a.test/1"),
		"https://a.test/1": {err: fmt.Errorf("%w after 30s", repository.ErrCrawlTimeout)},
	}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	h := newHarness(site, Options{Metrics: m})

	_, err := h.crawler.Run(context.Background(), "https://a.test/", entity.ModeEmail, 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PagesTotal.WithLabelValues("success", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PagesTotal.WithLabelValues("failure", "timeout")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MatchesTotal.WithLabelValues("email")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.VisitedURLs))
}

func TestRun_AllModeMetricsByFamily(t *testing.T) {
	site := map[string]fakePage{
		"https://a.test/": page(`a@b.com c@d.org <img src="https://x.test/i.jpg"> <a href="https://x.test/d.pdf">`),
	}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	h := newHarness(site, Options{Metrics: m})

	_, err := h.crawler.Run(context.Background(), "https://a.test/", entity.ModeAll, 0)
	require.NoError(t, err)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MatchesTotal.WithLabelValues("email")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MatchesTotal.WithLabelValues("jpg")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MatchesTotal.WithLabelValues("pdf")))
	assert.Zero(t, testutil.ToFloat64(m.MatchesTotal.WithLabelValues("all")))
}

func TestRun_CancelledContext(t *testing.T) {
	site := map[string]fakePage{
		"https://a.test/":  page("", "https://a.test/1"),
		"https://a.test/1": page(""),
	}
	h := newHarness(site, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	h.crawler = NewCrawlerUseCase(h.browser, memory.NewVisitedRepo(), h.sink, Options{
		Rand: jitter.NewSeeded(1),
		Sleep: func(context.Context, time.Duration) error {
			cancel()
			return context.Canceled
		},
	})

	sum, err := h.crawler.Run(ctx, "https://a.test/", entity.ModeEmail, 1)
	require.NoError(t, err)
	assert.True(t, sum.Interrupted)
	assert.Equal(t, []string{"https://a.test/"}, h.browser.navigated)
	assert.Equal(t, StatusInterrupted, h.crawler.Progress().Status)
	assert.GreaterOrEqual(t, h.browser.closes, 1)
}

func TestRun_InterruptedNavigationIsNotAFailure(t *testing.T) {
	site := map[string]fakePage{
		"https://a.test/":     page("", "https://a.test/slow"),
		"https://a.test/slow": page(""),
	}
	h := newHarness(site, Options{RecordFailures: true})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.browser.onNavigate = func(url string) {
		if url == "https://a.test/slow" {
			cancel()
			h.browser.site[url] = fakePage{err: fmt.Errorf("%w: %w", repository.ErrNavigationFailed, context.Canceled)}
		}
	}

	sum, err := h.crawler.Run(ctx, "https://a.test/", entity.ModeEmail, 1)
	require.NoError(t, err)
	assert.True(t, sum.Interrupted)
	assert.Empty(t, sum.Failures)
	assert.Zero(t, h.sink.flushes)
	assert.Zero(t, h.crawler.Progress().Failed)
}

func TestRun_SummaryAndProgress(t *testing.T) {
	h := newHarness(map[string]fakePage{"https://a.test/": page("")}, Options{})
	assert.Equal(t, StatusIdle, h.crawler.Progress().Status)

	sum, err := h.crawler.Run(context.Background(), "https://a.test/", entity.ModeEmail, 0)
	require.NoError(t, err)
	assert.Equal(t, "fake", sum.Output)

	p := h.crawler.Progress()
	assert.Equal(t, StatusCompleted, p.Status)
	assert.Equal(t, "https://a.test/", p.StartURL)
	assert.Equal(t, 1, p.Fetched)
	assert.NotNil(t, p.FinishedAt)
	assert.Equal(t, []string{"https://a.test/"}, h.sink.begun)
}
