package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/user/stealth-crawler/internal/entity"
	"github.com/user/stealth-crawler/internal/extractor"
	"github.com/user/stealth-crawler/internal/repository"
	"github.com/user/stealth-crawler/pkg/jitter"
	"github.com/user/stealth-crawler/pkg/metrics"
	"github.com/user/stealth-crawler/pkg/utils"
)

const (
	defaultMaxLinks = 10
	linkDelayMin    = 2 * time.Second
	linkDelayMax    = 3 * time.Second

	reasonChallenge = "challenge detected"
)

// Options tunes a Crawler. Zero values select the defaults.
type Options struct {
	Rand  jitter.Source
	Sleep jitter.Sleeper
	// MaxLinks lowers how many links of one page are followed. It can never
	// exceed 10.
	MaxLinks int
	// Challenge, when set, is consulted after every successful navigation.
	Challenge repository.ChallengeChecker
	// RecordFailures collects failed URLs and writes them at the end of the run.
	RecordFailures bool
	Metrics        *metrics.Metrics
}

// Summary describes a finished run.
type Summary struct {
	Visited     int
	Fetched     int
	Failures    []entity.FailedURL
	Output      string
	Interrupted bool
}

// Crawler drives one browser session through a bounded, depth-first crawl.
type Crawler interface {
	Run(ctx context.Context, startURL string, mode entity.Mode, maxDepth int) (*Summary, error)
	Progress() Progress
}

type crawlerUseCase struct {
	browser repository.BrowserRepository
	visited repository.VisitedRepository
	sink    repository.ResultSink
	opts    Options
	tracker *tracker
}

// NewCrawlerUseCase creates a Crawler. The visited set must be empty; it is
// reset when the run ends.
func NewCrawlerUseCase(
	browser repository.BrowserRepository,
	visited repository.VisitedRepository,
	sink repository.ResultSink,
	opts Options,
) Crawler {
	if opts.Rand == nil {
		opts.Rand = jitter.New()
	}
	if opts.Sleep == nil {
		opts.Sleep = jitter.Sleep
	}
	if opts.MaxLinks <= 0 || opts.MaxLinks > defaultMaxLinks {
		opts.MaxLinks = defaultMaxLinks
	}
	return &crawlerUseCase{
		browser: browser,
		visited: visited,
		sink:    sink,
		opts:    opts,
		tracker: newTracker(),
	}
}

func (uc *crawlerUseCase) Progress() Progress {
	return uc.tracker.snapshot()
}

// Run validates its input before touching the browser or the sink, then
// crawls from startURL. Page-level faults never fail the run.
func (uc *crawlerUseCase) Run(ctx context.Context, startURL string, mode entity.Mode, maxDepth int) (*Summary, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", entity.ErrUnknownMode, mode)
	}
	if !utils.IsAbsoluteHTTP(startURL) {
		return nil, fmt.Errorf("%w: %q", repository.ErrInvalidStartURL, startURL)
	}
	state := &entity.CrawlState{Mode: mode, MaxDepth: entity.ClampDepth(maxDepth)}

	uc.tracker.start(startURL, mode, state.MaxDepth)
	slog.Info("Starting crawl", "url", startURL, "mode", mode, "depth", state.MaxDepth)

	if err := uc.browser.Init(ctx); err != nil {
		uc.closeBrowser()
		uc.tracker.finish(StatusFailed, "")
		return nil, fmt.Errorf("failed to initialize browser: %w", err)
	}
	defer uc.closeBrowser()

	if err := uc.sink.Begin(ctx, startURL); err != nil {
		uc.tracker.finish(StatusFailed, "")
		return nil, fmt.Errorf("failed to open output: %w", err)
	}
	defer func() {
		if err := uc.visited.Reset(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("Failed to reset visited set", "error", err)
		}
	}()

	summary := &Summary{}
	uc.traverse(ctx, state, summary, startURL, 0)
	uc.closeBrowser()

	summary.Failures = state.Failures
	summary.Interrupted = ctx.Err() != nil
	if len(state.Failures) > 0 {
		// Flush even after cancellation so an interrupted run keeps its record.
		if err := uc.sink.WriteFailures(context.WithoutCancel(ctx), state.Failures); err != nil {
			slog.Error("Failed to write failed URLs", "error", err)
		}
	}
	summary.Output = uc.sink.Location()

	status := StatusCompleted
	if summary.Interrupted {
		status = StatusInterrupted
		slog.Warn("Crawl interrupted", "visited", summary.Visited)
	}
	uc.tracker.finish(status, summary.Output)
	slog.Info("Crawl finished",
		"visited", summary.Visited,
		"fetched", summary.Fetched,
		"failed", len(summary.Failures),
		"output", summary.Output,
	)
	return summary, nil
}

func (uc *crawlerUseCase) traverse(ctx context.Context, state *entity.CrawlState, summary *Summary, pageURL string, depth int) {
	if ctx.Err() != nil || depth > state.MaxDepth {
		return
	}

	added, err := uc.visited.MarkVisited(ctx, entity.NormalizeURL(pageURL))
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("Visited set unavailable, skipping URL", "url", pageURL, "error", err)
		uc.recordFailure(state, pageURL, err)
		return
	}
	if !added {
		return
	}
	summary.Visited++
	uc.opts.Metrics.SetVisited(summary.Visited)
	uc.tracker.update(func(p *Progress) {
		p.CurrentURL = pageURL
		p.Visited = summary.Visited
	})

	slog.Info("Crawling", "url", pageURL, "depth", depth)
	startTime := time.Now()
	page, err := uc.browser.Navigate(ctx, pageURL)
	uc.opts.Metrics.ObserveFetch(domainOf(pageURL), time.Since(startTime).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			// Interrupted, not failed.
			return
		}
		uc.opts.Metrics.ObservePage("failure", errorType(err))
		uc.recordFailure(state, pageURL, err)
		return
	}
	summary.Fetched++
	uc.tracker.update(func(p *Progress) { p.Fetched = summary.Fetched })

	if uc.opts.Challenge != nil && uc.opts.Challenge.ChallengePresent(ctx, page) {
		slog.Warn("Challenge page detected, abandoning branch", "url", pageURL)
		uc.opts.Metrics.IncChallenges()
		uc.opts.Metrics.ObservePage("challenge", "")
		uc.tracker.update(func(p *Progress) { p.Challenges++ })
		uc.recordFailure(state, pageURL, errors.New(reasonChallenge))
		return
	}
	uc.opts.Metrics.ObservePage("success", "")

	matches := extractor.Extract(page.RawHTML, state.Mode)
	if len(matches) > 0 {
		slog.Info("Found matches", "url", pageURL, "count", len(matches))
		if err := uc.sink.WriteMatches(ctx, pageURL, state.Mode, matches); err != nil {
			slog.Error("Failed to write matches", "url", pageURL, "error", err)
		}
		for family, group := range extractor.Group(matches) {
			uc.opts.Metrics.AddMatches(family.String(), len(group))
		}
	}

	if state.Mode.CapturesHTML() {
		if err := uc.sink.WriteHTML(ctx, pageURL, page.RawHTML); err != nil {
			slog.Error("Failed to write page HTML", "url", pageURL, "error", err)
		}
		return
	}

	if depth >= state.MaxDepth {
		return
	}

	links := uc.browser.PageLinks(ctx)
	uc.opts.Rand.Shuffle(len(links), func(i, j int) { links[i], links[j] = links[j], links[i] })
	if len(links) > uc.opts.MaxLinks {
		links = links[:uc.opts.MaxLinks]
	}

	for _, link := range links {
		if err := uc.opts.Sleep(ctx, jitter.Between(uc.opts.Rand, linkDelayMin, linkDelayMax)); err != nil {
			return
		}
		uc.traverse(ctx, state, summary, link, depth+1)
	}
}

func (uc *crawlerUseCase) recordFailure(state *entity.CrawlState, pageURL string, err error) {
	uc.tracker.update(func(p *Progress) { p.Failed++ })
	if !uc.opts.RecordFailures {
		return
	}
	state.Failures = append(state.Failures, entity.FailedURL{URL: pageURL, Reason: err.Error()})
}

func (uc *crawlerUseCase) closeBrowser() {
	if err := uc.browser.Close(); err != nil {
		slog.Warn("Failed to close browser", "error", err)
	}
}

func errorType(err error) string {
	switch {
	case errors.Is(err, repository.ErrCrawlTimeout):
		return "timeout"
	case errors.Is(err, repository.ErrContentTooShort):
		return "content_too_short"
	case errors.Is(err, repository.ErrNavigationFailed):
		return "navigation"
	case errors.Is(err, repository.ErrSessionState):
		return "session"
	}
	return "unknown"
}

func domainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}
