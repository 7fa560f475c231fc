package chromedp_crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/user/stealth-crawler/internal/entity"
	"github.com/user/stealth-crawler/internal/repository"
	"github.com/user/stealth-crawler/pkg/jitter"
	"github.com/user/stealth-crawler/pkg/metrics"
	"github.com/user/stealth-crawler/pkg/utils"
)

const (
	settleDelayMin   = 1 * time.Second
	settleDelayMax   = 3 * time.Second
	lateRenderDelay  = 2 * time.Second
	minContentLength = 100
)

type sessionState int

const (
	stateUninitialized sessionState = iota
	stateReady
	stateClosed
)

// Options configures a Session.
type Options struct {
	Headless bool
	ExecPath string
	// ProxyServer routes all browser traffic, e.g. "socks5://127.0.0.1:9050".
	ProxyServer       string
	NavigationTimeout time.Duration
	// OperationTimeout bounds every other CDP operation on the page.
	OperationTimeout time.Duration
	UserAgents       []string
	Rand             jitter.Source
	Sleep            jitter.Sleeper
	Metrics          *metrics.Metrics
}

// DefaultOptions returns the settings used by the command line tool.
func DefaultOptions() Options {
	return Options{
		Headless:          true,
		NavigationTimeout: 30 * time.Second,
		OperationTimeout:  30 * time.Second,
		UserAgents:        DefaultUserAgents,
		Rand:              jitter.New(),
		Sleep:             jitter.Sleep,
	}
}

// Session owns one Chromium process and one tab. It moves through
// Uninitialized -> Ready -> Closed; a closed session cannot be reused.
type Session struct {
	opts Options

	mu          sync.Mutex
	state       sessionState
	tab         context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	userAgent   string
}

// NewSession creates an uninitialized session. Zero-valued options fall back
// to DefaultOptions.
func NewSession(opts Options) *Session {
	def := DefaultOptions()
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = def.NavigationTimeout
	}
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = def.OperationTimeout
	}
	if len(opts.UserAgents) == 0 {
		opts.UserAgents = def.UserAgents
	}
	if opts.Rand == nil {
		opts.Rand = def.Rand
	}
	if opts.Sleep == nil {
		opts.Sleep = def.Sleep
	}
	return &Session{opts: opts}
}

// Init launches the browser and prepares the disguised tab.
func (s *Session) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateUninitialized {
		return fmt.Errorf("%w: init called on a used session", repository.ErrSessionState)
	}

	s.userAgent = pickUserAgent(s.opts.Rand, s.opts.UserAgents)

	// The browser outlives the call to Init; only Close tears it down.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocatorOptions(s.opts, s.userAgent)...)
	tab, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		slog.Debug(fmt.Sprintf(format, args...))
	}))

	fail := func(err error) error {
		tabCancel()
		allocCancel()
		s.state = stateClosed
		return fmt.Errorf("failed to start browser: %w", err)
	}

	// The first Run allocates the browser and must not carry a deadline,
	// otherwise the browser dies with it.
	if err := chromedp.Run(tab); err != nil {
		return fail(err)
	}

	chromedp.ListenTarget(tab, s.eventHandler(tab))

	setupCtx, cancel := s.operation(ctx, tab, s.opts.OperationTimeout)
	defer cancel()
	if err := chromedp.Run(setupCtx, stealthTasks()); err != nil {
		return fail(err)
	}

	s.tab, s.tabCancel, s.allocCancel = tab, tabCancel, allocCancel
	s.state = stateReady
	slog.Info("Browser session ready", "user_agent", s.userAgent, "headless", s.opts.Headless)
	return nil
}

// Close tears down the browser. Calling it on an unused, failed or already
// closed session is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateReady {
		s.state = stateClosed
		return nil
	}
	s.state = stateClosed

	err := chromedp.Cancel(s.tab)
	s.tabCancel()
	s.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	slog.Info("Browser session closed")
	return nil
}

// UserAgent returns the user agent picked at Init.
func (s *Session) UserAgent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userAgent
}

// Navigate loads targetURL and returns the rendered markup. All failures are
// logged and returned; the session stays usable.
func (s *Session) Navigate(ctx context.Context, targetURL string) (*entity.PageContent, error) {
	tab, err := s.readyTab()
	if err != nil {
		return nil, err
	}

	content, err := s.navigate(ctx, tab, targetURL)
	if err != nil {
		slog.Warn("Error loading page", "url", targetURL, "error", err)
		return nil, err
	}
	return content, nil
}

func (s *Session) navigate(ctx, tab context.Context, targetURL string) (*entity.PageContent, error) {
	if err := s.opts.Sleep(ctx, jitter.Between(s.opts.Rand, settleDelayMin, settleDelayMax)); err != nil {
		return nil, fmt.Errorf("%w: %w", repository.ErrNavigationFailed, err)
	}

	navCtx, cancel := s.operation(ctx, tab, s.opts.NavigationTimeout)
	err := chromedp.Run(navCtx, navigateDOMContentLoaded(targetURL))
	timedOut := errors.Is(navCtx.Err(), context.DeadlineExceeded)
	cancel()
	if err != nil {
		if timedOut {
			return nil, fmt.Errorf("%w after %s", repository.ErrCrawlTimeout, s.opts.NavigationTimeout)
		}
		return nil, fmt.Errorf("%w: %w", repository.ErrNavigationFailed, err)
	}

	// Give client-side rendering a moment before reading the DOM.
	if err := s.opts.Sleep(ctx, lateRenderDelay); err != nil {
		return nil, fmt.Errorf("%w: %w", repository.ErrNavigationFailed, err)
	}

	report := s.dismissChallenge(ctx, tab)
	s.recordDismissal(targetURL, report)

	var html string
	readCtx, cancel := s.operation(ctx, tab, s.opts.OperationTimeout)
	defer cancel()
	if err := chromedp.Run(readCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("%w: read document: %w", repository.ErrNavigationFailed, err)
	}
	return checkContent(html, targetURL)
}

// checkContent rejects documents shorter than minContentLength characters.
func checkContent(html, sourceURL string) (*entity.PageContent, error) {
	if n := utf8.RuneCountInString(html); n < minContentLength {
		return nil, fmt.Errorf("%w: %d characters", repository.ErrContentTooShort, n)
	}
	return &entity.PageContent{RawHTML: html, SourceURL: sourceURL}, nil
}

// navigateDOMContentLoaded navigates the tab and returns once the new
// document has fired DOMContentLoaded, without waiting for subresources.
func navigateDOMContentLoaded(targetURL string) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		loaded := make(chan struct{})
		var once sync.Once

		listenCtx, stop := context.WithCancel(ctx)
		defer stop()
		chromedp.ListenTarget(listenCtx, func(ev any) {
			if _, ok := ev.(*page.EventDomContentEventFired); ok {
				once.Do(func() { close(loaded) })
			}
		})

		var res page.NavigateReturns
		if err := cdp.Execute(ctx, page.CommandNavigate, page.Navigate(targetURL), &res); err != nil {
			return err
		}
		if res.ErrorText != "" {
			return errors.New(res.ErrorText)
		}
		if res.LoaderID == "" {
			// Same-document navigation: no new document will load.
			return nil
		}

		select {
		case <-loaded:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

const linksScript = `(() => ({
	base: document.baseURI,
	hrefs: Array.from(document.querySelectorAll('a[href]')).map(a => a.getAttribute('href'))
}))()`

type linkDump struct {
	Base  string   `json:"base"`
	Hrefs []string `json:"hrefs"`
}

// PageLinks returns the absolute http(s) links of the current document.
func (s *Session) PageLinks(ctx context.Context) []string {
	tab, err := s.readyTab()
	if err != nil {
		return []string{}
	}

	opCtx, cancel := s.operation(ctx, tab, s.opts.OperationTimeout)
	defer cancel()

	var dump linkDump
	if err := chromedp.Run(opCtx, chromedp.Evaluate(linksScript, &dump)); err != nil {
		slog.Debug("Link extraction failed", "error", err)
		return []string{}
	}
	return resolveLinks(dump.Base, dump.Hrefs)
}

// resolveLinks makes hrefs absolute against base and keeps unique http(s)
// URLs in document order.
func resolveLinks(base string, hrefs []string) []string {
	links := []string{}
	baseURL, err := url.Parse(base)
	if err != nil {
		return links
	}
	seen := make(map[string]struct{}, len(hrefs))
	for _, href := range hrefs {
		abs, err := utils.ToAbsoluteURL(baseURL, href)
		if err != nil || !utils.IsAbsoluteHTTP(abs) {
			continue
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	}
	return links
}

// BodyText returns the rendered text of the document body.
func (s *Session) BodyText(ctx context.Context) (string, error) {
	tab, err := s.readyTab()
	if err != nil {
		return "", err
	}
	opCtx, cancel := s.operation(ctx, tab, s.opts.OperationTimeout)
	defer cancel()

	var text string
	err = chromedp.Run(opCtx, chromedp.Evaluate(`document.body ? document.body.innerText : ''`, &text))
	return text, err
}

// MatchesAny reports whether any CSS selector matches an element of the document.
func (s *Session) MatchesAny(ctx context.Context, selectors []string) (bool, error) {
	tab, err := s.readyTab()
	if err != nil {
		return false, err
	}
	list, err := json.Marshal(selectors)
	if err != nil {
		return false, err
	}
	opCtx, cancel := s.operation(ctx, tab, s.opts.OperationTimeout)
	defer cancel()

	var found bool
	script := fmt.Sprintf(`%s.some(sel => { try { return document.querySelector(sel) !== null; } catch (e) { return false; } })`, list)
	err = chromedp.Run(opCtx, chromedp.Evaluate(script, &found))
	return found, err
}

func (s *Session) readyTab() (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateReady {
		return nil, repository.ErrSessionState
	}
	return s.tab, nil
}

// operation derives a context for one CDP call: bounded by d and cancelled
// together with the caller's ctx, but never cancelling the tab itself.
func (s *Session) operation(ctx, tab context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	opCtx, cancel := context.WithTimeout(tab, d)
	stop := context.AfterFunc(ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

func (s *Session) eventHandler(tab context.Context) func(ev any) {
	return func(ev any) {
		switch ev := ev.(type) {
		case *fetch.EventRequestPaused:
			go s.interceptRequest(tab, ev)
		case *page.EventJavascriptDialogOpening:
			go s.dismissDialog(tab, ev)
		}
	}
}

// Listener callbacks must not block, so CDP commands are issued from
// goroutines bound to the tab's executor.
func (s *Session) interceptRequest(tab context.Context, ev *fetch.EventRequestPaused) {
	c := chromedp.FromContext(tab)
	if c == nil || c.Target == nil {
		return
	}
	ctx := cdp.WithExecutor(tab, c.Target)

	var err error
	if isBlockedResource(ev.ResourceType) {
		err = fetch.FailRequest(ev.RequestID, network.ErrorReasonBlockedByClient).Do(ctx)
	} else {
		err = fetch.ContinueRequest(ev.RequestID).Do(ctx)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Debug("Request interception failed", "url", ev.Request.URL, "error", err)
	}
}

func (s *Session) dismissDialog(tab context.Context, ev *page.EventJavascriptDialogOpening) {
	c := chromedp.FromContext(tab)
	if c == nil || c.Target == nil {
		return
	}
	ctx := cdp.WithExecutor(tab, c.Target)
	if err := page.HandleJavaScriptDialog(false).Do(ctx); err != nil {
		slog.Debug("Dialog dismissal failed", "type", ev.Type, "error", err)
		return
	}
	slog.Debug("Dismissed dialog", "type", ev.Type, "message", ev.Message)
}

func pickUserAgent(src jitter.Source, pool []string) string {
	return pool[src.IntN(len(pool))]
}
