package chromedp_crawler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
)

const (
	clickSettleDelay = 2 * time.Second
	maxFrameDepth    = 3
	checkboxSelector = ".recaptcha-checkbox-border"
)

// Outcome is the result of one dismissal attempt.
type Outcome int

const (
	NotFound Outcome = iota
	Dismissed
	AttemptFailed
)

func (o Outcome) String() string {
	switch o {
	case Dismissed:
		return "dismissed"
	case AttemptFailed:
		return "attempt_failed"
	default:
		return "not_found"
	}
}

// Attempt records what happened to a single dismissal target.
type Attempt struct {
	Target  string
	Outcome Outcome
	Err     error
}

// DismissalReport collects every attempt made on one page.
type DismissalReport struct {
	Attempts []Attempt
}

// Dismissed reports whether any attempt clicked something.
func (r DismissalReport) Dismissed() bool {
	for _, p := range r.Attempts {
		if p.Outcome == Dismissed {
			return true
		}
	}
	return false
}

type buttonTarget struct {
	name string
	sel  string
	by   chromedp.QueryOption
}

// textButton matches buttons whose text contains text in any letter case.
func textButton(text string) buttonTarget {
	return buttonTarget{
		name: text,
		sel: fmt.Sprintf(`//button[contains(translate(normalize-space(.), %q, %q), %q)]`,
			"ABCDEFGHIJKLMNOPQRSTUVWXYZ", "abcdefghijklmnopqrstuvwxyz", strings.ToLower(text)),
		by: chromedp.BySearch,
	}
}

var buttonTargets = []buttonTarget{
	textButton("Continue"),
	textButton("I am human"),
	textButton("Verify"),
	{name: "#challenge-stage button", sel: "#challenge-stage button", by: chromedp.ByQuery},
}

// dismissChallenge is best effort: every fault becomes an AttemptFailed
// attempt and the page is read regardless.
func (s *Session) dismissChallenge(ctx, tab context.Context) DismissalReport {
	var report DismissalReport

	for _, bp := range buttonTargets {
		att := s.clickFirst(ctx, tab, bp.name, bp.sel, bp.by)
		report.Attempts = append(report.Attempts, att)
		if att.Outcome == Dismissed {
			if err := s.opts.Sleep(ctx, clickSettleDelay); err != nil {
				return report
			}
		}
	}

	report.Attempts = append(report.Attempts, s.clickCheckbox(ctx, tab, nil, 0))
	return report
}

func (s *Session) clickFirst(ctx, tab context.Context, name, sel string, by chromedp.QueryOption, from ...chromedp.QueryOption) Attempt {
	att := Attempt{Target: name}

	opCtx, cancel := s.operation(ctx, tab, s.opts.OperationTimeout)
	defer cancel()

	var nodes []*cdp.Node
	opts := append([]chromedp.QueryOption{by, chromedp.AtLeast(0)}, from...)
	if err := chromedp.Run(opCtx, chromedp.Nodes(sel, &nodes, opts...)); err != nil {
		att.Outcome, att.Err = AttemptFailed, err
		return att
	}
	target := firstVisible(opCtx, nodes)
	if target == nil {
		return att
	}
	if err := chromedp.Run(opCtx, chromedp.MouseClickNode(target)); err != nil {
		att.Outcome, att.Err = AttemptFailed, err
		return att
	}
	att.Outcome = Dismissed
	return att
}

// firstVisible returns the first node that is rendered with a non-empty box.
func firstVisible(ctx context.Context, nodes []*cdp.Node) *cdp.Node {
	for _, n := range nodes {
		var box *dom.BoxModel
		err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			box, err = dom.GetBoxModel().WithNodeID(n.NodeID).Do(ctx)
			return err
		}))
		if err == nil && hasArea(box) {
			return n
		}
	}
	return nil
}

// hasArea is false for nodes that are hidden or collapsed to zero size.
func hasArea(box *dom.BoxModel) bool {
	return box != nil && box.Width > 0 && box.Height > 0
}

// clickCheckbox looks for the checkbox in the given document, then descends
// into each iframe it contains.
func (s *Session) clickCheckbox(ctx, tab context.Context, frame *cdp.Node, depth int) Attempt {
	var from []chromedp.QueryOption
	if frame != nil {
		from = append(from, chromedp.FromNode(frame))
	}

	att := s.clickFirst(ctx, tab, checkboxSelector, checkboxSelector, chromedp.ByQuery, from...)
	if att.Outcome == Dismissed || depth >= maxFrameDepth {
		return att
	}

	opCtx, cancel := s.operation(ctx, tab, s.opts.OperationTimeout)
	var frames []*cdp.Node
	err := chromedp.Run(opCtx, chromedp.Nodes("iframe", &frames, append([]chromedp.QueryOption{chromedp.ByQueryAll, chromedp.AtLeast(0)}, from...)...))
	cancel()
	if err != nil {
		// A detached or cross-origin frame is not a failure of the whole walk.
		return att
	}

	for _, f := range frames {
		inner := s.clickCheckbox(ctx, tab, f, depth+1)
		if inner.Outcome == Dismissed {
			return inner
		}
		if att.Outcome == NotFound && inner.Outcome == AttemptFailed {
			att = inner
		}
	}
	return att
}

func (s *Session) recordDismissal(pageURL string, report DismissalReport) {
	for _, p := range report.Attempts {
		s.opts.Metrics.IncDismissal(p.Outcome.String())
		switch p.Outcome {
		case Dismissed:
			slog.Info("Clicked challenge element", "url", pageURL, "target", p.Target)
		case AttemptFailed:
			slog.Debug("Challenge dismissal attempt failed", "url", pageURL, "target", p.Target, "error", p.Err)
		}
	}
}
