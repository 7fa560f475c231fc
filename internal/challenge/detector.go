// Package challenge recognizes interstitial CAPTCHA and bot-check screens.
//
// Detection is heuristic: a page counts as a challenge when its visible text
// contains one of a fixed set of phrases, or when its DOM contains an element
// typical of a CAPTCHA widget. False negatives are expected. The detector
// never reports an error; a fault while inspecting a page means "no challenge".
package challenge

import (
	"context"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	ahocorasick "github.com/cloudflare/ahocorasick"

	"github.com/user/stealth-crawler/internal/entity"
)

// Phrases are matched against lower-cased body text.
var Phrases = []string{
	"captcha",
	"are you human",
	"verify you are",
	"press and hold",
	"i am not a robot",
	"human verification",
	"security check",
	"please verify",
	"recaptcha",
}

// Selectors identify known CAPTCHA widgets.
var Selectors = []string{
	`iframe[src*="recaptcha"]`,
	`iframe[src*="hcaptcha"]`,
	`div[class*="captcha"]`,
	`div[id*="captcha"]`,
	`input[name*="captcha"]`,
	`#recaptcha`,
	`.g-recaptcha`,
	`.h-captcha`,
}

// PageInspector gives read access to a rendered page.
type PageInspector interface {
	BodyText(ctx context.Context) (string, error)
	MatchesAny(ctx context.Context, selectors []string) (bool, error)
}

// Detector is stateless apart from its compiled phrase matcher and is safe
// for concurrent use.
type Detector struct {
	matcher   *ahocorasick.Matcher
	selectors []string
}

func NewDetector() *Detector {
	return &Detector{
		matcher:   ahocorasick.NewStringMatcher(Phrases),
		selectors: Selectors,
	}
}

// IsChallengePresent inspects a live page.
func (d *Detector) IsChallengePresent(ctx context.Context, page PageInspector) bool {
	text, err := page.BodyText(ctx)
	if err != nil {
		slog.Warn("Error checking for challenge", "error", err)
		return false
	}
	if d.TextMatches(text) {
		return true
	}
	found, err := page.MatchesAny(ctx, d.selectors)
	if err != nil {
		slog.Warn("Error checking for challenge", "error", err)
		return false
	}
	return found
}

// TextMatches reports whether text contains a challenge phrase, ignoring case.
func (d *Detector) TextMatches(text string) bool {
	return len(d.matcher.Match([]byte(strings.ToLower(text)))) > 0
}

// DetectHTML applies the same heuristics to static markup.
func (d *Detector) DetectHTML(rawHTML string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return false
	}
	body := doc.Find("body")
	body.Find("script, style, noscript").Remove()
	if d.TextMatches(body.Text()) {
		return true
	}
	for _, sel := range d.selectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}

// Static checks fetched markup without touching the browser.
type Static struct {
	Detector *Detector
}

func (s Static) ChallengePresent(_ context.Context, page *entity.PageContent) bool {
	return page != nil && s.Detector.DetectHTML(page.RawHTML)
}

// Live checks the page currently loaded in the browser. The fetched content
// is ignored; the inspector must be showing the same page.
type Live struct {
	Detector  *Detector
	Inspector PageInspector
}

func (l Live) ChallengePresent(ctx context.Context, _ *entity.PageContent) bool {
	return l.Detector.IsChallengePresent(ctx, l.Inspector)
}
