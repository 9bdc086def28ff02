package acgme

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/residency-data/goaccredit/internal/browser"
	"github.com/residency-data/goaccredit/internal/config"
	"github.com/residency-data/goaccredit/internal/logger"
)

var errNoHref = errors.New("no history link href captured")

// Settings are the site and timing parameters of one resolution attempt.
type Settings struct {
	BaseURL         string
	SearchURL       string
	SearchInput     string
	HistoryRoute    string
	LinkText        string
	NoResultsMarker string

	Settle            time.Duration
	SelectorTimeout   time.Duration
	NavigationTimeout time.Duration

	// Debug dumps page markup when an attempt fails unexpectedly.
	Debug bool
}

// SettingsFromConfig builds Settings from the loaded configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		BaseURL:           cfg.ACGME.BaseURL,
		SearchURL:         cfg.ACGME.SearchURL,
		SearchInput:       cfg.ACGME.SearchInput,
		HistoryRoute:      cfg.ACGME.HistoryRoute,
		LinkText:          cfg.ACGME.HistoryLinkText,
		NoResultsMarker:   cfg.ACGME.NoResultsMarker,
		Settle:            cfg.Resolver.Settle(),
		SelectorTimeout:   cfg.Resolver.SelectorTimeout(),
		NavigationTimeout: cfg.Resolver.NavigationTimeout(),
		Debug:             cfg.Run.Debug,
	}
}

// attempt is the state of one pass through the strategy chain.
type attempt struct {
	page      Page
	programID string
	log       *logger.Logger
	firstHref string // href of the first located history link
}

// strategy is one way of reaching the accreditation history page.
type strategy struct {
	name string
	open func(ctx context.Context, a *attempt) error
	// recover enables the already-navigated check and screenshot OCR on failure.
	recover bool
}

// NavigationResolver walks from the search page to the accreditation
// history page for one record and reads the year there.
type NavigationResolver struct {
	settings   Settings
	table      *TableReader
	ocr        YearRecoverer
	artifacts  Artifacts
	log        *logger.Logger
	strategies []strategy
}

// NewNavigationResolver wires a resolver. ocr may be nil to disable recovery.
func NewNavigationResolver(settings Settings, table *TableReader, ocr YearRecoverer, artifacts Artifacts, log *logger.Logger) *NavigationResolver {
	if log == nil {
		log = logger.NewNop()
	}
	n := &NavigationResolver{
		settings:  settings,
		table:     table,
		ocr:       ocr,
		artifacts: artifacts,
		log:       log,
	}
	n.strategies = []strategy{
		{name: "text-link", open: n.openTextLink, recover: true},
		{name: "button-link", open: n.openButtonLink, recover: true},
		{name: "anchor-scan", open: n.openAnchorScan, recover: true},
		{name: "direct-href", open: n.openDirectHref},
	}
	return n
}

// Resolve performs one attempt for programID. It never returns an error:
// every failure is folded into the Outcome.
func (n *NavigationResolver) Resolve(ctx context.Context, page Page, programID string) Outcome {
	a := &attempt{page: page, programID: programID, log: n.log.WithRecord(programID)}

	out, err := n.resolve(ctx, a)
	if err == nil {
		return out
	}
	if ctx.Err() != nil {
		return failed(ctx.Err().Error())
	}

	a.log.Warnw("Resolution attempt aborted", "error", err)
	n.dumpMarkup(ctx, a)
	if year, ok := n.recoverSaved(a); ok {
		return resolved(year, SourceOCR)
	}
	return failed(err.Error())
}

func (n *NavigationResolver) resolve(ctx context.Context, a *attempt) (Outcome, error) {
	if err := a.page.Goto(ctx, n.settings.SearchURL); err != nil {
		return Outcome{}, err
	}
	if err := a.page.Submit(ctx, n.settings.SearchInput, a.programID); err != nil {
		return Outcome{}, err
	}
	if err := wait(ctx, n.settings.Settle); err != nil {
		return Outcome{}, err
	}

	body, err := a.page.BodyText(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if n.settings.NoResultsMarker != "" && strings.Contains(body, n.settings.NoResultsMarker) {
		a.log.Infow("No program found for id")
		return noRecord(), nil
	}

	reached := false
	for _, s := range n.strategies {
		log := a.log.WithStage(s.name)
		log.Debug("Trying history navigation strategy")

		err := s.open(ctx, a)
		if err == nil {
			log.Debug("Reached history page")
			reached = true
			break
		}
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		log.Infow("History navigation strategy failed", "error", err)

		if !s.recover {
			continue
		}
		if n.onHistoryPage(ctx, a) {
			log.Info("Already on history page despite click error")
			reached = true
			break
		}
		if year, ok := n.captureAndRecover(ctx, a); ok {
			return resolved(year, SourceOCR), nil
		}
	}

	if !reached {
		return failed("accreditation history page not reached"), nil
	}
	return n.extract(ctx, a), nil
}

func (n *NavigationResolver) openTextLink(ctx context.Context, a *attempt) error {
	el, err := a.page.Find(ctx, browser.TextLink(n.settings.LinkText), n.settings.SelectorTimeout)
	if err != nil {
		return err
	}
	a.firstHref = el.Href
	return a.page.ClickAndWait(ctx, el, n.settings.NavigationTimeout)
}

func (n *NavigationResolver) openButtonLink(ctx context.Context, a *attempt) error {
	el, err := a.page.Find(ctx, browser.ButtonLink(n.settings.LinkText), n.settings.SelectorTimeout)
	if err != nil {
		return err
	}
	if a.firstHref == "" {
		a.firstHref = el.Href
	}
	return a.page.ClickAndWait(ctx, el, n.settings.NavigationTimeout)
}

func (n *NavigationResolver) openAnchorScan(ctx context.Context, a *attempt) error {
	anchors, err := a.page.Anchors(ctx)
	if err != nil {
		return err
	}
	el, ok := pickAnchor(anchors, n.settings.LinkText, routeFragment(n.settings.HistoryRoute))
	if !ok {
		return fmt.Errorf("no anchor matches %q among %d links", n.settings.LinkText, len(anchors))
	}
	if a.firstHref == "" {
		a.firstHref = el.Href
	}
	return a.page.ClickAndWait(ctx, el, n.settings.NavigationTimeout)
}

func (n *NavigationResolver) openDirectHref(ctx context.Context, a *attempt) error {
	if a.firstHref == "" {
		return errNoHref
	}
	target, err := absoluteURL(n.settings.BaseURL, a.firstHref)
	if err != nil {
		return err
	}
	a.log.Infow("Navigating directly to history link", "url", target)
	return a.page.Goto(ctx, target)
}

// extract reads the year once the history page is open, falling back to OCR.
func (n *NavigationResolver) extract(ctx context.Context, a *attempt) Outcome {
	res := n.table.Read(ctx, a.page, a.programID)
	if res.OK {
		return resolved(res.Year, SourceTable)
	}

	shot := res.Screenshot
	if shot == "" {
		shot = n.capture(ctx, a)
	}
	if year, ok := n.recover(shot); ok {
		return resolved(year, SourceOCR)
	}
	return failed("no academic year in table or screenshot")
}

func (n *NavigationResolver) onHistoryPage(ctx context.Context, a *attempt) bool {
	loc, err := a.page.URL(ctx)
	if err != nil {
		return false
	}
	return strings.Contains(loc, n.settings.HistoryRoute)
}

func (n *NavigationResolver) captureAndRecover(ctx context.Context, a *attempt) (string, bool) {
	return n.recover(n.capture(ctx, a))
}

// capture saves a screenshot and returns its path, or "" when capture failed.
func (n *NavigationResolver) capture(ctx context.Context, a *attempt) string {
	path := n.artifacts.Screenshot(a.programID)
	if err := a.page.Screenshot(ctx, path); err != nil {
		a.log.Warnw("Recovery screenshot failed", "error", err)
		return ""
	}
	return path
}

func (n *NavigationResolver) recover(path string) (string, bool) {
	if n.ocr == nil || path == "" {
		return "", false
	}
	return n.ocr.Recover(path)
}

// recoverSaved runs OCR over a screenshot left by an earlier stage.
func (n *NavigationResolver) recoverSaved(a *attempt) (string, bool) {
	path := n.artifacts.Screenshot(a.programID)
	if !fileExists(path) {
		return "", false
	}
	return n.recover(path)
}

func (n *NavigationResolver) dumpMarkup(ctx context.Context, a *attempt) {
	if !n.settings.Debug {
		return
	}
	html, err := a.page.HTML(ctx)
	if err != nil {
		a.log.Debugw("Markup dump skipped", "error", err)
		return
	}
	path := n.artifacts.Markup(a.programID)
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		a.log.Debugw("Markup dump failed", "error", err)
		return
	}
	a.log.Debugw("Saved page markup", "path", path)
}

func pickAnchor(anchors []browser.Element, text, fragment string) (browser.Element, bool) {
	for _, el := range anchors {
		if strings.TrimSpace(el.Text) == text {
			return el, true
		}
		if fragment != "" && strings.Contains(el.Href, fragment) {
			return el, true
		}
	}
	return browser.Element{}, false
}

// routeFragment reduces "/AccreditationHistoryReport?programId=" to its path segment.
func routeFragment(route string) string {
	path, _, _ := strings.Cut(route, "?")
	return strings.Trim(path, "/")
}

func absoluteURL(base, href string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("parse history href: %w", err)
	}
	return b.ResolveReference(ref).String(), nil
}
