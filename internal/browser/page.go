package browser

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/residency-data/goaccredit/internal/logger"
)

// ErrNoNavigation is returned when a click does not change the page URL in time.
var ErrNoNavigation = errors.New("no navigation after click")

const navigationPoll = 250 * time.Millisecond

// Page is the single tab of a Session.
type Page struct {
	tab    context.Context
	pauses Pauses
	rng    *rand.Rand
	log    *logger.Logger
}

// run executes actions on the tab, bounded by ctx's cancellation and deadline.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.tab)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Goto navigates to url and waits for the load event.
func (p *Page) Goto(ctx context.Context, url string) error {
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

// Submit replaces the value of the field matched by selector and presses Enter.
func (p *Page) Submit(ctx context.Context, selector, value string) error {
	err := p.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, value+kb.Enter, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("submit %q: %w", selector, err)
	}
	return nil
}

// BodyText returns the rendered text of the document body.
func (p *Page) BodyText(ctx context.Context) (string, error) {
	var text string
	if err := p.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text)); err != nil {
		return "", fmt.Errorf("read body text: %w", err)
	}
	return text, nil
}

// URL returns the current location.
func (p *Page) URL(ctx context.Context) (string, error) {
	var loc string
	if err := p.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

// HTML returns the serialized document.
func (p *Page) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read page markup: %w", err)
	}
	return html, nil
}

// Screenshot writes a full-page PNG to path.
func (p *Page) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := p.run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return fmt.Errorf("capture screenshot: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create screenshot dir: %w", err)
		}
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("write screenshot: %w", err)
	}
	return nil
}

// WaitFor blocks until an element matching the CSS selector is present.
func (p *Page) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	wctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	if err := p.run(wctx, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	return nil
}

// Find returns the first element matching loc, waiting up to timeout.
func (p *Page) Find(ctx context.Context, loc Locator, timeout time.Duration) (Element, error) {
	fctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	var nodes []*cdp.Node
	if err := p.run(fctx, chromedp.Nodes(loc.Query, &nodes, loc.by())); err != nil {
		return Element{}, fmt.Errorf("locate %s: %w", loc, err)
	}
	if len(nodes) == 0 {
		return Element{}, fmt.Errorf("locate %s: no match", loc)
	}

	n := nodes[0]
	return Element{NodeID: n.NodeID, Text: nodeText(n), Href: n.AttributeValue("href")}, nil
}

type anchorInfo struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

const anchorsScript = `Array.from(document.querySelectorAll('a')).map(a => ({text: (a.innerText || '').trim(), href: a.getAttribute('href') || ''}))`

// Anchors lists every <a> element in document order.
func (p *Page) Anchors(ctx context.Context) ([]Element, error) {
	var (
		nodes []*cdp.Node
		info  []anchorInfo
	)
	err := p.run(ctx,
		chromedp.Nodes("a", &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)),
		chromedp.Evaluate(anchorsScript, &info),
	)
	if err != nil {
		return nil, fmt.Errorf("list anchors: %w", err)
	}
	if len(nodes) != len(info) {
		return nil, fmt.Errorf("list anchors: document changed while reading (%d nodes, %d entries)", len(nodes), len(info))
	}

	out := make([]Element, len(nodes))
	for i, n := range nodes {
		out[i] = Element{NodeID: n.NodeID, Text: info[i].Text, Href: info[i].Href}
	}
	return out, nil
}

// Click performs a human-like click: scroll into view, move the pointer to
// the element centre, hover, then press and release, with randomized pauses
// between each step.
func (p *Page) Click(ctx context.Context, el Element) error {
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := dom.ScrollIntoViewIfNeeded().WithNodeID(el.NodeID).Do(ctx); err != nil {
			return fmt.Errorf("scroll into view: %w", err)
		}
		if err := sleep(ctx, p.pauses.PreMove.Pick(p.rng)); err != nil {
			return err
		}

		box, err := dom.GetBoxModel().WithNodeID(el.NodeID).Do(ctx)
		if err != nil || box == nil || len(box.Content) < 8 {
			p.log.Debugw("No box model, falling back to plain click", "node", el.NodeID)
			return chromedp.Click([]cdp.NodeID{el.NodeID}, chromedp.ByNodeID).Do(ctx)
		}
		x, y := quadCenter(box.Content)

		if err := input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx); err != nil {
			return fmt.Errorf("move pointer: %w", err)
		}
		if err := sleep(ctx, p.pauses.Hover.Pick(p.rng)); err != nil {
			return err
		}
		// Settle on the element with a second move to trigger hover handlers.
		if err := input.DispatchMouseEvent(input.MouseMoved, x+1, y).Do(ctx); err != nil {
			return fmt.Errorf("hover: %w", err)
		}
		if err := sleep(ctx, p.pauses.Hover.Pick(p.rng)); err != nil {
			return err
		}

		for _, typ := range []input.MouseType{input.MousePressed, input.MouseReleased} {
			ev := input.DispatchMouseEvent(typ, x+1, y).
				WithButton(input.Left).
				WithClickCount(1)
			if err := ev.Do(ctx); err != nil {
				return fmt.Errorf("click: %w", err)
			}
		}
		return sleep(ctx, p.pauses.PostClick.Pick(p.rng))
	}))
	if err != nil {
		return fmt.Errorf("human-like click: %w", err)
	}
	return nil
}

// ClickAndWait clicks el and waits up to timeout for the URL to change.
func (p *Page) ClickAndWait(ctx context.Context, el Element, timeout time.Duration) error {
	before, err := p.URL(ctx)
	if err != nil {
		return err
	}
	if err := p.Click(ctx, el); err != nil {
		return err
	}
	return p.waitForURLChange(ctx, before, timeout)
}

func (p *Page) waitForURLChange(ctx context.Context, from string, timeout time.Duration) error {
	wctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(navigationPoll)
	defer ticker.Stop()
	for {
		loc, err := p.URL(wctx)
		if err == nil && loc != from {
			return p.run(wctx, chromedp.WaitReady("body", chromedp.ByQuery))
		}
		select {
		case <-wctx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w within %s", ErrNoNavigation, timeout)
		case <-ticker.C:
		}
	}
}

func quadCenter(q dom.Quad) (float64, float64) {
	var x, y float64
	for i := 0; i+1 < len(q) && i < 8; i += 2 {
		x += q[i]
		y += q[i+1]
	}
	return x / 4, y / 4
}

func nodeText(n *cdp.Node) string {
	var b strings.Builder
	var walk func(*cdp.Node)
	walk = func(n *cdp.Node) {
		if n.NodeType == cdp.NodeTypeText {
			b.WriteString(n.NodeValue)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
