package acgme

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/residency-data/goaccredit/internal/browser"
)

// fakePage scripts a browser page. Unset hooks succeed with zero values.
type fakePage struct {
	body    string
	url     string
	html    string
	anchors []browser.Element

	gotoErr       error
	findErr       map[string]error // keyed by locator query
	found         map[string]browser.Element
	clickErr      map[string]error // keyed by element text
	waitErr       error
	screenshotErr error
	htmlErr       error

	// urlAfterClick is the location after a click that errors, simulating a
	// navigation that raced the error report.
	urlAfterClick string

	calls       []string
	gotos       []string
	screenshots []string
}

func newFakePage() *fakePage {
	return &fakePage{
		findErr:  map[string]error{},
		found:    map[string]browser.Element{},
		clickErr: map[string]error{},
	}
}

func (p *fakePage) Goto(_ context.Context, url string) error {
	p.calls = append(p.calls, "goto")
	p.gotos = append(p.gotos, url)
	if p.gotoErr != nil {
		return p.gotoErr
	}
	p.url = url
	return nil
}

func (p *fakePage) Submit(context.Context, string, string) error {
	p.calls = append(p.calls, "submit")
	return nil
}

func (p *fakePage) BodyText(context.Context) (string, error) {
	p.calls = append(p.calls, "body")
	return p.body, nil
}

func (p *fakePage) URL(context.Context) (string, error) {
	return p.url, nil
}

func (p *fakePage) HTML(context.Context) (string, error) {
	p.calls = append(p.calls, "html")
	return p.html, p.htmlErr
}

func (p *fakePage) Screenshot(_ context.Context, path string) error {
	p.calls = append(p.calls, "screenshot")
	if p.screenshotErr != nil {
		return p.screenshotErr
	}
	p.screenshots = append(p.screenshots, path)
	return os.WriteFile(path, []byte("png"), 0o644)
}

func (p *fakePage) WaitFor(context.Context, string, time.Duration) error {
	p.calls = append(p.calls, "wait")
	return p.waitErr
}

func (p *fakePage) Find(_ context.Context, loc browser.Locator, _ time.Duration) (browser.Element, error) {
	p.calls = append(p.calls, "find")
	if err, ok := p.findErr[loc.Query]; ok {
		return browser.Element{}, err
	}
	if el, ok := p.found[loc.Query]; ok {
		return el, nil
	}
	return browser.Element{}, errors.New("not found")
}

func (p *fakePage) Anchors(context.Context) ([]browser.Element, error) {
	p.calls = append(p.calls, "anchors")
	return p.anchors, nil
}

func (p *fakePage) ClickAndWait(_ context.Context, el browser.Element, _ time.Duration) error {
	p.calls = append(p.calls, "click:"+el.Text)
	if err, ok := p.clickErr[el.Text]; ok {
		if p.urlAfterClick != "" {
			p.url = p.urlAfterClick
		}
		return err
	}
	p.url = "https://apps.acgme.org/ads/Public/Reports/AccreditationHistoryReport?programId=" + el.Href
	return nil
}

type fakeOCR struct {
	year  string
	paths []string
}

func (o *fakeOCR) Recover(path string) (string, bool) {
	o.paths = append(o.paths, path)
	return o.year, o.year != ""
}

func countCalls(calls []string, name string) int {
	n := 0
	for _, c := range calls {
		if c == name {
			n++
		}
	}
	return n
}
