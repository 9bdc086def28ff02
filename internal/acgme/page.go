package acgme

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/residency-data/goaccredit/internal/browser"
)

// Page is the browser surface the resolvers drive. *browser.Page implements it.
type Page interface {
	Goto(ctx context.Context, url string) error
	Submit(ctx context.Context, selector, value string) error
	BodyText(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	Screenshot(ctx context.Context, path string) error
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	Find(ctx context.Context, loc browser.Locator, timeout time.Duration) (browser.Element, error)
	Anchors(ctx context.Context) ([]browser.Element, error)
	ClickAndWait(ctx context.Context, el browser.Element, timeout time.Duration) error
}

var _ Page = (*browser.Page)(nil)

// YearRecoverer extracts a year from a screenshot. *ocr.Recoverer implements it.
type YearRecoverer interface {
	Recover(path string) (string, bool)
}

// Artifacts names the per-record debug files.
type Artifacts struct {
	Dir string
}

// Screenshot returns the screenshot path for a record.
func (a Artifacts) Screenshot(programID string) string {
	return filepath.Join(a.dir(), "debug_acgme_"+safeName(programID)+".png")
}

// Markup returns the page dump path for a record.
func (a Artifacts) Markup(programID string) string {
	return filepath.Join(a.dir(), "debug_acgme_"+safeName(programID)+".html")
}

func (a Artifacts) dir() string {
	if a.Dir == "" {
		return "."
	}
	return a.Dir
}

func safeName(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, strings.TrimSpace(id))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
