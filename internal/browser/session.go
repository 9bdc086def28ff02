// Package browser drives a single Chrome tab over the DevTools protocol.
package browser

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/residency-data/goaccredit/internal/config"
	"github.com/residency-data/goaccredit/internal/logger"
)

// Options configures a browser session.
type Options struct {
	Headless  bool
	ExecPath  string
	UserAgent string
	Width     int
	Height    int
	Pauses    Pauses
}

// OptionsFromConfig maps the browser config section to session options.
func OptionsFromConfig(cfg config.BrowserConfig) Options {
	span := func(lo, hi float64) Range {
		return Range{Min: config.Seconds(lo), Max: config.Seconds(hi)}
	}
	return Options{
		Headless:  cfg.Headless,
		ExecPath:  cfg.ExecPath,
		UserAgent: cfg.UserAgent,
		Width:     cfg.WindowWidth,
		Height:    cfg.WindowHeight,
		Pauses: Pauses{
			PreMove:   span(cfg.PreMoveMin, cfg.PreMoveMax),
			Hover:     span(cfg.HoverMin, cfg.HoverMax),
			PostClick: span(cfg.PostClickMin, cfg.PostClickMax),
		},
	}
}

// Session owns one browser process, one browsing context and one page.
type Session struct {
	allocCancel context.CancelFunc
	tabCancel   context.CancelFunc
	page        *Page
	log         *logger.Logger
}

// Open launches the browser and its single tab.
func Open(ctx context.Context, opts Options, log *logger.Logger) (*Session, error) {
	if log == nil {
		log = logger.NewNop()
	}

	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts, chromedp.Flag("headless", opts.Headless))
	if opts.Width > 0 && opts.Height > 0 {
		allocOpts = append(allocOpts, chromedp.WindowSize(opts.Width, opts.Height))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	// The browser lives until Close, so it is not tied to ctx. The first Run
	// must use the tab context itself or the browser dies with the call.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(log.Debugf),
		chromedp.WithErrorf(log.Debugf),
	)

	page := &Page{
		tab:    tabCtx,
		pauses: opts.Pauses,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		log:    log,
	}
	if err := startBrowser(ctx, tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	log.Infow("Browser session opened", "headless", opts.Headless)
	return &Session{
		allocCancel: allocCancel,
		tabCancel:   tabCancel,
		page:        page,
		log:         log,
	}, nil
}

// Page returns the session's only page.
func (s *Session) Page() *Page {
	return s.page
}

// Close shuts the tab and the browser process down.
func (s *Session) Close() error {
	err := chromedp.Cancel(s.page.tab)
	s.tabCancel()
	s.allocCancel()
	if err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	s.log.Info("Browser session closed")
	return nil
}

func startBrowser(ctx, tabCtx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(tabCtx) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
