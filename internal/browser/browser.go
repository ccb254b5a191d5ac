// internal/browser/browser.go
//
// Package browser adapts a live Chrome tab, driven over the DevTools protocol, to the
// dom.Page interface so that the resolver and the healer can run against real pages.
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-heal/internal/config"
)

const (
	defaultActionTimeout = 10 * time.Second
	shutdownTimeout      = 10 * time.Second
)

// ExecOptions builds the Chrome launch options for cfg.
func ExecOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("enable-automation", true),
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}
	if w, h := cfg.Viewport["width"], cfg.Viewport["height"]; w > 0 && h > 0 {
		opts = append(opts, chromedp.WindowSize(w, h))
	}

	// Args accept both "--flag" and "--flag=value".
	for _, arg := range cfg.Args {
		key, value, found := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if key == "" {
			continue
		}
		if found {
			opts = append(opts, chromedp.Flag(key, value))
		} else {
			opts = append(opts, chromedp.Flag(key, true))
		}
	}
	return opts
}

// Browser owns one Chrome process.
type Browser struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// Launch starts Chrome. The process lives until Close is called or ctx is cancelled.
func Launch(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Browser, error) {
	logger = logger.Named("browser")

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, ExecOptions(cfg)...)
	ctxOpts := []chromedp.ContextOption{chromedp.WithErrorf(logger.Sugar().Debugf)}
	if cfg.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithLogf(logger.Sugar().Debugf))
	}
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, ctxOpts...)

	// An empty Run starts the process.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	logger.Info("Browser started.", zap.Bool("headless", cfg.Headless))
	return &Browser{
		cfg:           cfg,
		logger:        logger,
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Open navigates a new tab to url and waits for the document body.
func (b *Browser) Open(ctx context.Context, url string) (*Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(b.browserCtx)

	navTimeout := b.cfg.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = 60 * time.Second
	}
	runCtx, cancel := combine(tabCtx, ctx)
	defer cancel()
	runCtx, timeoutCancel := context.WithTimeout(runCtx, navTimeout)
	defer timeoutCancel()

	tasks := chromedp.Tasks{
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if b.cfg.PostLoadWait > 0 {
		tasks = append(tasks, chromedp.Sleep(b.cfg.PostLoadWait))
	}
	if err := chromedp.Run(runCtx, tasks); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to open %s: %w", url, err)
	}

	b.logger.Debug("Page loaded.", zap.String("url", url))
	return newPage(tabCtx, tabCancel, b.logger, defaultActionTimeout), nil
}

// Close shuts Chrome down, waiting up to a grace period for the process to exit.
func (b *Browser) Close() error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(b.browserCtx) }()

	var err error
	select {
	case err = <-done:
	case <-time.After(shutdownTimeout):
		err = fmt.Errorf("browser did not exit within %s", shutdownTimeout)
	}
	b.browserCancel()
	b.allocCancel()
	if err != nil {
		b.logger.Warn("Browser shutdown was not clean.", zap.Error(err))
	}
	return err
}

// combine derives a context from primary, which carries the CDP target, that is also
// cancelled when op is done.
func combine(primary, op context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(primary)
	stop := context.AfterFunc(op, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
