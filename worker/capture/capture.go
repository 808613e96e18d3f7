package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"threatAnalyzer/worker/config"
	"threatAnalyzer/worker/models"
)

type Capturer interface {
	Capture(ctx context.Context, url string) (*models.CaptureResult, error)
}

// Browser owns one headless Chrome process. Every capture runs in a fresh
// browser context so cookies and storage never leak between tasks.
type Browser struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

func NewBrowser(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Browser, error) {
	if err := os.MkdirAll(cfg.ScreenshotDir, 0o755); err != nil {
		return nil, fmt.Errorf("create screenshot dir: %w", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
		chromedp.UserAgent(cfg.UserAgent),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	logger.Info("Browser launched", zap.Bool("headless", cfg.Headless))
	return &Browser{
		cfg:           cfg,
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

func (b *Browser) Capture(ctx context.Context, url string) (*models.CaptureResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tabCtx, tabCancel := chromedp.NewContext(b.browserCtx, chromedp.WithNewBrowserContext())
	defer tabCancel()

	// Tie the tab to the caller so shutdown aborts a hung page.
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	watch := newSettleWatch()
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if e, ok := ev.(*page.EventLifecycleEvent); ok {
			watch.observe(e)
		}
	})

	setup := chromedp.Tasks{
		page.SetLifecycleEventsEnabled(true),
		emulation.SetUserAgentOverride(b.cfg.UserAgent),
		chromedp.EmulateViewport(int64(b.cfg.ViewportWidth), int64(b.cfg.ViewportHeight)),
	}
	if err := chromedp.Run(tabCtx, setup); err != nil {
		return nil, fmt.Errorf("prepare browser context: %w", err)
	}

	// Only idle events from the document this navigation creates count.
	var mainFrame cdp.FrameID
	if c := chromedp.FromContext(tabCtx); c != nil && c.Target != nil {
		mainFrame = cdp.FrameID(c.Target.TargetID)
	}
	watch.arm(mainFrame)

	navCtx, navCancel := context.WithTimeout(tabCtx, b.cfg.NavigationTimeout.Duration)
	err := chromedp.Run(navCtx, chromedp.Navigate(url))
	navCancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("navigate %s: timed out after %s", url, b.cfg.NavigationTimeout.Duration)
		}
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}

	select {
	case <-watch.done:
	case <-time.After(b.cfg.SettleTimeout.Duration):
		b.logger.Debug("Page did not reach network idle, capturing anyway", zap.String("url", url))
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var (
		html string
		shot []byte
	)
	grabCtx, grabCancel := context.WithTimeout(tabCtx, b.cfg.NavigationTimeout.Duration)
	defer grabCancel()
	if err := chromedp.Run(grabCtx,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.FullScreenshot(&shot, 100),
	); err != nil {
		return nil, fmt.Errorf("capture %s: %w", url, err)
	}

	path := filepath.Join(b.cfg.ScreenshotDir, SnapshotFilename(url, time.Now(), uuid.NewString()[:8]))
	if err := os.WriteFile(path, shot, 0o644); err != nil {
		return nil, fmt.Errorf("write snapshot: %w", err)
	}

	return &models.CaptureResult{SnapshotPath: path, HTML: html, Image: shot}, nil
}

func (b *Browser) Close() error {
	b.browserCancel()
	b.allocCancel()
	b.logger.Info("Browser closed")
	return nil
}

var (
	schemePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*://`)
	unsafeChars   = regexp.MustCompile(`[^A-Za-z0-9_-]`)
)

const maxFilenameStem = 100

// SnapshotFilename derives a filesystem safe name from the target and time.
// suffix keeps concurrent captures of the same URL apart.
func SnapshotFilename(url string, t time.Time, suffix string) string {
	stem := schemePattern.ReplaceAllString(strings.TrimSpace(url), "")
	stem = unsafeChars.ReplaceAllString(stem, "_")
	if len(stem) > maxFilenameStem {
		stem = stem[:maxFilenameStem]
	}
	if stem == "" {
		stem = "snapshot"
	}
	name := stem + "_" + t.Format("20060102_150405")
	if suffix = unsafeChars.ReplaceAllString(suffix, ""); suffix != "" {
		name += "_" + suffix
	}
	return name + ".png"
}

// settleWatch closes done on the first networkIdle of the document loaded
// after arm. Events for the blank initial document, replayed or late, and
// for child frames are ignored.
type settleWatch struct {
	mu     sync.Mutex
	armed  bool
	frame  cdp.FrameID
	loader cdp.LoaderID
	closed bool
	done   chan struct{}
}

func newSettleWatch() *settleWatch {
	return &settleWatch{done: make(chan struct{})}
}

func (w *settleWatch) arm(frame cdp.FrameID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.armed = true
	w.frame = frame
	w.loader = ""
}

func (w *settleWatch) observe(e *page.EventLifecycleEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.armed || w.closed {
		return
	}
	if w.frame != "" && e.FrameID != w.frame {
		return
	}
	switch e.Name {
	case "init":
		w.loader = e.LoaderID
	case "networkIdle":
		if w.loader != "" && e.LoaderID == w.loader {
			w.closed = true
			close(w.done)
		}
	}
}
