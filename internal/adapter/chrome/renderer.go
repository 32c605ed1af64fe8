package chrome

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/vertextoedge/subscription-archiver/internal/domain"
	"github.com/vertextoedge/subscription-archiver/internal/port"
)

const (
	// DefaultTimeout bounds one render including browser startup
	DefaultTimeout = 5 * time.Minute

	// CSS pixels per inch; PrintToPDF margins are in inches
	pixelsPerInch = 96.0
)

// Config contains renderer configuration
type Config struct {
	// ExecPath overrides the browser binary; empty uses chromedp's lookup
	ExecPath string
	Timeout  time.Duration
}

// Renderer prints HTML documents to PDF with a headless browser.
// Each call starts and tears down its own browser.
type Renderer struct {
	cfg    Config
	logger *zap.Logger
}

// Ensure Renderer implements port.Renderer
var _ port.Renderer = (*Renderer)(nil)

// NewRenderer creates a new renderer
func NewRenderer(cfg Config, logger *zap.Logger) *Renderer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{cfg: cfg, logger: logger}
}

// Render loads html into a blank page and writes the printed PDF to outputPath
func (r *Renderer) Render(ctx context.Context, html, outputPath string, opts port.RenderOptions) error {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, r.allocatorOptions()...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(r.logger.Sugar().Debugf),
		chromedp.WithErrorf(r.logger.Sugar().Debugf),
	)
	defer browserCancel()

	var pdf []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate("about:blank"),
		setContent(html),
		chromedp.Poll("document.readyState === 'complete'", nil),
		printToPDF(opts, &pdf),
	)
	if err != nil {
		return &domain.RenderError{Path: outputPath, Err: err}
	}

	if err := os.WriteFile(outputPath, pdf, 0644); err != nil {
		return &domain.RenderError{Path: outputPath, Err: fmt.Errorf("failed to write pdf: %w", err)}
	}

	r.logger.Info("document rendered",
		zap.String("path", outputPath),
		zap.Int("bytes", len(pdf)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func (r *Renderer) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-sync", true),
	)
	if r.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.cfg.ExecPath))
	}
	return opts
}

func setContent(html string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		tree, err := page.GetFrameTree().Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to get frame tree: %w", err)
		}
		return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
	})
}

func printToPDF(opts port.RenderOptions, out *[]byte) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		m := MarginInches(opts.Margin)
		data, _, err := page.PrintToPDF().
			WithPrintBackground(opts.PrintBackground).
			WithMarginTop(m.Top).
			WithMarginBottom(m.Bottom).
			WithMarginLeft(m.Left).
			WithMarginRight(m.Right).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to print pdf: %w", err)
		}
		*out = data
		return nil
	})
}

// MarginInches converts CSS pixel margins to inches
func MarginInches(m port.Margin) port.Margin {
	return port.Margin{
		Top:    m.Top / pixelsPerInch,
		Bottom: m.Bottom / pixelsPerInch,
		Left:   m.Left / pixelsPerInch,
		Right:  m.Right / pixelsPerInch,
	}
}
