package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Default capture parameters for the usage report.
// These should match the layout used by the /report page.
const (
	DefaultWidth      = 1240
	DefaultHeight     = 1754
	DefaultTimeoutSec = 30

	readySelector = `[data-ready="true"]`
)

// Format selects the rendered output.
type Format int

const (
	FormatPDF Format = iota
	FormatPNG
)

// ErrNoSource is returned when neither HTML nor URL is given.
var ErrNoSource = errors.New("capture: HTML or URL is required")

// Options defines parameters for a Chromium-based report rendering.
type Options struct {
	// HTML, if set, is loaded directly into a blank page.
	HTML []byte
	// URL is navigated to when HTML is empty, e.g.
	// "http://127.0.0.1:8080/report?room=all".
	URL string

	Format Format

	// Width and Height are the viewport dimensions in pixels. If zero,
	// DefaultWidth / DefaultHeight are used.
	Width  int
	Height int

	// Timeout bounds the entire capture operation. If zero, a sane default
	// (DefaultTimeoutSec) is used.
	Timeout time.Duration
}

func (o *Options) normalize() error {
	if len(o.HTML) == 0 && o.URL == "" {
		return ErrNoSource
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = time.Duration(DefaultTimeoutSec) * time.Second
	}
	return nil
}

// Render launches a headless Chromium instance via chromedp, loads the
// report, waits for the DOM to signal that rendering is complete, and
// returns the page as PDF or PNG bytes.
//
// Rendering-complete condition:
//   - The report root element exposes a data-ready attribute:
//     <main data-ready="true" ...>
//   - Render waits until `[data-ready="true"]` is visible.
func Render(parentCtx context.Context, opts Options) ([]byte, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var out []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		load(opts),
		chromedp.WaitVisible(readySelector, chromedp.ByQuery),
	}
	switch opts.Format {
	case FormatPNG:
		tasks = append(tasks, chromedp.FullScreenshot(&out, 100))
	default:
		tasks = append(tasks, printPDF(&out))
	}

	if err := chromedp.Run(ctx, tasks); err != nil {
		return nil, fmt.Errorf("capture: chromedp run failed: %w", err)
	}
	return out, nil
}

func load(opts Options) chromedp.Action {
	if len(opts.HTML) == 0 {
		return chromedp.Navigate(opts.URL)
	}
	html := string(opts.HTML)
	return chromedp.Tasks{
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
	}
}

func printPDF(out *[]byte) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		buf, _, err := page.PrintToPDF().
			WithPrintBackground(true).
			WithPreferCSSPageSize(true).
			Do(ctx)
		if err != nil {
			return err
		}
		*out = buf
		return nil
	})
}

// Renderer renders report HTML to PDF with fixed options.
type Renderer struct {
	Timeout time.Duration
}

// RenderPDF renders html to a PDF document.
func (r Renderer) RenderPDF(ctx context.Context, html []byte) ([]byte, error) {
	return Render(ctx, Options{HTML: html, Format: FormatPDF, Timeout: r.Timeout})
}
