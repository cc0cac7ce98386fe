// Package browser defines the automation boundary used by the scraper and the
// engines that implement it. Every engine exposes the same small surface:
// sessions open pages, pages navigate and query elements, elements expose text
// and attributes.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	ErrSelectorTimeout = errors.New("selector did not appear before timeout")
	ErrNotNavigated    = errors.New("page has no loaded document")
	ErrUnknownEngine   = errors.New("unknown browser engine")
)

// Engine names accepted by NewLauncher.
const (
	EnginePlaywright = "playwright"
	EngineChromedp   = "chromedp"
	EngineStatic     = "static"
)

// Element is a resolved DOM node.
type Element interface {
	Text(ctx context.Context) (string, error)
	// Attribute returns "" when the attribute is absent.
	Attribute(ctx context.Context, name string) (string, error)
}

// Page is a single tab. QueryOne returns a nil Element and a nil error when
// nothing matches.
type Page interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	QueryOne(ctx context.Context, selector string) (Element, error)
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (Element, error)
	Close() error
}

// Session owns a running browser and hands out isolated pages.
type Session interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Launcher starts sessions. A session is owned by exactly one caller.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ExecutablePath string
	ExtraHeaders   map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		AcceptLanguage: "es-419,es;q=0.9,en;q=0.8",
		Locale:         "es-419",
		ExtraHeaders: map[string]string{
			"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		},
	}
}

// NewLauncher returns the launcher for the named engine.
func NewLauncher(engine string, opts *Options, logger *slog.Logger) (Launcher, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}

	switch engine {
	case "", EnginePlaywright:
		return NewPlaywrightLauncher(opts, logger), nil
	case EngineChromedp:
		return NewChromedpLauncher(opts, logger), nil
	case EngineStatic:
		return NewStaticLauncher(NewCollyFetcher(opts)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, engine)
	}
}

func timeoutMillis(d time.Duration) float64 {
	return float64(d.Milliseconds())
}
