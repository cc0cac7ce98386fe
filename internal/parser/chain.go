package parser

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/maltedev/storefront-sku-lookup/internal/browser"
)

// Reader pulls a raw value out of a matched element.
type Reader func(ctx context.Context, el browser.Element) (string, error)

// ReadText reads the element's text content.
func ReadText(ctx context.Context, el browser.Element) (string, error) {
	return el.Text(ctx)
}

// ReadAttr returns a Reader for the named attribute.
func ReadAttr(name string) Reader {
	return func(ctx context.Context, el browser.Element) (string, error) {
		return el.Attribute(ctx, name)
	}
}

type Strategy struct {
	Selector string
	Read     Reader
}

// Chain is an ordered list of strategies tried until one yields a value.
type Chain []Strategy

// TextChain builds a chain reading the text of each selector in order.
func TextChain(selectors ...string) Chain {
	c := make(Chain, 0, len(selectors))
	for _, s := range selectors {
		c = append(c, Strategy{Selector: s, Read: ReadText})
	}
	return c
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// Extract returns the first non-empty trimmed value produced by the chain, or
// "" when no strategy yields one. A strategy that errors is skipped.
func (c Chain) Extract(ctx context.Context, page browser.Page, logger *slog.Logger) string {
	if logger == nil {
		logger = discard
	}

	for _, s := range c {
		el, err := page.QueryOne(ctx, s.Selector)
		if err != nil {
			logger.Debug("selector lookup failed", "selector", s.Selector, "error", err)
			continue
		}
		if el == nil {
			continue
		}

		read := s.Read
		if read == nil {
			read = ReadText
		}

		value, err := read(ctx, el)
		if err != nil {
			logger.Debug("selector read failed", "selector", s.Selector, "error", err)
			continue
		}

		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}

	return ""
}

// ExtractText runs a text chain over selectors.
func ExtractText(ctx context.Context, page browser.Page, selectors ...string) string {
	return TextChain(selectors...).Extract(ctx, page, nil)
}
