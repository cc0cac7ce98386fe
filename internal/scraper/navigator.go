package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/maltedev/storefront-sku-lookup/internal/browser"
	"github.com/maltedev/storefront-sku-lookup/internal/ratelimit"
)

// Navigator loads storefront pages: it waits on the pacer, navigates, then
// waits for the ready selector.
type Navigator struct {
	pacer         ratelimit.RateLimiter
	timeout       time.Duration
	readySelector string
}

func NewNavigator(pacer ratelimit.RateLimiter, timeout time.Duration, readySelector string) *Navigator {
	return &Navigator{pacer: pacer, timeout: timeout, readySelector: readySelector}
}

func (n *Navigator) Open(ctx context.Context, page browser.Page, url string) error {
	if n.pacer != nil {
		if err := n.pacer.Wait(ctx); err != nil {
			return fmt.Errorf("pacing before %s: %w", url, err)
		}
	}

	err := page.Navigate(ctx, url, n.timeout)
	if fb, ok := n.pacer.(ratelimit.Feedback); ok {
		if err != nil {
			fb.RecordError()
		} else {
			fb.RecordSuccess()
		}
	}
	if err != nil {
		return err
	}

	if n.readySelector != "" {
		if _, err := page.WaitForSelector(ctx, n.readySelector, n.timeout); err != nil {
			return fmt.Errorf("page %s not ready: %w", url, err)
		}
	}

	return nil
}
