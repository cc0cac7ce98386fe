// Package scraper resolves identifiers to product pages on the storefront and
// decides which page, if any, is the authoritative match.
package scraper

import (
	"context"
	"errors"

	"github.com/maltedev/storefront-sku-lookup/internal/models"
)

var (
	ErrSessionUnavailable = errors.New("browser session unavailable")
	ErrNotProcessed       = errors.New("identifier was not processed")
	ErrLookupPanic        = errors.New("lookup panicked")
)

// Scraper looks up a batch of identifiers. The returned slice has exactly one
// outcome per identifier, in input order.
type Scraper interface {
	LookupBatch(ctx context.Context, ids []string) ([]models.Outcome, error)
}

type batchIDKey struct{}

// WithBatchID attaches a batch identifier used to correlate log lines.
func WithBatchID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, batchIDKey{}, id)
}

// BatchID returns the batch identifier stored in ctx, if any.
func BatchID(ctx context.Context) string {
	id, _ := ctx.Value(batchIDKey{}).(string)
	return id
}
