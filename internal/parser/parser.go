// Package parser reads product attributes from a rendered storefront page.
// Every extractor degrades to a placeholder instead of failing: a missing or
// broken selector is a soft miss.
package parser

import (
	"context"

	"github.com/maltedev/storefront-sku-lookup/internal/browser"
	"github.com/maltedev/storefront-sku-lookup/internal/models"
)

type Parser interface {
	ReadProduct(ctx context.Context, page browser.Page, url, identifier string) *models.ProductRecord
	ExtractName(ctx context.Context, page browser.Page) string
	ExtractBrand(ctx context.Context, page browser.Page) string
	ExtractSKU(ctx context.Context, page browser.Page) string
	ExtractPrice(ctx context.Context, page browser.Page) string
	ExtractImageURL(ctx context.Context, page browser.Page) string
}
