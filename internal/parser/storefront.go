package parser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/storefront-sku-lookup/internal/browser"
	"github.com/maltedev/storefront-sku-lookup/internal/models"
	"github.com/maltedev/storefront-sku-lookup/internal/policy"
	"github.com/maltedev/storefront-sku-lookup/internal/sku"
)

type StorefrontParser struct {
	policy          *policy.Policy
	origin          string
	selectorTimeout time.Duration
	logger          *slog.Logger

	nameChain  Chain
	brandChain Chain
	skuChain   Chain
}

func NewStorefrontParser(p *policy.Policy, origin string, selectorTimeout time.Duration, logger *slog.Logger) *StorefrontParser {
	if p == nil {
		p = policy.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &StorefrontParser{
		policy:          p,
		origin:          strings.TrimRight(origin, "/"),
		selectorTimeout: selectorTimeout,
		logger:          logger.With("component", "parser"),
		nameChain:       TextChain(p.NameSelectors...),
		brandChain:      TextChain(p.BrandSelectors...),
		skuChain:        TextChain(p.SKUSelectors...),
	}
}

// ReadProduct extracts every attribute from the loaded page. It never fails;
// unreadable fields carry their placeholder.
func (p *StorefrontParser) ReadProduct(ctx context.Context, page browser.Page, url, identifier string) *models.ProductRecord {
	rawSKU := p.ExtractSKU(ctx, page)

	record := &models.ProductRecord{
		SourceURL: url,
		Name:      p.ExtractName(ctx, page),
		Price:     p.ExtractPrice(ctx, page),
		Brand:     p.ExtractBrand(ctx, page),
		SKU:       rawSKU,
		ImageURL:  p.ExtractImageURL(ctx, page),
		Matched:   rawSKU != "" && sku.Equal(rawSKU, identifier),
		ScrapedAt: time.Now(),
	}

	if record.SKU == "" {
		record.SKU = p.policy.Placeholders.SKU
	}

	p.logger.Debug("product read",
		"url", url,
		"sku", record.SKU,
		"identifier", identifier,
		"matched", record.Matched,
	)

	return record
}

func (p *StorefrontParser) ExtractName(ctx context.Context, page browser.Page) string {
	if name := p.nameChain.Extract(ctx, page, p.logger); name != "" {
		return name
	}
	return p.policy.Placeholders.Name
}

func (p *StorefrontParser) ExtractBrand(ctx context.Context, page browser.Page) string {
	if brand := p.brandChain.Extract(ctx, page, p.logger); brand != "" {
		return brand
	}
	return p.policy.Placeholders.Brand
}

// ExtractSKU returns the page's SKU with its label stripped, or "" when none
// is present.
func (p *StorefrontParser) ExtractSKU(ctx context.Context, page browser.Page) string {
	raw := p.skuChain.Extract(ctx, page, p.logger)
	if raw == "" {
		return ""
	}
	if p.policy.SKULabel != "" {
		raw = strings.ReplaceAll(raw, p.policy.SKULabel, "")
	}
	return strings.TrimSpace(raw)
}

// ExtractPrice waits for the rendered price and rejects the zero value the
// storefront shows while loading, then falls back to the price meta tag.
func (p *StorefrontParser) ExtractPrice(ctx context.Context, page browser.Page) string {
	if price := p.renderedPrice(ctx, page); price != "" {
		return price
	}
	if price := p.metaPrice(ctx, page); price != "" {
		return price
	}
	return p.policy.Placeholders.Price
}

func (p *StorefrontParser) renderedPrice(ctx context.Context, page browser.Page) string {
	if p.policy.PriceSelector == "" {
		return ""
	}

	el, err := page.WaitForSelector(ctx, p.policy.PriceSelector, p.selectorTimeout)
	if err != nil {
		p.logger.Debug("rendered price unavailable", "error", err)
		return ""
	}

	text, err := el.Text(ctx)
	if err != nil {
		p.logger.Debug("rendered price unreadable", "error", err)
		return ""
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if p.policy.ZeroPriceSuffix != "" && strings.HasSuffix(text, p.policy.ZeroPriceSuffix) {
		p.logger.Debug("rendered price rejected", "price", text)
		return ""
	}

	return text
}

func (p *StorefrontParser) metaPrice(ctx context.Context, page browser.Page) string {
	if p.policy.MetaPriceSelector == "" {
		return ""
	}

	content := Chain{{Selector: p.policy.MetaPriceSelector, Read: ReadAttr("content")}}.Extract(ctx, page, p.logger)
	if content == "" {
		return ""
	}

	format := p.policy.MetaPriceFormat
	if format == "" {
		format = "%s"
	}
	return fmt.Sprintf(format, content)
}

// ExtractImageURL returns the first CDN-hosted image in document order that is
// not a logo or banner, as an absolute URL.
func (p *StorefrontParser) ExtractImageURL(ctx context.Context, page browser.Page) string {
	images, err := page.QueryAll(ctx, "img")
	if err != nil {
		p.logger.Debug("image lookup failed", "error", err)
		return p.policy.Placeholders.Image
	}

	for _, img := range images {
		src, err := img.Attribute(ctx, "src")
		if err != nil {
			p.logger.Debug("image src unreadable", "error", err)
			continue
		}
		if p.acceptImage(src) {
			return ResolveURL(p.origin, src)
		}
	}

	return p.policy.Placeholders.Image
}

func (p *StorefrontParser) acceptImage(src string) bool {
	if src == "" || !strings.Contains(src, p.policy.ImageCDNMarker) {
		return false
	}
	for _, token := range p.policy.ImageDenylist {
		if token != "" && strings.Contains(src, token) {
			return false
		}
	}
	return true
}

// ResolveURL makes a storefront reference absolute: protocol-relative gets
// https, root-relative gets the origin, anything else is returned as is.
func ResolveURL(origin, ref string) string {
	switch {
	case strings.HasPrefix(ref, "//"):
		return "https:" + ref
	case strings.HasPrefix(ref, "/"):
		return strings.TrimRight(origin, "/") + ref
	default:
		return ref
	}
}
