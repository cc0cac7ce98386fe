package parser

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/maltedev/storefront-sku-lookup/internal/policy"
	"github.com/stretchr/testify/assert"
)

const origin = "https://spinetohogar.com"

func newTestParser() *StorefrontParser {
	return NewStorefrontParser(policy.Default(), origin, 50*time.Millisecond, slog.Default())
}

func TestExtractSKU(t *testing.T) {
	p := newTestParser()
	ctx := context.Background()

	tests := []struct {
		name string
		html string
		want string
	}{
		{"label stripped", `<span class="product__sku">SKU: N55028</span>`, "N55028"},
		{"most specific selector first", `<div class="sku">OTHER</div><span class="product__sku fs-body-50 t-opacity-70">SKU:AB-1</span>`, "AB-1"},
		{"falls through to later selector", `<div class="product__sku">  SKU: Z9 </div>`, "Z9"},
		{"label only", `<span class="product__sku">SKU:</span>`, ""},
		{"absent", `<p>nothing</p>`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.ExtractSKU(ctx, newFlakyPage(t, tt.html)))
		})
	}
}

func TestExtractPrice(t *testing.T) {
	p := newTestParser()
	ctx := context.Background()
	meta := `<meta property="og:price:amount" content="120.00">`

	tests := []struct {
		name     string
		html     string
		failWait bool
		want     string
	}{
		{"rendered price", `<span class="mw-price"> RD$ 1.250,50 </span>` + meta, false, "RD$ 1.250,50"},
		{"zero price falls back to meta", `<span class="mw-price">RD$ 0,00</span>` + meta, false, "US$ 120.00"},
		{"zero price with trailing space still rejected", `<span class="mw-price">RD$ 0,00  </span>` + meta, false, "US$ 120.00"},
		{"empty rendered price falls back", `<span class="mw-price"> </span>` + meta, false, "US$ 120.00"},
		{"missing rendered price falls back", meta, false, "US$ 120.00"},
		{"wait error falls back", `<span class="mw-price">RD$ 10,50</span>` + meta, true, "US$ 120.00"},
		{"no tier succeeds", `<span class="mw-price">0,00</span>`, false, "Precio no disponible"},
		{"empty meta content", `<meta property="og:price:amount" content="">`, false, "Precio no disponible"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := newFlakyPage(t, tt.html)
			page.failWait = tt.failWait
			assert.Equal(t, tt.want, p.ExtractPrice(ctx, page))
		})
	}
}

func TestExtractImageURL(t *testing.T) {
	p := newTestParser()
	ctx := context.Background()

	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "protocol relative",
			html: `<img src="//spinetohogar.com/cdn/shop/files/a.jpg">`,
			want: "https://spinetohogar.com/cdn/shop/files/a.jpg",
		},
		{
			name: "root relative",
			html: `<img src="/cdn/shop/files/b.jpg">`,
			want: "https://spinetohogar.com/cdn/shop/files/b.jpg",
		},
		{
			name: "absolute unchanged",
			html: `<img src="https://img.example.com/cdn/c.jpg">`,
			want: "https://img.example.com/cdn/c.jpg",
		},
		{
			name: "denylisted images skipped in document order",
			html: `<img src="/cdn/shop/Logo.png"><img src="/static/x.jpg"><img src="/cdn/Navidad-2024.jpg">` +
				`<img src="/cdn/top-banner.jpg"><img src="/cdn/shop/files/real.jpg"><img src="/cdn/shop/files/second.jpg">`,
			want: "https://spinetohogar.com/cdn/shop/files/real.jpg",
		},
		{
			name: "none qualifies",
			html: `<img src="/images/x.jpg"><img src="/cdn/Logo.svg"><img>`,
			want: "No disponible",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.ExtractImageURL(ctx, newFlakyPage(t, tt.html)))
		})
	}
}

func TestExtractImageURLLookupError(t *testing.T) {
	page := newFlakyPage(t, `<img src="/cdn/a.jpg">`)
	page.failQuery["img"] = true

	assert.Equal(t, "No disponible", newTestParser().ExtractImageURL(context.Background(), page))
}

func TestExtractNameAndBrand(t *testing.T) {
	p := newTestParser()
	ctx := context.Background()

	page := newFlakyPage(t, `<h1>Generic</h1><h1 class="product__title"> Sofá Milán </h1><a class="product__vendor">Spineto</a>`)
	assert.Equal(t, "Sofá Milán", p.ExtractName(ctx, page))
	assert.Equal(t, "Spineto", p.ExtractBrand(ctx, page))

	empty := newFlakyPage(t, `<p>nothing here</p>`)
	assert.Equal(t, "Nombre no disponible", p.ExtractName(ctx, empty))
	assert.Equal(t, "", p.ExtractBrand(ctx, empty))

	broken := newFlakyPage(t, `<h1 class="product__title">Broken</h1><h1 class="product-title">Fallback</h1>`)
	broken.failQuery["h1.product__title"] = true
	assert.Equal(t, "Fallback", p.ExtractName(ctx, broken))
}

func TestReadProduct(t *testing.T) {
	p := newTestParser()
	ctx := context.Background()
	url := origin + "/products/silla-oslo"

	html := `<h1 class="product__title">Silla Oslo</h1>
		<div class="product__vendor">Nordik</div>
		<span class="product__sku">SKU: N55028</span>
		<span class="mw-price">RD$ 7.500,00</span>
		<img src="//spinetohogar.com/cdn/shop/files/oslo.jpg">`

	record := p.ReadProduct(ctx, newFlakyPage(t, html), url, " n55028 ")
	assert.Equal(t, url, record.SourceURL)
	assert.Equal(t, "Silla Oslo", record.Name)
	assert.Equal(t, "Nordik", record.Brand)
	assert.Equal(t, "N55028", record.SKU)
	assert.Equal(t, "https://spinetohogar.com/cdn/shop/files/oslo.jpg", record.ImageURL)
	assert.True(t, record.Matched)
	// "7.500,00" ends in "0,00" and there is no meta fallback.
	assert.Equal(t, "Precio no disponible", record.Price)

	other := p.ReadProduct(ctx, newFlakyPage(t, html), url, "N55029")
	assert.False(t, other.Matched)
}

func TestReadProductWithoutSKUNeverMatches(t *testing.T) {
	p := newTestParser()
	page := newFlakyPage(t, `<h1>Lámpara</h1>`)

	for _, id := range []string{"", "   ", "SKU no disponible"} {
		record := p.ReadProduct(context.Background(), page, origin+"/products/lampara", id)
		assert.False(t, record.Matched, "identifier %q", id)
		assert.Equal(t, "SKU no disponible", record.SKU)
	}
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{"//cdn.example.com/a.jpg", "https://cdn.example.com/a.jpg"},
		{"/cdn/a.jpg", "https://spinetohogar.com/cdn/a.jpg"},
		{"https://x.test/a.jpg", "https://x.test/a.jpg"},
		{"relative/a.jpg", "relative/a.jpg"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ResolveURL(origin+"/", tt.ref), tt.ref)
	}
}
