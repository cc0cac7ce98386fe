// Package policy holds the storefront-specific extraction rules: selector
// priority lists, price validation, image denylist and the placeholder strings
// returned when a field cannot be read. The defaults describe the current
// markup of spinetohogar.com; a YAML file can override any field.
package policy

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy defines every markup assumption the extractors rely on.
type Policy struct {
	// Selector priority lists, most specific first.
	NameSelectors  []string `yaml:"name_selectors"`
	BrandSelectors []string `yaml:"brand_selectors"`
	SKUSelectors   []string `yaml:"sku_selectors"`

	// SKULabel is stripped from the matched SKU text.
	SKULabel string `yaml:"sku_label"`

	// PriceSelector is awaited on the product page; its text is rejected
	// when it ends with ZeroPriceSuffix (the storefront renders "0,00"
	// while the real price is loading).
	PriceSelector   string `yaml:"price_selector"`
	ZeroPriceSuffix string `yaml:"zero_price_suffix"`

	// MetaPriceSelector and MetaPriceFormat drive the fallback price tier.
	MetaPriceSelector string `yaml:"meta_price_selector"`
	MetaPriceFormat   string `yaml:"meta_price_format"`

	// ImageCDNMarker must appear in an image src; any ImageDenylist token
	// disqualifies it (logos, seasonal banners).
	ImageCDNMarker string   `yaml:"image_cdn_marker"`
	ImageDenylist  []string `yaml:"image_denylist"`

	// ProductLinkSelector enumerates result links on the search page and
	// ProductPathMarker filters them down to product pages.
	ProductLinkSelector string `yaml:"product_link_selector"`
	ProductPathMarker   string `yaml:"product_path_marker"`

	// ReadySelector is awaited after every navigation.
	ReadySelector string `yaml:"ready_selector"`

	Placeholders Placeholders `yaml:"placeholders"`
	Messages     Messages     `yaml:"messages"`
}

// Placeholders replace fields that could not be extracted.
type Placeholders struct {
	Name  string `yaml:"name"`
	Brand string `yaml:"brand"`
	SKU   string `yaml:"sku"`
	Price string `yaml:"price"`
	Image string `yaml:"image"`
}

// Messages are returned to callers for not-found outcomes.
type Messages struct {
	NoResults string `yaml:"no_results"`
	NoMatch   string `yaml:"no_match"`
}

// Default returns the policy for the storefront's current markup.
func Default() *Policy {
	return &Policy{
		NameSelectors: []string{
			"h1.product__title",
			"h1.product-title",
			"h1",
		},
		BrandSelectors: []string{
			"div.product__vendor",
			"a.product__vendor",
			".vendor",
		},
		SKUSelectors: []string{
			"span.product__sku.fs-body-50.t-opacity-70",
			"span.product__sku",
			".product-sku",
			".sku",
			"div.product__sku",
		},
		SKULabel:            "SKU:",
		PriceSelector:       "span.mw-price",
		ZeroPriceSuffix:     "0,00",
		MetaPriceSelector:   "meta[property='og:price:amount']",
		MetaPriceFormat:     "US$ %s",
		ImageCDNMarker:      "/cdn/",
		ImageDenylist:       []string{"Logo", "Navidad", "banner"},
		ProductLinkSelector: "a[href*='/products/']",
		ProductPathMarker:   "/products/",
		ReadySelector:       "body",
		Placeholders: Placeholders{
			Name:  "Nombre no disponible",
			Brand: "",
			SKU:   "SKU no disponible",
			Price: "Precio no disponible",
			Image: "No disponible",
		},
		Messages: Messages{
			NoResults: "Sin resultados",
			NoMatch:   "SKU no coincide en ningún producto",
		},
	}
}

// Load reads a YAML policy file on top of the defaults. Fields absent from the
// file keep their default value; lists present in the file replace the
// default list entirely.
func Load(path string) (*Policy, error) {
	p := Default()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy %s: %w", path, err)
	}

	return p, nil
}

// Validate checks that every extractor has something to work with.
func (p *Policy) Validate() error {
	var errs []error

	if len(p.NameSelectors) == 0 {
		errs = append(errs, errors.New("name_selectors must not be empty"))
	}
	if len(p.SKUSelectors) == 0 {
		errs = append(errs, errors.New("sku_selectors must not be empty"))
	}
	if p.PriceSelector == "" && p.MetaPriceSelector == "" {
		errs = append(errs, errors.New("price_selector or meta_price_selector is required"))
	}
	if p.ProductLinkSelector == "" {
		errs = append(errs, errors.New("product_link_selector is required"))
	}
	if p.ProductPathMarker == "" {
		errs = append(errs, errors.New("product_path_marker is required"))
	}
	if p.ImageCDNMarker == "" {
		errs = append(errs, errors.New("image_cdn_marker is required"))
	}

	return errors.Join(errs...)
}
