package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/maltedev/storefront-sku-lookup/internal/browser"
	"github.com/maltedev/storefront-sku-lookup/internal/policy"
)

// QueryPlaceholder marks where the identifier goes in a search URL template.
// Templates without it get the identifier appended.
const QueryPlaceholder = "{query}"

type SearchScraper struct {
	template string
	origin   *url.URL
	policy   *policy.Policy
	nav      *Navigator
	logger   *slog.Logger
}

func NewSearchScraper(template, origin string, p *policy.Policy, nav *Navigator, logger *slog.Logger) (*SearchScraper, error) {
	base, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("invalid storefront origin %q: %w", origin, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid storefront origin %q: scheme and host required", origin)
	}
	if template == "" {
		return nil, fmt.Errorf("search URL template is required")
	}
	if p == nil {
		p = policy.Default()
	}
	if nav == nil {
		nav = NewNavigator(nil, defaultNavigationTimeout, p.ReadySelector)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &SearchScraper{
		template: template,
		origin:   base,
		policy:   p,
		nav:      nav,
		logger:   logger.With("component", "search"),
	}, nil
}

var queryUnescaper = strings.NewReplacer("+", "%20", "%2F", "/")

// BuildSearchURL inserts the percent-encoded identifier into template. Spaces
// become %20 and '/' is left as is.
func BuildSearchURL(template, identifier string) string {
	q := queryUnescaper.Replace(url.QueryEscape(identifier))
	if strings.Contains(template, QueryPlaceholder) {
		return strings.ReplaceAll(template, QueryPlaceholder, q)
	}
	return template + q
}

func (s *SearchScraper) SearchURL(identifier string) string {
	return BuildSearchURL(s.template, identifier)
}

// ResolveCandidates runs the storefront search for identifier on page and
// returns the absolute product URLs found, deduplicated in first-seen order.
// An empty result is not an error.
func (s *SearchScraper) ResolveCandidates(ctx context.Context, page browser.Page, identifier string) ([]string, error) {
	searchURL := s.SearchURL(identifier)
	s.logger.Debug("searching", "identifier", identifier, "url", searchURL)

	if err := s.nav.Open(ctx, page, searchURL); err != nil {
		return nil, fmt.Errorf("search for %q failed: %w", identifier, err)
	}

	links, err := page.QueryAll(ctx, s.policy.ProductLinkSelector)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate results for %q: %w", identifier, err)
	}

	seen := make(map[string]bool, len(links))
	candidates := make([]string, 0, len(links))

	for _, link := range links {
		href, err := link.Attribute(ctx, "href")
		if err != nil {
			s.logger.Debug("result link unreadable", "error", err)
			continue
		}

		href = strings.TrimSpace(href)
		if href == "" || !strings.Contains(href, s.policy.ProductPathMarker) {
			continue
		}

		abs, ok := s.resolve(href)
		if !ok || seen[abs] {
			continue
		}

		seen[abs] = true
		candidates = append(candidates, abs)
	}

	s.logger.Debug("candidates resolved", "identifier", identifier, "count", len(candidates))

	return candidates, nil
}

func (s *SearchScraper) resolve(href string) (string, bool) {
	ref, err := url.Parse(href)
	if err != nil {
		s.logger.Debug("skipping malformed result link", "href", href, "error", err)
		return "", false
	}
	return s.origin.ResolveReference(ref).String(), true
}
