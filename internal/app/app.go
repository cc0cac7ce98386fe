// Package app assembles the lookup pipeline from configuration.
package app

import (
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/storefront-sku-lookup/internal/api"
	"github.com/maltedev/storefront-sku-lookup/internal/api/middleware"
	"github.com/maltedev/storefront-sku-lookup/internal/browser"
	"github.com/maltedev/storefront-sku-lookup/internal/config"
	"github.com/maltedev/storefront-sku-lookup/internal/parser"
	"github.com/maltedev/storefront-sku-lookup/internal/policy"
	"github.com/maltedev/storefront-sku-lookup/internal/ratelimit"
	"github.com/maltedev/storefront-sku-lookup/internal/scraper"
)

// BrowserOptions maps the browser section of the configuration onto engine
// options.
func BrowserOptions(cfg config.BrowserConfig) *browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = cfg.Headless
	opts.Timeout = cfg.Timeout
	opts.ViewportWidth = cfg.ViewportWidth
	opts.ViewportHeight = cfg.ViewportHeight
	opts.AcceptLanguage = cfg.AcceptLanguage
	opts.TimezoneID = cfg.TimezoneID
	opts.Locale = cfg.Locale
	opts.ExecutablePath = cfg.ExecutablePath
	if cfg.UserAgent != "" {
		opts.UserAgent = cfg.UserAgent
	}
	return opts
}

// NewCrawler wires launcher, pacer, search and parser for cfg.
func NewCrawler(cfg *config.Config, logger *slog.Logger) (*scraper.Crawler, error) {
	pol, err := policy.Load(cfg.Policy.File)
	if err != nil {
		return nil, err
	}

	launcher, err := browser.NewLauncher(cfg.Browser.Engine, BrowserOptions(cfg.Browser), logger)
	if err != nil {
		return nil, err
	}

	pacer, err := ratelimit.New(cfg.Crawl.Pacer, cfg.Crawl.DelayMin, cfg.Crawl.DelayMax)
	if err != nil {
		return nil, fmt.Errorf("invalid crawl pacing: %w", err)
	}

	nav := scraper.NewNavigator(pacer, cfg.Browser.Timeout, pol.ReadySelector)

	search, err := scraper.NewSearchScraper(cfg.Storefront.SearchURL, cfg.Storefront.Origin, pol, nav, logger)
	if err != nil {
		return nil, err
	}

	p := parser.NewStorefrontParser(pol, cfg.Storefront.Origin, cfg.Browser.SelectorTimeout, logger)

	return scraper.NewCrawler(launcher, search, p, scraper.Options{
		Workers:  cfg.Crawl.Workers,
		Messages: pol.Messages,
	}, logger), nil
}

// NewRateLimitStore returns the configured store and a function releasing it.
func NewRateLimitStore(cfg *config.Config, logger *slog.Logger) (middleware.RateLimitStore, func() error) {
	if cfg.RateLimit.Backend != "redis" {
		return middleware.NewMemoryRateLimitStore(), func() error { return nil }
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	return middleware.NewRedisRateLimitStore(client, "sku-lookup:ratelimit", logger), client.Close
}

// RouterConfig maps the server and rate limit sections onto router options.
func RouterConfig(cfg *config.Config) api.RouterConfig {
	rc := api.DefaultRouterConfig()
	rc.AllowedOrigins = cfg.Server.AllowedOrigins
	rc.RequestTimeout = cfg.Server.RequestTimeout
	rc.MaxBatchSize = cfg.Server.MaxBatchSize
	rc.EnableRateLimiting = cfg.RateLimit.Enabled
	rc.RateLimit = middleware.Limit{
		Requests: cfg.RateLimit.Requests,
		Window:   cfg.RateLimit.Window,
	}
	return rc
}
