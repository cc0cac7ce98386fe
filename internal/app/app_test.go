package app

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/storefront-sku-lookup/internal/api/middleware"
	"github.com/maltedev/storefront-sku-lookup/internal/config"
)

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestBrowserOptions(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Browser.Headless = false
	cfg.Browser.Timeout = 12 * time.Second
	cfg.Browser.UserAgent = ""

	opts := BrowserOptions(cfg.Browser)
	assert.False(t, opts.Headless)
	assert.Equal(t, 12*time.Second, opts.Timeout)
	assert.NotEmpty(t, opts.UserAgent, "keeps the default user agent")
	assert.Equal(t, "es-419", opts.Locale)
}

func TestNewCrawler(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Browser.Engine = "static"

	c, err := NewCrawler(cfg, slog.Default())
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestNewCrawlerErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(t *testing.T, c *config.Config)
	}{
		{"unknown engine", func(_ *testing.T, c *config.Config) { c.Browser.Engine = "lynx" }},
		{"unknown pacer", func(_ *testing.T, c *config.Config) { c.Crawl.Pacer = "random" }},
		{"missing policy file", func(t *testing.T, c *config.Config) {
			c.Policy.File = filepath.Join(t.TempDir(), "missing.yaml")
		}},
		{"invalid policy file", func(t *testing.T, c *config.Config) {
			path := filepath.Join(t.TempDir(), "policy.yaml")
			require.NoError(t, os.WriteFile(path, []byte("sku_selectors: []\n"), 0o644))
			c.Policy.File = path
		}},
		{"bad origin", func(_ *testing.T, c *config.Config) { c.Storefront.Origin = "spinetohogar.com" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadConfig(t)
			tt.modify(t, cfg)
			_, err := NewCrawler(cfg, slog.Default())
			assert.Error(t, err)
		})
	}
}

func TestNewRateLimitStore(t *testing.T) {
	cfg := loadConfig(t)

	store, closeFn := NewRateLimitStore(cfg, slog.Default())
	assert.IsType(t, &middleware.MemoryRateLimitStore{}, store)
	assert.NoError(t, closeFn())

	cfg.RateLimit.Backend = "redis"
	store, closeFn = NewRateLimitStore(cfg, slog.Default())
	assert.IsType(t, &middleware.RedisRateLimitStore{}, store)
	assert.NoError(t, closeFn())
}

func TestRouterConfig(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Server.MaxBatchSize = 7
	cfg.RateLimit.Enabled = false

	rc := RouterConfig(cfg)
	assert.Equal(t, 7, rc.MaxBatchSize)
	assert.False(t, rc.EnableRateLimiting)
	assert.Equal(t, 30, rc.RateLimit.Requests)
	assert.Equal(t, time.Minute, rc.RateLimit.Window)
}
