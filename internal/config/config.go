package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Storefront StorefrontConfig `mapstructure:"storefront"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Crawl      CrawlConfig      `mapstructure:"crawl"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Policy     PolicyConfig     `mapstructure:"policy"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port" validate:"required,numeric"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	MaxBatchSize    int           `mapstructure:"max_batch_size" validate:"min=1"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type StorefrontConfig struct {
	Origin    string `mapstructure:"origin" validate:"required,url"`
	SearchURL string `mapstructure:"search_url" validate:"required,url"`
}

type BrowserConfig struct {
	Engine          string        `mapstructure:"engine" validate:"oneof=playwright chromedp static"`
	Headless        bool          `mapstructure:"headless"`
	Timeout         time.Duration `mapstructure:"timeout" validate:"gt=0"`
	SelectorTimeout time.Duration `mapstructure:"selector_timeout" validate:"gt=0"`
	ViewportWidth   int           `mapstructure:"viewport_width" validate:"min=1"`
	ViewportHeight  int           `mapstructure:"viewport_height" validate:"min=1"`
	AcceptLanguage  string        `mapstructure:"accept_language"`
	TimezoneID      string        `mapstructure:"timezone"`
	Locale          string        `mapstructure:"locale"`
	UserAgent       string        `mapstructure:"user_agent"`
	ExecutablePath  string        `mapstructure:"executable_path"`
}

type CrawlConfig struct {
	Workers  int           `mapstructure:"workers" validate:"min=1,max=16"`
	DelayMin time.Duration `mapstructure:"delay_min" validate:"gte=0"`
	DelayMax time.Duration `mapstructure:"delay_max" validate:"gte=0"`
	Pacer    string        `mapstructure:"pacer" validate:"oneof=jitter adaptive token"`
}

type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Backend  string        `mapstructure:"backend" validate:"oneof=memory redis"`
	Requests int           `mapstructure:"requests" validate:"min=1"`
	Window   time.Duration `mapstructure:"window" validate:"gt=0"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

type PolicyConfig struct {
	File string `mapstructure:"file"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// Load reads configuration from defaults, an optional YAML file and the
// environment, in increasing precedence. Environment variables use the
// upper-cased key with dots replaced by underscores (SERVER_PORT,
// BROWSER_HEADLESS). An empty path searches ./config.yaml and
// ./config/config.yaml and tolerates their absence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Minute)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.request_timeout", 10*time.Minute)
	v.SetDefault("server.max_batch_size", 50)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("storefront.origin", "https://spinetohogar.com")
	v.SetDefault("storefront.search_url", "https://spinetohogar.com/search?options%5Bprefix%5D=last&q=")

	v.SetDefault("browser.engine", "playwright")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.timeout", 30*time.Second)
	v.SetDefault("browser.selector_timeout", 8*time.Second)
	v.SetDefault("browser.viewport_width", 1920)
	v.SetDefault("browser.viewport_height", 1080)
	v.SetDefault("browser.accept_language", "es-419,es;q=0.9,en;q=0.8")
	v.SetDefault("browser.timezone", "")
	v.SetDefault("browser.locale", "es-419")
	v.SetDefault("browser.user_agent", defaultUserAgent)
	v.SetDefault("browser.executable_path", "")

	v.SetDefault("crawl.workers", 1)
	v.SetDefault("crawl.delay_min", time.Duration(0))
	v.SetDefault("crawl.delay_max", time.Duration(0))
	v.SetDefault("crawl.pacer", "jitter")

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.backend", "memory")
	v.SetDefault("ratelimit.requests", 30)
	v.SetDefault("ratelimit.window", time.Minute)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("policy.file", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Crawl.DelayMin > c.Crawl.DelayMax {
		return fmt.Errorf("CRAWL_DELAY_MIN cannot be greater than CRAWL_DELAY_MAX")
	}

	if c.RateLimit.Enabled && c.RateLimit.Backend == "redis" && c.Redis.Addr == "" {
		return fmt.Errorf("REDIS_ADDR is required when RATELIMIT_BACKEND is redis")
	}

	return nil
}
