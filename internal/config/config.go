package config

import (
	"fmt"
	"strings"
	"time"

	"cotton-extractor/internal/types"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Settings holds all configuration for the application
type Settings struct {
	Scrape      ScrapeSettings  `mapstructure:"scrape"`
	Storage     StorageSettings `mapstructure:"storage"`
	Cache       CacheSettings   `mapstructure:"cache"`
	Server      ServerSettings  `mapstructure:"server"`
	CatalogFile string          `mapstructure:"catalog_file"`
}

// ScrapeSettings holds crawl pacing and browser settings
type ScrapeSettings struct {
	Region         string        `mapstructure:"region"`
	Delay          time.Duration `mapstructure:"delay"`
	Jitter         time.Duration `mapstructure:"jitter"`
	Retries        int           `mapstructure:"retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	Timeout        time.Duration `mapstructure:"timeout"`
	WaitTimeout    time.Duration `mapstructure:"wait_timeout"`
	SettleDelay    time.Duration `mapstructure:"settle_delay"`
	Concurrent     bool          `mapstructure:"concurrent"`
	MaxConcurrent  int           `mapstructure:"max_concurrent"`
	MaxLinks       int           `mapstructure:"max_links"`
	MaxProducts    int           `mapstructure:"max_products"`
	Browser        string        `mapstructure:"browser"` // "chrome", "selenium" or "http"
	SeleniumURL    string        `mapstructure:"selenium_url"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// StorageSettings holds persistence settings. A sink is enabled when its
// address is set; the JSON file sink is always on.
type StorageSettings struct {
	OutputDir string        `mapstructure:"output_dir"`
	Redis     RedisSettings `mapstructure:"redis"`
	Mongo     MongoSettings `mapstructure:"mongo"`
	S3        S3Settings    `mapstructure:"s3"`
}

type RedisSettings struct {
	Addr   string `mapstructure:"addr"`
	DB     int    `mapstructure:"db"`
	Stream string `mapstructure:"stream"`
	MaxLen int64  `mapstructure:"max_len"`
}

type MongoSettings struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type S3Settings struct {
	Bucket string `mapstructure:"bucket"`
	Region string `mapstructure:"region"`
	Prefix string `mapstructure:"prefix"`
}

// CacheSettings holds verification cache settings
type CacheSettings struct {
	Type         string        `mapstructure:"type"` // "memory", "memcache" or "none"
	MemcacheAddr string        `mapstructure:"memcache_addr"`
	TTL          time.Duration `mapstructure:"ttl"`
}

// ServerSettings holds API server settings
type ServerSettings struct {
	Port string `mapstructure:"port"`
}

// Load loads settings from .env, an optional config file and COTTON_* environment variables.
// An empty path searches the default locations.
func Load(path string) (*Settings, error) {
	// Load .env file if present
	_ = godotenv.Load()

	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/cotton-extractor/")
	}

	v.SetEnvPrefix("COTTON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("server.port", "COTTON_SERVER_PORT", "API_PORT")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	settings.Scrape.Region = strings.ToUpper(settings.Scrape.Region)
	settings.Scrape.Browser = strings.ToLower(settings.Scrape.Browser)

	if err := validate(&settings); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &settings, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	defaults := types.DefaultConfig()

	v.SetDefault("scrape.region", "UK")
	v.SetDefault("scrape.delay", defaults.RequestDelay)
	v.SetDefault("scrape.jitter", defaults.Jitter)
	v.SetDefault("scrape.retries", defaults.MaxRetries)
	v.SetDefault("scrape.retry_base_delay", defaults.RetryBaseDelay)
	v.SetDefault("scrape.timeout", defaults.Timeout)
	v.SetDefault("scrape.wait_timeout", defaults.WaitTimeout)
	v.SetDefault("scrape.settle_delay", defaults.SettleDelay)
	v.SetDefault("scrape.concurrent", false)
	v.SetDefault("scrape.max_concurrent", defaults.MaxConcurrentRequests)
	v.SetDefault("scrape.max_links", defaults.MaxLinks)
	v.SetDefault("scrape.max_products", defaults.MaxProducts)
	v.SetDefault("scrape.browser", defaults.BrowserBackend)
	v.SetDefault("scrape.selenium_url", defaults.SeleniumURL)
	v.SetDefault("scrape.user_agent", defaults.UserAgent)

	v.SetDefault("storage.output_dir", "data")
	v.SetDefault("storage.redis.addr", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.stream", "cotton:products")
	v.SetDefault("storage.redis.max_len", 10000)
	v.SetDefault("storage.mongo.uri", "")
	v.SetDefault("storage.mongo.database", "cotton")
	v.SetDefault("storage.mongo.collection", "products")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.region", "eu-west-2")
	v.SetDefault("storage.s3.prefix", "batches")

	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.memcache_addr", "localhost:11211")
	v.SetDefault("cache.ttl", "168h")

	v.SetDefault("server.port", "8080")
	v.SetDefault("catalog_file", "")
}

// validate validates the configuration
func validate(settings *Settings) error {
	scrape := settings.Scrape

	switch scrape.Region {
	case "UK", "USA", "ALL":
	default:
		return fmt.Errorf("region must be UK, USA or ALL, got: %s", scrape.Region)
	}

	switch scrape.Browser {
	case "chrome", "selenium", "http":
	default:
		return fmt.Errorf("browser must be 'chrome', 'selenium' or 'http', got: %s", scrape.Browser)
	}

	if scrape.Browser == "selenium" && scrape.SeleniumURL == "" {
		return fmt.Errorf("selenium URL is required when browser is 'selenium'")
	}
	if scrape.Retries < 0 {
		return fmt.Errorf("retries must not be negative, got: %d", scrape.Retries)
	}
	if scrape.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got: %d", scrape.MaxConcurrent)
	}
	if scrape.MaxLinks < 1 || scrape.MaxProducts < 1 {
		return fmt.Errorf("max_links and max_products must be positive")
	}

	switch settings.Cache.Type {
	case "memory", "none":
	case "memcache":
		if settings.Cache.MemcacheAddr == "" {
			return fmt.Errorf("memcache address is required when cache type is 'memcache'")
		}
	default:
		return fmt.Errorf("cache type must be 'memory', 'memcache' or 'none', got: %s", settings.Cache.Type)
	}

	if settings.Storage.OutputDir == "" {
		return fmt.Errorf("storage output_dir is required")
	}

	return nil
}

// ScrapeConfig converts the scrape settings into the runtime extractor config
func (s *Settings) ScrapeConfig() *types.Config {
	config := types.DefaultConfig()
	config.RequestDelay = s.Scrape.Delay
	config.Jitter = s.Scrape.Jitter
	config.MaxRetries = s.Scrape.Retries
	config.RetryBaseDelay = s.Scrape.RetryBaseDelay
	config.Timeout = s.Scrape.Timeout
	config.WaitTimeout = s.Scrape.WaitTimeout
	config.SettleDelay = s.Scrape.SettleDelay
	config.Concurrent = s.Scrape.Concurrent
	config.MaxConcurrentRequests = s.Scrape.MaxConcurrent
	config.MaxLinks = s.Scrape.MaxLinks
	config.MaxProducts = s.Scrape.MaxProducts
	config.BrowserBackend = s.Scrape.Browser
	config.SeleniumURL = s.Scrape.SeleniumURL
	config.UserAgent = s.Scrape.UserAgent
	return config
}
