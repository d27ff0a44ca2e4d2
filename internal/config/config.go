// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/listing-crawler/internal/api"
	"github.com/JakeFAU/listing-crawler/internal/batch"
	"github.com/JakeFAU/listing-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/listing-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/listing-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/listing-crawler/internal/logging"
	"github.com/JakeFAU/listing-crawler/internal/progress"
	"github.com/JakeFAU/listing-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/listing-crawler/internal/storage/gcs"
	"github.com/JakeFAU/listing-crawler/internal/storage/local"
	"github.com/JakeFAU/listing-crawler/internal/storage/postgres"
)

// Page providers.
const (
	ProviderHeadless = "headless"
	ProviderStatic   = "static"
)

// Attempt isolation modes.
const (
	IsolationProcess   = "process"
	IsolationInProcess = "inprocess"
)

// Mirror backends for exported listing files.
const (
	StorageNone   = "none"
	StorageLocal  = "local"
	StorageGCS    = "gcs"
	StorageMemory = "memory"
)

// Config captures every configuration knob loaded via Viper.
type Config struct {
	Crawler   CrawlerConfig        `mapstructure:"crawler"`
	Pacing    crawler.PacingConfig `mapstructure:"pacing"`
	Selectors crawler.Selectors    `mapstructure:"selectors"`
	Browser   headless.Config      `mapstructure:"browser"`
	Static    collyfetcher.Config  `mapstructure:"static"`
	Batch     BatchConfig          `mapstructure:"batch"`
	Progress  progress.Config      `mapstructure:"progress"`
	Storage   StorageConfig        `mapstructure:"storage"`
	DB        DBConfig             `mapstructure:"db"`
	PubSub    PubSubConfig         `mapstructure:"pubsub"`
	Server    ServerConfig         `mapstructure:"server"`
	Logging   logging.Config       `mapstructure:"logging"`
}

// CrawlerConfig governs a single pagination crawl.
type CrawlerConfig struct {
	// Provider selects the page provider: headless or static.
	Provider          string        `mapstructure:"provider"`
	MaxPages          int           `mapstructure:"max_pages"`
	MinListings       int           `mapstructure:"min_listings"`
	ExtractShortPage  bool          `mapstructure:"extract_short_page"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	// Timezone is the IANA zone used for output file-name timestamps.
	Timezone string `mapstructure:"timezone"`
}

// BatchConfig governs the orchestrator.
type BatchConfig struct {
	Isolation   string            `mapstructure:"isolation"`
	OutputDir   string            `mapstructure:"output_dir"`
	Retry       batch.RetryPolicy `mapstructure:"retry"`
	GracePeriod time.Duration     `mapstructure:"grace_period"`
}

// StorageConfig selects where exported files are mirrored.
type StorageConfig struct {
	Backend string       `mapstructure:"backend"`
	Prefix  string       `mapstructure:"prefix"`
	Local   local.Config `mapstructure:"local"`
	GCS     gcs.Config   `mapstructure:"gcs"`
}

// DBConfig enables the Postgres listing store.
type DBConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	EnsureSchema    bool `mapstructure:"ensure_schema"`
	postgres.Config `mapstructure:",squash"`
}

// PubSubConfig enables outcome notifications.
type PubSubConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	pubsub.Config `mapstructure:",squash"`
}

// ServerConfig enables the progress HTTP server alongside a batch.
type ServerConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	api.Config `mapstructure:",squash"`
}

// Load builds a Config from defaults, an optional file and the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every key, including empty ones, so AutomaticEnv can
// override keys that have no file value.
func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.provider", ProviderHeadless)
	v.SetDefault("crawler.max_pages", crawler.DefaultMaxPages)
	v.SetDefault("crawler.min_listings", crawler.DefaultMinListings)
	v.SetDefault("crawler.extract_short_page", true)
	v.SetDefault("crawler.navigation_timeout", crawler.DefaultNavigationTimeout)
	v.SetDefault("crawler.timezone", "Local")

	pacing := crawler.DefaultPacing()
	v.SetDefault("pacing.wait.min", pacing.Wait.Min)
	v.SetDefault("pacing.wait.max", pacing.Wait.Max)
	v.SetDefault("pacing.scroll.min", pacing.Scroll.Min)
	v.SetDefault("pacing.scroll.max", pacing.Scroll.Max)
	v.SetDefault("pacing.scroll_wait.min", pacing.ScrollWait.Min)
	v.SetDefault("pacing.scroll_wait.max", pacing.ScrollWait.Max)
	v.SetDefault("pacing.mouse_wait.min", pacing.MouseWait.Min)
	v.SetDefault("pacing.mouse_wait.max", pacing.MouseWait.Max)

	sel := crawler.DefaultSelectors()
	v.SetDefault("selectors.listing_card", sel.ListingCard)
	v.SetDefault("selectors.address_line1", sel.AddressLine1)
	v.SetDefault("selectors.address_line2", sel.AddressLine2)
	v.SetDefault("selectors.agent_name", sel.AgentName)
	v.SetDefault("selectors.agency_name", sel.AgencyName)
	v.SetDefault("selectors.price", sel.Price)
	v.SetDefault("selectors.features_wrapper", sel.FeaturesWrapper)
	v.SetDefault("selectors.feature_text", sel.FeatureText)
	v.SetDefault("selectors.listing_card_tag", sel.ListingCardTag)
	v.SetDefault("selectors.lazy_image", sel.LazyImage)
	v.SetDefault("selectors.property_type", sel.PropertyType)
	v.SetDefault("selectors.alt_image_prefix", sel.AltImagePrefix)
	v.SetDefault("selectors.image_alt_attribute", sel.ImageAltAttribute)

	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.min_navigation_interval", 2*time.Second)

	v.SetDefault("static.user_agent", "")
	v.SetDefault("static.respect_robots", false)
	v.SetDefault("static.timeout", time.Duration(0))
	v.SetDefault("static.viewport_width", 1920)
	v.SetDefault("static.viewport_height", 1080)

	retry := batch.DefaultRetryPolicy()
	v.SetDefault("batch.isolation", IsolationProcess)
	v.SetDefault("batch.output_dir", "output")
	v.SetDefault("batch.retry.max_attempts", retry.MaxAttempts)
	v.SetDefault("batch.retry.base_delay", retry.BaseDelay)
	v.SetDefault("batch.retry.max_delay", retry.MaxDelay)
	v.SetDefault("batch.grace_period", 30*time.Second)

	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.max_batch_wait", 250*time.Millisecond)
	v.SetDefault("progress.sink_timeout", 5*time.Second)

	v.SetDefault("storage.backend", StorageNone)
	v.SetDefault("storage.prefix", "listings")
	v.SetDefault("storage.local.base_dir", "")
	v.SetDefault("storage.gcs.bucket", "")

	v.SetDefault("db.enabled", false)
	v.SetDefault("db.ensure_schema", true)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "listings")
	v.SetDefault("db.max_conns", 4)

	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "listing-outcomes")

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	switch c.Crawler.Provider {
	case ProviderHeadless, ProviderStatic:
	default:
		return fmt.Errorf("crawler.provider must be %q or %q", ProviderHeadless, ProviderStatic)
	}
	if c.Crawler.MaxPages <= 0 {
		return errors.New("crawler.max_pages must be > 0")
	}
	if c.Crawler.MinListings <= 0 {
		return errors.New("crawler.min_listings must be > 0")
	}
	if c.Crawler.NavigationTimeout <= 0 {
		return errors.New("crawler.navigation_timeout must be > 0")
	}
	if err := c.Pacing.Validate(); err != nil {
		return err
	}
	if err := c.Selectors.Validate(); err != nil {
		return err
	}
	switch c.Batch.Isolation {
	case IsolationProcess, IsolationInProcess:
	default:
		return fmt.Errorf("batch.isolation must be %q or %q", IsolationProcess, IsolationInProcess)
	}
	if c.Batch.Retry.MaxAttempts <= 0 {
		return errors.New("batch.retry.max_attempts must be > 0")
	}
	if c.Batch.Retry.BaseDelay < 0 || c.Batch.Retry.MaxDelay < 0 {
		return errors.New("batch.retry delays must be >= 0")
	}
	if strings.TrimSpace(c.Batch.OutputDir) == "" {
		return errors.New("batch.output_dir must be set")
	}
	switch c.Storage.Backend {
	case StorageNone, StorageMemory:
	case StorageLocal:
		if strings.TrimSpace(c.Storage.Local.BaseDir) == "" {
			return errors.New("storage.local.base_dir must be set when storage.backend is local")
		}
	case StorageGCS:
		if strings.TrimSpace(c.Storage.GCS.Bucket) == "" {
			return errors.New("storage.gcs.bucket must be set when storage.backend is gcs")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	if c.DB.Enabled && c.DB.DSN == "" {
		return errors.New("db.dsn must be set when db is enabled")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.Topic == "") {
		return errors.New("pubsub.project_id and pubsub.topic must be set when pubsub is enabled")
	}
	if c.Static.Timeout < 0 {
		return errors.New("static.timeout must be >= 0")
	}
	if c.Server.Enabled && c.Server.Addr == "" {
		return errors.New("server.addr must be set when server is enabled")
	}
	return nil
}

// CrawlConfig assembles the crawler settings.
func (c Config) CrawlConfig() crawler.Config {
	return crawler.Config{
		MaxPages:          c.Crawler.MaxPages,
		MinListings:       c.Crawler.MinListings,
		ExtractShortPage:  c.Crawler.ExtractShortPage,
		NavigationTimeout: c.Crawler.NavigationTimeout,
		Selectors:         c.Selectors,
	}
}

// StaticConfig returns the static provider settings. A zero static.timeout
// follows crawler.navigation_timeout.
func (c Config) StaticConfig() collyfetcher.Config {
	static := c.Static
	if static.Timeout <= 0 {
		static.Timeout = c.Crawler.NavigationTimeout
	}
	return static
}
