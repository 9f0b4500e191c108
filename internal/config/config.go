package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Marketplace MarketplaceConfig `mapstructure:"marketplace"`
	Throttle    ThrottleConfig    `mapstructure:"throttle"`
	Companion   CompanionConfig   `mapstructure:"companion"`
	Search      SearchConfig      `mapstructure:"search"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// MarketplaceConfig holds listing feed configuration
type MarketplaceConfig struct {
	BaseURL           string        `mapstructure:"base_url" validate:"required,url"`
	AppID             string        `mapstructure:"app_id" validate:"required"`
	ContextID         string        `mapstructure:"context_id" validate:"required"`
	Country           string        `mapstructure:"country" validate:"required"`
	Language          string        `mapstructure:"language" validate:"required"`
	Currency          int           `mapstructure:"currency" validate:"min=1"`
	PageSize          int           `mapstructure:"page_size" validate:"min=1,max=100"`
	MaxPage           int           `mapstructure:"max_page" validate:"min=0"`
	EmptyRetryLimit   int           `mapstructure:"empty_retry_limit" validate:"min=1"`
	BaselineCount     int           `mapstructure:"baseline_count" validate:"min=1"`
	PriceCeilingRatio float64       `mapstructure:"price_ceiling_ratio" validate:"gt=0"`
	Timeout           time.Duration `mapstructure:"timeout"`
	ProxyFile         string        `mapstructure:"proxy_file"`
}

// ThrottleConfig holds the request pacing shared by every scan task
type ThrottleConfig struct {
	RequestDelay    time.Duration `mapstructure:"request_delay"`
	GlobalDelay     time.Duration `mapstructure:"global_delay"`
	MinInterval     time.Duration `mapstructure:"min_interval"`
	FailureCooldown time.Duration `mapstructure:"failure_cooldown"`
	LaunchDelay     time.Duration `mapstructure:"launch_delay"`
	PassDelay       time.Duration `mapstructure:"pass_delay"`
}

// CompanionConfig holds the local pattern lookup service configuration
type CompanionConfig struct {
	URL           string        `mapstructure:"url" validate:"required,url"`
	PreDelay      time.Duration `mapstructure:"pre_delay"`
	ErrorCooldown time.Duration `mapstructure:"error_cooldown"`
	Timeout       time.Duration `mapstructure:"timeout"`
	ShareGate     bool          `mapstructure:"share_gate"`
}

// SearchConfig holds target list and filter thresholds
type SearchConfig struct {
	ItemsFile      string           `mapstructure:"items_file" validate:"required"`
	ExpandTargets  bool             `mapstructure:"expand_targets"`
	Qualities      []string         `mapstructure:"qualities"`
	StatTrakPrefix string           `mapstructure:"stattrak_prefix"`
	Pattern        PatternConfig    `mapstructure:"pattern"`
	Decoration     DecorationConfig `mapstructure:"decoration"`
}

// PatternConfig holds pattern filter thresholds
type PatternConfig struct {
	MaxOverprice float64 `mapstructure:"max_overprice"`
}

// DecorationConfig holds decoration filter thresholds. Zero item price bounds disable them.
type DecorationConfig struct {
	MaxOverprice  float64 `mapstructure:"max_overprice"`
	MinItemPrice  float64 `mapstructure:"min_item_price" validate:"gte=0"`
	MaxItemPrice  float64 `mapstructure:"max_item_price" validate:"gte=0"`
	MinTotalValue float64 `mapstructure:"min_total_value" validate:"gte=0"`
}

// CacheConfig holds Redis price cache configuration
type CacheConfig struct {
	URL       string        `mapstructure:"url" validate:"required"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// CatalogConfig holds decoration price crawler configuration
type CatalogConfig struct {
	DBPath         string        `mapstructure:"db_path" validate:"required"`
	Collections    []string      `mapstructure:"collections"`
	MinPrice       float64       `mapstructure:"min_price" validate:"gte=0"`
	SellerFeeRatio float64       `mapstructure:"seller_fee_ratio" validate:"gt=0,lte=1"`
	PageSize       int           `mapstructure:"page_size" validate:"min=1,max=100"`
	LaunchDelay    time.Duration `mapstructure:"launch_delay"`
	MaxAge         time.Duration `mapstructure:"max_age"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	Enabled  bool   `mapstructure:"enabled"`
}

// MetricsConfig holds Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// Load reads configuration from file and environment variables.
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("SKINSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Secrets commonly live in .env under their bare names.
	_ = v.BindEnv("telegram.bot_token", "SKINSCOUT_TELEGRAM_BOT_TOKEN", "BOT_TOKEN")
	_ = v.BindEnv("telegram.chat_id", "SKINSCOUT_TELEGRAM_CHAT_ID", "CHAT_ID")
	_ = v.BindEnv("cache.url", "SKINSCOUT_CACHE_URL", "REDIS_URL")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("marketplace.base_url", "https://steamcommunity.com/market")
	v.SetDefault("marketplace.app_id", "730")
	v.SetDefault("marketplace.context_id", "2")
	v.SetDefault("marketplace.country", "NL")
	v.SetDefault("marketplace.language", "english")
	v.SetDefault("marketplace.currency", 1)
	v.SetDefault("marketplace.page_size", 10)
	v.SetDefault("marketplace.max_page", 3)
	v.SetDefault("marketplace.empty_retry_limit", 5)
	v.SetDefault("marketplace.baseline_count", 3)
	v.SetDefault("marketplace.price_ceiling_ratio", 1.5)
	v.SetDefault("marketplace.timeout", "30s")
	v.SetDefault("marketplace.proxy_file", "")

	v.SetDefault("throttle.request_delay", "500ms")
	v.SetDefault("throttle.global_delay", "1s")
	v.SetDefault("throttle.min_interval", "500ms")
	v.SetDefault("throttle.failure_cooldown", "15s")
	v.SetDefault("throttle.launch_delay", "500ms")
	v.SetDefault("throttle.pass_delay", "5s")

	v.SetDefault("companion.url", "http://localhost:8001")
	v.SetDefault("companion.pre_delay", "1500ms")
	v.SetDefault("companion.error_cooldown", "10s")
	v.SetDefault("companion.timeout", "20s")
	v.SetDefault("companion.share_gate", true)

	v.SetDefault("search.items_file", "./data/items.txt")
	v.SetDefault("search.expand_targets", true)
	v.SetDefault("search.qualities", []string{
		"(Field-Tested)",
		"(Minimal Wear)",
		"(Factory New)",
		"(Well-Worn)",
		"(Battle-Scarred)",
	})
	v.SetDefault("search.stattrak_prefix", "StatTrak™ ")
	v.SetDefault("search.pattern.max_overprice", 15.0)
	v.SetDefault("search.decoration.max_overprice", 6.0)
	v.SetDefault("search.decoration.min_item_price", 0.0)
	v.SetDefault("search.decoration.max_item_price", 0.0)
	v.SetDefault("search.decoration.min_total_value", 0.0)

	v.SetDefault("cache.url", "redis://localhost:6379/0")
	v.SetDefault("cache.key_prefix", "decoration:")
	v.SetDefault("cache.ttl", "72h")
	v.SetDefault("cache.timeout", "5s")

	v.SetDefault("catalog.db_path", "./data/catalog.db")
	v.SetDefault("catalog.collections", []string{
		"Katowice 2014",
		"DreamHack 2014",
		"Cologne 2014",
		"Katowice 2015",
		"Cologne 2015",
		"Cluj-Napoca 2015",
		"Columbus 2016",
		"Cologne 2016",
		"Atlanta 2017",
		"Krakow 2017",
		"Boston 2018",
		"London 2018",
		"Katowice 2019",
		"Berlin 2019",
		"Sticker | Battle Scarred",
		"Sticker | Stockholm 2021",
		"Sticker | Antwerp 2022",
		"Sticker | Rio 2022",
		"Sticker | Paris 2023",
	})
	v.SetDefault("catalog.min_price", 2.5)
	v.SetDefault("catalog.seller_fee_ratio", 0.9)
	v.SetDefault("catalog.page_size", 100)
	v.SetDefault("catalog.launch_delay", "1500ms")
	v.SetDefault("catalog.max_age", "168h")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", ":9090")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return formatValidationError(err)
	}

	if c.Marketplace.Timeout < time.Second {
		return fmt.Errorf("marketplace.timeout must be at least 1 second")
	}
	if c.Companion.Timeout < time.Second {
		return fmt.Errorf("companion.timeout must be at least 1 second")
	}

	durations := map[string]time.Duration{
		"throttle.request_delay":    c.Throttle.RequestDelay,
		"throttle.global_delay":     c.Throttle.GlobalDelay,
		"throttle.min_interval":     c.Throttle.MinInterval,
		"throttle.failure_cooldown": c.Throttle.FailureCooldown,
		"throttle.launch_delay":     c.Throttle.LaunchDelay,
		"throttle.pass_delay":       c.Throttle.PassDelay,
		"companion.pre_delay":       c.Companion.PreDelay,
		"companion.error_cooldown":  c.Companion.ErrorCooldown,
		"catalog.launch_delay":      c.Catalog.LaunchDelay,
	}
	for key, d := range durations {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", key)
		}
	}

	if c.Throttle.PassDelay <= 0 {
		return fmt.Errorf("throttle.pass_delay must be positive")
	}

	if c.Search.ExpandTargets && len(c.Search.Qualities) == 0 {
		return fmt.Errorf("search.qualities must contain at least one quality when expand_targets is on")
	}
	d := c.Search.Decoration
	if d.MaxItemPrice > 0 && d.MaxItemPrice < d.MinItemPrice {
		return fmt.Errorf("search.decoration.max_item_price must not be below min_item_price")
	}

	if c.Cache.TTL < time.Minute {
		return fmt.Errorf("cache.ttl must be at least 1 minute")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return fmt.Errorf("metrics.listen_addr is required when metrics are enabled")
	}

	return nil
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}
	messages := make([]string, 0, len(validationErrs))
	for _, e := range validationErrs {
		messages = append(messages, fmt.Sprintf("%s failed %s (value: '%v')", e.Namespace(), e.Tag(), e.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(messages, "; "))
}
