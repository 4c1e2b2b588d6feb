package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/DemidSergeev/notes-bot/core/database"
)

// TelegramConfig holds the bot transport settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT"`
}

// MarketConfig holds the notes marketplace settings.
type MarketConfig struct {
	// PriceRUB is the fixed price per note in whole rubles.
	PriceRUB int `yaml:"price_rub" envconfig:"MARKET_PRICE_RUB"`
	// PaymentDetails is the payment requisites text shown to buyers.
	PaymentDetails string `yaml:"payment_details" envconfig:"MARKET_PAYMENT_DETAILS"`
	AboutText      string `yaml:"about_text"`
	// WelcomeFile stores the /start message; admins rewrite it at runtime.
	WelcomeFile  string `yaml:"welcome_file" envconfig:"MARKET_WELCOME_FILE"`
	PendingDir   string `yaml:"pending_dir" envconfig:"MARKET_PENDING_DIR"`
	PublishedDir string `yaml:"published_dir" envconfig:"MARKET_PUBLISHED_DIR"`
	// CallbackTTLMinutes bounds the life of inline button tokens.
	CallbackTTLMinutes int `yaml:"callback_ttl_minutes" envconfig:"MARKET_CALLBACK_TTL_MINUTES"`
	// SessionIdleMinutes resets a stalled conversation after inactivity.
	SessionIdleMinutes int `yaml:"session_idle_minutes" envconfig:"MARKET_SESSION_IDLE_MINUTES"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the full bot configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Database  database.Config `yaml:"database"`
	Market    MarketConfig    `yaml:"market"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates required fields and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	allowed := map[string]struct{}{
		UpdateCallback: {},
		UpdateMessage:  {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}

	return normalizeMarket(&cfg.Market)
}

func normalizeMarket(m *MarketConfig) error {
	if m.PriceRUB <= 0 {
		return fmt.Errorf("market.price_rub must be > 0")
	}
	if strings.TrimSpace(m.PaymentDetails) == "" {
		return fmt.Errorf("market.payment_details is required")
	}
	if strings.TrimSpace(m.AboutText) == "" {
		m.AboutText = "We buy and sell student lecture notes. Questions? Message the administrator."
	}
	if m.WelcomeFile == "" {
		m.WelcomeFile = "data/welcome.txt"
	}
	if m.PendingDir == "" {
		m.PendingDir = "data/pending"
	}
	if m.PublishedDir == "" {
		m.PublishedDir = "data/published"
	}
	if m.CallbackTTLMinutes <= 0 {
		m.CallbackTTLMinutes = 24 * 60
	}
	if m.SessionIdleMinutes <= 0 {
		m.SessionIdleMinutes = 30
	}
	return nil
}
