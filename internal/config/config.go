// Package config loads and validates watcher configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Provider    ProviderConfig    `mapstructure:"provider"`
	Watch       WatchConfig       `mapstructure:"watch"`
	Browser     BrowserConfig     `mapstructure:"browser"`
	Captcha     CaptchaConfig     `mapstructure:"captcha"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Subscribers SubscribersConfig `mapstructure:"subscribers"`
	Proxies     ProxiesConfig     `mapstructure:"proxies"`
	Applicant   ApplicantConfig   `mapstructure:"applicant"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ProviderConfig points at the booking site.
type ProviderConfig struct {
	LoginURL    string `mapstructure:"login_url"`
	RegisterURL string `mapstructure:"register_url"`
	HomeURL     string `mapstructure:"home_url"`
	CalendarURL string `mapstructure:"calendar_url"`
	LocationID  string `mapstructure:"location_id"`
}

// WatchConfig governs the polling loop.
type WatchConfig struct {
	Categories        []string `mapstructure:"categories"`
	PollSeconds       int      `mapstructure:"poll_seconds"`
	ExtraMonthViews   int      `mapstructure:"extra_month_views"`
	MaxFormAttempts   int      `mapstructure:"max_form_attempts"`
	SessionRetrySec   int      `mapstructure:"session_retry_seconds"`
	RearmOnChange     bool     `mapstructure:"rearm_on_change"`
	StateFile         string   `mapstructure:"state_file"`
	NotificationsOff  bool     `mapstructure:"notifications_off"`
	ScreenshotDir     string   `mapstructure:"screenshot_dir"`
	CaptchaImageDir   string   `mapstructure:"captcha_image_dir"`
	BadCaptchaImgDir  string   `mapstructure:"bad_captcha_image_dir"`
	MaxTransientFails int      `mapstructure:"max_transient_failures"`
}

// BrowserConfig configures the headless browser.
type BrowserConfig struct {
	Headless      bool   `mapstructure:"headless"`
	UserAgent     string `mapstructure:"user_agent"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	StepTimeoutSc int    `mapstructure:"step_timeout_seconds"`
}

// CaptchaConfig selects and keys the solving provider.
type CaptchaConfig struct {
	Provider string `mapstructure:"provider"`
	APIKey   string `mapstructure:"api_key"`
}

// TelegramConfig holds bot credentials and chat targets.
type TelegramConfig struct {
	Token          string `mapstructure:"token"`
	OperatorChatID int64  `mapstructure:"operator_chat_id"`
	ChatID         int64  `mapstructure:"chat_id"`
	LogChatID      int64  `mapstructure:"log_chat_id"`
	Disabled       bool   `mapstructure:"disabled"`
}

// SubscribersConfig selects the subscriber store backend.
type SubscribersConfig struct {
	Backend   string `mapstructure:"backend"`
	FilePath  string `mapstructure:"file_path"`
	RedisAddr string `mapstructure:"redis_addr"`
	RedisDB   int    `mapstructure:"redis_db"`
}

// ProxiesConfig lists the outbound proxy pool.
type ProxiesConfig struct {
	Addrs []string `mapstructure:"addrs"`
}

// ApplicantConfig is the booking-form data, supplied once per deployment.
type ApplicantConfig struct {
	PassportNumber string `mapstructure:"passport_number"`
	DateOfBirth    string `mapstructure:"date_of_birth"`
	PassportExpiry string `mapstructure:"passport_expiry"`
	Nationality    string `mapstructure:"nationality"`
	FirstName      string `mapstructure:"first_name"`
	LastName       string `mapstructure:"last_name"`
	Gender         string `mapstructure:"gender"`
	DialCode       string `mapstructure:"dial_code"`
	ContactNumber  string `mapstructure:"contact_number"`
	Email          string `mapstructure:"email"`
}

// MetricsConfig exposes the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SEATWATCH")
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("watch.categories", []string{"STUDENT"})
	v.SetDefault("watch.poll_seconds", 20)
	v.SetDefault("watch.extra_month_views", 2)
	v.SetDefault("watch.max_form_attempts", 5)
	v.SetDefault("watch.session_retry_seconds", 60)
	v.SetDefault("watch.rearm_on_change", false)
	v.SetDefault("watch.state_file", "tracker-state.json")
	v.SetDefault("watch.screenshot_dir", "screenshots")
	v.SetDefault("watch.captcha_image_dir", "captchas")
	v.SetDefault("watch.bad_captcha_image_dir", "captchas/bad")
	v.SetDefault("watch.max_transient_failures", 3)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("browser.step_timeout_seconds", 10)
	v.SetDefault("captcha.provider", "2captcha")
	v.SetDefault("subscribers.backend", "file")
	v.SetDefault("subscribers.file_path", "subscribers.txt")
	v.SetDefault("subscribers.redis_addr", "localhost:6379")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if len(c.Watch.Categories) == 0 {
		return fmt.Errorf("watch.categories must not be empty")
	}
	if c.Watch.PollSeconds <= 0 {
		return fmt.Errorf("watch.poll_seconds must be > 0")
	}
	switch c.Captcha.Provider {
	case "2captcha", "anticaptcha":
	default:
		return fmt.Errorf("captcha.provider must be 2captcha or anticaptcha, got %q", c.Captcha.Provider)
	}
	switch c.Subscribers.Backend {
	case "file", "redis":
	default:
		return fmt.Errorf("subscribers.backend must be file or redis, got %q", c.Subscribers.Backend)
	}
	if c.Metrics.Enabled && c.Metrics.Port <= 0 {
		return fmt.Errorf("metrics.port must be > 0 when metrics are enabled")
	}
	return nil
}

// PollInterval converts the poll cadence into a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Watch.PollSeconds) * time.Second
}

// SessionRetryDelay is the pause before a replacement session starts.
func (c Config) SessionRetryDelay() time.Duration {
	return time.Duration(c.Watch.SessionRetrySec) * time.Second
}
