package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"marketlens/internal/model"
)

// Config holds all application configuration. Values come from an optional
// YAML file, then environment variables (a .env file is loaded first when
// present), then defaults.
type Config struct {
	Provider struct {
		BaseURL    string  `yaml:"base_url"`
		WSURL      string  `yaml:"ws_url"`
		APIToken   string  `yaml:"api_token"`
		RatePerSec float64 `yaml:"rate_per_sec"`
	} `yaml:"provider"`

	// Infrastructure. An empty RedisAddr or SQLitePath disables that store.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	SQLitePath    string `yaml:"sqlite_path"`
	MetricsAddr   string `yaml:"metrics_addr"`
	HTTPAddr      string `yaml:"http_addr"`

	Defaults struct {
		Symbol    string `yaml:"symbol"`
		Timeframe string `yaml:"timeframe"`
	} `yaml:"defaults"`

	Live struct {
		PollInterval    time.Duration `yaml:"poll_interval"`
		RefreshInterval time.Duration `yaml:"refresh_interval"`
	} `yaml:"live"`

	Schedule struct {
		Cron  string   `yaml:"cron"`
		Watch []string `yaml:"watch"` // SYMBOL or SYMBOL:TF
	} `yaml:"schedule"`

	Notify struct {
		WebhookURL     string `yaml:"webhook_url"`
		TelegramToken  string `yaml:"telegram_token"`
		TelegramChatID string `yaml:"telegram_chat_id"`
	} `yaml:"notify"`

	LogLevel string `yaml:"log_level"`
}

// Load reads the YAML file at path (a missing file is fine), applies
// environment overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[config] .env not loaded: %v", err)
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Provider.BaseURL = getEnv("EODHD_BASE_URL", c.Provider.BaseURL)
	c.Provider.WSURL = getEnv("EODHD_WS_URL", c.Provider.WSURL)
	c.Provider.APIToken = getEnv("EODHD_API_TOKEN", c.Provider.APIToken)
	c.Provider.RatePerSec = getEnvFloat("EODHD_RATE_PER_SEC", c.Provider.RatePerSec)

	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.SQLitePath = getEnv("SQLITE_PATH", c.SQLitePath)
	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)

	c.Defaults.Symbol = getEnv("DEFAULT_SYMBOL", c.Defaults.Symbol)
	c.Defaults.Timeframe = getEnv("DEFAULT_TIMEFRAME", c.Defaults.Timeframe)

	c.Live.PollInterval = getEnvDuration("POLL_INTERVAL", c.Live.PollInterval)
	c.Live.RefreshInterval = getEnvDuration("REFRESH_INTERVAL", c.Live.RefreshInterval)

	c.Schedule.Cron = getEnv("ANALYSIS_CRON", c.Schedule.Cron)
	if v := os.Getenv("WATCH_LIST"); v != "" {
		c.Schedule.Watch = splitList(v)
	}

	c.Notify.WebhookURL = getEnv("WEBHOOK_URL", c.Notify.WebhookURL)
	c.Notify.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", c.Notify.TelegramToken)
	c.Notify.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", c.Notify.TelegramChatID)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

func (c *Config) applyDefaults() {
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = "https://eodhd.com"
	}
	if c.Provider.WSURL == "" {
		c.Provider.WSURL = "wss://ws.eodhistoricaldata.com/ws"
	}
	if c.Provider.RatePerSec <= 0 {
		c.Provider.RatePerSec = 5
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = ":9090"
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.Defaults.Symbol == "" {
		c.Defaults.Symbol = "XAUUSD"
	}
	if c.Defaults.Timeframe == "" {
		c.Defaults.Timeframe = string(model.TF1h)
	}
	if c.Live.PollInterval <= 0 {
		c.Live.PollInterval = 2500 * time.Millisecond
	}
	if c.Live.RefreshInterval <= 0 {
		c.Live.RefreshInterval = 4*time.Minute + 30*time.Second
	}
	if c.Schedule.Cron == "" {
		c.Schedule.Cron = "0 */15 * * * *"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks that required fields are set and values parse.
func (c *Config) Validate() error {
	if c.Provider.APIToken == "" {
		return fmt.Errorf("%w: provider.api_token (EODHD_API_TOKEN) is required", model.ErrValidation)
	}
	if _, err := model.ParseTimeframe(c.Defaults.Timeframe); err != nil {
		return fmt.Errorf("defaults.timeframe: %w", err)
	}
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		return fmt.Errorf("%w: telegram token and chat id must be set together", model.ErrValidation)
	}
	for _, w := range c.Schedule.Watch {
		if _, _, err := ParseWatch(w); err != nil {
			return fmt.Errorf("schedule.watch: %w", err)
		}
	}
	return nil
}

// ParseWatch splits a watch entry "SYMBOL" or "SYMBOL:TF".
func ParseWatch(entry string) (string, model.Timeframe, error) {
	sym, tf, _ := strings.Cut(strings.TrimSpace(entry), ":")
	if sym == "" {
		return "", "", fmt.Errorf("%w: empty watch entry %q", model.ErrValidation, entry)
	}
	t, err := model.ParseTimeframe(tf)
	if err != nil {
		return "", "", err
	}
	return sym, t, nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] skipping invalid %s value: %q", key, v)
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] skipping invalid %s value: %q", key, v)
		return fallback
	}
	return d
}
