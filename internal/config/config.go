package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DataDir  string `mapstructure:"data_dir"`
	DBPath   string `mapstructure:"db_path"`
	HTTPAddr string `mapstructure:"http_addr"`

	// Outbound request timeout for every source adapter, in seconds.
	FetchTimeoutSeconds int `mapstructure:"fetch_timeout_seconds"`
	// TTL of the read-side snapshot cache, in seconds.
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds"`
	CacheSize       int `mapstructure:"cache_size"`

	// Fallback intervals used when the settings table has no value.
	Intervals map[string]int `mapstructure:"intervals"`

	Telegram TelegramConfig `mapstructure:"telegram"`
	Log      LogConfig      `mapstructure:"log"`

	Debug bool `mapstructure:"debug"`
}

type TelegramConfig struct {
	BotToken     string  `mapstructure:"bot_token"`
	AdminChatIDs []int64 `mapstructure:"admin_chat_ids"`
	// Minimum gap between two failure alerts for the same domain, in minutes.
	AlertThrottleMinutes int `mapstructure:"alert_throttle_minutes"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// Interval returns the configured fallback interval for a domain, or 0.
func (c Config) Interval(domain string) time.Duration {
	if v, ok := c.Intervals[domain]; ok && v > 0 {
		return time.Duration(v) * time.Second
	}
	return 0
}

func (c Config) AlertThrottle() time.Duration {
	return time.Duration(c.Telegram.AlertThrottleMinutes) * time.Minute
}

func DefaultDataDir() string {
	if v := os.Getenv("WERETE_DATA_DIR"); v != "" {
		return v
	}
	return "/var/lib/werete"
}

func DefaultConfigPath() string {
	if v := os.Getenv("WERETE_CONFIG"); v != "" {
		return v
	}
	return "/etc/werete/config.json"
}

func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("WERETE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	// Plain env names kept for container deployments.
	if s := os.Getenv("TELEGRAM_BOT_TOKEN"); s != "" && cfg.Telegram.BotToken == "" {
		cfg.Telegram.BotToken = s
	}
	if s := os.Getenv("WERETE_ADMIN_CHAT_IDS"); s != "" {
		cfg.Telegram.AdminChatIDs = parseIDList(s)
	}

	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir()
	}
	cfg.DataDir = filepath.Clean(cfg.DataDir)
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "werete.db")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("fetch_timeout_seconds", 20)
	v.SetDefault("cache_ttl_seconds", 30)
	v.SetDefault("cache_size", 256)
	v.SetDefault("telegram.alert_throttle_minutes", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.compress", true)
}

func (c *Config) Validate() error {
	// Adapters must give up within 15-30s.
	if c.FetchTimeoutSeconds < 15 {
		c.FetchTimeoutSeconds = 15
	}
	if c.FetchTimeoutSeconds > 30 {
		c.FetchTimeoutSeconds = 30
	}
	if c.CacheTTLSeconds <= 0 {
		return fmt.Errorf("cache_ttl_seconds must be positive, got %d", c.CacheTTLSeconds)
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("cache_size must be positive, got %d", c.CacheSize)
	}
	for k, sec := range c.Intervals {
		if sec < 0 {
			return fmt.Errorf("intervals.%s must not be negative", k)
		}
	}
	if c.Telegram.BotToken != "" && len(c.Telegram.AdminChatIDs) == 0 {
		return errors.New("telegram.bot_token set without telegram.admin_chat_ids")
	}
	return nil
}

func parseIDList(s string) []int64 {
	var out []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err == nil {
			out = append(out, id)
		}
	}
	return out
}
