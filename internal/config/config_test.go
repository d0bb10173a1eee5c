package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func clearEnv(t *testing.T) {
	for _, k := range []string{"TELEGRAM_BOT_TOKEN", "WERETE_ADMIN_CHAT_IDS", "WERETE_DATA_DIR", "WERETE_HTTP_ADDR"} {
		t.Setenv(k, "")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("WERETE_DATA_DIR", dir)

	cfg, err := Load(filepath.Join(dir, "absent.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.CacheTTL() != 30*time.Second || cfg.FetchTimeout() != 20*time.Second {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.DBPath != filepath.Join(dir, "werete.db") {
		t.Fatalf("DBPath = %q", cfg.DBPath)
	}
	if cfg.AlertThrottle() != 30*time.Minute {
		t.Fatalf("AlertThrottle = %v", cfg.AlertThrottle())
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `{
		"data_dir": "/tmp/werete-test",
		"fetch_timeout_seconds": 90,
		"intervals": {"currency": 300, "silver": 0},
		"telegram": {"bot_token": "123:abc"},
		"log": {"level": "debug"}
	}`)
	t.Setenv("WERETE_ADMIN_CHAT_IDS", "11, 22,bad")
	t.Setenv("WERETE_HTTP_ADDR", "127.0.0.1:9000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.FetchTimeout() != 30*time.Second {
		t.Fatalf("fetch timeout not clamped: %v", cfg.FetchTimeout())
	}
	if cfg.Interval("currency") != 5*time.Minute || cfg.Interval("silver") != 0 || cfg.Interval("gold_local") != 0 {
		t.Fatalf("intervals = %v", cfg.Intervals)
	}
	if len(cfg.Telegram.AdminChatIDs) != 2 || cfg.Telegram.AdminChatIDs[1] != 22 {
		t.Fatalf("admins = %v", cfg.Telegram.AdminChatIDs)
	}
	if cfg.HTTPAddr != "127.0.0.1:9000" || cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"valid", Config{CacheTTLSeconds: 30, CacheSize: 10}, true},
		{"zero ttl", Config{CacheSize: 10}, false},
		{"zero cache size", Config{CacheTTLSeconds: 30}, false},
		{"negative interval", Config{CacheTTLSeconds: 30, CacheSize: 10, Intervals: map[string]int{"silver": -1}}, false},
		{"token without admins", Config{CacheTTLSeconds: 30, CacheSize: 10, Telegram: TelegramConfig{BotToken: "x"}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err == nil) != tc.ok {
				t.Fatalf("Validate() = %v, want ok=%v", err, tc.ok)
			}
		})
	}
}
