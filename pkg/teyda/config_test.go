// Copyright 2026 Teyda Authors

package teyda

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
data_dir: /var/lib/teyda
log_level: debug
telegram:
  - token: tg-token
    poll_timeout: 30
discord:
  - token: dc-token
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.DataDir != "/var/lib/teyda" || cfg.Level() != zerolog.DebugLevel {
		t.Errorf("config = %#v", cfg)
	}
	if len(cfg.Telegram) != 1 || cfg.Telegram[0].Token != "tg-token" || cfg.Telegram[0].PollTimeout != 30 {
		t.Errorf("telegram = %#v", cfg.Telegram)
	}
	if len(cfg.Discord) != 1 || cfg.Discord[0].Token != "dc-token" {
		t.Errorf("discord = %#v", cfg.Discord)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
telegram:
  - token: tg-token
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.DataDir != DefaultDataDir {
		t.Errorf("data dir = %q, want %q", cfg.DataDir, DefaultDataDir)
	}
	if cfg.Level() != zerolog.InfoLevel {
		t.Errorf("level = %v, want info", cfg.Level())
	}
}

func TestLoadConfigExpandsTokenEnv(t *testing.T) {
	t.Setenv("TEYDA_TEST_TG_TOKEN", "from-env")
	path := writeConfig(t, `
telegram:
  - token: ${TEYDA_TEST_TG_TOKEN}
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Telegram[0].Token != "from-env" {
		t.Errorf("token = %q, want from-env", cfg.Telegram[0].Token)
	}
}

func TestLoadConfigRejectsUnsetTokenEnv(t *testing.T) {
	path := writeConfig(t, `
telegram:
  - token: ${TEYDA_TEST_UNSET_TOKEN}
`)
	if _, err := LoadConfig(path); err == nil {
		t.Errorf("LoadConfig() accepted a token from an unset variable")
	}
}

func TestLoadConfigRejects(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"no adapters", "data_dir: ./x\n"},
		{"missing telegram token", "telegram:\n  - poll_timeout: 30\n"},
		{"missing discord token", "discord:\n  - retry_interval_ms: 100\n"},
		{"bad log level", "log_level: loud\ntelegram:\n  - token: t\n"},
		{"bad yaml", "telegram: [\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tc.content)); err == nil {
				t.Errorf("LoadConfig() accepted %s", tc.name)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Errorf("LoadConfig() accepted a missing file")
	}
}
