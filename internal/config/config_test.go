package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func tempConfigPath(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	return filepath.Join(t.TempDir(), "config.json")
}

func writeTestConfig(t *testing.T, path string, values map[string]any) {
	t.Helper()
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
}

func readFile(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("config is not valid JSON: %v\n%s", err, data)
	}
	return m
}

func TestLoad_MissingFileWritesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected log_level info, got %q", cfg.LogLevel)
	}
	if cfg.Scheduler.Spec != "*/5 * * * *" || cfg.Scheduler.Window != 5*time.Minute {
		t.Errorf("unexpected scheduler defaults: %+v", cfg.Scheduler)
	}
	if cfg.Vault.Timeout != 30*time.Second || cfg.Vault.SearchLimit != 10 {
		t.Errorf("unexpected vault defaults: %+v", cfg.Vault)
	}
	if cfg.Sync.MaxConcurrent != 2 {
		t.Errorf("expected sync.max_concurrent 2, got %d", cfg.Sync.MaxConcurrent)
	}
	if cfg.Database.Path != filepath.Join(cfg.DataDir, "mio.db") {
		t.Errorf("expected database under data dir, got %q", cfg.Database.Path)
	}

	written := readFile(t, path)
	if written["log_level"] != "info" {
		t.Errorf("default file missing log_level: %v", written)
	}
	if _, err := os.Stat(strings.TrimSuffix(path, ".json") + ".tmp.json"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := tempConfigPath(t)
	writeTestConfig(t, path, map[string]any{
		"log_level": "debug",
		"database":  map[string]any{"path": "/tmp/mio-test.db"},
		"scheduler": map[string]any{"window": "10m", "enabled": false},
		"telegram":  map[string]any{"alert_chat_id": 12345},
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected debug, got %q", cfg.LogLevel)
	}
	if cfg.Database.Path != "/tmp/mio-test.db" {
		t.Errorf("expected explicit database path, got %q", cfg.Database.Path)
	}
	if cfg.Scheduler.Enabled || cfg.Scheduler.Window != 10*time.Minute {
		t.Errorf("unexpected scheduler: %+v", cfg.Scheduler)
	}
	if cfg.Telegram.AlertChatID != 12345 {
		t.Errorf("expected chat id 12345, got %d", cfg.Telegram.AlertChatID)
	}
	if cfg.HTTP.Listen != ":8080" {
		t.Errorf("expected default listen address, got %q", cfg.HTTP.Listen)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("http:\n  public_url: https://mio.test\nsync:\n  max_concurrent: 4\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTP.PublicURL != "https://mio.test" || cfg.Sync.MaxConcurrent != 4 {
		t.Errorf("unexpected config: %+v %+v", cfg.HTTP, cfg.Sync)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := tempConfigPath(t)
	writeTestConfig(t, path, map[string]any{"vault": map[string]any{"timeout": "45s"}})

	t.Setenv("MIO_VAULT_TIMEOUT", "10s")
	t.Setenv("MIO_SYNC_MAX_CONCURRENT", "3")
	t.Setenv("TELEGRAM_BOT_TOKEN", "legacy-token")
	t.Setenv("RESEND_API_KEY", "re_legacy")
	t.Setenv("MIO_MAIL_API_KEY", "re_prefixed")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Vault.Timeout != 10*time.Second {
		t.Errorf("expected env timeout, got %v", cfg.Vault.Timeout)
	}
	if cfg.Sync.MaxConcurrent != 3 {
		t.Errorf("expected 3, got %d", cfg.Sync.MaxConcurrent)
	}
	if cfg.Telegram.Token != "legacy-token" {
		t.Errorf("expected legacy telegram token, got %q", cfg.Telegram.Token)
	}
	if cfg.Mail.APIKey != "re_prefixed" {
		t.Errorf("expected MIO_ prefixed key to win, got %q", cfg.Mail.APIKey)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := map[string]map[string]any{
		"log level":      {"log_level": "loud"},
		"max concurrent": {"sync": map[string]any{"max_concurrent": 0}},
		"search limit":   {"vault": map[string]any{"search_limit": 0}},
		"window":         {"scheduler": map[string]any{"window": "0s"}},
		"bad duration":   {"scheduler": map[string]any{"window": "soon"}},
	}
	for name, values := range tests {
		t.Run(name, func(t *testing.T) {
			path := tempConfigPath(t)
			writeTestConfig(t, path, values)
			if _, err := Load(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestListValues(t *testing.T) {
	path := tempConfigPath(t)
	writeTestConfig(t, path, map[string]any{
		"mail":     map[string]any{"api_key": "re_secret1234"},
		"telegram": map[string]any{"token": "123:abcdWXYZ"},
	})

	plain, err := ListValues(path, false)
	if err != nil {
		t.Fatal(err)
	}
	if plain["mail.api_key"] != "re_secret1234" {
		t.Errorf("expected unmasked key, got %v", plain["mail.api_key"])
	}
	if plain["scheduler.spec"] != "*/5 * * * *" {
		t.Errorf("expected default scheduler.spec, got %v", plain["scheduler.spec"])
	}

	masked, err := ListValues(path, true)
	if err != nil {
		t.Fatal(err)
	}
	if masked["mail.api_key"] != "***1234" || masked["telegram.token"] != "***WXYZ" {
		t.Errorf("secrets not masked: %v %v", masked["mail.api_key"], masked["telegram.token"])
	}
	if masked["mail.from"] != "Mio <ai@mio.fyi>" {
		t.Errorf("expected mail.from unchanged, got %v", masked["mail.from"])
	}
}

func TestGetValue(t *testing.T) {
	path := tempConfigPath(t)
	writeTestConfig(t, path, map[string]any{"http": map[string]any{"listen": ":9090"}})

	val, err := GetValue(path, "http.listen")
	if err != nil {
		t.Fatal(err)
	}
	if val != ":9090" {
		t.Errorf("expected :9090, got %v", val)
	}

	val, err = GetValue(path, "vault.search_limit")
	if err != nil {
		t.Fatal(err)
	}
	if val != 10 {
		t.Errorf("expected default 10, got %v (%T)", val, val)
	}

	if _, err := GetValue(path, "nonexistent.key"); err == nil {
		t.Error("expected error for unknown key")
	}
	if _, err := GetValue(filepath.Join(t.TempDir(), "missing.json"), "log_level"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSetValue(t *testing.T) {
	path := tempConfigPath(t)
	writeTestConfig(t, path, map[string]any{"log_level": "info"})
	t.Setenv("RESEND_API_KEY", "re_from_env")

	for key, raw := range map[string]string{
		"log_level":                 "warn",
		"scheduler.enabled":         "false",
		"sync.max_concurrent":       "5",
		"vault.timeout":             "15s",
		"actions.max_prompt_tokens": "500",
	} {
		if err := SetValue(path, key, raw); err != nil {
			t.Fatalf("SetValue(%s): %v", key, err)
		}
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "warn" || cfg.Scheduler.Enabled || cfg.Sync.MaxConcurrent != 5 ||
		cfg.Vault.Timeout != 15*time.Second || cfg.Actions.MaxPromptTokens != 500 {
		t.Errorf("values not persisted: %+v", cfg)
	}

	written := readFile(t, path)
	mailSection, _ := written["mail"].(map[string]any)
	if mailSection["api_key"] == "re_from_env" {
		t.Error("environment secret leaked into config file")
	}
}

func TestSetValue_Rejects(t *testing.T) {
	path := tempConfigPath(t)
	writeTestConfig(t, path, map[string]any{})

	if err := SetValue(path, "no.such.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
	if err := SetValue(path, "sync.max_concurrent", "many"); err == nil {
		t.Error("expected error for non-numeric value")
	}
	if err := SetValue(path, "scheduler.enabled", "maybe"); err == nil {
		t.Error("expected error for non-boolean value")
	}
	if err := SetValue(path, "delivery.timeout", "later"); err == nil {
		t.Error("expected error for invalid duration")
	}
	if err := SetValue(filepath.Join(t.TempDir(), "missing.json"), "log_level", "info"); err == nil {
		t.Error("expected error for missing file")
	}
}
