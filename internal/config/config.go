// Package config loads mio's settings from defaults, an optional config
// file and MIO_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DataDir  string `mapstructure:"data_dir"`
	LogLevel string `mapstructure:"log_level"`
	HTTP     struct {
		Listen    string `mapstructure:"listen"`
		PublicURL string `mapstructure:"public_url"`
	} `mapstructure:"http"`
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Scheduler struct {
		Enabled bool          `mapstructure:"enabled"`
		Spec    string        `mapstructure:"spec"`
		Window  time.Duration `mapstructure:"window"`
	} `mapstructure:"scheduler"`
	Delivery struct {
		EmailWebhook string        `mapstructure:"email_webhook"`
		SMSWebhook   string        `mapstructure:"sms_webhook"`
		SMSFrom      string        `mapstructure:"sms_from"`
		Timeout      time.Duration `mapstructure:"timeout"`
	} `mapstructure:"delivery"`
	Vault struct {
		MCPURL      string        `mapstructure:"mcp_url"`
		APIURL      string        `mapstructure:"api_url"`
		Timeout     time.Duration `mapstructure:"timeout"`
		SearchLimit int           `mapstructure:"search_limit"`
	} `mapstructure:"vault"`
	Sync struct {
		MaxConcurrent int `mapstructure:"max_concurrent"`
	} `mapstructure:"sync"`
	Mail struct {
		APIURL string `mapstructure:"api_url"`
		APIKey string `mapstructure:"api_key"`
		From   string `mapstructure:"from"`
	} `mapstructure:"mail"`
	Telegram struct {
		Token       string `mapstructure:"token"`
		AlertChatID int64  `mapstructure:"alert_chat_id"`
	} `mapstructure:"telegram"`
	Actions struct {
		MaxPromptTokens int    `mapstructure:"max_prompt_tokens"`
		TokenizerModel  string `mapstructure:"tokenizer_model"`
	} `mapstructure:"actions"`
}

// DefaultDataDir is ~/.mio.
func DefaultDataDir() string {
	return filepath.Join(os.Getenv("HOME"), ".mio")
}

// DefaultPath is the config file inside the default data dir.
func DefaultPath() string {
	return filepath.Join(DefaultDataDir(), "config.json")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("log_level", "info")
	v.SetDefault("http.listen", ":8080")
	v.SetDefault("http.public_url", "https://mio.fyi")
	v.SetDefault("database.path", "")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.spec", "*/5 * * * *")
	v.SetDefault("scheduler.window", "5m")
	v.SetDefault("delivery.email_webhook", "")
	v.SetDefault("delivery.sms_webhook", "")
	v.SetDefault("delivery.sms_from", "")
	v.SetDefault("delivery.timeout", "30s")
	v.SetDefault("vault.mcp_url", "https://arca.build/mcp")
	v.SetDefault("vault.api_url", "https://arca.build/api/v1")
	v.SetDefault("vault.timeout", "30s")
	v.SetDefault("vault.search_limit", 10)
	v.SetDefault("sync.max_concurrent", 2)
	v.SetDefault("mail.api_url", "https://api.resend.com")
	v.SetDefault("mail.api_key", "")
	v.SetDefault("mail.from", "Mio <ai@mio.fyi>")
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.alert_chat_id", 0)
	v.SetDefault("actions.max_prompt_tokens", 0)
	v.SetDefault("actions.tokenizer_model", "gpt-4o")
}

// legacyEnv maps keys to the unprefixed variable names older deployments use.
var legacyEnv = map[string]string{
	"telegram.token": "TELEGRAM_BOT_TOKEN",
	"mail.api_key":   "RESEND_API_KEY",
}

// fileViper reads defaults and the file at path, without the environment.
// It is what config set writes back, so env secrets never reach the file.
func fileViper(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	return v
}

func envViper(path string) *viper.Viper {
	v := fileViper(path)
	v.SetEnvPrefix("MIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		_ = v.BindEnv(key, "MIO_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), legacy)
	}
	return v
}

func isMissing(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}

// Load reads the config at path. A missing file is created with the
// defaults.
func Load(path string) (*Config, error) {
	v := envViper(path)
	if err := v.ReadInConfig(); err != nil {
		if !isMissing(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := writeDefaults(path); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(cfg.DataDir, "mio.db")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be fixed at use time.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q: must be debug, info, warn or error", c.LogLevel)
	}
	if c.Sync.MaxConcurrent < 1 {
		return fmt.Errorf("sync.max_concurrent must be at least 1")
	}
	if c.Vault.SearchLimit < 1 {
		return fmt.Errorf("vault.search_limit must be at least 1")
	}
	if c.Scheduler.Window <= 0 {
		return fmt.Errorf("scheduler.window must be positive")
	}
	return nil
}

func writeDefaults(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	v := viper.New()
	setDefaults(v)
	return writeAtomic(v, path)
}

// writeAtomic writes v's settings to a temp file next to path and renames
// it into place.
func writeAtomic(v *viper.Viper, path string) error {
	ext := filepath.Ext(path)
	tmpPath := strings.TrimSuffix(path, ext) + ".tmp" + ext
	if err := v.WriteConfigAs(tmpPath); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
