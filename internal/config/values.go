package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"
)

// ListValues returns every effective setting, flattened to dot-separated
// keys. Secrets are masked when mask is set.
func ListValues(path string, mask bool) (map[string]any, error) {
	v := envViper(path)
	if err := v.ReadInConfig(); err != nil && !isMissing(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	flat := Flatten(v.AllSettings())
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue returns the effective value of one key.
func GetValue(path, key string) (any, error) {
	v := envViper(path)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if !slices.Contains(v.AllKeys(), key) {
		return nil, fmt.Errorf("unknown config key %q", key)
	}
	return v.Get(key), nil
}

// SetValue parses raw according to the key's current type and writes it to
// the config file.
func SetValue(path, key, raw string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	v := fileViper(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if !slices.Contains(v.AllKeys(), key) {
		return fmt.Errorf("unknown config key %q", key)
	}
	value, err := coerce(raw, v.Get(key))
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if err := v.MergeConfigMap(Unflatten(map[string]any{key: value})); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return writeAtomic(v, path)
}

func coerce(raw string, current any) (any, error) {
	switch c := current.(type) {
	case bool:
		return strconv.ParseBool(raw)
	case int, int64:
		return strconv.ParseInt(raw, 10, 64)
	case float64:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			// JSON files decode every number as float64.
			return n, nil
		}
		return strconv.ParseFloat(raw, 64)
	case string:
		if _, err := time.ParseDuration(c); err == nil {
			if _, err := time.ParseDuration(raw); err != nil {
				return nil, err
			}
		}
	}
	return raw, nil
}
