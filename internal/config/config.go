package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config captures the settings shared by the realtime commands
type Config struct {
	Origin               string
	LogLevel             string
	MaxReconnectAttempts int
	BackoffUnit          time.Duration
	PingInterval         time.Duration
	ListenAddr           string
	RedisAddr            string
	RedisPrefix          string
}

const (
	defaultConfigPath = "~/.config/realtime/config.toml"
	defaultOrigin     = "http://localhost:8000"
	defaultListenAddr = ":8000"
	defaultPrefix     = "realtime:"
)

// Default returns the configuration used when no file is present
func Default() Config {
	return Config{
		Origin:               defaultOrigin,
		LogLevel:             "info",
		MaxReconnectAttempts: 5,
		BackoffUnit:          time.Second,
		PingInterval:         54 * time.Second,
		ListenAddr:           defaultListenAddr,
		RedisPrefix:          defaultPrefix,
	}
}

// Load locates and parses the config file, falling back to defaults when missing
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		Origin               string `toml:"origin"`
		LogLevel             string `toml:"log_level"`
		MaxReconnectAttempts *int   `toml:"max_reconnect_attempts"`
		BackoffUnit          string `toml:"backoff_unit"`
		PingInterval         string `toml:"ping_interval"`
		ListenAddr           string `toml:"listen_addr"`
		RedisAddr            string `toml:"redis_addr"`
		RedisPrefix          string `toml:"redis_prefix"`
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	setString(&cfg.Origin, raw.Origin)
	setString(&cfg.LogLevel, raw.LogLevel)
	setString(&cfg.ListenAddr, raw.ListenAddr)
	setString(&cfg.RedisAddr, raw.RedisAddr)
	setString(&cfg.RedisPrefix, raw.RedisPrefix)

	if raw.MaxReconnectAttempts != nil {
		if *raw.MaxReconnectAttempts < 0 {
			return Config{}, fmt.Errorf("parse config: max_reconnect_attempts must not be negative")
		}
		cfg.MaxReconnectAttempts = *raw.MaxReconnectAttempts
	}

	if err := setDuration(&cfg.BackoffUnit, "backoff_unit", raw.BackoffUnit); err != nil {
		return Config{}, err
	}
	if err := setDuration(&cfg.PingInterval, "ping_interval", raw.PingInterval); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setString(dst *string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key, value string) error {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parse config: %s: %w", key, err)
	}
	if d < 0 {
		return fmt.Errorf("parse config: %s must not be negative", key)
	}

	*dst = d
	return nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
