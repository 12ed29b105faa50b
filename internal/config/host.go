package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/danmuck/microgpu/internal/protocol/session"
)

// HostConfig is the mgpuctl connection profile.
type HostConfig struct {
	Transport          string `toml:"transport"`
	Addr               string `toml:"addr"`
	Scale              int    `toml:"scale"`
	ConnectTimeout     string `toml:"connect_timeout"`
	ReadTimeout        string `toml:"read_timeout"`
	MaxConnectAttempts int    `toml:"max_connect_attempts"`
}

func DefaultHostConfig() HostConfig {
	return HostConfig{
		Transport:          "tcp",
		Addr:               "127.0.0.1:9123",
		Scale:              1,
		MaxConnectAttempts: session.DefaultConfig().MaxConnectAttempts,
	}
}

// LoadHostConfig reads a profile; keys missing from the file keep their
// defaults.
func LoadHostConfig(path string) (HostConfig, error) {
	cfg := DefaultHostConfig()
	if err := loadToml(path, &cfg); err != nil {
		return HostConfig{}, err
	}
	cfg.Transport = strings.ToLower(strings.TrimSpace(cfg.Transport))
	cfg.Addr = strings.TrimSpace(cfg.Addr)
	if err := ValidateHostConfig(cfg); err != nil {
		return HostConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateHostConfig(cfg HostConfig) error {
	switch cfg.Transport {
	case "tcp", "framed-tcp", "serial":
	default:
		return fmt.Errorf("host config has unknown transport %q", cfg.Transport)
	}
	if cfg.Addr == "" {
		return fmt.Errorf("host config missing addr")
	}
	if cfg.Scale < 1 || cfg.Scale > 255 {
		return fmt.Errorf("host config scale out of range: %d", cfg.Scale)
	}
	if _, err := cfg.Session(); err != nil {
		return err
	}
	return nil
}

// Session converts the profile's timeouts into link settings.
func (c HostConfig) Session() (session.Config, error) {
	out := session.DefaultConfig()
	if c.ConnectTimeout != "" {
		d, err := time.ParseDuration(c.ConnectTimeout)
		if err != nil {
			return session.Config{}, fmt.Errorf("parse connect_timeout: %w", err)
		}
		out.ConnectTimeout = d
	}
	if c.ReadTimeout != "" {
		d, err := time.ParseDuration(c.ReadTimeout)
		if err != nil {
			return session.Config{}, fmt.Errorf("parse read_timeout: %w", err)
		}
		out.ReadTimeout = d
	}
	out.MaxConnectAttempts = c.MaxConnectAttempts
	return out, nil
}
