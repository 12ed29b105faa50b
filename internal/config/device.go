package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/microgpu/internal/device"
)

type deviceFile struct {
	Name          string `toml:"name"`
	Display       string `toml:"display"`
	DisplayWidth  int    `toml:"display_width"`
	DisplayHeight int    `toml:"display_height"`
	Transport     string `toml:"transport"`
	ListenAddr    string `toml:"listen_addr"`
	SerialPath    string `toml:"serial_path"`
	FastPoolBytes int    `toml:"fast_pool_bytes"`
	SlowPoolBytes int    `toml:"slow_pool_bytes"`
	AdminAddr     string `toml:"admin_addr"`
	CaptureDB     string `toml:"capture_db"`
	CaptureEvery  int    `toml:"capture_every"`
	Heartbeat     string `toml:"heartbeat"`
}

// LoadDeviceConfig overlays the keys present in the file at path onto
// device.DefaultConfig and validates the result.
func LoadDeviceConfig(path string) (device.Config, error) {
	cfg := device.DefaultConfig()

	var raw deviceFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return device.Config{}, fmt.Errorf("load device config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return device.Config{}, fmt.Errorf("load device config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("name") {
		if name := strings.TrimSpace(raw.Name); name != "" {
			cfg.Name = name
		}
	}
	if meta.IsDefined("display") {
		cfg.Display = strings.ToLower(strings.TrimSpace(raw.Display))
	}
	if meta.IsDefined("display_width") {
		w, err := dimension("display_width", raw.DisplayWidth)
		if err != nil {
			return device.Config{}, err
		}
		cfg.DisplayWidth = w
	}
	if meta.IsDefined("display_height") {
		h, err := dimension("display_height", raw.DisplayHeight)
		if err != nil {
			return device.Config{}, err
		}
		cfg.DisplayHeight = h
	}
	if meta.IsDefined("transport") {
		cfg.Transport = strings.ToLower(strings.TrimSpace(raw.Transport))
	}
	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("serial_path") {
		cfg.SerialPath = strings.TrimSpace(raw.SerialPath)
	}
	if meta.IsDefined("fast_pool_bytes") {
		cfg.FastPoolBytes = raw.FastPoolBytes
	}
	if meta.IsDefined("slow_pool_bytes") {
		cfg.SlowPoolBytes = raw.SlowPoolBytes
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("capture_db") {
		cfg.CaptureDB = strings.TrimSpace(raw.CaptureDB)
	}
	if meta.IsDefined("capture_every") {
		if raw.CaptureEvery <= 0 {
			return device.Config{}, fmt.Errorf("capture_every must be positive, got %d", raw.CaptureEvery)
		}
		cfg.CaptureEvery = raw.CaptureEvery
	}
	if meta.IsDefined("heartbeat") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Heartbeat))
		if err != nil {
			return device.Config{}, fmt.Errorf("parse heartbeat: %w", err)
		}
		cfg.Heartbeat = d
	}

	if err := cfg.Validate(); err != nil {
		return device.Config{}, err
	}
	return cfg, nil
}

func dimension(key string, v int) (uint16, error) {
	if v <= 0 || v > 0xFFFF {
		return 0, fmt.Errorf("%s out of range: %d", key, v)
	}
	return uint16(v), nil
}
