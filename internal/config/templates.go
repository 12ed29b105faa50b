package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "device":
		return deviceTemplate, nil
	case "host":
		return hostTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const deviceTemplate = `name = "mgpu.local"
display = "headless"
display_width = 320
display_height = 240
transport = "tcp"
listen_addr = "127.0.0.1:9123"
fast_pool_bytes = 163840
slow_pool_bytes = 4194304
admin_addr = "127.0.0.1:9124"
capture_db = ""
capture_every = 30
heartbeat = "30s"
`

const hostTemplate = `transport = "tcp"
addr = "127.0.0.1:9123"
scale = 1
connect_timeout = "5s"
read_timeout = "5s"
max_connect_attempts = 5
`
