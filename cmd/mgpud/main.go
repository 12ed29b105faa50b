package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/danmuck/microgpu/internal/config"
	"github.com/danmuck/microgpu/internal/device"
	"github.com/danmuck/microgpu/internal/observability"
)

func main() {
	configPath := flag.String("config", "", "device config (toml); built-in defaults when empty")
	logPath := flag.String("log", "mgpud.log", "log file used while the terminal display owns the screen")
	flag.Parse()

	cfg := device.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadDeviceConfig(*configPath)
		if err != nil {
			fatalf("%v", err)
		}
		cfg = loaded
	}

	var logOut io.Writer
	if cfg.Display == device.DisplayTerminal {
		// tcell owns the tty
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fatalf("open log: %v", err)
		}
		defer f.Close()
		logOut = f
	}
	observability.InitLogger("mgpud", cfg.Name, logOut)

	svc, err := device.NewService(cfg)
	if err != nil {
		fatalf("%v", err)
	}
	if err := svc.Run(); err != nil {
		fatalf("%v", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "mgpud: "+format+"\n", args...)
	os.Exit(1)
}
