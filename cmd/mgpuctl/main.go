package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/danmuck/microgpu/internal/client"
	"github.com/danmuck/microgpu/internal/config"
	"github.com/danmuck/microgpu/internal/logging"
)

const usage = `usage: mgpuctl [flags] <command>

commands:
  status    print the device status
  message   print the diagnostic of the previous operation
  demo      initialize and draw an animated test scene
  reset     reset the device

flags:
`

var errUsage = errors.New("usage")

type options struct {
	configPath string
	transport  string
	addr       string
	scale      int
	frames     int
	interval   time.Duration
	command    string
}

func main() {
	logging.ConfigureRuntime()
	err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
	if errors.Is(err, errUsage) {
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "mgpuctl: %v\n", err)
		os.Exit(1)
	}
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("mgpuctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "host profile (toml)")
	fs.StringVar(&opts.transport, "transport", "", "tcp | framed-tcp | serial (overrides profile)")
	fs.StringVar(&opts.addr, "addr", "", "device address or serial path (overrides profile)")
	fs.IntVar(&opts.scale, "scale", 0, "framebuffer scale for demo (overrides profile)")
	fs.IntVar(&opts.frames, "frames", 60, "frames to draw in demo")
	fs.DurationVar(&opts.interval, "interval", 33*time.Millisecond, "delay between demo frames")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return options{}, errUsage
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return options{}, errUsage
	}
	opts.command = strings.ToLower(fs.Arg(0))
	switch opts.command {
	case "status", "message", "demo", "reset":
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", opts.command)
		fs.Usage()
		return options{}, errUsage
	}
	return opts, nil
}

func resolveProfile(opts options) (config.HostConfig, error) {
	cfg := config.DefaultHostConfig()
	if opts.configPath != "" {
		loaded, err := config.LoadHostConfig(opts.configPath)
		if err != nil {
			return config.HostConfig{}, err
		}
		cfg = loaded
	}
	if opts.transport != "" {
		cfg.Transport = opts.transport
	}
	if opts.addr != "" {
		cfg.Addr = opts.addr
	}
	if opts.scale != 0 {
		cfg.Scale = opts.scale
	}
	return cfg, config.ValidateHostConfig(cfg)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		return err
	}
	profile, err := resolveProfile(opts)
	if err != nil {
		return err
	}
	sess, err := profile.Session()
	if err != nil {
		return err
	}

	c, err := client.Dial(ctx, profile.Transport, profile.Addr, sess)
	if err != nil {
		return err
	}
	defer c.Close()

	switch opts.command {
	case "status":
		s, err := c.Status()
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "initialized:        %v\n", s.Initialized)
		fmt.Fprintf(stdout, "display:            %dx%d\n", s.DisplayWidth, s.DisplayHeight)
		fmt.Fprintf(stdout, "framebuffer:        %dx%d\n", s.FramebufferWidth, s.FramebufferHeight)
		fmt.Fprintf(stdout, "color mode:         %d\n", s.ColorMode)
		fmt.Fprintf(stdout, "max operation size: %d\n", s.MaxOperationSize)
		fmt.Fprintf(stdout, "api version:        %d\n", s.APIVersion)
	case "message":
		msg, err := c.LastMessage()
		if err != nil {
			return err
		}
		if msg == "" {
			msg = "(none)"
		}
		fmt.Fprintln(stdout, msg)
	case "reset":
		if err := c.Reset(); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "reset requested")
	case "demo":
		frames, err := runDemo(ctx, c, demoOptions{
			Scale:    uint8(profile.Scale),
			Frames:   opts.frames,
			Interval: opts.interval,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "presented %d frames\n", frames)
	}
	return nil
}
