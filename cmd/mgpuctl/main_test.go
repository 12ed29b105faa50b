package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/microgpu/internal/databus"
	"github.com/danmuck/microgpu/internal/device"
	"github.com/danmuck/microgpu/internal/display"
	"github.com/danmuck/microgpu/internal/testutil/testlog"
)

func startDevice(t *testing.T) (string, *device.Device, *display.Latest) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	latest := &display.Latest{}
	d := device.New(device.Options{
		Name:    "mgpu.test",
		Bus:     databus.NewTCP(ln),
		Display: display.NewHeadless(64, 48, latest),
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().String(), d, latest
}

func TestParseArgs(t *testing.T) {
	testlog.Start(t)
	opts, err := parseArgs([]string{"-addr", "10.0.0.2:9123", "-frames", "5", "demo"}, io.Discard)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.command != "demo" || opts.addr != "10.0.0.2:9123" || opts.frames != 5 {
		t.Fatalf("unexpected options: %+v", opts)
	}

	if _, err := parseArgs(nil, io.Discard); !errors.Is(err, errUsage) {
		t.Fatalf("expected usage error without a command, got %v", err)
	}
	if _, err := parseArgs([]string{"explode"}, io.Discard); !errors.Is(err, errUsage) {
		t.Fatalf("expected usage error for unknown command, got %v", err)
	}
}

func TestResolveProfileOverrides(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "host.toml")
	body := "transport = \"framed-tcp\"\naddr = \"10.0.0.5:9000\"\nscale = 2\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	cfg, err := resolveProfile(options{configPath: path, addr: "127.0.0.1:1"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Transport != "framed-tcp" || cfg.Addr != "127.0.0.1:1" || cfg.Scale != 2 {
		t.Fatalf("unexpected profile: %+v", cfg)
	}
	if _, err := resolveProfile(options{transport: "pigeon"}); err == nil {
		t.Fatalf("expected invalid transport override to fail")
	}
}

func TestBounce(t *testing.T) {
	testlog.Start(t)
	cases := []struct{ pos, limit, want int }{
		{0, 10, 0},
		{7, 10, 7},
		{10, 10, 10},
		{13, 10, 7},
		{20, 10, 0},
		{5, 0, 0},
	}
	for _, tc := range cases {
		if got := bounce(tc.pos, tc.limit); got != tc.want {
			t.Fatalf("bounce(%d, %d) = %d, want %d", tc.pos, tc.limit, got, tc.want)
		}
	}
}

func TestStatusCommand(t *testing.T) {
	testlog.Start(t)
	addr, _, _ := startDevice(t)

	var out bytes.Buffer
	if err := run(context.Background(), []string{"-addr", addr, "status"}, &out, io.Discard); err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out.String(), "initialized:        false") || !strings.Contains(out.String(), "64x48") {
		t.Fatalf("unexpected status output:\n%s", out.String())
	}
}

func TestDemoCommandPresentsFrames(t *testing.T) {
	testlog.Start(t)
	addr, d, latest := startDevice(t)

	var out bytes.Buffer
	args := []string{"-addr", addr, "-frames", "3", "-interval", "0s", "demo"}
	if err := run(context.Background(), args, &out, io.Discard); err != nil {
		t.Fatalf("demo: %v", err)
	}
	if !strings.Contains(out.String(), "presented 3 frames") {
		t.Fatalf("unexpected demo output: %q", out.String())
	}
	if snap := d.Snapshot(); snap.Presents != 3 {
		t.Fatalf("expected 3 presents on the device, got %d", snap.Presents)
	}
	f, ok := latest.Get()
	if !ok || f.Seq != 3 {
		t.Fatalf("expected third frame published, got ok=%v seq=%d", ok, f.Seq)
	}
	if got := f.Pixels[f.Width*f.Height-1]; got != background {
		t.Fatalf("expected background in the corner, got %#04x", uint16(got))
	}
}

func TestResetCommand(t *testing.T) {
	testlog.Start(t)
	addr, d, _ := startDevice(t)

	if err := run(context.Background(), []string{"-addr", addr, "demo", "-frames", "1"}, io.Discard, io.Discard); !errors.Is(err, errUsage) {
		t.Fatalf("flags after the command are not accepted, got %v", err)
	}
	if err := run(context.Background(), []string{"-addr", addr, "-frames", "1", "-interval", "0s", "demo"}, io.Discard, io.Discard); err != nil {
		t.Fatalf("demo: %v", err)
	}
	if err := run(context.Background(), []string{"-addr", addr, "reset"}, io.Discard, io.Discard); err != nil {
		t.Fatalf("reset: %v", err)
	}

	var out bytes.Buffer
	if err := run(context.Background(), []string{"-addr", addr, "status"}, &out, io.Discard); err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out.String(), "initialized:        false") {
		t.Fatalf("expected device to be uninitialized after reset:\n%s", out.String())
	}
	if snap := d.Snapshot(); snap.Restarts != 1 {
		t.Fatalf("expected one restart, got %d", snap.Restarts)
	}
}
