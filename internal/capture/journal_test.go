package capture

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/danmuck/microgpu/internal/color"
	"github.com/danmuck/microgpu/internal/display"
	"github.com/danmuck/microgpu/internal/testutil/testlog"
)

func testFrame(seq uint64, c color.Color) display.Frame {
	return display.Frame{
		Seq:    seq,
		Width:  2,
		Height: 2,
		Scale:  3,
		Pixels: []color.Color{c, c, c, color.White},
	}
}

func TestJournalSamplesAndStores(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "frames.db")

	j, err := Open(path, Options{Every: 2, Queue: 8})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for seq := uint64(1); seq <= 4; seq++ {
		j.Frame(testFrame(seq, color.Color(seq)))
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	j, err = Open(path, DefaultOptions())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j.Close()

	entries, err := j.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[0].Seq != 4 || entries[1].Seq != 2 {
		t.Fatalf("unexpected entries %+v", entries)
	}

	latest, err := j.Latest(context.Background())
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.Seq != 4 || latest.Scale != 3 || latest.Pixels[0] != color.Color(4) || latest.Pixels[3] != color.White {
		t.Fatalf("unexpected latest frame %+v", latest)
	}

	older, err := j.Get(context.Background(), 2)
	if err != nil || older.Pixels[1] != color.Color(2) {
		t.Fatalf("unexpected frame 2: %+v (%v)", older, err)
	}
}

func TestJournalKeepsNewest(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "frames.db")
	j, err := Open(path, Options{Every: 1, Keep: 2, Queue: 8})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for seq := uint64(1); seq <= 5; seq++ {
		j.Frame(testFrame(seq, color.Red))
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if j.Dropped() != 0 {
		t.Fatalf("dropped %d frames", j.Dropped())
	}

	j, err = Open(path, DefaultOptions())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j.Close()
	entries, err := j.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[0].Seq != 5 || entries[1].Seq != 4 {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestJournalEmpty(t *testing.T) {
	testlog.Start(t)
	j, err := Open(filepath.Join(t.TempDir(), "frames.db"), DefaultOptions())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer j.Close()
	if _, err := j.Latest(context.Background()); !errors.Is(err, ErrNoFrames) {
		t.Fatalf("expected ErrNoFrames, got %v", err)
	}
}

func TestJournalKeepsFramesAcrossDeviceRestart(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "frames.db")
	opts := Options{Every: 1, Keep: 2, Queue: 8}

	j, err := Open(path, opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for seq := uint64(1); seq <= 3; seq++ {
		j.Frame(testFrame(seq, color.Red))
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// a restarted device counts presents from 1 again
	j, err = Open(path, opts)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	j.Frame(testFrame(1, color.Blue))
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	j, err = Open(path, opts)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j.Close()

	ctx := context.Background()
	latest, err := j.Latest(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.Seq != 1 || latest.Pixels[0] != color.Blue {
		t.Fatalf("expected the blue frame from the new run, got seq=%d pixel0=%#04x", latest.Seq, uint16(latest.Pixels[0]))
	}
	entries, err := j.List(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[0].Seq != 1 || entries[1].Seq != 3 {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if entries[0].ID <= entries[1].ID {
		t.Fatalf("expected newest entry first, got ids %d then %d", entries[0].ID, entries[1].ID)
	}
	byseq, err := j.Get(ctx, 1)
	if err != nil || byseq.Pixels[0] != color.Blue {
		t.Fatalf("expected seq 1 to resolve to the newest run: %+v (%v)", byseq, err)
	}
}
