// Package capture journals presented frames to SQLite.
package capture

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/danmuck/microgpu/internal/color"
	"github.com/danmuck/microgpu/internal/display"
)

var ErrNoFrames = errors.New("capture: no frames recorded")

// Rows are ordered by id. seq restarts with every device process, so it
// only identifies a frame within one run.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS presented_frames (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		seq          INTEGER NOT NULL,
		width        INTEGER NOT NULL,
		height       INTEGER NOT NULL,
		scale        INTEGER NOT NULL,
		presented_at TEXT NOT NULL,
		pixels       BLOB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS presented_frames_seq ON presented_frames (seq)`,
}

// Options controls which frames are kept.
type Options struct {
	// Every records one of every N presented frames.
	Every int
	// Keep bounds the journal to the newest Keep frames; zero keeps all.
	Keep int
	// Queue is the number of frames buffered for the writer.
	Queue int
}

func DefaultOptions() Options {
	return Options{Every: 30, Keep: 100, Queue: 8}
}

// Entry describes one stored frame without its pixels.
type Entry struct {
	ID          int64     `json:"id"`
	Seq         uint64    `json:"seq"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Scale       uint8     `json:"scale"`
	PresentedAt time.Time `json:"presented_at"`
}

// Journal is a display.Sink that stores frames on a background writer.
// Frames arriving while the queue is full are dropped.
type Journal struct {
	db   *sql.DB
	opts Options

	mu      sync.Mutex
	seen    uint64
	dropped uint64
	closed  bool

	queue chan display.Frame
	done  chan struct{}
}

// Open creates or opens the journal at path.
func Open(path string, opts Options) (*Journal, error) {
	if opts.Every <= 0 {
		opts.Every = 1
	}
	if opts.Queue <= 0 {
		opts.Queue = 1
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("capture: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("capture: migration: %w", err)
		}
	}

	j := &Journal{
		db:    db,
		opts:  opts,
		queue: make(chan display.Frame, opts.Queue),
		done:  make(chan struct{}),
	}
	go j.run()
	return j, nil
}

// Frame queues f if it falls on the sampling interval.
func (j *Journal) Frame(f display.Frame) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}
	j.seen++
	if j.seen%uint64(j.opts.Every) != 0 {
		return
	}
	select {
	case j.queue <- f:
	default:
		j.dropped++
	}
}

// Dropped counts sampled frames lost to a full queue.
func (j *Journal) Dropped() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}

func (j *Journal) run() {
	defer close(j.done)
	for f := range j.queue {
		if err := j.insert(context.Background(), f); err != nil {
			log.Warn().Err(err).Uint64("seq", f.Seq).Msg("capture_write_failed")
		}
	}
}

func (j *Journal) insert(ctx context.Context, f display.Frame) error {
	blob := make([]byte, 0, len(f.Pixels)*color.BytesPerPixel)
	for _, px := range f.Pixels {
		blob = color.Append(blob, px)
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO presented_frames (seq, width, height, scale, presented_at, pixels) VALUES (?, ?, ?, ?, ?, ?)`,
		int64(f.Seq), f.Width, f.Height, int(f.Scale), f.PresentedAt.UTC().Format(time.RFC3339Nano), blob)
	if err != nil {
		return err
	}
	if j.opts.Keep > 0 {
		_, err = j.db.ExecContext(ctx,
			`DELETE FROM presented_frames WHERE id NOT IN (SELECT id FROM presented_frames ORDER BY id DESC LIMIT ?)`, j.opts.Keep)
	}
	return err
}

// List returns up to limit entries, newest first.
func (j *Journal) List(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, seq, width, height, scale, presented_at FROM presented_frames ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var seq int64
		var scale int
		var at string
		if err := rows.Scan(&e.ID, &seq, &e.Width, &e.Height, &scale, &at); err != nil {
			return nil, err
		}
		e.Seq = uint64(seq)
		e.Scale = uint8(scale)
		e.PresentedAt, _ = time.Parse(time.RFC3339Nano, at)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get loads the newest stored frame with the given sequence number.
func (j *Journal) Get(ctx context.Context, seq uint64) (display.Frame, error) {
	return j.scan(j.db.QueryRowContext(ctx,
		`SELECT seq, width, height, scale, presented_at, pixels FROM presented_frames WHERE seq = ? ORDER BY id DESC LIMIT 1`, int64(seq)))
}

// Latest loads the newest stored frame.
func (j *Journal) Latest(ctx context.Context) (display.Frame, error) {
	return j.scan(j.db.QueryRowContext(ctx,
		`SELECT seq, width, height, scale, presented_at, pixels FROM presented_frames ORDER BY id DESC LIMIT 1`))
}

func (j *Journal) scan(row *sql.Row) (display.Frame, error) {
	var f display.Frame
	var seq int64
	var scale int
	var at string
	var blob []byte
	if err := row.Scan(&seq, &f.Width, &f.Height, &scale, &at, &blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return display.Frame{}, ErrNoFrames
		}
		return display.Frame{}, err
	}
	if len(blob) != f.Width*f.Height*color.BytesPerPixel {
		return display.Frame{}, fmt.Errorf("capture: frame %d has %d pixel bytes for %dx%d", seq, len(blob), f.Width, f.Height)
	}
	f.Seq = uint64(seq)
	f.Scale = uint8(scale)
	f.PresentedAt, _ = time.Parse(time.RFC3339Nano, at)
	f.Pixels = make([]color.Color, f.Width*f.Height)
	for i := range f.Pixels {
		f.Pixels[i] = color.Decode(blob[i*color.BytesPerPixel:])
	}
	return f, nil
}

// Close drains queued frames and closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.queue)
	j.mu.Unlock()

	<-j.done
	return j.db.Close()
}
