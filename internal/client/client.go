// Package client drives a microgpu device from the host side.
//
// Drawing operations are queued and packed into batches that fit the
// transport; operations that produce a response flush the queue first so
// the device sees commands in the order they were issued.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/microgpu/internal/databus"
	"github.com/danmuck/microgpu/internal/protocol"
	"github.com/danmuck/microgpu/internal/protocol/session"
)

var (
	ErrResponsiveOp   = errors.New("client: operation produces a response and cannot be queued")
	ErrNotInitialized = errors.New("client: device did not initialize")
	ErrClosed         = errors.New("client: closed")
)

type deadliner interface {
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// Client is not safe for concurrent use.
type Client struct {
	link  *databus.Link
	cfg   session.Config
	batch *protocol.BatchBuilder
	// single holds the only queued payload so a batch of one goes out bare.
	single []byte
	closed bool
	sent   uint64
}

func New(link *databus.Link, cfg session.Config) *Client {
	return &Client{
		link:  link,
		cfg:   cfg.WithDefaults(),
		batch: protocol.NewBatchBuilder(link.MaxPayload()),
	}
}

// Dial connects to a device, retrying with backoff until the attempt limit
// or ctx ends.
func Dial(ctx context.Context, transport, addr string, cfg session.Config) (*Client, error) {
	cfg = cfg.WithDefaults()
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	dial := func(network, address string) (net.Conn, error) {
		return dialer.DialContext(ctx, network, address)
	}

	var lastErr error
	for attempt := 1; cfg.MaxConnectAttempts <= 0 || attempt <= cfg.MaxConnectAttempts; attempt++ {
		link, err := databus.DialLink(transport, addr, dial)
		if err == nil {
			log.Debug().Str("transport", transport).Str("addr", addr).Int("attempt", attempt).Msg("client_connected")
			return New(link, cfg), nil
		}
		lastErr = err
		log.Debug().Err(err).Str("addr", addr).Int("attempt", attempt).Msg("client_dial_failed")
		if attempt == cfg.MaxConnectAttempts {
			break
		}
		if err := session.Wait(ctx, cfg.Backoff, attempt, nil); err != nil {
			return nil, fmt.Errorf("client: dial %s: %w", addr, errors.Join(err, lastErr))
		}
	}
	return nil, fmt.Errorf("client: dial %s after %d attempts: %w", addr, cfg.MaxConnectAttempts, lastErr)
}

// MaxOperationSize is the largest payload the transport carries.
func (c *Client) MaxOperationSize() int {
	return c.link.MaxPayload()
}

// Sent counts payloads written to the transport.
func (c *Client) Sent() uint64 {
	return c.sent
}

// Pending is the number of queued operations not yet sent.
func (c *Client) Pending() int {
	return c.batch.Count()
}

// Queue adds a fire-and-forget operation, sending the current batch first
// when op does not fit.
func (c *Client) Queue(op protocol.Operation) error {
	if c.closed {
		return ErrClosed
	}
	switch op.(type) {
	case protocol.GetStatus, protocol.GetLastMessage:
		return fmt.Errorf("%w: %s", ErrResponsiveOp, op.Type())
	}
	payload, err := protocol.EncodeOperation(op)
	if err != nil {
		return err
	}
	if len(payload) > c.link.MaxPayload() {
		return fmt.Errorf("%w: %s encodes to %d bytes, transport carries %d",
			protocol.ErrOperationTooLarge, op.Type(), len(payload), c.link.MaxPayload())
	}

	ok, err := c.batch.AddEncoded(payload)
	if errors.Is(err, protocol.ErrOperationTooLarge) {
		// fits the transport but not inside a batch header
		if err := c.Flush(); err != nil {
			return err
		}
		return c.send(payload)
	}
	if err != nil {
		return err
	}
	if !ok {
		if err := c.Flush(); err != nil {
			return err
		}
		if _, err := c.batch.AddEncoded(payload); err != nil {
			return err
		}
	}
	if c.batch.Count() == 1 {
		c.single = payload
	}
	return nil
}

// Flush sends whatever is queued.
func (c *Client) Flush() error {
	if c.closed {
		return ErrClosed
	}
	count := c.batch.Count()
	if count == 0 {
		return nil
	}
	var payload []byte
	if count == 1 {
		payload = c.single
	} else {
		payload = c.batch.Bytes()
	}
	c.batch.Reset()
	c.single = nil
	return c.send(payload)
}

func (c *Client) send(payload []byte) error {
	if d, ok := c.link.Conn().(deadliner); ok && c.cfg.WriteTimeout > 0 {
		_ = d.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	if err := c.link.Send(payload); err != nil {
		return fmt.Errorf("client: send: %w", err)
	}
	c.sent++
	return nil
}

// request flushes the queue, sends op and waits for its response.
func (c *Client) request(op protocol.Operation) (protocol.Response, error) {
	if err := c.Flush(); err != nil {
		return nil, err
	}
	payload, err := protocol.EncodeOperation(op)
	if err != nil {
		return nil, err
	}
	if err := c.send(payload); err != nil {
		return nil, err
	}
	if d, ok := c.link.Conn().(deadliner); ok && c.cfg.ReadTimeout > 0 {
		_ = d.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		defer d.SetReadDeadline(time.Time{})
	}
	raw, err := c.link.Receive()
	if err != nil {
		return nil, fmt.Errorf("client: receive %s: %w", op.Type(), err)
	}
	return protocol.DecodeResponse(raw)
}

func (c *Client) Status() (protocol.Status, error) {
	resp, err := c.request(protocol.GetStatus{})
	if err != nil {
		return protocol.Status{}, err
	}
	status, ok := resp.(protocol.Status)
	if !ok {
		return protocol.Status{}, fmt.Errorf("%w: expected status, got type %d", protocol.ErrUnknownResponse, resp.ResponseType())
	}
	return status, nil
}

// LastMessage returns the device's diagnostic for the previous operation.
func (c *Client) LastMessage() (string, error) {
	resp, err := c.request(protocol.GetLastMessage{})
	if err != nil {
		return "", err
	}
	msg, ok := resp.(protocol.LastMessage)
	if !ok {
		return "", fmt.Errorf("%w: expected last message, got type %d", protocol.ErrUnknownResponse, resp.ResponseType())
	}
	return msg.Message, nil
}

// Initialize sends Initialize and confirms it through a status request. On
// failure the device's diagnostic is part of the error.
func (c *Client) Initialize(scale uint8) (protocol.Status, error) {
	if err := c.Flush(); err != nil {
		return protocol.Status{}, err
	}
	payload, err := protocol.EncodeOperation(protocol.Initialize{Scale: scale})
	if err != nil {
		return protocol.Status{}, err
	}
	if err := c.send(payload); err != nil {
		return protocol.Status{}, err
	}
	// the diagnostic only survives until the next operation other than
	// GetLastMessage, so read it before the status request
	msg, err := c.LastMessage()
	if err != nil {
		return protocol.Status{}, err
	}
	status, err := c.Status()
	if err != nil {
		return protocol.Status{}, err
	}
	if !status.Initialized {
		return status, fmt.Errorf("%w: %s", ErrNotInitialized, msg)
	}
	return status, nil
}

// Present queues a framebuffer present and sends the queue.
func (c *Client) Present() error {
	if err := c.Queue(protocol.PresentFramebuffer{}); err != nil {
		return err
	}
	return c.Flush()
}

// Reset sends the queue followed by a reset request. The device drops all
// state and waits for a new Initialize.
func (c *Client) Reset() error {
	if err := c.Queue(protocol.Reset{}); err != nil {
		return err
	}
	return c.Flush()
}

// Close sends anything still queued and closes the link.
func (c *Client) Close() error {
	if c.closed {
		return nil
	}
	flushErr := c.Flush()
	c.closed = true
	return errors.Join(flushErr, c.link.Close())
}
