package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/linkctl/internal/link"
	"github.com/danmuck/linkctl/internal/observability"
	"github.com/danmuck/linkctl/internal/protocol"
	"github.com/danmuck/linkctl/internal/transport"
)

var (
	ErrClosed = errors.New("client: closed")
	ErrBroken = errors.New("client: connection broken")
)

// StatusError is a non-OK response from the remote handler.
type StatusError struct {
	Status  uint32
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("client: remote status %d: %s", e.Status, e.Message)
}

// Client drives one connection in the client role. Calls are correlated to
// responses by stream id; the engine stays unaware of that policy.
type Client struct {
	calls    chan *link.Envelope
	pending  *pendingCalls
	shutdown chan struct{}
	exited   chan struct{}

	mu        sync.Mutex
	closed    bool
	brokenErr error
	fatal     bool

	closeOnce sync.Once
	streamID  atomic.Uint32
	log       zerolog.Logger
	conn      *link.Connection
}

// New wraps sock in a client-role connection and starts both directions.
func New(sock transport.Socket) *Client {
	return NewWithLimits(sock, protocol.DefaultLimits())
}

func NewWithLimits(sock transport.Socket, limits protocol.Limits) *Client {
	c := &Client{
		calls:    make(chan *link.Envelope),
		pending:  newPendingCalls(),
		shutdown: make(chan struct{}),
		exited:   make(chan struct{}),
	}
	c.conn = link.NewWithLimits(sock, &builder{c: c}, limits)
	c.log = log.With().Str("conn_id", c.conn.ID()).Str("role", "client").Logger()
	observability.RecordConnectionOpened("client")

	go func() {
		_ = c.conn.Run()
	}()
	return c
}

// Call performs one unary round trip. Exactly one outcome is returned per
// call: the response payload, a remote *StatusError, the write failure for
// this message, or the connection-level failure that killed the call.
func (c *Client) Call(ctx context.Context, service, method string, payload []byte) ([]byte, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}

	body, err := protocol.EncodeRequest(protocol.Request{
		Service: service,
		Method:  method,
		Payload: payload,
	})
	if err != nil {
		return nil, err
	}

	streamID := c.nextStreamID()
	env := link.NewEnvelope(&protocol.Message{
		Header: protocol.Header{
			StreamID: streamID,
			Type:     protocol.MessageTypeRequest,
		},
		Payload: body,
	})
	waiter := c.pending.Register(streamID)

	select {
	case c.calls <- env:
	case <-c.shutdown:
		c.pending.Remove(streamID)
		return nil, ErrClosed
	case <-c.exited:
		c.pending.Remove(streamID)
		if err := c.usable(); err != nil {
			return nil, err
		}
		return nil, ErrClosed
	case <-ctx.Done():
		c.pending.Remove(streamID)
		return nil, ctx.Err()
	}

	// First outcome gate: the write result from the envelope's slot.
	select {
	case werr := <-env.Done():
		if werr != nil {
			c.pending.Remove(streamID)
			return nil, werr
		}
	case <-ctx.Done():
		c.pending.Remove(streamID)
		return nil, ctx.Err()
	}

	// Second outcome gate: the correlated response.
	select {
	case res := <-waiter:
		if res.err != nil {
			return nil, res.err
		}
		if res.resp.Status != protocol.StatusOK {
			return nil, &StatusError{Status: res.resp.Status, Message: res.resp.Message}
		}
		return res.resp.Payload, nil
	case <-ctx.Done():
		c.pending.Remove(streamID)
		return nil, ctx.Err()
	}
}

// Close requests shutdown of both directions. Idempotent; in-flight calls
// resolve with ErrClosed if their response never arrives.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.shutdown)
	})
	return nil
}

// Done is closed once the reader direction has fully unwound.
func (c *Client) Done() <-chan struct{} {
	return c.exited
}

func (c *Client) usable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.brokenErr != nil {
		return fmt.Errorf("%w: %v", ErrBroken, c.brokenErr)
	}
	return nil
}

// nextStreamID yields odd ids: the client side of the stream id space.
func (c *Client) nextStreamID() uint32 {
	return c.streamID.Add(2) - 1
}

func (c *Client) markBroken(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.brokenErr == nil {
		c.brokenErr = err
	}
}

func (c *Client) markFatal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fatal = true
}

func (c *Client) wasFatal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatal
}
