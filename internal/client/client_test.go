package client

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/linkctl/internal/protocol"
	"github.com/danmuck/linkctl/internal/testutil/testlog"
)

// fakeRemote answers unary requests on the far end of a pipe without going
// through the engine, so client behavior is observed in isolation.
func fakeRemote(t *testing.T, conn net.Conn, respond func(req protocol.Request) protocol.Response) {
	t.Helper()
	go func() {
		for {
			msg, err := protocol.ReadMessage(conn, protocol.DefaultLimits())
			if err != nil {
				return
			}
			req, err := protocol.DecodeRequest(msg.Payload)
			if err != nil {
				return
			}
			body, err := protocol.EncodeResponse(respond(req))
			if err != nil {
				return
			}
			out := &protocol.Message{
				Header: protocol.Header{
					StreamID: msg.Header.StreamID,
					Type:     protocol.MessageTypeResponse,
				},
				Payload: body,
			}
			if err := protocol.WriteMessage(conn, out, protocol.DefaultLimits()); err != nil {
				return
			}
		}
	}()
}

func TestCallRoundTrip(t *testing.T) {
	testlog.Start(t)
	local, remote := net.Pipe()
	fakeRemote(t, remote, func(req protocol.Request) protocol.Response {
		return protocol.Response{Status: protocol.StatusOK, Payload: req.Payload}
	})

	c := New(local)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := c.Call(ctx, "echo", "echo", []byte("hello"))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if string(out) != "hello" {
		t.Fatalf("unexpected payload: %q", out)
	}
}

func TestCallSurfacesRemoteStatus(t *testing.T) {
	testlog.Start(t)
	local, remote := net.Pipe()
	fakeRemote(t, remote, func(req protocol.Request) protocol.Response {
		return protocol.Response{Status: protocol.StatusNotFound, Message: "no such method"}
	})

	c := New(local)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := c.Call(ctx, "echo", "missing", nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Status != protocol.StatusNotFound {
		t.Fatalf("unexpected status: %d", se.Status)
	}
}

func TestCallsAreCorrelatedByStream(t *testing.T) {
	testlog.Start(t)
	local, remote := net.Pipe()
	fakeRemote(t, remote, func(req protocol.Request) protocol.Response {
		return protocol.Response{Status: protocol.StatusOK, Payload: []byte(req.Method)}
	})

	c := New(local)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	methods := []string{"alpha", "beta", "gamma", "delta"}
	for _, method := range methods {
		wg.Add(1)
		go func(method string) {
			defer wg.Done()
			out, err := c.Call(ctx, "svc", method, nil)
			if err != nil {
				t.Errorf("call %s: %v", method, err)
				return
			}
			if string(out) != method {
				t.Errorf("call %s got %q", method, out)
			}
		}(method)
	}
	wg.Wait()
}

func TestFatalReadFailsPendingCalls(t *testing.T) {
	testlog.Start(t)
	local, remote := net.Pipe()

	c := New(local)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	callErr := make(chan error, 1)
	go func() {
		_, err := c.Call(ctx, "echo", "echo", []byte("stalled"))
		callErr <- err
	}()

	// Consume the request so the write succeeds, then kill the connection
	// before responding.
	if _, err := protocol.ReadMessage(remote, protocol.DefaultLimits()); err != nil {
		t.Fatalf("remote read: %v", err)
	}
	remote.Close()

	select {
	case err := <-callErr:
		if !errors.Is(err, ErrBroken) {
			t.Fatalf("pending call should fail with ErrBroken, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("pending call never resolved")
	}

	// The connection is now marked broken for future submissions.
	if _, err := c.Call(ctx, "echo", "echo", nil); !errors.Is(err, ErrBroken) {
		t.Fatalf("post-disconnect call should fail fast, got %v", err)
	}
	if c.pending.Len() != 0 {
		t.Fatalf("pending table should be empty, has %d", c.pending.Len())
	}
}

func TestCallAfterCloseFailsFast(t *testing.T) {
	testlog.Start(t)
	local, _ := net.Pipe()
	c := New(local)
	_ = c.Close()

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("close never unwound the reader")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := c.Call(ctx, "echo", "echo", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestWriteFailureResolvesCallAndMarksBroken(t *testing.T) {
	testlog.Start(t)
	writeErr := errors.New("wire down")
	sock := &failingSocket{writeErr: writeErr}
	c := New(sock)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := c.Call(ctx, "echo", "echo", nil); !errors.Is(err, writeErr) {
		t.Fatalf("call should surface the write failure, got %v", err)
	}

	// The delegate's disconnect hook runs just after the slot is fulfilled;
	// give it a moment to mark the connection broken.
	deadline := time.After(2 * time.Second)
	for {
		if err := c.usable(); errors.Is(err, ErrBroken) {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("connection never marked broken")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if _, err := c.Call(ctx, "echo", "echo", nil); !errors.Is(err, ErrBroken) {
		t.Fatalf("post-failure call should fail fast, got %v", err)
	}
}

func TestStreamIDsAreOddAndIncreasing(t *testing.T) {
	testlog.Start(t)
	local, _ := net.Pipe()
	c := New(local)
	defer c.Close()

	prev := uint32(0)
	for i := 0; i < 5; i++ {
		id := c.nextStreamID()
		if id%2 != 1 {
			t.Fatalf("stream id must be odd, got %d", id)
		}
		if id <= prev {
			t.Fatalf("stream ids must increase, got %d after %d", id, prev)
		}
		prev = id
	}
}

// failingSocket blocks reads and fails every write.
type failingSocket struct {
	writeErr  error
	closeOnce sync.Once
	done      chan struct{}
	initOnce  sync.Once
}

func (s *failingSocket) init() {
	s.initOnce.Do(func() { s.done = make(chan struct{}) })
}

func (s *failingSocket) Read(p []byte) (int, error) {
	s.init()
	<-s.done
	return 0, io.EOF
}

func (s *failingSocket) Write(p []byte) (int, error) {
	return 0, s.writeErr
}

func (s *failingSocket) Close() error {
	s.init()
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}
