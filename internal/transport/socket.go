package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
)

// Socket is a duplex byte stream. net.Conn satisfies it directly.
type Socket interface {
	io.Reader
	io.Writer
	io.Closer
}

var _ Socket = (net.Conn)(nil)

// ReadHalf is the read direction of a split Socket. It is owned by exactly
// one reader for the life of the connection.
type ReadHalf struct {
	r      *bufio.Reader
	closer io.Closer
}

func (h *ReadHalf) Read(p []byte) (int, error) {
	return h.r.Read(p)
}

// Close tears down the read direction. Transports that support half-close
// (tcp, unix) keep the write direction alive; everything else closes the
// whole socket.
func (h *ReadHalf) Close() error {
	type readCloser interface {
		CloseRead() error
	}
	if rc, ok := h.closer.(readCloser); ok {
		return rc.CloseRead()
	}
	return h.closer.Close()
}

// WriteHalf is the write direction of a split Socket. It is owned by exactly
// one writer for the life of the connection.
type WriteHalf struct {
	w io.Writer
}

func (h *WriteHalf) Write(p []byte) (int, error) {
	return h.w.Write(p)
}

// Split divides a Socket into its two directions. The halves have
// independent ownership; neither is safe for use by more than one goroutine.
func Split(s Socket) (*ReadHalf, *WriteHalf) {
	return &ReadHalf{r: bufio.NewReader(s), closer: s}, &WriteHalf{w: s}
}

// Dial opens a Socket over tcp or unix.
func Dial(ctx context.Context, network, addr string) (Socket, error) {
	switch network {
	case "tcp", "tcp4", "tcp6", "unix":
	default:
		return nil, fmt.Errorf("transport: unsupported network %q", network)
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s %s: %w", network, addr, err)
	}
	return conn, nil
}

// Listen opens a listener whose accepted connections satisfy Socket.
func Listen(network, addr string) (net.Listener, error) {
	switch network {
	case "tcp", "tcp4", "tcp6", "unix":
	default:
		return nil, fmt.Errorf("transport: unsupported network %q", network)
	}
	l, err := net.Listen(network, addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s %s: %w", network, addr, err)
	}
	return l, nil
}
