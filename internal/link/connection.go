package link

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/linkctl/internal/observability"
	"github.com/danmuck/linkctl/internal/protocol"
	"github.com/danmuck/linkctl/internal/transport"
)

// Builder produces one connection's matched delegate pair. It is called
// exactly once, synchronously, before either direction starts running, so
// the two delegates can share correlation state.
type Builder interface {
	Build() (ReaderDelegate, WriterDelegate)
}

// WriterDelegate is the outbound policy object. It is only ever driven by
// the connection's single writer goroutine.
type WriterDelegate interface {
	// Recv blocks until the next envelope is available. ok=false means the
	// source is permanently closed (or ctx canceled) and no envelope will
	// ever arrive again.
	Recv(ctx context.Context) (*Envelope, bool)
	// Disconnect reports a per-message write failure. It must not block
	// indefinitely; the loop continues draining after it returns.
	Disconnect(msg *protocol.Message, err error)
	// Exit runs once, after the source closes.
	Exit()
}

// ReaderDelegate is the inbound policy object. It is only ever driven by
// the goroutine inside Run.
type ReaderDelegate interface {
	// WaitShutdown returns a channel that is closed when external shutdown
	// is requested. It may never close.
	WaitShutdown() <-chan struct{}
	// Disconnect runs once on a connection-fatal read error. The writer
	// task handle lets the delegate force-stop or await the paired writer.
	Disconnect(err error, writer *WriterTask)
	// Exit runs exactly once at loop termination, regardless of cause.
	Exit()
	HandleMsg(msg *protocol.Message)
	HandleErr(header protocol.Header, err error)
}

// Connection owns one socket's read half, the spawned writer task, and the
// reader delegate. It is consumed by Run; a terminated Connection cannot be
// reused.
type Connection struct {
	id         string
	reader     *transport.ReadHalf
	writerTask *WriterTask
	delegate   ReaderDelegate
	limits     protocol.Limits
	log        zerolog.Logger
}

// New splits the socket, builds the delegate pair, and immediately spawns
// the writer goroutine. The reader direction stays idle until Run.
func New(sock transport.Socket, builder Builder) *Connection {
	return NewWithLimits(sock, builder, protocol.DefaultLimits())
}

func NewWithLimits(sock transport.Socket, builder Builder, limits protocol.Limits) *Connection {
	readHalf, writeHalf := transport.Split(sock)
	readerDelegate, writerDelegate := builder.Build()

	id := uuid.NewString()
	logger := log.With().Str("conn_id", id).Logger()

	ctx, cancel := context.WithCancel(context.Background())
	task := &WriterTask{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go runWriter(ctx, writeHalf, writerDelegate, task, limits, logger)

	return &Connection{
		id:         id,
		reader:     readHalf,
		writerTask: task,
		delegate:   readerDelegate,
		limits:     limits,
		log:        logger,
	}
}

// ID is the engine-assigned connection identifier used in logs and metrics.
func (c *Connection) ID() string {
	return c.id
}

type readResult struct {
	msg    *protocol.Message
	header protocol.Header
	err    error
	fatal  bool
}

// Run drives the reader loop to completion. Each iteration races the next
// message parse against the delegate's shutdown signal; neither arm has
// priority. When both are ready the select picks one at random: if the
// parse wins, that message is still dispatched and shutdown is observed on
// the next iteration, so shutdown is never starved.
//
// Per-message failures never surface here; they reach the delegate hooks
// and envelope slots instead.
func (c *Connection) Run() error {
	results := make(chan readResult)
	quit := make(chan struct{})
	go c.readPump(results, quit)

loop:
	for {
		select {
		case res := <-results:
			switch {
			case res.err == nil:
				c.log.Trace().Uint32("stream_id", res.msg.Header.StreamID).Msg("got message")
				observability.RecordMessageRead()
				c.delegate.HandleMsg(res.msg)
			case !res.fatal:
				c.log.Trace().Err(res.err).Uint32("stream_id", res.header.StreamID).Msg("read error, stream correlated")
				observability.RecordReadError(observability.ReadErrorKindStream)
				c.delegate.HandleErr(res.header, res.err)
			default:
				c.log.Trace().Err(res.err).Msg("read error, connection fatal")
				observability.RecordReadError(observability.ReadErrorKindFatal)
				c.delegate.Disconnect(res.err, c.writerTask)
				break loop
			}
		case <-c.delegate.WaitShutdown():
			c.log.Trace().Msg("received shutdown")
			break loop
		}
	}

	close(quit)
	// Unblocks a pump stuck mid-parse; an in-flight result is discarded.
	_ = c.reader.Close()
	c.delegate.Exit()
	c.log.Trace().Msg("reader task exit")
	return nil
}

// readPump parses messages off the read half and hands each result to Run.
// It never outlives Run: a fatal result is its last, and quit covers the
// shutdown path where Run stops receiving.
func (c *Connection) readPump(results chan<- readResult, quit <-chan struct{}) {
	for {
		var res readResult
		msg, err := protocol.ReadMessage(c.reader, c.limits)
		switch {
		case err == nil:
			res = readResult{msg: msg}
		default:
			if he, ok := protocol.AsHeaderError(err); ok {
				res = readResult{header: he.Header, err: err}
			} else {
				res = readResult{err: err, fatal: true}
			}
		}
		select {
		case results <- res:
			if res.fatal {
				return
			}
		case <-quit:
			return
		}
	}
}
