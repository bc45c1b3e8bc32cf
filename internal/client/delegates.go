package client

import (
	"context"
	"fmt"

	"github.com/danmuck/linkctl/internal/link"
	"github.com/danmuck/linkctl/internal/observability"
	"github.com/danmuck/linkctl/internal/protocol"
)

// builder hands both delegates the same *Client, which carries the shared
// pending-call table and queue state.
type builder struct {
	c *Client
}

func (b *builder) Build() (link.ReaderDelegate, link.WriterDelegate) {
	return &readerDelegate{c: b.c}, &writerDelegate{c: b.c}
}

type writerDelegate struct {
	c *Client
}

func (d *writerDelegate) Recv(ctx context.Context) (*link.Envelope, bool) {
	select {
	case env := <-d.c.calls:
		return env, true
	case <-d.c.shutdown:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

func (d *writerDelegate) Disconnect(msg *protocol.Message, err error) {
	d.c.log.Error().Err(err).Uint32("stream_id", msg.Header.StreamID).Msg("call write failed, marking connection broken")
	d.c.markBroken(err)
}

// Exit drains calls that were queued but never reached the wire, so every
// submitted envelope still gets its one completion.
func (d *writerDelegate) Exit() {
	for {
		select {
		case env := <-d.c.calls:
			env.Complete(ErrClosed)
			d.c.pending.Remove(env.Msg.Header.StreamID)
		default:
			d.c.log.Trace().Msg("client writer exit")
			return
		}
	}
}

type readerDelegate struct {
	c *Client
}

func (d *readerDelegate) WaitShutdown() <-chan struct{} {
	return d.c.shutdown
}

func (d *readerDelegate) HandleMsg(msg *protocol.Message) {
	if msg.Header.Type != protocol.MessageTypeResponse {
		d.c.log.Warn().Uint8("type", msg.Header.Type).Uint32("stream_id", msg.Header.StreamID).Msg("dropping non-response message")
		return
	}
	resp, err := protocol.DecodeResponse(msg.Payload)
	if err != nil {
		if !d.c.pending.Deliver(msg.Header.StreamID, callResult{err: err}) {
			d.c.log.Warn().Err(err).Uint32("stream_id", msg.Header.StreamID).Msg("undecodable response for unknown stream")
		}
		return
	}
	if !d.c.pending.Deliver(msg.Header.StreamID, callResult{resp: resp}) {
		d.c.log.Warn().Uint32("stream_id", msg.Header.StreamID).Msg("response for unknown stream")
	}
}

func (d *readerDelegate) HandleErr(header protocol.Header, err error) {
	if !d.c.pending.Deliver(header.StreamID, callResult{err: err}) {
		d.c.log.Warn().Err(err).Uint32("stream_id", header.StreamID).Msg("stream error for unknown stream")
	}
}

// Disconnect force-stops the paired writer and fails every pending call:
// once the read direction is dead no response can ever arrive.
func (d *readerDelegate) Disconnect(err error, writer *link.WriterTask) {
	d.c.log.Error().Err(err).Msg("connection fatal, failing pending calls")
	d.c.markBroken(err)
	d.c.markFatal()
	writer.Abort()
	d.c.pending.FailAll(fmt.Errorf("%w: %v", ErrBroken, err))
}

func (d *readerDelegate) Exit() {
	// Orderly shutdown: nothing will resolve still-pending calls, fail them.
	d.c.pending.FailAll(ErrClosed)
	cause := observability.CloseCauseShutdown
	if d.c.wasFatal() {
		cause = observability.CloseCauseFatal
	}
	observability.RecordConnectionClosed("client", cause)
	close(d.c.exited)
	d.c.log.Trace().Msg("client reader exit")
}
