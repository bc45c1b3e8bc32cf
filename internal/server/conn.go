package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/danmuck/linkctl/internal/link"
	"github.com/danmuck/linkctl/internal/observability"
	"github.com/danmuck/linkctl/internal/protocol"
)

var errConnClosed = errors.New("server: connection closed")

// connState is the shared state behind one connection's delegate pair: the
// response queue the writer drains and the dispatch context handlers run
// under. Built once per connection, before either direction starts.
type connState struct {
	srv       *Server
	responses chan *link.Envelope
	done      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	handlers  sync.WaitGroup
	fatal     atomic.Bool
}

func newConnState(s *Server) *connState {
	ctx, cancel := context.WithCancel(context.Background())
	return &connState{
		srv:       s,
		responses: make(chan *link.Envelope),
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (st *connState) Build() (link.ReaderDelegate, link.WriterDelegate) {
	return &connReader{st: st}, &connWriter{st: st}
}

func (st *connState) close() {
	st.closeOnce.Do(func() {
		close(st.done)
		st.cancel()
	})
}

// dispatch runs one request to completion and queues its response.
func (st *connState) dispatch(msg *protocol.Message) {
	defer st.handlers.Done()

	var resp protocol.Response
	req, err := protocol.DecodeRequest(msg.Payload)
	switch {
	case err != nil:
		resp = protocol.Response{Status: protocol.StatusInvalidArgument, Message: err.Error()}
	default:
		h, ok := st.srv.registry.Lookup(req.Service, req.Method)
		if !ok {
			resp = protocol.Response{
				Status:  protocol.StatusNotFound,
				Message: fmt.Sprintf("%v: %s/%s", ErrMethodNotFound, req.Service, req.Method),
			}
		} else {
			out, herr := h(st.ctx, req.Payload)
			if herr != nil {
				resp = protocol.Response{Status: protocol.StatusInternal, Message: herr.Error()}
			} else {
				resp = protocol.Response{Status: protocol.StatusOK, Payload: out}
			}
		}
	}
	st.respond(msg.Header.StreamID, resp)
}

func (st *connState) respond(streamID uint32, resp protocol.Response) {
	body, err := protocol.EncodeResponse(resp)
	if err != nil {
		st.srv.log.Error().Err(err).Uint32("stream_id", streamID).Msg("encode response")
		return
	}
	env := link.NewEnvelope(&protocol.Message{
		Header: protocol.Header{
			StreamID: streamID,
			Type:     protocol.MessageTypeResponse,
		},
		Payload: body,
	})
	select {
	case st.responses <- env:
	case <-st.done:
		return
	}
	if werr := <-env.Done(); werr != nil {
		st.srv.log.Warn().Err(werr).Uint32("stream_id", streamID).Msg("response write failed")
	}
}

type connWriter struct {
	st *connState
}

func (d *connWriter) Recv(ctx context.Context) (*link.Envelope, bool) {
	select {
	case env := <-d.st.responses:
		return env, true
	case <-d.st.done:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// Disconnect: a single response failing to serialize is not fatal to the
// connection; the submitter already holds the failure through its slot.
func (d *connWriter) Disconnect(msg *protocol.Message, err error) {
	d.st.srv.log.Warn().Err(err).Uint32("stream_id", msg.Header.StreamID).Msg("write failure reported")
}

// Exit drains responses that were queued but never reached the wire.
func (d *connWriter) Exit() {
	for {
		select {
		case env := <-d.st.responses:
			env.Complete(errConnClosed)
		default:
			d.st.srv.log.Trace().Msg("server writer exit")
			return
		}
	}
}

type connReader struct {
	st *connState
}

func (d *connReader) WaitShutdown() <-chan struct{} {
	return d.st.srv.shutdown
}

func (d *connReader) HandleMsg(msg *protocol.Message) {
	if msg.Header.Type != protocol.MessageTypeRequest {
		d.st.srv.log.Warn().Uint8("type", msg.Header.Type).Uint32("stream_id", msg.Header.StreamID).Msg("dropping non-request message")
		return
	}
	d.st.handlers.Add(1)
	go d.st.dispatch(msg)
}

// HandleErr answers a stream-correlated parse failure on the same stream so
// the remote caller learns its request was unusable.
func (d *connReader) HandleErr(header protocol.Header, err error) {
	d.st.handlers.Add(1)
	go func() {
		defer d.st.handlers.Done()
		d.st.respond(header.StreamID, protocol.Response{
			Status:  protocol.StatusInvalidArgument,
			Message: err.Error(),
		})
	}()
}

func (d *connReader) Disconnect(err error, writer *link.WriterTask) {
	d.st.srv.log.Error().Err(err).Msg("connection fatal, stopping writer")
	d.st.fatal.Store(true)
	d.st.close()
	writer.Abort()
}

func (d *connReader) Exit() {
	d.st.close()
	cause := observability.CloseCauseShutdown
	if d.st.fatal.Load() {
		cause = observability.CloseCauseFatal
	}
	observability.RecordConnectionClosed("server", cause)
	d.st.srv.log.Trace().Msg("server reader exit")
}
