package link

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/danmuck/linkctl/internal/observability"
	"github.com/danmuck/linkctl/internal/protocol"
	"github.com/danmuck/linkctl/internal/transport"
)

// WriterTask is the handle to a connection's background writer goroutine.
// The reader delegate receives it on a fatal read so delegate policy, not
// the engine, decides whether to force-stop or await the paired writer.
type WriterTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Abort cancels the context observed by WriterDelegate.Recv. The writer
// stops at its next suspension point; envelopes already in flight still get
// their completion.
func (t *WriterTask) Abort() {
	t.cancel()
}

// Wait blocks until the writer loop has exited and its delegate's Exit hook
// has returned.
func (t *WriterTask) Wait() {
	<-t.done
}

// Done is closed once the writer loop has fully unwound.
func (t *WriterTask) Done() <-chan struct{} {
	return t.done
}

// runWriter drains the delegate's source and serializes each envelope onto
// the write half. A per-envelope write failure is reported through the
// envelope's slot and the delegate's Disconnect hook, then the loop keeps
// draining; only source closure ends the loop.
func runWriter(ctx context.Context, w *transport.WriteHalf, delegate WriterDelegate, task *WriterTask, limits protocol.Limits, log zerolog.Logger) {
	defer close(task.done)

	for {
		env, ok := delegate.Recv(ctx)
		if !ok {
			break
		}
		log.Trace().Uint32("stream_id", env.Msg.Header.StreamID).Msg("write message")
		if err := protocol.WriteMessage(w, env.Msg, limits); err != nil {
			log.Error().Err(err).Uint32("stream_id", env.Msg.Header.StreamID).Msg("write message failed")
			observability.RecordWriteFailure()
			env.Complete(err)
			delegate.Disconnect(env.Msg, err)
		} else {
			observability.RecordMessageWritten()
		}
		// No-op when the failure path above already fulfilled the slot.
		env.Complete(nil)
	}

	delegate.Exit()
	log.Trace().Msg("writer task exit")
}
