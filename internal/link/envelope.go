package link

import (
	"sync"

	"github.com/danmuck/linkctl/internal/protocol"
)

// Envelope pairs one outbound message with a single-use completion slot.
// The slot is fulfilled exactly once per envelope no matter which path
// (success, write failure, drain-on-close) reaches it first.
type Envelope struct {
	Msg *protocol.Message

	once sync.Once
	done chan error
}

func NewEnvelope(msg *protocol.Message) *Envelope {
	return &Envelope{
		Msg:  msg,
		done: make(chan error, 1),
	}
}

// Complete fulfills the completion slot. The first fulfillment wins; later
// calls are no-ops.
func (e *Envelope) Complete(err error) {
	e.once.Do(func() {
		e.done <- err
		close(e.done)
	})
}

// Done yields the outcome of the write: nil on success, the write error
// otherwise. Receive from it at most once; after the first receive the
// channel is closed and reads the zero value.
func (e *Envelope) Done() <-chan error {
	return e.done
}
