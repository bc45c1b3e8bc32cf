package client

import (
	"sync"

	"github.com/danmuck/linkctl/internal/protocol"
)

type callResult struct {
	resp protocol.Response
	err  error
}

// pendingCalls is the correlation table shared by the client's reader and
// writer delegates. Both directions touch it from their own goroutines, so
// it synchronizes internally; the engine never sees it.
type pendingCalls struct {
	mu      sync.Mutex
	waiters map[uint32]chan callResult
}

func newPendingCalls() *pendingCalls {
	return &pendingCalls{
		waiters: make(map[uint32]chan callResult),
	}
}

func (p *pendingCalls) Register(streamID uint32) <-chan callResult {
	ch := make(chan callResult, 1)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waiters[streamID] = ch
	return ch
}

// Deliver hands a result to the waiter for streamID, if any. The waiter is
// removed first so a stream is resolved at most once.
func (p *pendingCalls) Deliver(streamID uint32, res callResult) bool {
	p.mu.Lock()
	ch, ok := p.waiters[streamID]
	if ok {
		delete(p.waiters, streamID)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	ch <- res
	return true
}

func (p *pendingCalls) Remove(streamID uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.waiters, streamID)
}

// FailAll resolves every outstanding waiter with err. Used when the
// connection dies underneath the pending calls.
func (p *pendingCalls) FailAll(err error) {
	p.mu.Lock()
	waiters := p.waiters
	p.waiters = make(map[uint32]chan callResult)
	p.mu.Unlock()
	for _, ch := range waiters {
		ch <- callResult{err: err}
	}
}

func (p *pendingCalls) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}
