// Package runner contains the per-platform test run state machine and
// the coordinator that folds many platform outcomes into one verdict.
package runner

import (
	"io"
	"sync"
	"time"
)

// Heartbeat emits a progress character at a fixed interval while at
// least one remote session is being established, so CI watchdogs don't
// declare the build hung during slow session queues. It is shared by
// all concurrently initializing platforms: a reference count of
// in-flight initializations keeps exactly one ticker alive while the
// count is above zero.
type Heartbeat struct {
	out      io.Writer
	interval time.Duration

	mx   sync.Mutex
	refs int
	stop chan struct{}
	done chan struct{}
}

// NewHeartbeat returns a heartbeat writing to out every interval.
func NewHeartbeat(out io.Writer, interval time.Duration) *Heartbeat {
	return &Heartbeat{out: out, interval: interval}
}

// Acquire registers one in-flight session initialization. The first
// acquisition emits a tick immediately and starts the ticker.
func (h *Heartbeat) Acquire() {
	h.mx.Lock()
	defer h.mx.Unlock()

	h.refs++
	if h.refs > 1 {
		return
	}

	h.tick()
	h.stop = make(chan struct{})
	h.done = make(chan struct{})
	go h.loop(h.stop, h.done)
}

// Release unregisters one in-flight initialization. When the count
// returns to zero the ticker is stopped; the call blocks until the
// ticker goroutine has exited, so no tick is emitted after Release
// returns. Releasing without a matching Acquire is a no-op.
func (h *Heartbeat) Release() {
	h.mx.Lock()
	if h.refs == 0 {
		h.mx.Unlock()
		return
	}
	h.refs--
	if h.refs > 0 {
		h.mx.Unlock()
		return
	}
	stop, done := h.stop, h.done
	h.stop, h.done = nil, nil
	h.mx.Unlock()

	close(stop)
	<-done
}

func (h *Heartbeat) loop(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h.tick()
		}
	}
}

func (h *Heartbeat) tick() {
	_, _ = h.out.Write([]byte(">"))
}
