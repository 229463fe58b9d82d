// File: netchannel/reorder.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Optional, disabled-by-default network-unreliability extension point.
// When enabled it holds up to reorderWindow freshly written wire slots in a
// small FIFO before committing them to READY, oldest first. The wire buffer
// is consumed strictly in slot order, so staging delays delivery but does
// not change the order in which packets leave the wire. Built on
// github.com/eapache/queue as a growable FIFO.

package netchannel

import (
	"sync"

	"github.com/eapache/queue"

	"github.com/ztblick/packet-transport-sim/slotring"
	"github.com/ztblick/packet-transport-sim/wireclock"
)

type pendingDelivery struct {
	handle  *slotring.Handle
	readyAt wireclock.Millis
}

// reorderBuffer holds written-but-not-yet-visible wire packets in a
// bounded window, releasing the oldest one first once the window is full
// (FIFO-with-delay). It delays packets; it does not reorder them.
type reorderBuffer struct {
	mu     sync.Mutex
	window int
	q      *queue.Queue
}

func newReorderBuffer(window int) *reorderBuffer {
	if window <= 0 {
		window = 1
	}
	return &reorderBuffer{window: window, q: queue.New()}
}

// admit stages a freshly-written wire slot instead of immediately
// committing it to READY. Once more than window entries are staged, the
// oldest staged entry is committed.
func (r *reorderBuffer) admit(h *slotring.Handle, readyAt wireclock.Millis) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.q.Add(pendingDelivery{handle: h, readyAt: readyAt})
	if r.q.Length() > r.window {
		oldest := r.q.Remove().(pendingDelivery)
		oldest.handle.CommitWrite(oldest.readyAt)
	}
}

// releaseReady commits every staged entry whose deadline has arrived,
// preventing a slow trickle of admissions from holding packets forever.
func (r *reorderBuffer) releaseReady(now wireclock.Millis) {
	r.mu.Lock()
	defer r.mu.Unlock()
	remaining := queue.New()
	for r.q.Length() > 0 {
		item := r.q.Remove().(pendingDelivery)
		if item.readyAt <= now {
			item.handle.CommitWrite(item.readyAt)
		} else {
			remaining.Add(item)
		}
	}
	r.q = remaining
}
