// File: slotring/buffer_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package slotring

import (
	"sync"
	"testing"

	"github.com/ztblick/packet-transport-sim/wireclock"
)

func mustWrite(t *testing.T, b *Buffer, payload []byte) *Handle {
	t.Helper()
	h, err := b.ReserveWriteSlot()
	if err != nil {
		t.Fatalf("ReserveWriteSlot: %v", err)
	}
	h.SetSize(uint32(len(payload)))
	if !h.AcquireArenaSpace() {
		t.Fatalf("AcquireArenaSpace rejected a write into an empty buffer")
	}
	h.MarkWriting()
	h.CopyIn(payload)
	h.CommitWrite(0)
	return h
}

func TestReserveAndClaimRoundTrip(t *testing.T) {
	b := New(4, 4096, wireclock.NewFake(0), 20)
	payload := []byte("hello wire")
	mustWrite(t, b, payload)

	h, _, err := b.TryClaimReadSlot(0)
	if err != nil {
		t.Fatalf("TryClaimReadSlot: %v", err)
	}
	out := make([]byte, h.Size())
	n := h.CopyOut(out)
	if string(out[:n]) != string(payload) {
		t.Fatalf("got %q want %q", out[:n], payload)
	}
	h.ReleaseRead()

	if occ := b.Occupancy(); occ != 0 {
		t.Fatalf("expected occupancy 0 after release, got %d", occ)
	}
}

func TestOccupancyNeverExceedsCapacity(t *testing.T) {
	b := New(2, 4096, wireclock.NewFake(0), 20)
	mustWrite(t, b, []byte("a"))
	mustWrite(t, b, []byte("b"))

	if _, err := b.ReserveWriteSlot(); err != ErrNoSlot {
		t.Fatalf("expected ErrNoSlot on a full buffer, got %v", err)
	}
	if occ := b.Occupancy(); occ != 2 {
		t.Fatalf("expected occupancy 2, got %d", occ)
	}
}

func TestFIFOOrdering(t *testing.T) {
	b := New(4, 4096, wireclock.NewFake(0), 20)
	mustWrite(t, b, []byte("first"))
	mustWrite(t, b, []byte("second"))

	h1, _, err := b.TryClaimReadSlot(0)
	if err != nil {
		t.Fatalf("claim 1: %v", err)
	}
	out := make([]byte, h1.Size())
	h1.CopyOut(out)
	if string(out) != "first" {
		t.Fatalf("FIFO violated: got %q first", out)
	}
	h1.ReleaseRead()

	h2, _, err := b.TryClaimReadSlot(0)
	if err != nil {
		t.Fatalf("claim 2: %v", err)
	}
	out2 := make([]byte, h2.Size())
	h2.CopyOut(out2)
	if string(out2) != "second" {
		t.Fatalf("FIFO violated: got %q second", out2)
	}
	h2.ReleaseRead()
}

func TestReadGatedByReadyAt(t *testing.T) {
	clk := wireclock.NewFake(100)
	b := New(2, 4096, clk, 20)

	h, err := b.ReserveWriteSlot()
	if err != nil {
		t.Fatalf("ReserveWriteSlot: %v", err)
	}
	h.SetSize(3)
	if !h.AcquireArenaSpace() {
		t.Fatalf("AcquireArenaSpace failed")
	}
	h.MarkWriting()
	h.CopyIn([]byte("abc"))
	h.CommitWrite(150)

	if _, readyAt, err := b.TryClaimReadSlot(100); err != ErrNotReady || readyAt != 150 {
		t.Fatalf("expected ErrNotReady with readyAt=150, got err=%v readyAt=%d", err, readyAt)
	}

	got, _, err := b.TryClaimReadSlot(150)
	if err != nil {
		t.Fatalf("expected claim to succeed once ready, got %v", err)
	}
	got.ReleaseRead()
}

func TestStatusSequenceIsValidPrefix(t *testing.T) {
	b := New(1, 1024, wireclock.NewFake(0), 20)
	s := &b.slots[0]

	if Status(s.status.Load()) != StatusEmpty {
		t.Fatalf("new slot must start EMPTY")
	}
	h, err := b.ReserveWriteSlot()
	if err != nil {
		t.Fatalf("ReserveWriteSlot: %v", err)
	}
	if Status(s.status.Load()) != StatusReserved {
		t.Fatalf("expected RESERVED after reserve")
	}
	h.SetSize(1)
	h.AcquireArenaSpace()
	h.MarkWriting()
	if Status(s.status.Load()) != StatusWriting {
		t.Fatalf("expected WRITING after MarkWriting")
	}
	h.CopyIn([]byte("x"))
	h.CommitWrite(0)
	if Status(s.status.Load()) != StatusReady {
		t.Fatalf("expected READY after CommitWrite")
	}
	read, _, err := b.TryClaimReadSlot(0)
	if err != nil {
		t.Fatalf("TryClaimReadSlot: %v", err)
	}
	if Status(s.status.Load()) != StatusReading {
		t.Fatalf("expected READING while claimed")
	}
	read.ReleaseRead()
	if Status(s.status.Load()) != StatusEmpty {
		t.Fatalf("expected EMPTY after release")
	}
}

func TestAbandonWriteReturnsSlotToEmpty(t *testing.T) {
	b := New(1, 1024, wireclock.NewFake(0), 20)
	h, err := b.ReserveWriteSlot()
	if err != nil {
		t.Fatalf("ReserveWriteSlot: %v", err)
	}
	h.AbandonWrite()
	if Status(b.slots[0].status.Load()) != StatusEmpty {
		t.Fatalf("expected EMPTY after AbandonWrite")
	}
	if _, err := b.ReserveWriteSlot(); err != nil {
		t.Fatalf("expected the abandoned slot to be reusable, got %v", err)
	}
}

func TestConcurrentProducersRespectCapacity(t *testing.T) {
	const numSlots = 16
	const perProducer = 50
	const producers = 8
	b := New(numSlots, 64*1024, wireclock.NewFake(0), 20)

	stopConsumer := make(chan struct{})
	consumerDone := make(chan int)
	go func() {
		count := 0
		for {
			select {
			case <-stopConsumer:
				consumerDone <- count
				return
			default:
			}
			if h, _, err := b.TryClaimReadSlot(0); err == nil {
				h.ReleaseRead()
				count++
			}
			if occ := b.Occupancy(); occ > numSlots {
				t.Errorf("occupancy %d exceeded capacity %d", occ, numSlots)
			}
		}
	}()

	var wg sync.WaitGroup
	for g := 0; g < producers; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				h, err := b.ReserveWriteSlot()
				if err != nil {
					continue
				}
				h.SetSize(4)
				if h.AcquireArenaSpace() {
					h.MarkWriting()
					h.CopyIn([]byte("data"))
					h.CommitWrite(0)
				} else {
					h.AbandonWrite()
				}
			}
		}()
	}
	wg.Wait()

	// Stop the consumer, then drain whatever is left, so its occupancy
	// check never races with a second reader.
	close(stopConsumer)
	<-consumerDone
	for b.Occupancy() > 0 {
		if h, _, err := b.TryClaimReadSlot(0); err == nil {
			h.ReleaseRead()
		}
	}

	if occ := b.Occupancy(); occ != 0 {
		t.Fatalf("expected buffer fully drained, occupancy=%d", occ)
	}
}
