// File: slotring/buffer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package slotring implements a lock-free ring of packet-metadata
// descriptors layered over a circular byte arena, giving multi-producer/
// multi-consumer FIFO enqueue/dequeue of variable-length packets with
// explicit per-slot status control and time-gated visibility (the
// "ready_at_ms" deadline that models one-way wire propagation).
//
// The cursor/status dance mirrors a lock-free ring built from
// cache-line-padded atomic cursors, per-slot state as the real
// synchronization point, and a write claim that compare-and-swaps
// write_cursor forward only after an occupancy check.

package slotring

import (
	"errors"
	"runtime"
	"sync/atomic"

	"github.com/ztblick/packet-transport-sim/internal/notify"
	"github.com/ztblick/packet-transport-sim/wireclock"
)

// Sentinel errors returned by Buffer operations.
var (
	ErrNoSlot      = errors.New("slotring: no free slot in buffer")
	ErrNoPacket    = errors.New("slotring: no packet available")
	ErrNotReady    = errors.New("slotring: earliest packet not yet ready")
	ErrNoArenaRoom = errors.New("slotring: packet would overlap in-flight data")
)

const cacheLinePad = 64

type slot struct {
	status      atomic.Int32
	startOffset atomic.Uint64
	sizeBytes   atomic.Uint32
	readyAtMs   atomic.Uint64
	laidOut     atomic.Bool
}

// Buffer is a ring of N PacketMetadata descriptors over a B-byte circular
// arena. Zero value is not usable; build one with New.
type Buffer struct {
	slots    []slot
	numSlots uint64
	arena    []byte
	arenaLen uint64

	writeCursor atomic.Uint64
	_           [cacheLinePad]byte
	readCursor  atomic.Uint64
	_           [cacheLinePad]byte

	// Avail is signaled whenever a packet transitions to READY, and reset
	// by a drained consumer before it goes back to waiting. Channel
	// workers and send_packet/receive_packet all share this one event per
	// buffer, matching the original NETWORK_PACKET_BUFFER's manual-reset
	// "packets_waiting_in_buffer" handle.
	Avail *notify.Event

	maxAcquireAttempts int
	clock              wireclock.Clock
}

// New allocates a Buffer with numSlots metadata descriptors and an arena of
// arenaBytes bytes. maxAcquireAttempts bounds the spin in AcquireArenaSpace
// on a predecessor slot stuck in RESERVED (see the CORE spec's MAX_ATTEMPTS
// open question); 0 selects a sane default.
func New(numSlots int, arenaBytes int, clock wireclock.Clock, maxAcquireAttempts int) *Buffer {
	if numSlots <= 0 {
		numSlots = 1
	}
	if maxAcquireAttempts <= 0 {
		maxAcquireAttempts = 20
	}
	return &Buffer{
		slots:              make([]slot, numSlots),
		numSlots:           uint64(numSlots),
		arena:              make([]byte, arenaBytes),
		arenaLen:           uint64(arenaBytes),
		Avail:              notify.New(),
		maxAcquireAttempts: maxAcquireAttempts,
		clock:              clock,
	}
}

// NumSlots reports the metadata ring's fixed capacity.
func (b *Buffer) NumSlots() int { return int(b.numSlots) }

// Occupancy returns write_cursor - read_cursor, satisfying 0 <= occupancy
// <= NumSlots() at every observable instant.
func (b *Buffer) Occupancy() uint64 {
	return b.writeCursor.Load() - b.readCursor.Load()
}

// Handle is a caller's exclusive view onto one claimed slot, valid from the
// moment it is returned until the matching release call (CommitWrite,
// AbandonWrite, or ReleaseRead).
type Handle struct {
	buf   *Buffer
	index uint64
}

func (b *Buffer) slotAt(idx uint64) *slot { return &b.slots[idx%b.numSlots] }

// ReserveWriteSlot claims the next slot for writing. It advances
// write_cursor by compare-and-swap only after confirming there is room
// (occupancy < N), retrying if another producer moved it first, then
// waits for that slot's status to actually read EMPTY before handing it to
// the caller — in steady state this is immediate, since occupancy < N
// guarantees the slot was already cycled back to EMPTY by a consumer.
func (b *Buffer) ReserveWriteSlot() (*Handle, error) {
	for {
		wc := b.writeCursor.Load()
		rc := b.readCursor.Load()
		if wc-rc >= b.numSlots {
			return nil, ErrNoSlot
		}
		if !b.writeCursor.CompareAndSwap(wc, wc+1) {
			continue
		}
		s := b.slotAt(wc)
		for !s.status.CompareAndSwap(int32(StatusEmpty), int32(StatusReserved)) {
			runtime.Gosched()
		}
		return &Handle{buf: b, index: wc}, nil
	}
}

// SetSize records the packet's total size in bytes. Must be called while
// the handle's slot is RESERVED, before AcquireArenaSpace.
func (h *Handle) SetSize(n uint32) {
	h.buf.slotAt(h.index).sizeBytes.Store(n)
}

// Size returns the slot's recorded size.
func (h *Handle) Size() uint32 {
	return h.buf.slotAt(h.index).sizeBytes.Load()
}

// MarkWriting transitions RESERVED -> WRITING.
func (h *Handle) MarkWriting() {
	h.buf.slotAt(h.index).status.Store(int32(StatusWriting))
}

// AcquireArenaSpace lays out this packet's byte range in the circular
// arena, building off of the immediately preceding slot in the ring. It
// returns false if the range would overlap the packet currently at
// read_cursor, or if the predecessor slot's layout never settles within
// maxAcquireAttempts (RESERVED -> WRITING/READY/READING/EMPTY): per the
// CORE spec, a spin timeout here is a layout failure, not a hang.
func (h *Handle) AcquireArenaSpace() bool {
	b := h.buf
	mine := b.slotAt(h.index)
	prevIdx := (h.index + b.numSlots - 1) % b.numSlots
	prev := &b.slots[prevIdx]

	attempts := 0
	for Status(prev.status.Load()) == StatusReserved {
		attempts++
		if attempts >= b.maxAcquireAttempts {
			mine.startOffset.Store(prev.startOffset.Load())
			mine.laidOut.Store(true)
			return false
		}
		runtime.Gosched()
	}

	myLocation := uint64(0)
	if prev.laidOut.Load() {
		myLocation = prev.startOffset.Load() + uint64(prev.sizeBytes.Load())
	}
	mySize := uint64(mine.sizeBytes.Load())

	readIdx := b.readCursor.Load() % b.numSlots
	readStart := b.slots[readIdx].startOffset.Load()

	if readStart > myLocation {
		if myLocation+mySize > readStart {
			mine.startOffset.Store(myLocation)
			mine.laidOut.Store(true)
			return false
		}
		mine.startOffset.Store(myLocation)
		mine.laidOut.Store(true)
		return true
	}

	if myLocation+mySize <= b.arenaLen {
		mine.startOffset.Store(myLocation)
		mine.laidOut.Store(true)
		return true
	}

	// Wrap to the start of the arena and re-check for overlap.
	myLocation = 0
	mine.laidOut.Store(true)
	if myLocation+mySize > readStart {
		mine.startOffset.Store(myLocation)
		return false
	}
	mine.startOffset.Store(myLocation)
	return true
}

// Bytes returns the arena slice backing this slot's packet, valid only
// while the caller owns the slot (WRITING or READING state).
func (h *Handle) Bytes() []byte {
	s := h.buf.slotAt(h.index)
	start := s.startOffset.Load()
	size := uint64(s.sizeBytes.Load())
	return h.buf.arena[start : start+size]
}

// CopyIn copies src into this slot's arena range. The caller must have
// already sized the slot to len(src) via SetSize and successfully called
// AcquireArenaSpace.
func (h *Handle) CopyIn(src []byte) {
	copy(h.Bytes(), src)
}

// CopyOut copies this slot's arena range into dst, returning the number of
// bytes copied (the slot's recorded size, or len(dst) if smaller).
func (h *Handle) CopyOut(dst []byte) int {
	return copy(dst, h.Bytes())
}

// CommitWrite stamps readyAtMs (0 if the slot should be visible
// immediately), transitions the slot to READY, and signals Avail.
func (h *Handle) CommitWrite(readyAtMs wireclock.Millis) {
	s := h.buf.slotAt(h.index)
	s.readyAtMs.Store(uint64(readyAtMs))
	s.status.Store(int32(StatusReady))
	h.buf.Avail.Set()
}

// AbandonWrite releases a slot back to EMPTY without ever making it
// visible to consumers — used when arena acquisition or the payload copy
// fails after the slot was reserved. When the slot is the most recent
// reservation, write_cursor is stepped back so the slot can be reserved
// again.
func (h *Handle) AbandonWrite() {
	h.buf.slotAt(h.index).status.Store(int32(StatusEmpty))
	h.buf.writeCursor.CompareAndSwap(h.index+1, h.index)
}

// TryClaimReadSlot attempts to claim the packet at read_cursor for
// consumption. It transitions READY -> READING via CAS and returns the
// handle on success. If the slot is not READY, or is READY but gated by a
// future ready_at_ms, it returns ErrNoPacket / ErrNotReady along with the
// earliest ready_at_ms found, so the caller can sleep precisely instead of
// busy-polling.
func (b *Buffer) TryClaimReadSlot(now wireclock.Millis) (*Handle, wireclock.Millis, error) {
	rc := b.readCursor.Load()
	wc := b.writeCursor.Load()
	if rc >= wc {
		return nil, 0, ErrNoPacket
	}
	s := b.slotAt(rc)
	if Status(s.status.Load()) != StatusReady {
		return nil, 0, ErrNoPacket
	}
	readyAt := wireclock.Millis(s.readyAtMs.Load())
	if readyAt > now {
		return nil, readyAt, ErrNotReady
	}
	if !s.status.CompareAndSwap(int32(StatusReady), int32(StatusReading)) {
		return nil, 0, ErrNoPacket
	}
	return &Handle{buf: b, index: rc}, 0, nil
}

// ReleaseRead transitions READING -> EMPTY and advances read_cursor,
// completing the FIFO dequeue begun by TryClaimReadSlot.
func (h *Handle) ReleaseRead() {
	h.buf.slotAt(h.index).status.Store(int32(StatusEmpty))
	h.buf.readCursor.Add(1)
}

// DropRead is ReleaseRead under another name. The Channel workers use it
// to release a source slot both when discarding a packet (e.g. wire->NIC
// delivery when the destination NIC is full) and after its bytes have been
// copied onward.
func (h *Handle) DropRead() { h.ReleaseRead() }
