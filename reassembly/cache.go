// File: reassembly/cache.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// PacketCache is the bounded, single-producer/single-consumer intake ring
// between a Channel's inbound-NIC reader and the reassembly worker. It
// follows the same cache-line-padded cursor discipline as slotring.Buffer,
// simplified for the SPSC case: no per-slot status CAS is needed since
// there is exactly one writer and one reader.

package reassembly

import (
	"errors"
	"sync/atomic"

	"github.com/ztblick/packet-transport-sim/internal/notify"
)

// ErrCacheFull is returned by CachePacket when the ring has no free slot.
var ErrCacheFull = errors.New("reassembly: packet cache full")

// CachedPacket is one DATA packet's parsed fields, as handed off by the
// Channel's intake path.
type CachedPacket struct {
	TransmissionID        uint32
	IndexInTransmission   uint32
	PacketsInTransmission uint32
	Payload               []byte
}

// PacketCache is a bounded single-producer/single-consumer circular array
// of CachedPacket.
type PacketCache struct {
	slots []CachedPacket
	cap   uint64

	writeIndex atomic.Uint64
	_          [64]byte
	readIndex  atomic.Uint64
	_          [64]byte

	Avail *notify.Event
}

// NewPacketCache allocates a PacketCache with the given capacity.
func NewPacketCache(capacity int) *PacketCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &PacketCache{
		slots: make([]CachedPacket, capacity),
		cap:   uint64(capacity),
		Avail: notify.New(),
	}
}

// CachePacket writes pkt into the next free slot, called by the Channel's
// single intake reader. Returns ErrCacheFull if the ring is saturated.
func (c *PacketCache) CachePacket(pkt CachedPacket) error {
	wi := c.writeIndex.Load()
	ri := c.readIndex.Load()
	if wi-ri >= c.cap {
		return ErrCacheFull
	}
	c.slots[wi%c.cap] = pkt
	c.writeIndex.Add(1)
	c.Avail.Set()
	return nil
}

// TryTake returns the next cached packet for the single reassembly
// worker, if any.
func (c *PacketCache) TryTake() (CachedPacket, bool) {
	ri := c.readIndex.Load()
	wi := c.writeIndex.Load()
	if ri >= wi {
		return CachedPacket{}, false
	}
	pkt := c.slots[ri%c.cap]
	c.readIndex.Add(1)
	return pkt, true
}

// Empty reports whether the cache currently holds no packets.
func (c *PacketCache) Empty() bool {
	return c.readIndex.Load() >= c.writeIndex.Load()
}
