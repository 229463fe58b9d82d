// File: netchannel/workers.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package netchannel

import (
	"context"
	"time"

	"github.com/ztblick/packet-transport-sim/slotring"
	"github.com/ztblick/packet-transport-sim/wireclock"
)

// Handle is a convenience alias so callers outside slotring never need to
// import it directly just to hold a reference returned by this package.
type Handle = slotring.Handle

func (c *Channel) sleepFor(ms uint64) {
	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-c.shutdown:
	}
}

// nicToWireLoop drains the outbound NIC as fast as the simulated
// bandwidth allows, copying each packet into the wire buffer and stamping
// it with its arrival deadline (now + LatencyMS).
func (c *Channel) nicToWireLoop(ctx context.Context) {
	for {
		if c.stopped(ctx) {
			return
		}
		signaled, shuttingDown := c.OutboundNIC.Avail.Wait(retryWait(c.cfg.NICRetryMS), c.shutdown)
		if shuttingDown || c.stopped(ctx) {
			return
		}
		if !signaled {
			continue
		}

		drainedAny := false
		for {
			h, _, err := c.OutboundNIC.TryClaimReadSlot(c.clk.NowMs())
			if err != nil {
				break
			}
			drainedAny = true
			c.transferToWire(h)
		}
		if !drainedAny {
			c.OutboundNIC.Avail.Reset()
		}
	}
}

func (c *Channel) transferToWire(src *Handle) {
	size := src.Size()
	wh, err := c.Wire.ReserveWriteSlot()
	if err != nil {
		// Over-driven: wire itself is full. Drop the packet, matching
		// the "silent drop" taxonomy entry for wire-stage congestion.
		c.log.Infow("dropping packet, wire buffer full", "size", size)
		src.DropRead()
		return
	}
	wh.SetSize(size)
	wh.MarkWriting()
	if !wh.AcquireArenaSpace() {
		c.log.Infow("dropping packet, wire arena overlap", "size", size)
		wh.AbandonWrite()
		src.DropRead()
		return
	}
	wh.CopyIn(src.Bytes())
	readyAt := c.clk.NowMs() + wireclock.Millis(c.cfg.LatencyMS)
	c.holdForBandwidth(size)
	if c.reorder != nil {
		c.reorder.admit(wh, readyAt)
	} else {
		wh.CommitWrite(readyAt)
	}
	src.DropRead()
}

// holdForBandwidth optionally enforces a serialization delay proportional
// to payload size; disabled whenever BandwidthBPS is zero (the default).
func (c *Channel) holdForBandwidth(sizeBytes uint32) {
	if c.cfg.BandwidthBPS == 0 {
		return
	}
	delayMs := (uint64(sizeBytes) * 8 * 1000) / c.cfg.BandwidthBPS
	if delayMs == 0 {
		return
	}
	c.sleepFor(delayMs)
}

// wireToNICLoop delivers packets from the wire to the inbound NIC once
// their ready_at_ms has elapsed.
func (c *Channel) wireToNICLoop(ctx context.Context) {
	for {
		if c.stopped(ctx) {
			return
		}
		if c.reorder != nil {
			c.reorder.releaseReady(c.clk.NowMs())
		}

		now := c.clk.NowMs()
		h, nextEta, err := c.Wire.TryClaimReadSlot(now)
		switch err {
		case nil:
			c.transferToNIC(h)
			continue
		default:
		}

		wait := retryWait(c.cfg.NetRetryMS)
		if nextEta > now {
			if remaining := time.Duration(nextEta-now) * time.Millisecond; remaining < wait {
				wait = remaining
			}
		}
		c.Wire.Avail.Reset()
		_, shuttingDown := c.Wire.Avail.Wait(wait, c.shutdown)
		if shuttingDown || c.stopped(ctx) {
			return
		}
	}
}

func (c *Channel) transferToNIC(src *Handle) {
	size := src.Size()
	nh, err := c.InboundNIC.ReserveWriteSlot()
	if err != nil {
		c.log.Infow("dropping packet, inbound NIC full", "size", size)
		src.DropRead()
		return
	}
	nh.SetSize(size)
	nh.MarkWriting()
	if !nh.AcquireArenaSpace() {
		c.log.Infow("dropping packet, inbound NIC arena overlap", "size", size)
		nh.AbandonWrite()
		src.DropRead()
		return
	}
	nh.CopyIn(src.Bytes())
	nh.CommitWrite(0)
	src.DropRead()
}
