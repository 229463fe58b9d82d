// File: netchannel/api.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package netchannel

import (
	"time"

	"github.com/ztblick/packet-transport-sim/wireclock"
	"github.com/ztblick/packet-transport-sim/wirefmt"
)

// Role identifies which side of a Channel pair a caller is acting as.
type Role int

const (
	Sender Role = iota
	Receiver
)

// SendPacket validates pkt and enqueues it on the outbound NIC. It never
// blocks: a full NIC or a layout failure both return Rejected.
func (c *Channel) SendPacket(pkt []byte) Result {
	if len(pkt) < wirefmt.UniversalHeaderBytes {
		return Rejected
	}
	uh, err := wirefmt.DecodeUniversalHeader(pkt)
	if err != nil {
		return Rejected
	}
	if uh.PayloadBytes == 0 || uh.PayloadBytes > c.cfg.MaxPayloadBytes {
		return Rejected
	}
	kindHeaderBytes := uint64(wirefmt.DataHeaderBytes)
	if uh.Kind == wirefmt.KindComm {
		kindHeaderBytes = uint64(wirefmt.CommHeaderBytes)
	}
	total, err := wirefmt.ValidateTotalSize(uh.HeaderBytes, kindHeaderBytes, uint64(uh.PayloadBytes), c.cfg.MaxPacketBytes())
	if err != nil || total != uint64(len(pkt)) {
		return Rejected
	}

	h, err := c.OutboundNIC.ReserveWriteSlot()
	if err != nil {
		return Rejected
	}
	h.SetSize(uint32(len(pkt)))
	h.MarkWriting()
	if !h.AcquireArenaSpace() {
		h.AbandonWrite()
		return Rejected
	}
	h.CopyIn(pkt)
	h.CommitWrite(0)
	return Accepted
}

// TryReceivePacket is ReceivePacket with a zero timeout.
func (c *Channel) TryReceivePacket(buf []byte) (int, Result) {
	return c.ReceivePacket(buf, 0)
}

// ReceivePacket waits up to timeoutMs for a packet to become available on
// the inbound NIC, copying it into buf.
func (c *Channel) ReceivePacket(buf []byte, timeoutMs int64) (int, Result) {
	if timeoutMs < 0 {
		timeoutMs = 0
	}
	deadline := c.clk.NowMs() + wireclock.Millis(timeoutMs)
	for {
		now := c.clk.NowMs()
		h, _, err := c.InboundNIC.TryClaimReadSlot(now)
		if err == nil {
			n := h.CopyOut(buf)
			h.ReleaseRead()
			return n, Received
		}
		if now >= deadline {
			return 0, NoPacketAvailable
		}
		wait := retryWait(c.cfg.NetRetryMS)
		if remaining := time.Duration(uint64(deadline-now)) * time.Millisecond; remaining < wait {
			wait = remaining
		}
		c.InboundNIC.Avail.Reset()
		_, shuttingDown := c.InboundNIC.Avail.Wait(wait, c.shutdown)
		if shuttingDown {
			return 0, NoPacketAvailable
		}
		if c.clk.NowMs() > deadline {
			return 0, NoPacketAvailable
		}
	}
}
