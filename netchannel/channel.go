// File: netchannel/channel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package netchannel implements the directional Network Channel: a
// three-stage pipeline (outbound NIC buffer -> wire buffer -> inbound NIC
// buffer) driven by two long-lived worker goroutines, with latency-gated
// delivery on the wire stage. Each worker blocks on a bounded-wait event,
// drains everything currently available, and only resets the event once a
// pass finds nothing left to do.

package netchannel

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ztblick/packet-transport-sim/config"
	"github.com/ztblick/packet-transport-sim/internal/pin"
	"github.com/ztblick/packet-transport-sim/slotring"
	"github.com/ztblick/packet-transport-sim/wireclock"
)

// Result is the outcome of a public Channel operation.
type Result int

const (
	Accepted Result = iota
	Rejected
	Received
	NoPacketAvailable
)

func (r Result) String() string {
	switch r {
	case Accepted:
		return "ACCEPTED"
	case Rejected:
		return "REJECTED"
	case Received:
		return "RECEIVED"
	case NoPacketAvailable:
		return "NO_PACKET_AVAILABLE"
	default:
		return "UNKNOWN"
	}
}

// Channel owns the outbound NIC, wire, and inbound NIC PacketBuffers for
// one direction of traffic, plus the two worker goroutines that move
// packets between them.
type Channel struct {
	name string
	cfg  *config.Config
	clk  wireclock.Clock
	log  *zap.SugaredLogger

	OutboundNIC *slotring.Buffer
	Wire        *slotring.Buffer
	InboundNIC  *slotring.Buffer

	reorder *reorderBuffer

	shutdown chan struct{}
	done     chan struct{}
}

// New builds a Channel with the given NIC/wire capacities but does not
// start its workers; call Run to do that.
func New(name string, cfg *config.Config, clk wireclock.Clock, log *zap.SugaredLogger) *Channel {
	c := &Channel{
		name:        name,
		cfg:         cfg,
		clk:         clk,
		log:         log.With("channel", name),
		OutboundNIC: slotring.New(cfg.NICSlots, cfg.NICBytes, clk, cfg.MaxAcquireAttempts),
		Wire:        slotring.New(cfg.WireSlots, cfg.WireBytes, clk, cfg.MaxAcquireAttempts),
		InboundNIC:  slotring.New(cfg.NICSlots, cfg.NICBytes, clk, cfg.MaxAcquireAttempts),
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}, 2),
	}
	if cfg.Unreliability.ReorderEnabled {
		c.reorder = newReorderBuffer(cfg.Unreliability.ReorderWindow)
	}
	return c
}

// Run starts the NIC->wire and wire->NIC workers, returning only once both
// have observed ctx cancellation or the Channel's own Shutdown and exited.
// Intended to be run inside an errgroup.Group.Go closure.
func (c *Channel) Run(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer func() { c.done <- struct{}{} }()
		c.pinSelf(c.cfg.Affinity.NICToWireCPU)
		c.nicToWireLoop(ctx)
	}()
	go func() {
		defer func() { c.done <- struct{}{} }()
		c.pinSelf(c.cfg.Affinity.WireToNICCPU)
		c.wireToNICLoop(ctx)
	}()
	go func() {
		<-c.done
		<-c.done
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		<-done
		return nil
	}
}

// Shutdown signals both workers to stop; it does not wait for them to
// exit — callers supervising Run via errgroup observe their exit when Run
// returns.
func (c *Channel) Shutdown() {
	select {
	case <-c.shutdown:
	default:
		close(c.shutdown)
	}
}

// pinSelf optionally locks the calling goroutine's OS thread to a fixed
// CPU. No-op when affinity is disabled in config or unsupported on the
// host platform.
func (c *Channel) pinSelf(cpuID int) {
	if !c.cfg.Affinity.Enabled || !pin.Available() {
		return
	}
	if err := pin.ToCPU(cpuID); err != nil {
		c.log.Warnw("cpu affinity pin failed", "cpu", cpuID, "error", err)
	}
}

func (c *Channel) stopped(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-c.shutdown:
		return true
	default:
		return false
	}
}

func retryWait(ms int) time.Duration {
	if ms <= 0 {
		ms = 5
	}
	return time.Duration(ms) * time.Millisecond
}
