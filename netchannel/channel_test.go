// File: netchannel/channel_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package netchannel

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ztblick/packet-transport-sim/config"
	"github.com/ztblick/packet-transport-sim/wireclock"
	"github.com/ztblick/packet-transport-sim/wirefmt"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.NICSlots = 4
	cfg.NICBytes = 4096
	cfg.WireSlots = 8
	cfg.WireBytes = 8192
	cfg.NetRetryMS = 2
	cfg.NICRetryMS = 2
	cfg.LatencyMS = 10
	return cfg
}

func encodeData(t *testing.T, txID, idx, count uint32, payload []byte) []byte {
	t.Helper()
	buf := make([]byte, 4096)
	n, err := wirefmt.EncodeDataPacket(buf, txID, idx, count, payload)
	if err != nil {
		t.Fatalf("EncodeDataPacket: %v", err)
	}
	return buf[:n]
}

func TestSendReceiveRoundTrip(t *testing.T) {
	cfg := testConfig()
	clk := wireclock.NewSystem()
	ch := New("test", cfg, clk, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { ch.Run(ctx); close(done) }()

	pkt := encodeData(t, 1, 0, 1, []byte("hello"))
	if res := ch.SendPacket(pkt); res != Accepted {
		t.Fatalf("SendPacket: got %v want Accepted", res)
	}

	buf := make([]byte, 4096)
	n, res := ch.ReceivePacket(buf, 200)
	if res != Received {
		t.Fatalf("ReceivePacket: got %v want Received", res)
	}
	if string(buf[:n]) != string(pkt) {
		t.Fatalf("payload mismatch")
	}

	ch.Shutdown()
	cancel()
	<-done
}

func TestSendPacketRejectsOversizedPayload(t *testing.T) {
	cfg := testConfig()
	clk := wireclock.NewFake(0)
	ch := New("test", cfg, clk, zap.NewNop().Sugar())

	oversized := make([]byte, cfg.MaxPayloadBytes+1)
	pkt := encodeData(t, 1, 0, 1, oversized)
	if res := ch.SendPacket(pkt); res != Rejected {
		t.Fatalf("expected Rejected for oversized payload, got %v", res)
	}
}

func TestSendPacketRejectsZeroPayload(t *testing.T) {
	cfg := testConfig()
	clk := wireclock.NewFake(0)
	ch := New("test", cfg, clk, zap.NewNop().Sugar())

	pkt := encodeData(t, 1, 0, 1, nil)
	if res := ch.SendPacket(pkt); res != Rejected {
		t.Fatalf("expected Rejected for zero-length payload, got %v", res)
	}
}

func TestBackpressureThenRecovery(t *testing.T) {
	cfg := testConfig()
	cfg.NICSlots = 2
	clk := wireclock.NewFake(0)
	ch := New("test", cfg, clk, zap.NewNop().Sugar())

	for i := 0; i < cfg.NICSlots; i++ {
		pkt := encodeData(t, uint32(i), 0, 1, []byte("x"))
		if res := ch.SendPacket(pkt); res != Accepted {
			t.Fatalf("expected ACCEPTED filling NIC, got %v at i=%d", res, i)
		}
	}
	overflow := encodeData(t, 99, 0, 1, []byte("y"))
	if res := ch.SendPacket(overflow); res != Rejected {
		t.Fatalf("expected REJECTED once NIC is full, got %v", res)
	}

	// Drain one slot directly (simulating the NIC->wire worker draining
	// it), then confirm capacity frees up.
	h, _, err := ch.OutboundNIC.TryClaimReadSlot(clk.NowMs())
	if err != nil {
		t.Fatalf("TryClaimReadSlot: %v", err)
	}
	h.ReleaseRead()

	if res := ch.SendPacket(overflow); res != Accepted {
		t.Fatalf("expected ACCEPTED after drain, got %v", res)
	}
}

func TestTryReceivePacketEmptyChannel(t *testing.T) {
	cfg := testConfig()
	clk := wireclock.NewFake(0)
	ch := New("test", cfg, clk, zap.NewNop().Sugar())

	buf := make([]byte, 64)
	if _, res := ch.TryReceivePacket(buf); res != NoPacketAvailable {
		t.Fatalf("expected NO_PACKET_AVAILABLE on empty channel, got %v", res)
	}
}

func TestLatencyGate(t *testing.T) {
	cfg := testConfig()
	cfg.LatencyMS = 20
	clk := wireclock.NewFake(0)
	ch := New("test", cfg, clk, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { ch.Run(ctx); close(done) }()

	pkt := encodeData(t, 5, 0, 1, []byte("z"))
	if res := ch.SendPacket(pkt); res != Accepted {
		t.Fatalf("SendPacket: %v", res)
	}

	// Give the NIC->wire worker a moment to move the packet onto the wire
	// under the fake clock (it runs on real wall-clock goroutine
	// scheduling even though ready_at_ms uses the fake clock).
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if ch.Wire.Occupancy() > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	buf := make([]byte, 64)
	if _, res := ch.TryReceivePacket(buf); res != NoPacketAvailable {
		t.Fatalf("expected gated packet to be unavailable before latency elapses, got %v", res)
	}

	clk.Add(wireclock.Millis(cfg.LatencyMS) + 5)

	deadline = time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if n, res := ch.TryReceivePacket(buf); res == Received {
			if string(buf[:n]) != string(pkt) {
				t.Fatalf("payload mismatch after latency gate")
			}
			ch.Shutdown()
			cancel()
			<-done
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected packet to become available after latency elapsed")
}
