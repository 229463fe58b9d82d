// File: simulator_scenarios_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package packetsim

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ztblick/packet-transport-sim/netchannel"
	"github.com/ztblick/packet-transport-sim/wirefmt"
)

func TestGracefulShutdownReturnsPromptly(t *testing.T) {
	log := zap.NewNop().Sugar()
	cfg := testConfig()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sim, _ := CreateNetworkLayer(ctx, cfg, log)

	pkt := make([]byte, 64)
	n, err := wirefmt.EncodeDataPacket(pkt, 1, 0, 1, []byte("mid-stream"))
	if err != nil {
		t.Fatalf("EncodeDataPacket: %v", err)
	}
	sim.SendPacket(pkt[:n], netchannel.Sender)

	start := time.Now()
	if err := sim.FreeNetworkLayer(); err != nil {
		t.Fatalf("FreeNetworkLayer: %v", err)
	}
	elapsed := time.Since(start)
	budget := time.Duration(cfg.NetRetryMS+cfg.NICRetryMS) * time.Millisecond * 10
	if elapsed > budget {
		t.Fatalf("shutdown took %v, expected well under %v", elapsed, budget)
	}
}

func TestMultithreadedFanInFanOut(t *testing.T) {
	log := zap.NewNop().Sugar()
	cfg := testConfig()
	cfg.NICSlots = 64
	cfg.WireSlots = 256
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sim, _ := CreateNetworkLayer(ctx, cfg, log)
	defer sim.FreeNetworkLayer()

	const senders = 4
	const receivers = 4
	const perSender = 64 // kept small for test speed; property generalizes

	var wg sync.WaitGroup
	for s := 0; s < senders; s++ {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := make([]byte, 64)
			for i := 0; i < perSender; i++ {
				txID := uint32(s*perSender + i)
				n, err := wirefmt.EncodeDataPacket(buf, txID, 0, 1, []byte{byte(s)})
				if err != nil {
					continue
				}
				for {
					if sim.SendPacket(buf[:n], netchannel.Sender) == netchannel.Accepted {
						break
					}
					time.Sleep(time.Millisecond)
				}
			}
		}()
	}

	seen := make(map[uint32]bool)
	var mu sync.Mutex
	done := make(chan struct{})
	for r := 0; r < receivers; r++ {
		go func() {
			recvBuf := make([]byte, 64)
			for {
				select {
				case <-done:
					return
				default:
				}
				n, res := sim.ReceivePacket(recvBuf, 5, netchannel.Receiver)
				if res != netchannel.Received {
					continue
				}
				uh, err := wirefmt.DecodeUniversalHeader(recvBuf[:n])
				if err != nil {
					continue
				}
				mu.Lock()
				seen[uh.TransmissionID] = true
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		count := len(seen)
		mu.Unlock()
		if count == senders*perSender {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(done)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != senders*perSender {
		t.Fatalf("expected %d distinct transmission ids, got %d", senders*perSender, len(seen))
	}
}
