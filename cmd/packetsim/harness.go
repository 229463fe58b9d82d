// File: cmd/packetsim/harness.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Sending/receiving thread bodies for the demonstration harness. Each
// sending thread breaks TransmissionCount transmissions into
// MaxPayloadBytes-sized DATA packets with the fixed data pattern
// byte[i] = transmission_id mod 256 (scenario 1 of the testable
// properties), retrying a REJECTED send after a short backoff. Each
// receiving thread drains the opposite inbound NIC and feeds the
// reassembly engine.

package main

import (
	"context"
	"time"

	"github.com/ztblick/packet-transport-sim/config"
	"github.com/ztblick/packet-transport-sim/netchannel"
	"github.com/ztblick/packet-transport-sim/wirefmt"

	packetsim "github.com/ztblick/packet-transport-sim"
)

func sendTransmissions(ctx context.Context, sim *packetsim.Simulator, cfg *config.Config, threadID, count, packetsPerTransmission int) error {
	buf := make([]byte, cfg.MaxPacketBytes())
	payload := make([]byte, cfg.MaxPayloadBytes)

	for tx := 0; tx < count; tx++ {
		transmissionID := uint32(threadID*count + tx)
		for i := range payload {
			payload[i] = byte(transmissionID % 256)
		}
		for idx := 0; idx < packetsPerTransmission; idx++ {
			n, err := wirefmt.EncodeDataPacket(buf, transmissionID, uint32(idx), uint32(packetsPerTransmission), payload)
			if err != nil {
				continue
			}
			for {
				select {
				case <-ctx.Done():
					return nil
				default:
				}
				if sim.SendPacket(buf[:n], netchannel.Sender) == netchannel.Accepted {
					break
				}
				time.Sleep(time.Duration(cfg.NICRetryMS) * time.Millisecond)
			}
		}
	}
	return nil
}

func receiveLoop(ctx context.Context, sim *packetsim.Simulator, cfg *config.Config) error {
	buf := make([]byte, cfg.MaxPacketBytes())
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		n, result := sim.ReceivePacket(buf, int64(cfg.NetRetryMS), netchannel.Receiver)
		if result != netchannel.Received {
			continue
		}
		_ = sim.CacheReceived(buf[:n], netchannel.Receiver)
	}
}
