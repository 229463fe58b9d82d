// File: simulator.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package packetsim wires together the two directional Network Channels
// (sender->receiver and receiver->sender) and the Receiver reassembly
// engine into the single process-local facade a transport layer talks to,
// using a Config-plus-facade constructor shape and errgroup-based worker
// supervision.

package packetsim

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ztblick/packet-transport-sim/config"
	"github.com/ztblick/packet-transport-sim/netchannel"
	"github.com/ztblick/packet-transport-sim/reassembly"
	"github.com/ztblick/packet-transport-sim/wireclock"
)

// Simulator owns one full duplex pair of Channels plus the Receiver
// reassembly engines feeding off each Channel's inbound side.
type Simulator struct {
	cfg *config.Config
	log *zap.SugaredLogger
	clk wireclock.Clock

	SenderToReceiver *netchannel.Channel
	ReceiverToSender *netchannel.Channel

	ReceiverSide *reassembly.Receiver
	SenderSide   *reassembly.Receiver

	cancel context.CancelFunc
	group  *errgroup.Group
}

// CreateNetworkLayer allocates both Channels and both reassembly engines
// and starts every worker goroutine, returning a Simulator ready to accept
// SendPacket/ReceivePacket calls.
func CreateNetworkLayer(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*Simulator, context.Context) {
	clk := wireclock.NewSystem()
	ctx, cancel := context.WithCancel(ctx)
	group, ctx := errgroup.WithContext(ctx)

	s := &Simulator{
		cfg:              cfg,
		log:              log,
		clk:              clk,
		SenderToReceiver: netchannel.New("s2r", cfg, clk, log),
		ReceiverToSender: netchannel.New("r2s", cfg, clk, log),
		ReceiverSide:     reassembly.New(cfg.PacketCacheCapacity, cfg.MaxPayloadBytes, cfg.NetRetryMS, log.Named("receiver-reassembly")),
		SenderSide:       reassembly.New(cfg.PacketCacheCapacity, cfg.MaxPayloadBytes, cfg.NetRetryMS, log.Named("sender-reassembly")),
		cancel:           cancel,
		group:            group,
	}

	s.ReceiverSide.SetAffinity(cfg.Affinity.Enabled, cfg.Affinity.ReassemblyCPU)
	s.SenderSide.SetAffinity(cfg.Affinity.Enabled, cfg.Affinity.ReassemblyCPU)

	group.Go(func() error { return s.SenderToReceiver.Run(ctx) })
	group.Go(func() error { return s.ReceiverToSender.Run(ctx) })
	group.Go(func() error { return s.ReceiverSide.Run(ctx) })
	group.Go(func() error { return s.SenderSide.Run(ctx) })

	return s, ctx
}

// SendPacket submits pkt on the Channel matching role: SENDER submits on
// the S->R channel, RECEIVER on the R->S channel.
func (s *Simulator) SendPacket(pkt []byte, role netchannel.Role) netchannel.Result {
	if role == netchannel.Sender {
		return s.SenderToReceiver.SendPacket(pkt)
	}
	return s.ReceiverToSender.SendPacket(pkt)
}

// ReceivePacket waits up to timeoutMs for a packet on the inbound side
// opposite role: SENDER receives from R->S, RECEIVER receives from S->R.
func (s *Simulator) ReceivePacket(buf []byte, timeoutMs int64, role netchannel.Role) (int, netchannel.Result) {
	if role == netchannel.Sender {
		return s.ReceiverToSender.ReceivePacket(buf, timeoutMs)
	}
	return s.SenderToReceiver.ReceivePacket(buf, timeoutMs)
}

// TryReceivePacket is ReceivePacket with a zero timeout.
func (s *Simulator) TryReceivePacket(buf []byte, role netchannel.Role) (int, netchannel.Result) {
	return s.ReceivePacket(buf, 0, role)
}

// CacheReceived feeds a raw packet already pulled via ReceivePacket into
// the reassembly engine matching role. Delivery and caching are kept as
// two explicit steps performed by the same caller rather than an internal
// goroutine, so there is never more than one consumer draining a given
// inbound NIC buffer. Non-DATA packets (COMM/ACK traffic) are rejected by
// the underlying cache and are the transport layer's own responsibility
// to interpret.
func (s *Simulator) CacheReceived(pkt []byte, role netchannel.Role) error {
	if role == netchannel.Sender {
		return s.SenderSide.CacheDataPacket(pkt)
	}
	return s.ReceiverSide.CacheDataPacket(pkt)
}

// FreeNetworkLayer signals shutdown to every worker and blocks until all
// of them have exited.
func (s *Simulator) FreeNetworkLayer() error {
	s.SenderToReceiver.Shutdown()
	s.ReceiverToSender.Shutdown()
	s.cancel()
	if err := s.group.Wait(); err != nil {
		return fmt.Errorf("packetsim: shutdown: %w", err)
	}
	return nil
}
