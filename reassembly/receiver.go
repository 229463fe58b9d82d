// File: reassembly/receiver.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reassembly

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ztblick/packet-transport-sim/internal/pin"
	"github.com/ztblick/packet-transport-sim/wirefmt"
)

// Receiver owns the intake PacketCache, the TransmissionRegistry, and the
// single reassembly worker goroutine that drains one into the other.
type Receiver struct {
	Registry *Registry
	Cache    *PacketCache

	maxPayloadBytes uint32
	retryMs         int
	log             *zap.SugaredLogger

	affinityEnabled bool
	cpuID           int

	knownPacketCount map[uint32]uint32
}

// New builds a Receiver with the given intake cache capacity.
func New(cacheCapacity int, maxPayloadBytes uint32, retryMs int, log *zap.SugaredLogger) *Receiver {
	return &Receiver{
		Registry:         NewRegistry(),
		Cache:            NewPacketCache(cacheCapacity),
		maxPayloadBytes:  maxPayloadBytes,
		retryMs:          retryMs,
		log:              log,
		knownPacketCount: make(map[uint32]uint32),
	}
}

// SetAffinity arms CPU pinning for the reassembly worker goroutine; has no
// effect once Run has already started.
func (r *Receiver) SetAffinity(enabled bool, cpuID int) {
	r.affinityEnabled = enabled
	r.cpuID = cpuID
}

// CacheDataPacket parses a raw DATA packet and hands it to the intake
// cache; called by the Channel's single inbound reader goroutine.
func (r *Receiver) CacheDataPacket(raw []byte) error {
	uh, err := wirefmt.DecodeUniversalHeader(raw)
	if err != nil || uh.Kind != wirefmt.KindData {
		r.log.Warnw("dropping non-DATA or malformed packet in reassembly intake", "err", err)
		return ErrCacheFull
	}
	dh, err := wirefmt.DecodeDataHeader(raw[wirefmt.UniversalHeaderBytes:])
	if err != nil {
		r.log.Warnw("dropping DATA packet with malformed kind header", "err", err)
		return ErrCacheFull
	}
	payloadStart := wirefmt.UniversalHeaderBytes + wirefmt.DataHeaderBytes
	payloadEnd := payloadStart + int(uh.PayloadBytes)
	if payloadEnd > len(raw) {
		r.log.Warnw("dropping DATA packet with truncated payload")
		return ErrCacheFull
	}
	payload := append([]byte(nil), raw[payloadStart:payloadEnd]...)

	return r.Cache.CachePacket(CachedPacket{
		TransmissionID:        uh.TransmissionID,
		IndexInTransmission:   dh.IndexInTransmission,
		PacketsInTransmission: dh.PacketsInTransmission,
		Payload:               payload,
	})
}

// DocumentPacket applies one cached packet to its transmission's
// reassembly state, performing first-touch transmission creation and
// logging (never propagating) any protocol violation.
func (r *Receiver) DocumentPacket(pkt CachedPacket) {
	info, existed := r.Registry.Lookup(pkt.TransmissionID)
	if !existed {
		info = r.Registry.InitTransmission(pkt.TransmissionID, pkt.PacketsInTransmission, r.maxPayloadBytes)
		r.knownPacketCount[pkt.TransmissionID] = pkt.PacketsInTransmission
	} else if known, ok := r.knownPacketCount[pkt.TransmissionID]; ok && known != pkt.PacketsInTransmission {
		r.log.Warnw("protocol violation: packets_in_transmission mismatch",
			"transmission_id", pkt.TransmissionID, "known", known, "got", pkt.PacketsInTransmission)
		return
	}

	if !info.documentPacket(pkt.IndexInTransmission, pkt.Payload) {
		r.log.Warnw("protocol violation: packet index out of range",
			"transmission_id", pkt.TransmissionID, "index", pkt.IndexInTransmission,
			"packets_in_transmission", info.PacketsInTransmission)
	}
}

// Run drains the intake cache into the registry until ctx is canceled:
// wait on packets-available, drain fully, reset, repeat.
func (r *Receiver) Run(ctx context.Context) error {
	if r.affinityEnabled && pin.Available() {
		if err := pin.ToCPU(r.cpuID); err != nil {
			r.log.Warnw("cpu affinity pin failed", "cpu", r.cpuID, "error", err)
		}
	}
	wait := time.Duration(r.retryMs) * time.Millisecond
	if wait <= 0 {
		wait = 5 * time.Millisecond
	}
	shutdown := ctx.Done()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		signaled, _ := r.Cache.Avail.Wait(wait, shutdown)
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if !signaled {
			continue
		}

		drainedAny := false
		for {
			pkt, ok := r.Cache.TryTake()
			if !ok {
				break
			}
			drainedAny = true
			r.DocumentPacket(pkt)
		}
		if !drainedAny {
			r.Cache.Avail.Reset()
		}
	}
}
