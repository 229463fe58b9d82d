// File: config/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package config holds the overridable configuration constants of the
// simulator. The source treats these as compile-time #defines; here they
// are promoted to a struct with a DefaultConfig constructor and an optional
// YAML overlay, following the control-plane's DefaultConfig/LoadConfig
// pair, so tests can shrink buffers instead of being bound to production
// sizes.

package config

import (
	"fmt"
	"os"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config carries every tunable named in the external-interface section:
// payload limits, latency/bandwidth knobs, buffer capacities and worker
// idle timeouts.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`

	// MaxPayloadBytes bounds a single DATA packet's payload.
	MaxPayloadBytes uint32 `yaml:"max_payload_bytes"`

	// LatencyMS is the one-way wire propagation delay stamped onto
	// ready_at_ms by the NIC->wire worker.
	LatencyMS uint64 `yaml:"latency_ms"`

	// BandwidthBPS optionally gates serialization delay in the NIC->wire
	// worker. Zero disables the simulation (the default).
	BandwidthBPS uint64 `yaml:"bandwidth_bps"`

	// NICSlots / NICBytes size each Channel's outbound and inbound NIC
	// buffers.
	NICSlots int `yaml:"nic_slots"`
	NICBytes int `yaml:"nic_bytes"`

	// WireSlots / WireBytes size each Channel's wire buffer; by design
	// much larger than the NIC buffers (bandwidth-delay product).
	WireSlots int `yaml:"wire_slots"`
	WireBytes int `yaml:"wire_bytes"`

	// PacketCacheCapacity bounds the receiver's intake PacketCache.
	PacketCacheCapacity int `yaml:"packet_cache_capacity"`

	// NetRetryMS / NICRetryMS bound the idle wait of the wire->NIC and
	// NIC->wire workers respectively.
	NetRetryMS int `yaml:"net_retry_ms"`
	NICRetryMS int `yaml:"nic_retry_ms"`

	// MaxAcquireAttempts bounds the spin on a RESERVED predecessor slot
	// during arena layout.
	MaxAcquireAttempts int `yaml:"max_acquire_attempts"`

	// Unreliability holds the off-by-default network-unreliability
	// extension knobs, wired to a concrete but disabled reorder buffer.
	Unreliability UnreliabilityConfig `yaml:"unreliability"`

	// Affinity optionally pins each worker goroutine to a fixed CPU.
	// Disabled by default; has no effect on platforms internal/pin cannot
	// support.
	Affinity AffinityConfig `yaml:"affinity"`
}

// AffinityConfig names one CPU index per worker role; the workers of that
// role in both Channels (or both Receivers) share it.
type AffinityConfig struct {
	Enabled       bool `yaml:"enabled"`
	NICToWireCPU  int  `yaml:"nic_to_wire_cpu"`
	WireToNICCPU  int  `yaml:"wire_to_nic_cpu"`
	ReassemblyCPU int  `yaml:"reassembly_cpu"`
}

// LoggingConfig configures the zap logger shared across the simulator.
type LoggingConfig struct {
	Level zapcore.Level `yaml:"level"`
}

// UnreliabilityConfig describes the optional, disabled-by-default
// unreliability knobs on a Channel's wire stage. ReorderEnabled and
// ReorderWindow drive the wire hold-back buffer; DropRate and
// DuplicateRate are declared but not read by any transit path.
type UnreliabilityConfig struct {
	ReorderEnabled bool    `yaml:"reorder_enabled"`
	ReorderWindow  int     `yaml:"reorder_window"`
	DropRate       float64 `yaml:"drop_rate"`
	DuplicateRate  float64 `yaml:"duplicate_rate"`
}

// DefaultConfig returns the production defaults named in the external
// interface (payload 1024B, 10ms one-way latency, bandwidth simulation
// disabled with BandwidthBPS 0, 128-deep packet cache, 5ms retries).
func DefaultConfig() *Config {
	return &Config{
		Logging:             LoggingConfig{Level: zapcore.InfoLevel},
		MaxPayloadBytes:     1024,
		LatencyMS:           10,
		BandwidthBPS:        0,
		NICSlots:            64,
		NICBytes:            64 * 1024,
		WireSlots:           4096,
		WireBytes:           4 * 1024 * 1024,
		PacketCacheCapacity: 128,
		NetRetryMS:          5,
		NICRetryMS:          5,
		MaxAcquireAttempts:  20,
		Unreliability: UnreliabilityConfig{
			ReorderEnabled: false,
			ReorderWindow:  8,
		},
		Affinity: AffinityConfig{
			Enabled:       false,
			NICToWireCPU:  0,
			WireToNICCPU:  1,
			ReassemblyCPU: 2,
		},
	}
}

// LoadConfig reads a YAML overlay on top of DefaultConfig. Fields absent
// from the file keep their default value.
func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// MaxPacketBytes is the largest total wire size (headers + payload) the
// arena must ever be asked to lay out, used by wirefmt.ValidateTotalSize.
func (c *Config) MaxPacketBytes() uint64 {
	return uint64(c.MaxPayloadBytes) + 64
}
