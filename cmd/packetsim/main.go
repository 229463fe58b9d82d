// File: cmd/packetsim/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Thin demonstration harness for the packet-transport simulator core,
// following sakateka-yanet2's cobra-based controlplane/cmd/yncp-director
// main.go shape: a package-level Cmd struct bound to cobra flags/args, a
// run() that wires config + logging + the core facade, and a background
// errgroup of sending/receiving threads layered on top of Simulator. ARQ
// policy, statistics, and data-pattern validation are out of scope; the
// harness does not check the data it receives.

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ztblick/packet-transport-sim/config"

	packetsim "github.com/ztblick/packet-transport-sim"
)

// Cmd holds the CLI surface named in the external interfaces: four
// optional positional args plus a --config overlay flag.
type Cmd struct {
	ConfigPath        string
	SendingThreads    int
	ReceivingThreads  int
	TransmissionCount int
	MaxTransmissionKB int
}

var cmd = Cmd{
	SendingThreads:    1,
	ReceivingThreads:  1,
	TransmissionCount: 4,
	MaxTransmissionKB: 4,
}

var rootCmd = &cobra.Command{
	Use:   "packetsim [sending_threads] [receiving_threads] [transmission_count] [max_transmission_kb]",
	Short: "Layered packet-transport simulator demonstration harness",
	Args:  cobra.MaximumNArgs(4),
	RunE: func(_ *cobra.Command, args []string) error {
		if err := applyPositional(args); err != nil {
			return err
		}
		return run(cmd)
	},
}

func applyPositional(args []string) error {
	ints := []*int{&cmd.SendingThreads, &cmd.ReceivingThreads, &cmd.TransmissionCount, &cmd.MaxTransmissionKB}
	for i, raw := range args {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return fmt.Errorf("argument %d must be a positive integer, got %q", i+1, raw)
		}
		*ints[i] = n
	}
	return nil
}

func init() {
	rootCmd.Flags().StringVarP(&cmd.ConfigPath, "config", "c", "", "path to an optional YAML configuration overlay")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd Cmd) error {
	cfg := config.DefaultConfig()
	if cmd.ConfigPath != "" {
		var err error
		cfg, err = config.LoadConfig(cmd.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}

	log, err := packetsim.InitLogging(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sim, ctx := packetsim.CreateNetworkLayer(ctx, cfg, log)

	harness, hctx := errgroup.WithContext(ctx)
	packetsPerTransmission := (cmd.MaxTransmissionKB*1024 + int(cfg.MaxPayloadBytes) - 1) / int(cfg.MaxPayloadBytes)

	for t := 0; t < cmd.SendingThreads; t++ {
		t := t
		harness.Go(func() error {
			return sendTransmissions(hctx, sim, cfg, t, cmd.TransmissionCount, packetsPerTransmission)
		})
	}
	for r := 0; r < cmd.ReceivingThreads; r++ {
		harness.Go(func() error {
			return receiveLoop(hctx, sim, cfg)
		})
	}

	// Let the harness run long enough to drain a representative workload,
	// then tear everything down.
	timer := time.NewTimer(5 * time.Second)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-hctx.Done():
	}
	cancel()
	_ = harness.Wait()

	if err := sim.FreeNetworkLayer(); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Infow("packetsim harness complete")
	return nil
}
