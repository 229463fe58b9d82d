// File: internal/pin/pin_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux CPU-affinity pinning for a Channel or Receiver worker goroutine,
// via golang.org/x/sys/unix, chosen so the simulator never requires cgo
// to build.

//go:build linux

package pin

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// ToCPU locks the calling goroutine to its current OS thread and pins that
// thread to cpuID. Call from inside the goroutine to be pinned.
func ToCPU(cpuID int) error {
	if cpuID < 0 {
		return nil
	}
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)
	return unix.SchedSetaffinity(0, &set)
}

// Available reports whether CPU pinning is supported on this platform.
func Available() bool { return true }
