// File: internal/pin/pin_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

//go:build !linux && !windows

package pin

// ToCPU is a no-op on platforms with no supported affinity binding.
func ToCPU(cpuID int) error { return nil }

// Available reports whether CPU pinning is supported on this platform.
func Available() bool { return false }
