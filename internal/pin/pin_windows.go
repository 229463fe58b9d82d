// File: internal/pin/pin_windows.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Windows CPU-affinity pinning via golang.org/x/sys/windows: a lazy-DLL/
// proc binding to kernel32's SetThreadAffinityMask does the actual
// pinning.

//go:build windows

package pin

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/windows"
)

var (
	modkernel32               = windows.NewLazySystemDLL("kernel32.dll")
	procSetThreadAffinityMask = modkernel32.NewProc("SetThreadAffinityMask")
	procGetCurrentThread      = modkernel32.NewProc("GetCurrentThread")
)

// ToCPU locks the calling goroutine to its current OS thread and pins that
// thread to cpuID.
func ToCPU(cpuID int) error {
	if cpuID < 0 {
		return nil
	}
	runtime.LockOSThread()
	handle, _, _ := procGetCurrentThread.Call()
	mask := uintptr(1) << uint(cpuID)
	old, _, callErr := procSetThreadAffinityMask.Call(handle, mask)
	if old == 0 {
		return fmt.Errorf("pin: SetThreadAffinityMask failed: %w", callErr)
	}
	return nil
}

// Available reports whether CPU pinning is supported on this platform.
func Available() bool { return true }
