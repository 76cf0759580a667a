//go:build windows

package windowsapi

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modpsapi                 = windows.NewLazySystemDLL("psapi.dll")
	procGetProcessMemoryInfo = modpsapi.NewProc("GetProcessMemoryInfo")
)

// PROCESS_MEMORY_COUNTERS_EX
// https://learn.microsoft.com/en-us/windows/win32/api/psapi/ns-psapi-process_memory_counters_ex
type processMemoryCountersEx struct {
	CB                         uint32
	PageFaultCount             uint32
	PeakWorkingSetSize         uintptr
	WorkingSetSize             uintptr
	QuotaPeakPagedPoolUsage    uintptr
	QuotaPagedPoolUsage        uintptr
	QuotaPeakNonPagedPoolUsage uintptr
	QuotaNonPagedPoolUsage     uintptr
	PagefileUsage              uintptr
	PeakPagefileUsage          uintptr
	PrivateUsage               uintptr
}

func getProcessMemoryInfo(h windows.Handle, counters *processMemoryCountersEx) error {
	counters.CB = uint32(unsafe.Sizeof(*counters))
	r1, _, e1 := procGetProcessMemoryInfo.Call(
		uintptr(h),
		uintptr(unsafe.Pointer(counters)),
		uintptr(counters.CB),
	)
	if r1 == 0 {
		return e1
	}
	return nil
}
