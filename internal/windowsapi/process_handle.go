//go:build windows

package windowsapi

import (
	"fmt"
	"path/filepath"
	"unsafe"

	"proc_exporter/internal/filetime"
	"proc_exporter/internal/process"

	"golang.org/x/sys/windows"
)

type processHandle struct {
	h   windows.Handle
	pid uint32
}

// BaseName returns the base name of the first module, which is the executable.
func (p *processHandle) BaseName() (string, error) {
	var module windows.Handle
	var needed uint32
	err := windows.EnumProcessModulesEx(p.h, &module, uint32(unsafe.Sizeof(module)), &needed,
		windows.LIST_MODULES_ALL)
	if err != nil {
		return "", fmt.Errorf("EnumProcessModulesEx(%d) failed: %w", p.pid, err)
	}

	var buf [windows.MAX_PATH + 1]uint16
	if err := windows.GetModuleBaseName(p.h, module, &buf[0], uint32(len(buf))); err != nil {
		return "", fmt.Errorf("GetModuleBaseName(%d) failed: %w", p.pid, err)
	}
	return windows.UTF16ToString(buf[:]), nil
}

func (p *processHandle) Times() (process.Times, error) {
	var creation, exit, kernel, user windows.Filetime
	if err := windows.GetProcessTimes(p.h, &creation, &exit, &kernel, &user); err != nil {
		return process.Times{}, fmt.Errorf("GetProcessTimes(%d) failed: %w", p.pid, err)
	}
	return process.Times{
		Creation: filetime.FromFiletime(creation),
		Kernel:   filetime.FromFiletime(kernel),
		User:     filetime.FromFiletime(user),
	}, nil
}

func (p *processHandle) PrivateBytes() (uint64, error) {
	var counters processMemoryCountersEx
	if err := getProcessMemoryInfo(p.h, &counters); err != nil {
		return 0, fmt.Errorf("GetProcessMemoryInfo(%d) failed: %w", p.pid, err)
	}
	return uint64(counters.PrivateUsage), nil
}

func (p *processHandle) Terminate(exitCode uint32) error {
	if err := windows.TerminateProcess(p.h, exitCode); err != nil {
		return fmt.Errorf("TerminateProcess(%d) failed: %w", p.pid, err)
	}
	return nil
}

func (p *processHandle) Alive() (bool, error) {
	var code uint32
	if err := windows.GetExitCodeProcess(p.h, &code); err != nil {
		return false, fmt.Errorf("GetExitCodeProcess(%d) failed: %w", p.pid, err)
	}
	return code == stillActive, nil
}

// Executable returns the full Win32 path of the process image.
func (p *processHandle) Executable() (string, error) {
	buf := make([]uint16, windows.MAX_LONG_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(p.h, 0, &buf[0], &size); err != nil {
		return "", fmt.Errorf("QueryFullProcessImageName(%d) failed: %w", p.pid, err)
	}
	return filepath.Clean(windows.UTF16ToString(buf[:size])), nil
}

func (p *processHandle) Close() error {
	return windows.CloseHandle(p.h)
}
