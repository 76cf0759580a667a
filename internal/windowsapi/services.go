//go:build windows

package windowsapi

import (
	"errors"
	"fmt"
	"unsafe"

	"proc_exporter/internal/process"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/svc/mgr"
)

// scmAccess is enough to list services. mgr.Connect asks for
// SC_MANAGER_ALL_ACCESS, which non-elevated callers are refused.
const scmAccess = windows.SC_MANAGER_CONNECT | windows.SC_MANAGER_ENUMERATE_SERVICE

// connectSCM opens the local service control manager for enumeration.
func connectSCM() (*mgr.Mgr, error) {
	h, err := windows.OpenSCManager(nil, nil, scmAccess)
	if err != nil {
		return nil, err
	}
	return &mgr.Mgr{Handle: h}, nil
}

// Services maps the pid of every running Win32 service to its name. It
// implements process.ServiceLister. Once the SCM refuses access it is not
// asked again, and the empty map is returned.
func (s *System) Services() (map[process.Pid]string, error) {
	if s.scmDenied.Load() {
		return map[process.Pid]string{}, nil
	}

	m, err := connectSCM()
	if err != nil {
		if errors.Is(err, windows.ERROR_ACCESS_DENIED) {
			s.scmDenied.Store(true)
			s.log.Info().Err(err).Msg("Service control manager refused enumeration, service names disabled")
			return map[process.Pid]string{}, nil
		}
		return nil, fmt.Errorf("failed to connect to SCM: %w", err)
	}
	defer m.Disconnect()

	buf := make([]byte, 16<<10)
	var needed, returned uint32
	for {
		err = windows.EnumServicesStatusEx(
			m.Handle,
			windows.SC_ENUM_PROCESS_INFO,
			windows.SERVICE_WIN32,
			windows.SERVICE_ACTIVE,
			&buf[0],
			uint32(len(buf)),
			&needed,
			&returned,
			nil,
			nil,
		)
		if err == nil {
			break
		}
		if !errors.Is(err, windows.ERROR_MORE_DATA) {
			return nil, fmt.Errorf("EnumServicesStatusEx failed: %w", err)
		}
		buf = make([]byte, needed)
	}
	return servicePids(buf, returned), nil
}

// servicePids reads count ENUM_SERVICE_STATUS_PROCESS entries from buf.
// Services come back sorted by name, so when one process hosts several
// (svchost) the last name wins.
func servicePids(buf []byte, count uint32) map[process.Pid]string {
	byPid := make(map[process.Pid]string, count)
	if count == 0 {
		return byPid
	}
	entries := unsafe.Slice((*windows.ENUM_SERVICE_STATUS_PROCESS)(unsafe.Pointer(&buf[0])), count)
	for i := range entries {
		if pid := entries[i].ServiceStatusProcess.ProcessId; pid != 0 {
			byPid[process.Pid(pid)] = windows.UTF16PtrToString(entries[i].ServiceName)
		}
	}
	return byPid
}
