// Package platform selects the process.System for the running OS.
package platform

// Options tune the OS backend.
type Options struct {
	// EnableDebugPrivilege asks the Windows backend to enable SeDebugPrivilege.
	EnableDebugPrivilege bool
}
