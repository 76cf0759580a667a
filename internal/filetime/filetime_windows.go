//go:build windows

package filetime

import "golang.org/x/sys/windows"

// FromFiletime converts the Win32 FILETIME representation.
func FromFiletime(ft windows.Filetime) Ticks {
	return FromWords(ft.LowDateTime, ft.HighDateTime)
}
