//go:build windows

package fsutil

import (
	"golang.org/x/sys/windows"
)

const unwritableAttributes = windows.FILE_ATTRIBUTE_READONLY |
	windows.FILE_ATTRIBUTE_HIDDEN |
	windows.FILE_ATTRIBUTE_SYSTEM

// clearReadOnly strips the read-only, hidden and system attributes that stop
// Windows from deleting or overwriting a file.
func clearReadOnly(path string) error {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	attrs, err := windows.GetFileAttributes(p)
	if err != nil {
		return err
	}
	if attrs&unwritableAttributes == 0 {
		return nil
	}
	return windows.SetFileAttributes(p, attrs&^unwritableAttributes)
}
