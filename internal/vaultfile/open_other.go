//go:build !linux && !darwin

package vaultfile

import (
	"fmt"
	"os"
)

// secureOpen rejects symlinks via Lstat before opening. POSIX permission bits
// are not meaningful on every platform, so only the symlink and regular-file
// checks apply here.
func secureOpen(path string) (*os.File, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("refusing to follow symlink")
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file")
	}
	return os.Open(path)
}
