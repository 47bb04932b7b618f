//go:build linux || darwin

package vaultfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// secureOpen opens the vault read-only with O_NOFOLLOW so a symlinked path is
// rejected, then verifies on the open handle that the file is regular and not
// group/world accessible. Checking the handle rather than the path closes the
// check-then-open race.
func secureOpen(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_NOFOLLOW, 0)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("not a regular file")
	}
	if info.Mode().Perm()&0o077 != 0 {
		f.Close()
		return nil, fmt.Errorf("permissions %04o allow group/world access", info.Mode().Perm())
	}
	return f, nil
}
