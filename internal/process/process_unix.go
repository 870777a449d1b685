//go:build unix && !linux

package process

import (
	"errors"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

func lookup(pid int) (string, error) {
	// Signal 0 checks existence; EPERM means it exists but is not ours.
	if err := unix.Kill(pid, 0); err != nil && !errors.Is(err, unix.EPERM) {
		if errors.Is(err, unix.ESRCH) {
			return "", errors.New("no such process")
		}
		return "", err
	}
	if pid == os.Getpid() {
		if exe, err := os.Executable(); err == nil {
			return filepath.Base(exe), nil
		}
	}
	return "", nil
}
