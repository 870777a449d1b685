//go:build !unix && !windows

package process

import "errors"

func lookup(pid int) (string, error) {
	return "", errors.New("process lookup is not supported on this platform")
}
