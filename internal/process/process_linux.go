//go:build linux

package process

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

var errNoProcess = errors.New("no such process")

func lookup(pid int) (string, error) {
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/comm")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", errNoProcess
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
