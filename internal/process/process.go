// Package process resolves operating-system processes by id.  It is
// used to pick the parent process for anything the agent spawns.
package process

import (
	"os"
	"strconv"

	"drone/internal/errors"
)

// Process identifies one running process.
type Process struct {
	PID  int
	Name string // image name without directory or extension; may be empty
}

// Resolver finds processes.  System is the real implementation.
type Resolver interface {
	Current() (Process, error)
	FindByID(pid int) (Process, error)
}

// System resolves processes on the host operating system.
type System struct{}

// Current returns the agent's own process.
func (System) Current() (Process, error) {
	return FindByID(os.Getpid())
}

// FindByID returns the process with the given id.
func (System) FindByID(pid int) (Process, error) {
	return FindByID(pid)
}

// FindByID returns the process with the given id, or a
// *errors.ResolutionError if no such process exists.
func FindByID(pid int) (Process, error) {
	if pid <= 0 {
		return Process{}, errors.Invalid("PPID", pid, "process id must be positive")
	}
	name, err := lookup(pid)
	if err != nil {
		return Process{}, &errors.ResolutionError{Resource: "process", ID: strconv.Itoa(pid), Err: err}
	}
	return Process{PID: pid, Name: name}, nil
}
