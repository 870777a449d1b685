// Package module defines what a capability module is and keeps the
// registry of every command the running agent can execute.
//
// A module is a named bundle of commands.  The built-in Core module is
// registered at start-up; further modules are loaded at runtime and
// merged into the same Registry.
package module

import (
	"context"
	"strings"

	"drone/internal/errors"
)

// Handler executes one command.  payload is the raw task payload; the
// handler decodes its own parameters.  A returned error is reported to
// the controller by the dispatcher.
type Handler func(ctx context.Context, agentID string, payload []byte) error

// Command binds a command name to its handler.  Names are matched
// case-insensitively.
type Command struct {
	Name    string
	Handler Handler
}

// Descriptor describes a module: its name and the commands it exposes,
// in order.  A Descriptor is built once when the module is loaded and
// is not modified afterwards.
type Descriptor struct {
	Name     string
	Version  string
	Commands []Command
}

// CommandNames returns the command names in declaration order.
func (d Descriptor) CommandNames() []string {
	out := make([]string, len(d.Commands))
	for i, c := range d.Commands {
		out[i] = c.Name
	}
	return out
}

// Validate checks that the descriptor can be registered as a whole.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.Invalid("module", nil, "module name is empty")
	}
	if len(d.Commands) == 0 {
		return errors.Invalid("module", d.Name, "module exposes no commands")
	}
	for i, c := range d.Commands {
		if strings.TrimSpace(c.Name) == "" {
			return errors.Invalid("module", d.Name, "command %d has no name", i)
		}
		if c.Handler == nil {
			return errors.Invalid("module", d.Name, "command %s has no handler", c.Name)
		}
	}
	return nil
}

// Provider is implemented by anything that can describe itself as a
// module: the built-in Core module and every loaded capability unit.
type Provider interface {
	Descriptor() Descriptor
}

// Facade is the host agent as seen by command handlers.  Messages and
// errors go back to the controller; Stop begins agent shutdown.
type Facade interface {
	SendMessage(text string)
	SendError(text string)
	Stop()
	RegisterModule(d Descriptor) error
}
