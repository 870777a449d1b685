// Package dispatch routes task requests to the handler registered for
// the requested command.
//
// Dispatch is the failure boundary of the agent: whatever happens
// inside a handler, including a panic, ends up as one error report to
// the controller and never reaches the caller.  The agent keeps running.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"drone/internal/errors"
	"drone/internal/metrics"
	"drone/internal/module"
	"drone/util"
)

// Reporter is the part of the agent facade the dispatcher reports
// failures through.
type Reporter interface {
	SendError(text string)
}

// Dispatcher looks up commands in a Registry and runs their handlers
// synchronously.  It is safe for concurrent use.
type Dispatcher struct {
	Registry *module.Registry
	Reporter Reporter
	Logger   *util.Logger
	Metrics  *metrics.Collector // optional
}

// New returns a Dispatcher for the given registry and reporter.
func New(registry *module.Registry, reporter Reporter, logger *util.Logger, m *metrics.Collector) *Dispatcher {
	return &Dispatcher{
		Registry: registry,
		Reporter: reporter,
		Logger:   logger,
		Metrics:  m,
	}
}

// Dispatch runs command for agentID with the given raw payload.  An
// unknown command, a handler error or a handler panic is reported once
// through the Reporter; nothing is returned to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, agentID, command string, payload []byte) {
	d.Metrics.TaskStarted()
	defer d.Metrics.TaskFinished()

	start := time.Now()
	log := d.Logger.With("command", command)

	err := d.Run(ctx, agentID, command, payload)
	if err == nil {
		log.Verbose("completed in %s", time.Since(start).Round(time.Microsecond))
		return
	}

	d.Metrics.RecordError(err.Error())
	log.Verbose("failed (%s): %v", errors.Kind(err), err)
	d.Reporter.SendError(err.Error())
}

// Run is Dispatch without the reporting: it returns the handler's
// error (or the recovered panic, or an unknown-command error) to the
// caller instead.
func (d *Dispatcher) Run(ctx context.Context, agentID, command string, payload []byte) (err error) {
	binding, ok := d.Registry.Lookup(command)
	if !ok {
		d.Metrics.UnknownCommand()
		return &errors.UnknownCommandError{Command: command}
	}

	defer func() {
		if r := recover(); r != nil {
			d.Metrics.Panic()
			d.Logger.Debug("panic in %s.%s: %v\n%s", binding.Module, binding.Name, r, debug.Stack())
			err = &errors.PanicError{Command: binding.Name, Value: r}
		}
	}()

	d.Logger.Debug("dispatch %s.%s (%d byte payload)", binding.Module, binding.Name, len(payload))
	if err := binding.Handler(ctx, agentID, payload); err != nil {
		return fmt.Errorf("%s: %w", binding.Name, err)
	}
	return nil
}
