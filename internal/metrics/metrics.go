// Package metrics provides lightweight, lock-free counters for tracking
// what the agent core has done since start-up: tasks dispatched, tasks
// that failed, unknown commands, recovered panics and loaded modules.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for one agent process.
// A nil Collector is safe to use: every method is a no-op.
type Collector struct {
	tasksDispatched atomic.Int64
	tasksInFlight   atomic.Int64
	tasksFailed     atomic.Int64
	unknownCommands atomic.Int64
	panics          atomic.Int64
	modulesLoaded   atomic.Int64
	messagesSent    atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastTask     time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Task metrics ─────────────────────────────────────────────────────

// TaskStarted records a dispatch and marks it in flight.
func (c *Collector) TaskStarted() {
	if c == nil {
		return
	}
	c.tasksDispatched.Add(1)
	c.tasksInFlight.Add(1)
	c.mu.Lock()
	c.lastTask = time.Now()
	c.mu.Unlock()
}

// TaskFinished marks a dispatch as no longer in flight.
func (c *Collector) TaskFinished() {
	if c == nil {
		return
	}
	c.tasksInFlight.Add(-1)
}

// TasksDispatched returns the lifetime dispatch count.
func (c *Collector) TasksDispatched() int64 {
	if c == nil {
		return 0
	}
	return c.tasksDispatched.Load()
}

// TasksInFlight returns the number of dispatches currently running.
func (c *Collector) TasksInFlight() int64 {
	if c == nil {
		return 0
	}
	return c.tasksInFlight.Load()
}

// UnknownCommand records a dispatch for a command nobody registered.
func (c *Collector) UnknownCommand() {
	if c == nil {
		return
	}
	c.unknownCommands.Add(1)
}

// UnknownCommands returns the number of unknown-command dispatches.
func (c *Collector) UnknownCommands() int64 {
	if c == nil {
		return 0
	}
	return c.unknownCommands.Load()
}

// Panic records a handler panic that was recovered.
func (c *Collector) Panic() {
	if c == nil {
		return
	}
	c.panics.Add(1)
}

// Panics returns the number of recovered handler panics.
func (c *Collector) Panics() int64 {
	if c == nil {
		return 0
	}
	return c.panics.Load()
}

// ── Module metrics ───────────────────────────────────────────────────

// ModuleLoaded records a successful module registration.
func (c *Collector) ModuleLoaded() {
	if c == nil {
		return
	}
	c.modulesLoaded.Add(1)
}

// ModulesLoaded returns the number of modules registered.
func (c *Collector) ModulesLoaded() int64 {
	if c == nil {
		return 0
	}
	return c.modulesLoaded.Load()
}

// MessageSent records a message reported to the controller.
func (c *Collector) MessageSent() {
	if c == nil {
		return
	}
	c.messagesSent.Add(1)
}

// MessagesSent returns the number of messages reported.
func (c *Collector) MessagesSent() int64 {
	if c == nil {
		return 0
	}
	return c.messagesSent.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the failed-task counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.tasksFailed.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.tasksFailed.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	TasksDispatched  int64  `json:"tasks_dispatched"`
	TasksInFlight    int64  `json:"tasks_in_flight"`
	TasksFailed      int64  `json:"tasks_failed"`
	UnknownCommands  int64  `json:"unknown_commands"`
	Panics           int64  `json:"panics"`
	ModulesLoaded    int64  `json:"modules_loaded"`
	MessagesSent     int64  `json:"messages_sent"`
	LastTask         string `json:"last_task,omitempty"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:          time.Since(c.startTime).Truncate(time.Second).String(),
		TasksDispatched: c.tasksDispatched.Load(),
		TasksInFlight:   c.tasksInFlight.Load(),
		TasksFailed:     c.tasksFailed.Load(),
		UnknownCommands: c.unknownCommands.Load(),
		Panics:          c.panics.Load(),
		ModulesLoaded:   c.modulesLoaded.Load(),
		MessagesSent:    c.messagesSent.Load(),
	}
	if !c.lastTask.IsZero() {
		s.LastTask = c.lastTask.Format(time.RFC3339)
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
