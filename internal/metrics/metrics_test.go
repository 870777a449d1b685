package metrics

import (
	"encoding/json"
	"sync"
	"testing"
)

func TestCollector_Tasks(t *testing.T) {
	c := New()

	c.TaskStarted()
	c.TaskStarted()
	if c.TasksInFlight() != 2 {
		t.Errorf("in flight = %d, want 2", c.TasksInFlight())
	}
	if c.TasksDispatched() != 2 {
		t.Errorf("dispatched = %d, want 2", c.TasksDispatched())
	}

	c.TaskFinished()
	if c.TasksInFlight() != 1 {
		t.Errorf("in flight = %d, want 1", c.TasksInFlight())
	}
	if c.TasksDispatched() != 2 {
		t.Errorf("dispatched should remain 2, got %d", c.TasksDispatched())
	}
}

func TestCollector_Counters(t *testing.T) {
	c := New()

	c.UnknownCommand()
	c.UnknownCommand()
	c.Panic()
	c.ModuleLoaded()
	c.ModuleLoaded()
	c.ModuleLoaded()
	c.MessageSent()

	if c.UnknownCommands() != 2 {
		t.Errorf("unknown = %d, want 2", c.UnknownCommands())
	}
	if c.Panics() != 1 {
		t.Errorf("panics = %d, want 1", c.Panics())
	}
	if c.ModulesLoaded() != 3 {
		t.Errorf("modules = %d, want 3", c.ModulesLoaded())
	}
	if c.MessagesSent() != 1 {
		t.Errorf("messages = %d, want 1", c.MessagesSent())
	}
}

func TestCollector_Errors(t *testing.T) {
	c := New()

	c.RecordError("first error")
	c.RecordError("second error")

	if c.ErrorCount() != 2 {
		t.Errorf("errors = %d, want 2", c.ErrorCount())
	}
	if msg := c.Snapshot().LastErrorMessage; msg != "second error" {
		t.Errorf("last error = %q", msg)
	}
}

func TestCollector_Snapshot(t *testing.T) {
	c := New()
	c.TaskStarted()
	c.ModuleLoaded()
	c.RecordError("test")

	snap := c.Snapshot()
	if snap.TasksInFlight != 1 {
		t.Errorf("snap in flight = %d", snap.TasksInFlight)
	}
	if snap.ModulesLoaded != 1 {
		t.Errorf("snap modules = %d", snap.ModulesLoaded)
	}
	if snap.TasksFailed != 1 {
		t.Errorf("snap errors = %d", snap.TasksFailed)
	}
	if snap.LastTask == "" {
		t.Error("expected non-empty last task timestamp")
	}
	if snap.LastErrorMessage != "test" {
		t.Errorf("snap error msg = %q", snap.LastErrorMessage)
	}
}

func TestCollector_JSON(t *testing.T) {
	c := New()
	c.TaskStarted()
	c.UnknownCommand()

	raw := c.JSON()
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		t.Fatalf("JSON parse error: %v", err)
	}
	if snap.TasksDispatched != 1 {
		t.Errorf("JSON dispatched = %d", snap.TasksDispatched)
	}
	if snap.UnknownCommands != 1 {
		t.Errorf("JSON unknown = %d", snap.UnknownCommands)
	}
}

func TestCollector_Concurrent(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.TaskStarted()
				c.RecordError("x")
				c.TaskFinished()
			}
		}()
	}
	wg.Wait()

	if c.TasksDispatched() != 800 || c.ErrorCount() != 800 || c.TasksInFlight() != 0 {
		t.Errorf("got dispatched=%d errors=%d in-flight=%d",
			c.TasksDispatched(), c.ErrorCount(), c.TasksInFlight())
	}
}

func TestNilCollector_NoOps(t *testing.T) {
	var c *Collector

	// None of these should panic.
	c.TaskStarted()
	c.TaskFinished()
	c.UnknownCommand()
	c.Panic()
	c.ModuleLoaded()
	c.MessageSent()
	c.RecordError("test")

	if c.TasksDispatched() != 0 {
		t.Error("nil collector should return 0")
	}
	if c.ModulesLoaded() != 0 {
		t.Error("nil collector should return 0")
	}
	if c.ErrorCount() != 0 {
		t.Error("nil collector should return 0")
	}

	snap := c.Snapshot()
	if snap.TasksDispatched != 0 {
		t.Error("nil snapshot should be zero")
	}

	j := c.JSON()
	if j == "" {
		t.Error("nil JSON should return valid JSON")
	}
}
