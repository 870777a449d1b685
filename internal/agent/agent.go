// Package agent is the host side of the capability core: it owns the
// command registry and the dispatcher, reports results to the
// controller, and runs tasks read from a line-delimited source.
//
// Results are written as one JSON object per line:
//
//	{"agent":"<id>","type":"message","text":"...","time":"<RFC 3339>"}
//
// with type "error" for failures.
package agent

import (
	"io"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidwall/sjson"

	"drone/internal/dispatch"
	"drone/internal/metrics"
	"drone/internal/module"
	"drone/internal/settings"
	"drone/util"
)

// DefaultWorkers is the number of tasks Run executes at once when
// Options.Workers is not set.
const DefaultWorkers = 4

// Options configures an Agent.  Only ID and Store are required.
type Options struct {
	ID      string
	Store   *settings.Store
	Output  io.Writer // result events; default os.Stdout
	Logger  *util.Logger
	Metrics *metrics.Collector
	Workers int
}

// Agent implements module.Facade.  It is safe for concurrent use.
type Agent struct {
	ID string

	store      *settings.Store
	registry   *module.Registry
	dispatcher *dispatch.Dispatcher
	logger     *util.Logger
	metrics    *metrics.Collector
	workers    int

	outMu sync.Mutex
	out   io.Writer

	stopOnce sync.Once
	stopped  atomic.Bool
	done     chan struct{}

	rndMu sync.Mutex
	rnd   *rand.Rand

	now func() time.Time
}

// New returns an Agent with an empty registry.
func New(opts Options) *Agent {
	a := &Agent{
		ID:       opts.ID,
		store:    opts.Store,
		registry: module.NewRegistry(),
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		workers:  opts.Workers,
		out:      opts.Output,
		done:     make(chan struct{}),
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
	}
	if a.store == nil {
		a.store = settings.New()
	}
	if a.logger == nil {
		a.logger = util.NewLogger(0)
	}
	if a.out == nil {
		a.out = os.Stdout
	}
	if a.workers <= 0 {
		a.workers = DefaultWorkers
	}
	a.dispatcher = dispatch.New(a.registry, a, a.logger, a.metrics)
	return a
}

// Store returns the agent's configuration store.
func (a *Agent) Store() *settings.Store { return a.store }

// Registry returns the agent's command registry.
func (a *Agent) Registry() *module.Registry { return a.registry }

// ── module.Facade ────────────────────────────────────────────────────

// SendMessage reports text to the controller.
func (a *Agent) SendMessage(text string) {
	a.metrics.MessageSent()
	a.emit("message", text)
}

// SendError reports a failure to the controller.
func (a *Agent) SendError(text string) {
	a.emit("error", text)
}

// Stop begins shutdown.  Calling it more than once has no further
// effect.
func (a *Agent) Stop() {
	a.stopOnce.Do(func() {
		a.stopped.Store(true)
		close(a.done)
		a.logger.Verbose("agent %s stopping", a.ID)
	})
}

// Done is closed once Stop has been called.
func (a *Agent) Done() <-chan struct{} { return a.done }

// Stopped reports whether Stop has been called.
func (a *Agent) Stopped() bool { return a.stopped.Load() }

// RegisterModule makes every command of d available for dispatch.
func (a *Agent) RegisterModule(d module.Descriptor) error {
	if err := a.registry.Register(d); err != nil {
		return err
	}
	a.metrics.ModuleLoaded()
	a.logger.Info("registered module %s (%d commands)", d.Name, len(d.Commands))
	return nil
}

// Register is RegisterModule for anything that can describe itself.
func (a *Agent) Register(p module.Provider) error {
	return a.RegisterModule(p.Descriptor())
}

// ── output ───────────────────────────────────────────────────────────

func (a *Agent) emit(kind, text string) {
	ev, _ := sjson.SetBytes(nil, "agent", a.ID)
	ev, _ = sjson.SetBytes(ev, "type", kind)
	ev, _ = sjson.SetBytes(ev, "text", text)
	ev, _ = sjson.SetBytes(ev, "time", a.now().UTC().Format(time.RFC3339Nano))
	ev = append(ev, '\n')

	a.outMu.Lock()
	defer a.outMu.Unlock()
	if _, err := a.out.Write(ev); err != nil {
		a.logger.Error("write %s event: %v", kind, err)
	}
}

// nextSleep returns the jittered delay between polls of a followed
// task source.
func (a *Agent) nextSleep() time.Duration {
	a.rndMu.Lock()
	defer a.rndMu.Unlock()
	return a.store.SleepDuration(a.rnd)
}
