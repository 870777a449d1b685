// Package loader turns WebAssembly capability units into module
// descriptors the agent can register.
//
// A capability unit is a WebAssembly module that exports a small,
// fixed ABI:
//
//	memory              linear memory
//	allocate(i32) i32   reserve n bytes, return the offset
//	describe() i64      packed ptr/len of the unit's JSON manifest
//	invoke(i64) i64     run a command; 0 on success, else packed error JSON
//
// Packed values carry a 32-bit offset in the high word and a 32-bit
// length in the low word.  Units may import send_message(i64) and
// send_error(i64) from the "agent" host module and anything from WASI;
// no other imports resolve.
package loader

import (
	"context"
	"encoding/hex"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"golang.org/x/crypto/blake2b"

	"drone/internal/errors"
	"drone/internal/module"
	"drone/util"
)

// HostModule is the import namespace the agent provides to units.
const HostModule = "agent"

// ABIConstraint is the range of guest ABI versions this host accepts.
const ABIConstraint = "^1"

// DefaultInvokeTimeout bounds a single invoke call, and the start
// function plus describe of a unit being loaded.
const DefaultInvokeTimeout = 30 * time.Second

// Sink receives the messages and errors a unit reports while running.
type Sink interface {
	SendMessage(text string)
	SendError(text string)
}

// Info describes a loaded unit.
type Info struct {
	Name        string
	Version     string
	Fingerprint string // hex blake2b-256 of the module binary
	Commands    []string
	LoadedAt    time.Time
}

// Loader compiles, validates and instantiates capability units in a
// single wazero runtime.  It is safe for concurrent use.
type Loader struct {
	runtime    wazero.Runtime
	sink       Sink
	logger     *util.Logger
	timeout    time.Duration
	constraint *semver.Constraints

	mu        sync.Mutex
	instances map[string]*instance
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger.  The default discards everything but
// errors.
func WithLogger(l *util.Logger) Option {
	return func(ld *Loader) { ld.logger = l }
}

// WithInvokeTimeout bounds each call into guest code.  d ≤ 0 keeps the
// default.
func WithInvokeTimeout(d time.Duration) Option {
	return func(ld *Loader) {
		if d > 0 {
			ld.timeout = d
		}
	}
}

// New creates a Loader with its own runtime.  Messages reported by
// units go to sink.
func New(ctx context.Context, sink Sink, opts ...Option) (*Loader, error) {
	constraint, err := semver.NewConstraint(ABIConstraint)
	if err != nil {
		return nil, err
	}
	l := &Loader{
		sink:       sink,
		timeout:    DefaultInvokeTimeout,
		constraint: constraint,
		instances:  make(map[string]*instance),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = util.NewLogger(0)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	if err := l.instantiateHost(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	l.runtime = rt
	return l, nil
}

// instantiateHost exports the functions units resolve from the running
// agent instead of carrying their own.
func (l *Loader) instantiateHost(ctx context.Context, rt wazero.Runtime) error {
	packed := []api.ValueType{api.ValueTypeI64}
	_, err := rt.NewHostModuleBuilder(HostModule).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, m api.Module, stack []uint64) {
			if text, ok := readPacked(m, stack[0]); ok {
				l.sink.SendMessage(string(text))
			}
		}), packed, nil).
		Export("send_message").
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, m api.Module, stack []uint64) {
			if text, ok := readPacked(m, stack[0]); ok {
				l.sink.SendError(string(text))
			}
		}), packed, nil).
		Export("send_error").
		Instantiate(ctx)
	return err
}

// LoadFile reads a unit from disk and loads it.
func (l *Loader) LoadFile(ctx context.Context, path string) (module.Descriptor, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return module.Descriptor{}, errors.Load("read", err)
	}
	return l.Load(ctx, blob)
}

// Load compiles blob, checks it implements the capability ABI,
// instantiates it and returns a descriptor whose handlers call into the
// new instance.  On failure nothing stays loaded.  Loading a unit whose
// name is already loaded replaces the earlier instance.
func (l *Loader) Load(ctx context.Context, blob []byte) (module.Descriptor, error) {
	sum := blake2b.Sum256(blob)
	fingerprint := hex.EncodeToString(sum[:])
	log := l.logger.With("fingerprint", fingerprint[:16])

	compiled, err := l.runtime.CompileModule(ctx, blob)
	if err != nil {
		return module.Descriptor{}, errors.Load("compile", err)
	}
	if problems := checkContract(compiled); len(problems) > 0 {
		_ = compiled.Close(ctx)
		return module.Descriptor{}, &errors.ContractError{Problems: problems}
	}

	// The start function and describe share the invoke time limit.
	loadCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	cfg := wazero.NewModuleConfig().WithName("").WithStartFunctions("_initialize")
	mod, err := l.runtime.InstantiateModule(loadCtx, compiled, cfg)
	if err != nil {
		_ = compiled.Close(ctx)
		if loadCtx.Err() != nil {
			err = loadCtx.Err()
		}
		return module.Descriptor{}, errors.Load("instantiate", err)
	}
	inst := &instance{mod: mod, compiled: compiled}

	m, err := inst.describe(loadCtx)
	if err != nil && loadCtx.Err() != nil {
		err = errors.Load("describe", loadCtx.Err())
	}
	if err == nil {
		err = m.validate(l.constraint)
	}
	if err != nil {
		inst.close(ctx)
		return module.Descriptor{}, err
	}
	inst.name = m.Name

	info := Info{
		Name:        m.Name,
		Version:     m.Version,
		Fingerprint: fingerprint,
		Commands:    m.Commands,
		LoadedAt:    time.Now(),
	}
	inst.info = info

	l.mu.Lock()
	old := l.instances[key(m.Name)]
	l.instances[key(m.Name)] = inst
	l.mu.Unlock()
	if old != nil {
		log.Verbose("replacing loaded module %s", old.name)
		old.close(ctx)
	}

	log.Info("loaded module %s %s (%d commands)", m.Name, m.Version, len(m.Commands))
	return l.descriptor(inst, m), nil
}

func (l *Loader) descriptor(inst *instance, m manifest) module.Descriptor {
	d := module.Descriptor{Name: m.Name, Version: m.Version}
	for _, name := range m.Commands {
		d.Commands = append(d.Commands, module.Command{
			Name: name,
			Handler: func(ctx context.Context, agentID string, payload []byte) error {
				ctx, cancel := context.WithTimeout(ctx, l.timeout)
				defer cancel()
				return inst.invoke(ctx, agentID, name, payload)
			},
		})
	}
	return d
}

// Loaded lists the units currently loaded, sorted by name.
func (l *Loader) Loaded() []Info {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Info, 0, len(l.instances))
	for _, inst := range l.instances {
		out = append(out, inst.info)
	}
	sortInfo(out)
	return out
}

// Close releases every loaded unit and the runtime.
func (l *Loader) Close(ctx context.Context) error {
	l.mu.Lock()
	l.instances = make(map[string]*instance)
	l.mu.Unlock()
	return l.runtime.Close(ctx)
}

func key(name string) string { return strings.ToLower(strings.TrimSpace(name)) }
