package loader

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"drone/internal/errors"
)

// instance is one instantiated unit.  A unit's linear memory is shared
// by all of its exports, so calls into it are serialized.
type instance struct {
	name     string
	info     Info
	mod      api.Module
	compiled wazero.CompiledModule

	mu     sync.Mutex
	closed bool
}

func (i *instance) describe(ctx context.Context) (manifest, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	res, err := i.mod.ExportedFunction("describe").Call(ctx)
	if err != nil {
		return manifest{}, errors.Load("describe", err)
	}
	data, ok := readPacked(i.mod, res[0])
	if !ok {
		return manifest{}, errors.Load("describe", fmt.Errorf("manifest at %#x is outside guest memory", res[0]))
	}
	return parseManifest(data)
}

// invoke runs command inside the unit.  The request is written into
// guest memory obtained from allocate.
func (i *instance) invoke(ctx context.Context, agentID, command string, payload []byte) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return fmt.Errorf("module %s is no longer loaded", i.name)
	}

	req, _ := sjson.SetBytes(nil, "agent_id", agentID)
	req, _ = sjson.SetBytes(req, "command", command)
	req, _ = sjson.SetBytes(req, "payload", base64.StdEncoding.EncodeToString(payload))

	res, err := i.mod.ExportedFunction("allocate").Call(ctx, uint64(len(req)))
	if err != nil {
		return i.callFailed(ctx, "allocate", err)
	}
	ptr := uint32(res[0])
	if !i.mod.Memory().Write(ptr, req) {
		return fmt.Errorf("module %s: allocate returned %#x, outside guest memory", i.name, ptr)
	}

	res, err = i.mod.ExportedFunction("invoke").Call(ctx, pack(ptr, uint32(len(req))))
	if err != nil {
		return i.callFailed(ctx, "invoke", err)
	}
	if res[0] == 0 {
		return nil
	}

	data, ok := readPacked(i.mod, res[0])
	if !ok {
		return fmt.Errorf("module %s: failed with an unreadable error", i.name)
	}
	if msg := gjson.GetBytes(data, "error"); msg.Exists() {
		return errors.New(msg.String())
	}
	return errors.New(string(data))
}

// callFailed converts a trap or a timeout into an error.  The runtime
// closes an instance whose call outlived its context, so the instance
// is marked unusable.
func (i *instance) callFailed(ctx context.Context, fn string, err error) error {
	if ctx.Err() != nil {
		i.closed = true
		return fmt.Errorf("module %s: %s: %w", i.name, fn, ctx.Err())
	}
	return fmt.Errorf("module %s: %s: %w", i.name, fn, err)
}

func (i *instance) close(ctx context.Context) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return
	}
	i.closed = true
	_ = i.mod.Close(ctx)
	_ = i.compiled.Close(ctx)
}

// ── packed pointers ──────────────────────────────────────────────────

func pack(ptr, length uint32) uint64 {
	return uint64(ptr)<<32 | uint64(length)
}

func unpack(v uint64) (ptr, length uint32) {
	return uint32(v >> 32), uint32(v)
}

// readPacked copies the bytes a packed value points at out of m's
// memory.
func readPacked(m api.Module, v uint64) ([]byte, bool) {
	mem := m.Memory()
	if mem == nil {
		return nil, false
	}
	ptr, length := unpack(v)
	data, ok := mem.Read(ptr, length)
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

func sortInfo(infos []Info) {
	sort.Slice(infos, func(a, b int) bool { return key(infos[a].Name) < key(infos[b].Name) })
}
