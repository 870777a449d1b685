// Package loadertest assembles small WebAssembly capability units for
// tests, without an external toolchain.
package loadertest

const (
	valI32 = 0x7f
	valI64 = 0x7e

	opLoop     = 0x03
	opBr       = 0x0c
	opCall     = 0x10
	opI32Const = 0x41
	opI64Const = 0x42
	opEnd      = 0x0b
)

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func wname(s string) []byte {
	return append(uleb(uint64(len(s))), s...)
}

func vec(items ...[]byte) []byte {
	out := uleb(uint64(len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func section(id byte, body []byte) []byte {
	out := []byte{id}
	out = append(out, uleb(uint64(len(body)))...)
	return append(out, body...)
}

func functype(params, results []byte) []byte {
	out := []byte{0x60}
	out = append(out, uleb(uint64(len(params)))...)
	out = append(out, params...)
	out = append(out, uleb(uint64(len(results)))...)
	return append(out, results...)
}

// body wraps instructions as a function body with no locals.
func body(code ...byte) []byte {
	fn := append([]byte{0x00}, code...)
	fn = append(fn, opEnd)
	return append(uleb(uint64(len(fn))), fn...)
}

func pack(ptr, length uint32) uint64 {
	return uint64(ptr)<<32 | uint64(length)
}

func i64Const(v uint64) []byte { return append([]byte{opI64Const}, sleb(int64(v))...) }

// Empty is the smallest valid WebAssembly module.  It exports nothing.
var Empty = []byte("\x00asm\x01\x00\x00\x00")

// Guest describes a capability unit to assemble.
type Guest struct {
	Manifest     string // JSON returned by describe
	Message      string // sent through agent.send_message by invoke, if set
	Fail         string // invoke returns {"error": Fail}, if set
	NoInvoke     bool   // leave invoke unexported
	BadAllocate  bool   // export allocate as () -> i32
	ExtraImport  string // also import <ExtraImport>.missing : (i64)
	SpinDescribe bool   // describe loops forever
}

const (
	manifestAt = 0
	messageAt  = 512
	failAt     = 768
	heapAt     = 1024
)

// Wasm assembles the unit.  Function index 0 is the agent.send_message
// import.
func (g Guest) Wasm() []byte {
	// send_message, allocate, describe, invoke, bad allocate
	types := vec(
		functype([]byte{valI64}, nil),
		functype([]byte{valI32}, []byte{valI32}),
		functype(nil, []byte{valI64}),
		functype([]byte{valI64}, []byte{valI64}),
		functype(nil, []byte{valI32}),
	)

	imports := [][]byte{
		append(append(wname("agent"), wname("send_message")...), 0x00, 0x00),
	}
	if g.ExtraImport != "" {
		imports = append(imports, append(append(wname(g.ExtraImport), wname("missing")...), 0x00, 0x00))
	}
	base := uint64(len(imports))

	allocType := byte(1)
	if g.BadAllocate {
		allocType = 4
	}
	funcs := vec([]byte{allocType}, []byte{2}, []byte{3})

	memory := vec([]byte{0x00, 0x01})

	exports := [][]byte{
		append(wname("memory"), append([]byte{0x02}, uleb(0)...)...),
		append(wname("allocate"), append([]byte{0x00}, uleb(base)...)...),
		append(wname("describe"), append([]byte{0x00}, uleb(base+1)...)...),
	}
	if !g.NoInvoke {
		exports = append(exports, append(wname("invoke"), append([]byte{0x00}, uleb(base+2)...)...))
	}

	allocate := body(append([]byte{opI32Const}, sleb(heapAt)...)...)
	var spin []byte
	if g.SpinDescribe {
		spin = []byte{opLoop, 0x40, opBr, 0x00, opEnd}
	}
	describe := body(append(spin, i64Const(pack(manifestAt, uint32(len(g.Manifest))))...)...)

	var invoke []byte
	if g.Message != "" {
		invoke = append(invoke, i64Const(pack(messageAt, uint32(len(g.Message))))...)
		invoke = append(invoke, opCall)
		invoke = append(invoke, uleb(0)...)
	}
	failJSON := `{"error":"` + g.Fail + `"}`
	if g.Fail != "" {
		invoke = append(invoke, i64Const(pack(failAt, uint32(len(failJSON))))...)
	} else {
		invoke = append(invoke, i64Const(0)...)
	}
	code := vec(allocate, describe, body(invoke...))

	segment := func(at int64, data string) []byte {
		out := []byte{0x00, opI32Const}
		out = append(out, sleb(at)...)
		out = append(out, opEnd)
		return append(out, wname(data)...)
	}
	data := vec(
		segment(manifestAt, g.Manifest),
		segment(messageAt, g.Message),
		segment(failAt, failJSON),
	)

	out := []byte("\x00asm\x01\x00\x00\x00")
	out = append(out, section(1, types)...)
	out = append(out, section(2, vec(imports...))...)
	out = append(out, section(3, funcs)...)
	out = append(out, section(5, memory)...)
	out = append(out, section(7, vec(exports...))...)
	out = append(out, section(10, code)...)
	out = append(out, section(11, data)...)
	return out
}
