package wavm

import (
	"context"
	"fmt"

	"github.com/wavmgo/wavm/api"
	"github.com/wavmgo/wavm/internal/runtime"
)

// moduleAdapter satisfies api.Module over a *runtime.ModuleInstance, the
// boundary between this package's public, context-taking surface and
// internal/runtime's Context-taking one (spec.md §4.4's ModuleInstance
// object, wrapped for an embedder).
type moduleAdapter struct {
	mi   *runtime.ModuleInstance
	name string

	// rctx is the execution context this module's exported functions run
	// under. One per instantiation: spec.md §4.7's mutable-global slots are
	// per-Context, and an embedder calling a module's exports expects a
	// single consistent view of its own globals across calls.
	rctx *runtime.Context

	exitCode *uint32
}

func (m *moduleAdapter) String() string { return fmt.Sprintf("Module[%s]", m.name) }

func (m *moduleAdapter) Name() string { return m.name }

func (m *moduleAdapter) Memory() api.Memory {
	mem, ok := m.mi.ExportedMemory("memory")
	if !ok {
		return nil
	}
	return &memoryAdapter{mem: mem}
}

func (m *moduleAdapter) ExportedMemory(name string) api.Memory {
	mem, ok := m.mi.ExportedMemory(name)
	if !ok {
		return nil
	}
	return &memoryAdapter{mem: mem}
}

func (m *moduleAdapter) ExportedFunction(name string) api.Function {
	fn, ok := m.mi.ExportedFunction(name)
	if !ok {
		return nil
	}
	return &functionAdapter{fn: fn, rctx: m.rctx}
}

func (m *moduleAdapter) ExportedGlobal(name string) api.Global {
	g, ok := m.mi.ExportedGlobal(name)
	if !ok {
		return nil
	}
	if g.Type.Mutable {
		return &mutableGlobalAdapter{globalAdapter{g: g, rctx: m.rctx}}
	}
	return &globalAdapter{g: g, rctx: m.rctx}
}

func (m *moduleAdapter) CloseWithExitCode(_ context.Context, exitCode uint32) error {
	m.mi.RemoveRoot()
	code := exitCode
	m.exitCode = &code
	return nil
}

func (m *moduleAdapter) Close(ctx context.Context) error {
	return m.CloseWithExitCode(ctx, 0)
}

type functionAdapter struct {
	fn   *runtime.FunctionInstance
	rctx *runtime.Context
}

func (f *functionAdapter) ParamTypes() []byte  { return f.fn.Type.Params }
func (f *functionAdapter) ResultTypes() []byte { return f.fn.Type.Results }

func (f *functionAdapter) Call(ctx context.Context, params ...uint64) ([]uint64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	results, err := f.fn.Call(ctx, f.rctx, params)
	if err != nil {
		return nil, translateExit(err)
	}
	return results, nil
}

type globalAdapter struct {
	g    *runtime.Global
	rctx *runtime.Context
}

func (g *globalAdapter) String() string { return fmt.Sprintf("global(%v)", g.g.Get(g.rctx)) }
func (g *globalAdapter) Type() byte     { return g.g.Type.ValType }
func (g *globalAdapter) Get(context.Context) uint64 { return g.g.Get(g.rctx) }

type mutableGlobalAdapter struct{ globalAdapter }

func (g *mutableGlobalAdapter) Set(_ context.Context, v uint64) { g.g.Set(g.rctx, v) }

type memoryAdapter struct{ mem *runtime.Memory }

func (m *memoryAdapter) Size(context.Context) uint32 { return m.mem.Size() * pageSizeBytes }

func (m *memoryAdapter) Grow(_ context.Context, delta uint32) (uint32, bool) { return m.mem.Grow(delta) }

func (m *memoryAdapter) Read(_ context.Context, offset, byteCount uint32) ([]byte, bool) {
	return m.mem.Read(offset, byteCount)
}

func (m *memoryAdapter) Write(_ context.Context, offset uint32, v []byte) bool {
	return m.mem.Write(offset, v)
}

func (m *memoryAdapter) ReadUint32Le(_ context.Context, offset uint32) (uint32, bool) {
	b, ok := m.mem.Read(offset, 4)
	if !ok {
		return 0, false
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, true
}

func (m *memoryAdapter) WriteUint32Le(_ context.Context, offset, v uint32) bool {
	b := []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	return m.mem.Write(offset, b)
}

const pageSizeBytes = 65536
