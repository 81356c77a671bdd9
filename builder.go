package wavm

import (
	"context"
	"fmt"

	"github.com/wavmgo/wavm/api"
	"github.com/wavmgo/wavm/internal/runtime"
	wasm "github.com/wavmgo/wavm/internal/wasm"
)

// HostModuleBuilder defines a host module's functions before Instantiate
// makes them importable under its name by later CompileModule/
// InstantiateModule calls (spec.md §4.10's syscall surface is itself built
// this way, via wasi_snapshot_preview1's own registration table).
type HostModuleBuilder interface {
	// NewFunctionBuilder starts defining one function of this module.
	NewFunctionBuilder() HostFunctionBuilder

	// Instantiate registers every function built so far under this module's
	// name, making it resolvable by name for any InstantiateModule call made
	// against the same Runtime from now on.
	Instantiate(ctx context.Context) (api.Module, error)
}

// HostFunctionBuilder describes a single host function before Export binds
// it into its owning HostModuleBuilder.
type HostFunctionBuilder interface {
	// WithFunc sets the function's signature and Go implementation. params
	// and results are raw Wasm value-typed uint64s: callers that want typed
	// Go parameters convert at the closure boundary themselves, same as
	// wasi_snapshot_preview1's own host functions do.
	WithFunc(params, results []api.ValueType, fn func(ctx context.Context, params []uint64) ([]uint64, error)) HostFunctionBuilder

	// Export finalizes the function under name, returning the owning
	// HostModuleBuilder so further functions can be chained.
	Export(name string) HostModuleBuilder
}

type hostModuleBuilder struct {
	r          *wavmRuntime
	moduleName string
	funcs      map[string]*runtime.FunctionInstance
}

func (b *hostModuleBuilder) NewFunctionBuilder() HostFunctionBuilder {
	return &hostFunctionBuilder{module: b}
}

func (b *hostModuleBuilder) Instantiate(context.Context) (api.Module, error) {
	if _, exists := b.r.hostModules[b.moduleName]; exists {
		return nil, fmt.Errorf("wavm: host module %q already instantiated", b.moduleName)
	}
	b.r.hostModules[b.moduleName] = b.funcs
	return &hostModuleAdapter{name: b.moduleName, funcs: b.funcs}, nil
}

type hostFunctionBuilder struct {
	module *hostModuleBuilder
	typ    *wasm.FunctionType
	goFunc func(ctx context.Context, params []uint64) ([]uint64, error)
}

func (f *hostFunctionBuilder) WithFunc(params, results []api.ValueType, fn func(ctx context.Context, params []uint64) ([]uint64, error)) HostFunctionBuilder {
	f.typ = &wasm.FunctionType{Params: params, Results: results}
	f.goFunc = fn
	return f
}

func (f *hostFunctionBuilder) Export(name string) HostModuleBuilder {
	f.module.funcs[name] = runtime.NewHostFunction(f.typ, f.goFunc)
	return f.module
}

// hostModuleAdapter gives an embedder read access to a just-instantiated
// host module's own functions (there is no memory, table or global to
// expose: a HostModuleBuilder only ever defines functions).
type hostModuleAdapter struct {
	name  string
	funcs map[string]*runtime.FunctionInstance
}

func (m *hostModuleAdapter) String() string                   { return fmt.Sprintf("Module[%s]", m.name) }
func (m *hostModuleAdapter) Name() string                     { return m.name }
func (m *hostModuleAdapter) Memory() api.Memory               { return nil }
func (m *hostModuleAdapter) ExportedMemory(string) api.Memory { return nil }
func (m *hostModuleAdapter) ExportedGlobal(string) api.Global { return nil }

func (m *hostModuleAdapter) ExportedFunction(name string) api.Function {
	fn, ok := m.funcs[name]
	if !ok {
		return nil
	}
	return &functionAdapter{fn: fn}
}

func (m *hostModuleAdapter) CloseWithExitCode(context.Context, uint32) error { return nil }
func (m *hostModuleAdapter) Close(context.Context) error                    { return nil }
