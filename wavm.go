// Package wavm is the embedding API: compile a WebAssembly binary, link it
// against host modules (including wasi_snapshot_preview1), and instantiate
// it into a Runtime-scoped Compartment (spec.md §4.4, §4.10).
package wavm

import (
	"context"
	"fmt"

	wasip1 "github.com/wavmgo/wavm/imports/wasi_snapshot_preview1"
	"github.com/wavmgo/wavm/api"
	"github.com/wavmgo/wavm/internal/engine"
	"github.com/wavmgo/wavm/internal/engine/interpreter"
	"github.com/wavmgo/wavm/internal/runtime"
	"github.com/wavmgo/wavm/internal/wasi"
	wasm "github.com/wavmgo/wavm/internal/wasm"
	"github.com/wavmgo/wavm/internal/wasm/binary"
)

// Runtime is the top-level embedding handle: one Compartment (spec.md §4.4
// component G) plus the Codegen and host modules every CompileModule and
// InstantiateModule call under it shares.
type Runtime interface {
	// CompileModule decodes and validates a binary module, ready to
	// instantiate any number of times via InstantiateModule.
	CompileModule(ctx context.Context, binary []byte) (CompiledModule, error)

	// InstantiateModule links compiled against every module already
	// instantiated under this Runtime plus any registered host modules, runs
	// spec.md §4.4's nine-step protocol, and returns the running instance.
	InstantiateModule(ctx context.Context, compiled CompiledModule, config *ModuleConfig) (api.Module, error)

	// NewHostModuleBuilder begins defining a host module importable under
	// moduleName by later InstantiateModule calls.
	NewHostModuleBuilder(moduleName string) HostModuleBuilder

	// Module looks up a previously instantiated module by the name it was
	// given (its ModuleConfig.WithName, or the compiled module's own name).
	Module(moduleName string) api.Module

	// Close releases every module, memory and table this Runtime's
	// Compartment ever allocated.
	Close(ctx context.Context) error
}

type wavmRuntime struct {
	config      *RuntimeConfig
	compartment *runtime.Compartment
	codegen     engine.Codegen

	hostModules map[string]map[string]*runtime.FunctionInstance
	instances   map[string]*runtime.ModuleInstance
	contexts    map[string]*runtime.Context
}

// NewRuntime returns a Runtime configured with NewRuntimeConfig's defaults.
func NewRuntime(ctx context.Context) Runtime {
	return NewRuntimeWithConfig(ctx, NewRuntimeConfig())
}

// NewRuntimeWithConfig returns a Runtime using config.
func NewRuntimeWithConfig(_ context.Context, config *RuntimeConfig) Runtime {
	return &wavmRuntime{
		config:      config,
		compartment: runtime.NewCompartment(),
		codegen:     interpreter.Engine{},
		hostModules: map[string]map[string]*runtime.FunctionInstance{},
		instances:   map[string]*runtime.ModuleInstance{},
		contexts:    map[string]*runtime.Context{},
	}
}

// CompiledModule is a validated, not-yet-instantiated module (spec.md §4.2's
// output), reusable across any number of InstantiateModule calls.
type CompiledModule interface {
	// Close releases resources associated with this compiled module that
	// outlive any one instantiation (currently a no-op placeholder: the
	// reference Codegen holds no such resources, but a real machine-code
	// backend's compiled objects would).
	Close(ctx context.Context) error
}

type compiledModule struct {
	module *wasm.Module
	name   string
}

func (c *compiledModule) Close(context.Context) error { return nil }

// CompileModule implements Runtime.CompileModule.
func (r *wavmRuntime) CompileModule(ctx context.Context, data []byte) (CompiledModule, error) {
	module, err := binary.DecodeModule(data)
	if err != nil {
		return nil, fmt.Errorf("wavm: decoding module: %w", err)
	}
	if err := module.Validate(r.config.enabledFeatures); err != nil {
		return nil, fmt.Errorf("wavm: validating module: %w", err)
	}
	if err := module.SecondaryInvariants(); err != nil {
		return nil, fmt.Errorf("wavm: validating module: %w", err)
	}
	clampMemoryLimits(module, r.config.memoryLimitPages)

	if _, ok := engine.LoadPrecompiled(module); !ok {
		if cached, hit := r.cacheLookup(data); hit {
			module.CustomSections = append(module.CustomSections, &wasm.CustomSection{
				Name: engine.PrecompiledObjectSectionName,
				Data: cached,
			})
		} else {
			objects, err := r.compileFunctions(module)
			if err != nil {
				return nil, err
			}
			r.cacheStore(data, engine.EncodePrecompiledObject(objects))
		}
	}
	return &compiledModule{module: module}, nil
}

func (r *wavmRuntime) cacheLookup(moduleBytes []byte) ([]byte, bool) {
	fc, ok := r.config.cache.(*fileCache)
	if !ok || fc == nil {
		return nil, false
	}
	return fc.lookup(moduleBytes)
}

func (r *wavmRuntime) cacheStore(moduleBytes, object []byte) {
	if fc, ok := r.config.cache.(*fileCache); ok && fc != nil {
		fc.store(moduleBytes, object)
	}
}

// compileFunctions runs every defined function through the configured
// Codegen, returning each one's object bytes in function-index order so
// CompileModule can offer them to its Cache. The reference
// interpreter.Engine's objects are otherwise unused after this call (it
// tree-walks wasm.Instruction IR directly at Call time), but every defined
// function is still run through Compile so a real machine-code backend
// swapped in via RuntimeConfig would get the same treatment, and so a
// malformed body the validator missed (there shouldn't be one) still fails
// at compile time rather than at first call.
func (r *wavmRuntime) compileFunctions(module *wasm.Module) ([][]byte, error) {
	firstDefinedIdx := module.FunctionIndexSpace() - uint32(len(module.CodeSection))
	objects := make([][]byte, 0, len(module.CodeSection))
	for i, code := range module.CodeSection {
		funcIdx := firstDefinedIdx + uint32(i)
		sig, err := module.TypeOfFunction(funcIdx)
		if err != nil {
			return nil, fmt.Errorf("wavm: compiling function %d: %w", funcIdx, err)
		}
		result, err := r.codegen.Compile(module, funcIdx, sig, code, engine.TargetInterpreter)
		if err != nil {
			return nil, fmt.Errorf("wavm: compiling function %d: %w", funcIdx, err)
		}
		objects = append(objects, result.Object)
	}
	return objects, nil
}

func clampMemoryLimits(module *wasm.Module, limitPages uint32) {
	for _, mt := range module.MemorySection {
		if mt.Max == nil || *mt.Max > limitPages {
			max := limitPages
			mt.Max = &max
		}
	}
}

// NewHostModuleBuilder implements Runtime.NewHostModuleBuilder.
func (r *wavmRuntime) NewHostModuleBuilder(moduleName string) HostModuleBuilder {
	return &hostModuleBuilder{r: r, moduleName: moduleName, funcs: map[string]*runtime.FunctionInstance{}}
}

// Module implements Runtime.Module.
func (r *wavmRuntime) Module(moduleName string) api.Module {
	mi, ok := r.instances[moduleName]
	if !ok {
		return nil
	}
	return &moduleAdapter{mi: mi, name: moduleName, rctx: r.contexts[moduleName]}
}

// InstantiateModule implements Runtime.InstantiateModule.
func (r *wavmRuntime) InstantiateModule(ctx context.Context, compiled CompiledModule, config *ModuleConfig) (api.Module, error) {
	cm := compiled.(*compiledModule)
	name := cm.name
	if config != nil && config.name != "" {
		name = config.name
	}

	var proc *wasi.Process
	if config != nil {
		proc = config.toProcess()
	}

	res := r.resolver(proc)
	rctx := r.compartment.NewContext()
	mi, err := runtime.Instantiate(ctx, r.compartment, rctx, cm.module, name, res)
	if err != nil {
		return nil, fmt.Errorf("wavm: instantiating %q: %w", name, err)
	}
	mi.AddRoot()

	if proc != nil {
		if mem, ok := mi.ExportedMemory("memory"); ok {
			proc.SetMemory(mem)
		}
	}

	r.instances[name] = mi
	r.contexts[name] = rctx

	if config != nil {
		for _, fname := range config.startFunctions {
			fn, ok := mi.ExportedFunction(fname)
			if !ok {
				continue
			}
			if _, err := fn.Call(ctx, rctx, nil); err != nil {
				return nil, translateExit(err)
			}
		}
	}

	return &moduleAdapter{mi: mi, name: name, rctx: rctx}, nil
}

// translateExit turns a wasi.ExitSignal propagated out of a start function
// into an *ExitError an embedder can type-switch on, leaving any other
// error (a trap) untouched.
func translateExit(err error) error {
	if sig, ok := err.(wasi.ExitSignal); ok {
		return &ExitError{ExitCode: sig.Code}
	}
	return err
}

// ExitError is returned from InstantiateModule or a Function.Call when the
// guest called wasi_snapshot_preview1's proc_exit.
type ExitError struct{ ExitCode uint32 }

func (e *ExitError) Error() string { return fmt.Sprintf("wavm: module exited with code %d", e.ExitCode) }

// Close implements Runtime.Close.
func (r *wavmRuntime) Close(context.Context) error {
	for _, mi := range r.instances {
		mi.RemoveRoot()
	}
	r.compartment.CollectGarbage()
	return nil
}

// resolver aggregates every registered host module, every previously
// instantiated module's exports, and wasi_snapshot_preview1's host
// functions (if proc is non-nil) into one runtime.Resolver for the next
// InstantiateModule call.
func (r *wavmRuntime) resolver(proc *wasi.Process) runtime.Resolver {
	var wasiFuncs map[string]*runtime.FunctionInstance
	if proc != nil {
		wasiFuncs = wasip1.Functions(proc)
	}
	return runtime.ResolverFunc(func(_ *wasm.Module, imp *wasm.Import) (runtime.ResolvedObject, bool) {
		if imp.Module == wasip1.ModuleName && wasiFuncs != nil {
			if fn, ok := wasiFuncs[imp.Name]; ok {
				return runtime.ResolvedObject{Kind: wasm.ExternTypeFunc, Func: fn}, true
			}
			return runtime.ResolvedObject{}, false
		}
		if fns, ok := r.hostModules[imp.Module]; ok {
			if fn, ok := fns[imp.Name]; ok {
				return runtime.ResolvedObject{Kind: wasm.ExternTypeFunc, Func: fn}, true
			}
			return runtime.ResolvedObject{}, false
		}
		if mi, ok := r.instances[imp.Module]; ok {
			return mi.ResolveExport(imp)
		}
		return runtime.ResolvedObject{}, false
	})
}
