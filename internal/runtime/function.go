package runtime

import (
	stdcontext "context"

	"github.com/wavmgo/wavm/internal/engine/interpreter"
	"github.com/wavmgo/wavm/internal/trap"
	wasm "github.com/wavmgo/wavm/internal/wasm"
)

// HostFunction is a host-implemented function bound to an import (spec.md
// §4.10's syscall surface, and any embedder-supplied HostModuleBuilder
// function, are both HostFunctions under the hood).
type HostFunction func(ctx stdcontext.Context, params []uint64) ([]uint64, error)

// FunctionInstance is a Function object (spec.md §4.4 object table): either
// a host function or one of a ModuleInstance's defined functions, callable
// uniformly through Call.
type FunctionInstance struct {
	object

	Type *wasm.FunctionType

	// Name is this function's export name, if any, set once its owning
	// module's export section is processed; empty for a function never
	// exported under any name. Diagnostic only -- dbgtrace.FuncName
	// falls back to a synthetic "$idx" name when this is empty.
	Name string

	host HostFunction // non-nil for an imported host function

	instance       *ModuleInstance     // non-nil for a module-defined function
	instrs         []wasm.Instruction  // decoded body, meaningful iff instance != nil
	declaredLocals []wasm.ValueType    // locals beyond the parameters, in declared order
}

// NewHostFunction wraps fn as a callable Function object of the given type.
func NewHostFunction(typ *wasm.FunctionType, fn HostFunction) *FunctionInstance {
	f := &FunctionInstance{Type: typ, host: fn}
	f.object = object{kind: KindFunction}
	return f
}

// newDefinedFunction wraps one of instance's locally defined functions.
func newDefinedFunction(instance *ModuleInstance, typ *wasm.FunctionType, instrs []wasm.Instruction, locals []wasm.ValueType) *FunctionInstance {
	f := &FunctionInstance{Type: typ, instance: instance, instrs: instrs, declaredLocals: locals}
	f.object = object{kind: KindFunction}
	return f
}

// Call invokes the function with params already in Wasm value-type-agnostic
// uint64 form, returning its results the same way. rctx supplies the
// calling thread's mutable-global view for a defined function; it is
// ignored for a host function, which reaches module state (if any) through
// the *ModuleInstance bound into its closure at registration time.
func (f *FunctionInstance) Call(ctx stdcontext.Context, rctx *Context, params []uint64) (results []uint64, err error) {
	moduleName := ""
	if f.instance != nil {
		moduleName = f.instance.Name
	}
	if rctx != nil {
		rctx.pushFrame(moduleName, f.Name)
		defer rctx.popFrame()
	}
	framesFn := func() []trap.Frame { return nil }
	if rctx != nil {
		framesFn = rctx.snapshotFrames
	}

	if f.host != nil {
		// A host function (e.g. a stub resolver's trap-on-call body) may
		// panic via trap.New; Run has its own Boundary for defined
		// functions, so mirror it here rather than letting the panic
		// escape an ordinary Go call.
		defer trap.Boundary(&err, framesFn)
		return f.host(ctx, params)
	}
	locals := make([]uint64, len(params)+len(f.declaredLocals))
	copy(locals, params)
	host := hostView{instance: f.instance, ctx: rctx, goCtx: ctx}
	return interpreter.Run(f.instrs, locals, f.Type.Results, host)
}
