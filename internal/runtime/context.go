package runtime

import "github.com/wavmgo/wavm/internal/trap"

// Context is one execution thread's view into a Compartment (spec.md
// §4.4): it owns the mutable-global slot array a ModuleInstance's globals
// index into, so two contexts in the same compartment see independent
// mutable-global state without per-access locking (spec.md §4.7).
//
// The teacher's context is a page-aligned block inside the compartment's
// runtime-data region that generated code reaches by pointer arithmetic;
// since this repo's only Codegen is the tree-walking interpreter (no
// machine code ever dereferences a context pointer directly), Context is
// an ordinary Go value holding its slot array, not a raw memory region.
type Context struct {
	object

	compartment *Compartment
	id          uint32

	// mutableSlots is indexed by the owning compartment's per-compartment
	// global id (Handle.ID for a *Global), holding this context's private
	// copy of every mutable global's current value.
	mutableSlots []uint64

	// frames is the live guest call stack, innermost last, pushed and
	// popped around every FunctionInstance.Call made through this
	// Context. Snapshotted into a trap's Frames at the trap.Boundary that
	// recovers it.
	frames []trap.Frame
}

// pushFrame records moduleName/funcName as the innermost active call.
func (ctx *Context) pushFrame(moduleName, funcName string) {
	ctx.frames = append(ctx.frames, trap.Frame{ModuleName: moduleName, FuncName: funcName})
}

// popFrame removes the innermost active call, pushed by pushFrame.
func (ctx *Context) popFrame() {
	ctx.frames = ctx.frames[:len(ctx.frames)-1]
}

// snapshotFrames returns the current call stack innermost-first, the order
// trap.Trap.Frames and dbgtrace.Builder both expect.
func (ctx *Context) snapshotFrames() []trap.Frame {
	out := make([]trap.Frame, len(ctx.frames))
	for i, f := range ctx.frames {
		out[len(ctx.frames)-1-i] = f
	}
	return out
}

// Compartment returns the owning compartment.
func (ctx *Context) Compartment() *Compartment { return ctx.compartment }

// Clone deep-copies ctx's mutable-global state into a fresh context in the
// same compartment (spec.md §4.4 "Contexts are created within a
// compartment and may be cloned together with their compartment (deep
// clone of mutable-global state)").
func (ctx *Context) Clone() *Context {
	ctx.compartment.Mu.Lock()
	defer ctx.compartment.Mu.Unlock()
	clone := &Context{compartment: ctx.compartment, id: ctx.compartment.nextCtxID}
	clone.object = object{kind: KindContext, compartmentID: ctx.compartment.id}
	clone.mutableSlots = append([]uint64(nil), ctx.mutableSlots...)
	ctx.compartment.nextCtxID++
	ctx.compartment.contexts[clone.id] = clone
	return clone
}
