package runtime

import wasm "github.com/wavmgo/wavm/internal/wasm"

// Global is a Global instance (spec.md §4.7). An immutable global's value
// never changes after instantiation, so it is stored inline; a mutable
// global instead reserves a slot index, and its live value lives in every
// Context's private mutableSlots array at that index (one copy per
// execution thread, no locking on a per-access basis).
type Global struct {
	object

	id   uint32
	Type wasm.GlobalType

	// initialValue seeds every Context's slot at creation time (mutable
	// globals) or is the permanent value (immutable globals).
	initialValue uint64
}

// NewGlobal allocates a global of typ with the given initial value,
// registering it in c.
func NewGlobal(c *Compartment, typ wasm.GlobalType, initial uint64) *Global {
	g := &Global{Type: typ, initialValue: initial}
	g.object = object{kind: KindGlobal}
	h := c.addGlobal(g)
	g.id = h.ID
	return g
}

// Get reads the global's current value. For a mutable global this reads
// ctx's private slot; ctx is ignored for an immutable global.
func (g *Global) Get(ctx *Context) uint64 {
	if !g.Type.Mutable {
		return g.initialValue
	}
	if g.id < uint32(len(ctx.mutableSlots)) {
		return ctx.mutableSlots[g.id]
	}
	return g.initialValue
}

// Set writes v to the global's slot in ctx. It panics if called on an
// immutable global: the validator rejects a global.set of one, so this
// should be unreachable at runtime.
func (g *Global) Set(ctx *Context, v uint64) {
	if !g.Type.Mutable {
		panic("BUG: global.set on an immutable global")
	}
	ctx.mutableSlots = growSlots(ctx.mutableSlots, g.id)
	ctx.mutableSlots[g.id] = v
}
