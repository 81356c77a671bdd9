package runtime

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/wavmgo/wavm/internal/leb128"
	wasm "github.com/wavmgo/wavm/internal/wasm"
)

var nextCompartmentID uint64

// Compartment is the unit of isolation (spec.md §4.4): every object a
// guest can reach lives in exactly one compartment, and a handle minted in
// one compartment is rejected by any operation on another (spec.md §8
// "Compartment isolation"). Unlike the teacher's runtime-data region (a
// real 4 GiB-aligned VA block generated machine code recovers a
// compartment pointer from by masking), this implementation has no
// machine-code backend to serve (spec.md §1 keeps that external) so the
// arenas below are ordinary Go maps guarded by Mu rather than a literal
// memory-mapped region; the isolation and lifecycle invariants are
// unchanged.
type Compartment struct {
	object

	id uint64
	// Mu guards every id-map below: creation, destruction and
	// resize-index-update (spec.md §5 "Every compartment has one mutex
	// guarding its id maps"). It must never be held across a call into
	// guest code (spec.md §5 "Deadlock discipline").
	Mu sync.Mutex

	memories   map[uint32]*Memory
	tables     map[uint32]*Table
	globals    map[uint32]*Global
	excTypes   map[uint32]*ExceptionTypeInstance
	contexts   map[uint32]*Context
	instances  map[uint32]*ModuleInstance
	nextMemID, nextTableID, nextGlobalID, nextExcID, nextCtxID, nextInstID uint32
}

// NewCompartment allocates a fresh, empty compartment with a
// process-unique id.
func NewCompartment() *Compartment {
	c := &Compartment{
		id:        atomic.AddUint64(&nextCompartmentID, 1),
		memories:  map[uint32]*Memory{},
		tables:    map[uint32]*Table{},
		globals:   map[uint32]*Global{},
		excTypes:  map[uint32]*ExceptionTypeInstance{},
		contexts:  map[uint32]*Context{},
		instances: map[uint32]*ModuleInstance{},
	}
	c.object = object{kind: KindCompartment, compartmentID: c.id}
	return c
}

// ID is the compartment's process-unique identity, the first half of
// every Handle minted from it.
func (c *Compartment) ID() uint64 { return c.id }

// checkHandle is spec.md §8's "Compartment isolation" invariant, enforced
// on every externally supplied object: a handle produced in compartment A
// is never accepted by an operation targeting compartment B.
func (c *Compartment) checkHandle(h Handle) error {
	if h.CompartmentID != c.id {
		return fmt.Errorf("runtime: handle from compartment %d used against compartment %d", h.CompartmentID, c.id)
	}
	return nil
}

func (c *Compartment) addMemory(m *Memory) Handle {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	id := c.nextMemID
	c.nextMemID++
	m.compartmentID = c.id
	c.memories[id] = m
	return Handle{CompartmentID: c.id, ID: id}
}

func (c *Compartment) addTable(t *Table) Handle {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	id := c.nextTableID
	c.nextTableID++
	t.compartmentID = c.id
	c.tables[id] = t
	return Handle{CompartmentID: c.id, ID: id}
}

func (c *Compartment) addGlobal(g *Global) Handle {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	id := c.nextGlobalID
	c.nextGlobalID++
	g.compartmentID = c.id
	c.globals[id] = g
	return Handle{CompartmentID: c.id, ID: id}
}

func (c *Compartment) addExceptionType(e *ExceptionTypeInstance) Handle {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	id := c.nextExcID
	c.nextExcID++
	e.compartmentID = c.id
	c.excTypes[id] = e
	return Handle{CompartmentID: c.id, ID: id}
}

// NewContext creates a context within c: a single execution thread's view,
// holding its own mutable-global slot array seeded from every global's
// current value (spec.md §4.4 "A context ... holds a pointer into its slot
// of the runtime-data region").
func (c *Compartment) NewContext() *Context {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	id := c.nextCtxID
	c.nextCtxID++
	ctx := &Context{compartment: c, id: id}
	ctx.object = object{kind: KindContext, compartmentID: c.id}
	for globID, g := range c.globals {
		if g.Type.Mutable {
			ctx.mutableSlots = growSlots(ctx.mutableSlots, globID)
			ctx.mutableSlots[globID] = g.initialValue
		}
	}
	c.contexts[id] = ctx
	return ctx
}

func growSlots(s []uint64, idx uint32) []uint64 {
	if idx < uint32(len(s)) {
		return s
	}
	grown := make([]uint64, idx+1)
	copy(grown, s)
	return grown
}

// evaluateConstantExpression computes the uint64 runtime value of ce
// (spec.md §3 "Initializer expression", §4.4 step 4): importedGlobals is
// the instantiating module's already-resolved imported globals, since a
// global.get operand may only name an immutable import.
func evaluateConstantExpression(ce wasm.ConstantExpression, importedGlobals []*Global) (uint64, error) {
	switch ce.ExprKind {
	case wasm.ConstantExpressionKindLiteral:
		switch ce.Kind {
		case wasm.ValueTypeI32:
			v, _, err := leb128.LoadInt32(ce.Data)
			return uint64(uint32(v)), err
		case wasm.ValueTypeI64:
			v, _, err := leb128.LoadInt64(ce.Data)
			return uint64(v), err
		case wasm.ValueTypeF32:
			return uint64(binary.LittleEndian.Uint32(ce.Data)), nil
		case wasm.ValueTypeF64:
			return binary.LittleEndian.Uint64(ce.Data), nil
		}
		return 0, fmt.Errorf("runtime: unsupported literal constant expression type %#x", ce.Kind)
	case wasm.ConstantExpressionKindGlobalGet:
		idx, _, err := leb128.LoadUint32(ce.Data)
		if err != nil {
			return 0, err
		}
		if idx >= uint32(len(importedGlobals)) {
			return 0, fmt.Errorf("runtime: constant expression references out-of-range imported global %d", idx)
		}
		return importedGlobals[idx].Get(nil), nil
	case wasm.ConstantExpressionKindRefNull:
		return 0, nil
	case wasm.ConstantExpressionKindRefFunc:
		idx, _, err := leb128.LoadUint32(ce.Data)
		if err != nil {
			return 0, err
		}
		return uint64(idx) + 1, nil
	}
	return 0, fmt.Errorf("runtime: unknown constant expression kind %d", ce.ExprKind)
}

// registerInstance records m under a fresh id, returning its Handle.
func (c *Compartment) registerInstance(m *ModuleInstance) Handle {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	id := c.nextInstID
	c.nextInstID++
	m.compartmentID = c.id
	c.instances[id] = m
	return Handle{CompartmentID: c.id, ID: id}
}
