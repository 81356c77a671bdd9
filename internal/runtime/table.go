package runtime

import (
	"sync"

	wasm "github.com/wavmgo/wavm/internal/wasm"
)

// Table is a Table instance (spec.md §4.6). Elements are stored as biased
// references: a funcref element holds funcIdx+1, with 0 reserved as the
// null/uninitialized sentinel, so the zero value of elems naturally means
// "every slot null" after grow or instantiation.
type Table struct {
	object

	typ wasm.TableType

	resizeMu sync.Mutex
	elems    []uint64

	// funcTypeIndex resolves a module-local function index (recovered by
	// unbiasing an elems entry) to its declared type index, letting
	// call_indirect validate a table element's signature without the
	// table itself knowing about ModuleInstance.
	funcTypeIndex func(funcIdx uint32) (uint32, bool)
}

// NewTable allocates a table of typ.Min null elements, registering it in c.
// resolveFuncType is nil for an externref table (FuncTypeIndex then always
// reports not-ok).
func NewTable(c *Compartment, typ wasm.TableType, resolveFuncType func(funcIdx uint32) (uint32, bool)) *Table {
	t := &Table{typ: typ, elems: make([]uint64, typ.Min), funcTypeIndex: resolveFuncType}
	t.object = object{kind: KindTable}
	c.addTable(t)
	return t
}

// Size returns the current element count.
func (t *Table) Size() uint32 { return uint32(len(t.elems)) }

// Grow appends delta elements initialized to init, returning the previous
// size. It fails without mutating the table if the result would exceed the
// declared max.
func (t *Table) Grow(delta uint32, init uint64) (previous uint32, ok bool) {
	t.resizeMu.Lock()
	defer t.resizeMu.Unlock()
	previous = uint32(len(t.elems))
	if delta == 0 {
		return previous, true
	}
	newSize := uint64(previous) + uint64(delta)
	if t.typ.Max != nil && newSize > uint64(*t.typ.Max) {
		return previous, false
	}
	grown := make([]uint64, newSize)
	copy(grown, t.elems)
	for i := previous; uint64(i) < newSize; i++ {
		grown[i] = init
	}
	t.elems = grown
	return previous, true
}

// Get returns the biased reference at idx.
func (t *Table) Get(idx uint32) (ref uint64, ok bool) {
	if idx >= uint32(len(t.elems)) {
		return 0, false
	}
	return t.elems[idx], true
}

// Set stores a biased reference at idx.
func (t *Table) Set(idx uint32, ref uint64) bool {
	if idx >= uint32(len(t.elems)) {
		return false
	}
	t.elems[idx] = ref
	return true
}

// FuncTypeIndex resolves the declared type index of the function referenced
// by the element at idx, for call_indirect's signature check (spec.md §4.6
// "Host functions require signature-checked wrapping").
func (t *Table) FuncTypeIndex(idx uint32) (typeIdx uint32, ok bool) {
	if t.funcTypeIndex == nil {
		return 0, false
	}
	ref, ok := t.Get(idx)
	if !ok || ref == 0 {
		return 0, false
	}
	return t.funcTypeIndex(uint32(ref - 1))
}
