// Package runtime is the object graph a validated wasm.Module is
// instantiated into: compartments, contexts, module instances, memories,
// tables, globals and exception types (spec.md §4.4-§4.9, components
// G-K), plus the linker (§4.8) and mark-sweep reclamation (§4.9). It
// implements internal/engine/interpreter.Host, so the reference
// interpreter can call back into live memories/tables/globals/functions
// without importing this package.
package runtime

import "sync/atomic"

// Kind tags which concrete object a handle refers to, re-expressing the
// teacher's virtual-inheritance Object hierarchy (spec.md §9 "Virtual
// inheritance with a kind tag") as a closed sum type: downcasts only
// happen in the arena lookups below, which already branch on Kind via Go's
// type system instead of a runtime tag comparison.
type Kind int

const (
	KindFunction Kind = iota
	KindTable
	KindMemory
	KindGlobal
	KindExceptionType
	KindModuleInstance
	KindContext
	KindCompartment
)

// object is the shared header every guest-reachable object embeds: its
// kind, the compartment that owns it, and a root reference count
// reclamation consults (spec.md §4.9 "Every guest-reachable object carries
// num_root_references: atomic<usize>").
type object struct {
	kind          Kind
	compartmentID uint64
	rootCount     int64
}

// addRoot/removeRoot adjust the object's root count; reclamation's initial
// root set is every object whose count is > 0 (gc.go).
func (o *object) addRoot()    { atomic.AddInt64(&o.rootCount, 1) }
func (o *object) removeRoot() { atomic.AddInt64(&o.rootCount, -1) }
func (o *object) roots() int64 {
	return atomic.LoadInt64(&o.rootCount)
}

// Handle is the (compartment_id, object_id) pair spec.md §9 calls for in
// place of raw pointer cross-references: "Replace with (compartment_id,
// object_id) handles stored in indexed arenas per compartment". Every
// externally supplied object is checked against CompartmentID before use
// (spec.md §8 "Compartment isolation").
type Handle struct {
	CompartmentID uint64
	ID            uint32
}
