package runtime

import (
	"sync"

	"github.com/wavmgo/wavm/internal/platform"
	wasm "github.com/wavmgo/wavm/internal/wasm"
)

// memoryReservationSize is the 8 GiB per-memory virtual address reservation
// of spec.md §4.5: large enough that generated code could elide bounds
// checks on any i32 address plus a <=4 GiB static offset, with everything
// past the committed prefix left unmapped as the guard region.
const memoryReservationSize = 8 << 30

// Memory is a linear memory instance (spec.md §4.5). It satisfies
// interpreter.Memory directly, so the reference engine operates on it with
// no adapter.
type Memory struct {
	object

	typ wasm.MemoryType

	// resizeMu is the "resizing mutex" of spec.md §5, held during grow;
	// reads/writes are lock-free against concurrent non-resizing access.
	resizeMu sync.Mutex

	reservation    []byte
	committedPages uint32
}

// NewMemory reserves memoryReservationSize bytes of address space and
// commits typ.Min pages, registering the result in c.
func NewMemory(c *Compartment, typ wasm.MemoryType) (*Memory, error) {
	reservation, err := platform.MmapReservation(memoryReservationSize)
	if err != nil {
		return nil, err
	}
	m := &Memory{typ: typ, reservation: reservation}
	m.object = object{kind: KindMemory}
	if typ.Min > 0 {
		if err := platform.MprotectReadWrite(reservation[:uint64(typ.Min)*wasm.MemoryPageSize]); err != nil {
			_ = platform.MunmapReservation(reservation)
			return nil, err
		}
		m.committedPages = typ.Min
	}
	c.addMemory(m)
	return m, nil
}

// Size returns the current page count.
func (m *Memory) Size() uint32 { return m.committedPages }

// Grow commits delta additional pages, returning the previous page count.
// It fails (returns ok=false) without mutating anything if the result
// would exceed the declared max, the 4 GiB implementation cap, or the OS
// refuses the commit (spec.md §4.5, §8 "Grow idempotence":
// memory.grow(0) returns the current count and modifies nothing).
func (m *Memory) Grow(delta uint32) (previous uint32, ok bool) {
	m.resizeMu.Lock()
	defer m.resizeMu.Unlock()
	previous = m.committedPages
	if delta == 0 {
		return previous, true
	}
	newPages := uint64(previous) + uint64(delta)
	if newPages > wasm.MemoryMaxPages {
		return previous, false
	}
	if m.typ.Max != nil && newPages > uint64(*m.typ.Max) {
		return previous, false
	}
	if newPages*wasm.MemoryPageSize > uint64(len(m.reservation)) {
		return previous, false
	}
	lo := uint64(previous) * wasm.MemoryPageSize
	hi := newPages * wasm.MemoryPageSize
	if err := platform.MprotectReadWrite(m.reservation[lo:hi]); err != nil {
		return previous, false
	}
	m.committedPages = uint32(newPages)
	return previous, true
}

func (m *Memory) byteLen() uint64 { return uint64(m.committedPages) * wasm.MemoryPageSize }

// Read returns the n bytes at offset, or ok=false if any byte is out of
// the committed range.
func (m *Memory) Read(offset, n uint32) ([]byte, bool) {
	if uint64(offset)+uint64(n) > m.byteLen() {
		return nil, false
	}
	out := make([]byte, n)
	copy(out, m.reservation[offset:uint64(offset)+uint64(n)])
	return out, true
}

// Write copies data to offset, or returns false without writing anything
// if any byte would land out of the committed range.
func (m *Memory) Write(offset uint32, data []byte) bool {
	if uint64(offset)+uint64(len(data)) > m.byteLen() {
		return false
	}
	copy(m.reservation[offset:], data)
	return true
}

// Bytes returns the live, committed portion of the memory for callers
// (e.g. an active data segment copy during instantiation) that need direct
// access rather than a defensive copy.
func (m *Memory) Bytes() []byte { return m.reservation[:m.byteLen()] }
