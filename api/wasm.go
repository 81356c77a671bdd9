// Package api includes constants and interfaces used by both end-users and
// internal implementations (spec.md §3/§4.4's Function/Global/Memory object
// kinds, surfaced here for embedders instead of internal/runtime directly).
package api

import (
	"context"
	"fmt"
	"math"
)

// ExternType classifies imports and exports with their respective types.
type ExternType = byte

const (
	ExternTypeFunc   ExternType = 0x00
	ExternTypeTable  ExternType = 0x01
	ExternTypeMemory ExternType = 0x02
	ExternTypeGlobal ExternType = 0x03
)

const (
	ExternTypeFuncName   = "func"
	ExternTypeTableName  = "table"
	ExternTypeMemoryName = "memory"
	ExternTypeGlobalName = "global"
)

// ExternTypeName returns the Text Format field name of the given type.
func ExternTypeName(et ExternType) string {
	switch et {
	case ExternTypeFunc:
		return ExternTypeFuncName
	case ExternTypeTable:
		return ExternTypeTableName
	case ExternTypeMemory:
		return ExternTypeMemoryName
	case ExternTypeGlobal:
		return ExternTypeGlobalName
	}
	return fmt.Sprintf("%#x", et)
}

// ValueType describes a numeric type used in WebAssembly. Function parameters
// and results are only definable as a value type.
//
//   - ValueTypeI32 - uint64(uint32,int32)
//   - ValueTypeI64 - uint64(int64)
//   - ValueTypeF32 - EncodeF32/DecodeF32 from float32
//   - ValueTypeF64 - EncodeF64/DecodeF64 from float64
type ValueType = byte

const (
	ValueTypeI32 ValueType = 0x7f
	ValueTypeI64 ValueType = 0x7e
	ValueTypeF32 ValueType = 0x7d
	ValueTypeF64 ValueType = 0x7c
	// ValueTypeFuncref is a biased function-table reference (internal/runtime
	// Table), opaque to a Go embedder beyond passing it through.
	ValueTypeFuncref ValueType = 0x70
	// ValueTypeExternref is an opaque host reference, carried as a raw
	// uint64 on the value stack.
	ValueTypeExternref ValueType = 0x6f
)

// ValueTypeName returns the Text Format name of t, or "unknown".
func ValueTypeName(t ValueType) string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	case ValueTypeFuncref:
		return "funcref"
	case ValueTypeExternref:
		return "externref"
	}
	return "unknown"
}

// Closer closes a resource. When ctx is nil, it defaults to
// context.Background.
type Closer interface {
	Close(ctx context.Context) error
}

// Module is an instantiated module (wavm.Runtime.InstantiateModule), giving
// an embedder access to its exports.
type Module interface {
	fmt.Stringer

	// Name is the name this module was instantiated with.
	Name() string

	// Memory returns the module's first exported memory, or nil.
	Memory() Memory

	// ExportedFunction returns a function exported under name, or nil.
	ExportedFunction(name string) Function

	// ExportedMemory returns a memory exported under name, or nil.
	ExportedMemory(name string) Memory

	// ExportedGlobal returns a global exported under name, or nil.
	ExportedGlobal(name string) Global

	// CloseWithExitCode releases this module's resources, causing any
	// in-flight or future calls on its exported functions to fail with a
	// sys.ExitError carrying exitCode.
	CloseWithExitCode(ctx context.Context, exitCode uint32) error

	Closer
}

// Function is an exported WebAssembly function.
type Function interface {
	// ParamTypes are the value types this function accepts, in order.
	ParamTypes() []ValueType
	// ResultTypes are the value types this function returns, in order.
	ResultTypes() []ValueType

	// Call invokes the function. Params and the returned results are encoded
	// per ParamTypes/ResultTypes; see ValueType for the Go<->Wasm mapping.
	Call(ctx context.Context, params ...uint64) ([]uint64, error)
}

// Global is an exported WebAssembly global.
type Global interface {
	fmt.Stringer

	// Type is this global's numeric type.
	Type() ValueType

	// Get returns the global's current value.
	Get(ctx context.Context) uint64
}

// MutableGlobal is a Global declared mutable in its defining module.
type MutableGlobal interface {
	Global

	// Set updates the global's value.
	Set(ctx context.Context, v uint64)
}

// Memory allows restricted access to a module's linear memory.
//
// Read returns a copy, not a view into the independent mmap reservation that
// internal/runtime's Memory backs each instance with.
type Memory interface {
	// Size returns the memory's current size in bytes.
	Size(ctx context.Context) uint32

	// Grow increases memory by deltaPages (65536 bytes each), returning the
	// previous size in pages, or false if the delta would exceed the
	// memory's max.
	Grow(ctx context.Context, deltaPages uint32) (previousPages uint32, ok bool)

	// Read copies byteCount bytes from offset, or returns false if any part
	// of the range is out of bounds.
	Read(ctx context.Context, offset, byteCount uint32) ([]byte, bool)

	// Write writes v at offset, or returns false if any part of the range is
	// out of bounds.
	Write(ctx context.Context, offset uint32, v []byte) bool

	// ReadUint32Le reads a little-endian uint32 at offset.
	ReadUint32Le(ctx context.Context, offset uint32) (uint32, bool)
	// WriteUint32Le writes v little-endian at offset.
	WriteUint32Le(ctx context.Context, offset, v uint32) bool
}

// EncodeI32 encodes the input as a ValueTypeI32.
func EncodeI32(input int32) uint64 { return uint64(uint32(input)) }

// EncodeI64 encodes the input as a ValueTypeI64.
func EncodeI64(input int64) uint64 { return uint64(input) }

// EncodeF32 encodes the input as a ValueTypeF32.
func EncodeF32(input float32) uint64 { return uint64(math.Float32bits(input)) }

// DecodeF32 decodes the input as a ValueTypeF32.
func DecodeF32(input uint64) float32 { return math.Float32frombits(uint32(input)) }

// EncodeF64 encodes the input as a ValueTypeF64.
func EncodeF64(input float64) uint64 { return math.Float64bits(input) }

// DecodeF64 decodes the input as a ValueTypeF64.
func DecodeF64(input uint64) float64 { return math.Float64frombits(input) }

// EncodeExternref encodes a host pointer as a ValueTypeExternref.
func EncodeExternref(input uintptr) uint64 { return uint64(input) }

// DecodeExternref decodes a ValueTypeExternref back to a host pointer.
func DecodeExternref(input uint64) uintptr { return uintptr(input) }
