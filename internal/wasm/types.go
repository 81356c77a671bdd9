package wasm

import (
	"bytes"
	"fmt"
)

// MemoryPageSize is the number of bytes in a WebAssembly page, per spec.md
// GLOSSARY "Page".
const MemoryPageSize = 65536

// MemoryMaxPages is the hard ceiling of addressable pages: 2^16 pages *
// 65536 bytes/page == 4 GiB, the largest offset an i32 address can reach.
const MemoryMaxPages = 65536

// ExternType classifies an Import or Export. Aliased from api so module.go
// can use either name; kept distinct here for readability in this package.
type ExternType = byte

const (
	ExternTypeFunc   ExternType = 0x00
	ExternTypeTable  ExternType = 0x01
	ExternTypeMemory ExternType = 0x02
	ExternTypeGlobal ExternType = 0x03
	// ExternTypeException is not in the upstream Wasm spec's extern type
	// space; it is used internally to tag exception-type imports/exports
	// (spec.md §3 "Runtime objects", ExceptionType) pending standardization.
	ExternTypeException ExternType = 0x04
)

// FunctionType is an immutable, interned function signature (spec.md §3
// "Function type"). Two FunctionTypes are equal iff both tuples are equal
// elementwise; Module interns them so indices are stable across encode and
// decode (spec.md §4.1 round-trip contract).
type FunctionType struct {
	Params, Results []ValueType

	// string is a cached, order-preserving signature string computed once
	// by key().
	string string
}

// key returns a value that is equal for two FunctionTypes iff they have
// identical Params and Results, suitable as a map key or for the
// call_indirect structural check (spec.md §4.6, §8 "Table type correctness").
func (t *FunctionType) key() string {
	if t.string == "" {
		b := make([]byte, 0, len(t.Params)+len(t.Results)+2)
		b = append(b, byte(len(t.Params)))
		b = append(b, t.Params...)
		b = append(b, byte(len(t.Results)))
		b = append(b, t.Results...)
		t.string = string(b)
	}
	return t.string
}

// EqualTo reports structural equality with other, per spec.md §3 "Function
// type" and the call_indirect check in §4.6.
func (t *FunctionType) EqualTo(other *FunctionType) bool {
	if t == other {
		return true
	}
	if other == nil {
		return false
	}
	return bytes.Equal(t.Params, other.Params) && bytes.Equal(t.Results, other.Results)
}

func (t *FunctionType) String() string {
	return fmt.Sprintf("(%s)->(%s)", valueTypesString(t.Params), valueTypesString(t.Results))
}

func valueTypesString(ts []ValueType) string {
	buf := make([]byte, 0, len(ts)*4)
	for i, t := range ts {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, ValueTypeName(t)...)
	}
	return string(buf)
}

// Limits is the min/max pair shared by MemoryType and TableType (spec.md §3
// Memory and Table "declared type").
type Limits struct {
	Min uint32
	Max *uint32 // nil means unbounded (up to the implementation cap).
}

// MemoryType is the declared shape of a Memory: min/max measured in pages.
type MemoryType struct {
	Limits
	// Shared marks a memory usable by multiple threads with shared-memory
	// atomics (spec.md §6 feature "shared tables" and Non-goal boundary on
	// threading primitives; memory sharing across compartments remains
	// forbidden per spec.md §3 "Ownership").
	Shared bool
}

// TableType is the declared shape of a Table: element type plus min/max
// element counts (spec.md §3 Table "declared type").
type TableType struct {
	Limits
	ElemType ValueType // ValueTypeFuncref or ValueTypeExternref.
}

// GlobalType is the declared shape of a Global: value type plus mutability
// (spec.md §3 Global, §4.7).
type GlobalType struct {
	ValType ValueType
	Mutable bool
}

// ExceptionType is the declared shape of a user exception (spec.md §3
// Runtime objects "ExceptionType", §4.12 "user exception types").
type ExceptionType struct {
	// Params is the ordered tuple of values an instance of this exception
	// carries, mirroring FunctionType.Results in shape.
	Params []ValueType
	// DebugName is optional, used only in diagnostics.
	DebugName string
}

// ImportKind mirrors ExternType but is named distinctly in Import/Export so
// call sites read "import kind" rather than overloading "extern type".
type ImportKind = ExternType

// Import is one row of the import section (spec.md §3 Module IR
// "import descriptors").
type Import struct {
	Module, Name string
	Kind         ImportKind

	// Exactly one of the following is meaningful, selected by Kind. They
	// are indices, not pointers, so Import stays a plain, comparable value
	// and so the binary codec can round-trip it byte-for-byte.
	DescFunc      uint32 // index into Module.TypeSection
	DescTable     TableType
	DescMem       MemoryType
	DescGlobal    GlobalType
	DescException uint32 // index into Module.ExceptionTypeSection
}

// Export is one row of the export section (spec.md §3 Module IR "exports").
type Export struct {
	Name  string
	Kind  ExternType
	Index uint32
}

// ConstantExpressionKind identifies which of the four shapes in spec.md §3
// "Initializer expression" a ConstantExpression holds.
type ConstantExpressionKind byte

const (
	ConstantExpressionKindLiteral ConstantExpressionKind = iota
	ConstantExpressionKindGlobalGet
	ConstantExpressionKindRefNull
	ConstantExpressionKindRefFunc
)

// ConstantExpression is spec.md §3's "Initializer expression": a literal of
// a declared type, a read of an immutable imported global, ref.null, or
// ref.func. It is always exactly one operator followed by `end` in the
// binary format (binary/const_expr.go); the decoded Kind+operand pair is
// all the runtime needs to evaluate it (runtime/compartment.go
// evaluateConstantExpression).
type ConstantExpression struct {
	Kind ValueType // the pushed ValueType, needed before Data/GlobalIndex/FuncIndex is resolved
	Data []byte    // raw immediate bytes as they appeared in the binary, LEB128/float-encoded per Kind

	// ExprKind disambiguates which of the four opcode shapes produced this
	// expression: Kind alone can't (a global.get of an i32 global and an
	// i32.const both report Kind==ValueTypeI32).
	ExprKind ConstantExpressionKind
}

// DataSegmentMode distinguishes active, passive and (there is no "declared"
// variant for data segments — spec.md §3 only lists active|passive for
// data, active|passive|declared for elements).
type DataSegmentMode byte

const (
	DataSegmentModeActive DataSegmentMode = iota
	DataSegmentModePassive
)

// DataSegment is one row of the data section (spec.md §3 Module IR
// "data segments").
type DataSegment struct {
	Mode        DataSegmentMode
	MemoryIndex uint32
	OffsetExpr  ConstantExpression
	Init        []byte
}

// ElementSegmentMode distinguishes the three element segment shapes in
// spec.md §3 Module IR "element segments".
type ElementSegmentMode byte

const (
	ElementSegmentModeActive ElementSegmentMode = iota
	ElementSegmentModePassive
	ElementSegmentModeDeclared
)

// ElementInit is one entry of an element segment: either a literal function
// index (the common case) or a full constant expression (ref.func/ref.null),
// per the Wasm 2.0 binary format's expression-initialized element segments.
type ElementInit struct {
	// IsExpr distinguishes a raw function-index encoding from a full
	// ConstantExpression encoding; both appear in the element section
	// binary layout depending on which of the six element segment flag
	// bits (binary/element.go) was set.
	IsExpr   bool
	FuncIdx  uint32
	RefNull  bool
	ExprData []byte
}

// ElementSegment is one row of the element section (spec.md §3 Module IR
// "element segments").
type ElementSegment struct {
	Mode       ElementSegmentMode
	TableIndex uint32
	OffsetExpr ConstantExpression
	ElemType   ValueType
	Init       []ElementInit
}

// NameSection holds the optional debug-names metadata (spec.md §3 Module IR
// "debug/name metadata"; spec.md §6 "extended names section" feature).
type NameSection struct {
	ModuleName    string
	FunctionNames NameMap
	LocalNames    IndirectNameMap
}

type NameAssoc struct {
	Index uint32
	Name  string
}

type NameMap []NameAssoc

type NameMapAssoc struct {
	Index   uint32
	NameMap NameMap
}

type IndirectNameMap []NameMapAssoc

// CustomSection is an opaque user section retained byte-for-byte (spec.md
// §3 Module IR "opaque user sections"; §4.1 "Unknown user sections are
// preserved as (name, bytes)").
type CustomSection struct {
	Name string
	Data []byte
}
