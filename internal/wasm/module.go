package wasm

import "fmt"

// Module is the immutable Module IR described in spec.md §3: decoded types,
// imports, definitions, segments, exports and metadata. A *Module produced
// by binary.DecodeModule or assembled programmatically is validated once
// (Validate) before it is ever handed to a Codegen (spec.md §4.2, §8
// "No execution of invalid code").
type Module struct {
	TypeSection           []*FunctionType
	ImportSection         []*Import
	FunctionSection       []uint32 // type index per defined function, parallel to CodeSection
	TableSection          []*TableType
	MemorySection         []*MemoryType
	GlobalSection         []*Global
	ExceptionTypeSection  []*ExceptionType
	ExportSection         []*Export
	StartSection          *uint32
	ElementSection        []*ElementSegment
	CodeSection           []*Code
	DataSection           []*DataSegment
	DataCountSection      *uint32
	NameSection           *NameSection
	CustomSections        []*CustomSection

	// counts of each imported kind, cached so index-space arithmetic
	// (spec.md §3 invariant "imports occupy [0, num_imports)") doesn't
	// re-scan ImportSection on every lookup.
	importFuncCount, importTableCount, importMemoryCount, importGlobalCount, importExceptionCount uint32
}

// Global is a module-defined (non-imported) global: its declared type plus
// initializer expression (spec.md §3 Runtime objects "Global";
// §4.4 step 4 "Evaluate each global's initializer").
type Global struct {
	Type GlobalType
	Init ConstantExpression
}

// Code is one function body: its locals (run-length grouped as declared in
// the binary format) and raw instruction bytes, decoded lazily into
// Instruction IR by the validator (spec.md §4.2) and handed whole to
// Codegen (spec.md §4.3).
type Code struct {
	LocalTypes []ValueType // expanded, one entry per local (not run-length grouped)
	Body       []byte      // raw opcode stream after the local declarations, including the terminal `end`
}

// FunctionIndexSpace returns the total number of functions addressable by
// index, imports first: spec.md §3 invariant "every import precedes any
// definition of the same kind when indices are assigned".
func (m *Module) FunctionIndexSpace() uint32 {
	return m.importFuncCount + uint32(len(m.FunctionSection))
}

func (m *Module) TableIndexSpace() uint32 {
	return m.importTableCount + uint32(len(m.TableSection))
}

func (m *Module) MemoryIndexSpace() uint32 {
	return m.importMemoryCount + uint32(len(m.MemorySection))
}

func (m *Module) GlobalIndexSpace() uint32 {
	return m.importGlobalCount + uint32(len(m.GlobalSection))
}

func (m *Module) ExceptionTypeIndexSpace() uint32 {
	return m.importExceptionCount + uint32(len(m.ExceptionTypeSection))
}

// IsImportedFunction reports whether idx names an imported function, and if
// so its Import. Indices [0, importFuncCount) are imports by invariant.
func (m *Module) IsImportedFunction(idx uint32) (imp *Import, ok bool) {
	if idx >= m.importFuncCount {
		return nil, false
	}
	n := uint32(0)
	for _, i := range m.ImportSection {
		if i.Kind != ExternTypeFunc {
			continue
		}
		if n == idx {
			return i, true
		}
		n++
	}
	return nil, false
}

// TypeOfFunction resolves idx (imports-first function index space) to its
// *FunctionType.
func (m *Module) TypeOfFunction(idx uint32) (*FunctionType, error) {
	if imp, ok := m.IsImportedFunction(idx); ok {
		return m.typeAt(imp.DescFunc)
	}
	defIdx := idx - m.importFuncCount
	if defIdx >= uint32(len(m.FunctionSection)) {
		return nil, fmt.Errorf("function index %d out of range", idx)
	}
	return m.typeAt(m.FunctionSection[defIdx])
}

func (m *Module) typeAt(idx uint32) (*FunctionType, error) {
	if idx >= uint32(len(m.TypeSection)) {
		return nil, fmt.Errorf("type index %d out of range", idx)
	}
	return m.TypeSection[idx], nil
}

// BuildIndexSpaces recomputes the cached import-count fields. Called once
// after decoding (or by a programmatic Module builder) so the
// *IndexSpace/IsImported* helpers above are correct; spec.md §3 invariant
// "every import precedes any definition of the same kind".
func (m *Module) BuildIndexSpaces() {
	m.importFuncCount, m.importTableCount = 0, 0
	m.importMemoryCount, m.importGlobalCount, m.importExceptionCount = 0, 0, 0
	for _, i := range m.ImportSection {
		switch i.Kind {
		case ExternTypeFunc:
			m.importFuncCount++
		case ExternTypeTable:
			m.importTableCount++
		case ExternTypeMemory:
			m.importMemoryCount++
		case ExternTypeGlobal:
			m.importGlobalCount++
		case ExternTypeException:
			m.importExceptionCount++
		}
	}
}

// SecondaryInvariants checks the structural invariants of spec.md §3 that
// are not enforced incrementally while decoding: every type_index in range,
// start_function typed []->[], every active segment's target in range with
// a constant offset expression of the right kind. Per-function-body
// validation (the polymorphic stack, spec.md §4.2) is a separate pass;
// see validator.go.
func (m *Module) SecondaryInvariants() error {
	if len(m.FunctionSection) != len(m.CodeSection) {
		return fmt.Errorf("function and code section counts differ: %d vs %d", len(m.FunctionSection), len(m.CodeSection))
	}
	for _, idx := range m.FunctionSection {
		if idx >= uint32(len(m.TypeSection)) {
			return fmt.Errorf("invalid type index %d in function section", idx)
		}
	}
	if m.StartSection != nil {
		ft, err := m.TypeOfFunction(*m.StartSection)
		if err != nil {
			return fmt.Errorf("invalid start function: %w", err)
		}
		if len(ft.Params) != 0 || len(ft.Results) != 0 {
			return fmt.Errorf("start function must have type []->[], got %s", ft)
		}
	}
	names := map[string]struct{}{}
	for _, e := range m.ExportSection {
		if _, dup := names[e.Name]; dup {
			return fmt.Errorf("duplicate export name %q", e.Name)
		}
		names[e.Name] = struct{}{}
		if err := m.validateExportIndex(e); err != nil {
			return err
		}
	}
	for _, d := range m.DataSection {
		if d.Mode == DataSegmentModeActive && d.MemoryIndex >= m.MemoryIndexSpace() {
			return fmt.Errorf("active data segment references out-of-range memory %d", d.MemoryIndex)
		}
	}
	for _, e := range m.ElementSection {
		if e.Mode == ElementSegmentModeActive && e.TableIndex >= m.TableIndexSpace() {
			return fmt.Errorf("active element segment references out-of-range table %d", e.TableIndex)
		}
	}
	return nil
}

func (m *Module) validateExportIndex(e *Export) error {
	var max uint32
	switch e.Kind {
	case ExternTypeFunc:
		max = m.FunctionIndexSpace()
	case ExternTypeTable:
		max = m.TableIndexSpace()
	case ExternTypeMemory:
		max = m.MemoryIndexSpace()
	case ExternTypeGlobal:
		max = m.GlobalIndexSpace()
	case ExternTypeException:
		max = m.ExceptionTypeIndexSpace()
	default:
		return fmt.Errorf("export %q has unknown kind %#x", e.Name, e.Kind)
	}
	if e.Index >= max {
		return fmt.Errorf("export %q index %d out of range", e.Name, e.Index)
	}
	return nil
}
