package runtime

import (
	stdcontext "context"

	"github.com/wavmgo/wavm/internal/trap"
	wasm "github.com/wavmgo/wavm/internal/wasm"
)

// ResolvedObject is whatever one import resolves to: exactly one field is
// populated, selected by Kind (spec.md §4.8 Resolver capability
// "resolve(module_name, export_name, expected_type) -> Option<Object>").
type ResolvedObject struct {
	Kind      wasm.ExternType
	Func      *FunctionInstance
	Table     *Table
	Memory    *Memory
	Global    *Global
	Exception *ExceptionTypeInstance
}

// Resolver looks up one import of module, given its full descriptor (plus
// module, so a func import's expected signature can be recovered from
// imp.DescFunc) so the result can be type-checked without a second round
// trip.
type Resolver interface {
	Resolve(module *wasm.Module, imp *wasm.Import) (ResolvedObject, bool)
}

// ResolverFunc adapts a plain function to a Resolver.
type ResolverFunc func(module *wasm.Module, imp *wasm.Import) (ResolvedObject, bool)

func (f ResolverFunc) Resolve(module *wasm.Module, imp *wasm.Import) (ResolvedObject, bool) {
	return f(module, imp)
}

// LinkResult is the linker's output (spec.md §4.8): one entry per import in
// declaration order (a miss or type mismatch leaves the zero ResolvedObject
// and is also recorded in Missing), plus an overall Success flag.
type LinkResult struct {
	Resolved []ResolvedObject
	Missing  []*wasm.Import
	Success  bool
}

// Link resolves every import of module against resolver, performing a
// subtype check on every hit (spec.md §4.8 "a type-mismatched return is
// treated as if the resolver had declined").
func Link(module *wasm.Module, resolver Resolver) LinkResult {
	var result LinkResult
	result.Success = true
	for _, imp := range module.ImportSection {
		obj, found := resolver.Resolve(module, imp)
		if found && isSubtype(module, imp, obj) {
			result.Resolved = append(result.Resolved, obj)
			continue
		}
		result.Resolved = append(result.Resolved, ResolvedObject{})
		result.Missing = append(result.Missing, imp)
		result.Success = false
	}
	return result
}

// isSubtype reports whether obj may satisfy imp, per spec.md §4.4
// instantiation step 2 "type is a subtype of the declared import type".
func isSubtype(module *wasm.Module, imp *wasm.Import, obj ResolvedObject) bool {
	if imp.Kind != obj.Kind {
		return false
	}
	switch imp.Kind {
	case wasm.ExternTypeFunc:
		if obj.Func == nil {
			return false
		}
		wantType, err := module.TypeOfFunction(funcImportIndex(module, imp))
		return err == nil && wantType.EqualTo(obj.Func.Type)
	case wasm.ExternTypeTable:
		return obj.Table != nil && obj.Table.typ.ElemType == imp.DescTable.ElemType &&
			limitsSatisfy(imp.DescTable.Limits, obj.Table.typ.Limits)
	case wasm.ExternTypeMemory:
		return obj.Memory != nil && limitsSatisfy(imp.DescMem.Limits, obj.Memory.typ.Limits)
	case wasm.ExternTypeGlobal:
		return obj.Global != nil && obj.Global.Type.ValType == imp.DescGlobal.ValType &&
			obj.Global.Type.Mutable == imp.DescGlobal.Mutable
	case wasm.ExternTypeException:
		return obj.Exception != nil
	}
	return false
}

// funcImportIndex recovers imp's position in the imports-first function
// index space, needed to resolve its declared FunctionType via
// Module.TypeOfFunction.
func funcImportIndex(module *wasm.Module, imp *wasm.Import) uint32 {
	n := uint32(0)
	for _, i := range module.ImportSection {
		if i == imp {
			return n
		}
		if i.Kind == wasm.ExternTypeFunc {
			n++
		}
	}
	return n
}

// limitsSatisfy reports whether actual is at least as permissive as
// required: actual must admit everything required admits.
func limitsSatisfy(required, actual wasm.Limits) bool {
	if actual.Min < required.Min {
		return false
	}
	if required.Max == nil {
		return true
	}
	return actual.Max != nil && *actual.Max <= *required.Max
}

// StubResolver wraps an inner Resolver: a miss synthesizes a
// minimally-sized fresh object matching the declared type instead of
// failing (spec.md §4.8 "Stubbing is opt-in per linker invocation"). The
// stub is registered into Target so it participates in the usual
// compartment lifecycle.
type StubResolver struct {
	Inner  Resolver
	Target *Compartment
}

func (s StubResolver) Resolve(module *wasm.Module, imp *wasm.Import) (ResolvedObject, bool) {
	if s.Inner != nil {
		if obj, ok := s.Inner.Resolve(module, imp); ok {
			return obj, true
		}
	}
	switch imp.Kind {
	case wasm.ExternTypeFunc:
		sig, err := module.TypeOfFunction(funcImportIndex(module, imp))
		if err != nil {
			return ResolvedObject{}, false
		}
		return ResolvedObject{Kind: imp.Kind, Func: stubFunction(sig)}, true
	case wasm.ExternTypeTable:
		return ResolvedObject{Kind: imp.Kind, Table: NewTable(s.Target, imp.DescTable, nil)}, true
	case wasm.ExternTypeMemory:
		mem, err := NewMemory(s.Target, imp.DescMem)
		if err != nil {
			return ResolvedObject{}, false
		}
		return ResolvedObject{Kind: imp.Kind, Memory: mem}, true
	case wasm.ExternTypeGlobal:
		return ResolvedObject{Kind: imp.Kind, Global: NewGlobal(s.Target, imp.DescGlobal, 0)}, true
	case wasm.ExternTypeException:
		return ResolvedObject{Kind: imp.Kind, Exception: NewExceptionType(s.Target, nil, imp.Name)}, true
	}
	return ResolvedObject{}, false
}

// stubFunction is a Func import's stub: a body that traps on call (spec.md
// §4.8 "for functions either a body that traps on call ... or one that
// returns type-appropriate zero/null values" -- trapping is the safer
// default since a silent zero return can mask a missing dependency).
func stubFunction(sig *wasm.FunctionType) *FunctionInstance {
	return NewHostFunction(sig, func(stdcontext.Context, []uint64) ([]uint64, error) {
		trap.New(trap.KindUnreachable)
		return nil, nil
	})
}
