package binary

import (
	"github.com/wavmgo/wavm/internal/leb128"
	wasm "github.com/wavmgo/wavm/internal/wasm"
)

// EncodeModule serializes m back to the binary format. It is the inverse of
// DecodeModule: decode(EncodeModule(m)) reproduces m's section contents
// (spec.md §4.1 "decode(encode(m)) == m"), though section ordering and
// custom-section placement are canonicalized rather than byte-identical to
// whatever file m was originally decoded from.
func EncodeModule(m *wasm.Module) []byte {
	out := append([]byte{}, Magic...)
	out = append(out, Version...)

	if len(m.TypeSection) > 0 {
		out = appendSection(out, sectionIDType, encodeVector(len(m.TypeSection), func(i int) []byte {
			return encodeFunctionType(m.TypeSection[i])
		}))
	}
	if len(m.ImportSection) > 0 {
		out = appendSection(out, sectionIDImport, encodeVector(len(m.ImportSection), func(i int) []byte {
			return encodeImport(m.ImportSection[i])
		}))
	}
	if len(m.FunctionSection) > 0 {
		out = appendSection(out, sectionIDFunction, encodeVector(len(m.FunctionSection), func(i int) []byte {
			return leb128.EncodeUint32(m.FunctionSection[i])
		}))
	}
	if len(m.TableSection) > 0 {
		out = appendSection(out, sectionIDTable, encodeVector(len(m.TableSection), func(i int) []byte {
			return encodeTableType(m.TableSection[i])
		}))
	}
	if len(m.MemorySection) > 0 {
		out = appendSection(out, sectionIDMemory, encodeVector(len(m.MemorySection), func(i int) []byte {
			return encodeMemoryType(m.MemorySection[i])
		}))
	}
	if len(m.GlobalSection) > 0 {
		out = appendSection(out, sectionIDGlobal, encodeVector(len(m.GlobalSection), func(i int) []byte {
			return encodeGlobal(m.GlobalSection[i])
		}))
	}
	if len(m.ExportSection) > 0 {
		out = appendSection(out, sectionIDExport, encodeVector(len(m.ExportSection), func(i int) []byte {
			return encodeExport(m.ExportSection[i])
		}))
	}
	if m.StartSection != nil {
		out = appendSection(out, sectionIDStart, leb128.EncodeUint32(*m.StartSection))
	}
	if len(m.ElementSection) > 0 {
		out = appendSection(out, sectionIDElement, encodeVector(len(m.ElementSection), func(i int) []byte {
			return encodeElementSegment(m.ElementSection[i])
		}))
	}
	if m.DataCountSection != nil {
		out = appendSection(out, sectionIDDataCount, leb128.EncodeUint32(*m.DataCountSection))
	}
	if len(m.CodeSection) > 0 {
		out = appendSection(out, sectionIDCode, encodeVector(len(m.CodeSection), func(i int) []byte {
			return encodeCode(m.CodeSection[i])
		}))
	}
	if len(m.DataSection) > 0 {
		out = appendSection(out, sectionIDData, encodeVector(len(m.DataSection), func(i int) []byte {
			return encodeDataSegment(m.DataSection[i])
		}))
	}
	if len(m.ExceptionTypeSection) > 0 {
		body := encodeName(exceptionCustomSectionName)
		body = append(body, encodeVector(len(m.ExceptionTypeSection), func(i int) []byte {
			return encodeExceptionType(m.ExceptionTypeSection[i])
		})...)
		out = appendSection(out, sectionIDCustom, body)
	}
	for _, cs := range m.CustomSections {
		body := append(encodeName(cs.Name), cs.Data...)
		out = appendSection(out, sectionIDCustom, body)
	}
	return out
}

func appendSection(out []byte, id sectionID, body []byte) []byte {
	out = append(out, byte(id))
	out = append(out, leb128.EncodeUint32(uint32(len(body)))...)
	return append(out, body...)
}

func encodeVector(n int, encodeOne func(i int) []byte) []byte {
	out := leb128.EncodeUint32(uint32(n))
	for i := 0; i < n; i++ {
		out = append(out, encodeOne(i)...)
	}
	return out
}

func encodeName(s string) []byte {
	out := leb128.EncodeUint32(uint32(len(s)))
	return append(out, s...)
}

func encodeFunctionType(ft *wasm.FunctionType) []byte {
	out := []byte{0x60}
	out = append(out, encodeVector(len(ft.Params), func(i int) []byte { return []byte{ft.Params[i]} })...)
	out = append(out, encodeVector(len(ft.Results), func(i int) []byte { return []byte{ft.Results[i]} })...)
	return out
}

func encodeLimits(l wasm.Limits, shared bool) []byte {
	flag := byte(0)
	if l.Max != nil {
		flag |= 0x01
	}
	if shared {
		flag |= 0x02
	}
	out := []byte{flag}
	out = append(out, leb128.EncodeUint32(l.Min)...)
	if l.Max != nil {
		out = append(out, leb128.EncodeUint32(*l.Max)...)
	}
	return out
}

func encodeTableType(tt *wasm.TableType) []byte {
	out := []byte{tt.ElemType}
	return append(out, encodeLimits(tt.Limits, false)...)
}

func encodeMemoryType(mt *wasm.MemoryType) []byte {
	return encodeLimits(mt.Limits, mt.Shared)
}

func encodeGlobalType(gt wasm.GlobalType) []byte {
	mut := byte(0)
	if gt.Mutable {
		mut = 1
	}
	return []byte{gt.ValType, mut}
}

func encodeExceptionType(et *wasm.ExceptionType) []byte {
	return encodeVector(len(et.Params), func(i int) []byte { return []byte{et.Params[i]} })
}

func encodeImport(imp *wasm.Import) []byte {
	out := encodeName(imp.Module)
	out = append(out, encodeName(imp.Name)...)
	out = append(out, imp.Kind)
	switch imp.Kind {
	case wasm.ExternTypeFunc:
		out = append(out, leb128.EncodeUint32(imp.DescFunc)...)
	case wasm.ExternTypeTable:
		out = append(out, encodeTableType(&imp.DescTable)...)
	case wasm.ExternTypeMemory:
		out = append(out, encodeMemoryType(&imp.DescMem)...)
	case wasm.ExternTypeGlobal:
		out = append(out, encodeGlobalType(imp.DescGlobal)...)
	case wasm.ExternTypeException:
		out = append(out, leb128.EncodeUint32(imp.DescException)...)
	}
	return out
}

func encodeExport(e *wasm.Export) []byte {
	out := encodeName(e.Name)
	out = append(out, e.Kind)
	return append(out, leb128.EncodeUint32(e.Index)...)
}

func encodeGlobal(g *wasm.Global) []byte {
	out := encodeGlobalType(g.Type)
	return append(out, encodeConstantExpression(g.Init)...)
}

func encodeCode(c *wasm.Code) []byte {
	var locals []byte
	groups := groupRuns(c.LocalTypes)
	locals = append(locals, leb128.EncodeUint32(uint32(len(groups)))...)
	for _, g := range groups {
		locals = append(locals, leb128.EncodeUint32(g.count)...)
		locals = append(locals, g.typ)
	}
	body := append(locals, c.Body...)
	out := leb128.EncodeUint32(uint32(len(body)))
	return append(out, body...)
}

type localRun struct {
	typ   wasm.ValueType
	count uint32
}

func groupRuns(ts []wasm.ValueType) []localRun {
	var runs []localRun
	for _, t := range ts {
		if len(runs) > 0 && runs[len(runs)-1].typ == t {
			runs[len(runs)-1].count++
			continue
		}
		runs = append(runs, localRun{typ: t, count: 1})
	}
	return runs
}

func encodeDataSegment(d *wasm.DataSegment) []byte {
	var out []byte
	switch d.Mode {
	case wasm.DataSegmentModePassive:
		out = leb128.EncodeUint32(1)
	default:
		if d.MemoryIndex == 0 {
			out = leb128.EncodeUint32(0)
		} else {
			out = leb128.EncodeUint32(2)
			out = append(out, leb128.EncodeUint32(d.MemoryIndex)...)
		}
		out = append(out, encodeConstantExpression(d.OffsetExpr)...)
	}
	out = append(out, leb128.EncodeUint32(uint32(len(d.Init)))...)
	return append(out, d.Init...)
}

// encodeElementSegment always uses the expression-initialized, explicit
// reftype shapes (flags 4/5/6/7): simpler to emit correctly than
// reconstructing which of the eight reader shapes a segment "came from",
// and every shape round-trips to the same ElementSegment on decode.
func encodeElementSegment(es *wasm.ElementSegment) []byte {
	var flag uint32
	var out []byte
	switch es.Mode {
	case wasm.ElementSegmentModeActive:
		if es.TableIndex == 0 {
			flag = 4
		} else {
			flag = 6
		}
	case wasm.ElementSegmentModePassive:
		flag = 5
	case wasm.ElementSegmentModeDeclared:
		flag = 7
	}
	out = leb128.EncodeUint32(flag)
	if flag == 6 {
		out = append(out, leb128.EncodeUint32(es.TableIndex)...)
	}
	if flag == 4 || flag == 6 {
		out = append(out, encodeConstantExpression(es.OffsetExpr)...)
	}
	if flag != 4 && flag != 6 {
		out = append(out, es.ElemType)
	} else if flag == 6 {
		out = append(out, es.ElemType)
	}
	out = append(out, encodeVector(len(es.Init), func(i int) []byte {
		init := es.Init[i]
		if init.RefNull {
			return append([]byte{wasm.OpcodeRefNull, es.ElemType}, wasm.OpcodeEnd)
		}
		return append([]byte{wasm.OpcodeRefFunc}, append(leb128.EncodeUint32(init.FuncIdx), wasm.OpcodeEnd)...)
	})...)
	return out
}
