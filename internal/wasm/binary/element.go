package binary

import (
	"bytes"
	"fmt"

	"github.com/wavmgo/wavm/internal/leb128"
	wasm "github.com/wavmgo/wavm/internal/wasm"
)

// decodeElementSegment reads one element section row. The encoding has
// eight flag-selected shapes (bulk-memory/reference-types extension to the
// MVP's single implicit-active-table-0 shape); spec.md §3 Module IR
// "element segments" only distinguishes active|passive|declared, so the
// flag bits below just route to that three-way Mode plus which of
// (func-index vector | full-expression vector) Init holds.
func decodeElementSegment(r *bytes.Reader, m *wasm.Module) (*wasm.ElementSegment, error) {
	flag, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	if flag > 7 {
		return nil, fmt.Errorf("invalid element segment flag %d", flag)
	}
	es := &wasm.ElementSegment{ElemType: wasm.ValueTypeFuncref}
	usesExpr := flag == 4 || flag == 5 || flag == 6 || flag == 7

	switch flag {
	case 0:
		es.Mode = wasm.ElementSegmentModeActive
		es.TableIndex = 0
		if es.OffsetExpr, err = decodeConstantExpression(r, m); err != nil {
			return nil, err
		}
	case 1, 3:
		if flag == 1 {
			es.Mode = wasm.ElementSegmentModePassive
		} else {
			es.Mode = wasm.ElementSegmentModeDeclared
		}
		kind, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if kind != 0x00 {
			return nil, fmt.Errorf("invalid elemkind %#x", kind)
		}
	case 2:
		es.Mode = wasm.ElementSegmentModeActive
		if es.TableIndex, _, err = leb128.DecodeUint32(r); err != nil {
			return nil, err
		}
		if es.OffsetExpr, err = decodeConstantExpression(r, m); err != nil {
			return nil, err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if kind != 0x00 {
			return nil, fmt.Errorf("invalid elemkind %#x", kind)
		}
	case 4:
		es.Mode = wasm.ElementSegmentModeActive
		es.TableIndex = 0
		if es.OffsetExpr, err = decodeConstantExpression(r, m); err != nil {
			return nil, err
		}
	case 5:
		es.Mode = wasm.ElementSegmentModePassive
		if es.ElemType, err = decodeValueType(r); err != nil {
			return nil, err
		}
	case 6:
		es.Mode = wasm.ElementSegmentModeActive
		if es.TableIndex, _, err = leb128.DecodeUint32(r); err != nil {
			return nil, err
		}
		if es.OffsetExpr, err = decodeConstantExpression(r, m); err != nil {
			return nil, err
		}
		if es.ElemType, err = decodeValueType(r); err != nil {
			return nil, err
		}
	case 7:
		es.Mode = wasm.ElementSegmentModeDeclared
		if es.ElemType, err = decodeValueType(r); err != nil {
			return nil, err
		}
	}

	err = decodeVector(r, func(r *bytes.Reader) error {
		if usesExpr {
			ce, err := decodeConstantExpression(r, m)
			if err != nil {
				return err
			}
			init := wasm.ElementInit{IsExpr: true, ExprData: ce.Data}
			if ce.Kind == wasm.ValueTypeFuncref && len(ce.Data) > 0 {
				idx, _, _ := leb128.LoadUint32(ce.Data)
				init.FuncIdx = idx
			} else {
				init.RefNull = true
			}
			es.Init = append(es.Init, init)
			return nil
		}
		idx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return err
		}
		es.Init = append(es.Init, wasm.ElementInit{FuncIdx: idx})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return es, nil
}
