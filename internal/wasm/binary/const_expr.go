package binary

import (
	"bytes"
	"fmt"

	"github.com/wavmgo/wavm/internal/leb128"
	wasm "github.com/wavmgo/wavm/internal/wasm"
)

// decodeConstantExpression reads one of spec.md §3's four initializer
// expression shapes, terminated by OpcodeEnd: i32/i64/f32/f64.const,
// global.get (of an immutable import), ref.null or ref.func. m's
// ImportSection must already be populated (the binary format always places
// the import section before any section containing constant expressions),
// so a global.get operand's value type can be resolved immediately rather
// than deferred to validation.
func decodeConstantExpression(r *bytes.Reader, m *wasm.Module) (wasm.ConstantExpression, error) {
	op, err := r.ReadByte()
	if err != nil {
		return wasm.ConstantExpression{}, err
	}
	var kind wasm.ValueType
	var data []byte
	var exprKind wasm.ConstantExpressionKind
	switch op {
	case wasm.OpcodeI32Const:
		v, n, err := leb128.DecodeInt32(r)
		if err != nil {
			return wasm.ConstantExpression{}, err
		}
		kind, data, exprKind = wasm.ValueTypeI32, leb128.EncodeInt32(v), wasm.ConstantExpressionKindLiteral
		_ = n
	case wasm.OpcodeI64Const:
		v, _, err := leb128.DecodeInt64(r)
		if err != nil {
			return wasm.ConstantExpression{}, err
		}
		kind, data, exprKind = wasm.ValueTypeI64, leb128.EncodeInt64(v), wasm.ConstantExpressionKindLiteral
	case wasm.OpcodeF32Const:
		b := make([]byte, 4)
		if _, err := readFull(r, b); err != nil {
			return wasm.ConstantExpression{}, err
		}
		kind, data, exprKind = wasm.ValueTypeF32, b, wasm.ConstantExpressionKindLiteral
	case wasm.OpcodeF64Const:
		b := make([]byte, 8)
		if _, err := readFull(r, b); err != nil {
			return wasm.ConstantExpression{}, err
		}
		kind, data, exprKind = wasm.ValueTypeF64, b, wasm.ConstantExpressionKindLiteral
	case wasm.OpcodeGlobalGet:
		idx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return wasm.ConstantExpression{}, err
		}
		gt, err := resolveImportedGlobalType(m, idx)
		if err != nil {
			return wasm.ConstantExpression{}, err
		}
		kind, data, exprKind = gt, leb128.EncodeUint32(idx), wasm.ConstantExpressionKindGlobalGet
	case wasm.OpcodeRefNull:
		t, err := r.ReadByte()
		if err != nil {
			return wasm.ConstantExpression{}, err
		}
		kind, data, exprKind = t, nil, wasm.ConstantExpressionKindRefNull
	case wasm.OpcodeRefFunc:
		idx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return wasm.ConstantExpression{}, err
		}
		kind, data, exprKind = wasm.ValueTypeFuncref, leb128.EncodeUint32(idx), wasm.ConstantExpressionKindRefFunc
	default:
		return wasm.ConstantExpression{}, fmt.Errorf("invalid constant expression opcode %#x", op)
	}
	end, err := r.ReadByte()
	if err != nil {
		return wasm.ConstantExpression{}, err
	}
	if end != wasm.OpcodeEnd {
		return wasm.ConstantExpression{}, fmt.Errorf("constant expression missing terminating end, got %#x", end)
	}
	return wasm.ConstantExpression{Kind: kind, Data: data, ExprKind: exprKind}, nil
}

// resolveImportedGlobalType finds the idx'th global import's declared
// value type; constant expressions may only reference imported globals
// (spec.md §4.4 "a global.get operand in an initializer expression names
// an imported, immutable global").
func resolveImportedGlobalType(m *wasm.Module, idx uint32) (wasm.ValueType, error) {
	n := uint32(0)
	for _, imp := range m.ImportSection {
		if imp.Kind != wasm.ExternTypeGlobal {
			continue
		}
		if n == idx {
			return imp.DescGlobal.ValType, nil
		}
		n++
	}
	return 0, fmt.Errorf("global.get in constant expression references non-imported global %d", idx)
}

func readFull(r *bytes.Reader, b []byte) (int, error) {
	n := 0
	for n < len(b) {
		c, err := r.ReadByte()
		if err != nil {
			return n, err
		}
		b[n] = c
		n++
	}
	return n, nil
}

func encodeConstantExpression(ce wasm.ConstantExpression) []byte {
	var out []byte
	switch ce.ExprKind {
	case wasm.ConstantExpressionKindGlobalGet:
		out = append(out, wasm.OpcodeGlobalGet)
	case wasm.ConstantExpressionKindRefFunc:
		out = append(out, wasm.OpcodeRefFunc)
	case wasm.ConstantExpressionKindRefNull:
		out = append(out, wasm.OpcodeRefNull, ce.Kind)
		return append(out, wasm.OpcodeEnd)
	default: // ConstantExpressionKindLiteral
		switch ce.Kind {
		case wasm.ValueTypeI32:
			out = append(out, wasm.OpcodeI32Const)
		case wasm.ValueTypeI64:
			out = append(out, wasm.OpcodeI64Const)
		case wasm.ValueTypeF32:
			out = append(out, wasm.OpcodeF32Const)
		case wasm.ValueTypeF64:
			out = append(out, wasm.OpcodeF64Const)
		}
	}
	out = append(out, ce.Data...)
	return append(out, wasm.OpcodeEnd)
}
