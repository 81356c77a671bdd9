package binary

import (
	"bytes"
	"fmt"

	wasm "github.com/wavmgo/wavm/internal/wasm"
)

func decodeValueType(r *bytes.Reader) (wasm.ValueType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch b {
	case wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeF32, wasm.ValueTypeF64,
		wasm.ValueTypeV128, wasm.ValueTypeFuncref, wasm.ValueTypeExternref:
		return b, nil
	}
	return 0, fmt.Errorf("invalid value type byte %#x", b)
}

func decodeFunctionType(r *bytes.Reader) (*wasm.FunctionType, error) {
	marker, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if marker != 0x60 {
		return nil, fmt.Errorf("invalid function type marker %#x", marker)
	}
	params, err := decodeValueTypes(r)
	if err != nil {
		return nil, fmt.Errorf("params: %w", err)
	}
	results, err := decodeValueTypes(r)
	if err != nil {
		return nil, fmt.Errorf("results: %w", err)
	}
	return &wasm.FunctionType{Params: params, Results: results}, nil
}

func decodeValueTypes(r *bytes.Reader) ([]wasm.ValueType, error) {
	var out []wasm.ValueType
	err := decodeVector(r, func(r *bytes.Reader) error {
		vt, err := decodeValueType(r)
		if err != nil {
			return err
		}
		out = append(out, vt)
		return nil
	})
	return out, err
}
