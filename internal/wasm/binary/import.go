package binary

import (
	"bytes"
	"fmt"

	"github.com/wavmgo/wavm/internal/leb128"
	wasm "github.com/wavmgo/wavm/internal/wasm"
)

func decodeImport(r *bytes.Reader) (*wasm.Import, error) {
	module, err := decodeName(r)
	if err != nil {
		return nil, fmt.Errorf("module: %w", err)
	}
	name, err := decodeName(r)
	if err != nil {
		return nil, fmt.Errorf("name: %w", err)
	}
	kind, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	imp := &wasm.Import{Module: module, Name: name, Kind: kind}
	switch kind {
	case wasm.ExternTypeFunc:
		idx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, err
		}
		imp.DescFunc = idx
	case wasm.ExternTypeTable:
		tt, err := decodeTableType(r)
		if err != nil {
			return nil, err
		}
		imp.DescTable = *tt
	case wasm.ExternTypeMemory:
		mt, err := decodeMemoryType(r)
		if err != nil {
			return nil, err
		}
		imp.DescMem = *mt
	case wasm.ExternTypeGlobal:
		gt, err := decodeGlobalType(r)
		if err != nil {
			return nil, err
		}
		imp.DescGlobal = *gt
	case wasm.ExternTypeException:
		idx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, err
		}
		imp.DescException = idx
	default:
		return nil, fmt.Errorf("invalid import kind %#x", kind)
	}
	return imp, nil
}

func decodeGlobalType(r *bytes.Reader) (*wasm.GlobalType, error) {
	vt, err := decodeValueType(r)
	if err != nil {
		return nil, err
	}
	mutByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if mutByte > 1 {
		return nil, fmt.Errorf("invalid global mutability byte %#x", mutByte)
	}
	return &wasm.GlobalType{ValType: vt, Mutable: mutByte == 1}, nil
}

func decodeExceptionType(r *bytes.Reader) (*wasm.ExceptionType, error) {
	params, err := decodeValueTypes(r)
	if err != nil {
		return nil, err
	}
	return &wasm.ExceptionType{Params: params}, nil
}

func decodeExport(r *bytes.Reader) (*wasm.Export, error) {
	name, err := decodeName(r)
	if err != nil {
		return nil, err
	}
	kind, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	idx, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	return &wasm.Export{Name: name, Kind: kind, Index: idx}, nil
}

func decodeGlobal(r *bytes.Reader, m *wasm.Module) (*wasm.Global, error) {
	gt, err := decodeGlobalType(r)
	if err != nil {
		return nil, err
	}
	init, err := decodeConstantExpression(r, m)
	if err != nil {
		return nil, fmt.Errorf("init expr: %w", err)
	}
	return &wasm.Global{Type: *gt, Init: init}, nil
}
