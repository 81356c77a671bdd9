package binary

import (
	"bytes"
	"fmt"

	"github.com/wavmgo/wavm/internal/leb128"
	wasm "github.com/wavmgo/wavm/internal/wasm"
)

// decodeLimits reads the shared min/max pair (spec.md §3 "Limits"); flag
// byte 0x00 is min-only, 0x01 carries a max, 0x03 additionally marks the
// memory shared (spec.md §6 "shared tables"/threads feature).
func decodeLimits(r *bytes.Reader) (wasm.Limits, bool, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return wasm.Limits{}, false, err
	}
	min, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return wasm.Limits{}, false, err
	}
	l := wasm.Limits{Min: min}
	if flag&0x01 != 0 {
		max, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return wasm.Limits{}, false, err
		}
		l.Max = &max
	}
	shared := flag&0x02 != 0
	if flag > 0x03 {
		return wasm.Limits{}, false, fmt.Errorf("invalid limits flag %#x", flag)
	}
	return l, shared, nil
}

func decodeTableType(r *bytes.Reader) (*wasm.TableType, error) {
	elem, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if elem != wasm.ValueTypeFuncref && elem != wasm.ValueTypeExternref {
		return nil, fmt.Errorf("invalid table element type %#x", elem)
	}
	limits, _, err := decodeLimits(r)
	if err != nil {
		return nil, err
	}
	return &wasm.TableType{Limits: limits, ElemType: elem}, nil
}

func decodeMemoryType(r *bytes.Reader) (*wasm.MemoryType, error) {
	limits, shared, err := decodeLimits(r)
	if err != nil {
		return nil, err
	}
	return &wasm.MemoryType{Limits: limits, Shared: shared}, nil
}
