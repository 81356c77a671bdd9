package binary

import (
	"bytes"
	"fmt"
	"io"

	"github.com/wavmgo/wavm/internal/leb128"
	wasm "github.com/wavmgo/wavm/internal/wasm"
)

// decodeDataSegment reads one data section row. Flag 0 is active against
// memory 0 (the only shape the MVP needs); 1 is passive (bulk-memory); 2 is
// active against an explicit memory index, which the MVP never emits but
// the multi-memory proposal does (spec.md §6 feature gate).
func decodeDataSegment(r *bytes.Reader, m *wasm.Module) (*wasm.DataSegment, error) {
	flag, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	d := &wasm.DataSegment{}
	switch flag {
	case 0:
		d.Mode = wasm.DataSegmentModeActive
		if d.OffsetExpr, err = decodeConstantExpression(r, m); err != nil {
			return nil, err
		}
	case 1:
		d.Mode = wasm.DataSegmentModePassive
	case 2:
		d.Mode = wasm.DataSegmentModeActive
		if d.MemoryIndex, _, err = leb128.DecodeUint32(r); err != nil {
			return nil, err
		}
		if d.OffsetExpr, err = decodeConstantExpression(r, m); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("invalid data segment flag %d", flag)
	}
	n, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	init := make([]byte, n)
	if _, err := io.ReadFull(r, init); err != nil {
		return nil, fmt.Errorf("data segment init: %w", err)
	}
	d.Init = init
	return d, nil
}
