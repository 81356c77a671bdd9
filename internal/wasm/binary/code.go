package binary

import (
	"bytes"
	"fmt"
	"io"

	"github.com/wavmgo/wavm/internal/leb128"
	wasm "github.com/wavmgo/wavm/internal/wasm"
)

// decodeCode reads one code section row: a byte-length-prefixed entry whose
// body is a run-length-grouped local declaration vector followed by the raw
// instruction stream up to (and including) the function's terminal `end`
// (spec.md §3 Module IR "Code"; expansion into one ValueType per local
// happens here so the validator and Codegen both see a flat []ValueType).
func decodeCode(r *bytes.Reader) (*wasm.Code, error) {
	size, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("code entry body: %w", err)
	}
	br := bytes.NewReader(body)

	groupCount, _, err := leb128.DecodeUint32(br)
	if err != nil {
		return nil, err
	}
	var locals []wasm.ValueType
	for i := uint32(0); i < groupCount; i++ {
		n, _, err := leb128.DecodeUint32(br)
		if err != nil {
			return nil, err
		}
		vt, err := decodeValueType(br)
		if err != nil {
			return nil, err
		}
		for j := uint32(0); j < n; j++ {
			locals = append(locals, vt)
		}
	}
	rest, err := io.ReadAll(br)
	if err != nil {
		return nil, err
	}
	return &wasm.Code{LocalTypes: locals, Body: rest}, nil
}
