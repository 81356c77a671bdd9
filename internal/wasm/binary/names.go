package binary

import (
	"bytes"
	"io"

	"github.com/wavmgo/wavm/internal/leb128"
	wasm "github.com/wavmgo/wavm/internal/wasm"
)

const (
	nameSubsectionModule   = 0
	nameSubsectionFunction = 1
	nameSubsectionLocal    = 2
)

// decodeNameSection reads the "name" custom section's three optional
// subsections (spec.md §3 Module IR "debug/name metadata"). Unknown
// subsection IDs are skipped rather than rejected, matching the custom
// section's advisory, best-effort nature.
func decodeNameSection(r *bytes.Reader) (*wasm.NameSection, error) {
	ns := &wasm.NameSection{}
	for {
		id, err := r.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		size, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, err
		}
		body := make([]byte, size)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, err
		}
		sr := bytes.NewReader(body)
		switch id {
		case nameSubsectionModule:
			name, err := decodeName(sr)
			if err != nil {
				return nil, err
			}
			ns.ModuleName = name
		case nameSubsectionFunction:
			nm, err := decodeNameMap(sr)
			if err != nil {
				return nil, err
			}
			ns.FunctionNames = nm
		case nameSubsectionLocal:
			im, err := decodeIndirectNameMap(sr)
			if err != nil {
				return nil, err
			}
			ns.LocalNames = im
		}
	}
	return ns, nil
}

func decodeNameMap(r *bytes.Reader) (wasm.NameMap, error) {
	var nm wasm.NameMap
	err := decodeVector(r, func(r *bytes.Reader) error {
		idx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return err
		}
		name, err := decodeName(r)
		if err != nil {
			return err
		}
		nm = append(nm, wasm.NameAssoc{Index: idx, Name: name})
		return nil
	})
	return nm, err
}

func decodeIndirectNameMap(r *bytes.Reader) (wasm.IndirectNameMap, error) {
	var im wasm.IndirectNameMap
	err := decodeVector(r, func(r *bytes.Reader) error {
		idx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return err
		}
		nm, err := decodeNameMap(r)
		if err != nil {
			return err
		}
		im = append(im, wasm.NameMapAssoc{Index: idx, NameMap: nm})
		return nil
	})
	return im, err
}
