// Package binary implements the WebAssembly binary module format codec
// (spec.md §2 component D): section framing, LEB128-encoded fields and
// the byte-exact encode/decode pair that binary.DecodeModule and
// binary.EncodeModule satisfy (spec.md §4.1 "decode(encode(m)) == m").
package binary

import (
	"bytes"
	"fmt"
	"io"

	"github.com/wavmgo/wavm/internal/leb128"
	wasm "github.com/wavmgo/wavm/internal/wasm"
)

// Magic and Version are the module preamble (spec.md §4.1 "the first eight
// bytes are the fixed magic number and version").
var Magic = []byte{0x00, 0x61, 0x73, 0x6d}
var Version = []byte{0x01, 0x00, 0x00, 0x00}

type sectionID byte

const (
	sectionIDCustom sectionID = iota
	sectionIDType
	sectionIDImport
	sectionIDFunction
	sectionIDTable
	sectionIDMemory
	sectionIDGlobal
	sectionIDExport
	sectionIDStart
	sectionIDElement
	sectionIDCode
	sectionIDData
	sectionIDDataCount
	// sectionIDException is not part of the upstream binary format; it is
	// encoded as a custom section ("wavm.exceptions") so files remain
	// loadable by spec-conformant tooling that ignores unknown customs.
	sectionIDException = sectionID(0x80)
)

const exceptionCustomSectionName = "wavm.exceptions"

// PrecompiledObjectSectionName names the custom section a Codegen's
// compiled object is embedded under when a CompiledModule is serialized
// with a precompiled object attached (SPEC_FULL.md "precompiled module
// loading"; spec.md §4.3 Codegen contract).
const PrecompiledObjectSectionName = "wavm.precompiled_object"

// DecodeModule parses the binary format into a *wasm.Module. It does not
// validate the module (spec.md §4.2 is a separate pass); callers must call
// Module.Validate before handing the result to a Codegen.
func DecodeModule(data []byte) (*wasm.Module, error) {
	r := bytes.NewReader(data)
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil || !bytes.Equal(magic, Magic) {
		return nil, fmt.Errorf("invalid magic number")
	}
	version := make([]byte, 4)
	if _, err := io.ReadFull(r, version); err != nil || !bytes.Equal(version, Version) {
		return nil, fmt.Errorf("invalid version")
	}

	m := &wasm.Module{}
	lastNonCustom := 0
	for {
		idByte, err := r.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		id := sectionID(idByte)
		size, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("section %d size: %w", id, err)
		}
		body := make([]byte, size)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("section %d body: %w", id, err)
		}
		if id != sectionIDCustom {
			// The data count section sits between element and code.
			rank := 2 * int(id)
			if id == sectionIDDataCount {
				rank = 2*int(sectionIDElement) + 1
			}
			if rank <= lastNonCustom {
				return nil, fmt.Errorf("section %d out of order", id)
			}
			lastNonCustom = rank
		}
		if err := decodeSection(m, id, body); err != nil {
			return nil, fmt.Errorf("section %d: %w", id, err)
		}
	}
	m.BuildIndexSpaces()
	return m, nil
}

func decodeSection(m *wasm.Module, id sectionID, body []byte) error {
	r := bytes.NewReader(body)
	switch id {
	case sectionIDCustom:
		return decodeCustomSection(m, body)
	case sectionIDType:
		return decodeVector(r, func(r *bytes.Reader) error {
			ft, err := decodeFunctionType(r)
			if err != nil {
				return err
			}
			m.TypeSection = append(m.TypeSection, ft)
			return nil
		})
	case sectionIDImport:
		return decodeVector(r, func(r *bytes.Reader) error {
			imp, err := decodeImport(r)
			if err != nil {
				return err
			}
			m.ImportSection = append(m.ImportSection, imp)
			return nil
		})
	case sectionIDFunction:
		return decodeVector(r, func(r *bytes.Reader) error {
			idx, _, err := leb128.DecodeUint32(r)
			if err != nil {
				return err
			}
			m.FunctionSection = append(m.FunctionSection, idx)
			return nil
		})
	case sectionIDTable:
		return decodeVector(r, func(r *bytes.Reader) error {
			tt, err := decodeTableType(r)
			if err != nil {
				return err
			}
			m.TableSection = append(m.TableSection, tt)
			return nil
		})
	case sectionIDMemory:
		return decodeVector(r, func(r *bytes.Reader) error {
			mt, err := decodeMemoryType(r)
			if err != nil {
				return err
			}
			m.MemorySection = append(m.MemorySection, mt)
			return nil
		})
	case sectionIDGlobal:
		return decodeVector(r, func(r *bytes.Reader) error {
			g, err := decodeGlobal(r, m)
			if err != nil {
				return err
			}
			m.GlobalSection = append(m.GlobalSection, g)
			return nil
		})
	case sectionIDException:
		return decodeVector(r, func(r *bytes.Reader) error {
			et, err := decodeExceptionType(r)
			if err != nil {
				return err
			}
			m.ExceptionTypeSection = append(m.ExceptionTypeSection, et)
			return nil
		})
	case sectionIDExport:
		return decodeVector(r, func(r *bytes.Reader) error {
			e, err := decodeExport(r)
			if err != nil {
				return err
			}
			m.ExportSection = append(m.ExportSection, e)
			return nil
		})
	case sectionIDStart:
		idx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return err
		}
		m.StartSection = &idx
		return nil
	case sectionIDElement:
		return decodeVector(r, func(r *bytes.Reader) error {
			es, err := decodeElementSegment(r, m)
			if err != nil {
				return err
			}
			m.ElementSection = append(m.ElementSection, es)
			return nil
		})
	case sectionIDCode:
		return decodeVector(r, func(r *bytes.Reader) error {
			c, err := decodeCode(r)
			if err != nil {
				return err
			}
			m.CodeSection = append(m.CodeSection, c)
			return nil
		})
	case sectionIDData:
		return decodeVector(r, func(r *bytes.Reader) error {
			d, err := decodeDataSegment(r, m)
			if err != nil {
				return err
			}
			m.DataSection = append(m.DataSection, d)
			return nil
		})
	case sectionIDDataCount:
		n, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return err
		}
		m.DataCountSection = &n
		return nil
	}
	return fmt.Errorf("unknown section id %d", id)
}

func decodeCustomSection(m *wasm.Module, body []byte) error {
	r := bytes.NewReader(body)
	name, err := decodeName(r)
	if err != nil {
		return err
	}
	rest, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if name == "name" {
		ns, err := decodeNameSection(bytes.NewReader(rest))
		if err != nil {
			return err
		}
		m.NameSection = ns
		return nil
	}
	if name == exceptionCustomSectionName {
		return decodeVector(bytes.NewReader(rest), func(r *bytes.Reader) error {
			et, err := decodeExceptionType(r)
			if err != nil {
				return err
			}
			m.ExceptionTypeSection = append(m.ExceptionTypeSection, et)
			return nil
		})
	}
	m.CustomSections = append(m.CustomSections, &wasm.CustomSection{Name: name, Data: rest})
	return nil
}

// decodeVector calls decodeOne once per element of a LEB128-length-prefixed
// vector, the shape every Wasm binary section list uses (spec.md §4.1
// "every section is a length-prefixed vector of a fixed row shape").
func decodeVector(r *bytes.Reader, decodeOne func(*bytes.Reader) error) error {
	count, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		if err := decodeOne(r); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return nil
}

func decodeName(r *bytes.Reader) (string, error) {
	n, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
