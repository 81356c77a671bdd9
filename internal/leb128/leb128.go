// Package leb128 encodes and decodes integers using the variable-length
// encoding defined by the WebAssembly binary format.
//
// See https://webassembly.github.io/spec/core/binary/values.html#integers
package leb128

import (
	"bytes"
	"fmt"
	"io"
)

const (
	maxVarintLen32 = 5
	maxVarintLen64 = 10
)

// DecodeUint32 reads an unsigned 32-bit LEB128 integer from r.
func DecodeUint32(r io.ByteReader) (uint32, uint64, error) {
	ret, bytesRead, err := decodeUnsigned(r, 32)
	return uint32(ret), bytesRead, err
}

// DecodeUint64 reads an unsigned 64-bit LEB128 integer from r.
func DecodeUint64(r io.ByteReader) (uint64, uint64, error) {
	return decodeUnsigned(r, 64)
}

func decodeUnsigned(r io.ByteReader, valueBits int) (uint64, uint64, error) {
	ret := uint64(0)
	shift := 0
	bytesRead := uint64(0)
	maxBytes := uint64((valueBits + 6) / 7)

	for {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF && bytesRead > 0 {
				return 0, 0, io.ErrUnexpectedEOF
			}
			return 0, 0, err
		}
		bytesRead++

		// The last permitted byte may not continue, and its bits above
		// valueBits must be zero.
		if bytesRead == maxBytes && (b&0x80 != 0 || uint64(b&0x7f)>>(valueBits-shift) != 0) {
			return 0, 0, fmt.Errorf("leb128 value overflows a %d-bit integer", valueBits)
		}
		ret |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
	}
	return ret, bytesRead, nil
}

// DecodeInt32 reads a signed 32-bit LEB128 integer from r.
func DecodeInt32(r io.ByteReader) (int32, uint64, error) {
	ret, bytesRead, err := decodeSigned(r, 32)
	return int32(ret), bytesRead, err
}

// DecodeInt33AsInt64 reads a signed 33-bit LEB128 integer (used for constant
// block types) sign extended into an int64.
func DecodeInt33AsInt64(r io.ByteReader) (int64, uint64, error) {
	return decodeSigned(r, 33)
}

// DecodeInt64 reads a signed 64-bit LEB128 integer from r.
func DecodeInt64(r io.ByteReader) (int64, uint64, error) {
	return decodeSigned(r, 64)
}

func decodeSigned(r io.ByteReader, valueBits int) (int64, uint64, error) {
	ret := int64(0)
	shift := 0
	bytesRead := uint64(0)
	var b byte
	var err error
	maxBytes := uint64((valueBits + 6) / 7)

	for {
		b, err = r.ReadByte()
		if err != nil {
			if err == io.EOF && bytesRead > 0 {
				return 0, 0, io.ErrUnexpectedEOF
			}
			return 0, 0, err
		}
		bytesRead++

		if bytesRead == maxBytes {
			// The last permitted byte may not continue, and its bits from the
			// sign bit upward must all be equal.
			mask := byte(0x7f) &^ (1<<(valueBits-shift-1) - 1)
			if b&0x80 != 0 || (b&mask != 0 && b&mask != mask) {
				return 0, 0, fmt.Errorf("leb128 value overflows a %d-bit integer", valueBits)
			}
		}
		ret |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}

	// Sign extend if the sign bit of the final group is set and the value didn't fill all bits.
	if shift < 64 && b&0x40 != 0 {
		ret |= -1 << shift
	}
	return ret, bytesRead, nil
}

// LoadUint32 decodes an unsigned 32-bit LEB128 integer from the head of buf,
// returning the value, the number of bytes consumed and an error.
func LoadUint32(buf []byte) (uint32, uint64, error) {
	return DecodeUint32(bytes.NewReader(buf))
}

// LoadUint64 decodes an unsigned 64-bit LEB128 integer from the head of buf.
func LoadUint64(buf []byte) (uint64, uint64, error) {
	return DecodeUint64(bytes.NewReader(buf))
}

// LoadInt32 decodes a signed 32-bit LEB128 integer from the head of buf.
func LoadInt32(buf []byte) (int32, uint64, error) {
	return DecodeInt32(bytes.NewReader(buf))
}

// LoadInt64 decodes a signed 64-bit LEB128 integer from the head of buf.
func LoadInt64(buf []byte) (int64, uint64, error) {
	return DecodeInt64(bytes.NewReader(buf))
}

// EncodeUint32 encodes v as an unsigned 32-bit LEB128 integer.
func EncodeUint32(v uint32) []byte {
	return encodeUnsigned(uint64(v))
}

// EncodeUint64 encodes v as an unsigned 64-bit LEB128 integer.
func EncodeUint64(v uint64) []byte {
	return encodeUnsigned(v)
}

func encodeUnsigned(v uint64) []byte {
	ret := make([]byte, 0, maxVarintLen64)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			ret = append(ret, b|0x80)
		} else {
			ret = append(ret, b)
			return ret
		}
	}
}

// EncodeInt32 encodes v as a signed 32-bit LEB128 integer.
func EncodeInt32(v int32) []byte {
	return encodeSigned(int64(v))
}

// EncodeInt64 encodes v as a signed 64-bit LEB128 integer.
func EncodeInt64(v int64) []byte {
	return encodeSigned(v)
}

func encodeSigned(v int64) []byte {
	ret := make([]byte, 0, maxVarintLen64)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			ret = append(ret, b)
			return ret
		}
		ret = append(ret, b|0x80)
	}
}
