package wasm

import (
	"github.com/tetratelabs/wazero/api"
)

// Section ids.
const (
	sectionType     = 0x01
	sectionImport   = 0x02
	sectionFunction = 0x03
	sectionMemory   = 0x05
	sectionExport   = 0x07
	sectionCode     = 0x0a
)

// External kinds used in import and export entries.
const (
	externFunc   = 0x00
	externMemory = 0x02
)

// EncodeULEB128 encodes an unsigned value in LEB128 format.
func EncodeULEB128(v uint32) []byte {
	var result []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		result = append(result, b)
		if v == 0 {
			break
		}
	}
	return result
}

// ValTypeToWasm converts a wazero value type to its binary encoding.
func ValTypeToWasm(t api.ValueType) byte {
	switch t {
	case api.ValueTypeI32:
		return 0x7f
	case api.ValueTypeI64:
		return 0x7e
	case api.ValueTypeF32:
		return 0x7d
	case api.ValueTypeF64:
		return 0x7c
	default:
		return 0x7f
	}
}

func appendName(b []byte, name string) []byte {
	b = append(b, EncodeULEB128(uint32(len(name)))...)
	return append(b, name...)
}

func appendSection(b []byte, id byte, body []byte) []byte {
	b = append(b, id)
	b = append(b, EncodeULEB128(uint32(len(body)))...)
	return append(b, body...)
}
