// Package memory provides memory access adapters for wazero.
package memory

import (
	"context"
	"fmt"
	"math"
	"unsafe"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/hostbridge"
)

// WrapMemory wraps a wazero api.Memory to implement hostbridge.Memory.
func WrapMemory(mem api.Memory) *Wrapper {
	if mem == nil {
		return nil
	}
	return &Wrapper{Mem: mem}
}

// WrapAllocator wraps the jl_malloc and jl_free exports to implement
// hostbridge.Allocator.
func WrapAllocator(ctx context.Context, malloc, free api.Function) hostbridge.Allocator {
	if malloc == nil || free == nil {
		return nil
	}
	return &AllocatorWrapper{Ctx: ctx, Malloc: malloc, FreeFn: free}
}

var (
	_ hostbridge.Memory      = (*Wrapper)(nil)
	_ hostbridge.MemorySizer = (*Wrapper)(nil)
)

// Wrapper adapts wazero api.Memory to the hostbridge.Memory interface.
type Wrapper struct {
	Mem api.Memory
}

// Size returns the current memory size in bytes.
func (m *Wrapper) Size() uint32 {
	return m.Mem.Size()
}

// Read reads bytes from memory. The returned slice aliases the memory.
func (m *Wrapper) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.Mem.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("memory read out of bounds: offset=%d, length=%d", offset, length)
	}
	return data, nil
}

// Write writes bytes to memory.
func (m *Wrapper) Write(offset uint32, data []byte) error {
	if !m.Mem.Write(offset, data) {
		return fmt.Errorf("memory write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	return nil
}

// ReadU8 reads an unsigned 8-bit value.
func (m *Wrapper) ReadU8(offset uint32) (uint8, error) {
	v, ok := m.Mem.ReadByte(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

// ReadU32 reads an unsigned 32-bit little-endian value.
func (m *Wrapper) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.Mem.ReadUint32Le(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

// ReadU64 reads an unsigned 64-bit little-endian value.
func (m *Wrapper) ReadU64(offset uint32) (uint64, error) {
	v, ok := m.Mem.ReadUint64Le(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

// ReadF64 reads a little-endian float64.
func (m *Wrapper) ReadF64(offset uint32) (float64, error) {
	v, ok := m.Mem.ReadFloat64Le(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

// WriteU8 writes an unsigned 8-bit value.
func (m *Wrapper) WriteU8(offset uint32, value uint8) error {
	if !m.Mem.WriteByte(offset, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", offset)
	}
	return nil
}

// WriteU32 writes an unsigned 32-bit little-endian value.
func (m *Wrapper) WriteU32(offset uint32, value uint32) error {
	if !m.Mem.WriteUint32Le(offset, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", offset)
	}
	return nil
}

// WriteU64 writes an unsigned 64-bit little-endian value.
func (m *Wrapper) WriteU64(offset uint32, value uint64) error {
	if !m.Mem.WriteUint64Le(offset, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", offset)
	}
	return nil
}

// WriteF64 writes a little-endian float64.
func (m *Wrapper) WriteF64(offset uint32, value float64) error {
	if !m.Mem.WriteFloat64Le(offset, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", offset)
	}
	return nil
}

// ReadCString reads a NUL-terminated string starting at offset.
func (m *Wrapper) ReadCString(offset uint32) (string, error) {
	size := m.Mem.Size()
	if offset >= size {
		return "", fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	data, _ := m.Mem.Read(offset, size-offset)
	for i, b := range data {
		if b == 0 {
			return string(data[:i]), nil
		}
	}
	return "", fmt.Errorf("unterminated string at offset=%d", offset)
}

// Float64s returns n float64 values at offset that alias the memory. Writes
// through the slice are visible to the embedded runtime and the reverse.
// The linear memory never relocates, so the view stays valid as long as the
// block it points into is alive. Requires a little-endian host.
func (m *Wrapper) Float64s(offset uint32, n int) ([]float64, error) {
	if n == 0 {
		return []float64{}, nil
	}
	if offset%8 != 0 {
		return nil, fmt.Errorf("unaligned float64 view: offset=%d", offset)
	}
	if n < 0 || uint64(n)*8 > math.MaxUint32 {
		return nil, fmt.Errorf("invalid float64 view length %d", n)
	}
	data, err := m.Read(offset, uint32(n)*8)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&data[0])), n), nil
}

// AllocatorWrapper adapts jl_malloc and jl_free to hostbridge.Allocator.
// Ctx must carry whatever the exports require; raw allocation needs no
// thread token.
type AllocatorWrapper struct {
	Ctx    context.Context
	Malloc api.Function
	FreeFn api.Function
}

// Alloc allocates size bytes with jl_malloc.
func (a *AllocatorWrapper) Alloc(size uint32) (uint32, error) {
	results, err := a.Malloc.Call(a.Ctx, uint64(size))
	if err != nil {
		return 0, fmt.Errorf("allocation failed: %w", err)
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("allocation returned no result")
	}
	if results[0] == 0 {
		return 0, fmt.Errorf("allocation of %d bytes failed: heap exhausted", size)
	}
	return uint32(results[0]), nil
}

// Free releases a block returned by Alloc.
func (a *AllocatorWrapper) Free(ptr uint32) {
	_, _ = a.FreeFn.Call(a.Ctx, uint64(ptr))
}
