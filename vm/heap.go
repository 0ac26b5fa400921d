package vm

import (
	"fmt"
	"math/bits"

	"github.com/tetratelabs/wazero/api"
	"github.com/wippyai/hostbridge/abi"
)

const (
	minClassShift = 4 // 16-byte blocks
	maxClassShift = 31
	numClasses    = maxClassShift - minClassShift + 1

	// poisonByte fills freed blocks so stale handles read garbage headers.
	poisonByte = 0xA5
)

// heap is a size-classed allocator over the linear memory. Blocks are powers
// of two, handed out by bumping top and recycled through per-class free
// lists. Block addresses are 16-byte aligned.
type heap struct {
	mem    api.Memory
	top    uint32
	free   [numClasses][]uint32
	blocks map[uint32]uint8
	inUse  uint64
}

func newHeap(mem api.Memory) *heap {
	return &heap{
		mem:    mem,
		top:    abi.HeapBase,
		blocks: make(map[uint32]uint8),
	}
}

func classFor(size uint32) (uint8, bool) {
	if size == 0 {
		size = 1
	}
	shift := bits.Len32(size - 1)
	if shift < minClassShift {
		shift = minClassShift
	}
	if shift > maxClassShift {
		return 0, false
	}
	return uint8(shift - minClassShift), true
}

func classSize(c uint8) uint32 { return 1 << (uint32(c) + minClassShift) }

// alloc returns a zeroed block of at least size bytes.
func (h *heap) alloc(size uint32) (uint32, error) {
	c, ok := classFor(size)
	if !ok {
		return 0, fmt.Errorf("allocation of %d bytes exceeds the largest block", size)
	}
	n := classSize(c)

	var addr uint32
	if l := len(h.free[c]); l > 0 {
		addr = h.free[c][l-1]
		h.free[c] = h.free[c][:l-1]
	} else {
		end := uint64(h.top) + uint64(n)
		if end > uint64(h.mem.Size()) {
			if err := h.grow(end); err != nil {
				return 0, err
			}
		}
		addr = h.top
		h.top = uint32(end)
	}

	buf, ok := h.mem.Read(addr, n)
	if !ok {
		return 0, fmt.Errorf("block %#x out of memory bounds", addr)
	}
	clear(buf)
	h.blocks[addr] = c
	h.inUse += uint64(n)
	return addr, nil
}

func (h *heap) grow(end uint64) error {
	size := uint64(h.mem.Size())
	pages := (end - size + abi.PageSize - 1) / abi.PageSize
	if pages > 65536 {
		return fmt.Errorf("heap exhausted: need %d more pages", pages)
	}
	if _, ok := h.mem.Grow(uint32(pages)); !ok {
		return fmt.Errorf("heap exhausted: cannot grow by %d pages", pages)
	}
	return nil
}

// release poisons the block at addr and returns it to its free list.
func (h *heap) release(addr uint32) bool {
	c, ok := h.blocks[addr]
	if !ok {
		return false
	}
	delete(h.blocks, addr)
	n := classSize(c)
	if buf, ok := h.mem.Read(addr, n); ok {
		for i := range buf {
			buf[i] = poisonByte
		}
	}
	h.free[c] = append(h.free[c], addr)
	h.inUse -= uint64(n)
	return true
}

// owns reports whether addr is the start of a live block.
func (h *heap) owns(addr uint32) bool {
	_, ok := h.blocks[addr]
	return ok
}

// blockSize returns the capacity of the live block at addr.
func (h *heap) blockSize(addr uint32) uint32 {
	c, ok := h.blocks[addr]
	if !ok {
		return 0
	}
	return classSize(c)
}
