package hostbridge

// Memory represents the embedded heap's linear memory as seen from the host
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU8(offset uint32) (uint8, error)
	ReadU32(offset uint32) (uint32, error)
	ReadU64(offset uint32) (uint64, error)
	ReadF64(offset uint32) (float64, error)
	WriteU8(offset uint32, value uint8) error
	WriteU32(offset uint32, value uint32) error
	WriteU64(offset uint32, value uint64) error
	WriteF64(offset uint32, value float64) error
}

// MemorySizer provides the current size of the linear memory in bytes.
type MemorySizer interface {
	Size() uint32
}

// Allocator allocates raw, uncollected blocks in the embedded heap
type Allocator interface {
	Alloc(size uint32) (uint32, error)
	Free(ptr uint32)
}
