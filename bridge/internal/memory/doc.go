// Package memory provides memory access adapters for wazero.
//
// This package bridges wazero's memory API with the hostbridge Memory and
// Allocator interfaces, so the bridge can marshal values and buffers in the
// embedded heap without touching wazero directly.
//
// # Memory Wrapper
//
// Wraps the heap module's exported memory:
//
//	mem := memory.WrapMemory(heap.ExportedMemory(abi.MemoryExport))
//	// mem implements hostbridge.Memory
//
// # Allocator Wrapper
//
// Wraps jl_malloc and jl_free for buffers the collector never touches:
//
//	alloc := memory.WrapAllocator(ctx, malloc, free)
//	// alloc implements hostbridge.Allocator
//
// This package is internal to the bridge and should not be used directly.
package memory
