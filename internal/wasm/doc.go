// Package wasm encodes the small core WebAssembly modules the runtime is
// assembled from.
//
// Two modules are synthesized:
//
//   - the heap image: no code, one memory with fixed limits, exported by name
//   - the library shim: imports every native function from the host module
//     and re-exports it, so callers can resolve the table with
//     ExportedFunction (host modules do not allow that)
//
// LEB128 helpers:
//
//	encoded := wasm.EncodeULEB128(300)
//
// This package is internal to hostbridge.
package wasm
