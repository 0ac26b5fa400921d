// Package abi defines the native boundary between the bridge and the
// embedded runtime: the export names and wasm signatures of the function
// table, the data symbols resolvable through jl_dlsym, and the byte layout of
// the objects the bridge reads directly from the heap memory.
//
// Both sides import this package; neither imports the other's internals.
package abi
