// Package hostbridge embeds a garbage-collected dynamic-language runtime in
// a Go process and moves values and arrays between the two heaps.
//
// The embedded heap is a WebAssembly linear memory owned by a wazero
// runtime. Values live at addresses inside it and are referenced from Go by
// handle; the Go collector never scans that memory and the embedded
// collector never scans Go memory. All traffic crosses a C-style native
// function table (jl_init, jl_eval_string, jl_box_float64, ...).
//
// # Architecture Overview
//
//	hostbridge/          Root package with core Memory and Allocator interfaces
//	├── bridge/          Runtime lifecycle, values, rooting, marshaling, calls
//	├── vm/              The embedded runtime: heap, collector, interpreter
//	├── abi/             Native function table and heap layout constants
//	├── config/          TOML configuration
//	├── errors/          Structured error types for debugging
//	└── cmd/hostbridge/  eval, repl and demo commands
//
// # Quick Start
//
//	rt, err := bridge.Open(ctx, config.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Shutdown(ctx, 0)
//
//	th, err := rt.InitThread(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer th.Close(ctx)
//
//	v, err := th.Eval(ctx, "sin(2.34)")
//	x, err := th.UnboxFloat64(ctx, v)
//
// # Memory Model
//
// Values returned to the host are not rooted. Anything that must survive
// the next allocating call goes into a bridge.RootTable. Host buffers that
// back embedded arrays are allocated in the linear memory with jl_malloc,
// so the embedded runtime can address them without a copy; the memory
// capacity is reserved up front and never relocates.
package hostbridge
