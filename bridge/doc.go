// Package bridge is the host side of the cross-runtime value bridge.
//
// A Runtime embeds the interpreter from package vm in a wazero runtime and
// talks to it only through the native function table it exports (jl_init,
// jl_eval_string, jl_box_float64, ...). Values live in the embedded heap
// and are referenced from Go by address; the Go collector never sees them
// and the embedded collector never sees Go memory.
//
// # Lifecycle
//
//	rt, err := bridge.Open(ctx, config.Default())
//	defer rt.Shutdown(ctx, 0)
//
//	th, err := rt.InitThread(ctx)
//	defer th.Close(ctx)
//
// Every operation is a method of a Thread, or takes one. After Shutdown or
// Thread.Close, operations fail with errors.KindUninitialized.
//
// # Values and rooting
//
// A Value returned by evaluation, boxing or a call is not rooted. Anchor it
// in a RootTable before the next call that may allocate:
//
//	v, _ := th.Eval(ctx, "[1.0, 2.0, 3.0]")
//	_ = rt.Roots().Root(ctx, th, v)
//	defer rt.Roots().Unroot(ctx, th, v)
//
// # Exceptions
//
// EvalString and the Call functions are poll based: a failure inside the
// runtime yields the null Value and leaves an exception pending on the
// thread until ExceptionClear. Eval and CheckException translate it into an
// errors.KindEvaluation error.
//
// # Arrays
//
// Arrays are shared three ways: embedded-owned (AllocArray, read through
// Float64s), host-owned (PinBuffer plus WrapHostBuffer, zero copy) and
// copied (CopyIn, CopyOut). Views alias the linear memory, which never
// relocates, and assume a little-endian host.
package bridge
