package bridge

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/abi"
	"github.com/wippyai/hostbridge/bridge/internal/memory"
	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/vm"
)

// maxStack fits the widest native signature.
const maxStack = 4

// Thread is an adopted runtime thread. Every bridge operation goes through a
// Thread, so calls from a thread that was never initialized cannot be
// written. A Thread reuses one call stack and one scratch block and must not
// be used from several goroutines at once.
type Thread struct {
	rt     *Runtime
	lib    *library
	id     uint32
	closed bool
	stack  []uint64

	// scratch is a jl_malloc block for strings, dims and argument vectors.
	scratch     uint32
	scratchSize uint32
}

// ID returns the runtime's thread token.
func (t *Thread) ID() uint32 { return t.id }

// Runtime returns the runtime the thread belongs to.
func (t *Thread) Runtime() *Runtime { return t.rt }

func (t *Thread) usable() error {
	switch {
	case t.rt.closed.Load():
		return errors.Uninitialized("runtime is shut down")
	case t.closed:
		return errors.Uninitialized("thread is closed")
	}
	return nil
}

// call invokes fn with the thread token and returns its first result, or 0
// for functions without results.
func (t *Thread) call(ctx context.Context, fn abi.Func, args ...uint64) (uint64, error) {
	if err := t.usable(); err != nil {
		return 0, err
	}
	stack := t.stack[:stackSize(fn)]
	copy(stack, args)
	if err := t.lib.fns[fn].CallWithStack(vm.WithThread(ctx, t.id), stack); err != nil {
		return 0, nativeError(fn, err)
	}
	if len(abi.Signatures[fn].Results) == 0 {
		return 0, nil
	}
	return stack[0], nil
}

func (t *Thread) callPtr(ctx context.Context, fn abi.Func, args ...uint64) (abi.Ptr, error) {
	r, err := t.call(ctx, fn, args...)
	return abi.Ptr(uint32(r)), err
}

// check rejects null handles and, with debug checks, handles the collector
// already reclaimed.
func (t *Thread) check(ctx context.Context, phase errors.Phase, v Value, what string) error {
	if v.IsNull() {
		return errors.NullHandle(phase, what)
	}
	if !t.rt.debug {
		return nil
	}
	live, err := t.call(ctx, abi.FnGCIsLive, uint64(v.ptr))
	if err != nil {
		return err
	}
	if live == 0 {
		return errors.DanglingHandle(phase, uint32(v.ptr))
	}
	return nil
}

func (t *Thread) allocator(ctx context.Context) *memory.AllocatorWrapper {
	lib := t.lib
	return &memory.AllocatorWrapper{Ctx: ctx, Malloc: lib.fns[abi.FnMalloc], FreeFn: lib.fns[abi.FnFree]}
}

// scratchBuf returns the thread's scratch block, grown to at least n bytes.
func (t *Thread) scratchBuf(ctx context.Context, n uint32) (uint32, error) {
	if err := t.usable(); err != nil {
		return 0, err
	}
	if n <= t.scratchSize && t.scratch != 0 {
		return t.scratch, nil
	}
	size := max(n, 256)
	alloc := t.allocator(ctx)
	p, err := alloc.Alloc(size)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseMarshal, errors.KindAllocation, err, "scratch buffer")
	}
	if t.scratch != 0 {
		alloc.Free(t.scratch)
	}
	t.scratch, t.scratchSize = p, size
	return p, nil
}

// withString places s in scratch memory and returns its address and length.
func (t *Thread) withString(ctx context.Context, s string) (uint64, uint64, error) {
	p, err := t.scratchBuf(ctx, uint32(len(s))+1)
	if err != nil {
		return 0, 0, err
	}
	if err := t.rt.mem.Write(p, append([]byte(s), 0)); err != nil {
		return 0, 0, errors.Wrap(errors.PhaseMarshal, errors.KindOutOfBounds, err, "write string")
	}
	return uint64(p), uint64(len(s)), nil
}

// Close releases the thread. Later operations on it fail with
// KindUninitialized. Closing twice is a no-op.
func (t *Thread) Close(ctx context.Context) error {
	if t.closed {
		return nil
	}
	t.closed = true
	if t.rt.closed.Load() {
		return nil
	}
	if t.scratch != 0 {
		t.allocator(ctx).Free(t.scratch)
		t.scratch, t.scratchSize = 0, 0
	}
	if _, err := t.lib.call(ctx, abi.FnReleaseThread, uint64(t.id)); err != nil {
		return err
	}
	t.rt.log.Debug("thread closed", zap.Uint32("thread", t.id))
	return nil
}
