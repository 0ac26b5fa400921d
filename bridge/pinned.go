package bridge

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/abi"
	"github.com/wippyai/hostbridge/errors"
)

// PinnedBuffer is a block of Float64 storage the host owns inside the
// embedded heap. The collector never moves or frees it, so it can back
// embedded arrays without copying. Release detaches every array wrapping
// it and frees it.
type PinnedBuffer struct {
	th       *Thread
	ptr      abi.Ptr
	n        int
	data     []float64
	wrappers []Value
	released bool
}

// PinBuffer allocates storage for n float64 values.
func (t *Thread) PinBuffer(ctx context.Context, n int) (*PinnedBuffer, error) {
	if err := t.usable(); err != nil {
		return nil, err
	}
	if n <= 0 || n > (1<<31-1)/abi.ElemSize {
		return nil, errors.InvalidInput(errors.PhaseMarshal, fmt.Sprintf("invalid pinned buffer length %d", n))
	}
	size := uint32(n * abi.ElemSize)
	p, err := t.allocator(ctx).Alloc(size)
	if err != nil {
		return nil, errors.New(errors.PhaseMarshal, errors.KindAllocation).
			Cause(err).
			Detail("failed to allocate %d bytes", size).
			Build()
	}
	data, err := t.rt.mem.Float64s(p, n)
	if err != nil {
		t.allocator(ctx).Free(p)
		return nil, errors.Wrap(errors.PhaseMarshal, errors.KindOutOfBounds, err, "pinned buffer view")
	}
	clear(data)
	return &PinnedBuffer{th: t, ptr: abi.Ptr(p), n: n, data: data}, nil
}

// WithPinned runs fn with a fresh pinned buffer and releases it on every
// exit path. A release error is returned when fn itself succeeded.
func (t *Thread) WithPinned(ctx context.Context, n int, fn func(*PinnedBuffer) error) (err error) {
	buf, err := t.PinBuffer(ctx, n)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := buf.Release(ctx); err == nil {
			err = rerr
		}
	}()
	return fn(buf)
}

// Float64s returns the buffer contents. The slice aliases the storage and
// is invalid after Release.
func (b *PinnedBuffer) Float64s() []float64 {
	if b.released {
		return nil
	}
	return b.data
}

// Ptr returns the buffer's heap address.
func (b *PinnedBuffer) Ptr() abi.Ptr { return b.ptr }

// Len returns the capacity in elements.
func (b *PinnedBuffer) Len() int { return b.n }

// Released reports whether the buffer was released or handed to the
// collector.
func (b *PinnedBuffer) Released() bool { return b.released }

func (b *PinnedBuffer) transfer() {
	b.released = true
	b.data = nil
	b.th.rt.log.Debug("pinned buffer transferred", zap.Uint32("ptr", uint32(b.ptr)))
}

// Release detaches the arrays that wrap the buffer, then frees it. Arrays
// that were already collected are skipped. Releasing twice is a no-op.
func (b *PinnedBuffer) Release(ctx context.Context) error {
	if b.released {
		return nil
	}
	if b.th.rt.closed.Load() {
		// the heap is gone with the runtime
		b.released = true
		b.data = nil
		return nil
	}
	detached := 0
	for _, w := range b.wrappers {
		ok, err := b.th.call(ctx, abi.FnArrayDetach, uint64(w.ptr), uint64(b.ptr))
		if err != nil {
			return err
		}
		detached += int(ok)
	}
	b.wrappers = nil
	b.th.allocator(ctx).Free(uint32(b.ptr))
	b.released = true
	b.data = nil
	b.th.rt.log.Debug("pinned buffer released",
		zap.Uint32("ptr", uint32(b.ptr)),
		zap.Int("elements", b.n),
		zap.Int("detached", detached))
	return nil
}
