package bridge

import (
	"context"

	"github.com/wippyai/hostbridge/abi"
	"github.com/wippyai/hostbridge/errors"
)

// GCMode selects the collection kind for GC.
type GCMode uint32

const (
	GCAuto        GCMode = abi.GCAuto
	GCFull        GCMode = abi.GCFull
	GCIncremental GCMode = abi.GCIncremental
)

// GC runs the embedded collector. Every unrooted value may be reclaimed.
func (t *Thread) GC(ctx context.Context, mode GCMode) error {
	_, err := t.call(ctx, abi.FnGCCollect, uint64(mode))
	return err
}

// GCEnable switches automatic collection and returns the previous state.
func (t *Thread) GCEnable(ctx context.Context, on bool) (bool, error) {
	arg := uint64(0)
	if on {
		arg = 1
	}
	prev, err := t.call(ctx, abi.FnGCEnable, arg)
	return prev != 0, err
}

// IsLive reports whether v still names a live object.
func (t *Thread) IsLive(ctx context.Context, v Value) (bool, error) {
	if v.IsNull() {
		return false, errors.NullHandle(errors.PhaseMarshal, "value")
	}
	live, err := t.call(ctx, abi.FnGCIsLive, uint64(v.ptr))
	return live != 0, err
}

// HeapBytes returns the bytes held by live heap blocks.
func (t *Thread) HeapBytes(ctx context.Context) (uint64, error) {
	return t.call(ctx, abi.FnGCTotalBytes)
}
