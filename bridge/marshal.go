package bridge

import (
	"context"
	"math"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/hostbridge/abi"
	"github.com/wippyai/hostbridge/errors"
)

// BoxFloat64 allocates a Float64 in the embedded heap. The result is not
// rooted.
func (t *Thread) BoxFloat64(ctx context.Context, x float64) (Value, error) {
	return t.box(ctx, abi.FnBoxFloat64, api.EncodeF64(x))
}

// BoxInt64 allocates an Int64 in the embedded heap.
func (t *Thread) BoxInt64(ctx context.Context, x int64) (Value, error) {
	return t.box(ctx, abi.FnBoxInt64, uint64(x))
}

func (t *Thread) box(ctx context.Context, fn abi.Func, bits uint64) (Value, error) {
	p, err := t.callPtr(ctx, fn, bits)
	if err != nil {
		return Value{}, err
	}
	if p.IsNull() {
		return Value{}, t.pendingAsError(ctx, errors.PhaseMarshal, errors.KindAllocation)
	}
	return Value{ptr: p}, nil
}

// UnboxFloat64 reads a boxed Float64. Any other type fails with
// KindTypeMismatch; there is no numeric conversion.
func (t *Thread) UnboxFloat64(ctx context.Context, v Value) (float64, error) {
	if err := t.expectType(ctx, v, t.rt.float64Type, "float64"); err != nil {
		return 0, err
	}
	r, err := t.call(ctx, abi.FnUnboxFloat64, uint64(v.ptr))
	if err != nil {
		return math.NaN(), err
	}
	return api.DecodeF64(r), nil
}

// UnboxInt64 reads a boxed Int64.
func (t *Thread) UnboxInt64(ctx context.Context, v Value) (int64, error) {
	if err := t.expectType(ctx, v, t.rt.int64Type, "int64"); err != nil {
		return 0, err
	}
	r, err := t.call(ctx, abi.FnUnboxInt64, uint64(v.ptr))
	if err != nil {
		return 0, err
	}
	return int64(r), nil
}

// IsTrue reports whether v is the true singleton.
func (t *Thread) IsTrue(ctx context.Context, v Value) (bool, error) {
	if err := t.check(ctx, errors.PhaseMarshal, v, "value"); err != nil {
		return false, err
	}
	return v == t.rt.trueVal, nil
}

// expectType compares v's header type with want.
func (t *Thread) expectType(ctx context.Context, v Value, want Type, goType string) error {
	if err := t.usable(); err != nil {
		return err
	}
	if err := t.check(ctx, errors.PhaseMarshal, v, goType); err != nil {
		return err
	}
	typ, err := t.typePtrOf(v)
	if err != nil {
		return err
	}
	if typ == want.ptr {
		return nil
	}
	name, err := t.TypeOf(ctx, v)
	if err != nil {
		return err
	}
	return errors.TypeMismatch(errors.PhaseMarshal, goType, name)
}

// pendingAsError turns a pending exception raised by a marshaling call into
// a host error and clears it.
func (t *Thread) pendingAsError(ctx context.Context, phase errors.Phase, kind errors.Kind) error {
	err := t.CheckException(ctx)
	if err == nil {
		return errors.New(phase, kind).Detail("native call returned null").Build()
	}
	var e *errors.Error
	if errors.As(err, &e) && e.Kind == errors.KindEvaluation {
		return errors.New(phase, kind).
			RuntimeType(e.RuntimeType).
			Detail("%s", e.Detail).
			Cause(err).
			Build()
	}
	return err
}
