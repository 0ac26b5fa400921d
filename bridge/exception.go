package bridge

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/abi"
	"github.com/wippyai/hostbridge/errors"
)

// ExceptionOccurred returns the thread's pending exception, or the null
// Value. The state is sticky: successful calls do not clear it.
func (t *Thread) ExceptionOccurred(ctx context.Context) (Value, error) {
	p, err := t.callPtr(ctx, abi.FnExceptionOccurred)
	if err != nil {
		return Value{}, err
	}
	return Value{ptr: p}, nil
}

// ExceptionClear drops the pending exception.
func (t *Thread) ExceptionClear(ctx context.Context) error {
	_, err := t.call(ctx, abi.FnExceptionClear)
	return err
}

// TypeOf returns the full type name of v, e.g. "Array{Int64, 1}".
func (t *Thread) TypeOf(ctx context.Context, v Value) (string, error) {
	return t.typeString(ctx, abi.FnTypeofStr, v)
}

// TypeName returns the unqualified container name of v's type, e.g. "Array".
func (t *Thread) TypeName(ctx context.Context, v Value) (string, error) {
	return t.typeString(ctx, abi.FnTypenameStr, v)
}

func (t *Thread) typeString(ctx context.Context, fn abi.Func, v Value) (string, error) {
	if err := t.check(ctx, errors.PhaseException, v, "value"); err != nil {
		return "", err
	}
	p, err := t.call(ctx, fn, uint64(v.ptr))
	if err != nil {
		return "", err
	}
	s, err := t.rt.mem.ReadCString(uint32(p))
	if err != nil {
		return "", errors.Wrap(errors.PhaseException, errors.KindOutOfBounds, err, "read type name")
	}
	return s, nil
}

// ExceptionMessage returns the msg field of an exception value.
func (t *Thread) ExceptionMessage(ctx context.Context, exc Value) (string, error) {
	msg, err := t.GetField(ctx, exc, "msg")
	if err != nil {
		return "", err
	}
	if msg.IsNull() {
		// the lookup raised instead; that exception replaced exc
		return "", errors.New(errors.PhaseException, errors.KindNotFound).
			Detail("exception has no msg field").
			Build()
	}
	return t.StringOf(ctx, msg)
}

// StringOf copies a String or Symbol value into a Go string.
func (t *Thread) StringOf(ctx context.Context, v Value) (string, error) {
	if err := t.check(ctx, errors.PhaseMarshal, v, "string"); err != nil {
		return "", err
	}
	p, err := t.call(ctx, abi.FnStringPtr, uint64(v.ptr))
	if err != nil {
		return "", err
	}
	n, err := t.rt.mem.ReadU32(uint32(p) - abi.StringDataOffset + abi.StringLengthOffset)
	if err != nil {
		return "", errors.Wrap(errors.PhaseMarshal, errors.KindOutOfBounds, err, "read string length")
	}
	b, err := t.rt.mem.Read(uint32(p), n)
	if err != nil {
		return "", errors.Wrap(errors.PhaseMarshal, errors.KindOutOfBounds, err, "read string")
	}
	return string(b), nil
}

// CheckException translates a pending exception into a KindEvaluation error
// carrying its type and message, and clears it. It returns nil when nothing
// is pending.
func (t *Thread) CheckException(ctx context.Context) error {
	exc, err := t.ExceptionOccurred(ctx)
	if err != nil || exc.IsNull() {
		return err
	}
	typ, err := t.TypeOf(ctx, exc)
	if err != nil {
		return err
	}
	msg, err := t.ExceptionMessage(ctx, exc)
	if err != nil {
		msg = typ
	}
	if err := t.ExceptionClear(ctx); err != nil {
		return err
	}
	t.rt.log.Debug("exception cleared",
		zap.Uint32("thread", t.id),
		zap.String("type", typ),
		zap.String("message", msg))
	return errors.Evaluation(typ, msg)
}
