package bridge

import (
	"context"
	"fmt"

	"github.com/wippyai/hostbridge/abi"
	"github.com/wippyai/hostbridge/errors"
)

var callFns = [...]abi.Func{abi.FnCall0, abi.FnCall1, abi.FnCall2, abi.FnCall3}

// Call0 calls fn with no arguments. The result is not rooted. A failure
// inside fn yields the null Value and a pending exception, not an error.
func (t *Thread) Call0(ctx context.Context, fn Value) (Value, error) {
	return t.Call(ctx, fn)
}

// Call1 calls fn with one argument.
func (t *Thread) Call1(ctx context.Context, fn, a Value) (Value, error) {
	return t.Call(ctx, fn, a)
}

// Call2 calls fn with two arguments.
func (t *Thread) Call2(ctx context.Context, fn, a, b Value) (Value, error) {
	return t.Call(ctx, fn, a, b)
}

// Call3 calls fn with three arguments.
func (t *Thread) Call3(ctx context.Context, fn, a, b, c Value) (Value, error) {
	return t.Call(ctx, fn, a, b, c)
}

// Call calls fn with any number of arguments. Up to three go through the
// fixed-arity entries; more are passed as an argument vector in scratch
// memory.
func (t *Thread) Call(ctx context.Context, fn Value, args ...Value) (Value, error) {
	if err := t.usable(); err != nil {
		return Value{}, err
	}
	if err := t.check(ctx, errors.PhaseInvoke, fn, "callable"); err != nil {
		return Value{}, err
	}
	for i, a := range args {
		if err := t.check(ctx, errors.PhaseInvoke, a, fmt.Sprintf("argument %d", i+1)); err != nil {
			return Value{}, err
		}
	}

	if len(args) < len(callFns) {
		var raw [maxStack]uint64
		raw[0] = uint64(fn.ptr)
		for i, a := range args {
			raw[i+1] = uint64(a.ptr)
		}
		p, err := t.callPtr(ctx, callFns[len(args)], raw[:len(args)+1]...)
		return Value{ptr: p}, err
	}

	argv, err := t.scratchBuf(ctx, uint32(4*len(args)))
	if err != nil {
		return Value{}, err
	}
	for i, a := range args {
		if err := t.rt.mem.WriteU32(argv+uint32(4*i), uint32(a.ptr)); err != nil {
			return Value{}, errors.Wrap(errors.PhaseInvoke, errors.KindOutOfBounds, err, "write argument vector")
		}
	}
	p, err := t.callPtr(ctx, abi.FnCall, uint64(fn.ptr), uint64(argv), uint64(len(args)))
	return Value{ptr: p}, err
}

// Symbol interns name.
func (t *Thread) Symbol(ctx context.Context, name string) (Value, error) {
	s, n, err := t.withString(ctx, name)
	if err != nil {
		return Value{}, err
	}
	p, err := t.callPtr(ctx, abi.FnSymbol, s, n)
	return Value{ptr: p}, err
}

// GetGlobal looks name up in module and its parents. An unbound name
// yields the null Value.
func (t *Thread) GetGlobal(ctx context.Context, module Value, name string) (Value, error) {
	if err := t.check(ctx, errors.PhaseInvoke, module, "module"); err != nil {
		return Value{}, err
	}
	sym, err := t.Symbol(ctx, name)
	if err != nil {
		return Value{}, err
	}
	p, err := t.callPtr(ctx, abi.FnGetGlobal, uint64(module.ptr), uint64(sym.ptr))
	return Value{ptr: p}, err
}

// MustGlobal is GetGlobal that reports an unbound name as KindNotFound.
func (t *Thread) MustGlobal(ctx context.Context, module Value, name string) (Value, error) {
	v, err := t.GetGlobal(ctx, module, name)
	if err != nil {
		return Value{}, err
	}
	if v.IsNull() {
		return Value{}, errors.NotFound(errors.PhaseInvoke, "global", name)
	}
	return v, nil
}

// SetGlobal binds name in module. Rebinding a constant leaves an
// ErrorException pending.
func (t *Thread) SetGlobal(ctx context.Context, module Value, name string, v Value) error {
	if err := t.check(ctx, errors.PhaseInvoke, module, "module"); err != nil {
		return err
	}
	if err := t.check(ctx, errors.PhaseInvoke, v, "value"); err != nil {
		return err
	}
	sym, err := t.Symbol(ctx, name)
	if err != nil {
		return err
	}
	_, err = t.call(ctx, abi.FnSetGlobal, uint64(module.ptr), uint64(sym.ptr), uint64(v.ptr))
	return err
}

// GetField reads a named field. A missing field yields the null Value and a
// pending exception.
func (t *Thread) GetField(ctx context.Context, v Value, name string) (Value, error) {
	if err := t.check(ctx, errors.PhaseInvoke, v, "value"); err != nil {
		return Value{}, err
	}
	s, n, err := t.withString(ctx, name)
	if err != nil {
		return Value{}, err
	}
	p, err := t.callPtr(ctx, abi.FnGetField, uint64(v.ptr), s, n)
	return Value{ptr: p}, err
}

// GetNthField reads field i, zero based.
func (t *Thread) GetNthField(ctx context.Context, v Value, i int) (Value, error) {
	if err := t.check(ctx, errors.PhaseInvoke, v, "value"); err != nil {
		return Value{}, err
	}
	p, err := t.callPtr(ctx, abi.FnGetNthField, uint64(v.ptr), uint64(uint32(int32(i))))
	return Value{ptr: p}, err
}
