package bridge

import (
	"context"
	"fmt"

	"github.com/wippyai/hostbridge/abi"
	"github.com/wippyai/hostbridge/errors"
)

// Value is an unowned reference to an object in the embedded heap. The zero
// Value is null. A Value stays valid only while something in the runtime
// roots it: a global binding, a RootTable entry or a pending exception.
// There is no Free; unrooted values are reclaimed by the embedded collector.
type Value struct {
	ptr abi.Ptr
}

// ValueAt wraps a raw heap address.
func ValueAt(p abi.Ptr) Value { return Value{ptr: p} }

// Ptr returns the heap address.
func (v Value) Ptr() abi.Ptr { return v.ptr }

// IsNull reports whether v is the null handle.
func (v Value) IsNull() bool { return v.ptr.IsNull() }

func (v Value) String() string {
	if v.IsNull() {
		return "Value(null)"
	}
	return fmt.Sprintf("Value(%#x)", uint32(v.ptr))
}

// Type is a reference to a DataType. Types are never collected.
type Type struct {
	ptr abi.Ptr
}

// Ptr returns the heap address of the DataType.
func (t Type) Ptr() abi.Ptr { return t.ptr }

// Value returns the type as a callable value, e.g. to construct instances.
func (t Type) Value() Value { return Value{ptr: t.ptr} }

// IsNull reports whether t is unset.
func (t Type) IsNull() bool { return t.ptr.IsNull() }

// rank returns the array rank of an array type, 0 otherwise.
func (t Type) rank(th *Thread) (int, error) {
	r, err := th.rt.mem.ReadU32(uint32(t.ptr + abi.TypeRankOffset))
	if err != nil {
		return 0, errors.Wrap(errors.PhaseMarshal, errors.KindOutOfBounds, err, "read type rank")
	}
	return int(r), nil
}

// typePtrOf reads the type pointer from v's header without a native call.
func (t *Thread) typePtrOf(v Value) (abi.Ptr, error) {
	p, err := t.rt.mem.ReadU32(uint32(abi.Header(v.ptr) + abi.HeaderTypeOffset))
	if err != nil {
		return abi.Null, errors.Wrap(errors.PhaseMarshal, errors.KindOutOfBounds, err, "read object header")
	}
	return abi.Ptr(p), nil
}

// EvalString evaluates source text in Main. On an embedded failure it
// returns the null Value and a nil error; the exception stays pending until
// ExceptionClear. Errors are returned only for host-level failures.
func (t *Thread) EvalString(ctx context.Context, src string) (Value, error) {
	p, n, err := t.withString(ctx, src)
	if err != nil {
		return Value{}, err
	}
	r, err := t.callPtr(ctx, abi.FnEvalString, p, n)
	if err != nil {
		return Value{}, err
	}
	return Value{ptr: r}, nil
}

// Eval is EvalString followed by CheckException. A pending exception is
// returned as a KindEvaluation error and cleared.
func (t *Thread) Eval(ctx context.Context, src string) (Value, error) {
	v, err := t.EvalString(ctx, src)
	if err != nil {
		return Value{}, err
	}
	if err := t.CheckException(ctx); err != nil {
		return Value{}, err
	}
	return v, nil
}

// ResolveSymbol returns the object a data symbol such as jl_main_module
// points to. Results are cached on the runtime.
func (t *Thread) ResolveSymbol(ctx context.Context, symbol string) (Value, error) {
	if p, ok := t.rt.cachedSymbol(symbol); ok {
		return Value{ptr: p}, nil
	}
	s, n, err := t.withString(ctx, symbol)
	if err != nil {
		return Value{}, err
	}
	// jl_dlsym needs no thread, but the scratch block belongs to this one
	if err := t.usable(); err != nil {
		return Value{}, err
	}
	res, err := t.lib.call(ctx, abi.FnDlsym, s, n)
	if err != nil {
		return Value{}, err
	}
	if res[0] == 0 {
		return Value{}, errors.NotFound(errors.PhaseLoad, "symbol", symbol)
	}
	cell, err := t.rt.mem.ReadU32(uint32(res[0]))
	if err != nil {
		return Value{}, errors.Wrap(errors.PhaseLoad, errors.KindOutOfBounds, err, "read symbol cell")
	}
	t.rt.cacheSymbol(symbol, abi.Ptr(cell))
	return Value{ptr: abi.Ptr(cell)}, nil
}

// ResolveType resolves a data symbol that names a DataType.
func (t *Thread) ResolveType(ctx context.Context, symbol string) (Type, error) {
	v, err := t.ResolveSymbol(ctx, symbol)
	if err != nil {
		return Type{}, err
	}
	name, err := t.TypeOf(ctx, v)
	if err != nil {
		return Type{}, err
	}
	if name != "DataType" {
		return Type{}, errors.New(errors.PhaseLoad, errors.KindTypeMismatch).
			Path(symbol).
			GoType("bridge.Type").
			RuntimeType(name).
			Build()
	}
	return Type{ptr: v.ptr}, nil
}

// Float64Type returns the cached Float64 DataType.
func (t *Thread) Float64Type() Type { return t.rt.float64Type }

// Int64Type returns the cached Int64 DataType.
func (t *Thread) Int64Type() Type { return t.rt.int64Type }

// MainModule returns the Main module.
func (t *Thread) MainModule(ctx context.Context) (Value, error) {
	return t.ResolveSymbol(ctx, abi.SymMainModule)
}

// BaseModule returns the Base module.
func (t *Thread) BaseModule(ctx context.Context) (Value, error) {
	return t.ResolveSymbol(ctx, abi.SymBaseModule)
}

// Nothing returns the nothing singleton.
func (t *Thread) Nothing(ctx context.Context) (Value, error) {
	return t.ResolveSymbol(ctx, abi.SymNothing)
}
