package bridge

import (
	"context"
	"slices"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/hostbridge/abi"
	"github.com/wippyai/hostbridge/errors"
)

// library is the resolved native function table.
type library struct {
	fns [abi.NumFuncs]api.Function
}

// loadLibrary resolves every table entry by name and checks its signature.
func loadLibrary(mod api.Module) (*library, error) {
	if mod == nil {
		return nil, errors.NotFound(errors.PhaseLoad, "module", abi.LibraryModule)
	}
	lib := &library{}
	for fn := abi.Func(0); fn < abi.NumFuncs; fn++ {
		want := abi.Signatures[fn]
		f := mod.ExportedFunction(want.Name)
		if f == nil {
			return nil, errors.NotFound(errors.PhaseLoad, "symbol", want.Name)
		}
		def := f.Definition()
		if !sameTypes(def.ParamTypes(), want.Params) || !sameTypes(def.ResultTypes(), want.Results) {
			return nil, errors.New(errors.PhaseLoad, errors.KindTypeMismatch).
				Path(want.Name).
				Detail("signature %v -> %v, want %v -> %v",
					def.ParamTypes(), def.ResultTypes(), want.Params, want.Results).
				Build()
		}
		lib.fns[fn] = f
	}
	return lib, nil
}

func sameTypes(a, b []api.ValueType) bool {
	return len(a) == len(b) && (len(a) == 0 || slices.Equal(a, b))
}

// stackSize is the call stack length fn needs.
func stackSize(fn abi.Func) int {
	s := abi.Signatures[fn]
	return max(len(s.Params), len(s.Results))
}

// call invokes fn without a thread token. Only functions that do not need a
// thread may be called this way.
func (l *library) call(ctx context.Context, fn abi.Func, args ...uint64) ([]uint64, error) {
	res, err := l.fns[fn].Call(ctx, args...)
	if err != nil {
		return nil, nativeError(fn, err)
	}
	return res, nil
}

// nativeError keeps structured faults raised by the runtime and wraps
// anything else as a fault of the named symbol.
func nativeError(fn abi.Func, err error) error {
	var e *errors.Error
	if errors.As(err, &e) {
		return e
	}
	return errors.Fault(errors.PhaseInvoke, fn.String(), err)
}
