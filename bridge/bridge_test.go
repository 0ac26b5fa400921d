package bridge

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/hostbridge/abi"
	"github.com/wippyai/hostbridge/config"
	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/internal/wasm"
)

type fixture struct {
	ctx context.Context
	rt  *Runtime
	th  *Thread
	out *bytes.Buffer
}

func newFixture(t *testing.T, tweak ...func(*config.Config)) *fixture {
	t.Helper()
	ctx := context.Background()
	cfg := config.Default()
	cfg.Heap.InitialPages = 4
	cfg.Heap.MaxPages = 256
	out := &bytes.Buffer{}
	cfg.Stdout = out
	for _, f := range tweak {
		f(cfg)
	}

	rt, err := Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Shutdown(ctx, 0) })

	th, err := rt.InitThread(ctx)
	require.NoError(t, err)
	return &fixture{ctx: ctx, rt: rt, th: th, out: out}
}

func (f *fixture) eval(t *testing.T, src string) Value {
	t.Helper()
	v, err := f.th.Eval(f.ctx, src)
	require.NoError(t, err, src)
	return v
}

func TestStarter(t *testing.T) {
	f := newFixture(t)

	v := f.eval(t, "sin(2.34)")
	x, err := f.th.UnboxFloat64(f.ctx, v)
	require.NoError(t, err)
	assert.Equal(t, math.Sin(2.34), x)

	_, err = f.th.Eval(f.ctx, "println(sin(2.34))")
	require.NoError(t, err)
	assert.Contains(t, f.out.String(), "0.7184647930691263")
}

func TestBoxRoundTrip(t *testing.T) {
	f := newFixture(t)

	for _, x := range []float64{
		0, math.Copysign(0, -1), 1, -1.5, math.Pi,
		math.SmallestNonzeroFloat64, math.MaxFloat64, -math.MaxFloat64,
		math.Inf(1), math.Inf(-1),
	} {
		v, err := f.th.BoxFloat64(f.ctx, x)
		require.NoError(t, err)
		got, err := f.th.UnboxFloat64(f.ctx, v)
		require.NoError(t, err)
		assert.Equal(t, math.Float64bits(x), math.Float64bits(got), "%v", x)
	}

	for _, x := range []int64{0, 1, -1, math.MaxInt64, math.MinInt64} {
		v, err := f.th.BoxInt64(f.ctx, x)
		require.NoError(t, err)
		got, err := f.th.UnboxInt64(f.ctx, v)
		require.NoError(t, err)
		assert.Equal(t, x, got)
	}
}

func TestUnboxTypeMismatch(t *testing.T) {
	f := newFixture(t)

	arr := f.eval(t, "[1, 2, 3]")
	_, err := f.th.UnboxFloat64(f.ctx, arr)
	require.Error(t, err)

	var e *errors.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errors.KindTypeMismatch, e.Kind)
	assert.Equal(t, "Array{Int64, 1}", e.RuntimeType)

	i := f.eval(t, "3")
	_, err = f.th.UnboxFloat64(f.ctx, i)
	assert.True(t, errors.Is(err, errors.ErrTypeMismatch), "no implicit conversion")

	_, err = f.th.UnboxFloat64(f.ctx, Value{})
	assert.True(t, errors.Is(err, errors.ErrNullHandle))
}

func TestTypeOf(t *testing.T) {
	f := newFixture(t)

	v := f.eval(t, "[1, 2, 3]")
	full, err := f.th.TypeOf(f.ctx, v)
	require.NoError(t, err)
	assert.Equal(t, "Array{Int64, 1}", full)

	name, err := f.th.TypeName(f.ctx, v)
	require.NoError(t, err)
	assert.Equal(t, "Array", name)
}

func TestResolveType(t *testing.T) {
	f := newFixture(t)

	typ, err := f.th.ResolveType(f.ctx, abi.SymFloat64Type)
	require.NoError(t, err)
	assert.Equal(t, f.th.Float64Type(), typ)

	again, err := f.th.ResolveType(f.ctx, abi.SymFloat64Type)
	require.NoError(t, err)
	assert.Equal(t, typ, again)

	_, err = f.th.ResolveType(f.ctx, "jl_no_such_type")
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))

	_, err = f.th.ResolveType(f.ctx, abi.SymMainModule)
	assert.Equal(t, errors.KindTypeMismatch, errors.KindOf(err))

	vec, err := f.th.ApplyArrayType(f.ctx, typ, 1)
	require.NoError(t, err)
	full, err := f.th.TypeOf(f.ctx, f.eval(t, "[1.0]"))
	require.NoError(t, err)
	assert.Equal(t, "Array{Float64, 1}", full)
	typName, err := f.th.TypeOf(f.ctx, vec.Value())
	require.NoError(t, err)
	assert.Equal(t, "DataType", typName)

	_, err = f.th.ApplyArrayType(f.ctx, typ, 4)
	assert.Equal(t, errors.KindUnsupported, errors.KindOf(err))
}

func TestLibraryResolvesEveryFunction(t *testing.T) {
	f := newFixture(t)
	for fn := abi.Func(0); fn < abi.NumFuncs; fn++ {
		assert.NotNil(t, f.rt.lib.fns[fn], fn.String())
	}
	_, err := loadLibrary(nil)
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
}

func TestLoadLibraryChecksExports(t *testing.T) {
	f := newFixture(t)
	native := f.rt.wz.Module(abi.NativeModule)
	require.NotNil(t, native)

	// a table with only jl_init re-exported
	partial := wasm.NewSynthModuleBuilder(abi.NativeModule)
	initSig := abi.Signatures[abi.FnInit]
	partial.AddFunc(initSig.Name, initSig.Params, initSig.Results)
	mod, err := f.rt.wz.InstantiateWithConfig(f.ctx, partial.Build(),
		wazero.NewModuleConfig().WithName("partial"))
	require.NoError(t, err)
	_, err = loadLibrary(mod)
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
	assert.Contains(t, err.Error(), abi.FnAdoptThread.String())

	// same names, wrong signature
	wrong := wasm.NewSynthModuleBuilder("wrong_native")
	for fn := abi.Func(0); fn < abi.NumFuncs; fn++ {
		sig := abi.Signatures[fn]
		wrong.AddFunc(sig.Name, nil, nil)
	}
	host := f.rt.wz.NewHostModuleBuilder("wrong_native")
	for fn := abi.Func(0); fn < abi.NumFuncs; fn++ {
		host.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(func(context.Context, api.Module, []uint64) {}), nil, nil).
			Export(abi.Signatures[fn].Name)
	}
	_, err = host.Instantiate(f.ctx)
	require.NoError(t, err)
	mod, err = f.rt.wz.InstantiateWithConfig(f.ctx, wrong.Build(),
		wazero.NewModuleConfig().WithName("wrong"))
	require.NoError(t, err)
	_, err = loadLibrary(mod)
	assert.Equal(t, errors.KindTypeMismatch, errors.KindOf(err))
}
