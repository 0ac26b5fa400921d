package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/hostbridge/config"
	"github.com/wippyai/hostbridge/errors"
)

func TestRootedArraySurvivesCollections(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Heap.GCThreshold = 4096 })
	roots := f.rt.Roots()

	arr, err := f.th.CopyIn(f.ctx, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	require.NoError(t, roots.Root(f.ctx, f.th, arr))

	data, err := f.th.ArrayDataPointer(f.ctx, arr)
	require.NoError(t, err)

	// allocate well past the threshold so automatic collections run
	for i := 0; i < 200; i++ {
		f.eval(t, "zeros(64)")
	}
	require.NoError(t, f.th.GC(f.ctx, GCFull))

	live, err := f.th.IsLive(f.ctx, arr)
	require.NoError(t, err)
	assert.True(t, live)

	again, err := f.th.ArrayDataPointer(f.ctx, arr)
	require.NoError(t, err)
	assert.Equal(t, data, again)

	out := make([]float64, 4)
	require.NoError(t, f.th.CopyOut(f.ctx, arr, out))
	assert.Equal(t, []float64{1, 2, 3, 4}, out)

	require.NoError(t, roots.Unroot(f.ctx, f.th, arr))
	require.NoError(t, f.th.GC(f.ctx, GCFull))
	live, err = f.th.IsLive(f.ctx, arr)
	require.NoError(t, err)
	assert.False(t, live)
}

func TestUnrootedValueIsCollected(t *testing.T) {
	f := newFixture(t)

	v := f.eval(t, "holder = WeakRef([1.0, 2.0])")
	require.False(t, v.IsNull())
	require.NoError(t, f.th.GC(f.ctx, GCFull))

	target := f.eval(t, "holder.value")
	name, err := f.th.TypeOf(f.ctx, target)
	require.NoError(t, err)
	assert.Equal(t, "Nothing", name)
}

func TestRootTableOperations(t *testing.T) {
	f := newFixture(t)
	roots := f.rt.Roots()
	assert.Equal(t, config.DefaultRootTable, roots.Name())

	base, err := roots.Len(f.ctx, f.th)
	require.NoError(t, err)

	v := f.eval(t, "[1, 2]")
	require.NoError(t, roots.Root(f.ctx, f.th, v))
	require.NoError(t, roots.Root(f.ctx, f.th, v), "idempotent")

	n, err := roots.Len(f.ctx, f.th)
	require.NoError(t, err)
	assert.Equal(t, base+1, n)

	ok, err := roots.Contains(f.ctx, f.th, v)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, roots.Unroot(f.ctx, f.th, v))
	require.NoError(t, roots.Unroot(f.ctx, f.th, v), "absent is a no-op")
	ok, err = roots.Contains(f.ctx, f.th, v)
	require.NoError(t, err)
	assert.False(t, ok)

	err = roots.Root(f.ctx, f.th, Value{})
	assert.True(t, errors.Is(err, errors.ErrNullHandle))

	// the table is a constant global of Main
	_, err = f.th.Eval(f.ctx, roots.Name()+" = 1")
	assert.Error(t, err)
}

func TestAdditionalRootTables(t *testing.T) {
	f := newFixture(t)

	a, err := f.th.NewRootTable(f.ctx)
	require.NoError(t, err)
	b, err := f.th.NewRootTable(f.ctx)
	require.NoError(t, err)
	assert.NotEqual(t, a.Name(), b.Name())

	v := f.eval(t, "[3.0]")
	require.NoError(t, a.Root(f.ctx, f.th, v))
	in, err := b.Contains(f.ctx, f.th, v)
	require.NoError(t, err)
	assert.False(t, in)
}

func TestScope(t *testing.T) {
	f := newFixture(t)
	roots := f.rt.Roots()
	scope := roots.Scope(f.th)

	var vals []Value
	for _, src := range []string{"[1.0]", "[2.0]", "\"str\""} {
		v, err := scope.Root(f.ctx, f.eval(t, src))
		require.NoError(t, err)
		vals = append(vals, v)
	}
	require.NoError(t, f.th.GC(f.ctx, GCFull))
	for _, v := range vals {
		live, err := f.th.IsLive(f.ctx, v)
		require.NoError(t, err)
		assert.True(t, live)
	}

	require.NoError(t, scope.Release(f.ctx))
	require.NoError(t, f.th.GC(f.ctx, GCFull))
	for _, v := range vals {
		live, err := f.th.IsLive(f.ctx, v)
		require.NoError(t, err)
		assert.False(t, live)
	}
}

func TestDebugChecksReportDanglingHandles(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Runtime.DebugChecks = true })

	v, err := f.th.BoxFloat64(f.ctx, 2.5)
	require.NoError(t, err)
	require.NoError(t, f.th.GC(f.ctx, GCFull))

	_, err = f.th.UnboxFloat64(f.ctx, v)
	assert.True(t, errors.Is(err, errors.ErrDanglingHandle))

	_, err = f.th.TypeOf(f.ctx, v)
	assert.Equal(t, errors.KindDanglingHandle, errors.KindOf(err))
}
