package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/hostbridge/errors"
)

func TestAllocArray(t *testing.T) {
	f := newFixture(t)
	mat, err := f.th.ApplyArrayType(f.ctx, f.th.Float64Type(), 2)
	require.NoError(t, err)

	m, err := f.th.AllocArray(f.ctx, mat, 3, 2)
	require.NoError(t, err)
	require.NoError(t, f.rt.Roots().Root(f.ctx, f.th, m))

	dims, err := f.th.ArrayDims(f.ctx, m)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, dims)

	n, err := f.th.ArrayLength(f.ctx, m)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	view, err := f.th.Float64s(f.ctx, m)
	require.NoError(t, err)
	assert.Equal(t, make([]float64, 6), view)

	// column-major: element (1, 2) is index 3
	view[3] = 7
	require.NoError(t, f.th.SetGlobal(f.ctx, mustMain(t, f), "m", m))
	assert.Equal(t, 7.0, unboxF(t, f, f.eval(t, "m[1, 2]")))

	data, err := f.th.ArrayDataPointer(f.ctx, m)
	require.NoError(t, err)
	first, err := f.rt.Memory().ReadF64(uint32(data) + 3*8)
	require.NoError(t, err)
	assert.Equal(t, 7.0, first)

	_, err = f.th.AllocArray(f.ctx, mat, 4)
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))
	_, err = f.th.AllocArray(f.ctx, f.th.Float64Type(), 4)
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))
}

func TestFloat64sRejectsOtherArrays(t *testing.T) {
	f := newFixture(t)

	_, err := f.th.Float64s(f.ctx, f.eval(t, "[1, 2, 3]"))
	assert.Equal(t, errors.KindTypeMismatch, errors.KindOf(err))

	_, err = f.th.Float64s(f.ctx, f.eval(t, "1.5"))
	assert.Equal(t, errors.KindTypeMismatch, errors.KindOf(err))

	_, err = f.th.ArrayLength(f.ctx, f.eval(t, "1.5"))
	assert.Equal(t, errors.KindTypeMismatch, errors.KindOf(err))
}

func TestCopyInOut(t *testing.T) {
	f := newFixture(t)

	v, err := f.th.CopyIn(f.ctx, []float64{1, 2, 3, 4, 5, 6}, 2, 3)
	require.NoError(t, err)
	full, err := f.th.TypeOf(f.ctx, v)
	require.NoError(t, err)
	assert.Equal(t, "Array{Float64, 2}", full)

	out := make([]float64, 6)
	require.NoError(t, f.th.CopyOut(f.ctx, v, out))
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, out)

	err = f.th.CopyOut(f.ctx, v, make([]float64, 5))
	assert.True(t, errors.Is(err, errors.ErrOutOfBounds))

	_, err = f.th.CopyIn(f.ctx, []float64{1, 2, 3}, 2, 2)
	assert.True(t, errors.Is(err, errors.ErrOutOfBounds))
}

func TestZeroCopyReverse(t *testing.T) {
	f := newFixture(t)
	vec, err := f.th.ApplyArrayType(f.ctx, f.th.Float64Type(), 1)
	require.NoError(t, err)
	base, err := f.th.BaseModule(f.ctx)
	require.NoError(t, err)
	reverse, err := f.th.MustGlobal(f.ctx, base, "reverse!")
	require.NoError(t, err)

	err = f.th.WithPinned(f.ctx, 10, func(buf *PinnedBuffer) error {
		data := buf.Float64s()
		for i := range data {
			data[i] = float64(i)
		}
		arr, err := f.th.WrapHostBuffer(f.ctx, vec, buf, false)
		if err != nil {
			return err
		}
		ptr, err := f.th.ArrayDataPointer(f.ctx, arr)
		require.NoError(t, err)
		assert.Equal(t, buf.Ptr(), ptr)

		r, err := f.th.Call1(f.ctx, reverse, arr)
		require.NoError(t, err)
		require.False(t, r.IsNull())
		require.NoError(t, f.th.CheckException(f.ctx))

		assert.Equal(t, []float64{9, 8, 7, 6, 5, 4, 3, 2, 1, 0}, data)
		return nil
	})
	require.NoError(t, err)
}

func TestPinnedReleaseDetaches(t *testing.T) {
	f := newFixture(t)
	vec, err := f.th.ApplyArrayType(f.ctx, f.th.Float64Type(), 1)
	require.NoError(t, err)

	buf, err := f.th.PinBuffer(f.ctx, 4)
	require.NoError(t, err)
	arr, err := f.th.WrapHostBuffer(f.ctx, vec, buf, false)
	require.NoError(t, err)
	require.NoError(t, f.rt.Roots().Root(f.ctx, f.th, arr))

	require.NoError(t, buf.Release(f.ctx))
	require.NoError(t, buf.Release(f.ctx), "second release")
	assert.True(t, buf.Released())
	assert.Nil(t, buf.Float64s())

	n, err := f.th.ArrayLength(f.ctx, arr)
	require.NoError(t, err)
	assert.Zero(t, n, "wrapper no longer references freed storage")

	_, err = f.th.WrapHostBuffer(f.ctx, vec, buf, false)
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))
}

func TestOwnershipTransferRejectedWhileWrapped(t *testing.T) {
	f := newFixture(t)
	vec, err := f.th.ApplyArrayType(f.ctx, f.th.Float64Type(), 1)
	require.NoError(t, err)

	buf := mustPin(t, f, 4)
	copy(buf.Float64s(), []float64{1, 2, 3, 4})
	w1, err := f.th.WrapHostBuffer(f.ctx, vec, buf, false)
	require.NoError(t, err)
	require.NoError(t, f.rt.Roots().Root(f.ctx, f.th, w1))

	_, err = f.th.WrapHostBuffer(f.ctx, vec, buf, true)
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))
	assert.False(t, buf.Released(), "buffer still owned by the host")

	// storage stays reserved for w1 across a collection and new allocations
	require.NoError(t, f.th.GC(f.ctx, GCFull))
	other, err := f.th.CopyIn(f.ctx, []float64{100, 200, 300, 400})
	require.NoError(t, err)
	p1, err := f.th.ArrayDataPointer(f.ctx, w1)
	require.NoError(t, err)
	p2, err := f.th.ArrayDataPointer(f.ctx, other)
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)

	view, err := f.th.Float64s(f.ctx, w1)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4}, view)
	require.NoError(t, f.rt.Roots().Unroot(f.ctx, f.th, w1))
}

func TestWrapHostBufferMatrix(t *testing.T) {
	f := newFixture(t)
	mat, err := f.th.ApplyArrayType(f.ctx, f.th.Float64Type(), 2)
	require.NoError(t, err)

	buf, err := f.th.PinBuffer(f.ctx, 6)
	require.NoError(t, err)
	copy(buf.Float64s(), []float64{1, 2, 3, 4, 5, 6})

	arr, err := f.th.WrapHostBuffer(f.ctx, mat, buf, true, 2, 3)
	require.NoError(t, err)
	assert.True(t, buf.Released(), "ownership moved to the runtime")
	require.NoError(t, buf.Release(f.ctx))

	dims, err := f.th.ArrayDims(f.ctx, arr)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, dims)

	require.NoError(t, f.th.SetGlobal(f.ctx, mustMain(t, f), "w", arr))
	assert.Equal(t, 21.0, unboxF(t, f, f.eval(t, "sum(w)")))

	_, err = f.th.WrapHostBuffer(f.ctx, mat, mustPin(t, f, 2), false, 2, 3)
	assert.True(t, errors.Is(err, errors.ErrOutOfBounds))
}

func TestLinearSolve(t *testing.T) {
	f := newFixture(t)
	scope := f.rt.Roots().Scope(f.th)
	defer func() { require.NoError(t, scope.Release(f.ctx)) }()

	// A = [4 1; 2 3] in column-major order
	a, err := f.th.CopyIn(f.ctx, []float64{4, 2, 1, 3}, 2, 2)
	require.NoError(t, err)
	_, err = scope.Root(f.ctx, a)
	require.NoError(t, err)

	base, err := f.th.BaseModule(f.ctx)
	require.NoError(t, err)
	solve, err := f.th.MustGlobal(f.ctx, base, "\\")
	require.NoError(t, err)
	vec, err := f.th.ApplyArrayType(f.ctx, f.th.Float64Type(), 1)
	require.NoError(t, err)

	err = f.th.WithPinned(f.ctx, 2, func(buf *PinnedBuffer) error {
		copy(buf.Float64s(), []float64{1, 2})
		b, err := f.th.WrapHostBuffer(f.ctx, vec, buf, false)
		require.NoError(t, err)

		x, err := f.th.Call2(f.ctx, solve, a, b)
		require.NoError(t, err)
		require.NoError(t, f.th.CheckException(f.ctx))

		out := make([]float64, 2)
		require.NoError(t, f.th.CopyOut(f.ctx, x, out))
		assert.InDelta(t, 0.1, out[0], 1e-12)
		assert.InDelta(t, 0.6, out[1], 1e-12)
		return nil
	})
	require.NoError(t, err)
}

func mustMain(t *testing.T, f *fixture) Value {
	t.Helper()
	m, err := f.th.MainModule(f.ctx)
	require.NoError(t, err)
	return m
}

func mustPin(t *testing.T, f *fixture, n int) *PinnedBuffer {
	t.Helper()
	buf, err := f.th.PinBuffer(f.ctx, n)
	require.NoError(t, err)
	t.Cleanup(func() { _ = buf.Release(f.ctx) })
	return buf
}

func unboxF(t *testing.T, f *fixture, v Value) float64 {
	t.Helper()
	x, err := f.th.UnboxFloat64(f.ctx, v)
	require.NoError(t, err)
	return x
}
