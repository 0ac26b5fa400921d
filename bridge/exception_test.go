package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/hostbridge/errors"
)

func TestExceptionIsolation(t *testing.T) {
	f := newFixture(t)

	v, err := f.th.EvalString(f.ctx, "this_function_does_not_exist()")
	require.NoError(t, err, "embedded failures are not host errors")
	assert.True(t, v.IsNull())

	exc, err := f.th.ExceptionOccurred(f.ctx)
	require.NoError(t, err)
	require.False(t, exc.IsNull())
	name, err := f.th.TypeOf(f.ctx, exc)
	require.NoError(t, err)
	assert.Equal(t, "UndefVarError", name)
	msg, err := f.th.ExceptionMessage(f.ctx, exc)
	require.NoError(t, err)
	assert.Contains(t, msg, "this_function_does_not_exist")

	// still pending after a successful evaluation
	two, err := f.th.EvalString(f.ctx, "1 + 1")
	require.NoError(t, err)
	n, err := f.th.UnboxInt64(f.ctx, two)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	again, err := f.th.ExceptionOccurred(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, exc, again)

	require.NoError(t, f.th.ExceptionClear(f.ctx))
	cleared, err := f.th.ExceptionOccurred(f.ctx)
	require.NoError(t, err)
	assert.True(t, cleared.IsNull())
}

func TestEvalReturnsEvaluationError(t *testing.T) {
	f := newFixture(t)

	_, err := f.th.Eval(f.ctx, "sqrt(-1.0)")
	require.Error(t, err)

	var e *errors.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errors.KindEvaluation, e.Kind)
	assert.Equal(t, "DomainError", e.RuntimeType)
	assert.Contains(t, e.Detail, "sqrt")

	// CheckException cleared it
	assert.NoError(t, f.th.CheckException(f.ctx))
}

func TestCallWithWrongArity(t *testing.T) {
	f := newFixture(t)

	fn := f.eval(t, "square(x) = x * x")
	r, err := f.th.Call0(f.ctx, fn)
	require.NoError(t, err)
	assert.True(t, r.IsNull())

	err = f.th.CheckException(f.ctx)
	require.Error(t, err)
	var e *errors.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "MethodError", e.RuntimeType)

	three, err := f.th.BoxInt64(f.ctx, 3)
	require.NoError(t, err)
	r, err = f.th.Call1(f.ctx, fn, three)
	require.NoError(t, err)
	n, err := f.th.UnboxInt64(f.ctx, r)
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
}

func TestCallArgumentVector(t *testing.T) {
	f := newFixture(t)

	fn := f.eval(t, "sum5(a, b, c, d, e) = a + b + c + d + e")
	args := make([]Value, 5)
	for i := range args {
		v, err := f.th.BoxInt64(f.ctx, int64(i+1))
		require.NoError(t, err)
		args[i] = v
	}
	r, err := f.th.Call(f.ctx, fn, args...)
	require.NoError(t, err)
	n, err := f.th.UnboxInt64(f.ctx, r)
	require.NoError(t, err)
	assert.Equal(t, int64(15), n)

	_, err = f.th.Call(f.ctx, Value{})
	assert.True(t, errors.Is(err, errors.ErrNullHandle))
}

func TestGlobalsAndFields(t *testing.T) {
	f := newFixture(t)
	main := mustMain(t, f)

	missing, err := f.th.GetGlobal(f.ctx, main, "not_bound_anywhere")
	require.NoError(t, err)
	assert.True(t, missing.IsNull())
	_, err = f.th.MustGlobal(f.ctx, main, "not_bound_anywhere")
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))

	sin, err := f.th.GetGlobal(f.ctx, main, "sin")
	require.NoError(t, err, "Main falls back to Base")
	assert.False(t, sin.IsNull())

	tup := f.eval(t, "(1.5, \"two\")")
	first, err := f.th.GetNthField(f.ctx, tup, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.5, unboxF(t, f, first))
	second, err := f.th.GetNthField(f.ctx, tup, 1)
	require.NoError(t, err)
	s, err := f.th.StringOf(f.ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "two", s)

	exc := f.eval(t, "ArgumentError(\"bad input\")")
	msg, err := f.th.ExceptionMessage(f.ctx, exc)
	require.NoError(t, err)
	assert.Equal(t, "bad input", msg)

	nf, err := f.th.GetField(f.ctx, exc, "nope")
	require.NoError(t, err)
	assert.True(t, nf.IsNull())
	assert.Error(t, f.th.CheckException(f.ctx))
}
