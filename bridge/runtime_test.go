package bridge

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/hostbridge/config"
	"github.com/wippyai/hostbridge/errors"
)

func TestShutdown(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.rt.Shutdown(f.ctx, 0))
	require.NoError(t, f.rt.Shutdown(f.ctx, 0), "idempotent")

	_, err := f.th.Eval(f.ctx, "1 + 1")
	assert.True(t, errors.Is(err, errors.ErrUninitialized))
	_, err = f.th.BoxFloat64(f.ctx, 1)
	assert.True(t, errors.Is(err, errors.ErrUninitialized))
	_, err = f.th.UnboxFloat64(f.ctx, ValueAt(0x10008))
	assert.True(t, errors.Is(err, errors.ErrUninitialized))
	_, err = f.rt.InitThread(f.ctx)
	assert.True(t, errors.Is(err, errors.ErrUninitialized))
}

func TestThreadClose(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.th.Close(f.ctx))
	require.NoError(t, f.th.Close(f.ctx))
	_, err := f.th.EvalString(f.ctx, "1")
	assert.Equal(t, errors.KindUninitialized, errors.KindOf(err))

	other, err := f.rt.InitThread(f.ctx)
	require.NoError(t, err)
	_, err = other.Eval(f.ctx, "1")
	assert.NoError(t, err)
}

func TestThreadsOnGoroutines(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	results := make([]float64, 4)
	errs := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := context.Background()
			th, err := f.rt.InitThread(ctx)
			if err != nil {
				errs[i] = err
				return
			}
			defer th.Close(ctx)
			scope := f.rt.Roots().Scope(th)
			defer scope.Release(ctx)

			x, err := th.BoxFloat64(ctx, float64(i))
			if err == nil {
				x, err = scope.Root(ctx, x)
			}
			if err != nil {
				errs[i] = err
				return
			}
			sqrt, err := th.Eval(ctx, "sqrt")
			if err == nil {
				sqrt, err = scope.Root(ctx, sqrt)
			}
			if err != nil {
				errs[i] = err
				return
			}
			r, err := th.Call1(ctx, sqrt, x)
			if err != nil {
				errs[i] = err
				return
			}
			results[i], errs[i] = th.UnboxFloat64(ctx, r)
		}()
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.InDelta(t, float64(i), results[i]*results[i], 1e-12)
	}
}

func TestConcurrentRooting(t *testing.T) {
	f := newFixture(t)
	roots := f.rt.Roots()
	before, err := roots.Len(f.ctx, f.th)
	require.NoError(t, err)

	const workers, perWorker = 4, 6
	kept := make([][]Value, workers)
	errs := make([]error, workers)
	var rooted, unrooted, wg sync.WaitGroup
	rooted.Add(workers)
	unrooted.Add(workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[w] = func() error {
				ctx := context.Background()
				th, err := f.rt.InitThread(ctx)
				if err != nil {
					rooted.Done()
					unrooted.Done()
					return err
				}
				defer th.Close(ctx)

				vals := make([]Value, perWorker)
				var rootErr error
				for i := range vals {
					v, err := th.CopyIn(ctx, []float64{float64(w), float64(i)})
					if err == nil {
						err = roots.Root(ctx, th, v)
					}
					if err != nil {
						rootErr = err
						break
					}
					vals[i] = v
				}
				rooted.Done()
				if rootErr != nil {
					unrooted.Done()
					return rootErr
				}
				rooted.Wait()

				if err := th.GC(ctx, GCFull); err != nil {
					unrooted.Done()
					return err
				}
				for i, v := range vals {
					if err := checkPair(ctx, th, v, float64(w), float64(i)); err != nil {
						unrooted.Done()
						return err
					}
					if i%2 == 0 {
						if err := roots.Unroot(ctx, th, v); err != nil {
							unrooted.Done()
							return err
						}
					} else {
						kept[w] = append(kept[w], v)
					}
				}
				unrooted.Done()
				unrooted.Wait()

				if err := th.GC(ctx, GCIncremental); err != nil {
					return err
				}
				for _, v := range kept[w] {
					if live, err := th.IsLive(ctx, v); err != nil || !live {
						return fmt.Errorf("worker %d lost %v (err %v)", w, v, err)
					}
				}
				return nil
			}()
		}()
	}
	wg.Wait()
	for w := range errs {
		require.NoError(t, errs[w], "worker %d", w)
	}

	require.NoError(t, f.th.GC(f.ctx, GCFull))
	n, err := roots.Len(f.ctx, f.th)
	require.NoError(t, err)
	assert.Equal(t, before+workers*perWorker/2, n)
	for w, vals := range kept {
		require.Len(t, vals, perWorker/2)
		for j, v := range vals {
			require.NoError(t, checkPair(f.ctx, f.th, v, float64(w), float64(2*j+1)))
			ok, err := roots.Contains(f.ctx, f.th, v)
			require.NoError(t, err)
			assert.True(t, ok)
			require.NoError(t, roots.Unroot(f.ctx, f.th, v))
		}
	}
	n, err = roots.Len(f.ctx, f.th)
	require.NoError(t, err)
	assert.Equal(t, before, n)
}

// checkPair verifies that v is a live two-element array holding a and b.
func checkPair(ctx context.Context, th *Thread, v Value, a, b float64) error {
	live, err := th.IsLive(ctx, v)
	if err != nil {
		return err
	}
	if !live {
		return fmt.Errorf("%v was collected", v)
	}
	got := make([]float64, 2)
	if err := th.CopyOut(ctx, v, got); err != nil {
		return err
	}
	if got[0] != a || got[1] != b {
		return fmt.Errorf("%v holds %v, want [%v %v]", v, got, a, b)
	}
	return nil
}

func TestExceptionsArePerThread(t *testing.T) {
	f := newFixture(t)
	other, err := f.rt.InitThread(f.ctx)
	require.NoError(t, err)

	_, err = other.EvalString(f.ctx, "error(\"other thread\")")
	require.NoError(t, err)

	mine, err := f.th.ExceptionOccurred(f.ctx)
	require.NoError(t, err)
	assert.True(t, mine.IsNull())
	assert.Error(t, other.CheckException(f.ctx))
}

func TestRuntimesAreIndependent(t *testing.T) {
	a := newFixture(t)
	b := newFixture(t)

	a.eval(t, "only_in_a = 1")
	v, err := b.th.GetGlobal(b.ctx, mustMain(t, b), "only_in_a")
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestOpenValidatesConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Heap.InitialPages = 1
	_, err := Open(context.Background(), cfg)
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))
}

func TestOpenLogs(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	ctx := context.Background()
	cfg := config.Default()
	cfg.Heap.InitialPages = 2
	cfg.Heap.MaxPages = 32

	rt, err := Open(ctx, cfg, WithLogger(zap.New(core)))
	require.NoError(t, err)
	th, err := rt.InitThread(ctx)
	require.NoError(t, err)
	v, err := th.BoxFloat64(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, rt.Roots().Root(ctx, th, v))
	require.NoError(t, rt.Shutdown(ctx, 3))

	assert.Equal(t, 1, logs.FilterMessage("runtime opened").Len())
	assert.Equal(t, 1, logs.FilterMessage("rooted").Len())
	shut := logs.FilterMessage("runtime shut down").All()
	require.Len(t, shut, 1)
	assert.Equal(t, int64(3), shut[0].ContextMap()["exit_code"])
}
