package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/bridge"
)

type scenario struct {
	name string
	run  func(ctx context.Context, s *session, out io.Writer) error
}

var scenarios = []scenario{
	{"starter", demoStarter},
	{"arrays", demoArrays},
	{"memory", demoMemory},
	{"exceptions", demoExceptions},
	{"threads", demoThreads},
	{"solve", demoSolve},
}

func scenarioNames() []string {
	names := make([]string, len(scenarios))
	for i, sc := range scenarios {
		names[i] = sc.name
	}
	return names
}

func newDemoCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:       "demo [SCENARIO...]",
		Short:     "Run the bridge sample scenarios",
		Long:      "Runs the named scenarios, or all of them: " + strings.Join(scenarioNames(), ", ") + ".",
		ValidArgs: scenarioNames(),
		Args:      cobra.OnlyValidArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			s, err := openSession(ctx, flags, out)
			if err != nil {
				return err
			}

			selected := make(map[string]bool, len(args))
			for _, a := range args {
				selected[a] = true
			}
			for _, sc := range scenarios {
				if len(selected) > 0 && !selected[sc.name] {
					continue
				}
				fmt.Fprintf(out, "== %s\n", sc.name)
				if err := sc.run(ctx, s, out); err != nil {
					_ = s.close(ctx, 1)
					return fmt.Errorf("%s: %w", sc.name, err)
				}
				s.log.Debug("scenario finished", zap.String("scenario", sc.name))
			}
			return s.close(ctx, 0)
		},
	}
}

func demoStarter(ctx context.Context, s *session, out io.Writer) error {
	th := s.th
	if _, err := th.Eval(ctx, "println(sin(2.34))"); err != nil {
		return err
	}
	v, err := th.Eval(ctx, "sqrt(2.0)")
	if err != nil {
		return err
	}
	x, err := th.UnboxFloat64(ctx, v)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "sqrt(2.0) unboxed on the host: %v\n", x)

	base, err := th.BaseModule(ctx)
	if err != nil {
		return err
	}
	sqrt, err := th.MustGlobal(ctx, base, "sqrt")
	if err != nil {
		return err
	}
	arg, err := th.BoxFloat64(ctx, 16)
	if err != nil {
		return err
	}
	r, err := th.Call1(ctx, sqrt, arg)
	if err != nil {
		return err
	}
	if err := th.CheckException(ctx); err != nil {
		return err
	}
	x, err = th.UnboxFloat64(ctx, r)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "sqrt called from the host: %v\n", x)
	return nil
}

func demoArrays(ctx context.Context, s *session, out io.Writer) error {
	th := s.th
	f64, err := th.ResolveType(ctx, "jl_float64_type")
	if err != nil {
		return err
	}
	vec, err := th.ApplyArrayType(ctx, f64, 1)
	if err != nil {
		return err
	}
	arr, err := th.AllocArray(ctx, vec, 10)
	if err != nil {
		return err
	}
	scope := s.rt.Roots().Scope(th)
	defer scope.Release(ctx)
	if _, err := scope.Root(ctx, arr); err != nil {
		return err
	}

	data, err := th.Float64s(ctx, arr)
	if err != nil {
		return err
	}
	for i := range data {
		data[i] = float64(i)
	}

	base, err := th.BaseModule(ctx)
	if err != nil {
		return err
	}
	reverse, err := th.MustGlobal(ctx, base, "reverse!")
	if err != nil {
		return err
	}
	if _, err := th.Call1(ctx, reverse, arr); err != nil {
		return err
	}
	if err := th.CheckException(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "reversed in place: %v\n", data)
	return scope.Release(ctx)
}

func demoMemory(ctx context.Context, s *session, out io.Writer) error {
	th := s.th
	roots := s.rt.Roots()
	vec, err := th.ApplyArrayType(ctx, th.Float64Type(), 1)
	if err != nil {
		return err
	}

	arr, err := th.CopyIn(ctx, []float64{3, 1, 2})
	if err != nil {
		return err
	}
	if err := roots.Root(ctx, th, arr); err != nil {
		return err
	}
	if err := th.GC(ctx, bridge.GCFull); err != nil {
		return err
	}
	live, err := th.IsLive(ctx, arr)
	if err != nil {
		return err
	}
	n, err := roots.Len(ctx, th)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "rooted copy survives a full collection: %v (%d rooted)\n", live, n)
	if err := roots.Unroot(ctx, th, arr); err != nil {
		return err
	}

	base, err := th.BaseModule(ctx)
	if err != nil {
		return err
	}
	reverse, err := th.MustGlobal(ctx, base, "reverse!")
	if err != nil {
		return err
	}
	err = th.WithPinned(ctx, 6, func(buf *bridge.PinnedBuffer) error {
		host := buf.Float64s()
		for i := range host {
			host[i] = float64(i + 1)
		}
		wrapped, err := th.WrapHostBuffer(ctx, vec, buf, false)
		if err != nil {
			return err
		}
		if _, err := th.Call1(ctx, reverse, wrapped); err != nil {
			return err
		}
		if err := th.CheckException(ctx); err != nil {
			return err
		}
		fmt.Fprintf(out, "host buffer reversed without a copy: %v\n", host)
		return nil
	})
	if err != nil {
		return err
	}

	used, err := th.HeapBytes(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "heap bytes in use: %d\n", used)
	return nil
}

func demoExceptions(ctx context.Context, s *session, out io.Writer) error {
	th := s.th
	for _, src := range []string{"undefined_function(1)", "sqrt(-1.0)", "error(\"boom\")"} {
		res, err := s.evaluate(ctx, src)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s -> %s\n", src, res)
	}

	base, err := th.BaseModule(ctx)
	if err != nil {
		return err
	}
	sqrt, err := th.MustGlobal(ctx, base, "sqrt")
	if err != nil {
		return err
	}
	// arity errors stay pending until checked
	if _, err := th.Call0(ctx, sqrt); err != nil {
		return err
	}
	exc, err := th.ExceptionOccurred(ctx)
	if err != nil {
		return err
	}
	typ, err := th.TypeOf(ctx, exc)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "sqrt() left a pending %s\n", typ)
	return th.ExceptionClear(ctx)
}

func demoThreads(ctx context.Context, s *session, out io.Writer) error {
	type threadResult struct {
		id  uint32
		sum float64
		err error
	}
	done := make(chan threadResult, 1)

	go func() {
		th, err := s.rt.InitThread(ctx)
		if err != nil {
			done <- threadResult{err: err}
			return
		}
		defer th.Close(ctx)
		v, err := th.Eval(ctx, "sum([1.5, 2.5, 3.0])")
		if err != nil {
			done <- threadResult{err: err}
			return
		}
		x, err := th.UnboxFloat64(ctx, v)
		done <- threadResult{id: th.ID(), sum: x, err: err}
	}()

	v, err := s.th.Eval(ctx, "prod([2.0, 3.0])")
	if err != nil {
		return err
	}
	x, err := s.th.UnboxFloat64(ctx, v)
	if err != nil {
		return err
	}
	other := <-done
	if other.err != nil {
		return other.err
	}
	fmt.Fprintf(out, "thread %d: %v, thread %d: %v\n", s.th.ID(), x, other.id, other.sum)
	return nil
}

// demoSolve solves a small diagonally dominant system in the runtime and
// checks it against Gauss-Seidel on the host.
func demoSolve(ctx context.Context, s *session, out io.Writer) error {
	th := s.th
	const n = 4
	a := make([]float64, n*n)
	b := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				a[j*n+i] = float64(2 * n)
			} else {
				a[j*n+i] = 1 / float64(1+i+j)
			}
		}
		b[i] = float64(i + 1)
	}

	scope := s.rt.Roots().Scope(th)
	defer scope.Release(ctx)
	am, err := th.CopyIn(ctx, a, n, n)
	if err != nil {
		return err
	}
	if _, err := scope.Root(ctx, am); err != nil {
		return err
	}
	base, err := th.BaseModule(ctx)
	if err != nil {
		return err
	}
	solve, err := th.MustGlobal(ctx, base, "\\")
	if err != nil {
		return err
	}
	vec, err := th.ApplyArrayType(ctx, th.Float64Type(), 1)
	if err != nil {
		return err
	}

	x := make([]float64, n)
	err = th.WithPinned(ctx, n, func(buf *bridge.PinnedBuffer) error {
		copy(buf.Float64s(), b)
		bv, err := th.WrapHostBuffer(ctx, vec, buf, false)
		if err != nil {
			return err
		}
		xv, err := th.Call2(ctx, solve, am, bv)
		if err != nil {
			return err
		}
		if err := th.CheckException(ctx); err != nil {
			return err
		}
		return th.CopyOut(ctx, xv, x)
	})
	if err != nil {
		return err
	}

	ref := gaussSeidel(a, b, n)
	worst := 0.0
	for i := range x {
		worst = math.Max(worst, math.Abs(x[i]-ref[i]))
	}
	fmt.Fprintf(out, "x = %v\nmax deviation from host reference: %.2e\n", x, worst)
	return scope.Release(ctx)
}

// gaussSeidel solves the column-major system a*x = b.
func gaussSeidel(a, b []float64, n int) []float64 {
	x := make([]float64, n)
	for iter := 0; iter < 200; iter++ {
		for i := 0; i < n; i++ {
			sum := b[i]
			for j := 0; j < n; j++ {
				if j != i {
					sum -= a[j*n+i] * x[j]
				}
			}
			x[i] = sum / a[i*n+i]
		}
	}
	return x
}
