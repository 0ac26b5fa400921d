package vm

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/abi"
	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/internal/wasm"
)

// VM is the embedded runtime. It owns the heap module's memory and serves
// the native function table through the libjulia module. Every exported
// call runs under one mutex.
type VM struct {
	mu   sync.Mutex
	cfg  Config
	out  io.Writer
	mem  api.Memory
	heap *heap
	objs map[abi.Ptr]*object

	types      builtinTypes
	arrayTypes map[arrayKey]*dataType
	tupleTypes map[string]*dataType
	symbols    map[string]abi.Ptr

	core, base, main, gcmod *module
	modPtrs                 map[*module]abi.Ptr

	nothingVal abi.Ptr
	trueVal    abi.Ptr
	falseVal   abi.Ptr
	oomVal     abi.Ptr

	threads map[uint32]*thread
	nextTID uint32
	mallocs map[abi.Ptr]struct{}

	// temps holds everything allocated or received during the current
	// exported call. It is a collection root until the call returns.
	temps []abi.Ptr

	gcEnabled   bool
	sinceGC     uint64
	collections int

	initialized bool
	exited      bool
}

type thread struct {
	id        uint32
	exception abi.Ptr
}

type threadKey struct{}

// WithThread returns a context carrying an adopted thread id. Exports that
// touch the heap refuse contexts without one.
func WithThread(ctx context.Context, tid uint32) context.Context {
	return context.WithValue(ctx, threadKey{}, tid)
}

// ThreadFrom returns the thread id carried by ctx.
func ThreadFrom(ctx context.Context) (uint32, bool) {
	tid, ok := ctx.Value(threadKey{}).(uint32)
	return tid, ok
}

// Instantiate creates the heap module, the native host module and the
// libjulia module that re-exports it in rt.
// The runtime is not usable until jl_init is called through the export.
func Instantiate(ctx context.Context, rt wazero.Runtime, cfg Config) (*VM, error) {
	cfg = cfg.withDefaults()

	image := wasm.NewSynthModuleBuilder(abi.NativeModule)
	image.SetMemory(abi.MemoryExport, cfg.InitialPages, cfg.MaxPages)
	heapMod, err := rt.InstantiateWithConfig(ctx, image.Build(),
		wazero.NewModuleConfig().WithName(abi.HeapModule))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseInit, errors.KindFault, err, "instantiate heap module")
	}
	mem := heapMod.ExportedMemory(abi.MemoryExport)
	if mem == nil {
		return nil, errors.NotFound(errors.PhaseInit, "memory export", abi.MemoryExport)
	}

	v := &VM{
		cfg:        cfg,
		out:        cfg.Stdout,
		mem:        mem,
		heap:       newHeap(mem),
		objs:       make(map[abi.Ptr]*object),
		arrayTypes: make(map[arrayKey]*dataType),
		tupleTypes: make(map[string]*dataType),
		symbols:    make(map[string]abi.Ptr),
		modPtrs:    make(map[*module]abi.Ptr),
		threads:    make(map[uint32]*thread),
		mallocs:    make(map[abi.Ptr]struct{}),
		gcEnabled:  true,
	}

	builder := rt.NewHostModuleBuilder(abi.NativeModule)
	shim := wasm.NewSynthModuleBuilder(abi.NativeModule)
	for fn := abi.Func(0); fn < abi.NumFuncs; fn++ {
		sig := abi.Signatures[fn]
		builder.NewFunctionBuilder().
			WithGoModuleFunction(v.export(fn), sig.Params, sig.Results).
			WithName(sig.Name).
			Export(sig.Name)
		shim.AddFunc(sig.Name, sig.Params, sig.Results)
	}
	if _, err := builder.Instantiate(ctx); err != nil {
		return nil, errors.Wrap(errors.PhaseInit, errors.KindFault, err, "instantiate "+abi.NativeModule)
	}
	if _, err := rt.InstantiateWithConfig(ctx, shim.Build(),
		wazero.NewModuleConfig().WithName(abi.LibraryModule)); err != nil {
		return nil, errors.Wrap(errors.PhaseInit, errors.KindFault, err, "instantiate "+abi.LibraryModule)
	}

	Logger().Debug("runtime instantiated",
		zap.Uint32("initial_pages", cfg.InitialPages),
		zap.Uint32("max_pages", cfg.MaxPages))
	return v, nil
}

// exportFunc implements one native function. Values and results travel on
// the wazero stack. A *thrown error becomes the thread's pending exception.
type exportFunc func(in *interp, stack []uint64) error

func (v *VM) export(fn abi.Func) api.GoModuleFunc {
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		v.mu.Lock()
		defer v.mu.Unlock()

		th := v.enter(ctx, fn)
		defer v.leave()

		in := &interp{vm: v, th: th}
		if err := exports[fn](in, stack); err != nil {
			v.raise(fn, th, err)
			if len(abi.Signatures[fn].Results) > 0 {
				stack[0] = 0
			}
		}
	}
}

func (v *VM) enter(ctx context.Context, fn abi.Func) *thread {
	if v.exited && fn != abi.FnAtExitHook {
		panic(errors.Uninitialized(fmt.Sprintf("%s called after jl_atexit_hook", fn)))
	}
	if !v.initialized && fn != abi.FnInit {
		panic(errors.Uninitialized(fmt.Sprintf("%s called before jl_init", fn)))
	}
	v.temps = v.temps[:0]
	if !fn.NeedsThread() {
		return nil
	}
	tid, ok := ThreadFrom(ctx)
	th := v.threads[tid]
	if !ok || th == nil {
		panic(errors.Uninitialized(fmt.Sprintf("%s called from a thread that was not adopted", fn)))
	}
	return th
}

func (v *VM) leave() {
	clear(v.temps)
	v.temps = v.temps[:0]
}

// raise records an exception as pending on the calling thread. Anything
// else is a fault and unwinds through wazero as a call error.
func (v *VM) raise(fn abi.Func, th *thread, err error) {
	var t *thrown
	switch {
	case errors.As(err, &t):
		if th == nil {
			panic(errors.Fault(errors.PhaseInvoke, fn.String(), err))
		}
		th.exception = t.exc
		Logger().Debug("exception pending",
			zap.Uint32("thread", th.id),
			zap.String("func", fn.String()),
			zap.String("exception", t.Error()))
	case err == errOutOfMemory && th != nil:
		th.exception = v.oomVal
	default:
		panic(err)
	}
}

func (v *VM) moduleOf(m *module) abi.Ptr { return v.modPtrs[m] }
