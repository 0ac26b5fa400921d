package bridge

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge"
	"github.com/wippyai/hostbridge/abi"
	"github.com/wippyai/hostbridge/bridge/internal/memory"
	"github.com/wippyai/hostbridge/config"
	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/vm"
)

// Runtime is one embedded runtime instance. Several can coexist in a
// process; each owns its wazero runtime and heap.
type Runtime struct {
	cfg    *config.Config
	log    *zap.Logger
	wz     wazero.Runtime
	vm     *vm.VM
	mod    api.Module
	lib    *library // runtime-level calls, under mu
	mem    *memory.Wrapper
	debug  bool
	closed atomic.Bool

	mu         sync.Mutex
	symbols    map[string]abi.Ptr
	arrayTypes map[arrayTypeKey]Type

	// cached at open
	float64Type Type
	int64Type   Type
	trueVal     Value

	roots *RootTable
}

type arrayTypeKey struct {
	elem abi.Ptr
	rank int
}

// Option configures Open.
type Option func(*options)

type options struct {
	logger *zap.Logger
	wazero wazero.RuntimeConfig
}

// WithLogger sets the runtime's logger. The package logger is used otherwise.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRuntimeConfig starts from a custom wazero configuration. The memory
// limit is always taken from the heap configuration.
func WithRuntimeConfig(c wazero.RuntimeConfig) Option {
	return func(o *options) { o.wazero = c }
}

// Open creates and initializes a runtime. A nil cfg uses config.Default().
// The linear memory capacity is reserved up front from the configured
// maximum, so addresses and views into it stay valid while it grows.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{logger: Logger(), wazero: wazero.NewRuntimeConfig()}
	for _, opt := range opts {
		opt(&o)
	}

	wz := wazero.NewRuntimeWithConfig(ctx, o.wazero.
		WithMemoryLimitPages(cfg.Heap.MaxPages).
		WithMemoryCapacityFromMax(true))

	r, err := open(ctx, wz, cfg, o.logger)
	if err != nil {
		_ = wz.Close(ctx)
		return nil, err
	}
	r.log.Info("runtime opened",
		zap.Uint32("initial_pages", cfg.Heap.InitialPages),
		zap.Uint32("max_pages", cfg.Heap.MaxPages),
		zap.Bool("debug_checks", r.debug))
	return r, nil
}

func open(ctx context.Context, wz wazero.Runtime, cfg *config.Config, log *zap.Logger) (*Runtime, error) {
	v, err := vm.Instantiate(ctx, wz, vm.Config{
		Stdout:       cfg.Stdout,
		InitialPages: cfg.Heap.InitialPages,
		MaxPages:     cfg.Heap.MaxPages,
		GCThreshold:  cfg.Heap.GCThreshold,
	})
	if err != nil {
		return nil, errors.Wrap(errors.PhaseInit, errors.KindFault, err, "instantiate runtime")
	}
	mod := wz.Module(abi.LibraryModule)
	lib, err := loadLibrary(mod)
	if err != nil {
		return nil, err
	}
	heap := wz.Module(abi.HeapModule)
	if heap == nil {
		return nil, errors.NotFound(errors.PhaseLoad, "module", abi.HeapModule)
	}
	mem := memory.WrapMemory(heap.ExportedMemory(abi.MemoryExport))
	if mem == nil {
		return nil, errors.NotFound(errors.PhaseLoad, "memory", abi.MemoryExport)
	}

	res, err := lib.call(ctx, abi.FnInit)
	if err != nil {
		return nil, err
	}
	if res[0] != 1 {
		return nil, errors.New(errors.PhaseInit, errors.KindFault).Detail("jl_init returned %d", res[0]).Build()
	}

	r := &Runtime{
		cfg:        cfg,
		log:        log,
		wz:         wz,
		vm:         v,
		mod:        mod,
		lib:        lib,
		mem:        mem,
		debug:      cfg.Runtime.DebugChecks,
		symbols:    make(map[string]abi.Ptr),
		arrayTypes: make(map[arrayTypeKey]Type),
	}

	th, err := r.InitThread(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = th.Close(ctx) }()

	if r.float64Type, err = th.ResolveType(ctx, abi.SymFloat64Type); err != nil {
		return nil, err
	}
	if r.int64Type, err = th.ResolveType(ctx, abi.SymInt64Type); err != nil {
		return nil, err
	}
	if r.trueVal, err = th.Eval(ctx, "true"); err != nil {
		return nil, err
	}
	if r.roots, err = th.newRootTable(ctx, cfg.Runtime.RootTable); err != nil {
		return nil, err
	}
	return r, nil
}

// Roots returns the default root table.
func (r *Runtime) Roots() *RootTable { return r.roots }

// Memory exposes the embedded heap's linear memory.
func (r *Runtime) Memory() hostbridge.Memory { return r.mem }

// Config returns the configuration the runtime was opened with.
func (r *Runtime) Config() *config.Config { return r.cfg }

// InitThread adopts a new runtime thread. The returned Thread is not safe
// for concurrent use; goroutines that call into the runtime concurrently
// each need their own.
func (r *Runtime) InitThread(ctx context.Context) (*Thread, error) {
	if r.closed.Load() {
		return nil, errors.Uninitialized("runtime is shut down")
	}
	// wazero functions are not goroutine-safe, so each thread resolves its
	// own table
	lib, err := loadLibrary(r.mod)
	if err != nil {
		return nil, err
	}
	res, err := lib.call(ctx, abi.FnAdoptThread)
	if err != nil {
		return nil, err
	}
	th := &Thread{
		rt:    r,
		lib:   lib,
		id:    uint32(res[0]),
		stack: make([]uint64, maxStack),
	}
	r.log.Debug("thread initialized", zap.Uint32("thread", th.id))
	return th, nil
}

// Shutdown runs the exit hook and tears the runtime down. Later calls return
// nil; every thread operation afterwards fails with KindUninitialized.
func (r *Runtime) Shutdown(ctx context.Context, exitCode int) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	if _, err := r.lib.call(ctx, abi.FnAtExitHook, uint64(uint32(int32(exitCode)))); err != nil {
		first = err
	}
	if err := r.wz.Close(ctx); err != nil && first == nil {
		first = errors.Wrap(errors.PhaseShutdown, errors.KindFault, err, "close wazero runtime")
	}
	r.log.Info("runtime shut down", zap.Int("exit_code", exitCode))
	return first
}

func (r *Runtime) cachedSymbol(name string) (abi.Ptr, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.symbols[name]
	return p, ok
}

func (r *Runtime) cacheSymbol(name string, p abi.Ptr) {
	r.mu.Lock()
	r.symbols[name] = p
	r.mu.Unlock()
}

func (r *Runtime) cachedArrayType(k arrayTypeKey) (Type, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.arrayTypes[k]
	return t, ok
}

func (r *Runtime) cacheArrayType(k arrayTypeKey, t Type) {
	r.mu.Lock()
	r.arrayTypes[k] = t
	r.mu.Unlock()
}
