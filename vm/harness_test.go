package vm

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/hostbridge/abi"
)

// harness drives a VM through its exported function table, the same way a
// host does.
type harness struct {
	t   *testing.T
	ctx context.Context
	vm  *VM
	lib api.Module
	mem api.Memory
	out *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().
		WithMemoryLimitPages(64).
		WithMemoryCapacityFromMax(true))
	t.Cleanup(func() { _ = rt.Close(ctx) })

	out := &bytes.Buffer{}
	v, err := Instantiate(ctx, rt, Config{Stdout: out, InitialPages: 4, MaxPages: 64})
	require.NoError(t, err)

	h := &harness{
		t:   t,
		ctx: ctx,
		vm:  v,
		lib: rt.Module(abi.LibraryModule),
		mem: rt.Module(abi.HeapModule).ExportedMemory(abi.MemoryExport),
		out: out,
	}
	require.NotNil(t, h.lib)
	require.NotNil(t, h.mem)

	require.Equal(t, uint64(1), h.call(abi.FnInit)[0])
	tid := h.call(abi.FnAdoptThread)[0]
	h.ctx = WithThread(ctx, uint32(tid))
	return h
}

func (h *harness) try(fn abi.Func, args ...uint64) ([]uint64, error) {
	f := h.lib.ExportedFunction(fn.String())
	require.NotNil(h.t, f, fn.String())
	return f.Call(h.ctx, args...)
}

func (h *harness) call(fn abi.Func, args ...uint64) []uint64 {
	h.t.Helper()
	res, err := h.try(fn, args...)
	require.NoError(h.t, err, fn.String())
	return res
}

func (h *harness) ptr(fn abi.Func, args ...uint64) abi.Ptr {
	h.t.Helper()
	return abi.Ptr(uint32(h.call(fn, args...)[0]))
}

// withString copies s into a jl_malloc buffer for the duration of f.
func (h *harness) withString(s string, f func(ptr, n uint64) []uint64) []uint64 {
	h.t.Helper()
	buf := h.call(abi.FnMalloc, uint64(len(s)+1))[0]
	require.NotZero(h.t, buf)
	require.True(h.t, h.mem.Write(uint32(buf), []byte(s)))
	defer h.call(abi.FnFree, buf)
	return f(buf, uint64(len(s)))
}

func (h *harness) eval(src string) abi.Ptr {
	h.t.Helper()
	res := h.withString(src, func(ptr, n uint64) []uint64 {
		return h.call(abi.FnEvalString, ptr, n)
	})
	return abi.Ptr(uint32(res[0]))
}

// mustEval evaluates src and fails the test if an exception is pending.
func (h *harness) mustEval(src string) abi.Ptr {
	h.t.Helper()
	p := h.eval(src)
	if exc := h.exception(); !exc.IsNull() {
		h.t.Fatalf("eval %q raised %s", src, h.vm.showError(exc))
	}
	require.False(h.t, p.IsNull())
	return p
}

func (h *harness) exception() abi.Ptr {
	return h.ptr(abi.FnExceptionOccurred)
}

func (h *harness) clear() {
	h.call(abi.FnExceptionClear)
}

func (h *harness) cstring(ptr uint64) string {
	var b []byte
	for p := uint32(ptr); ; p++ {
		c, ok := h.mem.ReadByte(p)
		require.True(h.t, ok)
		if c == 0 {
			return string(b)
		}
		b = append(b, c)
	}
}

func (h *harness) typeOf(p abi.Ptr) string {
	return h.cstring(h.call(abi.FnTypeofStr, uint64(p))[0])
}

func (h *harness) typeName(p abi.Ptr) string {
	return h.cstring(h.call(abi.FnTypenameStr, uint64(p))[0])
}

func (h *harness) dataSymbol(name string) abi.Ptr {
	cell := h.withString(name, func(ptr, n uint64) []uint64 {
		return h.call(abi.FnDlsym, ptr, n)
	})[0]
	require.NotZero(h.t, cell, name)
	v, ok := h.mem.ReadUint32Le(uint32(cell))
	require.True(h.t, ok)
	return abi.Ptr(v)
}

func (h *harness) isLive(p abi.Ptr) bool {
	return h.call(abi.FnGCIsLive, uint64(p))[0] == 1
}

func (h *harness) floats(addr abi.Ptr, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		bits, ok := h.mem.ReadUint64Le(uint32(addr) + uint32(8*i))
		require.True(h.t, ok)
		out[i] = math.Float64frombits(bits)
	}
	return out
}
