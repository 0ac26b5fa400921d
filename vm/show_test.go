package vm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.0"},
		{math.Copysign(0, -1), "-0.0"},
		{1, "1.0"},
		{-2.5, "-2.5"},
		{0.1, "0.1"},
		{1.0 / 3, "0.3333333333333333"},
		{0.0001, "0.0001"},
		{0.00001, "1.0e-5"},
		{999999, "999999.0"},
		{1e6, "1.0e6"},
		{1.5e300, "1.5e300"},
		{math.Inf(1), "Inf"},
		{math.Inf(-1), "-Inf"},
		{math.NaN(), "NaN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatFloat(tt.in), "%v", tt.in)
	}
}

func TestShowNested(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		src  string
		want string
	}{
		{"d = IdDict(); d[\"k\"] = [1, 2]; d", "IdDict{Any, Any}(\"k\" => [1, 2])"},
		{"WeakRef(1)", "WeakRef(1)"},
		{"[(1, 2), (3, 4)]", "Any[(1, 2), (3, 4)]"},
		{"zeros(Int64, 1, 2, 2)", "reshape([0, 0, 0, 0], 1, 2, 2)"},
		{":sym", ":sym"},
		{"repr(\"q\")", "\"\\\"q\\\"\""},
		{"true", "true"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			h.t = t
			assert.Equal(t, tt.want, h.vm.show(h.mustEval(tt.src)))
		})
	}
}

func TestHeapReuse(t *testing.T) {
	h := newHarness(t)
	hp := h.vm.heap

	a, err := hp.alloc(24)
	assert.NoError(t, err)
	assert.Equal(t, uint32(32), hp.blockSize(a))
	assert.Zero(t, a%16)
	used := hp.inUse

	assert.True(t, hp.release(a))
	assert.False(t, hp.release(a), "double release")
	assert.Equal(t, used-32, hp.inUse)

	b, err := hp.alloc(20)
	assert.NoError(t, err)
	assert.Equal(t, a, b, "same class reuses the freed block")
	buf, ok := h.mem.Read(b, 32)
	assert.True(t, ok)
	assert.Equal(t, make([]byte, 32), buf, "blocks are zeroed")
}

func TestHeapGrows(t *testing.T) {
	h := newHarness(t)
	before := h.mem.Size()

	_, err := h.vm.heap.alloc(before)
	assert.NoError(t, err)
	assert.Greater(t, h.mem.Size(), before)

	_, err = h.vm.heap.alloc(1 << 30)
	assert.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	assert.Equal(t, uint32(16), c.InitialPages)
	assert.Equal(t, uint32(1024), c.MaxPages)
	assert.NotZero(t, c.GCThreshold)

	c = Config{InitialPages: 1, MaxPages: 1}.withDefaults()
	assert.Equal(t, uint32(2), c.InitialPages)
	assert.Equal(t, uint32(2), c.MaxPages)
	assert.Equal(t, uint64(2*65536), c.MaxBytes())

	c = Config{InitialPages: 8, MaxPages: 1 << 20}.withDefaults()
	assert.Equal(t, uint32(65536), c.MaxPages)
}
