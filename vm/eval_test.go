package vm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/hostbridge/abi"
)

func TestEvalShow(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		src  string
		want string
	}{
		{"1 + 2", "3"},
		{"1.3 + 2", "3.3"},
		{"sin(2.34)", formatFloat(math.Sin(2.34))},
		{"2^10", "1024"},
		{"-2^2", "-4"},
		{"7 / 2", "3.5"},
		{"2 \\ 8", "4.0"},
		{"abs(-3)", "3"},
		{"floor(2.7)", "2.0"},
		{"[1, 2, 3]", "[1, 2, 3]"},
		{"[1, 2.5]", "[1.0, 2.5]"},
		{"[sqrt(4.0); 1]", "[2.0, 1.0]"},
		{"[[1, 2]; 3]", "[1, 2, 3]"},
		{"[]", "Any[]"},
		{"[1, \"a\"]", "Any[1, \"a\"]"},
		{"x = 5; x * 2", "10"},
		{"f(x) = x + 1; f(41)", "42"},
		{"g(x, y) = x * y; g(6, 7)", "42"},
		{"(1, 2.5)", "(1, 2.5)"},
		{"(1,)", "(1,)"},
		{"zeros(2, 2)", "[0.0 0.0; 0.0 0.0]"},
		{"ones(Int64, 3)", "[1, 1, 1]"},
		{"fill(2.5, 2)", "[2.5, 2.5]"},
		{"\"a\" * \"b\"", "\"ab\""},
		{"string(\"x = \", 1.5)", "\"x = 1.5\""},
		{"Base.sqrt(16)", "4.0"},
		{"length([1, 2, 3])", "3"},
		{"sum([1.5, 2.5])", "4.0"},
		{"prod([2, 3, 4])", "24"},
		{"maximum([3, 9, 1])", "9"},
		{"size(zeros(2, 3))", "(2, 3)"},
		{"size(zeros(2, 3), 2)", "3"},
		{"ndims(zeros(2, 3, 4))", "3"},
		{"reverse!([1, 2, 3])", "[3, 2, 1]"},
		{"sort([3.0, 1.0, 2.0])", "[1.0, 2.0, 3.0]"},
		{"typeof([1, 2, 3])", "Array{Int64, 1}"},
		{"typeof(1.0)", "Float64"},
		{"1 == 1.0", "true"},
		{"[1, 2] == [1.0, 2.0]", "true"},
		{"3 < 2", "false"},
		{"d = IdDict(); d[:a] = 1; d[:a]", "1"},
		{"d = IdDict(); d[1] = 2; haskey(d, 1)", "true"},
		{"push!([1.0], 2)", "[1.0, 2.0]"},
		{"a = [1, 2, 3]; a[2] = 20; a", "[1, 20, 3]"},
		{"m = zeros(2, 2); m[1, 2] = 3; m[3]", "3.0"},
		{"[1.0, 2.0] * 2", "[2.0, 4.0]"},
		{"[1, 2] + [3, 4]", "[4, 6]"},
		{"Float64(3)", "3.0"},
		{"Int64(3.0)", "3"},
		{"nothing", "nothing"},
		{"const c2 = 1; const c2 = 2; c2", "2"},
		{"isnothing(nothing)", "true"},
		{"ErrorException(\"x\")", "ErrorException(\"x\")"},
		{"1e-5", "1.0e-5"},
		{"123456.0", "123456.0"},
		{"1e6", "1.0e6"},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			h.t = t
			p := h.mustEval(tt.src)
			assert.Equal(t, tt.want, h.vm.show(p))
		})
	}
}

func TestEvalPrintln(t *testing.T) {
	h := newHarness(t)

	h.mustEval("println(sin(2.34))")
	h.mustEval("println(\"hello \", 42)")
	h.mustEval("print([1.0, 2.0])")

	want := formatFloat(math.Sin(2.34)) + "\nhello 42\n[1.0, 2.0]"
	assert.Equal(t, want, h.out.String())
}

func TestEvalExceptions(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		src  string
		typ  string
		want string
	}{
		{"this_function_does_not_exist()", "UndefVarError", "`this_function_does_not_exist` not defined"},
		{"sqrt(-1.0)", "DomainError", "negative real argument"},
		{"[1, 2, 3][4]", "BoundsError", "3-element Array{Int64, 1} at index [4]"},
		{"g(x) = x; g()", "MethodError", "no method matching g()"},
		{"sin(\"x\")", "MethodError", "no method matching sin(::String)"},
		{"error(\"boom\")", "ErrorException", "boom"},
		{"1 +", "ParseError", "unexpected end of input"},
		{"d = IdDict(); d[:nope]", "KeyError", "key :nope not found"},
		{"[1, 2] + [1, 2, 3]", "DimensionMismatch", "dimensions must match"},
		{"Int64(2.5)", "InexactError", "Int64(2.5)"},
		{"loop(x) = loop(x); loop(1)", "StackOverflowError", "loop"},
		{"zeros(2, 2) \\ [1.0, 2.0]", "SingularException", "1"},
		{"Base.nope", "UndefVarError", "not defined in `Base`"},
		{"throw(ArgumentError(\"bad\"))", "ArgumentError", "bad"},
		{"2^-1", "DomainError", "negative power"},
		{"x = [1, 2]; x[1] = \"s\"", "MethodError", "Cannot `convert`"},
		{"const c1 = 1; c1 = 2", "ErrorException", "invalid redefinition of constant c1"},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			h.t = t
			p := h.eval(tt.src)
			assert.True(t, p.IsNull(), "failed evaluation returns null")

			exc := h.exception()
			require.False(t, exc.IsNull(), "exception pending")
			assert.Equal(t, tt.typ, h.typeOf(exc))
			assert.Contains(t, h.vm.exceptionMessage(exc), tt.want)
			h.clear()
		})
	}
}

func TestExceptionIsSticky(t *testing.T) {
	h := newHarness(t)

	assert.True(t, h.eval("this_function_does_not_exist()").IsNull())
	exc := h.exception()
	require.False(t, exc.IsNull())

	// a later successful evaluation leaves the exception pending
	p := h.eval("1 + 1")
	require.False(t, p.IsNull())
	assert.Equal(t, int64(2), int64(h.call(abi.FnUnboxInt64, uint64(p))[0]))
	assert.Equal(t, exc, h.exception())

	h.clear()
	assert.True(t, h.exception().IsNull())
	p = h.mustEval("1 + 1")
	assert.Equal(t, "2", h.vm.show(p))
}

func TestExceptionsArePerThread(t *testing.T) {
	h := newHarness(t)
	main := h.ctx

	other := WithThread(h.ctx, uint32(h.call(abi.FnAdoptThread)[0]))
	h.ctx = other
	h.eval("error(\"only here\")")
	assert.False(t, h.exception().IsNull())

	h.ctx = main
	assert.True(t, h.exception().IsNull())
}

func TestTypeStrings(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		src, full, name string
	}{
		{"[1, 2, 3]", "Array{Int64, 1}", "Array"},
		{"zeros(2, 2)", "Array{Float64, 2}", "Array"},
		{"1.5", "Float64", "Float64"},
		{"(1, 2.0)", "Tuple{Int64, Float64}", "Tuple"},
		{"IdDict()", "IdDict{Any, Any}", "IdDict"},
		{"sin", "Function", "Function"},
		{"Base", "Module", "Module"},
		{"Float64", "DataType", "DataType"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			h.t = t
			p := h.mustEval(tt.src)
			assert.Equal(t, tt.full, h.typeOf(p))
			assert.Equal(t, tt.name, h.typeName(p))
		})
	}
}

func TestLinearSolve(t *testing.T) {
	h := newHarness(t)

	// A is column major: [4 1; 2 3]
	h.mustEval("A = zeros(2, 2); A[1, 1] = 4; A[2, 1] = 2; A[1, 2] = 1; A[2, 2] = 3")
	x := h.mustEval("A \\ [1.0, 2.0]")
	got := h.vm.floatsOf(h.vm.arrayOf(x))
	require.Len(t, got, 2)
	assert.InDelta(t, 0.1, got[0], 1e-12)
	assert.InDelta(t, 0.6, got[1], 1e-12)

	back := h.mustEval("A * (A \\ [1.0, 2.0])")
	assert.InDeltaSlice(t, []float64{1, 2}, h.vm.floatsOf(h.vm.arrayOf(back)), 1e-12)
}
