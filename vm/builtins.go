package vm

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/wippyai/hostbridge/abi"
)

// baseFunctions are bound in Base at boot.
func baseFunctions() map[string]builtinFunc {
	return map[string]builtinFunc{
		"+":  arithFunc("+"),
		"-":  arithFunc("-"),
		"*":  arithFunc("*"),
		"/":  arithFunc("/"),
		"\\": arithFunc("\\"),
		"^":  arithFunc("^"),
		"==": equalFunc(false),
		"!=": equalFunc(true),
		"<":  orderFunc("<"),
		"<=": orderFunc("<="),
		">":  orderFunc(">"),
		">=": orderFunc(">="),

		"sin":  mathFunc("sin", math.Sin, nil),
		"cos":  mathFunc("cos", math.Cos, nil),
		"tan":  mathFunc("tan", math.Tan, nil),
		"exp":  mathFunc("exp", math.Exp, nil),
		"log":  mathFunc("log", math.Log, func(x float64) bool { return x < 0 }),
		"sqrt": mathFunc("sqrt", math.Sqrt, func(x float64) bool { return x < 0 }),

		"abs":   roundingFunc("abs", math.Abs, func(i int64) int64 { return max(i, -i) }),
		"floor": roundingFunc("floor", math.Floor, nil),
		"ceil":  roundingFunc("ceil", math.Ceil, nil),
		"round": roundingFunc("round", math.RoundToEven, nil),

		"print":    printFunc(false),
		"println":  printFunc(true),
		"string":   builtinString,
		"repr":     builtinRepr,
		"typeof":   builtinTypeof,
		"error":    builtinError,
		"throw":    builtinThrow,
		"getfield": builtinGetfield,
		"isnothing": func(in *interp, args []abi.Ptr) (abi.Ptr, error) {
			if len(args) != 1 {
				return abi.Null, in.vm.methodError("isnothing", args)
			}
			return in.vm.boxBool(args[0] == in.vm.nothingVal), nil
		},
		"identity": func(in *interp, args []abi.Ptr) (abi.Ptr, error) {
			if len(args) != 1 {
				return abi.Null, in.vm.methodError("identity", args)
			}
			return args[0], nil
		},

		"length":    builtinLength,
		"isempty":   builtinIsempty,
		"size":      builtinSize,
		"ndims":     builtinNdims,
		"eltype":    builtinEltype,
		"sum":       reduceFunc("sum"),
		"prod":      reduceFunc("prod"),
		"maximum":   reduceFunc("maximum"),
		"minimum":   reduceFunc("minimum"),
		"reverse":   reverseFunc(false),
		"reverse!":  reverseFunc(true),
		"sort":      sortFunc(false),
		"sort!":     sortFunc(true),
		"copy":      builtinCopy,
		"zeros":     filledFunc("zeros", 0),
		"ones":      filledFunc("ones", 1),
		"fill":      builtinFill,
		"push!":     builtinPush,
		"first":     endFunc("first", true),
		"last":      endFunc("last", false),
		"vcat":      builtinVcat,
		"getindex":  builtinGetindex,
		"setindex!": builtinSetindex,
		"delete!":   builtinDelete,
		"haskey":    builtinHaskey,
		"get":       builtinGet,
	}
}

func arithFunc(op string) builtinFunc {
	return func(in *interp, args []abi.Ptr) (abi.Ptr, error) {
		v := in.vm
		switch len(args) {
		case 1:
			if op == "+" {
				return args[0], nil
			}
			if op == "-" {
				return v.negate(args[0])
			}
		case 2:
			return v.binaryOp(op, args[0], args[1])
		default:
			if (op == "+" || op == "*") && len(args) > 2 {
				acc := args[0]
				for _, a := range args[1:] {
					r, err := v.binaryOp(op, acc, a)
					if err != nil {
						return abi.Null, err
					}
					acc = r
				}
				return acc, nil
			}
		}
		return abi.Null, v.methodError(op, args)
	}
}

func (v *VM) negate(p abi.Ptr) (abi.Ptr, error) {
	if n, ok := v.number(p); ok {
		if n.isFloat {
			return v.boxFloat(-n.f)
		}
		return v.boxInt(-n.i)
	}
	if a, ok := v.numericArray(p); ok {
		return v.mapArray(a, a.elem(), func(x number) (number, error) {
			if x.isFloat {
				return floatNum(-x.f), nil
			}
			return intNum(-x.i), nil
		})
	}
	return abi.Null, v.methodError("-", []abi.Ptr{p})
}

func (v *VM) binaryOp(op string, a, b abi.Ptr) (abi.Ptr, error) {
	x, xok := v.number(a)
	y, yok := v.number(b)
	if xok && yok {
		r, err := v.arith(op, x, y)
		if err != nil {
			return abi.Null, err
		}
		return v.boxNumber(r)
	}

	if op == "*" && v.objs[a].kind() == kindString && v.objs[b].kind() == kindString {
		return v.newString(v.stringOf(a) + v.stringOf(b))
	}

	aa, aArr := v.numericArray(a)
	ba, bArr := v.numericArray(b)
	switch {
	case aArr && bArr:
		switch op {
		case "+", "-":
			return v.elementwise(op, aa, ba)
		case "*":
			return v.matmul(aa, ba)
		case "\\":
			return v.solve(aa, ba)
		}
	case aArr && yok:
		if op == "*" || op == "/" {
			return v.mapArray(aa, v.scalarResultElem(op, aa.elem(), y), func(e number) (number, error) { return v.arith(op, e, y) })
		}
	case xok && bArr:
		if op == "*" {
			return v.mapArray(ba, v.scalarResultElem(op, ba.elem(), x), func(e number) (number, error) { return v.arith(op, x, e) })
		}
	}
	return abi.Null, v.methodError(op, []abi.Ptr{a, b})
}

// scalarResultElem is the element type of array-scalar arithmetic.
func (v *VM) scalarResultElem(op string, elem *dataType, scalar number) *dataType {
	if op == "/" || scalar.isFloat || elem.kind == kindFloat64 {
		return v.types.float64
	}
	return v.types.int64
}

func equalFunc(negate bool) builtinFunc {
	name := "=="
	if negate {
		name = "!="
	}
	return func(in *interp, args []abi.Ptr) (abi.Ptr, error) {
		if len(args) != 2 {
			return abi.Null, in.vm.methodError(name, args)
		}
		eq := in.vm.equal(args[0], args[1])
		return in.vm.boxBool(eq != negate), nil
	}
}

func (v *VM) equal(a, b abi.Ptr) bool {
	if a == b {
		if n, ok := v.number(a); ok && n.isFloat && math.IsNaN(n.f) {
			return false
		}
		return true
	}
	x, xok := v.number(a)
	y, yok := v.number(b)
	if xok && yok {
		return compare("==", x, y)
	}
	oa, ob := v.objs[a], v.objs[b]
	switch {
	case oa.kind() == kindString && ob.kind() == kindString:
		return v.stringOf(a) == v.stringOf(b)
	case oa.kind() == kindArray && ob.kind() == kindArray:
		aa, ba := v.arrayOf(a), v.arrayOf(b)
		if aa.rank != ba.rank || aa.dims != ba.dims {
			return false
		}
		for i := 0; i < aa.len; i++ {
			x, err := v.load(aa, i)
			if err != nil {
				return false
			}
			y, err := v.load(ba, i)
			if err != nil {
				return false
			}
			if !v.equal(x, y) {
				return false
			}
		}
		return true
	case oa.kind() == kindTuple && ob.kind() == kindTuple:
		if len(oa.elems) != len(ob.elems) {
			return false
		}
		for i := range oa.elems {
			if !v.equal(oa.elems[i], ob.elems[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func orderFunc(op string) builtinFunc {
	return func(in *interp, args []abi.Ptr) (abi.Ptr, error) {
		v := in.vm
		if len(args) != 2 {
			return abi.Null, v.methodError(op, args)
		}
		x, xok := v.number(args[0])
		y, yok := v.number(args[1])
		if xok && yok {
			return v.boxBool(compare(op, x, y)), nil
		}
		if v.objs[args[0]].kind() == kindString && v.objs[args[1]].kind() == kindString {
			c := strings.Compare(v.stringOf(args[0]), v.stringOf(args[1]))
			return v.boxBool(compare(op, intNum(int64(c)), intNum(0))), nil
		}
		return abi.Null, v.methodError("isless", args)
	}
}

func mathFunc(name string, f func(float64) float64, outOfDomain func(float64) bool) builtinFunc {
	return func(in *interp, args []abi.Ptr) (abi.Ptr, error) {
		v := in.vm
		if len(args) != 1 {
			return abi.Null, v.methodError(name, args)
		}
		n, ok := v.number(args[0])
		if !ok {
			return abi.Null, v.methodError(name, args)
		}
		x := n.float()
		if outOfDomain != nil && outOfDomain(x) {
			return abi.Null, v.throw("DomainError",
				"%s: %s was called with a negative real argument but will only return a complex result if called with a complex argument.",
				formatFloat(x), name)
		}
		return v.boxFloat(f(x))
	}
}

// roundingFunc keeps integers integral.
func roundingFunc(name string, f func(float64) float64, fi func(int64) int64) builtinFunc {
	return func(in *interp, args []abi.Ptr) (abi.Ptr, error) {
		v := in.vm
		if len(args) != 1 {
			return abi.Null, v.methodError(name, args)
		}
		n, ok := v.number(args[0])
		if !ok {
			return abi.Null, v.methodError(name, args)
		}
		if !n.isFloat {
			if fi != nil {
				return v.boxInt(fi(n.i))
			}
			return v.boxInt(n.i)
		}
		return v.boxFloat(f(n.f))
	}
}

func printFunc(newline bool) builtinFunc {
	return func(in *interp, args []abi.Ptr) (abi.Ptr, error) {
		v := in.vm
		var b strings.Builder
		for _, a := range args {
			v.write(&b, a, false)
		}
		if newline {
			b.WriteByte('\n')
		}
		if _, err := io.WriteString(v.out, b.String()); err != nil {
			return abi.Null, v.throw("ErrorException", "write failed: %v", err)
		}
		return v.nothingVal, nil
	}
}

func builtinString(in *interp, args []abi.Ptr) (abi.Ptr, error) {
	var b strings.Builder
	for _, a := range args {
		in.vm.write(&b, a, false)
	}
	return in.vm.newString(b.String())
}

func builtinRepr(in *interp, args []abi.Ptr) (abi.Ptr, error) {
	if len(args) != 1 {
		return abi.Null, in.vm.methodError("repr", args)
	}
	return in.vm.newString(in.vm.show(args[0]))
}

func builtinTypeof(in *interp, args []abi.Ptr) (abi.Ptr, error) {
	if len(args) != 1 {
		return abi.Null, in.vm.methodError("typeof", args)
	}
	return in.vm.objs[args[0]].typ.ptr, nil
}

func builtinError(in *interp, args []abi.Ptr) (abi.Ptr, error) {
	var b strings.Builder
	for _, a := range args {
		in.vm.write(&b, a, false)
	}
	return abi.Null, in.vm.throw("ErrorException", "%s", b.String())
}

func builtinThrow(in *interp, args []abi.Ptr) (abi.Ptr, error) {
	if len(args) != 1 {
		return abi.Null, in.vm.methodError("throw", args)
	}
	return abi.Null, &thrown{exc: args[0], msg: in.vm.showError(args[0])}
}

func builtinGetfield(in *interp, args []abi.Ptr) (abi.Ptr, error) {
	v := in.vm
	if len(args) != 2 {
		return abi.Null, v.methodError("getfield", args)
	}
	switch o := v.objs[args[1]]; o.kind() {
	case kindSymbol:
		return v.getField(args[0], v.stringOf(args[1]))
	case kindInt64:
		return v.nthField(args[0], int(v.intOf(args[1]))-1)
	}
	return abi.Null, v.methodError("getfield", args)
}

// Type constructors.

func constructFloat64(in *interp, args []abi.Ptr) (abi.Ptr, error) {
	v := in.vm
	if len(args) == 1 {
		if n, ok := v.number(args[0]); ok {
			return v.boxFloat(n.float())
		}
	}
	return abi.Null, v.methodError("Float64", args)
}

func constructInt64(in *interp, args []abi.Ptr) (abi.Ptr, error) {
	v := in.vm
	if len(args) == 1 {
		if n, ok := v.number(args[0]); ok {
			i, exact := n.exactInt()
			if !exact {
				return abi.Null, v.throw("InexactError", "Int64(%s)", v.show(args[0]))
			}
			return v.boxInt(i)
		}
	}
	return abi.Null, v.methodError("Int64", args)
}

func constructIDDict(in *interp, args []abi.Ptr) (abi.Ptr, error) {
	if len(args) != 0 {
		return abi.Null, in.vm.methodError("IdDict", args)
	}
	return in.vm.newDict()
}

func constructWeakRef(in *interp, args []abi.Ptr) (abi.Ptr, error) {
	switch len(args) {
	case 0:
		return in.vm.newWeakRef(abi.Null)
	case 1:
		return in.vm.newWeakRef(args[0])
	}
	return abi.Null, in.vm.methodError("WeakRef", args)
}

func exceptionConstructor(t *dataType) builtinFunc {
	return func(in *interp, args []abi.Ptr) (abi.Ptr, error) {
		v := in.vm
		msg := ""
		if len(args) > 1 {
			return abi.Null, v.methodError(t.name, args)
		}
		if len(args) == 1 {
			msg = v.printString(args[0])
		}
		return v.newException(t, msg)
	}
}

func gcCollect(in *interp, args []abi.Ptr) (abi.Ptr, error) {
	if len(args) > 1 {
		return abi.Null, in.vm.methodError("gc", args)
	}
	in.vm.collect()
	return in.vm.nothingVal, nil
}

func gcEnable(in *interp, args []abi.Ptr) (abi.Ptr, error) {
	v := in.vm
	if len(args) != 1 || v.objs[args[0]].kind() != kindBool {
		return abi.Null, v.methodError("enable", args)
	}
	prev := v.gcEnabled
	v.gcEnabled = v.boolOf(args[0])
	return v.boxBool(prev), nil
}

func describe(v *VM, p abi.Ptr) string {
	o := v.objs[p]
	if o.kind() != kindArray {
		return o.typ.full
	}
	a := v.arrayOf(p)
	if a.rank == 1 {
		return fmt.Sprintf("%d-element %s", a.len, a.typ.full)
	}
	dims := make([]string, a.rank)
	for i, d := range a.shape() {
		dims[i] = fmt.Sprint(d)
	}
	return strings.Join(dims, "×") + " " + a.typ.full
}
