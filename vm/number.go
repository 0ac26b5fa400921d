package vm

import (
	"math"

	"github.com/wippyai/hostbridge/abi"
)

// number is a scalar operand after promotion. Bool counts as an integer.
type number struct {
	isFloat bool
	i       int64
	f       float64
}

func intNum(i int64) number     { return number{i: i} }
func floatNum(f float64) number { return number{isFloat: true, f: f} }

func (n number) float() float64 {
	if n.isFloat {
		return n.f
	}
	return float64(n.i)
}

func (n number) exactInt() (int64, bool) {
	if !n.isFloat {
		return n.i, true
	}
	if n.f != math.Trunc(n.f) || math.IsInf(n.f, 0) || n.f < math.MinInt64 || n.f >= math.MaxInt64 {
		return 0, false
	}
	return int64(n.f), true
}

func (v *VM) number(p abi.Ptr) (number, bool) {
	o, ok := v.objs[p]
	if !ok {
		return number{}, false
	}
	switch o.kind() {
	case kindInt64:
		return intNum(v.intOf(p)), true
	case kindFloat64:
		return floatNum(v.floatOf(p)), true
	case kindBool:
		if v.boolOf(p) {
			return intNum(1), true
		}
		return intNum(0), true
	}
	return number{}, false
}

func (v *VM) boxNumber(n number) (abi.Ptr, error) {
	if n.isFloat {
		return v.boxFloat(n.f)
	}
	return v.boxInt(n.i)
}

// arith applies a binary operator to two scalars with Int64/Float64
// promotion. Integer arithmetic wraps.
func (v *VM) arith(op string, a, b number) (number, error) {
	if op == "/" {
		return floatNum(a.float() / b.float()), nil
	}
	if op == "\\" {
		return floatNum(b.float() / a.float()), nil
	}
	if op == "^" {
		return v.power(a, b)
	}
	if a.isFloat || b.isFloat {
		x, y := a.float(), b.float()
		switch op {
		case "+":
			return floatNum(x + y), nil
		case "-":
			return floatNum(x - y), nil
		case "*":
			return floatNum(x * y), nil
		}
	} else {
		switch op {
		case "+":
			return intNum(a.i + b.i), nil
		case "-":
			return intNum(a.i - b.i), nil
		case "*":
			return intNum(a.i * b.i), nil
		}
	}
	panic("unknown arithmetic operator " + op)
}

func (v *VM) power(a, b number) (number, error) {
	if a.isFloat || b.isFloat {
		x, y := a.float(), b.float()
		if x < 0 && y != math.Trunc(y) {
			return number{}, v.throw("DomainError", "%v^%v: exponentiation yielding a complex result requires a complex argument", x, y)
		}
		return floatNum(math.Pow(x, y)), nil
	}
	if b.i < 0 {
		if a.i == 1 || a.i == -1 {
			if b.i%2 == 0 {
				return intNum(1), nil
			}
			return intNum(a.i), nil
		}
		return number{}, v.throw("DomainError", "Cannot raise an integer x to a negative power %d.", b.i)
	}
	result, base, exp := int64(1), a.i, b.i
	for exp > 0 {
		if exp&1 == 1 {
			result *= base
		}
		base *= base
		exp >>= 1
	}
	return intNum(result), nil
}

func compare(op string, a, b number) bool {
	if !a.isFloat && !b.isFloat {
		switch op {
		case "==":
			return a.i == b.i
		case "!=":
			return a.i != b.i
		case "<":
			return a.i < b.i
		case "<=":
			return a.i <= b.i
		case ">":
			return a.i > b.i
		case ">=":
			return a.i >= b.i
		}
	}
	x, y := a.float(), b.float()
	switch op {
	case "==":
		return x == y
	case "!=":
		return x != y
	case "<":
		return x < y
	case "<=":
		return x <= y
	case ">":
		return x > y
	case ">=":
		return x >= y
	}
	panic("unknown comparison operator " + op)
}
