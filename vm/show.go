package vm

import (
	"math"
	"strconv"
	"strings"

	"github.com/wippyai/hostbridge/abi"
)

// formatFloat renders x the way the embedded language prints Float64:
// shortest round-trip digits, always with a decimal point, and exponent
// notation outside 1e-5 < |x| < 1e6.
func formatFloat(x float64) string {
	switch {
	case math.IsNaN(x):
		return "NaN"
	case math.IsInf(x, 1):
		return "Inf"
	case math.IsInf(x, -1):
		return "-Inf"
	case x == 0:
		if math.Signbit(x) {
			return "-0.0"
		}
		return "0.0"
	}

	sci := strconv.FormatFloat(x, 'e', -1, 64)
	mant, expStr, _ := strings.Cut(sci, "e")
	exp, _ := strconv.Atoi(expStr)

	if exp < -4 || exp >= 6 {
		if !strings.Contains(mant, ".") {
			mant += ".0"
		}
		return mant + "e" + strconv.Itoa(exp)
	}

	s := strconv.FormatFloat(x, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// show renders a value in its repr form: strings are quoted.
func (v *VM) show(p abi.Ptr) string {
	var b strings.Builder
	v.write(&b, p, true)
	return b.String()
}

// printString renders a value the way print does: strings are raw.
func (v *VM) printString(p abi.Ptr) string {
	var b strings.Builder
	v.write(&b, p, false)
	return b.String()
}

func (v *VM) write(b *strings.Builder, p abi.Ptr, repr bool) {
	o, ok := v.objs[p]
	if !ok {
		b.WriteString("#undef")
		return
	}
	switch o.kind() {
	case kindNothing:
		b.WriteString("nothing")
	case kindBool:
		b.WriteString(strconv.FormatBool(v.boolOf(p)))
	case kindInt64:
		b.WriteString(strconv.FormatInt(v.intOf(p), 10))
	case kindFloat64:
		b.WriteString(formatFloat(v.floatOf(p)))
	case kindString:
		if repr {
			b.WriteString(strconv.Quote(v.stringOf(p)))
		} else {
			b.WriteString(v.stringOf(p))
		}
	case kindSymbol:
		if repr {
			b.WriteByte(':')
		}
		b.WriteString(v.stringOf(p))
	case kindArray:
		v.writeArray(b, v.arrayOf(p))
	case kindTuple:
		b.WriteByte('(')
		for i, e := range o.elems {
			if i > 0 {
				b.WriteString(", ")
			}
			v.write(b, e, true)
		}
		if len(o.elems) == 1 {
			b.WriteByte(',')
		}
		b.WriteByte(')')
	case kindFunction:
		b.WriteString(o.fn.name)
	case kindModule:
		b.WriteString(o.mod.name)
	case kindType:
		b.WriteString(o.dt.full)
	case kindDict:
		b.WriteString(o.typ.full)
		b.WriteByte('(')
		for i, e := range o.dict.entries {
			if i > 0 {
				b.WriteString(", ")
			}
			v.write(b, e.key, true)
			b.WriteString(" => ")
			v.write(b, e.val, true)
		}
		b.WriteByte(')')
	case kindWeakRef:
		b.WriteString("WeakRef(")
		if o.target.IsNull() {
			b.WriteString("nothing")
		} else {
			v.write(b, o.target, true)
		}
		b.WriteByte(')')
	case kindException:
		b.WriteString(o.typ.name)
		b.WriteByte('(')
		if len(o.elems) > 0 {
			v.write(b, o.elems[0], true)
		}
		b.WriteByte(')')
	default:
		b.WriteString(o.typ.full)
	}
}

func (v *VM) writeArray(b *strings.Builder, a *array) {
	elem := func(i int) {
		raw := v.u64(v.slot(a, i))
		switch a.elem().kind {
		case kindFloat64:
			b.WriteString(formatFloat(math.Float64frombits(raw)))
		case kindInt64:
			b.WriteString(strconv.FormatInt(int64(raw), 10))
		default:
			v.write(b, abi.Ptr(raw), true)
		}
	}

	if a.elem().kind != kindFloat64 && a.elem().kind != kindInt64 || a.len == 0 {
		b.WriteString(a.elem().full)
	}

	switch a.rank {
	case 1:
		b.WriteByte('[')
		for i := 0; i < a.len; i++ {
			if i > 0 {
				b.WriteString(", ")
			}
			elem(i)
		}
		b.WriteByte(']')
	case 2:
		rows, cols := a.dims[0], a.dims[1]
		b.WriteByte('[')
		for r := 0; r < rows; r++ {
			if r > 0 {
				b.WriteString("; ")
			}
			for c := 0; c < cols; c++ {
				if c > 0 {
					b.WriteByte(' ')
				}
				elem(c*rows + r)
			}
		}
		b.WriteByte(']')
	default:
		b.WriteString("reshape([")
		for i := 0; i < a.len; i++ {
			if i > 0 {
				b.WriteString(", ")
			}
			elem(i)
		}
		b.WriteString("]")
		for _, d := range a.shape() {
			b.WriteString(", ")
			b.WriteString(strconv.Itoa(d))
		}
		b.WriteByte(')')
	}
}
