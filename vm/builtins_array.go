package vm

import (
	"math"
	"slices"

	"github.com/wippyai/hostbridge/abi"
)

// numericArray returns the array at p when it holds Float64 or Int64.
func (v *VM) numericArray(p abi.Ptr) (*array, bool) {
	o, ok := v.objs[p]
	if !ok || o.kind() != kindArray {
		return nil, false
	}
	a := v.arrayOf(p)
	return a, a.bits()
}

func (v *VM) numberAt(a *array, i int) number {
	raw := v.u64(v.slot(a, i))
	if a.elem().kind == kindInt64 {
		return intNum(int64(raw))
	}
	return floatNum(math.Float64frombits(raw))
}

func (v *VM) putNumber(a *array, i int, n number) {
	if a.elem().kind == kindInt64 {
		v.putU64(v.slot(a, i), uint64(n.i))
		return
	}
	v.putU64(v.slot(a, i), math.Float64bits(n.float()))
}

// mapArray builds a new array of the same shape from f applied to each element.
func (v *VM) mapArray(a *array, elem *dataType, f func(number) (number, error)) (abi.Ptr, error) {
	typ, err := v.arrayType(elem, a.rank)
	if err != nil {
		return abi.Null, err
	}
	p, err := v.newArray(typ, a.shape())
	if err != nil {
		return abi.Null, err
	}
	out := v.arrayOf(p)
	for i := 0; i < a.len; i++ {
		r, err := f(v.numberAt(a, i))
		if err != nil {
			return abi.Null, err
		}
		v.putNumber(out, i, r)
	}
	return p, nil
}

func (v *VM) elementwise(op string, a, b *array) (abi.Ptr, error) {
	if a.rank != b.rank || a.dims != b.dims {
		return abi.Null, v.throw("DimensionMismatch", "dimensions must match: a has dims %v, b has dims %v", a.shape(), b.shape())
	}
	elem := v.types.int64
	if a.elem().kind == kindFloat64 || b.elem().kind == kindFloat64 {
		elem = v.types.float64
	}
	i := 0
	return v.mapArray(a, elem, func(x number) (number, error) {
		r, err := v.arith(op, x, v.numberAt(b, i))
		i++
		return r, err
	})
}

// indices converts 1-based index arguments.
func (v *VM) indices(args []abi.Ptr) ([]int, error) {
	out := make([]int, len(args))
	for k, p := range args {
		n, ok := v.number(p)
		if !ok || v.objs[p].kind() == kindBool {
			return nil, v.throw("ArgumentError", "invalid index: %s of type %s", v.show(p), v.objs[p].typ.full)
		}
		i, exact := n.exactInt()
		if !exact {
			return nil, v.throw("ArgumentError", "invalid index: %s of type %s", v.show(p), v.objs[p].typ.full)
		}
		out[k] = int(i)
	}
	return out, nil
}

// offset maps 1-based linear or cartesian indices to a zero-based element
// offset in column-major order.
func offset(a *array, idx []int) (int, bool) {
	if len(idx) == 1 {
		i := idx[0] - 1
		return i, i >= 0 && i < a.len
	}
	if len(idx) != a.rank {
		return 0, false
	}
	off, stride := 0, 1
	for k, i := range idx {
		if i < 1 || i > a.dims[k] {
			return 0, false
		}
		off += (i - 1) * stride
		stride *= a.dims[k]
	}
	return off, true
}

func builtinGetindex(in *interp, args []abi.Ptr) (abi.Ptr, error) {
	v := in.vm
	if len(args) < 2 {
		return abi.Null, v.methodError("getindex", args)
	}
	coll := args[0]
	o := v.objs[coll]
	switch o.kind() {
	case kindDict:
		e, ok := o.dict.get(v.keyOf(args[1]))
		if !ok || len(args) != 2 {
			return abi.Null, v.throw("KeyError", "key %s not found", v.show(args[1]))
		}
		return e.val, nil
	case kindTuple:
		idx, err := v.indices(args[1:])
		if err != nil {
			return abi.Null, err
		}
		if len(idx) != 1 || idx[0] < 1 || idx[0] > len(o.elems) {
			return abi.Null, v.boundsError(describe(v, coll), idx)
		}
		return o.elems[idx[0]-1], nil
	case kindArray:
		idx, err := v.indices(args[1:])
		if err != nil {
			return abi.Null, err
		}
		a := v.arrayOf(coll)
		off, ok := offset(a, idx)
		if !ok {
			return abi.Null, v.boundsError(describe(v, coll), idx)
		}
		return v.load(a, off)
	}
	return abi.Null, v.methodError("getindex", args)
}

// builtinSetindex implements setindex!(collection, value, index...).
func builtinSetindex(in *interp, args []abi.Ptr) (abi.Ptr, error) {
	v := in.vm
	if len(args) < 3 {
		return abi.Null, v.methodError("setindex!", args)
	}
	coll, val := args[0], args[1]
	o := v.objs[coll]
	switch o.kind() {
	case kindDict:
		if len(args) != 3 {
			return abi.Null, v.methodError("setindex!", args)
		}
		o.dict.set(v.keyOf(args[2]), args[2], val)
		return coll, nil
	case kindArray:
		idx, err := v.indices(args[2:])
		if err != nil {
			return abi.Null, err
		}
		a := v.arrayOf(coll)
		off, ok := offset(a, idx)
		if !ok {
			return abi.Null, v.boundsError(describe(v, coll), idx)
		}
		if err := v.store(a, off, val); err != nil {
			return abi.Null, err
		}
		return coll, nil
	}
	return abi.Null, v.methodError("setindex!", args)
}

func dictArg(v *VM, name string, args []abi.Ptr, n int) (*idDict, error) {
	if len(args) != n || v.objs[args[0]].kind() != kindDict {
		return nil, v.methodError(name, args)
	}
	return v.objs[args[0]].dict, nil
}

func builtinDelete(in *interp, args []abi.Ptr) (abi.Ptr, error) {
	d, err := dictArg(in.vm, "delete!", args, 2)
	if err != nil {
		return abi.Null, err
	}
	d.delete(in.vm, in.vm.keyOf(args[1]))
	return args[0], nil
}

func builtinHaskey(in *interp, args []abi.Ptr) (abi.Ptr, error) {
	d, err := dictArg(in.vm, "haskey", args, 2)
	if err != nil {
		return abi.Null, err
	}
	_, ok := d.get(in.vm.keyOf(args[1]))
	return in.vm.boxBool(ok), nil
}

func builtinGet(in *interp, args []abi.Ptr) (abi.Ptr, error) {
	d, err := dictArg(in.vm, "get", args, 3)
	if err != nil {
		return abi.Null, err
	}
	if e, ok := d.get(in.vm.keyOf(args[1])); ok {
		return e.val, nil
	}
	return args[2], nil
}

func builtinLength(in *interp, args []abi.Ptr) (abi.Ptr, error) {
	v := in.vm
	if len(args) != 1 {
		return abi.Null, v.methodError("length", args)
	}
	n, ok := v.lengthOf(args[0])
	if !ok {
		return abi.Null, v.methodError("length", args)
	}
	return v.boxInt(int64(n))
}

func (v *VM) lengthOf(p abi.Ptr) (int, bool) {
	o := v.objs[p]
	switch o.kind() {
	case kindArray:
		return v.arrayOf(p).len, true
	case kindString:
		return len([]rune(v.stringOf(p))), true
	case kindTuple:
		return len(o.elems), true
	case kindDict:
		return o.dict.len(), true
	}
	return 0, false
}

func builtinIsempty(in *interp, args []abi.Ptr) (abi.Ptr, error) {
	v := in.vm
	if len(args) != 1 {
		return abi.Null, v.methodError("isempty", args)
	}
	n, ok := v.lengthOf(args[0])
	if !ok {
		return abi.Null, v.methodError("isempty", args)
	}
	return v.boxBool(n == 0), nil
}

func arrayArg(v *VM, name string, args []abi.Ptr) (*array, error) {
	if len(args) == 0 || v.objs[args[0]].kind() != kindArray {
		return nil, v.methodError(name, args)
	}
	return v.arrayOf(args[0]), nil
}

func builtinSize(in *interp, args []abi.Ptr) (abi.Ptr, error) {
	v := in.vm
	a, err := arrayArg(v, "size", args)
	if err != nil {
		return abi.Null, err
	}
	switch len(args) {
	case 1:
		dims := make([]abi.Ptr, a.rank)
		for i, d := range a.shape() {
			if dims[i], err = v.boxInt(int64(d)); err != nil {
				return abi.Null, err
			}
		}
		return v.newTuple(dims)
	case 2:
		idx, err := v.indices(args[1:])
		if err != nil {
			return abi.Null, err
		}
		d := idx[0]
		if d < 1 {
			return abi.Null, v.throw("ArgumentError", "dimension out of range")
		}
		if d > a.rank {
			return v.boxInt(1)
		}
		return v.boxInt(int64(a.dims[d-1]))
	}
	return abi.Null, v.methodError("size", args)
}

func builtinNdims(in *interp, args []abi.Ptr) (abi.Ptr, error) {
	a, err := arrayArg(in.vm, "ndims", args)
	if err != nil || len(args) != 1 {
		return abi.Null, in.vm.methodError("ndims", args)
	}
	return in.vm.boxInt(int64(a.rank))
}

func builtinEltype(in *interp, args []abi.Ptr) (abi.Ptr, error) {
	a, err := arrayArg(in.vm, "eltype", args)
	if err != nil || len(args) != 1 {
		return abi.Null, in.vm.methodError("eltype", args)
	}
	return a.elem().ptr, nil
}

func reduceFunc(name string) builtinFunc {
	return func(in *interp, args []abi.Ptr) (abi.Ptr, error) {
		v := in.vm
		if len(args) != 1 {
			return abi.Null, v.methodError(name, args)
		}
		a, ok := v.numericArray(args[0])
		if !ok {
			return abi.Null, v.methodError(name, args)
		}
		if a.len == 0 {
			switch name {
			case "sum":
				return v.boxNumber(v.zeroOf(a.elem(), 0))
			case "prod":
				return v.boxNumber(v.zeroOf(a.elem(), 1))
			}
			return abi.Null, v.throw("ArgumentError", "reducing over an empty collection is not allowed")
		}
		acc := v.numberAt(a, 0)
		for i := 1; i < a.len; i++ {
			x := v.numberAt(a, i)
			switch name {
			case "sum":
				acc, _ = v.arith("+", acc, x)
			case "prod":
				acc, _ = v.arith("*", acc, x)
			case "maximum":
				if compare(">", x, acc) || x.isFloat && math.IsNaN(x.f) {
					acc = x
				}
			case "minimum":
				if compare("<", x, acc) || x.isFloat && math.IsNaN(x.f) {
					acc = x
				}
			}
		}
		return v.boxNumber(acc)
	}
}

func (v *VM) zeroOf(elem *dataType, x int64) number {
	if elem.kind == kindFloat64 {
		return floatNum(float64(x))
	}
	return intNum(x)
}

func reverseFunc(inPlace bool) builtinFunc {
	name := "reverse"
	if inPlace {
		name = "reverse!"
	}
	return func(in *interp, args []abi.Ptr) (abi.Ptr, error) {
		v := in.vm
		a, err := arrayArg(v, name, args)
		if err != nil || len(args) != 1 {
			return abi.Null, v.methodError(name, args)
		}
		target := a
		if !inPlace {
			p, err := v.copyArray(a)
			if err != nil {
				return abi.Null, err
			}
			target = v.arrayOf(p)
		}
		for i, j := 0, target.len-1; i < j; i, j = i+1, j-1 {
			x, y := v.u64(v.slot(target, i)), v.u64(v.slot(target, j))
			v.putU64(v.slot(target, i), y)
			v.putU64(v.slot(target, j), x)
		}
		return target.ptr, nil
	}
}

func sortFunc(inPlace bool) builtinFunc {
	name := "sort"
	if inPlace {
		name = "sort!"
	}
	return func(in *interp, args []abi.Ptr) (abi.Ptr, error) {
		v := in.vm
		if len(args) != 1 {
			return abi.Null, v.methodError(name, args)
		}
		a, ok := v.numericArray(args[0])
		if !ok || a.rank != 1 {
			return abi.Null, v.methodError(name, args)
		}
		target := a
		if !inPlace {
			p, err := v.copyArray(a)
			if err != nil {
				return abi.Null, err
			}
			target = v.arrayOf(p)
		}
		vals := make([]number, target.len)
		for i := range vals {
			vals[i] = v.numberAt(target, i)
		}
		slices.SortStableFunc(vals, func(x, y number) int {
			switch {
			case x.isFloat && math.IsNaN(x.f):
				if y.isFloat && math.IsNaN(y.f) {
					return 0
				}
				return 1
			case y.isFloat && math.IsNaN(y.f):
				return -1
			case compare("<", x, y):
				return -1
			case compare(">", x, y):
				return 1
			}
			return 0
		})
		for i, x := range vals {
			v.putNumber(target, i, x)
		}
		return target.ptr, nil
	}
}

func (v *VM) copyArray(a *array) (abi.Ptr, error) {
	p, err := v.newArray(a.typ, a.shape())
	if err != nil {
		return abi.Null, err
	}
	out := v.arrayOf(p)
	n := uint32(a.len * abi.ElemSize)
	copy(v.readBytes(out.data, n), v.readBytes(a.data, n))
	return p, nil
}

func builtinCopy(in *interp, args []abi.Ptr) (abi.Ptr, error) {
	v := in.vm
	if len(args) != 1 {
		return abi.Null, v.methodError("copy", args)
	}
	switch o := v.objs[args[0]]; o.kind() {
	case kindArray:
		return v.copyArray(v.arrayOf(args[0]))
	case kindDict:
		p, err := v.newDict()
		if err != nil {
			return abi.Null, err
		}
		d := v.objs[p].dict
		for _, e := range o.dict.entries {
			d.set(v.keyOf(e.key), e.key, e.val)
		}
		return p, nil
	}
	return args[0], nil
}

// dimsArgs reads trailing dimension arguments, allowing one tuple.
func (v *VM) dimsArgs(args []abi.Ptr) ([]int, error) {
	if len(args) == 1 {
		if o := v.objs[args[0]]; o.kind() == kindTuple {
			args = o.elems
		}
	}
	if len(args) == 0 || len(args) > abi.MaxArrayRank {
		return nil, v.throw("ArgumentError", "arrays of rank %d are not supported", len(args))
	}
	dims, err := v.indices(args)
	if err != nil {
		return nil, err
	}
	for _, d := range dims {
		if d < 0 {
			return nil, v.throw("ArgumentError", "invalid Array dimensions")
		}
	}
	return dims, nil
}

func filledFunc(name string, x int64) builtinFunc {
	return func(in *interp, args []abi.Ptr) (abi.Ptr, error) {
		v := in.vm
		elem := v.types.float64
		if len(args) > 0 {
			if o := v.objs[args[0]]; o.kind() == kindType {
				if !isBitsElem(o.dt) {
					return abi.Null, v.methodError(name, args)
				}
				elem = o.dt
				args = args[1:]
			}
		}
		dims, err := v.dimsArgs(args)
		if err != nil {
			return abi.Null, err
		}
		typ, err := v.arrayType(elem, len(dims))
		if err != nil {
			return abi.Null, err
		}
		p, err := v.newArray(typ, dims)
		if err != nil {
			return abi.Null, err
		}
		if x != 0 {
			a := v.arrayOf(p)
			for i := 0; i < a.len; i++ {
				v.putNumber(a, i, v.zeroOf(elem, x))
			}
		}
		return p, nil
	}
}

func builtinFill(in *interp, args []abi.Ptr) (abi.Ptr, error) {
	v := in.vm
	if len(args) < 2 {
		return abi.Null, v.methodError("fill", args)
	}
	dims, err := v.dimsArgs(args[1:])
	if err != nil {
		return abi.Null, err
	}
	elem := v.objs[args[0]].typ
	if !isBitsElem(elem) {
		elem = v.types.any
	}
	typ, err := v.arrayType(elem, len(dims))
	if err != nil {
		return abi.Null, err
	}
	p, err := v.newArray(typ, dims)
	if err != nil {
		return abi.Null, err
	}
	a := v.arrayOf(p)
	for i := 0; i < a.len; i++ {
		if err := v.store(a, i, args[0]); err != nil {
			return abi.Null, err
		}
	}
	return p, nil
}

func builtinPush(in *interp, args []abi.Ptr) (abi.Ptr, error) {
	v := in.vm
	a, err := arrayArg(v, "push!", args)
	if err != nil {
		return abi.Null, err
	}
	for _, x := range args[1:] {
		// convert first so a failed push leaves the array unchanged
		if _, err := v.convertElem(a.elem(), x); err != nil {
			return abi.Null, err
		}
		if err := v.resize(a, a.len+1); err != nil {
			return abi.Null, err
		}
		if err := v.store(a, a.len-1, x); err != nil {
			return abi.Null, err
		}
	}
	return a.ptr, nil
}

func endFunc(name string, first bool) builtinFunc {
	return func(in *interp, args []abi.Ptr) (abi.Ptr, error) {
		v := in.vm
		if len(args) != 1 {
			return abi.Null, v.methodError(name, args)
		}
		n, ok := v.lengthOf(args[0])
		if !ok || v.objs[args[0]].kind() == kindDict || v.objs[args[0]].kind() == kindString {
			return abi.Null, v.methodError(name, args)
		}
		if n == 0 {
			return abi.Null, v.throw("BoundsError", "attempt to access %s at index [%d]", describe(v, args[0]), 1)
		}
		i := int64(n)
		if first {
			i = 1
		}
		idx, err := v.boxInt(i)
		if err != nil {
			return abi.Null, err
		}
		return builtinGetindex(in, []abi.Ptr{args[0], idx})
	}
}

// promote picks the element type for a literal built from vals.
func (v *VM) promote(vals []abi.Ptr) *dataType {
	if len(vals) == 0 {
		return v.types.any
	}
	elem := v.types.int64
	for _, p := range vals {
		switch v.objs[p].kind() {
		case kindInt64:
		case kindFloat64:
			elem = v.types.float64
		default:
			return v.types.any
		}
	}
	return elem
}

func (v *VM) vectorOf(vals []abi.Ptr) (abi.Ptr, error) {
	typ, err := v.arrayType(v.promote(vals), 1)
	if err != nil {
		return abi.Null, err
	}
	p, err := v.newArray(typ, []int{len(vals)})
	if err != nil {
		return abi.Null, err
	}
	a := v.arrayOf(p)
	for i, x := range vals {
		if err := v.store(a, i, x); err != nil {
			return abi.Null, err
		}
	}
	return p, nil
}

// builtinVect builds [a, b, c].
func builtinVect(in *interp, args []abi.Ptr) (abi.Ptr, error) {
	return in.vm.vectorOf(args)
}

// builtinVcat builds [a; b; c], splicing vectors into the result.
func builtinVcat(in *interp, args []abi.Ptr) (abi.Ptr, error) {
	v := in.vm
	var vals []abi.Ptr
	for _, p := range args {
		if v.objs[p].kind() != kindArray {
			vals = append(vals, p)
			continue
		}
		a := v.arrayOf(p)
		if a.rank != 1 {
			return abi.Null, v.throw("ArgumentError", "vcat of rank %d arrays is not supported", a.rank)
		}
		for i := 0; i < a.len; i++ {
			x, err := v.load(a, i)
			if err != nil {
				return abi.Null, err
			}
			vals = append(vals, x)
		}
	}
	return v.vectorOf(vals)
}
