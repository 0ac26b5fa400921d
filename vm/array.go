package vm

import (
	"math"

	"github.com/wippyai/hostbridge/abi"
)

// array is a decoded array header.
type array struct {
	ptr   abi.Ptr
	typ   *dataType
	data  abi.Ptr
	len   int
	rank  int
	flags uint32
	dims  [abi.MaxArrayRank]int
}

func (a *array) elem() *dataType { return a.typ.elem }

func (a *array) bits() bool { return isBitsElem(a.typ.elem) }

func (a *array) shape() []int { return append([]int(nil), a.dims[:a.rank]...) }

func (a *array) external() bool { return a.flags&abi.ArrayFlagExternal != 0 }

func (v *VM) arrayOf(p abi.Ptr) *array {
	o := v.objs[p]
	a := &array{
		ptr:   p,
		typ:   o.typ,
		data:  abi.Ptr(v.u32(p + abi.ArrayDataOffset)),
		len:   int(v.u32(p + abi.ArrayLengthOffset)),
		rank:  int(v.u32(p + abi.ArrayRankOffset)),
		flags: v.u32(p + abi.ArrayFlagsOffset),
	}
	for i := 0; i < a.rank && i < abi.MaxArrayRank; i++ {
		a.dims[i] = int(v.u32(p + abi.ArrayDimsOffset + abi.Ptr(4*i)))
	}
	return a
}

func (v *VM) writeArrayHeader(p, data abi.Ptr, dims []int, flags uint32) {
	n := 1
	for _, d := range dims {
		n *= d
	}
	v.putU32(p+abi.ArrayDataOffset, uint32(data))
	v.putU32(p+abi.ArrayLengthOffset, uint32(n))
	v.putU32(p+abi.ArrayRankOffset, uint32(len(dims)))
	v.putU32(p+abi.ArrayFlagsOffset, flags)
	for i := 0; i < abi.MaxArrayRank; i++ {
		d := 0
		if i < len(dims) {
			d = dims[i]
		}
		v.putU32(p+abi.ArrayDimsOffset+abi.Ptr(4*i), uint32(d))
	}
}

func elemCount(dims []int) (uint64, bool) {
	n := uint64(1)
	for _, d := range dims {
		if d < 0 {
			return 0, false
		}
		n *= uint64(d)
		if n > math.MaxInt32/abi.ElemSize {
			return 0, false
		}
	}
	return n, true
}

// newArray allocates an array that owns zeroed storage for dims.
func (v *VM) newArray(typ *dataType, dims []int) (abi.Ptr, error) {
	n, ok := elemCount(dims)
	if !ok {
		return abi.Null, v.throw("ArgumentError", "invalid array dimensions %v", dims)
	}
	p, _, err := v.allocObject(typ, abi.ArrayBodySize)
	if err != nil {
		return abi.Null, err
	}
	data, err := v.allocRaw(uint32(n * abi.ElemSize))
	if err != nil {
		return abi.Null, err
	}
	v.writeArrayHeader(p, data, dims, abi.ArrayFlagOwned)
	return p, nil
}

// wrapArray creates an array over existing storage. With own set the
// collector frees data together with the array.
func (v *VM) wrapArray(typ *dataType, data abi.Ptr, dims []int, own bool) (abi.Ptr, error) {
	n, ok := elemCount(dims)
	if !ok {
		return abi.Null, v.throw("ArgumentError", "invalid array dimensions %v", dims)
	}
	if data.IsNull() || !v.inBounds(data, n*abi.ElemSize) {
		return abi.Null, v.throw("ArgumentError", "buffer at %#x does not hold %d elements", uint32(data), n)
	}
	p, _, err := v.allocObject(typ, abi.ArrayBodySize)
	if err != nil {
		return abi.Null, err
	}
	flags := uint32(abi.ArrayFlagExternal)
	if own {
		flags |= abi.ArrayFlagOwned
		delete(v.mallocs, data)
	}
	v.writeArrayHeader(p, data, dims, flags)
	return p, nil
}

func (v *VM) slot(a *array, i int) abi.Ptr { return a.data + abi.Ptr(i*abi.ElemSize) }

// load boxes element i, zero based.
func (v *VM) load(a *array, i int) (abi.Ptr, error) {
	raw := v.u64(v.slot(a, i))
	switch a.elem().kind {
	case kindFloat64:
		return v.boxFloat(math.Float64frombits(raw))
	case kindInt64:
		return v.boxInt(int64(raw))
	}
	if raw == 0 {
		return abi.Null, v.throw("UndefRefError", "access to undefined reference")
	}
	return abi.Ptr(raw), nil
}

// store converts val to the element type and writes it at i.
func (v *VM) store(a *array, i int, val abi.Ptr) error {
	bits, err := v.convertElem(a.elem(), val)
	if err != nil {
		return err
	}
	v.putU64(v.slot(a, i), bits)
	return nil
}

func (v *VM) convertElem(elem *dataType, val abi.Ptr) (uint64, error) {
	o := v.objs[val]
	switch elem.kind {
	case kindFloat64:
		n, ok := v.number(val)
		if !ok {
			return 0, v.convertError(elem, o.typ)
		}
		return math.Float64bits(n.float()), nil
	case kindInt64:
		n, ok := v.number(val)
		if !ok {
			return 0, v.convertError(elem, o.typ)
		}
		i, ok := n.exactInt()
		if !ok {
			return 0, v.throw("InexactError", "Int64(%s)", v.show(val))
		}
		return uint64(i), nil
	case kindAny:
		return uint64(val), nil
	}
	if o.typ != elem {
		return 0, v.convertError(elem, o.typ)
	}
	return uint64(val), nil
}

func (v *VM) convertError(to, from *dataType) error {
	return v.throw("MethodError", "Cannot `convert` an object of type %s to an object of type %s", from.full, to.full)
}

// floatsOf copies a numeric array out as float64s.
func (v *VM) floatsOf(a *array) []float64 {
	out := make([]float64, a.len)
	for i := range out {
		raw := v.u64(v.slot(a, i))
		if a.elem().kind == kindInt64 {
			out[i] = float64(int64(raw))
		} else {
			out[i] = math.Float64frombits(raw)
		}
	}
	return out
}

// newFloatArray allocates a Float64 array with the given contents.
func (v *VM) newFloatArray(vals []float64, dims ...int) (abi.Ptr, error) {
	typ, err := v.arrayType(v.types.float64, len(dims))
	if err != nil {
		return abi.Null, err
	}
	p, err := v.newArray(typ, dims)
	if err != nil {
		return abi.Null, err
	}
	a := v.arrayOf(p)
	for i, x := range vals {
		v.putU64(v.slot(a, i), math.Float64bits(x))
	}
	return p, nil
}

// resize reallocates an owned vector's storage to hold n elements.
func (v *VM) resize(a *array, n int) error {
	if a.external() {
		return v.throw("ErrorException", "cannot resize array with shared data")
	}
	if a.rank != 1 {
		return v.throw("ArgumentError", "resize is only supported for vectors")
	}
	size := uint64(n) * abi.ElemSize
	if size > math.MaxInt32 {
		return errOutOfMemory
	}
	if uint64(v.heap.blockSize(uint32(a.data))) < size {
		data, err := v.allocRaw(uint32(size))
		if err != nil {
			return err
		}
		copy(v.readBytes(data, uint32(a.len*abi.ElemSize)), v.readBytes(a.data, uint32(a.len*abi.ElemSize)))
		v.heap.release(uint32(a.data))
		a.data = data
	}
	v.writeArrayHeader(a.ptr, a.data, []int{n}, a.flags)
	a.len = n
	a.dims[0] = n
	return nil
}
