package bridge

import (
	"context"
	"fmt"

	"github.com/wippyai/hostbridge/abi"
	"github.com/wippyai/hostbridge/errors"
)

var allocFns = [...]abi.Func{abi.FnAllocArray1D, abi.FnAllocArray2D, abi.FnAllocArray3D}

// ApplyArrayType returns the array type with the given element type and
// rank. Results are cached on the runtime.
func (t *Thread) ApplyArrayType(ctx context.Context, elem Type, rank int) (Type, error) {
	if elem.IsNull() {
		return Type{}, errors.NullHandle(errors.PhaseMarshal, "element type")
	}
	if rank < 1 || rank > abi.MaxArrayRank {
		return Type{}, errors.Unsupported(errors.PhaseMarshal, fmt.Sprintf("array rank %d", rank))
	}
	key := arrayTypeKey{elem: elem.ptr, rank: rank}
	if typ, ok := t.rt.cachedArrayType(key); ok {
		return typ, nil
	}
	p, err := t.callPtr(ctx, abi.FnApplyArrayType, uint64(elem.ptr), uint64(rank))
	if err != nil {
		return Type{}, err
	}
	if p.IsNull() {
		return Type{}, t.pendingAsError(ctx, errors.PhaseMarshal, errors.KindInvalidInput)
	}
	typ := Type{ptr: p}
	t.rt.cacheArrayType(key, typ)
	return typ, nil
}

// arrayRank validates an array type against the requested dims.
func (t *Thread) arrayRank(atype Type, dims []int) error {
	if atype.IsNull() {
		return errors.NullHandle(errors.PhaseMarshal, "array type")
	}
	rank, err := atype.rank(t)
	if err != nil {
		return err
	}
	if rank == 0 {
		return errors.InvalidInput(errors.PhaseMarshal, "not an array type")
	}
	if len(dims) != rank {
		return errors.InvalidInput(errors.PhaseMarshal,
			fmt.Sprintf("array type has rank %d, got %d dims", rank, len(dims)))
	}
	for i, d := range dims {
		if d < 0 || d > 1<<31-1 {
			return errors.OutOfBounds(errors.PhaseMarshal, []string{"dims"}, i, d)
		}
	}
	return nil
}

func elemCount(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}

// AllocArray allocates a zeroed array owned by the embedded runtime.
func (t *Thread) AllocArray(ctx context.Context, atype Type, dims ...int) (Value, error) {
	if err := t.usable(); err != nil {
		return Value{}, err
	}
	if err := t.arrayRank(atype, dims); err != nil {
		return Value{}, err
	}
	args := []uint64{uint64(atype.ptr)}
	for _, d := range dims {
		args = append(args, uint64(d))
	}
	p, err := t.callPtr(ctx, allocFns[len(dims)-1], args...)
	if err != nil {
		return Value{}, err
	}
	if p.IsNull() {
		return Value{}, t.pendingAsError(ctx, errors.PhaseMarshal, errors.KindAllocation)
	}
	return Value{ptr: p}, nil
}

// WrapHostBuffer exposes a pinned host buffer as an embedded array without
// copying. With takeOwnership the collector frees the buffer together with
// the array and buf is marked released; this fails with KindInvalidInput
// while buf still backs non-owning wrappers. Otherwise the buffer stays the
// host's and buf detaches the array before it is freed.
func (t *Thread) WrapHostBuffer(ctx context.Context, atype Type, buf *PinnedBuffer, takeOwnership bool, dims ...int) (Value, error) {
	if err := t.usable(); err != nil {
		return Value{}, err
	}
	if buf == nil || buf.released {
		return Value{}, errors.InvalidInput(errors.PhaseMarshal, "pinned buffer is released")
	}
	if takeOwnership && len(buf.wrappers) > 0 {
		return Value{}, errors.InvalidInput(errors.PhaseMarshal,
			fmt.Sprintf("pinned buffer backs %d non-owning arrays", len(buf.wrappers)))
	}
	if len(dims) == 0 {
		dims = []int{buf.n}
	}
	if err := t.arrayRank(atype, dims); err != nil {
		return Value{}, err
	}
	if n := elemCount(dims); n > buf.n {
		return Value{}, errors.LengthMismatch(errors.PhaseMarshal, buf.n, n)
	}

	own := uint64(0)
	if takeOwnership {
		own = 1
	}
	var (
		p   abi.Ptr
		err error
	)
	if len(dims) == 1 {
		p, err = t.callPtr(ctx, abi.FnPtrToArray1D, uint64(atype.ptr), uint64(buf.ptr), uint64(dims[0]), own)
	} else {
		var dimsPtr uint32
		if dimsPtr, err = t.scratchBuf(ctx, uint32(4*len(dims))); err != nil {
			return Value{}, err
		}
		for i, d := range dims {
			if err := t.rt.mem.WriteU32(dimsPtr+uint32(4*i), uint32(d)); err != nil {
				return Value{}, errors.Wrap(errors.PhaseMarshal, errors.KindOutOfBounds, err, "write dims")
			}
		}
		p, err = t.callPtr(ctx, abi.FnPtrToArray, uint64(atype.ptr), uint64(buf.ptr), uint64(dimsPtr), own)
	}
	if err != nil {
		return Value{}, err
	}
	if p.IsNull() {
		return Value{}, t.pendingAsError(ctx, errors.PhaseMarshal, errors.KindInvalidInput)
	}

	v := Value{ptr: p}
	if takeOwnership {
		buf.transfer()
	} else {
		buf.wrappers = append(buf.wrappers, v)
	}
	return v, nil
}

// ArrayDataPointer returns the address of an array's first element. It is
// valid only while the array is rooted.
func (t *Thread) ArrayDataPointer(ctx context.Context, v Value) (abi.Ptr, error) {
	if err := t.check(ctx, errors.PhaseMarshal, v, "array"); err != nil {
		return abi.Null, err
	}
	return t.callPtr(ctx, abi.FnArrayData, uint64(v.ptr))
}

// ArrayLength returns the element count of an array.
func (t *Thread) ArrayLength(ctx context.Context, v Value) (int, error) {
	if err := t.check(ctx, errors.PhaseMarshal, v, "array"); err != nil {
		return 0, err
	}
	n, err := t.call(ctx, abi.FnArrayLen, uint64(v.ptr))
	return int(n), err
}

// ArrayDims returns the dimensions of an array.
func (t *Thread) ArrayDims(ctx context.Context, v Value) ([]int, error) {
	if err := t.check(ctx, errors.PhaseMarshal, v, "array"); err != nil {
		return nil, err
	}
	rank, err := t.call(ctx, abi.FnArrayRank, uint64(v.ptr))
	if err != nil {
		return nil, err
	}
	dims := make([]int, rank)
	for i := range dims {
		d, err := t.call(ctx, abi.FnArrayDim, uint64(v.ptr), uint64(i))
		if err != nil {
			return nil, err
		}
		dims[i] = int(d)
	}
	return dims, nil
}

// Float64s returns a slice that aliases a Float64 array's storage. Writes
// on either side are visible to the other. The slice has the same validity
// window as ArrayDataPointer and must not be appended to.
func (t *Thread) Float64s(ctx context.Context, v Value) ([]float64, error) {
	if err := t.check(ctx, errors.PhaseMarshal, v, "array"); err != nil {
		return nil, err
	}
	if err := t.usable(); err != nil {
		return nil, err
	}
	typ, err := t.typePtrOf(v)
	if err != nil {
		return nil, err
	}
	elem, err := t.rt.mem.ReadU32(uint32(typ + abi.TypeElemOffset))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseMarshal, errors.KindOutOfBounds, err, "read element type")
	}
	if abi.Ptr(elem) != t.rt.float64Type.ptr {
		name, err := t.TypeOf(ctx, v)
		if err != nil {
			return nil, err
		}
		return nil, errors.TypeMismatch(errors.PhaseMarshal, "[]float64", name)
	}
	data, err := t.ArrayDataPointer(ctx, v)
	if err != nil {
		return nil, err
	}
	n, err := t.ArrayLength(ctx, v)
	if err != nil {
		return nil, err
	}
	view, err := t.rt.mem.Float64s(uint32(data), n)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseMarshal, errors.KindOutOfBounds, err, "array view")
	}
	return view, nil
}

// CopyIn allocates a Float64 array with the given dims, one dimension of
// len(src) by default, and copies src into it.
func (t *Thread) CopyIn(ctx context.Context, src []float64, dims ...int) (Value, error) {
	if len(dims) == 0 {
		dims = []int{len(src)}
	}
	if n := elemCount(dims); n != len(src) {
		return Value{}, errors.LengthMismatch(errors.PhaseMarshal, len(src), n)
	}
	atype, err := t.ApplyArrayType(ctx, t.rt.float64Type, len(dims))
	if err != nil {
		return Value{}, err
	}
	v, err := t.AllocArray(ctx, atype, dims...)
	if err != nil {
		return Value{}, err
	}
	view, err := t.Float64s(ctx, v)
	if err != nil {
		return Value{}, err
	}
	copy(view, src)
	return v, nil
}

// CopyOut copies a Float64 array into dst. The lengths must match.
func (t *Thread) CopyOut(ctx context.Context, v Value, dst []float64) error {
	view, err := t.Float64s(ctx, v)
	if err != nil {
		return err
	}
	if len(view) != len(dst) {
		return errors.LengthMismatch(errors.PhaseMarshal, len(dst), len(view))
	}
	copy(dst, view)
	return nil
}
