package vm

import (
	"math"

	"github.com/wippyai/hostbridge/abi"
	"github.com/wippyai/hostbridge/errors"
)

type kind uint8

const (
	kindNothing kind = iota
	kindBool
	kindInt64
	kindFloat64
	kindString
	kindSymbol
	kindArray
	kindTuple
	kindFunction
	kindModule
	kindType
	kindDict
	kindWeakRef
	kindException
	kindAny
)

// gc bits stored in the object header
const (
	gcBitPermanent = 1 << 1
)

// dataType describes a type. Its DataType object in the heap mirrors name,
// full name, element type and rank for readers on the host side.
type dataType struct {
	ptr    abi.Ptr
	name   string
	full   string
	kind   kind
	elem   *dataType
	rank   int
	fields []string

	// construct makes calling the type build a value, as in IdDict().
	construct builtinFunc
}

type object struct {
	typ  *dataType
	perm bool
	mark bool

	elems  []abi.Ptr // tuple elements and exception fields
	fn     *function
	mod    *module
	dict   *idDict
	dt     *dataType
	target abi.Ptr // weak reference
}

func (o *object) kind() kind { return o.typ.kind }

// Memory accessors. Addresses come from the allocator or were validated
// against the object table, so a failed access is a broken invariant.

func (v *VM) u8(addr abi.Ptr) uint8 {
	b, ok := v.mem.ReadByte(uint32(addr))
	if !ok {
		panic(errors.OutOfBounds(errors.PhaseMarshal, nil, int(addr), int(v.mem.Size())))
	}
	return b
}

func (v *VM) u32(addr abi.Ptr) uint32 {
	x, ok := v.mem.ReadUint32Le(uint32(addr))
	if !ok {
		panic(errors.OutOfBounds(errors.PhaseMarshal, nil, int(addr), int(v.mem.Size())))
	}
	return x
}

func (v *VM) u64(addr abi.Ptr) uint64 {
	x, ok := v.mem.ReadUint64Le(uint32(addr))
	if !ok {
		panic(errors.OutOfBounds(errors.PhaseMarshal, nil, int(addr), int(v.mem.Size())))
	}
	return x
}

func (v *VM) putU8(addr abi.Ptr, x uint8) {
	if !v.mem.WriteByte(uint32(addr), x) {
		panic(errors.OutOfBounds(errors.PhaseMarshal, nil, int(addr), int(v.mem.Size())))
	}
}

func (v *VM) putU32(addr abi.Ptr, x uint32) {
	if !v.mem.WriteUint32Le(uint32(addr), x) {
		panic(errors.OutOfBounds(errors.PhaseMarshal, nil, int(addr), int(v.mem.Size())))
	}
}

func (v *VM) putU64(addr abi.Ptr, x uint64) {
	if !v.mem.WriteUint64Le(uint32(addr), x) {
		panic(errors.OutOfBounds(errors.PhaseMarshal, nil, int(addr), int(v.mem.Size())))
	}
}

func (v *VM) readBytes(addr abi.Ptr, n uint32) []byte {
	b, ok := v.mem.Read(uint32(addr), n)
	if !ok {
		panic(errors.OutOfBounds(errors.PhaseMarshal, nil, int(addr)+int(n), int(v.mem.Size())))
	}
	return b
}

func (v *VM) inBounds(addr abi.Ptr, n uint64) bool {
	return uint64(addr)+n <= uint64(v.mem.Size())
}

// allocObject allocates a zeroed body of size bytes with a header naming typ.
// New objects are reachable through the call's temporaries until the
// exported call returns.
func (v *VM) allocObject(typ *dataType, size uint32) (abi.Ptr, *object, error) {
	v.maybeCollect()
	block, err := v.heap.alloc(size + abi.HeaderSize)
	if err != nil {
		v.collect()
		if block, err = v.heap.alloc(size + abi.HeaderSize); err != nil {
			return abi.Null, nil, errOutOfMemory
		}
	}
	v.sinceGC += uint64(v.heap.blockSize(block))

	ptr := abi.Ptr(block + abi.HeaderSize)
	o := &object{typ: typ}
	v.objs[ptr] = o
	v.putU32(abi.Header(ptr)+abi.HeaderTypeOffset, uint32(typ.ptr))
	v.temps = append(v.temps, ptr)
	return ptr, o, nil
}

// allocRaw allocates an uncollected block, used for array data and C strings.
func (v *VM) allocRaw(size uint32) (abi.Ptr, error) {
	v.maybeCollect()
	block, err := v.heap.alloc(size)
	if err != nil {
		v.collect()
		if block, err = v.heap.alloc(size); err != nil {
			return abi.Null, errOutOfMemory
		}
	}
	v.sinceGC += uint64(v.heap.blockSize(block))
	return abi.Ptr(block), nil
}

// setPermanent excludes the object from collection.
func (v *VM) setPermanent(ptr abi.Ptr, o *object) {
	o.perm = true
	v.putU32(abi.Header(ptr)+abi.HeaderBitsOffset, gcBitPermanent)
}

func (v *VM) lookup(ptr abi.Ptr) (*object, bool) {
	o, ok := v.objs[ptr]
	return o, ok
}

// object resolves a handle passed in from the host. Null and unknown
// handles are faults.
func (v *VM) object(ptr abi.Ptr, what string) *object {
	if ptr.IsNull() {
		panic(errors.NullHandle(errors.PhaseInvoke, what))
	}
	o, ok := v.objs[ptr]
	if !ok {
		panic(errors.DanglingHandle(errors.PhaseInvoke, uint32(ptr)))
	}
	return o
}

// Boxing.

func (v *VM) boxFloat(x float64) (abi.Ptr, error) {
	p, _, err := v.allocObject(v.types.float64, 8)
	if err != nil {
		return abi.Null, err
	}
	v.putU64(p, math.Float64bits(x))
	return p, nil
}

func (v *VM) boxInt(x int64) (abi.Ptr, error) {
	p, _, err := v.allocObject(v.types.int64, 8)
	if err != nil {
		return abi.Null, err
	}
	v.putU64(p, uint64(x))
	return p, nil
}

func (v *VM) boxBool(b bool) abi.Ptr {
	if b {
		return v.trueVal
	}
	return v.falseVal
}

func (v *VM) floatOf(p abi.Ptr) float64 { return math.Float64frombits(v.u64(p)) }
func (v *VM) intOf(p abi.Ptr) int64     { return int64(v.u64(p)) }
func (v *VM) boolOf(p abi.Ptr) bool     { return v.u8(p) != 0 }

// newString allocates a String body: length, bytes and a trailing NUL.
func (v *VM) newString(s string) (abi.Ptr, error) {
	return v.newStringTyped(v.types.string, s)
}

func (v *VM) newStringTyped(typ *dataType, s string) (abi.Ptr, error) {
	p, _, err := v.allocObject(typ, uint32(len(s))+abi.StringDataOffset+1)
	if err != nil {
		return abi.Null, err
	}
	v.putU32(p+abi.StringLengthOffset, uint32(len(s)))
	copy(v.readBytes(p+abi.StringDataOffset, uint32(len(s))), s)
	return p, nil
}

func (v *VM) stringOf(p abi.Ptr) string {
	n := v.u32(p + abi.StringLengthOffset)
	return string(v.readBytes(p+abi.StringDataOffset, n))
}

// cstring allocates a permanent NUL-terminated copy of s.
func (v *VM) cstring(s string) (abi.Ptr, error) {
	p, err := v.allocRaw(uint32(len(s)) + 1)
	if err != nil {
		return abi.Null, err
	}
	copy(v.readBytes(p, uint32(len(s))), s)
	return p, nil
}

// intern returns the permanent Symbol for name.
func (v *VM) intern(name string) (abi.Ptr, error) {
	if p, ok := v.symbols[name]; ok {
		return p, nil
	}
	p, err := v.newStringTyped(v.types.symbol, name)
	if err != nil {
		return abi.Null, err
	}
	v.setPermanent(p, v.objs[p])
	v.symbols[name] = p
	return p, nil
}

func (v *VM) newTuple(elems []abi.Ptr) (abi.Ptr, error) {
	typ, err := v.tupleType(elems)
	if err != nil {
		return abi.Null, err
	}
	p, o, err := v.allocObject(typ, 4*uint32(len(elems)))
	if err != nil {
		return abi.Null, err
	}
	o.elems = append([]abi.Ptr(nil), elems...)
	for i, e := range elems {
		v.putU32(p+abi.Ptr(4*i), uint32(e))
	}
	return p, nil
}

func (v *VM) newWeakRef(target abi.Ptr) (abi.Ptr, error) {
	p, o, err := v.allocObject(v.types.weakRef, 4)
	if err != nil {
		return abi.Null, err
	}
	o.target = target
	v.putU32(p, uint32(target))
	return p, nil
}

func (v *VM) newDict() (abi.Ptr, error) {
	p, o, err := v.allocObject(v.types.idDict, 4)
	if err != nil {
		return abi.Null, err
	}
	o.dict = newIDDict()
	return p, nil
}

func (v *VM) newFunction(fn *function) (abi.Ptr, error) {
	p, o, err := v.allocObject(v.types.function, 4)
	if err != nil {
		return abi.Null, err
	}
	o.fn = fn
	return p, nil
}
