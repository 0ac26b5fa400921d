package vm

import (
	"fmt"
	"strings"

	"github.com/wippyai/hostbridge/abi"
)

type builtinTypes struct {
	dataType *dataType
	any      *dataType
	nothing  *dataType
	bool     *dataType
	int64    *dataType
	float64  *dataType
	string   *dataType
	symbol   *dataType
	function *dataType
	module   *dataType
	idDict   *dataType
	weakRef  *dataType

	exceptions map[string]*dataType
}

// exceptionTypes are the exception types the runtime raises. All carry a
// single msg field.
var exceptionTypes = []string{
	"ArgumentError",
	"BoundsError",
	"DimensionMismatch",
	"DomainError",
	"ErrorException",
	"InexactError",
	"KeyError",
	"MethodError",
	"OutOfMemoryError",
	"ParseError",
	"SingularException",
	"StackOverflowError",
	"UndefRefError",
	"UndefVarError",
}

type arrayKey struct {
	elem *dataType
	rank int
}

// newType allocates a permanent DataType object.
func (v *VM) newType(name, full string, k kind) (*dataType, error) {
	t := &dataType{name: name, full: full, kind: k}

	meta := v.types.dataType
	if meta == nil {
		// DataType is its own type
		meta = t
	}
	p, o, err := v.allocObject(meta, abi.TypeBodySize)
	if err != nil {
		return nil, err
	}
	t.ptr = p
	o.dt = t
	v.putU32(abi.Header(p)+abi.HeaderTypeOffset, uint32(meta.ptr))
	v.setPermanent(p, o)

	namePtr, err := v.cstring(name)
	if err != nil {
		return nil, err
	}
	fullPtr, err := v.cstring(full)
	if err != nil {
		return nil, err
	}
	v.putU32(p+abi.TypeNameOffset, uint32(namePtr))
	v.putU32(p+abi.TypeFullNameOffset, uint32(fullPtr))
	return t, nil
}

func (v *VM) bootTypes() error {
	var err error
	mk := func(dst **dataType, name string, k kind) {
		if err != nil {
			return
		}
		*dst, err = v.newType(name, name, k)
	}

	mk(&v.types.dataType, "DataType", kindType)
	mk(&v.types.any, "Any", kindAny)
	mk(&v.types.nothing, "Nothing", kindNothing)
	mk(&v.types.bool, "Bool", kindBool)
	mk(&v.types.int64, "Int64", kindInt64)
	mk(&v.types.float64, "Float64", kindFloat64)
	mk(&v.types.string, "String", kindString)
	mk(&v.types.symbol, "Symbol", kindSymbol)
	mk(&v.types.function, "Function", kindFunction)
	mk(&v.types.module, "Module", kindModule)
	mk(&v.types.idDict, "IdDict", kindDict)
	mk(&v.types.weakRef, "WeakRef", kindWeakRef)
	if err != nil {
		return err
	}
	v.types.idDict.full = "IdDict{Any, Any}"
	v.types.weakRef.fields = []string{"value"}

	v.types.exceptions = make(map[string]*dataType, len(exceptionTypes))
	for _, name := range exceptionTypes {
		t, err := v.newType(name, name, kindException)
		if err != nil {
			return err
		}
		t.fields = []string{"msg"}
		v.types.exceptions[name] = t
	}
	return nil
}

// arrayType returns the cached Array{elem, rank} type.
func (v *VM) arrayType(elem *dataType, rank int) (*dataType, error) {
	key := arrayKey{elem: elem, rank: rank}
	if t, ok := v.arrayTypes[key]; ok {
		return t, nil
	}
	t, err := v.newType("Array", fmt.Sprintf("Array{%s, %d}", elem.full, rank), kindArray)
	if err != nil {
		return nil, err
	}
	t.elem = elem
	t.rank = rank
	v.putU32(t.ptr+abi.TypeElemOffset, uint32(elem.ptr))
	v.putU32(t.ptr+abi.TypeRankOffset, uint32(rank))
	v.arrayTypes[key] = t
	return t, nil
}

func (v *VM) tupleType(elems []abi.Ptr) (*dataType, error) {
	names := make([]string, len(elems))
	for i, e := range elems {
		names[i] = v.objs[e].typ.full
	}
	full := "Tuple{" + strings.Join(names, ", ") + "}"
	if t, ok := v.tupleTypes[full]; ok {
		return t, nil
	}
	t, err := v.newType("Tuple", full, kindTuple)
	if err != nil {
		return nil, err
	}
	v.tupleTypes[full] = t
	return t, nil
}

// isBitsElem reports whether arrays of t store raw 8-byte numbers rather
// than object pointers.
func isBitsElem(t *dataType) bool {
	return t.kind == kindFloat64 || t.kind == kindInt64
}
