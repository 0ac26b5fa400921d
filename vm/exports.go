package vm

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/abi"
	"github.com/wippyai/hostbridge/errors"
)

var exports = [abi.NumFuncs]exportFunc{
	abi.FnInit:              exportInit,
	abi.FnAdoptThread:       exportAdoptThread,
	abi.FnReleaseThread:     exportReleaseThread,
	abi.FnAtExitHook:        exportAtExit,
	abi.FnMalloc:            exportMalloc,
	abi.FnFree:              exportFree,
	abi.FnDlsym:             exportDlsym,
	abi.FnEvalString:        exportEvalString,
	abi.FnSymbol:            exportSymbol,
	abi.FnGetGlobal:         exportGetGlobal,
	abi.FnSetGlobal:         exportSetGlobal,
	abi.FnBoxFloat64:        exportBoxFloat64,
	abi.FnUnboxFloat64:      exportUnboxFloat64,
	abi.FnBoxInt64:          exportBoxInt64,
	abi.FnUnboxInt64:        exportUnboxInt64,
	abi.FnTypeof:            exportTypeof,
	abi.FnTypeofStr:         typeString(abi.TypeFullNameOffset),
	abi.FnTypenameStr:       typeString(abi.TypeNameOffset),
	abi.FnApplyArrayType:    exportApplyArrayType,
	abi.FnAllocArray1D:      allocArray(1),
	abi.FnAllocArray2D:      allocArray(2),
	abi.FnAllocArray3D:      allocArray(3),
	abi.FnPtrToArray1D:      exportPtrToArray1D,
	abi.FnPtrToArray:        exportPtrToArray,
	abi.FnArrayData:         arrayField(func(a *array) uint64 { return uint64(a.data) }),
	abi.FnArrayLen:          arrayField(func(a *array) uint64 { return uint64(a.len) }),
	abi.FnArrayRank:         arrayField(func(a *array) uint64 { return uint64(a.rank) }),
	abi.FnArrayDim:          exportArrayDim,
	abi.FnArrayDetach:       exportArrayDetach,
	abi.FnCall:              exportCall,
	abi.FnCall0:             callN(0),
	abi.FnCall1:             callN(1),
	abi.FnCall2:             callN(2),
	abi.FnCall3:             callN(3),
	abi.FnExceptionOccurred: exportExceptionOccurred,
	abi.FnExceptionClear:    exportExceptionClear,
	abi.FnGetField:          exportGetField,
	abi.FnGetNthField:       exportGetNthField,
	abi.FnStringPtr:         exportStringPtr,
	abi.FnGCCollect:         exportGCCollect,
	abi.FnGCEnable:          exportGCEnable,
	abi.FnGCIsLive:          exportGCIsLive,
	abi.FnGCTotalBytes:      exportGCTotalBytes,
}

func ptrAt(stack []uint64, i int) abi.Ptr { return abi.Ptr(uint32(stack[i])) }

// arg resolves a handle argument and keeps it alive for the call.
func (in *interp) arg(stack []uint64, i int, what string) (abi.Ptr, *object) {
	p := ptrAt(stack, i)
	o := in.vm.object(p, what)
	in.vm.temps = append(in.vm.temps, p)
	return p, o
}

// argOf is arg restricted to one kind.
func (in *interp) argOf(stack []uint64, i int, k kind, what string) (abi.Ptr, *object) {
	p, o := in.arg(stack, i, what)
	if o.kind() != k {
		panic(errors.New(errors.PhaseInvoke, errors.KindTypeMismatch).
			Path(what).
			RuntimeType(o.typ.full).
			Detail("unexpected value type").
			Build())
	}
	return p, o
}

func (v *VM) readString(ptr abi.Ptr, n uint32) string {
	if ptr.IsNull() && n > 0 {
		panic(errors.NullHandle(errors.PhaseInvoke, "string"))
	}
	return string(v.readBytes(ptr, n))
}

func exportInit(in *interp, stack []uint64) error {
	v := in.vm
	if !v.initialized {
		if err := v.boot(); err != nil {
			panic(errors.Wrap(errors.PhaseInit, errors.KindAllocation, err, "boot runtime"))
		}
		v.initialized = true
		Logger().Info("runtime initialized",
			zap.Int("objects", len(v.objs)),
			zap.Uint64("heap_bytes", v.heap.inUse))
	}
	stack[0] = 1
	return nil
}

func exportAdoptThread(in *interp, stack []uint64) error {
	v := in.vm
	v.nextTID++
	v.threads[v.nextTID] = &thread{id: v.nextTID}
	Logger().Debug("thread adopted", zap.Uint32("thread", v.nextTID))
	stack[0] = uint64(v.nextTID)
	return nil
}

func exportReleaseThread(in *interp, stack []uint64) error {
	tid := uint32(stack[0])
	delete(in.vm.threads, tid)
	Logger().Debug("thread released", zap.Uint32("thread", tid))
	return nil
}

func exportAtExit(in *interp, stack []uint64) error {
	v := in.vm
	if v.exited {
		return nil
	}
	v.exited = true
	Logger().Info("runtime exiting",
		zap.Int32("code", int32(uint32(stack[0]))),
		zap.Int("collections", v.collections),
		zap.Int("objects", len(v.objs)))
	return nil
}

func exportMalloc(in *interp, stack []uint64) error {
	v := in.vm
	p, err := v.allocRaw(uint32(stack[0]))
	if err != nil {
		stack[0] = 0
		return nil
	}
	v.mallocs[p] = struct{}{}
	stack[0] = uint64(p)
	return nil
}

func exportFree(in *interp, stack []uint64) error {
	v := in.vm
	p := ptrAt(stack, 0)
	if p.IsNull() {
		return nil
	}
	if _, ok := v.mallocs[p]; !ok {
		panic(errors.InvalidInput(errors.PhaseMarshal, fmt.Sprintf("jl_free of pointer %#x not returned by jl_malloc", uint32(p))))
	}
	delete(v.mallocs, p)
	v.heap.release(uint32(p))
	return nil
}

func exportDlsym(in *interp, stack []uint64) error {
	name := in.vm.readString(ptrAt(stack, 0), uint32(stack[1]))
	stack[0] = 0
	for i, sym := range abi.DataSymbols {
		if sym == name {
			stack[0] = uint64(abi.SymbolCell(i))
		}
	}
	return nil
}

func exportEvalString(in *interp, stack []uint64) error {
	src := in.vm.readString(ptrAt(stack, 0), uint32(stack[1]))
	p, err := in.evalString(src)
	if err != nil {
		return err
	}
	stack[0] = uint64(p)
	return nil
}

func exportSymbol(in *interp, stack []uint64) error {
	name := in.vm.readString(ptrAt(stack, 0), uint32(stack[1]))
	p, err := in.vm.intern(name)
	if err != nil {
		return err
	}
	stack[0] = uint64(p)
	return nil
}

func exportGetGlobal(in *interp, stack []uint64) error {
	v := in.vm
	_, mod := in.argOf(stack, 0, kindModule, "module")
	sym, _ := in.argOf(stack, 1, kindSymbol, "symbol")
	p, _ := mod.mod.resolve(v.stringOf(sym))
	stack[0] = uint64(p)
	return nil
}

func exportSetGlobal(in *interp, stack []uint64) error {
	v := in.vm
	_, mod := in.argOf(stack, 0, kindModule, "module")
	sym, _ := in.argOf(stack, 1, kindSymbol, "symbol")
	val, _ := in.arg(stack, 2, "value")
	if mod.mod.set(v.stringOf(sym), val, false) {
		return v.throw("ErrorException", "invalid redefinition of constant %s", v.stringOf(sym))
	}
	return nil
}

func exportBoxFloat64(in *interp, stack []uint64) error {
	p, err := in.vm.boxFloat(api.DecodeF64(stack[0]))
	if err != nil {
		return err
	}
	stack[0] = uint64(p)
	return nil
}

func exportUnboxFloat64(in *interp, stack []uint64) error {
	p, _ := in.argOf(stack, 0, kindFloat64, "Float64 box")
	stack[0] = api.EncodeF64(in.vm.floatOf(p))
	return nil
}

func exportBoxInt64(in *interp, stack []uint64) error {
	p, err := in.vm.boxInt(int64(stack[0]))
	if err != nil {
		return err
	}
	stack[0] = uint64(p)
	return nil
}

func exportUnboxInt64(in *interp, stack []uint64) error {
	p, _ := in.argOf(stack, 0, kindInt64, "Int64 box")
	stack[0] = uint64(in.vm.intOf(p))
	return nil
}

func exportTypeof(in *interp, stack []uint64) error {
	_, o := in.arg(stack, 0, "value")
	stack[0] = uint64(o.typ.ptr)
	return nil
}

// typeString returns one of the C strings stored in the value's DataType.
func typeString(off abi.Ptr) exportFunc {
	return func(in *interp, stack []uint64) error {
		_, o := in.arg(stack, 0, "value")
		stack[0] = uint64(in.vm.u32(o.typ.ptr + off))
		return nil
	}
}

func exportApplyArrayType(in *interp, stack []uint64) error {
	v := in.vm
	_, elem := in.argOf(stack, 0, kindType, "element type")
	rank := int(int32(uint32(stack[1])))
	if rank < 1 || rank > abi.MaxArrayRank {
		return v.throw("ArgumentError", "array rank %d is not supported", rank)
	}
	t, err := v.arrayType(elem.dt, rank)
	if err != nil {
		return err
	}
	stack[0] = uint64(t.ptr)
	return nil
}

// arrayTypeArg resolves an array type argument of the given rank, or of
// any rank when rank is 0.
func (in *interp) arrayTypeArg(stack []uint64, i, rank int) (*dataType, error) {
	_, o := in.argOf(stack, i, kindType, "array type")
	if o.dt.kind != kindArray {
		return nil, in.vm.throw("ArgumentError", "%s is not an array type", o.dt.full)
	}
	if rank != 0 && o.dt.rank != rank {
		return nil, in.vm.throw("ArgumentError", "%s does not have rank %d", o.dt.full, rank)
	}
	return o.dt, nil
}

func dimsAt(stack []uint64, from, n int) []int {
	dims := make([]int, n)
	for i := range dims {
		dims[i] = int(int32(uint32(stack[from+i])))
	}
	return dims
}

func allocArray(rank int) exportFunc {
	return func(in *interp, stack []uint64) error {
		typ, err := in.arrayTypeArg(stack, 0, rank)
		if err != nil {
			return err
		}
		p, err := in.vm.newArray(typ, dimsAt(stack, 1, rank))
		if err != nil {
			return err
		}
		stack[0] = uint64(p)
		return nil
	}
}

func exportPtrToArray1D(in *interp, stack []uint64) error {
	typ, err := in.arrayTypeArg(stack, 0, 1)
	if err != nil {
		return err
	}
	p, err := in.vm.wrapArray(typ, ptrAt(stack, 1), dimsAt(stack, 2, 1), stack[3] != 0)
	if err != nil {
		return err
	}
	stack[0] = uint64(p)
	return nil
}

func exportPtrToArray(in *interp, stack []uint64) error {
	v := in.vm
	typ, err := in.arrayTypeArg(stack, 0, 0)
	if err != nil {
		return err
	}
	dimsPtr := ptrAt(stack, 2)
	dims := make([]int, typ.rank)
	for i := range dims {
		dims[i] = int(int32(v.u32(dimsPtr + abi.Ptr(4*i))))
	}
	p, err := v.wrapArray(typ, ptrAt(stack, 1), dims, stack[3] != 0)
	if err != nil {
		return err
	}
	stack[0] = uint64(p)
	return nil
}

func arrayField(get func(*array) uint64) exportFunc {
	return func(in *interp, stack []uint64) error {
		p, _ := in.argOf(stack, 0, kindArray, "array")
		stack[0] = get(in.vm.arrayOf(p))
		return nil
	}
}

func exportArrayDim(in *interp, stack []uint64) error {
	v := in.vm
	p, _ := in.argOf(stack, 0, kindArray, "array")
	a := v.arrayOf(p)
	d := int(int32(uint32(stack[1])))
	if d < 0 || d >= a.rank {
		return v.throw("BoundsError", "dimension %d out of range for rank %d", d, a.rank)
	}
	stack[0] = uint64(a.dims[d])
	return nil
}

// exportArrayDetach clears an array's reference to data so the buffer can be
// freed by its owner. Handles that no longer name a live array are ignored.
func exportArrayDetach(in *interp, stack []uint64) error {
	v := in.vm
	p, data := ptrAt(stack, 0), ptrAt(stack, 1)
	stack[0] = 0
	o, ok := v.lookup(p)
	if !ok || o.kind() != kindArray {
		return nil
	}
	a := v.arrayOf(p)
	if a.data != data || data.IsNull() {
		return nil
	}
	v.writeArrayHeader(p, abi.Null, make([]int, a.rank), 0)
	stack[0] = 1
	return nil
}

func exportCall(in *interp, stack []uint64) error {
	v := in.vm
	fn, _ := in.arg(stack, 0, "callable")
	argv := ptrAt(stack, 1)
	n := int(int32(uint32(stack[2])))
	if n < 0 {
		panic(errors.InvalidInput(errors.PhaseInvoke, fmt.Sprintf("negative argument count %d", n)))
	}
	args := make([]abi.Ptr, n)
	for i := range args {
		args[i] = abi.Ptr(v.u32(argv + abi.Ptr(4*i)))
		v.object(args[i], fmt.Sprintf("argument %d", i+1))
		v.temps = append(v.temps, args[i])
	}
	r, err := in.invoke(fn, args)
	if err != nil {
		return err
	}
	stack[0] = uint64(r)
	return nil
}

func callN(n int) exportFunc {
	return func(in *interp, stack []uint64) error {
		fn, _ := in.arg(stack, 0, "callable")
		args := make([]abi.Ptr, n)
		for i := range args {
			args[i], _ = in.arg(stack, i+1, fmt.Sprintf("argument %d", i+1))
		}
		r, err := in.invoke(fn, args)
		if err != nil {
			return err
		}
		stack[0] = uint64(r)
		return nil
	}
}

func exportExceptionOccurred(in *interp, stack []uint64) error {
	stack[0] = uint64(in.th.exception)
	return nil
}

func exportExceptionClear(in *interp, _ []uint64) error {
	in.th.exception = abi.Null
	return nil
}

func exportGetField(in *interp, stack []uint64) error {
	p, _ := in.arg(stack, 0, "value")
	name := in.vm.readString(ptrAt(stack, 1), uint32(stack[2]))
	r, err := in.vm.getField(p, name)
	if err != nil {
		return err
	}
	stack[0] = uint64(r)
	return nil
}

func exportGetNthField(in *interp, stack []uint64) error {
	p, _ := in.arg(stack, 0, "value")
	r, err := in.vm.nthField(p, int(int32(uint32(stack[1]))))
	if err != nil {
		return err
	}
	stack[0] = uint64(r)
	return nil
}

func exportStringPtr(in *interp, stack []uint64) error {
	p, o := in.arg(stack, 0, "string")
	if k := o.kind(); k != kindString && k != kindSymbol {
		panic(errors.TypeMismatch(errors.PhaseMarshal, "string", o.typ.full))
	}
	stack[0] = uint64(p + abi.StringDataOffset)
	return nil
}

func exportGCCollect(in *interp, _ []uint64) error {
	in.vm.collect()
	return nil
}

func exportGCEnable(in *interp, stack []uint64) error {
	v := in.vm
	prev := v.gcEnabled
	v.gcEnabled = uint32(stack[0]) != 0
	stack[0] = 0
	if prev {
		stack[0] = 1
	}
	return nil
}

func exportGCIsLive(in *interp, stack []uint64) error {
	_, ok := in.vm.lookup(ptrAt(stack, 0))
	stack[0] = 0
	if ok {
		stack[0] = 1
	}
	return nil
}

func exportGCTotalBytes(in *interp, stack []uint64) error {
	stack[0] = in.vm.heap.inUse
	return nil
}
