package abi

import "github.com/tetratelabs/wazero/api"

// Module and export names shared by the embedded runtime and the bridge.
const (
	// LibraryModule exports the native function table. It is a guest module
	// that forwards every call to NativeModule, so its exports can be
	// resolved like any other module's.
	LibraryModule = "libjulia"

	// NativeModule is the host module that implements the function table.
	NativeModule = "libjulia_native"

	// HeapModule owns the linear memory that backs the embedded heap.
	HeapModule = "jlheap"

	// MemoryExport is the name of the heap module's memory export.
	MemoryExport = "memory"
)

// Func identifies one entry of the native function table.
type Func int

const (
	FnInit Func = iota
	FnAdoptThread
	FnReleaseThread
	FnAtExitHook
	FnMalloc
	FnFree
	FnDlsym
	FnEvalString
	FnSymbol
	FnGetGlobal
	FnSetGlobal
	FnBoxFloat64
	FnUnboxFloat64
	FnBoxInt64
	FnUnboxInt64
	FnTypeof
	FnTypeofStr
	FnTypenameStr
	FnApplyArrayType
	FnAllocArray1D
	FnAllocArray2D
	FnAllocArray3D
	FnPtrToArray1D
	FnPtrToArray
	FnArrayData
	FnArrayLen
	FnArrayRank
	FnArrayDim
	FnArrayDetach
	FnCall
	FnCall0
	FnCall1
	FnCall2
	FnCall3
	FnExceptionOccurred
	FnExceptionClear
	FnGetField
	FnGetNthField
	FnStringPtr
	FnGCCollect
	FnGCEnable
	FnGCIsLive
	FnGCTotalBytes

	NumFuncs
)

// Signature is the core wasm signature of a native function.
type Signature struct {
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
	f64 = api.ValueTypeF64
)

func sig(name string, params []api.ValueType, results ...api.ValueType) Signature {
	return Signature{Name: name, Params: params, Results: results}
}

func p(types ...api.ValueType) []api.ValueType { return types }

// Signatures describes every entry of the native function table, indexed by Func.
// Pointers and handles are i32 addresses into the heap memory.
var Signatures = [NumFuncs]Signature{
	FnInit:              sig("jl_init", nil, i32),
	FnAdoptThread:       sig("jl_adopt_thread", nil, i32),
	FnReleaseThread:     sig("jl_release_thread", p(i32)),
	FnAtExitHook:        sig("jl_atexit_hook", p(i32)),
	FnMalloc:            sig("jl_malloc", p(i32), i32),
	FnFree:              sig("jl_free", p(i32)),
	FnDlsym:             sig("jl_dlsym", p(i32, i32), i32),
	FnEvalString:        sig("jl_eval_string", p(i32, i32), i32),
	FnSymbol:            sig("jl_symbol", p(i32, i32), i32),
	FnGetGlobal:         sig("jl_get_global", p(i32, i32), i32),
	FnSetGlobal:         sig("jl_set_global", p(i32, i32, i32)),
	FnBoxFloat64:        sig("jl_box_float64", p(f64), i32),
	FnUnboxFloat64:      sig("jl_unbox_float64", p(i32), f64),
	FnBoxInt64:          sig("jl_box_int64", p(i64), i32),
	FnUnboxInt64:        sig("jl_unbox_int64", p(i32), i64),
	FnTypeof:            sig("jl_typeof", p(i32), i32),
	FnTypeofStr:         sig("jl_typeof_str", p(i32), i32),
	FnTypenameStr:       sig("jl_typename_str", p(i32), i32),
	FnApplyArrayType:    sig("jl_apply_array_type", p(i32, i32), i32),
	FnAllocArray1D:      sig("jl_alloc_array_1d", p(i32, i32), i32),
	FnAllocArray2D:      sig("jl_alloc_array_2d", p(i32, i32, i32), i32),
	FnAllocArray3D:      sig("jl_alloc_array_3d", p(i32, i32, i32, i32), i32),
	FnPtrToArray1D:      sig("jl_ptr_to_array_1d", p(i32, i32, i32, i32), i32),
	FnPtrToArray:        sig("jl_ptr_to_array", p(i32, i32, i32, i32), i32),
	FnArrayData:         sig("jl_array_data", p(i32), i32),
	FnArrayLen:          sig("jl_array_len", p(i32), i32),
	FnArrayRank:         sig("jl_array_rank", p(i32), i32),
	FnArrayDim:          sig("jl_array_dim", p(i32, i32), i32),
	FnArrayDetach:       sig("jl_array_detach", p(i32, i32), i32),
	FnCall:              sig("jl_call", p(i32, i32, i32), i32),
	FnCall0:             sig("jl_call0", p(i32), i32),
	FnCall1:             sig("jl_call1", p(i32, i32), i32),
	FnCall2:             sig("jl_call2", p(i32, i32, i32), i32),
	FnCall3:             sig("jl_call3", p(i32, i32, i32, i32), i32),
	FnExceptionOccurred: sig("jl_exception_occurred", nil, i32),
	FnExceptionClear:    sig("jl_exception_clear", nil),
	FnGetField:          sig("jl_get_field", p(i32, i32, i32), i32),
	FnGetNthField:       sig("jl_get_nth_field", p(i32, i32), i32),
	FnStringPtr:         sig("jl_string_ptr", p(i32), i32),
	FnGCCollect:         sig("jl_gc_collect", p(i32)),
	FnGCEnable:          sig("jl_gc_enable", p(i32), i32),
	FnGCIsLive:          sig("jl_gc_is_live", p(i32), i32),
	FnGCTotalBytes:      sig("jl_gc_total_bytes", nil, i64),
}

// String returns the exported symbol name.
func (f Func) String() string {
	if f < 0 || f >= NumFuncs {
		return "jl_unknown"
	}
	return Signatures[f].Name
}

// NeedsThread reports whether the function must be called with an adopted
// thread in its context. Bootstrap and raw memory functions do not.
func (f Func) NeedsThread() bool {
	switch f {
	case FnInit, FnAdoptThread, FnReleaseThread, FnAtExitHook, FnMalloc, FnFree, FnDlsym:
		return false
	}
	return true
}

// Data symbols resolvable through jl_dlsym. Each names a u32 cell in the
// first heap page that holds a pointer to the object.
const (
	SymFloat64Type = "jl_float64_type"
	SymInt64Type   = "jl_int64_type"
	SymBoolType    = "jl_bool_type"
	SymStringType  = "jl_string_type"
	SymAnyType     = "jl_any_type"
	SymNothing     = "jl_nothing"
	SymMainModule  = "jl_main_module"
	SymBaseModule  = "jl_base_module"
	SymCoreModule  = "jl_core_module"
)

// DataSymbols lists the data symbols in cell order.
var DataSymbols = []string{
	SymFloat64Type,
	SymInt64Type,
	SymBoolType,
	SymStringType,
	SymAnyType,
	SymNothing,
	SymMainModule,
	SymBaseModule,
	SymCoreModule,
}

// Collection modes for jl_gc_collect.
const (
	GCAuto        = 0
	GCFull        = 1
	GCIncremental = 2
)
