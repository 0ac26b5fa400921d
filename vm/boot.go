package vm

import (
	"math"

	"github.com/wippyai/hostbridge/abi"
)

func (v *VM) newModuleObject(m *module) (abi.Ptr, error) {
	p, o, err := v.allocObject(v.types.module, 4)
	if err != nil {
		return abi.Null, err
	}
	o.mod = m
	v.setPermanent(p, o)
	v.modPtrs[m] = p
	return p, nil
}

func (v *VM) defineBuiltin(m *module, name string, fn builtinFunc) error {
	p, err := v.newFunction(&function{name: name, builtin: fn})
	if err != nil {
		return err
	}
	v.setPermanent(p, v.objs[p])
	m.set(name, p, true)
	return nil
}

func (v *VM) permanent(p abi.Ptr, err error) (abi.Ptr, error) {
	if err != nil {
		return abi.Null, err
	}
	v.setPermanent(p, v.objs[p])
	return p, nil
}

// boot builds the type system, the Core, Base, Main and GC modules and the
// data-symbol cells.
func (v *VM) boot() error {
	if err := v.bootTypes(); err != nil {
		return err
	}
	t := &v.types

	var err error
	if v.nothingVal, err = v.permanent(v.allocBody(t.nothing, 0)); err != nil {
		return err
	}
	if v.trueVal, err = v.permanent(v.allocBody(t.bool, 1)); err != nil {
		return err
	}
	v.putU8(v.trueVal, 1)
	if v.falseVal, err = v.permanent(v.allocBody(t.bool, 1)); err != nil {
		return err
	}

	v.core = newModule("Core", nil)
	v.base = newModule("Base", v.core)
	v.main = newModule("Main", v.base)
	v.gcmod = newModule("GC", nil)
	for _, m := range []*module{v.core, v.base, v.main, v.gcmod} {
		if _, err := v.newModuleObject(m); err != nil {
			return err
		}
	}

	t.float64.construct = constructFloat64
	t.int64.construct = constructInt64
	t.idDict.construct = constructIDDict
	t.weakRef.construct = constructWeakRef
	for _, typ := range []*dataType{t.dataType, t.any, t.nothing, t.bool, t.int64, t.float64,
		t.string, t.symbol, t.function, t.module, t.idDict, t.weakRef} {
		v.core.set(typ.name, typ.ptr, true)
	}
	for name, typ := range t.exceptions {
		typ.construct = exceptionConstructor(typ)
		v.core.set(name, typ.ptr, true)
	}
	v.core.set("Int", t.int64.ptr, true)
	v.core.set("nothing", v.nothingVal, true)
	v.core.set("true", v.trueVal, true)
	v.core.set("false", v.falseVal, true)
	for _, m := range []*module{v.core, v.base, v.main} {
		v.core.set(m.name, v.modPtrs[m], true)
	}
	v.base.set("GC", v.modPtrs[v.gcmod], true)

	for name, fn := range baseFunctions() {
		if err := v.defineBuiltin(v.base, name, fn); err != nil {
			return err
		}
	}
	if err := v.defineBuiltin(v.gcmod, "gc", gcCollect); err != nil {
		return err
	}
	if err := v.defineBuiltin(v.gcmod, "enable", gcEnable); err != nil {
		return err
	}

	for name, x := range map[string]float64{"Inf": math.Inf(1), "NaN": math.NaN(), "pi": math.Pi} {
		p, err := v.permanent(v.boxFloat(x))
		if err != nil {
			return err
		}
		v.base.set(name, p, true)
	}

	oom, err := v.newException(t.exceptions["OutOfMemoryError"], "out of memory")
	if err != nil {
		return err
	}
	v.setPermanent(oom, v.objs[oom])
	v.setPermanent(v.objs[oom].elems[0], v.objs[v.objs[oom].elems[0]])
	v.oomVal = oom

	cells := map[string]abi.Ptr{
		abi.SymFloat64Type: t.float64.ptr,
		abi.SymInt64Type:   t.int64.ptr,
		abi.SymBoolType:    t.bool.ptr,
		abi.SymStringType:  t.string.ptr,
		abi.SymAnyType:     t.any.ptr,
		abi.SymNothing:     v.nothingVal,
		abi.SymMainModule:  v.modPtrs[v.main],
		abi.SymBaseModule:  v.modPtrs[v.base],
		abi.SymCoreModule:  v.modPtrs[v.core],
	}
	for i, name := range abi.DataSymbols {
		v.putU32(abi.SymbolCell(i), uint32(cells[name]))
	}
	return nil
}

func (v *VM) allocBody(typ *dataType, size uint32) (abi.Ptr, error) {
	p, _, err := v.allocObject(typ, size)
	return p, err
}
