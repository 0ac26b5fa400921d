package vm

import (
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/abi"
)

func (v *VM) maybeCollect() {
	if v.gcEnabled && v.sinceGC >= uint64(v.cfg.GCThreshold) {
		v.collect()
	}
}

// collect runs a stop-the-world mark and sweep. Roots are permanent objects,
// module bindings reachable from them, pending exceptions and the current
// call's temporaries. Addresses held only by the host are not roots.
func (v *VM) collect() int {
	if !v.initialized {
		return 0
	}
	v.sinceGC = 0
	v.collections++

	var stack []abi.Ptr
	push := func(p abi.Ptr) {
		if o, ok := v.objs[p]; ok && !o.mark {
			o.mark = true
			stack = append(stack, p)
		}
	}

	for p, o := range v.objs {
		if o.perm {
			push(p)
		}
	}
	for _, th := range v.threads {
		push(th.exception)
	}
	for _, p := range v.temps {
		push(p)
	}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		v.children(p, push)
	}

	// weak references drop targets that did not survive
	for _, o := range v.objs {
		if o.mark && o.kind() == kindWeakRef && !o.target.IsNull() {
			if t, ok := v.objs[o.target]; !ok || !t.mark {
				o.target = abi.Null
			}
		}
	}
	for p, o := range v.objs {
		if o.mark && o.kind() == kindWeakRef {
			v.putU32(p, uint32(o.target))
		}
	}

	freed := 0
	for p, o := range v.objs {
		if o.mark {
			o.mark = false
			continue
		}
		if o.kind() == kindArray {
			a := v.arrayOf(p)
			if a.flags&abi.ArrayFlagOwned != 0 && !a.data.IsNull() {
				if !v.heap.release(uint32(a.data)) {
					Logger().Warn("owned array data is not a heap block", zap.Uint32("data", uint32(a.data)))
				}
			}
		}
		delete(v.objs, p)
		v.heap.release(uint32(p - abi.HeaderSize))
		freed++
	}

	Logger().Debug("collection",
		zap.Int("freed", freed),
		zap.Int("live", len(v.objs)),
		zap.Uint64("heap_bytes", v.heap.inUse))
	return freed
}

// children reports every object directly reachable from p. Weak references
// contribute nothing.
func (v *VM) children(p abi.Ptr, visit func(abi.Ptr)) {
	o := v.objs[p]
	switch o.kind() {
	case kindTuple, kindException:
		for _, e := range o.elems {
			visit(e)
		}
	case kindModule:
		for _, b := range o.mod.bindings {
			visit(b.value)
		}
	case kindDict:
		for _, e := range o.dict.entries {
			visit(e.key)
			visit(e.val)
		}
	case kindArray:
		a := v.arrayOf(p)
		visit(a.typ.ptr)
		if !a.bits() && !a.data.IsNull() {
			for i := 0; i < a.len; i++ {
				visit(abi.Ptr(v.u64(v.slot(a, i))))
			}
		}
	}
	visit(o.typ.ptr)
}
