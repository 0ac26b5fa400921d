package vm

import "github.com/wippyai/hostbridge/abi"

// dictKey is object identity: bits types and strings compare by value,
// everything else by address.
type dictKey struct {
	kind kind
	bits uint64
	str  string
}

type dictEntry struct {
	key, val abi.Ptr
}

// idDict is an identity-keyed hash table. Deletion swaps the last entry into
// the hole, so iteration order is insertion order only until the first delete.
type idDict struct {
	entries []dictEntry
	index   map[dictKey]int
}

func newIDDict() *idDict {
	return &idDict{index: make(map[dictKey]int)}
}

func (v *VM) keyOf(p abi.Ptr) dictKey {
	o := v.objs[p]
	switch k := o.kind(); k {
	case kindInt64, kindFloat64:
		return dictKey{kind: k, bits: v.u64(p)}
	case kindBool:
		return dictKey{kind: k, bits: uint64(v.u8(p))}
	case kindString:
		return dictKey{kind: k, str: v.stringOf(p)}
	default:
		return dictKey{kind: k, bits: uint64(p)}
	}
}

func (d *idDict) get(key dictKey) (dictEntry, bool) {
	i, ok := d.index[key]
	if !ok {
		return dictEntry{}, false
	}
	return d.entries[i], true
}

func (d *idDict) set(key dictKey, k, val abi.Ptr) {
	if i, ok := d.index[key]; ok {
		d.entries[i].val = val
		return
	}
	d.index[key] = len(d.entries)
	d.entries = append(d.entries, dictEntry{key: k, val: val})
}

func (d *idDict) delete(v *VM, key dictKey) bool {
	i, ok := d.index[key]
	if !ok {
		return false
	}
	last := len(d.entries) - 1
	if i != last {
		moved := d.entries[last]
		d.entries[i] = moved
		d.index[v.keyOf(moved.key)] = i
	}
	d.entries = d.entries[:last]
	delete(d.index, key)
	return true
}

func (d *idDict) len() int { return len(d.entries) }
