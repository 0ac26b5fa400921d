package vm

import (
	"github.com/wippyai/hostbridge/abi"
	"github.com/wippyai/hostbridge/vm/internal/syntax"
)

type binding struct {
	value    abi.Ptr
	constant bool
}

// module is a namespace. Lookups that miss fall through to parent, which is
// how Main sees Base and Base sees Core.
type module struct {
	name     string
	parent   *module
	bindings map[string]*binding
}

func newModule(name string, parent *module) *module {
	return &module{name: name, parent: parent, bindings: make(map[string]*binding)}
}

func (m *module) resolve(name string) (abi.Ptr, bool) {
	for cur := m; cur != nil; cur = cur.parent {
		if b, ok := cur.bindings[name]; ok {
			return b.value, true
		}
	}
	return abi.Null, false
}

func (m *module) set(name string, value abi.Ptr, constant bool) (redefined bool) {
	b, ok := m.bindings[name]
	if !ok {
		m.bindings[name] = &binding{value: value, constant: constant}
		return false
	}
	redefined = b.constant && b.value != value
	b.value = value
	b.constant = b.constant || constant
	return redefined
}

// builtinFunc implements a function in Go. Arity and argument types are
// checked by the function itself.
type builtinFunc func(in *interp, args []abi.Ptr) (abi.Ptr, error)

type method struct {
	params []string
	body   syntax.Node
}

// function is a generic function: a Go builtin, or user methods keyed by
// arity.
type function struct {
	name    string
	builtin builtinFunc
	methods map[int]*method
}
