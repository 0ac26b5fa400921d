package vm

import (
	"fmt"

	"github.com/wippyai/hostbridge/abi"
)

// thrown is an exception raised by evaluated code. It unwinds the
// interpreter as an ordinary error until the export boundary stores it.
type thrown struct {
	exc abi.Ptr
	msg string
}

func (t *thrown) Error() string { return t.msg }

type outOfMemory struct{}

func (outOfMemory) Error() string { return "OutOfMemoryError" }

var errOutOfMemory error = outOfMemory{}

// throw builds an exception of the named type with a formatted message.
func (v *VM) throw(typeName, format string, args ...any) error {
	typ, ok := v.types.exceptions[typeName]
	if !ok {
		panic("unknown exception type " + typeName)
	}
	msg := fmt.Sprintf(format, args...)
	exc, err := v.newException(typ, msg)
	if err != nil {
		return err
	}
	return &thrown{exc: exc, msg: typeName + ": " + msg}
}

func (v *VM) newException(typ *dataType, msg string) (abi.Ptr, error) {
	s, err := v.newString(msg)
	if err != nil {
		return abi.Null, err
	}
	p, o, err := v.allocObject(typ, 4)
	if err != nil {
		return abi.Null, err
	}
	o.elems = []abi.Ptr{s}
	v.putU32(p, uint32(s))
	return p, nil
}

// exceptionMessage returns the msg field of an exception object.
func (v *VM) exceptionMessage(p abi.Ptr) string {
	o, ok := v.objs[p]
	if !ok || o.kind() != kindException || len(o.elems) == 0 {
		return ""
	}
	return v.stringOf(o.elems[0])
}

// showError formats an exception the way the REPL reports it.
func (v *VM) showError(p abi.Ptr) string {
	o, ok := v.objs[p]
	if !ok {
		return "unknown exception"
	}
	if o.kind() != kindException {
		return "exception: " + v.show(p)
	}
	msg := v.exceptionMessage(p)
	if msg == "" {
		return o.typ.name
	}
	return o.typ.name + ": " + msg
}

func (v *VM) undefVar(name string) error {
	return v.throw("UndefVarError", "`%s` not defined", name)
}

func (v *VM) methodError(name string, args []abi.Ptr) error {
	sig := ""
	for i, a := range args {
		if i > 0 {
			sig += ", "
		}
		sig += "::" + v.objs[a].typ.full
	}
	return v.throw("MethodError", "no method matching %s(%s)", name, sig)
}

func (v *VM) boundsError(what string, idx []int) error {
	s := fmt.Sprint(idx[0])
	for _, i := range idx[1:] {
		s += fmt.Sprintf(", %d", i)
	}
	return v.throw("BoundsError", "attempt to access %s at index [%s]", what, s)
}
