package vm

import (
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/abi"
	"github.com/wippyai/hostbridge/vm/internal/syntax"
)

// maxDepth bounds nested user function calls.
const maxDepth = 256

// interp evaluates code on behalf of one exported call.
type interp struct {
	vm    *VM
	th    *thread
	depth int
}

// frame holds the parameters of a user function call. Top-level code runs
// without a frame and binds into Main.
type frame struct {
	locals map[string]abi.Ptr
}

func (in *interp) evalString(src string) (abi.Ptr, error) {
	prog, err := syntax.Parse(src)
	if err != nil {
		return abi.Null, in.vm.throw("ParseError", "%s", err.Error())
	}
	result := in.vm.nothingVal
	for _, stmt := range prog.Stmts {
		r, err := in.eval(stmt, nil)
		if err != nil {
			return abi.Null, err
		}
		result = r
	}
	return result, nil
}

func (in *interp) eval(n syntax.Node, f *frame) (abi.Ptr, error) {
	v := in.vm
	switch n := n.(type) {
	case *syntax.IntLit:
		return v.boxInt(n.Value)
	case *syntax.FloatLit:
		return v.boxFloat(n.Value)
	case *syntax.StringLit:
		return v.newString(n.Value)
	case *syntax.SymbolLit:
		return v.intern(n.Name)
	case *syntax.Ident:
		return in.lookup(n.Name, f)
	case *syntax.Field:
		return in.field(n, f)
	case *syntax.Call:
		fn, err := in.eval(n.Fn, f)
		if err != nil {
			return abi.Null, err
		}
		args, err := in.evalList(n.Args, f)
		if err != nil {
			return abi.Null, err
		}
		return in.invoke(fn, args)
	case *syntax.Index:
		target, err := in.eval(n.Target, f)
		if err != nil {
			return abi.Null, err
		}
		idx, err := in.evalList(n.Indices, f)
		if err != nil {
			return abi.Null, err
		}
		return in.callNamed("getindex", append([]abi.Ptr{target}, idx...), f)
	case *syntax.Binary:
		args, err := in.evalList([]syntax.Node{n.Left, n.Right}, f)
		if err != nil {
			return abi.Null, err
		}
		return in.callNamed(n.Op, args, f)
	case *syntax.Unary:
		x, err := in.eval(n.Operand, f)
		if err != nil {
			return abi.Null, err
		}
		return in.callNamed(n.Op, []abi.Ptr{x}, f)
	case *syntax.VectorLit:
		elems, err := in.evalList(n.Elems, f)
		if err != nil {
			return abi.Null, err
		}
		if n.Vcat {
			return builtinVcat(in, elems)
		}
		return builtinVect(in, elems)
	case *syntax.TupleLit:
		elems, err := in.evalList(n.Elems, f)
		if err != nil {
			return abi.Null, err
		}
		return v.newTuple(elems)
	case *syntax.Assign:
		return in.assign(n, f)
	case *syntax.FuncDef:
		return in.define(n)
	}
	return abi.Null, v.throw("ErrorException", "unsupported syntax %T", n)
}

func (in *interp) evalList(nodes []syntax.Node, f *frame) ([]abi.Ptr, error) {
	out := make([]abi.Ptr, len(nodes))
	for i, n := range nodes {
		p, err := in.eval(n, f)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func (in *interp) lookup(name string, f *frame) (abi.Ptr, error) {
	if f != nil {
		if p, ok := f.locals[name]; ok {
			return p, nil
		}
	}
	if p, ok := in.vm.main.resolve(name); ok {
		return p, nil
	}
	return abi.Null, in.vm.undefVar(name)
}

func (in *interp) callNamed(name string, args []abi.Ptr, f *frame) (abi.Ptr, error) {
	fn, err := in.lookup(name, f)
	if err != nil {
		return abi.Null, err
	}
	return in.invoke(fn, args)
}

// invoke calls fn with args. Functions and types with constructors are
// callable; anything else raises a MethodError.
func (in *interp) invoke(fn abi.Ptr, args []abi.Ptr) (abi.Ptr, error) {
	v := in.vm
	o := v.objs[fn]
	switch o.kind() {
	case kindFunction:
		return in.apply(o.fn, args)
	case kindType:
		if o.dt.construct != nil {
			return o.dt.construct(in, args)
		}
		return abi.Null, v.methodError(o.dt.name, args)
	}
	return abi.Null, v.throw("MethodError", "objects of type %s are not callable", o.typ.full)
}

func (in *interp) apply(fn *function, args []abi.Ptr) (abi.Ptr, error) {
	if fn.builtin != nil {
		return fn.builtin(in, args)
	}
	m, ok := fn.methods[len(args)]
	if !ok {
		return abi.Null, in.vm.methodError(fn.name, args)
	}
	if in.depth >= maxDepth {
		return abi.Null, in.vm.throw("StackOverflowError", "stack overflow in %s", fn.name)
	}
	in.depth++
	defer func() { in.depth-- }()

	fr := &frame{locals: make(map[string]abi.Ptr, len(m.params))}
	for i, name := range m.params {
		fr.locals[name] = args[i]
	}
	return in.eval(m.body, fr)
}

func (in *interp) assign(n *syntax.Assign, f *frame) (abi.Ptr, error) {
	v := in.vm
	val, err := in.eval(n.Value, f)
	if err != nil {
		return abi.Null, err
	}
	switch target := n.Target.(type) {
	case *syntax.Ident:
		if f != nil {
			f.locals[target.Name] = val
			return val, nil
		}
		if b, ok := v.main.bindings[target.Name]; ok && b.constant && !n.Const && b.value != val {
			return abi.Null, v.throw("ErrorException", "invalid redefinition of constant %s", target.Name)
		}
		if v.main.set(target.Name, val, n.Const) {
			Logger().Warn("redefinition of constant", zap.String("name", target.Name))
		}
		return val, nil
	case *syntax.Index:
		obj, err := in.eval(target.Target, f)
		if err != nil {
			return abi.Null, err
		}
		idx, err := in.evalList(target.Indices, f)
		if err != nil {
			return abi.Null, err
		}
		args := append([]abi.Ptr{obj, val}, idx...)
		if _, err := in.callNamed("setindex!", args, f); err != nil {
			return abi.Null, err
		}
		return val, nil
	case *syntax.Field:
		obj, err := in.eval(target.Target, f)
		if err != nil {
			return abi.Null, err
		}
		return abi.Null, v.throw("ErrorException", "setfield!: immutable struct of type %s cannot be changed", v.objs[obj].typ.name)
	}
	return abi.Null, v.throw("ErrorException", "invalid assignment")
}

// define adds a method to the named function in Main, creating the function
// on first definition. Builtins are shadowed, not extended.
func (in *interp) define(n *syntax.FuncDef) (abi.Ptr, error) {
	v := in.vm
	m := &method{params: n.Params, body: n.Body}
	if b, ok := v.main.bindings[n.Name]; ok {
		if o, ok := v.objs[b.value]; ok && o.kind() == kindFunction && o.fn.builtin == nil {
			o.fn.methods[len(n.Params)] = m
			return b.value, nil
		}
	}
	fn := &function{name: n.Name, methods: map[int]*method{len(n.Params): m}}
	p, err := v.newFunction(fn)
	if err != nil {
		return abi.Null, err
	}
	v.main.set(n.Name, p, false)
	return p, nil
}

func (in *interp) field(n *syntax.Field, f *frame) (abi.Ptr, error) {
	v := in.vm
	target, err := in.eval(n.Target, f)
	if err != nil {
		return abi.Null, err
	}
	if o := v.objs[target]; o.kind() == kindModule {
		if p, ok := o.mod.resolve(n.Name); ok {
			return p, nil
		}
		return abi.Null, v.throw("UndefVarError", "`%s` not defined in `%s`", n.Name, o.mod.name)
	}
	return v.getField(target, n.Name)
}

func (v *VM) getField(p abi.Ptr, name string) (abi.Ptr, error) {
	o := v.objs[p]
	switch o.kind() {
	case kindModule:
		if r, ok := o.mod.resolve(name); ok {
			return r, nil
		}
		return abi.Null, v.throw("UndefVarError", "`%s` not defined in `%s`", name, o.mod.name)
	case kindWeakRef:
		if name == "value" {
			if o.target.IsNull() {
				return v.nothingVal, nil
			}
			return o.target, nil
		}
	case kindException:
		for i, f := range o.typ.fields {
			if f == name && i < len(o.elems) {
				return o.elems[i], nil
			}
		}
	}
	return abi.Null, v.throw("ErrorException", "type %s has no field %s", o.typ.name, name)
}

// nthField returns field i, zero based.
func (v *VM) nthField(p abi.Ptr, i int) (abi.Ptr, error) {
	o := v.objs[p]
	switch o.kind() {
	case kindTuple, kindException:
		if i >= 0 && i < len(o.elems) {
			return o.elems[i], nil
		}
	case kindWeakRef:
		if i == 0 {
			return v.getField(p, "value")
		}
	}
	return abi.Null, v.boundsError(o.typ.full, []int{i + 1})
}
