package bridge

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/errors"
)

// RootTable keeps values alive across collections. It is an IdDict that
// lives inside the embedded runtime, bound to a constant global in Main,
// and is maintained through the runtime's own setindex! and delete!.
// Numbers and strings are keyed by value, so rooting two equal boxes keeps
// the first as key and the latest as value.
type RootTable struct {
	name string
	dict Value

	setindex Value
	remove   Value
	haskey   Value
	length   Value
}

// NewRootTable creates an additional root table under a unique global name.
func (t *Thread) NewRootTable(ctx context.Context) (*RootTable, error) {
	name := "__hostbridge_refs_" + strings.ReplaceAll(uuid.NewString(), "-", "") + "__"
	return t.newRootTable(ctx, name)
}

func (t *Thread) newRootTable(ctx context.Context, name string) (*RootTable, error) {
	dict, err := t.Eval(ctx, "const "+name+" = IdDict()")
	if err != nil {
		return nil, errors.New(errors.PhaseRoot, errors.KindFault).
			Path(name).
			Cause(err).
			Detail("create root table").
			Build()
	}
	base, err := t.BaseModule(ctx)
	if err != nil {
		return nil, err
	}
	rt := &RootTable{name: name, dict: dict}
	for _, f := range []struct {
		dst  *Value
		name string
	}{
		{&rt.setindex, "setindex!"},
		{&rt.remove, "delete!"},
		{&rt.haskey, "haskey"},
		{&rt.length, "length"},
	} {
		if *f.dst, err = t.MustGlobal(ctx, base, f.name); err != nil {
			return nil, err
		}
	}
	t.rt.log.Debug("root table created", zap.String("name", name))
	return rt, nil
}

// Name returns the global the table is bound to in Main.
func (r *RootTable) Name() string { return r.name }

// Value returns the table's IdDict.
func (r *RootTable) Value() Value { return r.dict }

// Root anchors v until Unroot. Rooting a rooted value is a no-op.
func (r *RootTable) Root(ctx context.Context, th *Thread, v Value) error {
	if err := th.check(ctx, errors.PhaseRoot, v, "rooted value"); err != nil {
		return err
	}
	res, err := th.Call3(ctx, r.setindex, r.dict, v, v)
	if err != nil {
		return err
	}
	if res.IsNull() {
		return th.pendingAsError(ctx, errors.PhaseRoot, errors.KindFault)
	}
	th.rt.log.Debug("rooted", zap.String("table", r.name), zap.Stringer("value", v))
	return nil
}

// Unroot removes v from the table. Values that are not rooted are ignored.
func (r *RootTable) Unroot(ctx context.Context, th *Thread, v Value) error {
	if v.IsNull() {
		return errors.NullHandle(errors.PhaseRoot, "rooted value")
	}
	res, err := th.Call2(ctx, r.remove, r.dict, v)
	if err != nil {
		return err
	}
	if res.IsNull() {
		return th.pendingAsError(ctx, errors.PhaseRoot, errors.KindFault)
	}
	th.rt.log.Debug("unrooted", zap.String("table", r.name), zap.Stringer("value", v))
	return nil
}

// Contains reports whether v is rooted in the table.
func (r *RootTable) Contains(ctx context.Context, th *Thread, v Value) (bool, error) {
	if v.IsNull() {
		return false, nil
	}
	res, err := th.Call2(ctx, r.haskey, r.dict, v)
	if err != nil {
		return false, err
	}
	if res.IsNull() {
		return false, th.pendingAsError(ctx, errors.PhaseRoot, errors.KindFault)
	}
	return th.IsTrue(ctx, res)
}

// Len returns the number of rooted entries.
func (r *RootTable) Len(ctx context.Context, th *Thread) (int, error) {
	res, err := th.Call1(ctx, r.length, r.dict)
	if err != nil {
		return 0, err
	}
	if res.IsNull() {
		return 0, th.pendingAsError(ctx, errors.PhaseRoot, errors.KindFault)
	}
	n, err := th.UnboxInt64(ctx, res)
	return int(n), err
}

// Scope roots values on behalf of one unit of work and unroots all of them
// on Release.
type Scope struct {
	table *RootTable
	th    *Thread
	vals  []Value
}

// Scope starts a root scope on th.
func (r *RootTable) Scope(th *Thread) *Scope {
	return &Scope{table: r, th: th}
}

// Root roots v and returns it.
func (s *Scope) Root(ctx context.Context, v Value) (Value, error) {
	if err := s.table.Root(ctx, s.th, v); err != nil {
		return Value{}, err
	}
	s.vals = append(s.vals, v)
	return v, nil
}

// Release unroots every value rooted through the scope, newest first. It
// returns the first error and keeps going.
func (s *Scope) Release(ctx context.Context) error {
	var first error
	for i := len(s.vals) - 1; i >= 0; i-- {
		if err := s.table.Unroot(ctx, s.th, s.vals[i]); err != nil && first == nil {
			first = err
		}
	}
	s.vals = nil
	return first
}
