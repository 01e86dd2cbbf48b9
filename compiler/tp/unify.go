package tp

import (
	"github.com/slowlang/fifth/compiler/errs"
)

type (
	// Unifier holds a substitution for a single query.
	Unifier struct {
		subst map[int]Type
	}
)

func NewUnifier() *Unifier {
	return &Unifier{subst: map[int]Type{}}
}

// walk follows variable bindings at the top level only.
func (u *Unifier) walk(t Type) Type {
	for {
		v, ok := t.(Var)
		if !ok {
			return t
		}

		x, ok := u.subst[v.ID]
		if !ok {
			return t
		}

		t = x
	}
}

// Resolve applies the substitution deeply.
func (u *Unifier) Resolve(t Type) Type {
	t = u.walk(t)

	if c, ok := t.(Compound); ok {
		return Compound{Op: c.Op, Base: u.Resolve(c.Base)}
	}

	return t
}

func (u *Unifier) ResolveEffect(e Effect) Effect {
	r := Effect{
		In:  make([]Type, len(e.In)),
		Out: make([]Type, len(e.Out)),
	}

	for i, t := range e.In {
		r.In[i] = u.Resolve(t)
	}

	for i, t := range e.Out {
		r.Out[i] = u.Resolve(t)
	}

	return r
}

// Unify makes a and b equal by extending the substitution.
func (u *Unifier) Unify(a, b Type) error {
	a, b = u.walk(a), u.walk(b)

	if av, ok := a.(Var); ok {
		if bv, ok := b.(Var); ok && av.ID == bv.ID {
			return nil
		}

		return u.bind(av, b)
	}

	if bv, ok := b.(Var); ok {
		return u.bind(bv, a)
	}

	switch a := a.(type) {
	case Kind:
		if bk, ok := b.(Kind); ok {
			if a == bk {
				return nil
			}

			return u.fail(errs.TypeMismatch, a, b)
		}

		return u.fail(errs.ShapeMismatch, a, b)
	case Compound:
		bc, ok := b.(Compound)
		if !ok || a.Op != bc.Op {
			return u.fail(errs.ShapeMismatch, a, b)
		}

		return u.Unify(a.Base, bc.Base)
	}

	return u.fail(errs.ShapeMismatch, a, b)
}

func (u *Unifier) bind(v Var, t Type) error {
	if u.occurs(v.ID, t) {
		return u.fail(errs.Occurs, v, t)
	}

	u.subst[v.ID] = t

	return nil
}

func (u *Unifier) occurs(id int, t Type) bool {
	t = u.walk(t)

	switch t := t.(type) {
	case Var:
		return t.ID == id
	case Compound:
		return u.occurs(id, t.Base)
	}

	return false
}

func (u *Unifier) fail(k errs.CompositionKind, a, b Type) error {
	return &errs.Composition{
		Kind: k,
		A:    u.Resolve(a).String(),
		B:    u.Resolve(b).String(),
	}
}
