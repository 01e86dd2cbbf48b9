package tp

import (
	"github.com/slowlang/fifth/compiler/errs"
)

type (
	// Composer allocates type variables unique within one session.
	Composer struct {
		next int
	}
)

func (c *Composer) Fresh() Var {
	v := Var{ID: c.next}
	c.next++

	return v
}

// Instantiate renames all variables in e apart from anything allocated before.
func (c *Composer) Instantiate(e Effect) Effect {
	m := map[int]Var{}

	var ren func(t Type) Type

	ren = func(t Type) Type {
		switch t := t.(type) {
		case Var:
			v, ok := m[t.ID]
			if !ok {
				v = c.Fresh()
				v.Name = t.Name
				m[t.ID] = v
			}

			return v
		case Compound:
			return Compound{Op: t.Op, Base: ren(t.Base)}
		default:
			return t
		}
	}

	r := Effect{
		In:  make([]Type, len(e.In)),
		Out: make([]Type, len(e.Out)),
	}

	for i, t := range e.In {
		r.In[i] = ren(t)
	}

	for i, t := range e.Out {
		r.Out[i] = ren(t)
	}

	return r
}

// Compose is the effect of running f then g.
// Inputs g needs beyond what f produces are taken from below f's inputs.
func (c *Composer) Compose(f, g Effect) (Effect, error) {
	f = c.Instantiate(f)
	g = c.Instantiate(g)

	u := NewUnifier()

	k := min(len(f.Out), len(g.In))

	fo := f.Out[len(f.Out)-k:]
	gi := g.In[len(g.In)-k:]

	for i := range fo {
		if err := u.Unify(fo[i], gi[i]); err != nil {
			return Effect{}, err
		}
	}

	r := Effect{
		In:  concat(g.In[:len(g.In)-k], f.In),
		Out: concat(f.Out[:len(f.Out)-k], g.Out),
	}

	return Normalize(u.ResolveEffect(r)), nil
}

// ComposeClosed composes f and g where f is everything that precedes g,
// so g can't take more inputs than f produces.
func (c *Composer) ComposeClosed(f, g Effect) (Effect, error) {
	if len(g.In) > len(f.Out) {
		return Effect{}, &errs.Underflow{Need: len(g.In), Have: len(f.Out)}
	}

	return c.Compose(f, g)
}

// ComposeAll folds Compose over es starting from the identity effect.
func (c *Composer) ComposeAll(es ...Effect) (r Effect, err error) {
	for _, e := range es {
		r, err = c.Compose(r, e)
		if err != nil {
			return Effect{}, err
		}
	}

	return Normalize(r), nil
}

// Balance unifies each input with the output at the same depth.
// The effect must keep the stack depth.
func (c *Composer) Balance(e Effect) (Effect, error) {
	if len(e.In) != len(e.Out) {
		return Effect{}, &errs.DepthMismatch{Where: "loop", A: len(e.In), B: len(e.Out)}
	}

	e = c.Instantiate(e)
	u := NewUnifier()

	for i := range e.In {
		if err := u.Unify(e.In[i], e.Out[i]); err != nil {
			return Effect{}, err
		}
	}

	return Normalize(u.ResolveEffect(e)), nil
}

// Merge unifies two alternative effects, such as if/else arms.
// The one taking fewer inputs is extended with pass-through slots.
func (c *Composer) Merge(a, b Effect) (Effect, error) {
	if a.Arity() != b.Arity() {
		return Effect{}, &errs.DepthMismatch{Where: "if", A: a.Arity(), B: b.Arity()}
	}

	a = c.Lift(a, len(b.In)-len(a.In))
	b = c.Lift(b, len(a.In)-len(b.In))

	a = c.Instantiate(a)
	b = c.Instantiate(b)

	u := NewUnifier()

	for i := range a.In {
		if err := u.Unify(a.In[i], b.In[i]); err != nil {
			return Effect{}, err
		}
	}

	for i := range a.Out {
		if err := u.Unify(a.Out[i], b.Out[i]); err != nil {
			return Effect{}, err
		}
	}

	return Normalize(u.ResolveEffect(a)), nil
}

// Lift adds n pass-through slots below e.
func (c *Composer) Lift(e Effect, n int) Effect {
	if n <= 0 {
		return e
	}

	e = c.Instantiate(e)

	vs := make([]Type, n)
	for i := range vs {
		vs[i] = c.Fresh()
	}

	return Effect{
		In:  concat(vs, e.In),
		Out: concat(vs, e.Out),
	}
}

// Normalize renumbers variables by first occurrence and drops their names,
// so equal effects are structurally equal.
func Normalize(e Effect) Effect {
	m := map[int]Var{}

	var ren func(t Type) Type

	ren = func(t Type) Type {
		switch t := t.(type) {
		case Var:
			v, ok := m[t.ID]
			if !ok {
				v = Var{ID: len(m)}
				m[t.ID] = v
			}

			return v
		case Compound:
			return Compound{Op: t.Op, Base: ren(t.Base)}
		default:
			return t
		}
	}

	r := Effect{
		In:  make([]Type, len(e.In)),
		Out: make([]Type, len(e.Out)),
	}

	for i, t := range e.In {
		r.In[i] = ren(t)
	}

	for i, t := range e.Out {
		r.Out[i] = ren(t)
	}

	return r
}

// Compose is a shorthand for a single composition in a fresh session.
func Compose(f, g Effect) (Effect, error) {
	var c Composer
	return c.Compose(f, g)
}

func concat(a, b []Type) []Type {
	r := make([]Type, 0, len(a)+len(b))
	r = append(r, a...)
	return append(r, b...)
}
