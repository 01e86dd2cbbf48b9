package tp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"

	"github.com/slowlang/fifth/compiler/ast"
	"github.com/slowlang/fifth/compiler/errs"
)

func eff(t *testing.T, s string) Effect {
	t.Helper()

	e, err := ParseEffect(s)
	require.NoError(t, err, s)

	return e
}

func builtin(t *testing.T, name string) Effect {
	t.Helper()

	e, ok := Builtin(name)
	require.True(t, ok, name)

	return e
}

func TestParseEffect(t *testing.T) {
	for _, tc := range []struct {
		in, out string
	}{
		{"( a b -- b a )", "( a b -- b a )"},
		{"( n:int -- n:int )", "( int -- int )"},
		{"( x y -- x )", "( a b -- a )"},
		{"(--)", "( -- )"},
		{"( n -- r:sq(n) )", "( a -- sq(a) )"},
		{"( x:t y:t -- z:float )", "( a a -- float )"},
	} {
		e, err := ParseEffect(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.out, e.String(), tc.in)
	}

	for _, s := range []string{"a -- b", "( a b )", "( -- -- )", "( a:foo(b) -- )", "( :int -- )"} {
		_, err := ParseEffect(s)
		assert.Error(t, err, s)
	}
}

func TestCompose(t *testing.T) {
	lit := Effect{Out: []Type{Int}}

	for _, tc := range []struct {
		f, g Effect
		exp  string
	}{
		{builtin(t, "dup"), builtin(t, "*"), "( a -- a )"},
		{lit, builtin(t, "dup"), "( -- int int )"},
		{builtin(t, "drop"), builtin(t, "+"), "( a a b -- a )"},
		{builtin(t, "swap"), builtin(t, "swap"), "( a b -- a b )"},
		{builtin(t, "over"), builtin(t, "="), "( a a -- a int )"},
		{Effect{Out: []Type{Addr}}, builtin(t, "@"), "( -- int )"},
		{builtin(t, "rot"), builtin(t, "rot"), "( a b c -- c a b )"},
	} {
		r, err := Compose(tc.f, tc.g)
		require.NoError(t, err)
		assert.Equal(t, tc.exp, r.String(), "%v ; %v", tc.f, tc.g)
	}
}

func TestComposeMismatch(t *testing.T) {
	_, err := Compose(Effect{Out: []Type{Int}}, Effect{In: []Type{Float}})

	var ce *errs.Composition
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, errs.TypeMismatch, ce.Kind)
	assert.Equal(t, "int", ce.A)
	assert.Equal(t, "float", ce.B)
}

func TestComposeAssociative(t *testing.T) {
	lit := Effect{Out: []Type{Int}}
	flit := Effect{Out: []Type{Float}}

	es := []Effect{
		lit, flit,
		builtin(t, "dup"), builtin(t, "drop"), builtin(t, "swap"), builtin(t, "over"), builtin(t, "rot"),
		builtin(t, "+"), builtin(t, "="), builtin(t, "@"), builtin(t, "!"), builtin(t, ">r"), builtin(t, "r>"),
		eff(t, "( n -- r:sq(n) )"),
	}

	var c Composer

	checked := 0

	for _, f := range es {
		for _, g := range es {
			for _, h := range es {
				fg, err1 := c.Compose(f, g)
				gh, err2 := c.Compose(g, h)

				if err1 != nil || err2 != nil {
					continue
				}

				l, errl := c.Compose(fg, h)
				r, errr := c.Compose(f, gh)

				if errl != nil || errr != nil {
					assert.Equal(t, errl != nil, errr != nil, "%v %v %v", f, g, h)
					continue
				}

				assert.True(t, l.Equal(r), "(%v;%v);%v = %v  vs  %v;(%v;%v) = %v", f, g, h, l, f, g, h, r)

				checked++
			}
		}
	}

	assert.NotZero(t, checked)
}

func TestComposeClosedUnderflow(t *testing.T) {
	var c Composer

	assert.NotPanics(t, func() {
		_, err := c.ComposeClosed(builtin(t, "drop"), builtin(t, "+"))

		var u *errs.Underflow
		require.True(t, errors.As(err, &u))
		assert.Equal(t, 2, u.Need)
		assert.Equal(t, 0, u.Have)
	})

	r, err := c.ComposeClosed(Effect{Out: []Type{Int, Int}}, builtin(t, "+"))
	require.NoError(t, err)
	assert.Equal(t, "( -- int )", r.String())
}

func TestUnify(t *testing.T) {
	var c Composer

	a, b := c.Fresh(), c.Fresh()

	u := NewUnifier()
	require.NoError(t, u.Unify(a, b))
	require.NoError(t, u.Unify(b, Int))
	assert.Equal(t, Int, u.Resolve(a))

	u = NewUnifier()
	require.NoError(t, u.Unify(Compound{Op: Square, Base: a}, Compound{Op: Square, Base: Float}))
	assert.Equal(t, Float, u.Resolve(a))

	for _, tc := range []struct {
		name string
		a, b Type
		kind errs.CompositionKind
	}{
		{"concrete", Int, Float, errs.TypeMismatch},
		{"occurs", a, Compound{Op: Square, Base: a}, errs.Occurs},
		{"shape", Compound{Op: Square, Base: a}, Compound{Op: Negate, Base: b}, errs.ShapeMismatch},
		{"kind vs compound", Int, Compound{Op: Succ, Base: b}, errs.ShapeMismatch},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := NewUnifier().Unify(tc.a, tc.b)

			var ce *errs.Composition
			require.True(t, errors.As(err, &ce), "%v", err)
			assert.Equal(t, tc.kind, ce.Kind)
			assert.NotEmpty(t, ce.A)
			assert.NotEmpty(t, ce.B)
		})
	}
}

func TestMergeBalance(t *testing.T) {
	var c Composer

	m, err := c.Merge(eff(t, "( a -- )"), eff(t, "( a b -- a )"))
	require.NoError(t, err)
	assert.Equal(t, "( a b -- a )", m.String())

	_, err = c.Merge(eff(t, "( -- int )"), eff(t, "( -- )"))
	var dm *errs.DepthMismatch
	assert.True(t, errors.As(err, &dm))

	b, err := c.Balance(eff(t, "( a b -- int a )"))
	require.NoError(t, err)
	assert.Equal(t, "( int int -- int int )", b.String())

	_, err = c.Balance(eff(t, "( a -- a a )"))
	assert.True(t, errors.As(err, &dm))
}

func parse(t *testing.T, src string) *ast.File {
	t.Helper()

	f, err := ast.Parse("t.yaml", []byte(src))
	require.NoError(t, err)

	return f
}

func TestInfer(t *testing.T) {
	f := parse(t, `
words:
  - name: square
    effect: "( n:int -- n:int )"
    body: [dup, "*"]
  - name: sign
    body: [dup, "0<", {if: [drop, -1], else: [drop, 1]}]
  - name: down
    body:
      - begin: [1-, dup, "0="]
        until: true
  - name: count
    body:
      - begin: [dup]
        while: [1-]
  - name: fact
    effect: "( n:int -- n:int )"
    body: [dup, 1, ">", {if: [dup, 1-, recurse, "*"]}]
main: [5, square, sign, 3, down, count, fact, drop]
`)

	env, err := Infer(context.Background(), f)
	require.NoError(t, err)

	for name, exp := range map[string]string{
		"square": "( int -- int )",
		"sign":   "( a -- int )",
		"down":   "( a -- a )",
		"count":  "( a -- a )",
		"fact":   "( int -- int )",
	} {
		assert.Equal(t, exp, env.Words[name].String(), name)
	}

	assert.Equal(t, "( -- int )", env.Main.String())
}

func TestInferErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		src  string
		err  any
	}{
		{"underflow", `words: [{name: w, effect: "( a -- a )", body: ["+"]}]`, new(*errs.Underflow)},
		{"arity", `words: [{name: w, effect: "( a -- a a )", body: [drop]}]`, new(*errs.EffectMismatch)},
		{"clash", `words: [{name: w, effect: "( n:float -- n:int )", body: []}]`, new(*errs.Composition)},
		{"branches", `words: [{name: w, body: [{if: [1], else: []}]}]`, new(*errs.DepthMismatch)},
		{"loop", `words: [{name: w, body: [{begin: [1, dup], until: true}]}]`, new(*errs.DepthMismatch)},
		{"main", `main: [drop]`, new(*errs.Underflow)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Infer(context.Background(), parse(t, tc.src))
			require.Error(t, err)
			assert.True(t, errors.As(err, tc.err), "%v", err)
		})
	}

	for _, src := range []string{
		`main: [foo]`,
		`words: [{name: r, body: [recurse]}]`,
		`words: [{name: dup, body: []}]`,
		`words: [{name: w, effect: "bad", body: []}]`,
	} {
		_, err := Infer(context.Background(), parse(t, src))
		assert.Error(t, err, src)
	}
}
