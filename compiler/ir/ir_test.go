package ir

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"

	"github.com/slowlang/fifth/compiler/ast"
	"github.com/slowlang/fifth/compiler/errs"
	"github.com/slowlang/fifth/compiler/tp"
)

func lower(t *testing.T, src string) *Program {
	t.Helper()

	ctx := context.Background()

	f, err := ast.Parse("t.yaml", []byte(src))
	require.NoError(t, err)

	env, err := tp.Infer(ctx, f)
	require.NoError(t, err)

	p, err := Lower(ctx, f, env)
	require.NoError(t, err)

	return p
}

func TestLower(t *testing.T) {
	p := lower(t, `
words:
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
  - name: abs1
    effect: "( n:int -- n:int )"
    body: [dup, "0<", {if: [negate]}]
main: [5, sign, down, count, abs1, drop]
`)

	assert.Equal(t, "dup 0< 0branch L1 drop -1 branch L2 L1: drop 1 L2:", CodeString(p.Words["sign"].Code))
	assert.Equal(t, "L3: 1- dup 0= 0branch L3", CodeString(p.Words["down"].Code))
	assert.Equal(t, "L4: dup 0branch L5 1- branch L4 L5:", CodeString(p.Words["count"].Code))
	assert.Equal(t, "dup 0< 0branch L7 negate L7:", CodeString(p.Words["abs1"].Code))
	assert.Equal(t, "5 call sign call down call count call abs1 drop", CodeString(p.Main))

	assert.Equal(t, Effect{In: 1, Out: 1}, p.Words["sign"].Effect)
	assert.Equal(t, "( int -- int )", p.Words["abs1"].Type.String())
	assert.Equal(t, int64(8), p.NextLabel())
}

func TestAnalyze(t *testing.T) {
	p := NewProgram()
	p.Words["sq"] = &Word{Name: "sq", Code: Code("dup", "*"), Effect: Effect{1, 1}}

	for _, tc := range []struct {
		code []Inst
		exp  Effect
	}{
		{nil, Effect{}},
		{Code(2, 3, "+"), Effect{0, 1}},
		{Code("+"), Effect{2, 1}},
		{Code("drop", "drop", 1), Effect{2, 1}},
		{Code("sq", "sq"), Effect{1, 1}},
		{Code("swap", ">r", "r@", "r>", "+"), Effect{2, 2}},
		{Code(N(BranchIf, 1), 1, "drop", N(Label, 1)), Effect{1, 0}},
		{Code(N(Label, 1), "dup", N(BranchIf, 1)), Effect{1, 1}},
		{Code("dup", N(BranchIf, 1), I(Return), N(Label, 1), "drop", 0), Effect{1, 1}},
	} {
		e, err := p.Analyze("t", tc.code)
		require.NoError(t, err, CodeString(tc.code))
		assert.Equal(t, tc.exp, e, CodeString(tc.code))
	}
}

func TestAnalyzeErrors(t *testing.T) {
	p := NewProgram()

	var dm *errs.DepthMismatch

	_, err := p.Analyze("t", Code("dup", N(BranchIf, 1), 1, N(Label, 1)))
	assert.True(t, errors.As(err, &dm), "%v", err)

	_, err = p.Analyze("t", Code(N(Label, 1), 1, N(Branch, 1)))
	assert.True(t, errors.As(err, &dm), "%v", err)

	_, err = p.Analyze("t", Code(N(BranchIf, 1), 1, I(Return), N(Label, 1)))
	assert.True(t, errors.As(err, &dm), "%v", err)

	_, err = p.Analyze("t", Code(N(Branch, 9)))
	assert.Error(t, err)

	_, err = p.Analyze("t", Code("r>"))
	assert.Error(t, err)

	_, err = p.Analyze("t", Code(1, ">r"))
	assert.Error(t, err)

	_, err = p.Analyze("t", Code("nosuch"))
	assert.Error(t, err)
}

func TestVerify(t *testing.T) {
	p := NewProgram()
	p.Words["sq"] = &Word{Name: "sq", Code: Code("dup", "*"), Effect: Effect{1, 1}}
	p.Main = Code(3, "sq", "drop")

	require.NoError(t, p.Verify())

	q := p.Clone()
	q.Main = Code("sq")

	var u *errs.Underflow
	assert.True(t, errors.As(q.Verify(), &u))

	q = p.Clone()
	q.Words["sq"].Code = Code("dup")

	var em *errs.EffectMismatch
	assert.True(t, errors.As(q.Verify(), &em))

	q = p.Clone()
	q.Main = Code(3, "nosuch")
	assert.Error(t, q.Verify())

	q = p.Clone()
	q.Main = Code(N(Label, 1), N(Label, 1))
	assert.Error(t, q.Verify())

	// original untouched by clones
	assert.Equal(t, "dup *", CodeString(p.Words["sq"].Code))
}

func TestUpdate(t *testing.T) {
	p := NewProgram()
	p.Words["id"] = &Word{Name: "id", Code: nil, Effect: Effect{1, 1}}
	p.Words["w"] = &Word{Name: "w", Code: Code("id", "id"), Effect: Effect{1, 1}}
	p.Main = Code(1, "w")

	require.NoError(t, p.Verify())
	require.NoError(t, p.Update())

	assert.Equal(t, Effect{}, p.Words["id"].Effect)
	assert.Equal(t, Effect{}, p.Words["w"].Effect)
	require.NoError(t, p.Verify())
}

func TestStable(t *testing.T) {
	p := NewProgram()
	p.Main = Code(1, 2, "+")

	q := p.Clone()
	assert.True(t, Stable(p, q))

	q.Main = Code(2, 1, "+")
	assert.True(t, Stable(p, q), "same multiset")

	q.Main = Code(1, 2, "-")
	assert.False(t, Stable(p, q))

	q.Main = Code(1, 2, "+", "nop")
	assert.False(t, Stable(p, q))

	q = p.Clone()
	q.Words["x"] = &Word{Name: "x"}
	assert.False(t, Stable(p, q))
}

func TestInstString(t *testing.T) {
	for _, tc := range []struct {
		x   Inst
		exp string
	}{
		{N(Lit, -3), "-3"},
		{F(2), "2.0"},
		{F(2.5), "2.5"},
		{N(LitAdd, 4), "lit+ 4"},
		{S(Call, "sq"), "call sq"},
		{N(Label, 3), "L3:"},
		{N(BranchIfNot, 3), "0branch L3"},
		{N(CachedDup, 2), "cdup 2"},
		{Inst{Op: Add, Ty: tp.Float}, "+:float"},
		{I(ZeroLt), "0<"},
	} {
		assert.Equal(t, tc.exp, tc.x.String())
	}

	op, ok := Primitive("exit")
	assert.True(t, ok)
	assert.Equal(t, Return, op)

	_, ok = Primitive("lit+")
	assert.False(t, ok)

	assert.True(t, Add.Pure())
	assert.False(t, Div.Pure())
	assert.True(t, Div.Traps())
	assert.True(t, Call.Control())
	assert.False(t, Store.Pure())
}

func TestProgramString(t *testing.T) {
	p := NewProgram()
	p.Words["sq"] = &Word{Name: "sq", Code: Code("dup", "*"), Effect: Effect{1, 1}, Inline: true}
	p.Main = Code(3, "sq", N(Label, 1))

	assert.Equal(t, ": sq (1 -- 1) inline\n\tdup\n\t*\n;\n\nmain:\n\t3\n\tcall sq\nL1:\n", p.String())
}
