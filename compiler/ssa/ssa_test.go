package ssa

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"

	"github.com/slowlang/fifth/compiler/ast"
	"github.com/slowlang/fifth/compiler/errs"
	"github.com/slowlang/fifth/compiler/ir"
	"github.com/slowlang/fifth/compiler/tp"
)

func lower(t *testing.T, src string) *ir.Program {
	t.Helper()

	ctx := context.Background()

	f, err := ast.Parse("t.yaml", []byte(src))
	require.NoError(t, err)

	env, err := tp.Infer(ctx, f)
	require.NoError(t, err)

	p, err := ir.Lower(ctx, f, env)
	require.NoError(t, err)

	return p
}

func countOp(f *Func, op Op) (n int) {
	for _, b := range f.Blocks {
		for _, x := range b.Code {
			if x.Op == op {
				n++
			}
		}
	}

	return n
}

func rule(t *testing.T, err error) string {
	t.Helper()

	var inv *errs.Invalid
	require.True(t, errors.As(err, &inv), "%v", err)

	return inv.Rule
}

func diamond() *Func {
	return &Func{
		Name:  "diamond",
		Entry: 0,
		NRegs: 4,
		Blocks: []*Block{
			{ID: 0, Code: []Inst{Int(0, 1), If(0, 1, 2)}},
			{ID: 1, Preds: []int{0}, Code: []Inst{Int(1, 2), Goto(3)}},
			{ID: 2, Preds: []int{0}, Code: []Inst{Int(2, 3), Goto(3)}},
			{ID: 3, Preds: []int{1, 2}, Code: []Inst{PhiOf(3, [2]int{1, 1}, [2]int{2, 2}), Ret(3)}},
		},
	}
}

func TestBuildStraight(t *testing.T) {
	p := lower(t, `
words:
  - name: sq
    body: [dup, "*"]
main: [3, sq]
`)

	f, err := Build(context.Background(), p, "sq")
	require.NoError(t, err)
	require.NoError(t, Validate(f))

	assert.Equal(t, `func sq(r0) {
b0:
	r1 = binary * r0 r0
	jump b1
b1:  // preds b0
	ret r1
}
`, f.String())

	m, err := Build(context.Background(), p, ir.MainUnit)
	require.NoError(t, err)
	require.NoError(t, Validate(m))

	assert.Equal(t, "main", m.Name)
	assert.Empty(t, m.Params)
	assert.Equal(t, 1, countOp(m, Call))
}

func TestBuildLoop(t *testing.T) {
	p := lower(t, `
words:
  - name: down
    body:
      - begin: [1-, dup, "0="]
        until: true
main: [3, down]
`)

	f, err := Build(context.Background(), p, "down")
	require.NoError(t, err)
	require.NoError(t, Validate(f), "%v", f)

	// separate entry block because the loop header is the first block
	assert.Len(t, f.Blocks, 3)
	assert.Equal(t, 1, countOp(f, Phi))
	assert.Equal(t, 1, countOp(f, Branch))

	hdr := f.Block(1)
	require.NotNil(t, hdr)
	assert.Equal(t, Phi, hdr.Code[0].Op)
	assert.ElementsMatch(t, []int{0, 1}, hdr.Preds)
}

func TestBuildDiamond(t *testing.T) {
	p := lower(t, `
words:
  - name: sign
    body: [dup, "0<", {if: [drop, -1], else: [drop, 1]}]
  - name: count
    body:
      - begin: [dup]
        while: [1-]
main: [5, sign, count, drop]
`)

	fs, err := BuildAll(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, fs, 3)

	assert.Equal(t, "main", fs[0].Name)

	for _, f := range fs {
		require.NoError(t, Validate(f), "%v", f)
	}

	sign := fs[2]
	assert.Equal(t, "sign", sign.Name)
	assert.Equal(t, 1, countOp(sign, Phi))
	assert.Equal(t, 0, DeadRegs(sign))

	count := fs[1]
	assert.Equal(t, "count", count.Name)
	assert.Equal(t, 1, countOp(count, Phi))
}

func TestBuildErrors(t *testing.T) {
	ctx := context.Background()

	p := ir.NewProgram()
	p.Main = ir.Code("+")

	_, err := Build(ctx, p, ir.MainUnit)

	var u *errs.Underflow
	assert.True(t, errors.As(err, &u), "%v", err)

	p.Main = ir.Code(0, ir.N(ir.BranchIfNot, 1), 1, ir.N(ir.Label, 1))

	_, err = Build(ctx, p, ir.MainUnit)

	var dm *errs.DepthMismatch
	assert.True(t, errors.As(err, &dm), "%v", err)

	_, err = Build(ctx, p, "nosuch")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	f := &Func{
		Name:   "twice",
		Blocks: []*Block{{ID: 0, Code: []Inst{Int(1, 1), Int(1, 2), Ret(1)}}},
	}
	assert.Equal(t, errs.RuleMultiple, rule(t, Validate(f)))

	f = &Func{
		Name:   "undef",
		Blocks: []*Block{{ID: 0, Code: []Inst{Int(1, 1), Ret(99)}}},
	}
	assert.Equal(t, errs.RuleUndefined, rule(t, Validate(f)))

	assert.NoError(t, Validate(diamond()))

	f = diamond()
	f.Blocks[3].Code = []Inst{Int(4, 0), PhiOf(3, [2]int{1, 1}, [2]int{2, 2}), Ret(3)}
	assert.Equal(t, errs.RulePhiStart, rule(t, Validate(f)))

	f = diamond()
	f.Blocks[3].Code = []Inst{Ret(1)}
	assert.Equal(t, errs.RuleDominance, rule(t, Validate(f)))

	f = diamond()
	f.Blocks[3].Code[0] = PhiOf(3, [2]int{1, 1})
	assert.Equal(t, errs.RulePhiPreds, rule(t, Validate(f)))

	f = diamond()
	f.Blocks = append(f.Blocks, &Block{ID: 4, Code: []Inst{Ret()}})
	assert.Equal(t, errs.RuleReachable, rule(t, Validate(f)))

	f = diamond()
	f.Blocks[1].Code = f.Blocks[1].Code[:1]
	assert.Equal(t, errs.RuleStructure, rule(t, Validate(f)))

	f = diamond()
	f.Blocks[1].Code[1] = Goto(7)
	assert.Equal(t, errs.RuleStructure, rule(t, Validate(f)))
}

func TestValidateTargets(t *testing.T) {
	f := diamond()
	f.Blocks[1].Code[1] = Inst{Op: Jump, To: []int{3, 3}}
	assert.Equal(t, errs.RuleStructure, rule(t, Validate(f)))

	f = diamond()
	f.Blocks[0].Code[1] = Inst{Op: Branch, Args: []Reg{0}, To: []int{1}}
	assert.Equal(t, errs.RuleStructure, rule(t, Validate(f)))

	f = diamond()
	f.Blocks[3].Code[1] = Inst{Op: Return, Args: []Reg{3}, To: []int{0}}
	assert.Equal(t, errs.RuleStructure, rule(t, Validate(f)))

	f = diamond()
	f.Blocks[1].Code[0] = Int(-1, 2)
	assert.Equal(t, errs.RuleStructure, rule(t, Validate(f)))
}

func TestValidatePhiIncoming(t *testing.T) {
	f := diamond()
	f.Blocks[3].Code[0] = PhiOf(3, [2]int{1, 1}, [2]int{1, 1})
	assert.Equal(t, errs.RulePhiPreds, rule(t, Validate(f)))

	f = diamond()
	f.Blocks[3].Code[0] = PhiOf(3, [2]int{2, 2}, [2]int{1, 1})
	assert.NoError(t, Validate(f), "incoming order does not matter")

	f = diamond()
	f.Blocks = append(f.Blocks, &Block{ID: 9, Code: []Inst{Ret()}}, &Block{ID: 5, Code: []Inst{Ret()}})

	var inv *errs.Invalid
	require.True(t, errors.As(Validate(f), &inv))
	assert.Equal(t, errs.RuleReachable, inv.Rule)
	assert.Equal(t, 5, inv.Block, "lowest unreachable block reported")
}

func TestValidateLongChain(t *testing.T) {
	f := &Func{Name: "chain"}
	b := &Block{ID: 0}

	b.Code = append(b.Code, Int(0, 1))

	for i := 1; i < 1000; i++ {
		b.Code = append(b.Code, Bin(ir.Add, Reg(i), Reg(i-1), Reg(i-1)))
	}

	b.Code = append(b.Code, Ret(999))
	f.Blocks = []*Block{b}
	f.NRegs = 1000

	st := time.Now()
	err := Validate(f)
	el := time.Since(st)

	assert.NoError(t, err)
	assert.Less(t, el, 100*time.Millisecond)
}

func TestDominators(t *testing.T) {
	d := Dominators(diamond())

	assert.Equal(t, 0, d.Idom(3))
	assert.Equal(t, 0, d.Idom(1))
	assert.True(t, d.Dominates(0, 3))
	assert.True(t, d.Dominates(3, 3))
	assert.False(t, d.Dominates(1, 3))
	assert.False(t, d.Dominates(3, 1))
	assert.Equal(t, 0, d.RPO()[0])
	assert.Len(t, d.RPO(), 4)
}

func TestDeadRegs(t *testing.T) {
	f := &Func{
		Name:  "dead",
		NRegs: 5,
		Blocks: []*Block{{ID: 0, Code: []Inst{
			Int(0, 1),
			Int(1, 2),
			Bin(ir.Add, 2, 1, 1),
			Bin(ir.Div, 3, 0, 0),
			Int(4, 7),
			Ret(0),
		}}},
	}

	assert.Equal(t, 3, DeadRegs(f))
	assert.Equal(t, "r0 = loadint 1", f.Blocks[0].Code[0].String())
	assert.Equal(t, Binary, f.Blocks[0].Code[1].Op, "trapping division kept")
	assert.Len(t, f.Blocks[0].Code, 3)
	assert.NoError(t, Validate(f))
}
