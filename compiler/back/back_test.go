package back

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/fifth/compiler/ast"
	"github.com/slowlang/fifth/compiler/ir"
	"github.com/slowlang/fifth/compiler/ssa"
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

func TestNew(t *testing.T) {
	b, err := New("threaded")
	require.NoError(t, err)
	assert.IsType(t, Threaded{}, b)

	b, err = New("ARM64")
	require.NoError(t, err)
	assert.IsType(t, ARM64{}, b)

	_, err = New("x86")
	assert.Error(t, err)

	assert.Equal(t, []string{"arm64", "threaded"}, Names())
}

func TestThreaded(t *testing.T) {
	p := ir.NewProgram()
	p.Words["sq"] = &ir.Word{Name: "sq", Code: ir.Code("dup", "*"), Effect: ir.Effect{In: 1, Out: 1}}
	p.Main = ir.Code(3, "sq")

	b, err := Threaded{}.Generate(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, `word sq (1 -- 1)
	0000	dup
	0001	*
	0002	exit

main
	0000	lit 3
	0002	call sq
	0004	bye
`, string(b))
}

func TestThreadedBranches(t *testing.T) {
	p := ir.NewProgram()
	p.Main = ir.Code(1, ir.N(ir.BranchIfNot, 1), 2, "drop", ir.N(ir.Label, 1))

	b, err := Threaded{}.Generate(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, `main
	0000	lit 1
	0002	0branch 0007
	0004	lit 2
	0006	drop
	0007	bye
`, string(b))

	p.Main = ir.Code(ir.N(ir.Branch, 5))

	_, err = Threaded{}.Generate(context.Background(), p)
	assert.Error(t, err)
}

func TestThreadedExplicitReturn(t *testing.T) {
	p := ir.NewProgram()
	p.Words["one"] = &ir.Word{Name: "one", Code: ir.Code(1, ir.I(ir.Return)), Effect: ir.Effect{Out: 1}}
	p.Main = ir.Code("one")

	b, err := Threaded{}.Generate(context.Background(), p)
	require.NoError(t, err)

	assert.Contains(t, string(b), "word one (0 -- 1)\n\t0000\tlit 1\n\t0002\texit\n\n")
}

func TestARM64(t *testing.T) {
	p := lower(t, `
words:
  - name: sq
    body: [dup, "*"]
  - name: down
    body:
      - begin: [1-, dup, "0="]
        until: true
main: [100000, sq, down]
`)

	b, err := ARM64{}.Generate(context.Background(), p)
	require.NoError(t, err)

	s := string(b)

	for _, exp := range []string{
		"_start:\n",
		"\tBL\t_main\n",
		".global _sq\n.align 4\n_sq:\n\tSTP\tFP, LR, [SP, #-16]!\n\tMOV\tFP, SP\n",
		"\tMUL\tX9, X9, X10\n",
		"\tMOVZ\tX9, #0x86a0\n\tMOVK\tX9, #0x1, LSL #16\n",
		"\tBL\t_sq\n",
		"\tBL\t_down\n",
		"\tCSETM\tX9, EQ\n",
		"\tCBNZ\tX9, ",
		"_down_b1_from_1:\n",
		"\tMOV\tSP, FP\n\tLDP\tFP, LR, [SP], #16\n\tRET\n",
	} {
		assert.Contains(t, s, exp)
	}
}

func TestARM64Errors(t *testing.T) {
	ctx := context.Background()

	p := ir.NewProgram()
	p.Main = ir.Code(ir.F(2.5), ir.F(1.5), "+")

	_, err := ARM64{}.Generate(ctx, p)
	assert.Error(t, err)

	f := &ssa.Func{Name: "wide", Entry: 0, NRegs: 10}

	for i := 0; i < 10; i++ {
		f.Params = append(f.Params, ssa.Reg(i))
	}

	f.Blocks = []*ssa.Block{{ID: 0, Code: []ssa.Inst{ssa.Ret()}}}

	_, err = ARM64{}.CompileFunc(ctx, f)
	assert.Error(t, err)

	f = &ssa.Func{Name: "many", Entry: 0, NRegs: 9}
	f.Blocks = []*ssa.Block{{ID: 0}}

	for i := 0; i < 9; i++ {
		f.Blocks[0].Code = append(f.Blocks[0].Code, ssa.Int(ssa.Reg(i), int64(i)))
	}

	f.Blocks[0].Code = append(f.Blocks[0].Code, ssa.Inst{Op: ssa.Call, Name: "x", Args: []ssa.Reg{0, 1, 2, 3, 4, 5, 6, 7, 8}}, ssa.Ret())

	_, err = ARM64{}.CompileFunc(ctx, f)
	assert.Error(t, err)
}

func TestARM64PhiCopies(t *testing.T) {
	f := &ssa.Func{Name: "swap", Entry: 0, NRegs: 5, Params: []ssa.Reg{0, 1, 2}}
	f.Blocks = []*ssa.Block{
		{ID: 0, Code: []ssa.Inst{ssa.Goto(1)}},
		{ID: 1, Preds: []int{0, 1}, Code: []ssa.Inst{
			ssa.PhiOf(3, [2]int{0, 0}, [2]int{1, 4}),
			ssa.PhiOf(4, [2]int{0, 1}, [2]int{1, 3}),
			ssa.If(2, 1, 2),
		}},
		{ID: 2, Preds: []int{1}, Code: []ssa.Inst{ssa.Ret(3)}},
	}

	require.NoError(t, ssa.Validate(f))

	obj, err := ARM64{}.CompileFunc(context.Background(), f)
	require.NoError(t, err)

	s := obj.String()

	// both sources saved before any phi is written
	assert.Contains(t, s, `_swap_b1_from_1:
	LDR	X9, [SP, #32]
	STR	X9, [SP, #40]
	LDR	X9, [SP, #24]
	STR	X9, [SP, #48]
	LDR	X9, [SP, #40]
	STR	X9, [SP, #24]
	LDR	X9, [SP, #48]
	STR	X9, [SP, #32]
	B	_swap_b1
`)
	assert.Contains(t, s, "\tSUB\tSP, SP, #64\n")
}

func TestARM64LargeFrame(t *testing.T) {
	ctx := context.Background()

	f := &ssa.Func{Name: "big", Entry: 0, NRegs: 600}
	f.Blocks = []*ssa.Block{{ID: 0, Code: []ssa.Inst{ssa.Int(599, 1), ssa.Ret(599)}}}

	obj, err := ARM64{}.CompileFunc(ctx, f)
	require.NoError(t, err)

	s := obj.String()

	assert.Contains(t, s, "\tMOV\tX9, #4800\n\tSUB\tSP, SP, X9\n")
	assert.NotContains(t, s, "SUB\tSP, SP, #4800")
	assert.Contains(t, s, "\tSTR\tX9, [SP, #4792]\n")

	f.NRegs = 5000

	_, err = ARM64{}.CompileFunc(ctx, f)
	assert.Error(t, err)
}
