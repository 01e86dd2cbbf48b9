package back

import (
	"context"
	"fmt"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/fifth/compiler/asm/arm64"
	"github.com/slowlang/fifth/compiler/ir"
	"github.com/slowlang/fifth/compiler/ssa"
	"github.com/slowlang/fifth/compiler/tp"
)

type (
	// ARM64 emits AArch64 assembly from ssa.
	// Every register lives in its own stack slot, X9-X11 are scratch.
	ARM64 struct{}

	funContext struct {
		*ssa.Func

		sym   string
		frame int

		tmp  map[*ssa.Inst]int // phi -> temp slot
		tram []edge
	}

	edge struct{ from, to int }
)

const (
	maxSlotOffset = 32760 // LDR/STR scaled unsigned offset
	maxImm12      = 4095
)

func (a ARM64) Generate(ctx context.Context, p *ir.Program) (b []byte, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "arm64: generate", "words", len(p.Words))
	defer tr.Finish("err", &err)

	fs, err := ssa.BuildAll(ctx, p)
	if err != nil {
		return nil, errors.Wrap(err, "build ssa")
	}

	b = fmt.Appendf(b, `// generated by fifth

.global _start
.align 4
_start:
	STP	FP, LR, [SP, #-16]!
	MOV	FP, SP

	BL	%v

	LDP	FP, LR, [SP], #16
	RET
`, arm64.Sym("main"))

	for _, f := range fs {
		err = ssa.Validate(f)
		if err != nil {
			return nil, err
		}

		ssa.DeadRegs(f)

		obj, err := a.CompileFunc(ctx, f)
		if err != nil {
			return nil, errors.Wrap(err, "func %v", f.Name)
		}

		b = append(b, '\n')
		b = append(b, obj.Text...)
	}

	tr.V("arm64").Printw("generated", "funcs", len(fs), "size", len(b))

	return b, nil
}

func (a ARM64) CompileFunc(ctx context.Context, f *ssa.Func) (_ *Object, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "arm64: compile func", "name", f.Name, "regs", f.NRegs)
	defer tr.Finish("err", &err)

	c := &funContext{
		Func: f,
		sym:  arm64.Sym(f.Name),
		tmp:  map[*ssa.Inst]int{},
	}

	if len(f.Params) > arm64.NArgs {
		return nil, errors.New("%d params, at most %d supported", len(f.Params), arm64.NArgs)
	}

	slots := f.NRegs

	for _, blk := range f.Blocks {
		for i := range blk.Code {
			if x := &blk.Code[i]; x.Op == ssa.Phi {
				c.tmp[x] = slots
				slots++
			}
		}
	}

	if 8*slots > maxSlotOffset {
		return nil, errors.New("frame too large: %d slots", slots)
	}

	c.frame = (8*slots + 15) &^ 15

	b := fmt.Appendf(nil, `.global %v
.align 4
%[1]v:
	STP	FP, LR, [SP, #-16]!
	MOV	FP, SP
`, c.sym)

	switch {
	case c.frame == 0:
	case c.frame <= maxImm12:
		b = fmt.Appendf(b, "\tSUB\tSP, SP, #%d\n", c.frame)
	default:
		b = arm64.MovImm(b, arm64.X9, int64(c.frame))
		b = fmt.Appendf(b, "\tSUB\tSP, SP, X9\n")
	}

	for i, r := range f.Params {
		b = c.st(b, arm64.Reg(i), r)
	}

	if len(f.Blocks) != 0 && f.Blocks[0].ID != f.Entry {
		b = fmt.Appendf(b, "\tB\t%v\n", c.label(f.Entry))
	}

	for _, blk := range f.Blocks {
		b = fmt.Appendf(b, "%v:\n", c.label(blk.ID))

		for _, x := range blk.Code {
			b, err = c.inst(b, blk, x)
			if err != nil {
				return nil, errors.Wrap(err, "block %d: %v", blk.ID, x)
			}
		}
	}

	for _, e := range c.tram {
		b = fmt.Appendf(b, "%v:\n", c.edgeLabel(e))
		b = c.copies(b, e)
		b = fmt.Appendf(b, "\tB\t%v\n", c.label(e.to))
	}

	return &Object{Name: f.Name, Text: b}, nil
}

func (c *funContext) inst(b []byte, blk *ssa.Block, x ssa.Inst) ([]byte, error) {
	if x.Ty == tp.Float {
		return nil, errors.New("float arithmetic is not supported")
	}

	switch x.Op {
	case ssa.Phi:
		return b, nil
	case ssa.LoadInt:
		b = arm64.MovImm(b, arm64.X9, x.N)

		return c.st(b, arm64.X9, x.Dst[0]), nil
	case ssa.LoadFloat:
		return nil, errors.New("float literals are not supported")
	case ssa.Binary:
		b = c.ld(b, arm64.X9, x.Args[0])
		b = c.ld(b, arm64.X10, x.Args[1])

		switch x.Sub {
		case ir.Add, ir.Sub, ir.Mul, ir.Div, ir.And, ir.Or, ir.Xor, ir.Shl, ir.Shr:
			b = fmt.Appendf(b, "\t%v\tX9, X9, X10\n", binOps[x.Sub])
		case ir.Mod:
			b = fmt.Appendf(b, "\tSDIV\tX11, X9, X10\n\tMSUB\tX9, X11, X10, X9\n")
		case ir.Eq, ir.Ne, ir.Lt, ir.Le, ir.Gt, ir.Ge:
			b = fmt.Appendf(b, "\tCMP\tX9, X10\n\tCSETM\tX9, %v\n", conds[x.Sub])
		default:
			return nil, errors.New("unsupported binary op %v", x.Sub)
		}

		return c.st(b, arm64.X9, x.Dst[0]), nil
	case ssa.Unary:
		b = c.ld(b, arm64.X9, x.Args[0])

		switch x.Sub {
		case ir.Neg:
			b = fmt.Appendf(b, "\tNEG\tX9, X9\n")
		case ir.Abs:
			b = fmt.Appendf(b, "\tCMP\tX9, #0\n\tCNEG\tX9, X9, LT\n")
		case ir.Not:
			b = fmt.Appendf(b, "\tMVN\tX9, X9\n")
		case ir.ZeroEq, ir.ZeroLt, ir.ZeroGt:
			b = fmt.Appendf(b, "\tCMP\tX9, #0\n\tCSETM\tX9, %v\n", conds[x.Sub])
		default:
			return nil, errors.New("unsupported unary op %v", x.Sub)
		}

		return c.st(b, arm64.X9, x.Dst[0]), nil
	case ssa.Load:
		b = c.ld(b, arm64.X9, x.Args[0])

		if x.Sub == ir.Load8 {
			b = fmt.Appendf(b, "\tLDRB\t%v, [X9]\n", arm64.X9.W())
		} else {
			b = fmt.Appendf(b, "\tLDR\tX9, [X9]\n")
		}

		return c.st(b, arm64.X9, x.Dst[0]), nil
	case ssa.Store:
		b = c.ld(b, arm64.X9, x.Args[0])
		b = c.ld(b, arm64.X10, x.Args[1])

		if x.Sub == ir.Store8 {
			return fmt.Appendf(b, "\tSTRB\t%v, [X10]\n", arm64.X9.W()), nil
		}

		return fmt.Appendf(b, "\tSTR\tX9, [X10]\n"), nil
	case ssa.Call:
		if len(x.Args) > arm64.NArgs || len(x.Dst) > arm64.NArgs {
			return nil, errors.New("call %v: too many arguments or results", x.Name)
		}

		for i, r := range x.Args {
			b = c.ld(b, arm64.Reg(i), r)
		}

		b = fmt.Appendf(b, "\tBL\t%v\n", arm64.Sym(x.Name))

		for i, r := range x.Dst {
			b = c.st(b, arm64.Reg(i), r)
		}

		return b, nil
	case ssa.Jump:
		e := edge{from: blk.ID, to: x.To[0]}

		b = c.copies(b, e)

		return fmt.Appendf(b, "\tB\t%v\n", c.label(e.to)), nil
	case ssa.Branch:
		b = c.ld(b, arm64.X9, x.Args[0])
		b = fmt.Appendf(b, "\tCBNZ\tX9, %v\n", c.target(edge{from: blk.ID, to: x.To[0]}))

		return fmt.Appendf(b, "\tB\t%v\n", c.target(edge{from: blk.ID, to: x.To[1]})), nil
	case ssa.Return:
		if len(x.Args) > arm64.NArgs {
			return nil, errors.New("%d results, at most %d supported", len(x.Args), arm64.NArgs)
		}

		for i, r := range x.Args {
			b = c.ld(b, arm64.Reg(i), r)
		}

		return fmt.Appendf(b, `	MOV	SP, FP
	LDP	FP, LR, [SP], #16
	RET
`), nil
	}

	return nil, errors.New("unsupported instruction")
}

// copies moves phi arguments of edge e into phi registers.
// All sources are saved to temp slots first so phis may read each other.
func (c *funContext) copies(b []byte, e edge) []byte {
	blk := c.Block(e.to)
	if blk == nil {
		return b
	}

	var phis []*ssa.Inst

	for i := range blk.Code {
		x := &blk.Code[i]
		if x.Op != ssa.Phi {
			break
		}

		phis = append(phis, x)
	}

	for _, x := range phis {
		for j, from := range x.From {
			if from == e.from {
				b = c.ld(b, arm64.X9, x.Args[j])
				b = fmt.Appendf(b, "\tSTR\tX9, [SP, #%d]\n", 8*c.tmp[x])
			}
		}
	}

	for _, x := range phis {
		b = fmt.Appendf(b, "\tLDR\tX9, [SP, #%d]\n", 8*c.tmp[x])
		b = c.st(b, arm64.X9, x.Dst[0])
	}

	return b
}

// target is the label a conditional branch jumps to.
// Edges into blocks with phis go through a trampoline doing the copies.
func (c *funContext) target(e edge) string {
	blk := c.Block(e.to)
	if blk == nil || len(blk.Code) == 0 || blk.Code[0].Op != ssa.Phi {
		return c.label(e.to)
	}

	for _, t := range c.tram {
		if t == e {
			return c.edgeLabel(e)
		}
	}

	c.tram = append(c.tram, e)

	return c.edgeLabel(e)
}

func (c *funContext) label(id int) string { return fmt.Sprintf("%v_b%d", c.sym, id) }

func (c *funContext) edgeLabel(e edge) string {
	return fmt.Sprintf("%v_b%d_from_%d", c.sym, e.to, e.from)
}

func (c *funContext) ld(b []byte, r arm64.Reg, v ssa.Reg) []byte {
	return fmt.Appendf(b, "\tLDR\t%v, [SP, #%d]\n", r, 8*int(v))
}

func (c *funContext) st(b []byte, r arm64.Reg, v ssa.Reg) []byte {
	return fmt.Appendf(b, "\tSTR\t%v, [SP, #%d]\n", r, 8*int(v))
}

var binOps = map[ir.Op]string{
	ir.Add: "ADD",
	ir.Sub: "SUB",
	ir.Mul: "MUL",
	ir.Div: "SDIV",
	ir.And: "AND",
	ir.Or:  "ORR",
	ir.Xor: "EOR",
	ir.Shl: "LSL",
	ir.Shr: "LSR",
}

var conds = map[ir.Op]arm64.Cond{
	ir.Eq:     arm64.EQ,
	ir.Ne:     arm64.NE,
	ir.Lt:     arm64.LT,
	ir.Le:     arm64.LE,
	ir.Gt:     arm64.GT,
	ir.Ge:     arm64.GE,
	ir.ZeroEq: arm64.EQ,
	ir.ZeroLt: arm64.LT,
	ir.ZeroGt: arm64.GT,
}
