package back

import (
	"context"
	"fmt"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/fifth/compiler/ir"
	"github.com/slowlang/fifth/compiler/ssa"
)

// Threaded emits an indirect threaded code listing.
// Every instruction takes a cell, operands take one more. Labels become cell addresses.
type Threaded struct{}

func (Threaded) Generate(ctx context.Context, p *ir.Program) (b []byte, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "threaded: generate", "words", len(p.Words))
	defer tr.Finish("err", &err)

	for _, name := range p.Names() {
		w := p.Words[name]

		b = fmt.Appendf(b, "word %v %v\n", name, w.Effect)

		b, err = threadUnit(b, w.Code, "exit")
		if err != nil {
			return nil, errors.Wrap(err, "word %v", name)
		}

		b = append(b, '\n')
	}

	b = append(b, "main\n"...)

	b, err = threadUnit(b, p.Main, "bye")
	if err != nil {
		return nil, errors.Wrap(err, "main")
	}

	return b, nil
}

// CompileFunc prints the ssa form. Threaded code has no use for registers.
func (Threaded) CompileFunc(ctx context.Context, f *ssa.Func) (*Object, error) {
	return &Object{Name: f.Name, Text: ssa.AppendFunc(nil, f)}, nil
}

// threadUnit lays the code out in cells.
// Words end with exit unless the code already returns, main ends with bye.
func threadUnit(b []byte, code []ir.Inst, last string) ([]byte, error) {
	labels := map[int64]int{}
	addr := 0

	for _, x := range code {
		switch {
		case x.Op == ir.Label:
			labels[x.N] = addr
		case x.Op.Meta():
		default:
			addr += cells(x)
		}
	}

	pc := 0

	for _, x := range code {
		switch {
		case x.Op == ir.Label, x.Op.Meta():
			continue
		case x.Op.Jump():
			to, ok := labels[x.N]
			if !ok {
				return nil, errors.New("undefined label L%d", x.N)
			}

			b = fmt.Appendf(b, "\t%04d\t%v %04d\n", pc, x.Op, to)
		default:
			b = fmt.Appendf(b, "\t%04d\t%v\n", pc, cell(x))
		}

		pc += cells(x)
	}

	if n := len(code); last == "exit" && n != 0 && code[n-1].Op == ir.Return {
		return b, nil
	}

	return fmt.Appendf(b, "\t%04d\t%v\n", addr, last), nil
}

func cells(x ir.Inst) int {
	switch x.Op {
	case ir.Lit, ir.FLit, ir.LitAdd, ir.LitMul, ir.Call,
		ir.Branch, ir.BranchIf, ir.BranchIfNot,
		ir.CachedDup, ir.CachedSwap, ir.CachedOver, ir.Flush:
		return 2
	}

	return 1
}

func cell(x ir.Inst) string {
	switch x.Op {
	case ir.Lit, ir.FLit:
		return fmt.Sprintf("lit %v", x)
	case ir.Call:
		return fmt.Sprintf("call %v", x.Name)
	}

	return x.String()
}
