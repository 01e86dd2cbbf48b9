package ssa

import (
	"fmt"

	"github.com/slowlang/fifth/compiler/tp"
)

func (f *Func) String() string { return string(AppendFunc(nil, f)) }

func (x Inst) String() string { return string(x.Append(nil)) }

// AppendFunc prints a function as text:
//
//	func sq(r0) {
//	b0:
//		r1 = binary * r0 r0
//		ret r1
//	}
func AppendFunc(b []byte, f *Func) []byte {
	b = fmt.Appendf(b, "func %v(", f.Name)
	b = appendRegs(b, f.Params, ", ")
	b = append(b, ") {\n"...)

	for _, blk := range f.Blocks {
		b = fmt.Appendf(b, "b%d:", blk.ID)

		if len(blk.Preds) != 0 {
			b = append(b, "  // preds"...)

			for _, p := range blk.Preds {
				b = fmt.Appendf(b, " b%d", p)
			}
		}

		b = append(b, '\n')

		for _, x := range blk.Code {
			b = append(b, '\t')
			b = x.Append(b)
			b = append(b, '\n')
		}
	}

	return append(b, "}\n"...)
}

func (x Inst) Append(b []byte) []byte {
	if len(x.Dst) != 0 {
		b = appendRegs(b, x.Dst, ", ")
		b = append(b, " = "...)
	}

	b = append(b, x.Op.String()...)

	switch x.Op {
	case LoadInt:
		return fmt.Appendf(b, " %d", x.N)
	case LoadFloat:
		return fmt.Appendf(b, " %v", x.F)
	case Unary, Binary, Load, Store:
		b = fmt.Appendf(b, " %v", x.Sub)

		if x.Ty != tp.Unknown {
			b = fmt.Appendf(b, ":%v", x.Ty)
		}
	case Call:
		b = fmt.Appendf(b, " %v", x.Name)
	case Phi:
		for i, a := range x.Args {
			b = fmt.Appendf(b, " [b%d %v]", x.From[i], a)
		}

		return b
	case Jump:
		return fmt.Appendf(b, " b%d", x.To[0])
	}

	if len(x.Args) != 0 {
		b = append(b, ' ')
		b = appendRegs(b, x.Args, " ")
	}

	if x.Op == Branch {
		b = fmt.Appendf(b, " b%d b%d", x.To[0], x.To[1])
	}

	return b
}

func appendRegs(b []byte, rs []Reg, sep string) []byte {
	for i, r := range rs {
		if i != 0 {
			b = append(b, sep...)
		}

		b = fmt.Appendf(b, "r%d", int(r))
	}

	return b
}
