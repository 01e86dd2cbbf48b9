package opt

import (
	"context"
	"math"

	"github.com/slowlang/fifth/compiler/ir"
	"github.com/slowlang/fifth/compiler/tp"
)

// Fold evaluates operations on literal operands at compile time
// and removes algebraic identities.
type Fold struct{}

func (Fold) Name() string { return "fold" }

func (Fold) Run(ctx context.Context, p *ir.Program) (*ir.Program, Stats, error) {
	st := Stats{}

	q := rewrite(p, func(_ string, code []ir.Inst) []ir.Inst {
		return foldCode(code, st)
	})

	return q, st, nil
}

// foldCode appends instructions one by one and rewrites the tail of the output.
// Replacements are appended the same way so they can fold with what precedes them.
func foldCode(code []ir.Inst, st Stats) []ir.Inst {
	out := make([]ir.Inst, 0, len(code))

	var push func(x ir.Inst)
	push = func(x ir.Inst) {
		out = append(out, x)

		k, repl, ok := foldTail(out)
		if !ok {
			return
		}

		st["folded"]++
		out = out[:len(out)-k]

		for _, y := range repl {
			push(y)
		}
	}

	for _, x := range code {
		push(x)
	}

	return out
}

// foldTail returns the number of trailing instructions to replace and their replacement.
func foldTail(out []ir.Inst) (int, []ir.Inst, bool) {
	n := len(out)
	x := out[n-1]
	ints := x.Ty != tp.Float

	if n >= 3 {
		a, b := out[n-3], out[n-2]

		switch {
		case a.Op == ir.Lit && b.Op == ir.Lit && ints:
			if v, ok := foldBinary(x.Op, a.N, b.N); ok {
				return 3, []ir.Inst{num(v)}, true
			}

			switch x.Op {
			case ir.Swap:
				return 3, []ir.Inst{b, a}, true
			case ir.Over:
				return 3, []ir.Inst{a, b, a}, true
			case ir.Nip:
				return 3, []ir.Inst{b}, true
			case ir.OverAdd:
				return 3, []ir.Inst{a, num(a.N + b.N)}, true
			case ir.SwapSub:
				return 3, []ir.Inst{num(b.N - a.N)}, true
			}
		case a.Op == ir.FLit && b.Op == ir.FLit:
			if r, ok := foldFloat(x.Op, a.F, b.F); ok {
				return 3, []ir.Inst{r}, true
			}
		}
	}

	if n >= 2 {
		if repl, k, ok := foldPair(out[n-2], x, ints); ok {
			return k, repl, true
		}
	}

	switch {
	case x.Op == ir.LitAdd && x.N == 0,
		x.Op == ir.LitMul && x.N == 1:
		return 1, nil, true
	case x.Op == ir.LitMul && x.N == 0:
		return 1, []ir.Inst{ir.I(ir.Drop), num(0)}, true
	}

	return 0, nil, false
}

func foldPair(a, x ir.Inst, ints bool) ([]ir.Inst, int, bool) {
	switch a.Op {
	case ir.Lit:
		if !ints {
			break
		}

		if v, ok := foldUnary(x, a.N); ok {
			return []ir.Inst{num(v)}, 2, true
		}

		switch x.Op {
		case ir.Drop:
			return nil, 2, true
		case ir.Dup:
			return []ir.Inst{a, a}, 2, true
		}

		if repl, ok := identity(x.Op, a.N); ok {
			return repl, 2, true
		}
	case ir.FLit:
		switch x.Op {
		case ir.Drop:
			return nil, 2, true
		case ir.Dup:
			return []ir.Inst{a, a}, 2, true
		case ir.Neg:
			return []ir.Inst{ir.F(-a.F)}, 2, true
		case ir.Abs:
			return []ir.Inst{ir.F(math.Abs(a.F))}, 2, true
		}
	case ir.LitAdd:
		if x.Op == ir.LitAdd && a.Ty == x.Ty {
			return []ir.Inst{{Op: ir.LitAdd, N: a.N + x.N, Ty: x.Ty}}, 2, true
		}
	case ir.LitMul:
		if x.Op == ir.LitMul && a.Ty == x.Ty {
			return []ir.Inst{{Op: ir.LitMul, N: a.N * x.N, Ty: x.Ty}}, 2, true
		}
	}

	return nil, 0, false
}

// identity simplifies x lit op when the literal is neutral or absorbing.
func identity(op ir.Op, v int64) ([]ir.Inst, bool) {
	switch {
	case v == 0 && (op == ir.Add || op == ir.Sub || op == ir.Or || op == ir.Xor || op == ir.Shl || op == ir.Shr):
		return nil, true
	case v == 1 && (op == ir.Mul || op == ir.Div):
		return nil, true
	case v == 0 && (op == ir.Mul || op == ir.And):
		return []ir.Inst{ir.I(ir.Drop), num(0)}, true
	}

	return nil, false
}

func foldBinary(op ir.Op, a, b int64) (int64, bool) {
	switch op {
	case ir.Add:
		return a + b, true
	case ir.Sub:
		return a - b, true
	case ir.Mul:
		return a * b, true
	case ir.Div:
		if b == 0 {
			return 0, false
		}

		return a / b, true
	case ir.Mod:
		if b == 0 {
			return 0, false
		}

		return a % b, true
	case ir.And:
		return a & b, true
	case ir.Or:
		return a | b, true
	case ir.Xor:
		return a ^ b, true
	case ir.Shl:
		if b < 0 || b > 63 {
			return 0, false
		}

		return a << uint(b), true
	case ir.Shr:
		if b < 0 || b > 63 {
			return 0, false
		}

		return int64(uint64(a) >> uint(b)), true
	case ir.Eq:
		return flag(a == b), true
	case ir.Ne:
		return flag(a != b), true
	case ir.Lt:
		return flag(a < b), true
	case ir.Le:
		return flag(a <= b), true
	case ir.Gt:
		return flag(a > b), true
	case ir.Ge:
		return flag(a >= b), true
	}

	return 0, false
}

func foldUnary(x ir.Inst, a int64) (int64, bool) {
	switch x.Op {
	case ir.Neg:
		return -a, true
	case ir.Abs:
		if a < 0 {
			return -a, true
		}

		return a, true
	case ir.Not:
		return ^a, true
	case ir.ZeroEq:
		return flag(a == 0), true
	case ir.ZeroLt:
		return flag(a < 0), true
	case ir.ZeroGt:
		return flag(a > 0), true
	case ir.Inc:
		return a + 1, true
	case ir.Dec:
		return a - 1, true
	case ir.Shl1:
		return a * 2, true
	case ir.Shr1:
		return a / 2, true
	case ir.DupAdd:
		return a + a, true
	case ir.DupMul:
		return a * a, true
	case ir.LitAdd:
		return a + x.N, true
	case ir.LitMul:
		return a * x.N, true
	}

	return 0, false
}

func foldFloat(op ir.Op, a, b float64) (ir.Inst, bool) {
	switch op {
	case ir.Add:
		return ir.F(a + b), true
	case ir.Sub:
		return ir.F(a - b), true
	case ir.Mul:
		return ir.F(a * b), true
	case ir.Div:
		if b == 0 {
			return ir.Inst{}, false
		}

		return ir.F(a / b), true
	case ir.Eq:
		return num(flag(a == b)), true
	case ir.Ne:
		return num(flag(a != b)), true
	case ir.Lt:
		return num(flag(a < b)), true
	case ir.Le:
		return num(flag(a <= b)), true
	case ir.Gt:
		return num(flag(a > b)), true
	case ir.Ge:
		return num(flag(a >= b)), true
	}

	return ir.Inst{}, false
}

func num(v int64) ir.Inst { return ir.N(ir.Lit, v) }

// flag is the Forth truth value: all bits set for true.
func flag(ok bool) int64 {
	if ok {
		return -1
	}

	return 0
}
