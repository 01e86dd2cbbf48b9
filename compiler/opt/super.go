package opt

import (
	"context"
	"sort"

	"github.com/slowlang/fifth/compiler/ir"
	"github.com/slowlang/fifth/compiler/tp"
)

type (
	// Super fuses common instruction pairs into superinstructions.
	// Cache ops are turned back into plain shuffles first, Cache adds them again.
	Super struct{}

	fusion struct {
		pat  []pat
		repl []ir.Op // LitAdd and LitMul take N from the matched literal
	}

	pat struct {
		op  ir.Op
		n   int64
		any bool // any integer literal
	}
)

func on(o ir.Op) pat { return pat{op: o} }
func litN(n int64) pat { return pat{op: ir.Lit, n: n} }
func litAny() pat { return pat{op: ir.Lit, any: true} }
func fuse(o ...ir.Op) []ir.Op { return o }

// fusions is ordered longest pattern first. Exact literals go before any literal.
var fusions = func() []fusion {
	fs := []fusion{
		{[]pat{on(ir.Dup), on(ir.Add)}, fuse(ir.DupAdd)},
		{[]pat{on(ir.Dup), on(ir.Mul)}, fuse(ir.DupMul)},
		{[]pat{litN(1), on(ir.Add)}, fuse(ir.Inc)},
		{[]pat{litN(1), on(ir.Sub)}, fuse(ir.Dec)},
		{[]pat{litN(2), on(ir.Mul)}, fuse(ir.Shl1)},
		{[]pat{litN(2), on(ir.Div)}, fuse(ir.Shr1)},
		{[]pat{on(ir.Over), on(ir.Add)}, fuse(ir.OverAdd)},
		{[]pat{on(ir.Swap), on(ir.Sub)}, fuse(ir.SwapSub)},
		{[]pat{litN(0), on(ir.Eq)}, fuse(ir.ZeroEq)},
		{[]pat{litN(0), on(ir.Lt)}, fuse(ir.ZeroLt)},
		{[]pat{litN(0), on(ir.Gt)}, fuse(ir.ZeroGt)},
		{[]pat{litAny(), on(ir.Add)}, fuse(ir.LitAdd)},
		{[]pat{litAny(), on(ir.Mul)}, fuse(ir.LitMul)},
		{[]pat{on(ir.Swap), on(ir.Drop)}, fuse(ir.Nip)},
		{[]pat{on(ir.Swap), on(ir.Over)}, fuse(ir.Tuck)},
		{[]pat{on(ir.Dup), on(ir.Drop)}, nil},
		{[]pat{on(ir.Swap), on(ir.Swap)}, nil},
	}

	sort.SliceStable(fs, func(i, j int) bool { return len(fs[i].pat) > len(fs[j].pat) })

	return fs
}()

func (Super) Name() string { return "super" }

func (Super) Run(ctx context.Context, p *ir.Program) (*ir.Program, Stats, error) {
	st := Stats{}

	q := rewrite(p, func(_ string, code []ir.Inst) []ir.Inst {
		return superCode(uncache(code), st)
	})

	return q, st, nil
}

func superCode(code []ir.Inst, st Stats) []ir.Inst {
	out := make([]ir.Inst, 0, len(code))

next:
	for i := 0; i < len(code); {
		for _, f := range fusions {
			if !f.match(code[i:]) {
				continue
			}

			m := code[i : i+len(f.pat)]
			i += len(f.pat)

			if len(f.repl) == 0 {
				st["removed"] += len(m)
				continue next
			}

			for _, o := range f.repl {
				x := ir.Inst{Op: o, Ty: m[len(m)-1].Ty}

				if o == ir.LitAdd || o == ir.LitMul {
					x.N = m[0].N
				}

				out = append(out, x)
			}

			st["fused"]++

			continue next
		}

		out = append(out, code[i])
		i++
	}

	return out
}

func (f fusion) match(code []ir.Inst) bool {
	if len(code) < len(f.pat) {
		return false
	}

	haslit := false

	for i, p := range f.pat {
		x := code[i]

		if x.Op != p.op {
			return false
		}

		if p.op == ir.Lit {
			haslit = true

			if !p.any && x.N != p.n {
				return false
			}
		}
	}

	if haslit {
		for _, x := range code[:len(f.pat)] {
			if x.Ty == tp.Float {
				return false
			}
		}
	}

	return true
}
