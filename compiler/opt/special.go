package opt

import (
	"context"
	"fmt"
	"strings"

	"tlog.app/go/tlog"

	"github.com/slowlang/fifth/compiler/ir"
	"github.com/slowlang/fifth/compiler/tp"
)

type (
	// Specialize makes a copy of a word for each concrete argument signature
	// it's called with, when there are at least two of them.
	Specialize struct{}

	signature []tp.Kind

	// kinds is an abstract stack of operand kinds.
	kinds struct {
		d, r []tp.Kind
	}

	callsite struct {
		unit string
		pos  int
	}
)

func (Specialize) Name() string { return "specialize" }

func (Specialize) Run(ctx context.Context, p *ir.Program) (q *ir.Program, st Stats, err error) {
	tr := tlog.SpanFromContext(ctx)

	st = Stats{}

	sigs := map[string][]signature{}
	sites := map[callsite]string{}

	for _, u := range p.Units() {
		interpret(p, p.Code(u), nil, func(i int, x ir.Inst, in []tp.Kind) {
			if x.Op != ir.Call || len(in) == 0 {
				return
			}

			sig := signature(in)
			if !sig.concrete() {
				return
			}

			key := sig.String()
			sites[callsite{u, i}] = key

			for _, s := range sigs[x.Name] {
				if s.String() == key {
					return
				}
			}

			sigs[x.Name] = append(sigs[x.Name], sig)
		})
	}

	st["analyzed"] = len(sigs)

	q = p.Clone()

	// original name -> signature -> copy name
	copies := map[string]map[string]string{}

	for _, name := range p.Names() {
		if len(sigs[name]) < 2 {
			continue
		}

		w := p.Words[name]
		copies[name] = map[string]string{}

		for _, sig := range sigs[name] {
			key := sig.String()
			c := specialized(p, w, sig)

			cname := fmt.Sprintf("%s<%s>", name, key)

			for i := 1; ; i++ {
				ex := q.Words[cname]
				if ex == nil {
					q.Words[cname] = c
					c.Name = cname
					st["created"]++

					break
				}

				if sameCode(ex.Code, c.Code) {
					break
				}

				cname = fmt.Sprintf("%s<%s>.%d", name, key, i)
			}

			copies[name][key] = cname
		}

		if tr.If("dump_specialize") {
			tr.Printw("specialize", "word", name, "signatures", sigs[name])
		}
	}

	for _, u := range p.Units() {
		code := q.Code(u)

		for i, x := range code {
			key, ok := sites[callsite{u, i}]
			if !ok || x.Op != ir.Call {
				continue
			}

			cname, ok := copies[x.Name][key]
			if !ok {
				continue
			}

			code[i].Name = cname
			st["rewritten"]++
		}
	}

	return q, st, nil
}

// specialized copies w and tags its arithmetic with operand kinds.
func specialized(p *ir.Program, w *ir.Word, sig signature) *ir.Word {
	c := w.Clone()

	interpret(p, c.Code, sig, func(i int, x ir.Inst, in []tp.Kind) {
		if x.Ty != tp.Unknown || len(in) == 0 || !arith(x.Op) {
			return
		}

		k := in[len(in)-1]

		for _, k2 := range in {
			if k2 != k {
				return
			}
		}

		if k != tp.Unknown {
			c.Code[i].Ty = k
		}
	})

	return c
}

// interpret runs code over abstract operand kinds.
// visit gets the kinds of the operands of each instruction, bottom to top.
// Labels reset the stack: nothing is known about items at merge points.
func interpret(p *ir.Program, code []ir.Inst, init []tp.Kind, visit func(i int, x ir.Inst, in []tp.Kind)) {
	s := kinds{d: append([]tp.Kind{}, init...)}

	for i, x := range code {
		e := x.Op.Effect()

		if x.Op == ir.Call {
			e, _ = p.Effect(x)
		}

		in := s.pop(e.In)

		visit(i, x, in)

		switch op := x.Op.Uncached(); op {
		case ir.Lit:
			s.push(tp.Int)
		case ir.FLit:
			s.push(tp.Float)
		case ir.Dup:
			s.push(in[0], in[0])
		case ir.Swap:
			s.push(in[1], in[0])
		case ir.Over:
			s.push(in[0], in[1], in[0])
		case ir.Rot:
			s.push(in[1], in[2], in[0])
		case ir.Nip:
			s.push(in[1])
		case ir.Tuck:
			s.push(in[1], in[0], in[1])
		case ir.Add, ir.Sub, ir.Mul, ir.Div:
			s.push(same(in[0], in[1]))
		case ir.Neg, ir.Abs, ir.Inc, ir.Dec, ir.Shl1, ir.Shr1, ir.DupAdd, ir.DupMul, ir.LitAdd, ir.LitMul:
			s.push(in[0])
		case ir.OverAdd:
			s.push(in[0], same(in[0], in[1]))
		case ir.SwapSub:
			s.push(same(in[0], in[1]))
		case ir.Load8:
			s.push(tp.Char)
		case ir.ToR:
			s.r = append(s.r, in[0])
		case ir.FromR, ir.RFetch:
			k := tp.Unknown

			if l := len(s.r); l != 0 {
				k = s.r[l-1]

				if op == ir.FromR {
					s.r = s.r[:l-1]
				}
			}

			s.push(k)
		case ir.Call:
			s.push(results(p, x, e.Out)...)
		case ir.Label, ir.Branch, ir.Return:
			s = kinds{}
		default:
			for k := 0; k < e.Out; k++ {
				s.push(resultKind(op))
			}
		}
	}
}

func results(p *ir.Program, x ir.Inst, n int) []tp.Kind {
	r := make([]tp.Kind, n)

	w := p.Words[x.Name]
	if w == nil || len(w.Type.Out) != n {
		return r
	}

	for i, t := range w.Type.Out {
		r[i], _ = tp.Concrete(t)
	}

	return r
}

func resultKind(op ir.Op) tp.Kind {
	switch op {
	case ir.Mod, ir.And, ir.Or, ir.Xor, ir.Not, ir.Shl, ir.Shr,
		ir.Eq, ir.Ne, ir.Lt, ir.Le, ir.Gt, ir.Ge, ir.ZeroEq, ir.ZeroLt, ir.ZeroGt,
		ir.Load:
		return tp.Int
	}

	return tp.Unknown
}

func arith(op ir.Op) bool {
	switch op {
	case ir.Add, ir.Sub, ir.Mul, ir.Div, ir.Neg, ir.Abs,
		ir.Eq, ir.Ne, ir.Lt, ir.Le, ir.Gt, ir.Ge, ir.ZeroEq, ir.ZeroLt, ir.ZeroGt,
		ir.DupAdd, ir.DupMul, ir.OverAdd, ir.SwapSub, ir.Inc, ir.Dec, ir.Shl1, ir.Shr1, ir.LitAdd, ir.LitMul:
		return true
	}

	return false
}

func same(a, b tp.Kind) tp.Kind {
	if a == b {
		return a
	}

	return tp.Unknown
}

// pop removes n items, bottom to top. Missing items are unknown.
func (s *kinds) pop(n int) []tp.Kind {
	r := make([]tp.Kind, n)

	for i := n - 1; i >= 0; i-- {
		if l := len(s.d); l != 0 {
			r[i] = s.d[l-1]
			s.d = s.d[:l-1]
		}
	}

	return r
}

func (s *kinds) push(k ...tp.Kind) { s.d = append(s.d, k...) }

func (s signature) concrete() bool {
	for _, k := range s {
		if k == tp.Unknown {
			return false
		}
	}

	return true
}

func (s signature) String() string {
	var b strings.Builder

	for i, k := range s {
		if i != 0 {
			b.WriteByte(',')
		}

		b.WriteString(k.String())
	}

	return b.String()
}

func sameCode(a, b []ir.Inst) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
