package opt

import (
	"context"

	"github.com/slowlang/fifth/compiler/ir"
	"github.com/slowlang/fifth/compiler/set"
)

type (
	// DCE removes pure computations whose results are only dropped.
	// It works on straight-line segments between control instructions.
	DCE struct{}

	dceNode struct {
		in  []int // value ids, top last
		out []int

		collapse int // index of the vanished output of a collapsed dup or over, -1 if none
	}

	segment struct {
		code  []ir.Inst
		nodes []dceNode

		producer []int // -1 for values from below the segment
		consumer []int // -1 for values live at the segment end

		killed set.Bitmap // instruction indexes
	}
)

func (DCE) Name() string { return "dce" }

func (DCE) Run(ctx context.Context, p *ir.Program) (*ir.Program, Stats, error) {
	st := Stats{}

	q := rewrite(p, func(_ string, code []ir.Inst) []ir.Inst {
		return dceCode(code, st)
	})

	return q, st, nil
}

func dceCode(code []ir.Inst, st Stats) []ir.Inst {
	out := make([]ir.Inst, 0, len(code))
	start := 0

	for i := 0; i <= len(code); i++ {
		if i < len(code) && !code[i].Op.Control() {
			continue
		}

		out = dceSegment(out, code[start:i], st)

		if i < len(code) {
			out = append(out, code[i])
		}

		start = i + 1
	}

	return out
}

func dceSegment(out, code []ir.Inst, st Stats) []ir.Inst {
	if len(code) == 0 {
		return out
	}

	s := &segment{
		code:   code,
		nodes:  make([]dceNode, len(code)),
		killed: set.MakeBitmap(len(code)),
	}

	s.link()
	s.mark()

	for i, x := range code {
		nd := &s.nodes[i]

		switch {
		case s.killed.IsSet(i):
			st["removed"]++

			for k := len(nd.in) - 1; k >= 0; k-- {
				if !s.vanished(nd.in[k]) {
					out = append(out, ir.I(ir.Drop))
				}
			}
		case nd.collapse >= 0:
			st["collapsed"]++
		case x.Op == ir.Drop && s.vanished(nd.in[0]):
			st["removed"]++
		default:
			out = append(out, x)
		}
	}

	return out
}

// link walks the segment forward and connects each value to its producer and consumer.
func (s *segment) link() {
	var stack []int

	val := func(prod int) int {
		s.producer = append(s.producer, prod)
		s.consumer = append(s.consumer, -1)

		return len(s.producer) - 1
	}

	for i, x := range s.code {
		e := x.Op.Effect()
		nd := &s.nodes[i]

		nd.collapse = -1
		nd.in = make([]int, e.In)

		for k := e.In - 1; k >= 0; k-- {
			var v int

			if l := len(stack); l != 0 {
				v = stack[l-1]
				stack = stack[:l-1]
			} else {
				v = val(-1)
			}

			nd.in[k] = v
			s.consumer[v] = i
		}

		for k := 0; k < e.Out; k++ {
			v := val(i)

			nd.out = append(nd.out, v)
			stack = append(stack, v)
		}
	}
}

// mark walks backward so every consumer is decided before its producers.
func (s *segment) mark() {
	for i := len(s.code) - 1; i >= 0; i-- {
		x := s.code[i]
		nd := &s.nodes[i]

		if !x.Op.Pure() || len(nd.out) == 0 {
			continue
		}

		ndead, last := 0, -1

		for k, v := range nd.out {
			if s.dead(v) {
				ndead++
				last = k
			}
		}

		switch {
		case ndead == len(nd.out):
			s.killed.Set(i)
		case ndead == 1 && x.Op == ir.Dup:
			nd.collapse = last
		case ndead == 1 && x.Op == ir.Over && last == 2:
			nd.collapse = last
		}
	}
}

// dead values are sunk by a drop or by a removed instruction.
func (s *segment) dead(v int) bool {
	c := s.consumer[v]

	return c >= 0 && (s.code[c].Op == ir.Drop || s.killed.IsSet(c))
}

// vanished values are never pushed after the rewrite.
func (s *segment) vanished(v int) bool {
	p := s.producer[v]
	if p < 0 {
		return false
	}

	nd := &s.nodes[p]

	return s.killed.IsSet(p) || nd.collapse >= 0 && nd.out[nd.collapse] == v
}
