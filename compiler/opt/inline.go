package opt

import (
	"context"

	"nikand.dev/go/heap"
	"tlog.app/go/tlog"

	"github.com/slowlang/fifth/compiler/ir"
)

const DefaultInlineDepth = 3

type (
	// Inline replaces calls to small words with their bodies.
	Inline struct {
		Level Level
		Depth int // nested expansion depth at Aggressive, DefaultInlineDepth if zero
	}

	site struct {
		unit  string
		pos   int
		cost  int
		order int
	}

	sitekey struct {
		unit string
		pos  int
	}

	inliner struct {
		p     *ir.Program
		label int64

		threshold int
		depth     int

		st    Stats
		words map[string]struct{}
	}
)

func (Inline) Name() string { return "inline" }

// Threshold is the largest body size inlined at the level.
func (l Level) Threshold() int {
	switch l {
	case Basic:
		return 3
	case Standard:
		return 10
	case Aggressive:
		return 25
	}

	return 0
}

// SiteCap is the most call sites inlined in one run at the level.
func (l Level) SiteCap() int {
	switch l {
	case Basic, Standard:
		return 5
	case Aggressive:
		return 20
	}

	return 0
}

func (in Inline) Run(ctx context.Context, p *ir.Program) (q *ir.Program, st Stats, err error) {
	tr := tlog.SpanFromContext(ctx)

	st = Stats{}

	l := &inliner{
		p:         p,
		label:     p.NextLabel(),
		threshold: in.Level.Threshold(),
		st:        st,
		words:     map[string]struct{}{},
	}

	if in.Level == Aggressive {
		l.depth = in.Depth
		if l.depth <= 0 {
			l.depth = DefaultInlineDepth
		}
	}

	sites := heap.Heap[site]{Less: sitesLess}
	order := 0

	for _, u := range p.Units() {
		for i, x := range p.Code(u) {
			if x.Op != ir.Call || !l.eligible(x.Name) {
				continue
			}

			sites.Push(site{unit: u, pos: i, cost: len(p.Words[x.Name].Code), order: order})
			order++
		}
	}

	chosen := map[sitekey]struct{}{}

	for n := in.Level.SiteCap(); sites.Len() != 0 && len(chosen) < n; {
		s := sites.Pop()
		chosen[sitekey{s.unit, s.pos}] = struct{}{}
	}

	if tr.If("dump_inline") {
		tr.Printw("inline sites", "candidates", order, "chosen", len(chosen))
	}

	q = rewrite(p, func(u string, code []ir.Inst) []ir.Inst {
		out := make([]ir.Inst, 0, len(code))

		for i, x := range code {
			if _, ok := chosen[sitekey{u, i}]; !ok {
				out = append(out, x)
				continue
			}

			out = l.expand(out, x.Name, 0)
		}

		return out
	})

	st["words"] = len(l.words)

	return q, st, nil
}

func sitesLess(d []site, i, j int) bool {
	if d[i].cost != d[j].cost {
		return d[i].cost < d[j].cost
	}

	return d[i].order < d[j].order
}

func (l *inliner) eligible(name string) bool {
	w := l.p.Words[name]
	if w == nil || recursive(w) {
		return false
	}

	return w.Inline || len(w.Code) <= l.threshold
}

// expand appends the body of word name with fresh labels.
// Returns in the middle of the body become branches past its end.
func (l *inliner) expand(out []ir.Inst, name string, depth int) []ir.Inst {
	w := l.p.Words[name]

	l.st["sites"]++
	l.words[name] = struct{}{}

	labels := map[int64]int64{}

	relabel := func(n int64) int64 {
		m, ok := labels[n]
		if !ok {
			m = l.label
			l.label++
			labels[n] = m
		}

		return m
	}

	code := w.Code
	if k := len(code); k != 0 && code[k-1].Op == ir.Return {
		code = code[:k-1]
	}

	end := int64(-1)

	for _, x := range code {
		switch {
		case x.Op == ir.Label, x.Op.Jump():
			x.N = relabel(x.N)
		case x.Op == ir.Return:
			if end < 0 {
				end = l.label
				l.label++
			}

			x = ir.N(ir.Branch, end)
		case x.Op == ir.Call && depth+1 < l.depth && x.Name != name && l.eligible(x.Name):
			out = l.expand(out, x.Name, depth+1)
			continue
		}

		out = append(out, x)
	}

	if end >= 0 {
		out = append(out, ir.N(ir.Label, end))
	}

	return out
}

func recursive(w *ir.Word) bool {
	for _, x := range w.Code {
		if x.Op == ir.Call && x.Name == w.Name {
			return true
		}
	}

	return false
}
