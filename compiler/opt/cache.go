package opt

import (
	"context"

	"github.com/slowlang/fifth/compiler/ir"
)

const (
	DefaultCacheSize = 3
	MaxCacheSize     = 8
)

// Cache keeps the top stack items in registers.
// Shuffles on cached items become cached ops tagged with the current cached depth.
// The cache is flushed before control instructions. Falling off the end keeps it.
type Cache struct {
	Size int
}

func (c Cache) Name() string { return "cache" }

func (c Cache) Run(ctx context.Context, p *ir.Program) (*ir.Program, Stats, error) {
	st := Stats{}
	n := c.window()

	q := rewrite(p, func(_ string, code []ir.Inst) []ir.Inst {
		return cacheCode(code, n, st)
	})

	return q, st, nil
}

func (c Cache) window() int {
	switch {
	case c.Size <= 0:
		return DefaultCacheSize
	case c.Size > MaxCacheSize:
		return MaxCacheSize
	}

	return c.Size
}

func cacheCode(code []ir.Inst, window int, st Stats) []ir.Inst {
	out := make([]ir.Inst, 0, len(code))
	depth := 0

	flushAll := func() {
		if depth != 0 {
			out = append(out, ir.N(ir.Flush, 0))
			st["flushes"]++
		}

		depth = 0
	}

	for _, x := range uncache(code) {
		if x.Op.Control() {
			flushAll()
			out = append(out, x)

			continue
		}

		e := x.Op.Effect()

		switch x.Op {
		case ir.Dup, ir.Swap, ir.Over:
			if depth >= e.In {
				out = append(out, ir.Inst{Op: cached(x.Op), N: int64(depth), Ty: x.Ty})
				st["cached"]++

				break
			}

			out = append(out, x)
		default:
			out = append(out, x)
		}

		depth = max(depth-e.In, 0) + e.Out

		if depth > window {
			out = append(out, ir.N(ir.Flush, int64(depth-window)))
			st["flushes"]++
			depth = window
		}
	}

	return out
}

// uncache strips cache ops so the pass can run again on its own output.
func uncache(code []ir.Inst) []ir.Inst {
	out := make([]ir.Inst, 0, len(code))

	for _, x := range code {
		switch x.Op {
		case ir.Flush:
			continue
		case ir.CachedDup, ir.CachedSwap, ir.CachedOver:
			x.Op = x.Op.Uncached()
			x.N = 0
		}

		out = append(out, x)
	}

	return out
}

func cached(op ir.Op) ir.Op {
	switch op {
	case ir.Dup:
		return ir.CachedDup
	case ir.Swap:
		return ir.CachedSwap
	case ir.Over:
		return ir.CachedOver
	}

	return op
}

// OptimalCacheDepth returns the largest number of items simultaneously
// on the stack within straight-line code, capped by limit and MaxCacheSize.
func OptimalCacheDepth(code []ir.Inst, limit int) int {
	depth, top := 0, 0

	for _, x := range uncache(code) {
		if x.Op.Control() {
			depth = 0
			continue
		}

		e := x.Op.Effect()
		depth = max(depth-e.In, 0) + e.Out
		top = max(top, depth)
	}

	return min(top, limit, MaxCacheSize)
}
