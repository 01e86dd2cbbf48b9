package opt

import (
	"context"
	"fmt"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/fifth/compiler/errs"
	"github.com/slowlang/fifth/compiler/ir"
)

const DefaultMaxIterations = 10

type (
	// Pipeline runs passes over a program, once or until it stops changing.
	Pipeline struct {
		Level         Level
		MaxIterations int

		Passes []Pass
	}

	State int

	// Report describes a pipeline run.
	Report struct {
		State      State
		Iterations int
		Runs       []PassRun
	}

	// PassRun is the result of one pass application.
	PassRun struct {
		Iter   int
		Pass   string
		Stats  Stats
		Before int
		After  int
		Err    error // the pass was skipped
	}
)

const (
	Initial State = iota
	Transformed
	Fixpoint
	IterationLimit
)

// New creates a pipeline with the passes of the level.
func New(l Level, cacheSize, inlineDepth int) *Pipeline {
	return &Pipeline{
		Level:         l,
		MaxIterations: DefaultMaxIterations,
		Passes:        Passes(l, cacheSize, inlineDepth),
	}
}

// Passes returns the ordered pass list of the level.
func Passes(l Level, cacheSize, inlineDepth int) []Pass {
	switch l {
	case Basic:
		return []Pass{Super{}, Fold{}, DCE{}}
	case Standard:
		return []Pass{Inline{Level: l}, DeadWords{}, Super{}, Fold{}, DCE{}, Cache{Size: cacheSize}}
	case Aggressive:
		return []Pass{Inline{Level: l, Depth: inlineDepth}, Specialize{}, DeadWords{}, Super{}, Fold{}, DCE{}, Cache{Size: cacheSize}}
	}

	return nil
}

// Optimize runs every pass once.
func (pl *Pipeline) Optimize(ctx context.Context, p *ir.Program) (_ *ir.Program, r *Report, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "optimize", "level", pl.Level)
	defer tr.Finish("err", &err)

	r = &Report{}

	err = p.Verify()
	if err != nil {
		return nil, r, errors.Wrap(err, "input")
	}

	q, err := pl.round(ctx, p, r)
	if err != nil {
		return nil, r, err
	}

	r.Iterations = 1
	r.State = Transformed

	if ir.Stable(p, q) {
		r.State = Fixpoint
	}

	return pl.finish(q, r)
}

// OptimizeUntilFixpoint repeats rounds until one changes neither the instruction count
// nor the instruction multiset, or MaxIterations is reached.
func (pl *Pipeline) OptimizeUntilFixpoint(ctx context.Context, p *ir.Program) (_ *ir.Program, r *Report, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "optimize until fixpoint", "level", pl.Level)
	defer tr.Finish("err", &err)

	r = &Report{}

	err = p.Verify()
	if err != nil {
		return nil, r, errors.Wrap(err, "input")
	}

	limit := pl.MaxIterations
	if limit <= 0 {
		limit = DefaultMaxIterations
	}

	cur := p

	for r.Iterations < limit {
		r.Iterations++

		next, err := pl.round(ctx, cur, r)
		if err != nil {
			return nil, r, err
		}

		stable := ir.Stable(cur, next)
		cur = next

		tr.V("pipeline").Printw("round", "iter", r.Iterations, "insts", cur.Len(), "stable", stable)

		if stable {
			r.State = Fixpoint
			return pl.finish(cur, r)
		}

		r.State = Transformed
	}

	r.State = IterationLimit

	return pl.finish(cur, r)
}

func (pl *Pipeline) finish(p *ir.Program, r *Report) (*ir.Program, *Report, error) {
	err := p.Update()
	if err != nil {
		return nil, r, errs.NewInternal(err, "update effects")
	}

	return p, r, nil
}

// round applies each pass once. A failed pass is skipped unless the error is an invalid ssa.
func (pl *Pipeline) round(ctx context.Context, p *ir.Program, r *Report) (*ir.Program, error) {
	for _, pass := range pl.Passes {
		q, st, err := runPass(ctx, pass, p)

		run := PassRun{
			Iter:   r.Iterations,
			Pass:   pass.Name(),
			Stats:  st,
			Before: p.Len(),
			After:  p.Len(),
			Err:    err,
		}

		if err == nil {
			run.After = q.Len()
		}

		r.Runs = append(r.Runs, run)

		if errs.IsInvalid(err) {
			return nil, errors.Wrap(err, "pass %v", pass.Name())
		}

		if err != nil {
			tlog.SpanFromContext(ctx).Printw("pass skipped", "pass", pass.Name(), "err", err)
			continue
		}

		p = q
	}

	return p, nil
}

func runPass(ctx context.Context, pass Pass, p *ir.Program) (q *ir.Program, st Stats, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "pass", "pass", pass.Name(), "insts", p.Len())
	defer tr.Finish("err", &err)

	defer func() {
		perr := recover()
		if perr == nil {
			return
		}

		q, st, err = nil, nil, errs.Recovered(perr)
	}()

	q, st, err = pass.Run(ctx, p.Clone())
	if err != nil {
		return nil, st, err
	}

	if q == nil {
		return nil, st, errs.NewInternal(nil, "pass %v returned no program", pass.Name())
	}

	err = q.Verify()
	if err != nil {
		return nil, st, errs.NewInternal(err, "pass %v broke the program", pass.Name())
	}

	tr.V("pass").Printw("done", "insts", q.Len(), "stats", st)

	if tr.If("dump_ir") {
		tr.Printw("ir", "pass", pass.Name(), "text", q.String())
	}

	return q, st, nil
}

func (s State) String() string {
	switch s {
	case Initial:
		return "initial"
	case Transformed:
		return "transformed"
	case Fixpoint:
		return "fixpoint"
	case IterationLimit:
		return "iteration limit"
	}

	return fmt.Sprintf("State(%d)", int(s))
}

// Totals sums statistics by pass.
func (r *Report) Totals() map[string]Stats {
	m := map[string]Stats{}

	for _, run := range r.Runs {
		if m[run.Pass] == nil {
			m[run.Pass] = Stats{}
		}

		m[run.Pass].Add(run.Stats)
	}

	return m
}
