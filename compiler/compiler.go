package compiler

import (
	"context"
	"os"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/fifth/compiler/ast"
	"github.com/slowlang/fifth/compiler/back"
	"github.com/slowlang/fifth/compiler/ir"
	"github.com/slowlang/fifth/compiler/opt"
	"github.com/slowlang/fifth/compiler/ssa"
	"github.com/slowlang/fifth/compiler/tp"
)

type Result struct {
	File    *ast.File
	Types   *tp.Env
	Lowered *ir.Program // before optimization
	Program *ir.Program
	Report  *opt.Report
	Funcs   []*ssa.Func

	Output []byte
}

func CompileFile(ctx context.Context, name string, c Config) (*Result, error) {
	text, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	tlog.SpanFromContext(ctx).Printw("read file", "size", len(text), "name", name)

	return Compile(ctx, name, text, c)
}

// Compile runs the whole pipeline on a definitions file.
// Stages are parse, infer, lower, optimize, ssa and the backend.
func Compile(ctx context.Context, name string, text []byte, c Config) (r *Result, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile", "name", name, "level", c.Level)
	defer tr.Finish("err", &err)

	err = c.Check()
	if err != nil {
		return nil, errors.Wrap(err, "config")
	}

	r = &Result{}

	r.File, err = ast.Parse(name, text)
	if err != nil {
		return nil, errors.Wrap(err, "parse")
	}

	r.Types, err = tp.Infer(ctx, r.File)
	if err != nil {
		return nil, errors.Wrap(err, "infer")
	}

	r.Lowered, err = ir.Lower(ctx, r.File, r.Types)
	if err != nil {
		return nil, errors.Wrap(err, "lower")
	}

	pl := opt.New(c.Level, c.CacheSize, c.InlineDepth)
	pl.MaxIterations = c.MaxIter

	r.Program, r.Report, err = pl.OptimizeUntilFixpoint(ctx, r.Lowered)
	if err != nil {
		return nil, errors.Wrap(err, "optimize")
	}

	tr.Printw("optimized", "state", r.Report.State, "iterations", r.Report.Iterations, "before", r.Lowered.Len(), "after", r.Program.Len())

	r.Funcs, err = ssa.BuildAll(ctx, r.Program)
	if err != nil {
		return nil, errors.Wrap(err, "ssa")
	}

	for _, f := range r.Funcs {
		err = ssa.Validate(f)
		if err != nil {
			return nil, errors.Wrap(err, "validate")
		}

		if n := ssa.DeadRegs(f); n != 0 {
			tr.V("ssa").Printw("dead regs", "func", f.Name, "removed", n)

			err = ssa.Validate(f)
			if err != nil {
				return nil, errors.Wrap(err, "validate after dead regs")
			}
		}
	}

	if c.Backend == "" {
		return r, nil
	}

	b, err := back.New(c.Backend)
	if err != nil {
		return nil, err
	}

	r.Output, err = b.Generate(ctx, r.Program)
	if err != nil {
		return nil, errors.Wrap(err, "generate %v", c.Backend)
	}

	return r, nil
}
