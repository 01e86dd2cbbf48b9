package main

import (
	"context"
	"fmt"
	"os"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/fifth/compiler"
	"github.com/slowlang/fifth/compiler/ast"
	"github.com/slowlang/fifth/compiler/format"
	"github.com/slowlang/fifth/compiler/opt"
	"github.com/slowlang/fifth/compiler/ssa"
	"github.com/slowlang/fifth/compiler/tp"
)

func main() {
	flags := []*cli.Flag{
		cli.NewFlag("level,O", "", "optimization level: 0-3 or none, basic, standard, aggressive"),
		cli.NewFlag("cache", 0, "stack cache size"),
		cli.NewFlag("max-iter", 0, "pipeline iteration limit"),
		cli.NewFlag("inline-depth", 0, "nested inlining depth"),
	}

	checkCmd := &cli.Command{
		Name:        "check",
		Description: "parse and infer stack effects",
		Action:      checkAct,
		Args:        cli.Args{},
	}

	fmtCmd := &cli.Command{
		Name:        "fmt",
		Description: "print definitions in canonical form",
		Action:      fmtAct,
		Args:        cli.Args{},
	}

	optCmd := &cli.Command{
		Name:        "opt",
		Description: "print optimized flat code",
		Action:      optAct,
		Args:        cli.Args{},
		Flags:       flags,
	}

	ssaCmd := &cli.Command{
		Name:        "ssa",
		Description: "print ssa of optimized code",
		Action:      ssaAct,
		Args:        cli.Args{},
		Flags:       flags,
	}

	buildCmd := &cli.Command{
		Name:        "build",
		Description: "generate threaded code or assembly",
		Action:      buildAct,
		Args:        cli.Args{},
		Flags: append([]*cli.Flag{
			cli.NewFlag("backend,b", "", "backend: arm64, threaded"),
			cli.NewFlag("output,o", "", "output file, stdout if empty"),
		}, flags...),
	}

	app := &cli.Command{
		Name:        "fifth",
		Description: "fifth is an optimizing compiler for stack words",
		Commands: []*cli.Command{
			checkCmd,
			fmtCmd,
			optCmd,
			ssaCmd,
			buildCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func checkAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	for _, a := range c.Args {
		f, err := parseFile(a)
		if err != nil {
			return err
		}

		env, err := tp.Infer(ctx, f)
		if err != nil {
			return errors.Wrap(err, "check %v", a)
		}

		for _, d := range f.Words {
			fmt.Printf("%v %v\n", d.Name, env.Words[d.Name])
		}

		fmt.Printf("main %v\n", env.Main)
	}

	return nil
}

func fmtAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	for _, a := range c.Args {
		f, err := parseFile(a)
		if err != nil {
			return err
		}

		b, err := format.Format(ctx, nil, f)
		if err != nil {
			return errors.Wrap(err, "format %v", a)
		}

		_, err = os.Stdout.Write(b)
		if err != nil {
			return err
		}
	}

	return nil
}

func optAct(c *cli.Command) (err error) {
	return compileEach(c, false, func(r *compiler.Result) error {
		fmt.Printf("%v", r.Program)

		for _, run := range r.Report.Runs {
			if run.Err != nil {
				fmt.Fprintf(os.Stderr, "pass %v skipped: %v\n", run.Pass, run.Err)
			}
		}

		fmt.Fprintf(os.Stderr, "%v after %d iterations, %d -> %d insts\n", r.Report.State, r.Report.Iterations, r.Lowered.Len(), r.Program.Len())

		return nil
	})
}

func ssaAct(c *cli.Command) (err error) {
	return compileEach(c, false, func(r *compiler.Result) error {
		for i, f := range r.Funcs {
			if i != 0 {
				fmt.Printf("\n")
			}

			fmt.Printf("%s", ssa.AppendFunc(nil, f))
		}

		return nil
	})
}

func buildAct(c *cli.Command) (err error) {
	return compileEach(c, true, func(r *compiler.Result) error {
		out := c.String("output")
		if out == "" {
			_, err := os.Stdout.Write(r.Output)
			return err
		}

		return os.WriteFile(out, r.Output, 0o644)
	})
}

func compileEach(c *cli.Command, build bool, f func(r *compiler.Result) error) error {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	cfg, err := config(c, build)
	if err != nil {
		return err
	}

	for _, a := range c.Args {
		r, err := compiler.CompileFile(ctx, a, cfg)
		if err != nil {
			return errors.Wrap(err, "compile %v", a)
		}

		err = f(r)
		if err != nil {
			return errors.Wrap(err, "%v", a)
		}
	}

	return nil
}

// config applies flags over the environment.
// Only build runs a backend.
func config(c *cli.Command, build bool) (cfg compiler.Config, err error) {
	cfg, err = compiler.ConfigFromEnv()
	if err != nil {
		return cfg, errors.Wrap(err, "environment")
	}

	if s := c.String("level"); s != "" {
		cfg.Level, err = opt.ParseLevel(s)
		if err != nil {
			return cfg, err
		}
	}

	if v := c.Int("cache"); v != 0 {
		cfg.CacheSize = v
	}

	if v := c.Int("max-iter"); v != 0 {
		cfg.MaxIter = v
	}

	if v := c.Int("inline-depth"); v != 0 {
		cfg.InlineDepth = v
	}

	if !build {
		cfg.Backend = ""
	} else if s := c.String("backend"); s != "" {
		cfg.Backend = s
	}

	return cfg, cfg.Check()
}

func parseFile(name string) (*ast.File, error) {
	text, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	return ast.Parse(name, text)
}
