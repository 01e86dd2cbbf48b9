package ir

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/fifth/compiler/ast"
	"github.com/slowlang/fifth/compiler/tp"
)

type lowerer struct {
	p     *Program
	env   *tp.Env
	word  string
	label int64
}

// Lower translates inferred definitions into the flat form.
// Structured control flow becomes labels and conditional branches.
func Lower(ctx context.Context, f *ast.File, env *tp.Env) (p *Program, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "lower", "file", f.Name)
	defer tr.Finish("err", &err)

	l := &lowerer{p: NewProgram(), env: env}

	for _, d := range f.Words {
		te, ok := env.Words[d.Name]
		if !ok {
			return nil, errors.New("word %v: no inferred effect", d.Name)
		}

		w := &Word{
			Name:   d.Name,
			Effect: Effect{In: len(te.In), Out: len(te.Out)},
			Type:   te,
			Inline: d.Inline,
		}

		l.p.Words[d.Name] = w
		l.word = d.Name

		w.Code, err = l.body(nil, d.Body)
		if err != nil {
			return nil, errors.Wrap(err, "word %v", d.Name)
		}
	}

	l.word = ""

	l.p.Main, err = l.body(nil, f.Main)
	if err != nil {
		return nil, errors.Wrap(err, "main")
	}

	err = l.p.Verify()
	if err != nil {
		return nil, errors.Wrap(err, "verify")
	}

	if tr.If("dump_ir") {
		tr.Printw("lowered", "ir", l.p.String())
	}

	return l.p, nil
}

func (l *lowerer) newLabel() int64 {
	l.label++
	return l.label
}

func (l *lowerer) body(b []Inst, body []ast.Node) (_ []Inst, err error) {
	for _, x := range body {
		b, err = l.node(b, x)
		if err != nil {
			p := x.Position()
			return nil, errors.Wrap(err, "%d:%d", p.Line, p.Col)
		}
	}

	return b, nil
}

func (l *lowerer) node(b []Inst, x ast.Node) (_ []Inst, err error) {
	switch x := x.(type) {
	case *ast.Int:
		return append(b, N(Lit, x.Value)), nil
	case *ast.Float:
		return append(b, F(x.Value)), nil
	case *ast.Word:
		return l.word1(b, x.Name)
	case *ast.If:
		els, end := l.newLabel(), l.newLabel()

		if len(x.Else) == 0 {
			els = end
		}

		b = append(b, N(BranchIfNot, els))

		b, err = l.body(b, x.Then)
		if err != nil {
			return nil, errors.Wrap(err, "then")
		}

		if len(x.Else) != 0 {
			b = append(b, N(Branch, end), N(Label, els))

			b, err = l.body(b, x.Else)
			if err != nil {
				return nil, errors.Wrap(err, "else")
			}
		}

		return append(b, N(Label, end)), nil
	case *ast.Until:
		top := l.newLabel()

		b = append(b, N(Label, top))

		b, err = l.body(b, x.Body)
		if err != nil {
			return nil, errors.Wrap(err, "begin")
		}

		return append(b, N(BranchIfNot, top)), nil
	case *ast.While:
		top, end := l.newLabel(), l.newLabel()

		b = append(b, N(Label, top))

		b, err = l.body(b, x.Cond)
		if err != nil {
			return nil, errors.Wrap(err, "begin")
		}

		b = append(b, N(BranchIfNot, end))

		b, err = l.body(b, x.Body)
		if err != nil {
			return nil, errors.Wrap(err, "while")
		}

		return append(b, N(Branch, top), N(Label, end)), nil
	default:
		return nil, errors.New("unsupported node: %T", x)
	}
}

func (l *lowerer) word1(b []Inst, name string) ([]Inst, error) {
	if op, ok := Primitive(name); ok {
		return append(b, I(op)), nil
	}

	if name == "recurse" && l.word != "" {
		name = l.word
	}

	if l.p.Words[name] == nil {
		return nil, errors.New("unknown word: %v", name)
	}

	return append(b, S(Call, name)), nil
}
