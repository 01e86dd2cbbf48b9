package tp

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/fifth/compiler/ast"
	"github.com/slowlang/fifth/compiler/errs"
)

type (
	// Env holds inferred effects of the words defined so far.
	Env struct {
		Words map[string]Effect
		Main  Effect

		c Composer
	}

	inferCtx struct {
		word     string
		declared *Effect
	}
)

func NewEnv() *Env {
	return &Env{Words: map[string]Effect{}}
}

// Infer infers effects of all words in order, then of the main sequence.
// Words can only reference words defined before them, and themselves.
func Infer(ctx context.Context, f *ast.File) (env *Env, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "infer", "file", f.Name, "words", len(f.Words))
	defer tr.Finish("err", &err)

	env = NewEnv()

	for _, d := range f.Words {
		e, err := env.InferDef(ctx, d)
		if err != nil {
			return nil, errors.Wrap(err, "word %v", d.Name)
		}

		tr.V("infer").Printw("word", "name", d.Name, "effect", e)
	}

	env.Main, err = env.body(inferCtx{word: "main"}, f.Main)
	if err != nil {
		return nil, errors.Wrap(err, "main")
	}

	if len(env.Main.In) != 0 {
		return nil, &errs.Underflow{Word: "main", Need: len(env.Main.In), Have: 0}
	}

	return env, nil
}

// InferDef infers the effect of d, checks it against the declared effect and records it.
func (env *Env) InferDef(ctx context.Context, d *ast.Def) (e Effect, err error) {
	if _, ok := env.Words[d.Name]; ok {
		return Effect{}, errors.New("word redefined")
	}

	if _, ok := Builtin(d.Name); ok {
		return Effect{}, errors.New("word shadows a primitive")
	}

	ic := inferCtx{word: d.Name}

	if d.Effect != "" {
		decl, err := ParseEffect(d.Effect)
		if err != nil {
			return Effect{}, errors.Wrap(err, "declared effect")
		}

		ic.declared = &decl
	}

	e, err = env.body(ic, d.Body)
	if err != nil {
		return Effect{}, err
	}

	if ic.declared != nil {
		e, err = env.check(d.Name, *ic.declared, e)
		if err != nil {
			return Effect{}, err
		}
	}

	env.Words[d.Name] = e

	return e, nil
}

// check returns the declared effect refined by the inferred one.
func (env *Env) check(word string, decl, inf Effect) (Effect, error) {
	if len(inf.In) > len(decl.In) {
		return Effect{}, &errs.Underflow{Word: word, Need: len(inf.In), Have: len(decl.In)}
	}

	inf = env.c.Lift(inf, len(decl.In)-len(inf.In))

	if len(inf.Out) != len(decl.Out) {
		return Effect{}, &errs.EffectMismatch{Word: word, Declared: decl.String(), Inferred: inf.String()}
	}

	d := env.c.Instantiate(decl)
	i := env.c.Instantiate(inf)

	u := NewUnifier()

	for k := range d.In {
		if err := u.Unify(d.In[k], i.In[k]); err != nil {
			return Effect{}, errors.Wrap(err, "input %d", k)
		}
	}

	for k := range d.Out {
		if err := u.Unify(d.Out[k], i.Out[k]); err != nil {
			return Effect{}, errors.Wrap(err, "output %d", k)
		}
	}

	return Normalize(u.ResolveEffect(d)), nil
}

func (env *Env) body(ic inferCtx, body []ast.Node) (acc Effect, err error) {
	for _, x := range body {
		e, err := env.node(ic, x)
		if err != nil {
			p := x.Position()
			return Effect{}, errors.Wrap(err, "%d:%d", p.Line, p.Col)
		}

		acc, err = env.c.Compose(acc, e)
		if err != nil {
			p := x.Position()
			return Effect{}, errors.Wrap(err, "%d:%d", p.Line, p.Col)
		}
	}

	return Normalize(acc), nil
}

func (env *Env) node(ic inferCtx, x ast.Node) (Effect, error) {
	switch x := x.(type) {
	case *ast.Int:
		return Effect{Out: []Type{Int}}, nil
	case *ast.Float:
		return Effect{Out: []Type{Float}}, nil
	case *ast.Word:
		return env.word(ic, x.Name)
	case *ast.If:
		t, err := env.body(ic, x.Then)
		if err != nil {
			return Effect{}, errors.Wrap(err, "then")
		}

		e, err := env.body(ic, x.Else)
		if err != nil {
			return Effect{}, errors.Wrap(err, "else")
		}

		m, err := env.c.Merge(t, e)
		if err != nil {
			return Effect{}, withWord(err, ic.word)
		}

		return env.c.Compose(Effect{In: []Type{env.c.Fresh()}}, m)
	case *ast.Until:
		b, err := env.body(ic, x.Body)
		if err != nil {
			return Effect{}, errors.Wrap(err, "begin")
		}

		b, err = env.c.Compose(b, Effect{In: []Type{env.c.Fresh()}})
		if err != nil {
			return Effect{}, err
		}

		b, err = env.c.Balance(b)

		return b, withWord(err, ic.word)
	case *ast.While:
		c, err := env.body(ic, x.Cond)
		if err != nil {
			return Effect{}, errors.Wrap(err, "begin")
		}

		c, err = env.c.Compose(c, Effect{In: []Type{env.c.Fresh()}})
		if err != nil {
			return Effect{}, err
		}

		b, err := env.body(ic, x.Body)
		if err != nil {
			return Effect{}, errors.Wrap(err, "while")
		}

		l, err := env.c.Compose(c, b)
		if err != nil {
			return Effect{}, err
		}

		l, err = env.c.Balance(l)
		if err != nil {
			return Effect{}, withWord(err, ic.word)
		}

		// any number of iterations followed by the final test
		return env.c.Compose(l, c)
	default:
		return Effect{}, errors.New("unsupported node: %T", x)
	}
}

func (env *Env) word(ic inferCtx, name string) (Effect, error) {
	if e, ok := Builtin(name); ok {
		return e, nil
	}

	if name == "recurse" || name == ic.word {
		if ic.declared == nil {
			return Effect{}, errors.New("recursive word %v needs a declared effect", ic.word)
		}

		return *ic.declared, nil
	}

	if e, ok := env.Words[name]; ok {
		return e, nil
	}

	return Effect{}, errors.New("unknown word: %v", name)
}

func withWord(err error, word string) error {
	var dm *errs.DepthMismatch
	if errors.As(err, &dm) && dm.Word == "" {
		dm.Word = word
	}

	return err
}
