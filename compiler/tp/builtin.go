package tp

import (
	"strings"

	"tlog.app/go/errors"
)

var builtins = map[string]string{
	"dup":  "( a -- a a )",
	"drop": "( a -- )",
	"swap": "( a b -- b a )",
	"over": "( a b -- a b a )",
	"rot":  "( a b c -- b c a )",
	"nip":  "( a b -- b )",
	"tuck": "( a b -- b a b )",

	"+":      "( a a -- a )",
	"-":      "( a a -- a )",
	"*":      "( a a -- a )",
	"/":      "( a a -- a )",
	"mod":    "( int int -- int )",
	"negate": "( a -- a )",
	"abs":    "( a -- a )",
	"1+":     "( a -- a )",
	"1-":     "( a -- a )",
	"2*":     "( a -- a )",
	"2/":     "( a -- a )",

	"and":    "( int int -- int )",
	"or":     "( int int -- int )",
	"xor":    "( int int -- int )",
	"invert": "( int -- int )",
	"lshift": "( int int -- int )",
	"rshift": "( int int -- int )",

	"=":  "( a a -- int )",
	"<>": "( a a -- int )",
	"<":  "( a a -- int )",
	"<=": "( a a -- int )",
	">":  "( a a -- int )",
	">=": "( a a -- int )",
	"0=": "( a -- int )",
	"0<": "( a -- int )",
	"0>": "( a -- int )",

	"@":  "( addr -- int )",
	"!":  "( int addr -- )",
	"c@": "( addr -- char )",
	"c!": "( char addr -- )",

	">r": "( a -- )",
	"r>": "( -- a )",
	"r@": "( -- a )",

	"exit": "( -- )",
}

var builtinEffects = func() map[string]Effect {
	m := make(map[string]Effect, len(builtins))

	for name, s := range builtins {
		e, err := ParseEffect(s)
		if err != nil {
			panic(errors.Wrap(err, "builtin %v", name))
		}

		m[name] = e
	}

	return m
}()

// Builtin returns the effect of a primitive word.
func Builtin(name string) (Effect, bool) {
	e, ok := builtinEffects[name]
	return e, ok
}

// ParseEffect parses "( a b:int -- c:sq(a) )".
// Untyped names and named type variables with the same name share a variable.
func ParseEffect(s string) (e Effect, err error) {
	s = strings.TrimSpace(s)

	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		return Effect{}, errors.New("effect must be in parentheses: %q", s)
	}

	fs := strings.Fields(s[1 : len(s)-1])

	p := effectParser{vars: map[string]Var{}}
	sep := false

	e.In = []Type{}
	e.Out = []Type{}

	for _, f := range fs {
		if f == "--" {
			if sep {
				return Effect{}, errors.New("double separator: %q", s)
			}

			sep = true

			continue
		}

		t, err := p.slot(f)
		if err != nil {
			return Effect{}, errors.Wrap(err, "%q", f)
		}

		if sep {
			e.Out = append(e.Out, t)
		} else {
			e.In = append(e.In, t)
		}
	}

	if !sep {
		return Effect{}, errors.New("no separator: %q", s)
	}

	return Normalize(e), nil
}

type effectParser struct {
	vars map[string]Var
}

func (p *effectParser) slot(f string) (Type, error) {
	name, typ, ok := strings.Cut(f, ":")
	if !ok {
		return p.typ(name)
	}

	if name == "" {
		return nil, errors.New("empty name")
	}

	return p.typ(typ)
}

func (p *effectParser) typ(s string) (Type, error) {
	if s == "" {
		return nil, errors.New("empty type")
	}

	if op, arg, ok := strings.Cut(s, "("); ok {
		if !strings.HasSuffix(arg, ")") {
			return nil, errors.New("unbalanced parentheses")
		}

		base, err := p.typ(arg[:len(arg)-1])
		if err != nil {
			return nil, err
		}

		for i, n := range opNames {
			if n == op {
				return Compound{Op: CompoundOp(i), Base: base}, nil
			}
		}

		return nil, errors.New("unknown type operator: %v", op)
	}

	for i, n := range kindNames {
		if i != int(Unknown) && n == s {
			return Kind(i), nil
		}
	}

	v, ok := p.vars[s]
	if !ok {
		v = Var{ID: len(p.vars), Name: s}
		p.vars[s] = v
	}

	return v, nil
}
