package format

import (
	"context"
	"fmt"
	"strconv"

	"tlog.app/go/errors"

	"github.com/slowlang/fifth/compiler/ast"
)

// Format prints definitions as Forth-like source text.
func Format(ctx context.Context, b []byte, x any) ([]byte, error) {
	return format(ctx, b, x, 0)
}

func format(ctx context.Context, b []byte, x any, d int) ([]byte, error) {
	switch x := x.(type) {
	case *ast.File:
		return formatFile(ctx, b, x, d)
	case *ast.Def:
		return formatDef(ctx, b, x, d)
	case []ast.Node:
		return formatBody(ctx, b, x, d)
	default:
		return nil, errors.New("unsupported type: %T", x)
	}
}

func formatFile(ctx context.Context, b []byte, x *ast.File, d int) (_ []byte, err error) {
	for i, f := range x.Words {
		if i != 0 {
			b = append(b, '\n')
		}

		b, err = formatDef(ctx, b, f, d)
		if err != nil {
			return nil, errors.Wrap(err, "word %v", f.Name)
		}
	}

	if len(x.Main) == 0 {
		return b, nil
	}

	if len(x.Words) != 0 {
		b = append(b, '\n')
	}

	b, err = formatBody(ctx, b, x.Main, d)
	if err != nil {
		return nil, errors.Wrap(err, "main")
	}

	return b, nil
}

func formatDef(ctx context.Context, b []byte, x *ast.Def, d int) (_ []byte, err error) {
	b = app(b, d, ": %v", x.Name)

	if x.Effect != "" {
		b = app(b, 0, " %v", x.Effect)
	}

	b = append(b, '\n')

	b, err = formatBody(ctx, b, x.Body, d+1)
	if err != nil {
		return nil, errors.Wrap(err, "body")
	}

	b = app(b, d, ";")

	if x.Inline {
		b = append(b, " inline"...)
	}

	b = append(b, '\n')

	return b, nil
}

// formatBody puts straight-line code on one line and
// control structures on their own lines.
func formatBody(ctx context.Context, b []byte, body []ast.Node, d int) (_ []byte, err error) {
	line := false

	open := func() {
		if !line {
			b = app(b, d, "")
			line = true
		} else {
			b = append(b, ' ')
		}
	}

	flush := func() {
		if line {
			b = append(b, '\n')
			line = false
		}
	}

	for _, x := range body {
		switch x := x.(type) {
		case *ast.Int:
			open()
			b = strconv.AppendInt(b, x.Value, 10)
		case *ast.Float:
			open()
			b = appendFloat(b, x.Value)
		case *ast.Word:
			open()
			b = append(b, x.Name...)
		case *ast.If:
			open()
			b = append(b, "if\n"...)
			line = false

			b, err = formatBody(ctx, b, x.Then, d+1)
			if err != nil {
				return nil, errors.Wrap(err, "then")
			}

			if len(x.Else) != 0 {
				b = app(b, d, "else\n")

				b, err = formatBody(ctx, b, x.Else, d+1)
				if err != nil {
					return nil, errors.Wrap(err, "else")
				}
			}

			b = app(b, d, "then")
			line = true
		case *ast.Until:
			flush()
			b = app(b, d, "begin\n")

			b, err = formatBody(ctx, b, x.Body, d+1)
			if err != nil {
				return nil, errors.Wrap(err, "begin")
			}

			b = app(b, d, "until")
			line = true
		case *ast.While:
			flush()
			b = app(b, d, "begin\n")

			b, err = formatBody(ctx, b, x.Cond, d+1)
			if err != nil {
				return nil, errors.Wrap(err, "begin")
			}

			b = app(b, d, "while\n")

			b, err = formatBody(ctx, b, x.Body, d+1)
			if err != nil {
				return nil, errors.Wrap(err, "while")
			}

			b = app(b, d, "repeat")
			line = true
		default:
			return nil, errors.New("unsupported node: %T", x)
		}
	}

	flush()

	return b, nil
}

func appendFloat(b []byte, v float64) []byte {
	st := len(b)
	b = strconv.AppendFloat(b, v, 'g', -1, 64)

	for _, c := range b[st:] {
		if c == '.' || c == 'e' || c == 'n' || c == 'I' {
			return b
		}
	}

	return append(b, ".0"...)
}

func app(b []byte, d int, f string, args ...any) []byte {
	const tabs = "\t\t\t\t\t\t\t\t\t\t\t\t\t\t\t"
	b = append(b, tabs[:min(d, len(tabs))]...)
	b = fmt.Appendf(b, f, args...)
	return b
}
