package ir

import "fmt"

// Code builds an instruction sequence from a compact notation:
// ints are literals, floats are float literals, strings are primitives
// or calls, Insts and Inst slices are taken as is.
//
//	Code(2, 3, "+", "sq", N(Branch, 1))
func Code(xs ...any) []Inst {
	r := make([]Inst, 0, len(xs))

	for _, x := range xs {
		switch x := x.(type) {
		case Inst:
			r = append(r, x)
		case []Inst:
			r = append(r, x...)
		case int:
			r = append(r, N(Lit, int64(x)))
		case int64:
			r = append(r, N(Lit, x))
		case float64:
			r = append(r, F(x))
		case string:
			if op, ok := Primitive(x); ok {
				r = append(r, I(op))
			} else {
				r = append(r, S(Call, x))
			}
		default:
			panic(fmt.Sprintf("unsupported code item: %T", x))
		}
	}

	return r
}

// CodeString formats a sequence on a single line.
func CodeString(code []Inst) string {
	var b []byte

	for i, x := range code {
		if i != 0 {
			b = append(b, ' ')
		}

		b = x.Append(b)
	}

	return string(b)
}
