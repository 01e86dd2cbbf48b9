package tp

import (
	"fmt"
	"strings"

	"tlog.app/go/tlog/tlwire"
)

type (
	// Type is a stack slot type: a concrete Kind, a type variable or a Compound.
	Type interface {
		String() string
	}

	Kind uint8

	Var struct {
		ID   int
		Name string
	}

	CompoundOp uint8

	// Compound is a unary algebraic type built from a base type.
	Compound struct {
		Op   CompoundOp
		Base Type
	}

	// Effect is a stack effect, both sides ordered bottom to top.
	Effect struct {
		In  []Type
		Out []Type
	}
)

const (
	Unknown Kind = iota
	Int
	Float
	Bool
	Char
	Addr
	String
)

const (
	Square CompoundOp = iota
	Negate
	Succ
	Pred
)

var kindNames = []string{
	Unknown: "?",
	Int:     "int",
	Float:   "float",
	Bool:    "bool",
	Char:    "char",
	Addr:    "addr",
	String:  "string",
}

var opNames = []string{
	Square: "sq",
	Negate: "neg",
	Succ:   "inc",
	Pred:   "dec",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}

	return fmt.Sprintf("Kind(%d)", int(k))
}

func (op CompoundOp) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}

	return fmt.Sprintf("CompoundOp(%d)", int(op))
}

func (v Var) String() string {
	if v.Name != "" {
		return v.Name
	}

	if v.ID < 26 {
		return string(rune('a' + v.ID))
	}

	return fmt.Sprintf("t%d", v.ID)
}

func (c Compound) String() string {
	return fmt.Sprintf("%v(%v)", c.Op, c.Base)
}

// Arity is the net number of stack items the effect adds.
func (e Effect) Arity() int { return len(e.Out) - len(e.In) }

func (e Effect) String() string {
	var b strings.Builder

	b.WriteString("(")

	for _, t := range e.In {
		b.WriteString(" ")
		b.WriteString(t.String())
	}

	b.WriteString(" --")

	for _, t := range e.Out {
		b.WriteString(" ")
		b.WriteString(t.String())
	}

	b.WriteString(" )")

	return b.String()
}

func (e Effect) TlogAppend(b []byte) []byte {
	var e0 tlwire.LowEncoder

	return e0.AppendString(b, e.String())
}

// Equal compares types structurally, variables by ID.
func Equal(a, b Type) bool {
	switch a := a.(type) {
	case Kind:
		b, ok := b.(Kind)
		return ok && a == b
	case Var:
		b, ok := b.(Var)
		return ok && a.ID == b.ID
	case Compound:
		b, ok := b.(Compound)
		return ok && a.Op == b.Op && Equal(a.Base, b.Base)
	default:
		return false
	}
}

func (e Effect) Equal(x Effect) bool {
	return equalList(e.In, x.In) && equalList(e.Out, x.Out)
}

func equalList(a, b []Type) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}

	return true
}

// Concrete reports the kind of t if it's a concrete type.
func Concrete(t Type) (Kind, bool) {
	k, ok := t.(Kind)
	return k, ok && k != Unknown
}
