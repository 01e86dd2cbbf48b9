package ir

import (
	"fmt"
	"strconv"

	"tlog.app/go/tlog/tlwire"

	"github.com/slowlang/fifth/compiler/tp"
)

type (
	Op uint8

	// Inst is a flat instruction. It's comparable so it can be used as a map key.
	Inst struct {
		Op   Op
		N    int64   // literal, label id, cached depth or flush count
		F    float64 // float literal
		Name string  // call target or comment text
		Ty   tp.Kind // operand kind after specialization
	}

	// Effect is a stack effect in item counts.
	Effect struct {
		In  int
		Out int
	}

	opInfo struct {
		name string
		in   int
		out  int
		fl   flags
	}

	flags uint8
)

const (
	Nop Op = iota
	Comment

	Lit
	FLit

	Dup
	Drop
	Swap
	Over
	Rot
	Nip
	Tuck

	Add
	Sub
	Mul
	Div
	Mod
	Neg
	Abs

	And
	Or
	Xor
	Not
	Shl
	Shr

	Eq
	Ne
	Lt
	Le
	Gt
	Ge
	ZeroEq
	ZeroLt
	ZeroGt

	Load
	Store
	Load8
	Store8

	ToR
	FromR
	RFetch

	Call
	Return
	Branch
	BranchIf
	BranchIfNot
	Label

	DupAdd
	DupMul
	OverAdd
	SwapSub
	LitAdd
	LitMul
	Inc
	Dec
	Shl1 // 2 *
	Shr1 // 2 /

	CachedDup
	CachedSwap
	CachedOver
	Flush // spill N deepest cached items, all if N == 0

	numOps
)

const (
	pure flags = 1 << iota
	traps
	control
	meta
	shuffle
)

var ops = [numOps]opInfo{
	Nop:     {"nop", 0, 0, meta},
	Comment: {"#", 0, 0, meta},

	Lit:  {"lit", 0, 1, pure},
	FLit: {"flit", 0, 1, pure},

	Dup:  {"dup", 1, 2, pure | shuffle},
	Drop: {"drop", 1, 0, pure | shuffle},
	Swap: {"swap", 2, 2, pure | shuffle},
	Over: {"over", 2, 3, pure | shuffle},
	Rot:  {"rot", 3, 3, pure | shuffle},
	Nip:  {"nip", 2, 1, pure | shuffle},
	Tuck: {"tuck", 2, 3, pure | shuffle},

	Add: {"+", 2, 1, pure},
	Sub: {"-", 2, 1, pure},
	Mul: {"*", 2, 1, pure},
	Div: {"/", 2, 1, traps},
	Mod: {"mod", 2, 1, traps},
	Neg: {"negate", 1, 1, pure},
	Abs: {"abs", 1, 1, pure},

	And: {"and", 2, 1, pure},
	Or:  {"or", 2, 1, pure},
	Xor: {"xor", 2, 1, pure},
	Not: {"invert", 1, 1, pure},
	Shl: {"lshift", 2, 1, pure},
	Shr: {"rshift", 2, 1, pure},

	Eq:     {"=", 2, 1, pure},
	Ne:     {"<>", 2, 1, pure},
	Lt:     {"<", 2, 1, pure},
	Le:     {"<=", 2, 1, pure},
	Gt:     {">", 2, 1, pure},
	Ge:     {">=", 2, 1, pure},
	ZeroEq: {"0=", 1, 1, pure},
	ZeroLt: {"0<", 1, 1, pure},
	ZeroGt: {"0>", 1, 1, pure},

	Load:   {"@", 1, 1, traps},
	Store:  {"!", 2, 0, 0},
	Load8:  {"c@", 1, 1, traps},
	Store8: {"c!", 2, 0, 0},

	ToR:    {">r", 1, 0, 0},
	FromR:  {"r>", 0, 1, 0},
	RFetch: {"r@", 0, 1, 0},

	Call:        {"call", 0, 0, control},
	Return:      {"exit", 0, 0, control},
	Branch:      {"branch", 0, 0, control},
	BranchIf:    {"?branch", 1, 0, control},
	BranchIfNot: {"0branch", 1, 0, control},
	Label:       {"label", 0, 0, control},

	DupAdd:  {"dup+", 1, 1, pure},
	DupMul:  {"dup*", 1, 1, pure},
	OverAdd: {"over+", 2, 2, pure},
	SwapSub: {"swap-", 2, 1, pure},
	LitAdd:  {"lit+", 1, 1, pure},
	LitMul:  {"lit*", 1, 1, pure},
	Inc:     {"1+", 1, 1, pure},
	Dec:     {"1-", 1, 1, pure},
	Shl1:    {"2*", 1, 1, pure},
	Shr1:    {"2/", 1, 1, pure},

	CachedDup:  {"cdup", 1, 2, 0},
	CachedSwap: {"cswap", 2, 2, 0},
	CachedOver: {"cover", 2, 3, 0},
	Flush:      {"flush", 0, 0, 0},
}

var byName = func() map[string]Op {
	m := map[string]Op{}

	for op := Dup; op < numOps; op++ {
		switch op {
		case Call, Return, Branch, BranchIf, BranchIfNot, Label, LitAdd, LitMul, CachedDup, CachedSwap, CachedOver, Flush:
			continue
		}

		m[ops[op].name] = op
	}

	m["exit"] = Return

	return m
}()

// Primitive maps a source word to its operation.
func Primitive(name string) (Op, bool) {
	op, ok := byName[name]
	return op, ok
}

func (op Op) String() string {
	if op < numOps {
		return ops[op].name
	}

	return fmt.Sprintf("Op(%d)", int(op))
}

// Pure ops have no effect besides the stack and never trap.
func (op Op) Pure() bool { return op < numOps && ops[op].fl&pure != 0 }

func (op Op) Traps() bool { return op < numOps && ops[op].fl&traps != 0 }

// Control ops end straight-line code: labels, branches, calls and returns.
func (op Op) Control() bool { return op < numOps && ops[op].fl&control != 0 }

func (op Op) Meta() bool { return op < numOps && ops[op].fl&meta != 0 }

// Shuffle ops only rearrange stack items.
func (op Op) Shuffle() bool { return op < numOps && ops[op].fl&shuffle != 0 }

func (op Op) Terminator() bool {
	return op == Return || op == Branch || op == BranchIf || op == BranchIfNot
}

func (op Op) Jump() bool {
	return op == Branch || op == BranchIf || op == BranchIfNot
}

// Effect returns the stack effect of the op. Calls are resolved by Program.Effect.
func (op Op) Effect() Effect {
	if op >= numOps {
		return Effect{}
	}

	return Effect{In: ops[op].in, Out: ops[op].out}
}

// Uncached returns the plain shuffle for a cached one.
func (op Op) Uncached() Op {
	switch op {
	case CachedDup:
		return Dup
	case CachedSwap:
		return Swap
	case CachedOver:
		return Over
	}

	return op
}

func I(op Op) Inst { return Inst{Op: op} }

func N(op Op, n int64) Inst { return Inst{Op: op, N: n} }

func F(f float64) Inst { return Inst{Op: FLit, F: f} }

func S(op Op, name string) Inst { return Inst{Op: op, Name: name} }

func (x Inst) Effect() Effect { return x.Op.Effect() }

func (x Inst) String() string {
	return string(x.Append(nil))
}

func (x Inst) Append(b []byte) []byte {
	switch x.Op {
	case Lit:
		b = strconv.AppendInt(b, x.N, 10)
	case FLit:
		b = strconv.AppendFloat(b, x.F, 'g', -1, 64)

		if x.F == float64(int64(x.F)) {
			b = append(b, ".0"...)
		}
	case LitAdd, LitMul:
		b = fmt.Appendf(b, "%v %d", x.Op, x.N)
	case Call:
		b = fmt.Appendf(b, "call %v", x.Name)
	case Label:
		b = fmt.Appendf(b, "L%d:", x.N)
	case Branch, BranchIf, BranchIfNot:
		b = fmt.Appendf(b, "%v L%d", x.Op, x.N)
	case CachedDup, CachedSwap, CachedOver, Flush:
		b = fmt.Appendf(b, "%v %d", x.Op, x.N)
	case Comment:
		b = fmt.Appendf(b, "# %v", x.Name)
	default:
		b = append(b, x.Op.String()...)
	}

	if x.Ty != tp.Unknown {
		b = fmt.Appendf(b, ":%v", x.Ty)
	}

	return b
}

func (x Inst) TlogAppend(b []byte) []byte {
	var e tlwire.LowEncoder

	return e.AppendString(b, x.String())
}

func (e Effect) Arity() int { return e.Out - e.In }

func (e Effect) String() string {
	return fmt.Sprintf("(%d -- %d)", e.In, e.Out)
}
