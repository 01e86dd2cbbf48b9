package ssa

import (
	"fmt"

	"tlog.app/go/tlog/tlwire"

	"github.com/slowlang/fifth/compiler/ir"
	"github.com/slowlang/fifth/compiler/tp"
)

type (
	Reg int
	Op  uint8

	Inst struct {
		Op   Op
		Dst  []Reg
		Args []Reg

		Sub  ir.Op // Unary, Binary, Load and Store operation
		N    int64
		F    float64
		Name string
		Ty   tp.Kind

		From []int // Phi: predecessor block of each argument
		To   []int // Jump: target, Branch: then and else targets
	}

	Block struct {
		ID    int
		Preds []int
		Code  []Inst
	}

	Func struct {
		Name   string
		Params []Reg
		Entry  int
		Blocks []*Block

		NRegs int
	}
)

const (
	Phi Op = iota
	LoadInt
	LoadFloat
	Unary
	Binary
	Load
	Store
	Call

	Jump
	Branch
	Return
)

var opNames = []string{
	Phi:       "phi",
	LoadInt:   "loadint",
	LoadFloat: "loadfloat",
	Unary:     "unary",
	Binary:    "binary",
	Load:      "load",
	Store:     "store",
	Call:      "call",
	Jump:      "jump",
	Branch:    "branch",
	Return:    "ret",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}

	return fmt.Sprintf("Op(%d)", int(op))
}

func (op Op) Terminator() bool {
	return op == Jump || op == Branch || op == Return
}

// Pure instructions can be removed when their results are unused.
func (x Inst) Pure() bool {
	switch x.Op {
	case Phi, LoadInt, LoadFloat, Unary:
		return true
	case Binary:
		return !x.Sub.Traps()
	}

	return false
}

func (r Reg) String() string { return fmt.Sprintf("r%d", int(r)) }

func (r Reg) TlogAppend(b []byte) []byte {
	var e tlwire.LowEncoder
	return e.AppendString(b, r.String())
}

// Block finds a block by id.
func (f *Func) Block(id int) *Block {
	if id >= 0 && id < len(f.Blocks) && f.Blocks[id].ID == id {
		return f.Blocks[id]
	}

	for _, b := range f.Blocks {
		if b.ID == id {
			return b
		}
	}

	return nil
}

// Succs returns the successors of b from its terminator.
func (b *Block) Succs() []int {
	if len(b.Code) == 0 {
		return nil
	}

	x := b.Code[len(b.Code)-1]
	if !x.Op.Terminator() {
		return nil
	}

	return x.To
}

// Len is the number of instructions in the function.
func (f *Func) Len() (n int) {
	for _, b := range f.Blocks {
		n += len(b.Code)
	}

	return n
}

func (f *Func) newReg() Reg {
	r := Reg(f.NRegs)
	f.NRegs++

	return r
}

// Instruction constructors.

func Int(dst Reg, v int64) Inst { return Inst{Op: LoadInt, Dst: []Reg{dst}, N: v} }

func Float(dst Reg, v float64) Inst { return Inst{Op: LoadFloat, Dst: []Reg{dst}, F: v} }

func Bin(op ir.Op, dst, a, b Reg) Inst {
	return Inst{Op: Binary, Sub: op, Dst: []Reg{dst}, Args: []Reg{a, b}}
}

func Un(op ir.Op, dst, a Reg) Inst {
	return Inst{Op: Unary, Sub: op, Dst: []Reg{dst}, Args: []Reg{a}}
}

// PhiOf builds a phi, args given as pairs of predecessor block and register.
func PhiOf(dst Reg, in ...[2]int) Inst {
	x := Inst{Op: Phi, Dst: []Reg{dst}}

	for _, p := range in {
		x.From = append(x.From, p[0])
		x.Args = append(x.Args, Reg(p[1]))
	}

	return x
}

func Goto(to int) Inst { return Inst{Op: Jump, To: []int{to}} }

func If(c Reg, then, els int) Inst { return Inst{Op: Branch, Args: []Reg{c}, To: []int{then, els}} }

func Ret(args ...Reg) Inst { return Inst{Op: Return, Args: append([]Reg{}, args...)} }
