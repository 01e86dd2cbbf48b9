package arm64

import (
	"fmt"
	"strings"
)

type (
	Reg  int
	Cond string
)

const (
	X0 Reg = iota
	X1
	X2
	X3
	X4
	X5
	X6
	X7
	X8
	X9
	X10
	X11
	X12

	FP Reg = 29
	LR Reg = 30
	SP Reg = 31
)

// NArgs is the number of argument and result registers.
const NArgs = 8

const (
	EQ Cond = "EQ"
	NE Cond = "NE"
	LT Cond = "LT"
	LE Cond = "LE"
	GT Cond = "GT"
	GE Cond = "GE"
)

func (r Reg) String() string {
	switch r {
	case FP:
		return "FP"
	case LR:
		return "LR"
	case SP:
		return "SP"
	}

	return fmt.Sprintf("X%d", int(r))
}

// W is the 32-bit view of the register.
func (r Reg) W() string { return fmt.Sprintf("W%d", int(r)) }

// MovImm loads a 64-bit constant into r.
func MovImm(b []byte, r Reg, v int64) []byte {
	switch {
	case v >= 0 && v <= 0xffff:
		return fmt.Appendf(b, "\tMOV\t%v, #%d\n", r, v)
	case v < 0 && v >= -0x10000:
		return fmt.Appendf(b, "\tMOVN\t%v, #%d\n", r, ^v)
	}

	u := uint64(v)

	b = fmt.Appendf(b, "\tMOVZ\t%v, #0x%x\n", r, u&0xffff)

	for sh := 16; sh < 64; sh += 16 {
		if c := (u >> sh) & 0xffff; c != 0 {
			b = fmt.Appendf(b, "\tMOVK\t%v, #0x%x, LSL #%d\n", r, c, sh)
		}
	}

	return b
}

// Sym mangles a word name into an assembler symbol.
// Letters, digits and underscores are kept, other bytes are hex escaped.
func Sym(name string) string {
	var b strings.Builder

	b.WriteByte('_')

	for i := 0; i < len(name); i++ {
		c := name[i]

		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "_%02x", c)
		}
	}

	return b.String()
}
