package arm64

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMovImm(t *testing.T) {
	for _, tc := range []struct {
		v   int64
		exp string
	}{
		{5, "\tMOV\tX9, #5\n"},
		{-1, "\tMOVN\tX9, #0\n"},
		{-100, "\tMOVN\tX9, #99\n"},
		{0x12345, "\tMOVZ\tX9, #0x2345\n\tMOVK\tX9, #0x1, LSL #16\n"},
		{1 << 48, "\tMOVZ\tX9, #0x0\n\tMOVK\tX9, #0x1, LSL #48\n"},
	} {
		assert.Equal(t, tc.exp, string(MovImm(nil, X9, tc.v)), "%d", tc.v)
	}
}

func TestSym(t *testing.T) {
	assert.Equal(t, "_main", Sym("main"))
	assert.Equal(t, "_sq_3cint_3e", Sym("sq<int>"))
	assert.Equal(t, "_1_2b", Sym("1+"))
	assert.Equal(t, "_a_5fb", Sym("a_b"))
}

func TestRegString(t *testing.T) {
	assert.Equal(t, "X3", X3.String())
	assert.Equal(t, "FP", FP.String())
	assert.Equal(t, "W9", X9.W())
}
