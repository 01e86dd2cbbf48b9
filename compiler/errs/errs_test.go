package errs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"
)

func TestInternalOrigin(t *testing.T) {
	e := NewInternal(nil, "pass %v", "fold")

	_, file, line := e.PC.NameFileLine()
	assert.Contains(t, file, "errs_test.go")
	assert.NotZero(t, line)
	assert.Contains(t, e.Error(), "pass fold")
}

func TestRecovered(t *testing.T) {
	var err error

	func() {
		defer func() {
			if p := recover(); p != nil {
				err = Recovered(p)
			}
		}()

		panic("boom")
	}()

	var ie *Internal
	require.True(t, errors.As(err, &ie))
	assert.Contains(t, ie.Error(), "boom")
}

func TestWrapped(t *testing.T) {
	err := errors.Wrap(&Invalid{Func: "f", Rule: RuleMultiple, Block: 0, Inst: 1}, "validate")

	assert.True(t, IsInvalid(err))
	assert.Contains(t, err.Error(), "assigned multiple times")

	var u *Underflow
	assert.False(t, errors.As(err, &u))
}
