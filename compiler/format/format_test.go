package format

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/fifth/compiler/ast"
)

func TestFormat(t *testing.T) {
	f, err := ast.Parse("t.yaml", []byte(`
words:
  - name: sign
    effect: "( n -- s )"
    body: [dup, "0<", {if: [drop, -1], else: [drop, 1]}]
  - name: down
    inline: true
    body:
      - begin: [1-, dup, "0="]
        until: true
main: [2.0, 3, sign]
`))
	require.NoError(t, err)

	b, err := Format(context.Background(), nil, f)
	require.NoError(t, err)

	assert.Equal(t, `: sign ( n -- s )
	dup 0< if
		drop -1
	else
		drop 1
	then
;

: down
	begin
		1- dup 0=
	until
; inline

2.0 3 sign
`, string(b))
}

func TestFormatUnsupported(t *testing.T) {
	_, err := Format(context.Background(), nil, 5)
	assert.Error(t, err)
}
