package compiler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"

	"github.com/slowlang/fifth/compiler/errs"
	"github.com/slowlang/fifth/compiler/ir"
	"github.com/slowlang/fifth/compiler/opt"
)

const sqSrc = `
words:
  - name: sq
    body: [dup, "*"]
main: [5, sq]
`

func TestCompile(t *testing.T) {
	ctx := context.Background()

	c := DefaultConfig()

	r, err := Compile(ctx, "sq.yaml", []byte(sqSrc), c)
	require.NoError(t, err)

	assert.Equal(t, "5 call sq", ir.CodeString(r.Lowered.Main))
	assert.Equal(t, "25", ir.CodeString(r.Program.Main))
	assert.Equal(t, opt.Fixpoint, r.Report.State)
	assert.Len(t, r.Funcs, 1, "sq is inlined and removed")
	assert.Equal(t, "main\n\t0000\tlit 25\n\t0002\tbye\n", string(r.Output))
}

func TestCompileLevels(t *testing.T) {
	ctx := context.Background()

	c := DefaultConfig()
	c.Level = opt.None
	c.Backend = ""

	r, err := Compile(ctx, "sq.yaml", []byte(sqSrc), c)
	require.NoError(t, err)

	assert.Equal(t, "5 call sq", ir.CodeString(r.Program.Main))
	assert.Nil(t, r.Output)

	c.Backend = "arm64"

	r, err = Compile(ctx, "sq.yaml", []byte(sqSrc), c)
	require.NoError(t, err)

	assert.Contains(t, string(r.Output), "\tBL\t_sq\n")
}

func TestCompileErrors(t *testing.T) {
	ctx := context.Background()
	c := DefaultConfig()

	_, err := Compile(ctx, "bad.yaml", []byte("main: [\"+\"]\n"), c)

	var u *errs.Underflow
	assert.True(t, errors.As(err, &u), "%v", err)

	_, err = Compile(ctx, "bad.yaml", []byte("main: [nosuch]\n"), c)
	assert.Error(t, err)

	_, err = Compile(ctx, "bad.yaml", []byte("main: {"), c)
	assert.Error(t, err)

	c.Backend = "z80"

	_, err = Compile(ctx, "sq.yaml", []byte(sqSrc), c)
	assert.Error(t, err)
}

func TestCompileFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "sq.yaml")
	require.NoError(t, os.WriteFile(name, []byte(sqSrc), 0o644))

	r, err := CompileFile(context.Background(), name, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "25", ir.CodeString(r.Program.Main))

	_, err = CompileFile(context.Background(), name+".missing", DefaultConfig())
	assert.Error(t, err)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("FIFTH_LEVEL", "o3")
	t.Setenv("FIFTH_CACHE", "5")
	t.Setenv("FIFTH_MAX_ITER", "4")
	t.Setenv("FIFTH_INLINE_DEPTH", "2")
	t.Setenv("FIFTH_BACKEND", "arm64")

	c, err := ConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, Config{
		Level:       opt.Aggressive,
		CacheSize:   5,
		MaxIter:     4,
		InlineDepth: 2,
		Backend:     "arm64",
	}, c)

	t.Setenv("FIFTH_LEVEL", "fast")

	_, err = ConfigFromEnv()
	assert.Error(t, err)

	t.Setenv("FIFTH_LEVEL", "")
	t.Setenv("FIFTH_CACHE", "20")

	_, err = ConfigFromEnv()
	assert.Error(t, err)

	t.Setenv("FIFTH_CACHE", "abc")

	_, err = ConfigFromEnv()
	assert.Error(t, err)

	t.Setenv("FIFTH_MAX_ITER", "many")
	t.Setenv("FIFTH_CACHE", "")

	_, err = ConfigFromEnv()
	assert.Error(t, err)
}

func TestConfigFromEnvReload(t *testing.T) {
	t.Setenv("FIFTH_CACHE", "5")

	c, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 5, c.CacheSize)

	t.Setenv("FIFTH_CACHE", "2")

	c, err = ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 2, c.CacheSize)
}
