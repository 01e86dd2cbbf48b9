package back

import (
	"context"
	"strings"

	"tlog.app/go/errors"

	"github.com/slowlang/fifth/compiler/ir"
	"github.com/slowlang/fifth/compiler/ssa"
)

type (
	// Backend turns optimized code into target text.
	// Pattern driven backends consume the flat program,
	// control flow backends consume validated ssa functions.
	Backend interface {
		Generate(ctx context.Context, p *ir.Program) ([]byte, error)
		CompileFunc(ctx context.Context, f *ssa.Func) (*Object, error)
	}

	// Object is a compiled function.
	Object struct {
		Name string
		Text []byte
	}
)

var backends = map[string]func() Backend{
	"threaded": func() Backend { return Threaded{} },
	"arm64":    func() Backend { return ARM64{} },
}

// New returns a backend by name.
func New(name string) (Backend, error) {
	f, ok := backends[strings.ToLower(name)]
	if !ok {
		return nil, errors.New("unknown backend: %v", name)
	}

	return f(), nil
}

// Names lists known backends.
func Names() []string {
	return []string{"arm64", "threaded"}
}

func (o *Object) String() string { return string(o.Text) }
