package opt

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/slowlang/fifth/compiler/ir"
)

// DeadWords removes words main can never reach through calls.
// Inlining and specialization leave such words behind.
type DeadWords struct{}

func (DeadWords) Name() string { return "deadwords" }

func (DeadWords) Run(ctx context.Context, p *ir.Program) (*ir.Program, Stats, error) {
	tr := tlog.SpanFromContext(ctx)

	live := Reachable(p)
	st := Stats{}
	q := p.Clone()

	var removed []string

	for _, name := range p.Names() {
		if live[name] {
			continue
		}

		delete(q.Words, name)
		removed = append(removed, name)
		st["removed"]++
	}

	if len(removed) != 0 {
		tr.V("pass").Printw("dead words", "words", removed)
	}

	return q, st, nil
}

// Reachable returns the words called from main directly or transitively.
func Reachable(p *ir.Program) map[string]bool {
	live := map[string]bool{}
	queue := []string{ir.MainUnit}

	for len(queue) != 0 {
		u := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		for _, x := range p.Code(u) {
			if x.Op != ir.Call || live[x.Name] || p.Words[x.Name] == nil {
				continue
			}

			live[x.Name] = true
			queue = append(queue, x.Name)
		}
	}

	return live
}
