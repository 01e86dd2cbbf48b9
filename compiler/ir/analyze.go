package ir

import (
	"fmt"

	"tlog.app/go/errors"

	"github.com/slowlang/fifth/compiler/errs"
)

// Analyze computes the stack effect of code following its control flow.
// The return stack must be balanced on every path.
// Paths meeting at a label must agree on depth, and so must all exits.
func (p *Program) Analyze(unit string, code []Inst) (Effect, error) {
	if len(code) == 0 {
		return Effect{}, nil
	}

	labels := map[int64]int{}

	for i, x := range code {
		if x.Op == Label {
			labels[x.N] = i
		}
	}

	for i, x := range code {
		if _, ok := labels[x.N]; x.Op.Jump() && !ok {
			return Effect{}, errors.New("%v: inst %d: branch to undefined label L%d", unitName(unit), i, x.N)
		}
	}

	type state struct {
		d, r int
	}

	const unset = -1 << 30

	at := make([]state, len(code)+1)
	for i := range at {
		at[i] = state{unset, unset}
	}

	low := 0
	exit := state{unset, unset}
	queue := []int{0}

	at[0] = state{}

	reach := func(i int, s state) error {
		if i == len(code) {
			if exit.d == unset {
				exit = s
				return nil
			}

			if exit != s {
				return &errs.DepthMismatch{Word: unitName(unit), Where: "exit", A: exit.d, B: s.d}
			}

			return nil
		}

		if at[i].d == unset {
			at[i] = s
			queue = append(queue, i)

			return nil
		}

		if at[i] != s {
			return &errs.DepthMismatch{Word: unitName(unit), Where: where(code, i), A: at[i].d, B: s.d}
		}

		return nil
	}

	for len(queue) != 0 {
		i := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		x := code[i]
		s := at[i]

		e, err := p.Effect(x)
		if err != nil {
			return Effect{}, errors.Wrap(err, "%v: inst %d", unitName(unit), i)
		}

		s.d -= e.In
		low = min(low, s.d)
		s.d += e.Out

		switch x.Op {
		case ToR:
			s.r++
		case FromR:
			s.r--
		}

		if s.r < 0 || (x.Op == RFetch && s.r == 0) {
			return Effect{}, errors.New("%v: inst %d: return stack underflow", unitName(unit), i)
		}

		var next []int

		switch x.Op {
		case Return:
			err = reach(len(code), s)
		case Branch:
			next = []int{labels[x.N]}
		case BranchIf, BranchIfNot:
			next = []int{labels[x.N], i + 1}
		default:
			next = []int{i + 1}
		}

		for _, j := range next {
			if err == nil {
				err = reach(j, s)
			}
		}

		if err != nil {
			return Effect{}, err
		}
	}

	if exit.d == unset {
		exit = state{}
	}

	if exit.r != 0 {
		return Effect{}, errors.New("%v: return stack not balanced at exit", unitName(unit))
	}

	in := -low

	return Effect{In: in, Out: in + exit.d}, nil
}

func where(code []Inst, i int) string {
	if code[i].Op == Label {
		return fmt.Sprintf("L%d", code[i].N)
	}

	return fmt.Sprintf("inst %d", i)
}
