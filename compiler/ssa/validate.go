package ssa

import (
	"fmt"
	"sort"

	"github.com/slowlang/fifth/compiler/errs"
	"github.com/slowlang/fifth/compiler/set"
)

type def struct {
	block int // block id, -1 for params
	inst  int
}

// Validate checks SSA invariants in order: block structure, single
// assignment, definitions dominating uses, phi placement, phi incoming
// blocks and reachability. It runs in time linear in the function size
// apart from the dominator fixpoint.
func Validate(f *Func) error {
	ids, err := checkStructure(f)
	if err != nil {
		return err
	}

	defined := set.MakeBits[Reg](f.NRegs)
	defs := make(map[Reg]def, f.NRegs)

	for _, r := range f.Params {
		if r < 0 {
			return invalid(f, errs.RuleStructure, -1, -1, "negative register %v", r)
		}

		if !defined.Add(r) {
			return invalid(f, errs.RuleMultiple, -1, -1, "%v", r)
		}

		defs[r] = def{block: -1}
	}

	for _, b := range f.Blocks {
		for i, x := range b.Code {
			for _, r := range x.Dst {
				if r < 0 {
					return invalid(f, errs.RuleStructure, b.ID, i, "negative register %v", r)
				}

				if !defined.Add(r) {
					return invalid(f, errs.RuleMultiple, b.ID, i, "%v", r)
				}

				defs[r] = def{block: b.ID, inst: i}
			}
		}
	}

	dom := Dominators(f)

	dominates := func(d def, block, inst int) bool {
		if d.block < 0 {
			return true
		}

		if d.block == block {
			return d.inst < inst
		}

		return dom.Dominates(d.block, block)
	}

	for _, b := range f.Blocks {
		if !dom.Reachable(b.ID) {
			continue
		}

		for i, x := range b.Code {
			for j, r := range x.Args {
				d, ok := defs[r]
				if !ok {
					return invalid(f, errs.RuleUndefined, b.ID, i, "%v", r)
				}

				block, inst := b.ID, i

				if x.Op == Phi {
					if j >= len(x.From) {
						continue
					}

					// used at the end of the incoming block
					block, inst = x.From[j], 1<<30

					if !dom.Reachable(block) {
						continue
					}
				}

				if !dominates(d, block, inst) {
					return invalid(f, errs.RuleDominance, b.ID, i, "%v defined in block %d", r, d.block)
				}
			}
		}
	}

	for _, b := range f.Blocks {
		body := false

		for i, x := range b.Code {
			if x.Op != Phi {
				body = true
				continue
			}

			if body {
				return invalid(f, errs.RulePhiStart, b.ID, i, "%v", x.Dst)
			}
		}
	}

	for _, b := range f.Blocks {
		preds := set.MakeBitmap(len(f.Blocks))

		for _, p := range b.Preds {
			preds.Set(p)
		}

		for i, x := range b.Code {
			if x.Op != Phi {
				continue
			}

			if len(x.Args) != len(x.From) || len(x.From) != len(b.Preds) {
				return invalid(f, errs.RulePhiPreds, b.ID, i, "%d incoming, %d predecessors", len(x.From), len(b.Preds))
			}

			from := set.MakeBitmap(len(f.Blocks))

			for _, p := range x.From {
				if p >= 0 {
					from.Set(p)
				}
			}

			if from.Size() != len(x.From) || !from.Equal(preds) {
				return invalid(f, errs.RulePhiPreds, b.ID, i, "incoming %v, predecessors %v", x.From, b.Preds)
			}
		}
	}

	reached := set.MakeBitmap(len(f.Blocks))

	for _, id := range dom.RPO() {
		reached.Set(id)
	}

	unreached := ids.Copy()
	unreached.AndNot(reached)

	if id := unreached.First(); id >= 0 {
		return invalid(f, errs.RuleReachable, id, -1, "")
	}

	return nil
}

// checkStructure verifies terminators, jump targets and predecessor lists.
// It returns the set of block ids.
func checkStructure(f *Func) (ids set.Bitmap, err error) {
	ids = set.MakeBitmap(len(f.Blocks))

	for _, b := range f.Blocks {
		if b.ID < 0 || !ids.Add(b.ID) {
			return ids, invalid(f, errs.RuleStructure, b.ID, -1, "duplicate block id")
		}
	}

	if !ids.IsSet(f.Entry) {
		return ids, invalid(f, errs.RuleStructure, f.Entry, -1, "no entry block")
	}

	preds := map[int][]int{}

	for _, b := range f.Blocks {
		if len(b.Code) == 0 {
			return ids, invalid(f, errs.RuleStructure, b.ID, -1, "empty block")
		}

		for i, x := range b.Code {
			last := i == len(b.Code)-1

			if x.Op.Terminator() != last {
				return ids, invalid(f, errs.RuleStructure, b.ID, i, "block must end with exactly one terminator")
			}

			want := 0

			switch x.Op {
			case Jump:
				want = 1
			case Branch:
				want = 2
			}

			if len(x.To) != want {
				return ids, invalid(f, errs.RuleStructure, b.ID, i, "%v with %d targets", x.Op, len(x.To))
			}

			if x.Op == Branch && len(x.Args) != 1 {
				return ids, invalid(f, errs.RuleStructure, b.ID, i, "branch without condition")
			}

			seen := -1

			for _, t := range x.To {
				if !ids.IsSet(t) {
					return ids, invalid(f, errs.RuleStructure, b.ID, i, "jump to unknown block %d", t)
				}

				if t != seen {
					preds[t] = append(preds[t], b.ID)
				}

				seen = t
			}
		}
	}

	for _, b := range f.Blocks {
		exp := preds[b.ID]
		got := append([]int{}, b.Preds...)

		sort.Ints(exp)
		sort.Ints(got)

		if fmt.Sprint(exp) != fmt.Sprint(got) {
			return ids, invalid(f, errs.RuleStructure, b.ID, -1, "predecessors %v, expected %v", b.Preds, exp)
		}
	}

	return ids, nil
}

func invalid(f *Func, rule string, block, inst int, format string, args ...any) error {
	return &errs.Invalid{
		Func:  f.Name,
		Rule:  rule,
		Block: block,
		Inst:  inst,
		Msg:   fmt.Sprintf(format, args...),
	}
}
