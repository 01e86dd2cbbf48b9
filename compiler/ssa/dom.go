package ssa

import "github.com/slowlang/fifth/compiler/set"

type (
	// Dom is the dominator tree of a function.
	// Dominance queries are answered in constant time from tree DFS intervals.
	Dom struct {
		idx  map[int]int // block id -> dense index
		ids  []int
		rpo  []int // dense indexes in reverse postorder
		num  []int // position in rpo, -1 if unreachable
		idom []int

		pre, post []int
	}
)

// Dominators computes dominators with the Cooper-Harvey-Kennedy algorithm.
func Dominators(f *Func) *Dom {
	n := len(f.Blocks)

	d := &Dom{
		idx:  make(map[int]int, n),
		ids:  make([]int, n),
		num:  make([]int, n),
		idom: make([]int, n),
		pre:  make([]int, n),
		post: make([]int, n),
	}

	for i, b := range f.Blocks {
		d.idx[b.ID] = i
		d.ids[i] = b.ID
		d.num[i] = -1
		d.idom[i] = -1
	}

	succs := make([][]int, n)
	preds := make([][]int, n)

	for i, b := range f.Blocks {
		for _, s := range b.Succs() {
			j, ok := d.idx[s]
			if !ok {
				continue
			}

			succs[i] = append(succs[i], j)
			preds[j] = append(preds[j], i)
		}
	}

	entry, ok := d.idx[f.Entry]
	if !ok {
		return d
	}

	// iterative dfs for postorder
	type frame struct{ b, next int }

	visited := set.MakeBitmap(n)
	post := make([]int, 0, n)
	stack := []frame{{b: entry}}
	visited.Set(entry)

	for len(stack) != 0 {
		top := &stack[len(stack)-1]

		if top.next < len(succs[top.b]) {
			s := succs[top.b][top.next]
			top.next++

			if visited.Add(s) {
				stack = append(stack, frame{b: s})
			}

			continue
		}

		post = append(post, top.b)
		stack = stack[:len(stack)-1]
	}

	d.rpo = make([]int, len(post))

	for i, b := range post {
		j := len(post) - 1 - i
		d.rpo[j] = b
		d.num[b] = j
	}

	d.idom[entry] = entry

	intersect := func(a, b int) int {
		for a != b {
			for d.num[a] > d.num[b] {
				a = d.idom[a]
			}

			for d.num[b] > d.num[a] {
				b = d.idom[b]
			}
		}

		return a
	}

	for changed := true; changed; {
		changed = false

		for _, b := range d.rpo[1:] {
			nd := -1

			for _, p := range preds[b] {
				if d.idom[p] < 0 {
					continue
				}

				if nd < 0 {
					nd = p
				} else {
					nd = intersect(p, nd)
				}
			}

			if nd != d.idom[b] {
				d.idom[b] = nd
				changed = true
			}
		}
	}

	children := make([][]int, n)

	for _, b := range d.rpo[1:] {
		children[d.idom[b]] = append(children[d.idom[b]], b)
	}

	clock := 0
	tstack := []frame{{b: entry}}
	d.pre[entry] = clock
	clock++

	for len(tstack) != 0 {
		top := &tstack[len(tstack)-1]

		if top.next < len(children[top.b]) {
			c := children[top.b][top.next]
			top.next++

			d.pre[c] = clock
			clock++

			tstack = append(tstack, frame{b: c})

			continue
		}

		d.post[top.b] = clock
		clock++

		tstack = tstack[:len(tstack)-1]
	}

	return d
}

func (d *Dom) Reachable(id int) bool {
	i, ok := d.idx[id]
	return ok && d.num[i] >= 0
}

// Dominates reports whether block a dominates block b. Every block dominates itself.
func (d *Dom) Dominates(a, b int) bool {
	i, ok1 := d.idx[a]
	j, ok2 := d.idx[b]

	if !ok1 || !ok2 || d.num[i] < 0 || d.num[j] < 0 {
		return false
	}

	return d.pre[i] <= d.pre[j] && d.post[j] <= d.post[i]
}

// Idom returns the immediate dominator of a block, the entry for itself and -1 if unreachable.
func (d *Dom) Idom(id int) int {
	i, ok := d.idx[id]
	if !ok || d.idom[i] < 0 {
		return -1
	}

	return d.ids[d.idom[i]]
}

// RPO returns reachable block ids in reverse postorder.
func (d *Dom) RPO() []int {
	r := make([]int, len(d.rpo))

	for i, b := range d.rpo {
		r[i] = d.ids[b]
	}

	return r
}
