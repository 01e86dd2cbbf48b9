package ssa

import (
	"context"
	"fmt"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/fifth/compiler/errs"
	"github.com/slowlang/fifth/compiler/ir"
	"github.com/slowlang/fifth/compiler/set"
)

// superOps maps superinstructions to the binary operation they perform.
var superOps = map[ir.Op]ir.Op{
	ir.DupAdd: ir.Add,
	ir.DupMul: ir.Mul,
	ir.LitAdd: ir.Add,
	ir.LitMul: ir.Mul,
	ir.Inc:    ir.Add,
	ir.Dec:    ir.Sub,
	ir.Shl1:   ir.Shl,
	ir.Shr1:   ir.Div,
}

type (
	builder struct {
		p    *ir.Program
		name string
		code []ir.Inst

		f *Func

		blocks []*fblock
		labels map[int64]int

		reached set.Bitmap // flat blocks reachable from the start
	}

	// fblock is a range of flat code that becomes one basic block.
	fblock struct {
		st, end int

		succs []int
		preds []int

		rpo  int
		done bool

		in  state
		out state

		b *Block
	}

	state struct {
		d []Reg // data stack
		r []Reg // return stack
	}
)

// BuildAll builds main and every word in sorted order.
func BuildAll(ctx context.Context, p *ir.Program) (fs []*Func, err error) {
	for _, u := range p.Units() {
		f, err := Build(ctx, p, u)
		if err != nil {
			return nil, err
		}

		fs = append(fs, f)
	}

	return fs, nil
}

// Build converts a unit of the flat program into SSA form.
func Build(ctx context.Context, p *ir.Program, unit string) (f *Func, err error) {
	name := unit
	if unit == ir.MainUnit {
		name = "main"
	}

	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "ssa: build", "func", name)
	defer tr.Finish("err", &err)

	b := &builder{
		p:      p,
		name:   name,
		code:   p.Code(unit),
		f:      &Func{Name: name},
		labels: map[int64]int{},
	}

	if unit != ir.MainUnit {
		w := p.Words[unit]
		if w == nil {
			return nil, errors.New("no such word: %v", unit)
		}

		for i := 0; i < w.Effect.In; i++ {
			b.f.Params = append(b.f.Params, b.f.newReg())
		}
	}

	err = b.split()
	if err != nil {
		return nil, errors.Wrap(err, "%v", name)
	}

	order := b.order()

	for _, fb := range order {
		err = b.simulate(fb)
		if err != nil {
			return nil, errors.Wrap(err, "%v", name)
		}
	}

	err = b.fillPhis(order)
	if err != nil {
		return nil, errors.Wrap(err, "%v", name)
	}

	b.removeTrivialPhis()

	if tr.If("dump_ssa") {
		tr.Printw("ssa", "func", name, "text", string(AppendFunc(nil, b.f)))
	}

	tr.V("ssa").Printw("built", "blocks", len(b.f.Blocks), "regs", b.f.NRegs, "insts", b.f.Len(), "reached", b.reached)

	return b.f, nil
}

// split cuts the code at labels and after terminators.
// The last block is an empty exit block.
func (b *builder) split() error {
	n := len(b.code)

	lead := make([]bool, n+1)
	lead[0] = true

	for i, x := range b.code {
		if x.Op == ir.Label {
			lead[i] = true
		}

		if x.Op.Terminator() {
			lead[i+1] = true
		}
	}

	for i := 0; i < n; i++ {
		if !lead[i] {
			continue
		}

		j := i + 1
		for j < n && !lead[j] {
			j++
		}

		if x := b.code[i]; x.Op == ir.Label {
			if _, ok := b.labels[x.N]; ok {
				return errors.New("duplicate label L%d", x.N)
			}

			b.labels[x.N] = len(b.blocks)
		}

		b.blocks = append(b.blocks, &fblock{st: i, end: j})
	}

	b.blocks = append(b.blocks, &fblock{st: n, end: n})

	for i, fb := range b.blocks[:len(b.blocks)-1] {
		last := b.code[fb.end-1]

		if !last.Op.Jump() {
			if last.Op != ir.Return {
				fb.succs = []int{i + 1}
			}

			continue
		}

		t, ok := b.labels[last.N]
		if !ok {
			return errors.New("branch to undefined label L%d", last.N)
		}

		switch {
		case last.Op == ir.Branch, t == i+1:
			fb.succs = []int{t}
		case last.Op == ir.BranchIf:
			fb.succs = []int{t, i + 1}
		default:
			fb.succs = []int{i + 1, t}
		}
	}

	return nil
}

// order returns reachable blocks in reverse postorder and creates their ssa blocks.
// A separate entry block is added when the first block is a loop header.
func (b *builder) order() []*fblock {
	b.reached = set.MakeBitmap(len(b.blocks))
	var post []*fblock

	var dfs func(i int)
	dfs = func(i int) {
		b.reached.Set(i)

		for _, s := range b.blocks[i].succs {
			if !b.reached.IsSet(s) {
				dfs(s)
			}
		}

		post = append(post, b.blocks[i])
	}

	dfs(0)

	for i, fb := range b.blocks {
		if !b.reached.IsSet(i) {
			continue
		}

		for _, s := range fb.succs {
			b.blocks[s].preds = append(b.blocks[s].preds, i)
		}
	}

	if len(b.blocks[0].preds) != 0 {
		entry := &fblock{st: 0, end: 0, succs: []int{0}}
		b.blocks = append(b.blocks, entry)
		b.blocks[0].preds = append(b.blocks[0].preds, len(b.blocks)-1)
		post = append(post, entry)
	}

	order := make([]*fblock, len(post))

	for i, fb := range post {
		j := len(post) - 1 - i
		order[j] = fb
		fb.rpo = j
	}

	for _, fb := range order {
		fb.b = &Block{ID: fb.rpo}
		b.f.Blocks = append(b.f.Blocks, fb.b)
	}

	for _, fb := range order {
		for _, p := range fb.preds {
			fb.b.Preds = append(fb.b.Preds, b.blocks[p].rpo)
		}
	}

	return order
}

func (b *builder) simulate(fb *fblock) (err error) {
	blk := fb.b

	switch {
	case fb.rpo == 0:
		fb.in = state{d: append([]Reg{}, b.f.Params...)}
	default:
		fb.in, err = b.join(fb)
		if err != nil {
			return err
		}
	}

	s := fb.in.copy()

	for i := fb.st; i < fb.end; i++ {
		x := b.code[i]

		err = b.inst(blk, &s, x, fb)
		if err != nil {
			return errors.Wrap(err, "inst %d (%v)", i, x)
		}
	}

	if n := len(blk.Code); n == 0 || !blk.Code[n-1].Op.Terminator() {
		if len(fb.succs) == 0 {
			blk.Code = append(blk.Code, Ret(s.d...))
		} else {
			blk.Code = append(blk.Code, Goto(b.blocks[fb.succs[0]].rpo))
		}
	}

	fb.out = s
	fb.done = true

	return nil
}

// join computes the entry state from processed predecessors.
// Slots with different reaching definitions and all slots of loop headers get a phi.
func (b *builder) join(fb *fblock) (s state, err error) {
	var first *fblock
	header := false

	for _, p := range fb.preds {
		pb := b.blocks[p]

		if !pb.done {
			header = true
			continue
		}

		if first == nil {
			first = pb
			continue
		}

		if len(pb.out.d) != len(first.out.d) || len(pb.out.r) != len(first.out.r) {
			return state{}, b.mismatch(fb, len(first.out.d), len(pb.out.d))
		}
	}

	if first == nil {
		return state{}, errs.NewInternal(nil, "block %d has no processed predecessor", fb.rpo)
	}

	// phi N temporarily holds the slot: k for data, -1-k for return stack
	slot := func(v Reg, tag int64, get func(st state) Reg) Reg {
		need := header

		for _, p := range fb.preds {
			if pb := b.blocks[p]; pb.done && get(pb.out) != v {
				need = true
			}
		}

		if !need {
			return v
		}

		r := b.f.newReg()

		fb.b.Code = append(fb.b.Code, Inst{
			Op:   Phi,
			Dst:  []Reg{r},
			Args: make([]Reg, len(fb.preds)),
			From: append([]int{}, fb.b.Preds...),
			N:    tag,
		})

		return r
	}

	for k, v := range first.out.d {
		s.d = append(s.d, slot(v, int64(k), func(st state) Reg { return st.d[k] }))
	}

	for k, v := range first.out.r {
		s.r = append(s.r, slot(v, -1-int64(k), func(st state) Reg { return st.r[k] }))
	}

	return s, nil
}

// fillPhis sets phi arguments from predecessor exit states
// and checks all predecessors agree on depths.
func (b *builder) fillPhis(order []*fblock) error {
	for _, fb := range order {
		for _, p := range fb.preds {
			pb := b.blocks[p]

			if len(pb.out.d) != len(fb.in.d) || len(pb.out.r) != len(fb.in.r) {
				return b.mismatch(fb, len(fb.in.d), len(pb.out.d))
			}
		}

		for i := range fb.b.Code {
			x := &fb.b.Code[i]
			if x.Op != Phi {
				break
			}

			for j, p := range fb.preds {
				pb := b.blocks[p]

				if x.N >= 0 {
					x.Args[j] = pb.out.d[x.N]
				} else {
					x.Args[j] = pb.out.r[-1-x.N]
				}
			}

			x.N = 0
		}
	}

	return nil
}

// removeTrivialPhis drops phis whose arguments are all the phi itself or a single value.
func (b *builder) removeTrivialPhis() {
	repl := map[Reg]Reg{}

	find := func(r Reg) Reg {
		for {
			x, ok := repl[r]
			if !ok {
				return r
			}

			r = x
		}
	}

	for changed := true; changed; {
		changed = false

		for _, blk := range b.f.Blocks {
			for _, x := range blk.Code {
				if x.Op != Phi {
					break
				}

				dst := find(x.Dst[0])
				if dst != x.Dst[0] {
					continue
				}

				v := Reg(-1)
				trivial := true

				for _, a := range x.Args {
					a = find(a)

					if a == dst || a == v {
						continue
					}

					if v >= 0 {
						trivial = false
						break
					}

					v = a
				}

				if trivial && v >= 0 {
					repl[dst] = v
					changed = true
				}
			}
		}
	}

	if len(repl) == 0 {
		return
	}

	for _, blk := range b.f.Blocks {
		code := blk.Code[:0]

		for _, x := range blk.Code {
			if x.Op == Phi && find(x.Dst[0]) != x.Dst[0] {
				continue
			}

			for i, a := range x.Args {
				x.Args[i] = find(a)
			}

			code = append(code, x)
		}

		blk.Code = code
	}
}

func (b *builder) inst(blk *Block, s *state, x ir.Inst, fb *fblock) (err error) {
	pop := func() Reg {
		if err != nil {
			return -1
		}

		if len(s.d) == 0 {
			e, _ := b.p.Effect(x)
			err = &errs.Underflow{Word: b.name, Need: e.In, Have: 0}

			return -1
		}

		r := s.d[len(s.d)-1]
		s.d = s.d[:len(s.d)-1]

		return r
	}

	push := func(r ...Reg) {
		s.d = append(s.d, r...)
	}

	emit := func(x Inst) Reg {
		blk.Code = append(blk.Code, x)

		if len(x.Dst) == 0 {
			return -1
		}

		return x.Dst[0]
	}

	konst := func(v int64) Reg {
		return emit(Int(b.f.newReg(), v))
	}

	bin := func(op ir.Op, l, r Reg) Reg {
		i := Bin(op, b.f.newReg(), l, r)
		i.Ty = x.Ty

		return emit(i)
	}

	switch op := x.Op.Uncached(); op {
	case ir.Nop, ir.Comment, ir.Label, ir.Flush:
	case ir.Lit:
		push(konst(x.N))
	case ir.FLit:
		push(emit(Float(b.f.newReg(), x.F)))
	case ir.Dup:
		a := pop()
		push(a, a)
	case ir.Drop:
		pop()
	case ir.Swap:
		c, a := pop(), pop()
		push(c, a)
	case ir.Over:
		c, a := pop(), pop()
		push(a, c, a)
	case ir.Rot:
		c, bb, a := pop(), pop(), pop()
		push(bb, c, a)
	case ir.Nip:
		c := pop()
		pop()
		push(c)
	case ir.Tuck:
		c, a := pop(), pop()
		push(c, a, c)
	case ir.Add, ir.Sub, ir.Mul, ir.Div, ir.Mod, ir.And, ir.Or, ir.Xor, ir.Shl, ir.Shr,
		ir.Eq, ir.Ne, ir.Lt, ir.Le, ir.Gt, ir.Ge:
		r, l := pop(), pop()

		if err == nil {
			push(bin(op, l, r))
		}
	case ir.Neg, ir.Abs, ir.Not, ir.ZeroEq, ir.ZeroLt, ir.ZeroGt:
		a := pop()

		if err == nil {
			i := Un(op, b.f.newReg(), a)
			i.Ty = x.Ty
			push(emit(i))
		}
	case ir.DupAdd, ir.DupMul:
		a := pop()

		if err == nil {
			push(bin(superOps[op], a, a))
		}
	case ir.OverAdd:
		c, a := pop(), pop()

		if err == nil {
			push(a, bin(ir.Add, c, a))
		}
	case ir.SwapSub:
		c, a := pop(), pop()

		if err == nil {
			push(bin(ir.Sub, c, a))
		}
	case ir.LitAdd, ir.LitMul, ir.Inc, ir.Dec, ir.Shl1, ir.Shr1:
		a := pop()

		if err != nil {
			break
		}

		v := int64(1)

		switch op {
		case ir.LitAdd, ir.LitMul:
			v = x.N
		case ir.Shr1:
			v = 2
		}

		push(bin(superOps[op], a, konst(v)))
	case ir.Load, ir.Load8:
		a := pop()

		if err == nil {
			push(emit(Inst{Op: Load, Sub: op, Dst: []Reg{b.f.newReg()}, Args: []Reg{a}}))
		}
	case ir.Store, ir.Store8:
		addr, v := pop(), pop()

		if err == nil {
			emit(Inst{Op: Store, Sub: op, Args: []Reg{v, addr}})
		}
	case ir.ToR:
		a := pop()
		s.r = append(s.r, a)
	case ir.FromR, ir.RFetch:
		if len(s.r) == 0 {
			return errors.New("return stack underflow")
		}

		push(s.r[len(s.r)-1])

		if op == ir.FromR {
			s.r = s.r[:len(s.r)-1]
		}
	case ir.Call:
		e, err := b.p.Effect(x)
		if err != nil {
			return err
		}

		if len(s.d) < e.In {
			return &errs.Underflow{Word: b.name, Need: e.In, Have: len(s.d)}
		}

		c := Inst{Op: Call, Name: x.Name}
		c.Args = append(c.Args, s.d[len(s.d)-e.In:]...)
		s.d = s.d[:len(s.d)-e.In]

		for i := 0; i < e.Out; i++ {
			c.Dst = append(c.Dst, b.f.newReg())
		}

		emit(c)
		push(c.Dst...)
	case ir.Return:
		emit(Ret(s.d...))
	case ir.Branch:
		emit(Goto(b.blocks[fb.succs[0]].rpo))
	case ir.BranchIf, ir.BranchIfNot:
		c := pop()

		if err != nil {
			break
		}

		if len(fb.succs) == 1 {
			emit(Goto(b.blocks[fb.succs[0]].rpo))
			break
		}

		emit(If(c, b.blocks[fb.succs[0]].rpo, b.blocks[fb.succs[1]].rpo))
	default:
		return errs.NewInternal(nil, "unsupported op %v", x.Op)
	}

	return err
}

func (b *builder) mismatch(fb *fblock, x, y int) error {
	where := fmt.Sprintf("block %d", fb.rpo)

	if fb.st < len(b.code) && b.code[fb.st].Op == ir.Label {
		where = fmt.Sprintf("L%d", b.code[fb.st].N)
	}

	return &errs.DepthMismatch{Word: b.name, Where: where, A: x, B: y}
}

func (s state) copy() state {
	return state{
		d: append([]Reg{}, s.d...),
		r: append([]Reg{}, s.r...),
	}
}
