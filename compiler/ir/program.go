package ir

import (
	"fmt"
	"sort"

	"tlog.app/go/errors"

	"github.com/slowlang/fifth/compiler/errs"
	"github.com/slowlang/fifth/compiler/tp"
)

type (
	Word struct {
		Name   string
		Code   []Inst
		Effect Effect
		Type   tp.Effect
		Inline bool
	}

	// Program is the flat form of a compilation unit.
	Program struct {
		Main  []Inst
		Words map[string]*Word
	}
)

// MainUnit is the unit name of the main sequence.
const MainUnit = ""

func NewProgram() *Program {
	return &Program{Words: map[string]*Word{}}
}

func (p *Program) Clone() *Program {
	r := &Program{
		Main:  clone(p.Main),
		Words: make(map[string]*Word, len(p.Words)),
	}

	for name, w := range p.Words {
		r.Words[name] = w.Clone()
	}

	return r
}

func (w *Word) Clone() *Word {
	c := *w
	c.Code = clone(w.Code)

	return &c
}

// Names returns word names in sorted order.
func (p *Program) Names() []string {
	r := make([]string, 0, len(p.Words))

	for name := range p.Words {
		r = append(r, name)
	}

	sort.Strings(r)

	return r
}

// Units returns main followed by all words in sorted order.
func (p *Program) Units() []string {
	return append([]string{MainUnit}, p.Names()...)
}

func (p *Program) Code(unit string) []Inst {
	if unit == MainUnit {
		return p.Main
	}

	if w := p.Words[unit]; w != nil {
		return w.Code
	}

	return nil
}

func (p *Program) SetCode(unit string, code []Inst) {
	if unit == MainUnit {
		p.Main = code
		return
	}

	p.Words[unit].Code = code
}

// Effect resolves the stack effect of x, including calls.
func (p *Program) Effect(x Inst) (Effect, error) {
	if x.Op != Call {
		return x.Op.Effect(), nil
	}

	w := p.Words[x.Name]
	if w == nil {
		return Effect{}, errors.New("unknown word: %v", x.Name)
	}

	return w.Effect, nil
}

// Len is the number of instructions in all units.
func (p *Program) Len() (n int) {
	n = len(p.Main)

	for _, w := range p.Words {
		n += len(w.Code)
	}

	return n
}

// NextLabel returns a label id not used anywhere in the program.
func (p *Program) NextLabel() int64 {
	var m int64

	for _, u := range p.Units() {
		for _, x := range p.Code(u) {
			if x.Op == Label && x.N >= m {
				m = x.N + 1
			}
		}
	}

	return m
}

// Check rejects unresolved call targets and broken labels.
func (p *Program) Check() error {
	for _, u := range p.Units() {
		labels := map[int64]struct{}{}

		for _, x := range p.Code(u) {
			switch x.Op {
			case Call:
				if p.Words[x.Name] == nil {
					return errors.New("%v: unknown word: %v", unitName(u), x.Name)
				}
			case Label:
				if _, ok := labels[x.N]; ok {
					return errors.New("%v: duplicate label L%d", unitName(u), x.N)
				}

				labels[x.N] = struct{}{}
			case LitAdd, LitMul, Lit, FLit, Nop, Comment:
			default:
				if x.Op >= numOps {
					return errors.New("%v: bad op %v", unitName(u), x.Op)
				}
			}
		}

		for _, x := range p.Code(u) {
			if !x.Op.Jump() {
				continue
			}

			if _, ok := labels[x.N]; !ok {
				return errors.New("%v: branch to undefined label L%d", unitName(u), x.N)
			}
		}
	}

	return nil
}

// Verify checks the stack discipline: every unit analyzes without error,
// main takes no inputs and each word body agrees with its cached effect.
func (p *Program) Verify() error {
	err := p.Check()
	if err != nil {
		return err
	}

	e, err := p.Analyze(MainUnit, p.Main)
	if err != nil {
		return errors.Wrap(err, "main")
	}

	if e.In != 0 {
		return &errs.Underflow{Word: "main", Need: e.In}
	}

	for _, name := range p.Names() {
		w := p.Words[name]

		e, err := p.Analyze(name, w.Code)
		if err != nil {
			return errors.Wrap(err, "word %v", name)
		}

		if e.Arity() != w.Effect.Arity() || e.In > w.Effect.In {
			return &errs.EffectMismatch{Word: name, Declared: w.Effect.String(), Inferred: e.String()}
		}
	}

	return nil
}

// Update recomputes cached word effects until they settle.
func (p *Program) Update() error {
	names := p.Names()

	for iter := 0; iter <= len(names); iter++ {
		changed := false

		for _, name := range names {
			w := p.Words[name]

			e, err := p.Analyze(name, w.Code)
			if err != nil {
				return errors.Wrap(err, "word %v", name)
			}

			if e != w.Effect {
				w.Effect = e
				changed = true
			}
		}

		if !changed {
			break
		}
	}

	return nil
}

// Stable reports whether a and b have the same units with the same
// instruction counts and instruction multisets.
func Stable(a, b *Program) bool {
	if len(a.Words) != len(b.Words) {
		return false
	}

	for name := range a.Words {
		if b.Words[name] == nil {
			return false
		}
	}

	for _, u := range a.Units() {
		if !sameMultiset(a.Code(u), b.Code(u)) {
			return false
		}
	}

	return true
}

func sameMultiset(a, b []Inst) bool {
	if len(a) != len(b) {
		return false
	}

	cnt := make(map[Inst]int, len(a))

	for _, x := range a {
		cnt[x]++
	}

	for _, x := range b {
		cnt[x]--

		if cnt[x] < 0 {
			return false
		}
	}

	return true
}

func (p *Program) String() string {
	return string(p.Append(nil))
}

func (p *Program) Append(b []byte) []byte {
	for _, name := range p.Names() {
		w := p.Words[name]

		b = fmt.Appendf(b, ": %v %v", name, w.Effect)

		if w.Inline {
			b = append(b, " inline"...)
		}

		b = append(b, '\n')
		b = AppendCode(b, w.Code)
		b = append(b, ";\n\n"...)
	}

	b = append(b, "main:\n"...)
	b = AppendCode(b, p.Main)

	return b
}

func AppendCode(b []byte, code []Inst) []byte {
	for _, x := range code {
		if x.Op != Label {
			b = append(b, '\t')
		}

		b = x.Append(b)
		b = append(b, '\n')
	}

	return b
}

func unitName(u string) string {
	if u == MainUnit {
		return "main"
	}

	return u
}

func clone[T any](s []T) []T {
	if s == nil {
		return nil
	}

	return append([]T{}, s...)
}
