package opt

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"tlog.app/go/errors"

	"github.com/slowlang/fifth/compiler/ir"
)

type (
	// Pass rewrites a program. It returns a new program and leaves p untouched.
	Pass interface {
		Name() string
		Run(ctx context.Context, p *ir.Program) (*ir.Program, Stats, error)
	}

	Stats map[string]int

	Level int
)

const (
	None Level = iota
	Basic
	Standard
	Aggressive
)

var levelNames = []string{
	None:       "none",
	Basic:      "basic",
	Standard:   "standard",
	Aggressive: "aggressive",
}

func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "0", "o0":
		return None, nil
	case "1", "o1":
		return Basic, nil
	case "2", "o2":
		return Standard, nil
	case "3", "o3":
		return Aggressive, nil
	}

	for l, n := range levelNames {
		if strings.EqualFold(s, n) {
			return Level(l), nil
		}
	}

	return None, errors.New("unknown optimization level: %q", s)
}

func (l Level) String() string {
	if l >= 0 && int(l) < len(levelNames) {
		return levelNames[l]
	}

	return fmt.Sprintf("Level(%d)", int(l))
}

// Add merges s2 into s.
func (s Stats) Add(s2 Stats) {
	for k, v := range s2 {
		s[k] += v
	}
}

func (s Stats) String() string {
	keys := make([]string, 0, len(s))

	for k := range s {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	var b []byte

	for i, k := range keys {
		if i != 0 {
			b = append(b, ' ')
		}

		b = fmt.Appendf(b, "%v=%d", k, s[k])
	}

	return string(b)
}

// rewrite clones p and replaces the code of every unit.
func rewrite(p *ir.Program, f func(unit string, code []ir.Inst) []ir.Inst) *ir.Program {
	q := p.Clone()

	for _, u := range q.Units() {
		q.SetCode(u, f(u, q.Code(u)))
	}

	return q
}
