package errs

import (
	"fmt"

	"tlog.app/go/errors"
	"tlog.app/go/loc"
)

type (
	// Underflow is reported when code needs more stack items than are available.
	Underflow struct {
		Word string
		Need int
		Have int
	}

	// DepthMismatch is reported when control flow paths meet with different stack depths.
	DepthMismatch struct {
		Word  string
		Where string
		A, B  int
	}

	// EffectMismatch is reported when the declared effect of a word disagrees with its body.
	EffectMismatch struct {
		Word     string
		Declared string
		Inferred string
	}

	CompositionKind int

	// Composition is a type algebra failure.
	Composition struct {
		Kind CompositionKind
		A, B string
	}

	// Invalid is an SSA rule violation. Always fatal.
	Invalid struct {
		Func  string
		Rule  string
		Block int
		Inst  int
		Msg   string
	}

	// Internal is a compiler bug: a pass panicked or produced broken code.
	Internal struct {
		PC  loc.PC
		Msg string
		Err error
	}
)

const (
	TypeMismatch CompositionKind = iota
	Occurs
	ShapeMismatch
	Arity
)

// SSA rules checked by the validator.
const (
	RuleStructure = "structure"
	RuleMultiple  = "assigned multiple times"
	RuleUndefined = "never defined"
	RuleDominance = "not dominated"
	RulePhiStart  = "phi not at start"
	RulePhiPreds  = "phi incoming mismatch"
	RuleReachable = "unreachable block"
)

func (e *Underflow) Error() string {
	if e.Word == "" {
		return fmt.Sprintf("stack underflow: need %d, have %d", e.Need, e.Have)
	}

	return fmt.Sprintf("stack underflow in %v: need %d, have %d", e.Word, e.Need, e.Have)
}

func (e *DepthMismatch) Error() string {
	return fmt.Sprintf("stack depth mismatch in %v at %v: %d vs %d", e.Word, e.Where, e.A, e.B)
}

func (e *EffectMismatch) Error() string {
	return fmt.Sprintf("effect mismatch in %v: declared %v, inferred %v", e.Word, e.Declared, e.Inferred)
}

func (k CompositionKind) String() string {
	switch k {
	case TypeMismatch:
		return "type mismatch"
	case Occurs:
		return "occurs check"
	case ShapeMismatch:
		return "compound shape mismatch"
	case Arity:
		return "arity mismatch"
	default:
		return fmt.Sprintf("CompositionKind(%d)", int(k))
	}
}

func (e *Composition) Error() string {
	return fmt.Sprintf("cannot compose: %v: %v vs %v", e.Kind, e.A, e.B)
}

func (e *Invalid) Error() string {
	b := fmt.Appendf(nil, "invalid ssa: %v", e.Rule)

	if e.Func != "" {
		b = fmt.Appendf(b, " in %v", e.Func)
	}

	if e.Block >= 0 {
		b = fmt.Appendf(b, " (block %d, inst %d)", e.Block, e.Inst)
	}

	if e.Msg != "" {
		b = fmt.Appendf(b, ": %v", e.Msg)
	}

	return string(b)
}

func (e *Internal) Error() string {
	_, file, line := e.PC.NameFileLine()
	b := fmt.Appendf(nil, "internal error at %v:%d: %v", file, line, e.Msg)

	if e.Err != nil {
		b = fmt.Appendf(b, ": %v", e.Err)
	}

	return string(b)
}

func (e *Internal) Unwrap() error { return e.Err }

// NewInternal records the caller as the origin.
func NewInternal(err error, format string, args ...any) *Internal {
	return &Internal{
		PC:  loc.Caller(1),
		Msg: fmt.Sprintf(format, args...),
		Err: err,
	}
}

// Recovered converts a recovered panic value into an Internal error.
func Recovered(p any) *Internal {
	err, ok := p.(error)
	if !ok {
		err = errors.New("panic: %v", p)
	}

	return &Internal{
		PC:  loc.Caller(2),
		Msg: "recovered",
		Err: err,
	}
}

func IsInvalid(err error) bool {
	var e *Invalid
	return errors.As(err, &e)
}
