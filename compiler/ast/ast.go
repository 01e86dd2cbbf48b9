package ast

type (
	Node interface {
		Position() Base
	}

	Base struct {
		Line int
		Col  int
	}

	// File is a compilation unit: word definitions followed by the main sequence.
	File struct {
		Name  string
		Words []*Def
		Main  []Node
	}

	Def struct {
		Base `tlog:",embed"`

		Name   string
		Effect string // declared stack effect, optional: "( a b -- c )"
		Inline bool

		Body []Node
	}

	Int struct {
		Base `tlog:",embed"`

		Value int64
	}

	Float struct {
		Base `tlog:",embed"`

		Value float64
	}

	// Word is a reference to a primitive or a defined word.
	Word struct {
		Base `tlog:",embed"`

		Name string
	}

	If struct {
		Base `tlog:",embed"`

		Then []Node
		Else []Node
	}

	// Until is begin ... until.
	Until struct {
		Base `tlog:",embed"`

		Body []Node
	}

	// While is begin Cond while Body repeat.
	While struct {
		Base `tlog:",embed"`

		Cond []Node
		Body []Node
	}
)

func (b Base) Position() Base { return b }

// Lookup finds a definition by name.
func (f *File) Lookup(name string) *Def {
	for _, d := range f.Words {
		if d.Name == name {
			return d
		}
	}

	return nil
}
