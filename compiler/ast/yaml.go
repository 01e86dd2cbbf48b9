package ast

import (
	"gopkg.in/yaml.v3"
	"tlog.app/go/errors"
)

// Parse loads a definition list exchanged as YAML:
//
//	words:
//	  - name: square
//	    effect: "( n:int -- n:int )"
//	    body: [dup, "*"]
//	main: [5, square]
func Parse(name string, text []byte) (*File, error) {
	var doc yaml.Node

	err := yaml.Unmarshal(text, &doc)
	if err != nil {
		return nil, errors.Wrap(err, "yaml")
	}

	f := &File{Name: name}

	if doc.Kind == 0 {
		return f, nil
	}

	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 {
		return nil, errors.New("%v: expected a single document", name)
	}

	root := doc.Content[0]

	if root.Kind != yaml.MappingNode {
		return nil, posErr(root, "expected mapping at top level")
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		k, v := root.Content[i], root.Content[i+1]

		switch k.Value {
		case "words":
			f.Words, err = parseDefs(v)
		case "main":
			f.Main, err = parseBody(v)
		default:
			err = posErr(k, "unknown key %q", k.Value)
		}

		if err != nil {
			return nil, errors.Wrap(err, "%v", k.Value)
		}
	}

	seen := map[string]struct{}{}

	for _, d := range f.Words {
		if _, ok := seen[d.Name]; ok {
			return nil, errors.New("%d:%d: word %v redefined", d.Line, d.Col, d.Name)
		}

		seen[d.Name] = struct{}{}
	}

	return f, nil
}

func parseDefs(n *yaml.Node) (defs []*Def, err error) {
	if n.Kind != yaml.SequenceNode {
		return nil, posErr(n, "expected list of words")
	}

	for _, x := range n.Content {
		d, err := parseDef(x)
		if err != nil {
			return nil, err
		}

		defs = append(defs, d)
	}

	return defs, nil
}

func parseDef(n *yaml.Node) (d *Def, err error) {
	if n.Kind != yaml.MappingNode {
		return nil, posErr(n, "expected word definition")
	}

	d = &Def{Base: pos(n)}

	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]

		switch k.Value {
		case "name":
			err = v.Decode(&d.Name)
		case "effect":
			err = v.Decode(&d.Effect)
		case "inline":
			err = v.Decode(&d.Inline)
		case "body":
			d.Body, err = parseBody(v)
		default:
			err = posErr(k, "unknown key %q", k.Value)
		}

		if err != nil {
			return nil, errors.Wrap(err, "word %v", d.Name)
		}
	}

	if d.Name == "" {
		return nil, posErr(n, "word without name")
	}

	return d, nil
}

func parseBody(n *yaml.Node) (body []Node, err error) {
	if n.Kind == yaml.ScalarNode && n.Tag == "!!null" {
		return nil, nil
	}

	if n.Kind != yaml.SequenceNode {
		return nil, posErr(n, "expected list")
	}

	for _, x := range n.Content {
		it, err := parseItem(x)
		if err != nil {
			return nil, err
		}

		body = append(body, it)
	}

	return body, nil
}

func parseItem(n *yaml.Node) (Node, error) {
	b := pos(n)

	switch n.Kind {
	case yaml.ScalarNode:
	case yaml.MappingNode:
		return parseControl(n)
	default:
		return nil, posErr(n, "unexpected node")
	}

	switch n.Tag {
	case "!!int":
		var v int64

		if err := n.Decode(&v); err != nil {
			return nil, posErr(n, "bad int %q", n.Value)
		}

		return &Int{Base: b, Value: v}, nil
	case "!!float":
		var v float64

		if err := n.Decode(&v); err != nil {
			return nil, posErr(n, "bad float %q", n.Value)
		}

		return &Float{Base: b, Value: v}, nil
	case "!!str":
		return &Word{Base: b, Name: n.Value}, nil
	default:
		return nil, posErr(n, "unexpected %v value %q", n.Tag, n.Value)
	}
}

func parseControl(n *yaml.Node) (_ Node, err error) {
	keys := map[string]*yaml.Node{}

	for i := 0; i+1 < len(n.Content); i += 2 {
		keys[n.Content[i].Value] = n.Content[i+1]
	}

	body := func(k string) []Node {
		if err != nil {
			return nil
		}

		v, ok := keys[k]
		if !ok {
			return nil
		}

		var r []Node

		r, err = parseBody(v)

		return r
	}

	only := func(ks ...string) error {
	outer:
		for k := range keys {
			for _, x := range ks {
				if k == x {
					continue outer
				}
			}

			return posErr(n, "unexpected key %q", k)
		}

		return nil
	}

	b := pos(n)

	switch {
	case keys["if"] != nil:
		x := &If{Base: b, Then: body("if"), Else: body("else")}

		if err == nil {
			err = only("if", "else")
		}

		return x, err
	case keys["begin"] != nil && keys["until"] != nil:
		var until bool

		if err := keys["until"].Decode(&until); err != nil || !until {
			return nil, posErr(keys["until"], "until must be true")
		}

		x := &Until{Base: b, Body: body("begin")}

		if err == nil {
			err = only("begin", "until")
		}

		return x, err
	case keys["begin"] != nil && keys["while"] != nil:
		x := &While{Base: b, Cond: body("begin"), Body: body("while")}

		if err == nil {
			err = only("begin", "while")
		}

		return x, err
	default:
		return nil, posErr(n, "unknown control structure")
	}
}

func pos(n *yaml.Node) Base {
	return Base{Line: n.Line, Col: n.Column}
}

func posErr(n *yaml.Node, f string, args ...any) error {
	return errors.Wrap(errors.New(f, args...), "%d:%d", n.Line, n.Column)
}
