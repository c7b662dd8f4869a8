package projection

import (
	"fmt"
)

// ParseShape parses a shape expression such as
//
//	Name,Products{Name,Price},Tags
//
// Braces give a navigation its own selection. A dotted path such as
// "Products.Tags" includes every segment but the last as a navigation.
func ParseShape(expr string) (*Shape, error) {
	p := &shapeParser{input: expr}

	shape, err := p.parseList()
	if err != nil {
		return nil, err
	}

	p.skipSpace()
	if p.pos < len(p.input) {
		return nil, p.errorf("unexpected %q", p.input[p.pos])
	}
	return shape, nil
}

type shapeParser struct {
	input string
	pos   int
}

func (p *shapeParser) parseList() (*Shape, error) {
	shape := &Shape{}

	p.skipSpace()
	if c := p.peek(); c == 0 || c == '}' {
		return shape, nil
	}

	for {
		if err := p.parseItem(shape); err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peek() != ',' {
			return shape, nil
		}
		p.pos++
	}
}

func (p *shapeParser) parseItem(into *Shape) error {
	var path []string
	for {
		p.skipSpace()
		name, err := p.ident()
		if err != nil {
			return err
		}
		path = append(path, name)

		p.skipSpace()
		if p.peek() != '.' {
			break
		}
		p.pos++
	}

	var child *Shape
	if p.peek() == '{' {
		p.pos++
		var err error
		if child, err = p.parseList(); err != nil {
			return err
		}
		p.skipSpace()
		if p.peek() != '}' {
			return p.errorf("missing closing brace")
		}
		p.pos++
	}

	last := path[len(path)-1]
	leaf := into
	if len(path) > 1 {
		leaf = &Shape{}
	}
	if child != nil {
		leaf.Include(last, child)
	} else {
		leaf.Select(last)
	}
	if len(path) == 1 {
		return nil
	}

	for i := len(path) - 2; i >= 1; i-- {
		leaf = (&Shape{}).Include(path[i], leaf)
	}
	into.Include(path[0], leaf)
	return nil
}

func (p *shapeParser) ident() (string, error) {
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		isLetter := c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
		isDigit := c >= '0' && c <= '9'
		if !isLetter && !(isDigit && p.pos > start) {
			break
		}
		p.pos++
	}
	if p.pos == start {
		if p.pos < len(p.input) {
			return "", p.errorf("expected a name, found %q", p.input[p.pos])
		}
		return "", p.errorf("expected a name")
	}
	return p.input[start:p.pos], nil
}

func (p *shapeParser) peek() byte {
	if p.pos < len(p.input) {
		return p.input[p.pos]
	}
	return 0
}

func (p *shapeParser) skipSpace() {
	for p.pos < len(p.input) {
		switch p.input[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *shapeParser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s at position %d in %q",
		ErrInvalidShape, fmt.Sprintf(format, args...), p.pos, p.input)
}
