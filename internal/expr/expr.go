// Package expr compiles and evaluates the arithmetic expressions used in
// utility specification tables. Expressions are pure functions of a Context:
// they read scalar fields and skim matrix cells and produce a number or a
// boolean. Booleans coerce to {0,1} in arithmetic.
package expr

import (
	"github.com/rotisserie/eris"
)

// Sentinel errors surfaced by evaluation. Callers should test with errors.Is.
var (
	// ErrUndefined is returned when an expression references a field, skim
	// matrix, or function that the Context does not provide.
	ErrUndefined = eris.New("expr: undefined name")

	// ErrType is returned when an expression yields a value that is neither
	// numeric nor boolean (for example a bare string literal).
	ErrType = eris.New("expr: type error")
)

// Context supplies the named data an expression reads: scalar fields by name,
// and skim matrix cells resolved for the origin-destination pair under
// evaluation. Lookups report found=false for unknown names; evaluation turns
// that into ErrUndefined.
type Context interface {
	Field(name string) (float64, bool)
	Skim(name string) (float64, bool)
}

// MapContext is a Context backed by plain maps. Used by tests and the CLI
// evaluate command; simulation runs use richer contexts.
type MapContext struct {
	Fields map[string]float64
	Skims  map[string]float64
}

// Field returns the named scalar field.
func (m MapContext) Field(name string) (float64, bool) {
	v, ok := m.Fields[name]
	return v, ok
}

// Skim returns the named skim cell.
func (m MapContext) Skim(name string) (float64, bool) {
	v, ok := m.Skims[name]
	return v, ok
}

// Program is a compiled expression. Programs are immutable and safe for
// concurrent evaluation against distinct contexts.
type Program struct {
	src  string
	root node
}

// Compile parses src into a Program. Unknown functions and malformed syntax
// fail here rather than at evaluation time.
func Compile(src string) (*Program, error) {
	p := newParser(src)
	root, err := p.parse()
	if err != nil {
		return nil, eris.Wrapf(err, "expr: compile %q", src)
	}
	return &Program{src: src, root: root}, nil
}

// MustCompile is Compile that panics on error. For fixed expressions in tests.
func MustCompile(src string) *Program {
	p, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return p
}

// Source returns the original expression text.
func (p *Program) Source() string { return p.src }

// Eval evaluates the program against ctx.
func (p *Program) Eval(ctx Context) (Value, error) {
	v, err := p.root.eval(ctx)
	if err != nil {
		return Value{}, eris.Wrapf(err, "expr: eval %q", p.src)
	}
	return v, nil
}

// EvalNumber evaluates the program and coerces the result to a float64,
// mapping booleans to {0,1}.
func (p *Program) EvalNumber(ctx Context) (float64, error) {
	v, err := p.Eval(ctx)
	if err != nil {
		return 0, err
	}
	return v.Number(), nil
}
