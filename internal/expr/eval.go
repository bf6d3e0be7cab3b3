package expr

import (
	"math"

	"github.com/rotisserie/eris"
)

type node interface {
	eval(ctx Context) (Value, error)
}

type numberNode struct{ value float64 }

func (n *numberNode) eval(Context) (Value, error) { return Number(n.value), nil }

type fieldNode struct{ name string }

func (n *fieldNode) eval(ctx Context) (Value, error) {
	v, ok := ctx.Field(n.name)
	if !ok {
		return Value{}, eris.Wrapf(ErrUndefined, "field %q", n.name)
	}
	return Number(v), nil
}

type skimNode struct{ name string }

func (n *skimNode) eval(ctx Context) (Value, error) {
	v, ok := ctx.Skim(n.name)
	if !ok {
		return Value{}, eris.Wrapf(ErrUndefined, "skim matrix %q", n.name)
	}
	return Number(v), nil
}

type negNode struct{ operand node }

func (n *negNode) eval(ctx Context) (Value, error) {
	v, err := n.operand.eval(ctx)
	if err != nil {
		return Value{}, err
	}
	return Number(-v.Number()), nil
}

type notNode struct{ operand node }

func (n *notNode) eval(ctx Context) (Value, error) {
	v, err := n.operand.eval(ctx)
	if err != nil {
		return Value{}, err
	}
	return Bool(!v.Truth()), nil
}

type arithNode struct {
	op       string
	lhs, rhs node
}

func (n *arithNode) eval(ctx Context) (Value, error) {
	l, err := n.lhs.eval(ctx)
	if err != nil {
		return Value{}, err
	}
	r, err := n.rhs.eval(ctx)
	if err != nil {
		return Value{}, err
	}
	a, b := l.Number(), r.Number()
	switch n.op {
	case "+":
		return Number(a + b), nil
	case "-":
		return Number(a - b), nil
	case "*":
		return Number(a * b), nil
	case "/":
		// IEEE semantics: x/0 is ±Inf, 0/0 is NaN. The logit layer rejects
		// rows these poison rather than hiding them here.
		return Number(a / b), nil
	}
	return Value{}, eris.Errorf("unknown operator %q", n.op)
}

type compareNode struct {
	op       string
	lhs, rhs node
}

func (n *compareNode) eval(ctx Context) (Value, error) {
	l, err := n.lhs.eval(ctx)
	if err != nil {
		return Value{}, err
	}
	r, err := n.rhs.eval(ctx)
	if err != nil {
		return Value{}, err
	}
	a, b := l.Number(), r.Number()
	switch n.op {
	case "==":
		return Bool(a == b), nil
	case "!=":
		return Bool(a != b), nil
	case "<":
		return Bool(a < b), nil
	case "<=":
		return Bool(a <= b), nil
	case ">":
		return Bool(a > b), nil
	case ">=":
		return Bool(a >= b), nil
	}
	return Value{}, eris.Errorf("unknown comparison %q", n.op)
}

type logicalNode struct {
	op       string
	lhs, rhs node
}

func (n *logicalNode) eval(ctx Context) (Value, error) {
	l, err := n.lhs.eval(ctx)
	if err != nil {
		return Value{}, err
	}
	r, err := n.rhs.eval(ctx)
	if err != nil {
		return Value{}, err
	}
	if n.op == "and" {
		return Bool(l.Truth() && r.Truth()), nil
	}
	return Bool(l.Truth() || r.Truth()), nil
}

type builtin struct {
	minArgs int
	maxArgs int // 0 means unbounded
	arity   string
	apply   func(args []float64) float64
}

var builtins = map[string]builtin{
	"log":   {1, 1, "1 arg", func(a []float64) float64 { return math.Log(a[0]) }},
	"log1p": {1, 1, "1 arg", func(a []float64) float64 { return math.Log1p(a[0]) }},
	"exp":   {1, 1, "1 arg", func(a []float64) float64 { return math.Exp(a[0]) }},
	"sqrt":  {1, 1, "1 arg", func(a []float64) float64 { return math.Sqrt(a[0]) }},
	"abs":   {1, 1, "1 arg", func(a []float64) float64 { return math.Abs(a[0]) }},
	"min": {2, 0, "2+ args", func(a []float64) float64 {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Min(m, v)
		}
		return m
	}},
	"max": {2, 0, "2+ args", func(a []float64) float64 {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Max(m, v)
		}
		return m
	}},
	// clip(x, lower, upper) bounds x to [lower, upper].
	"clip": {3, 3, "3 args", func(a []float64) float64 {
		return math.Min(math.Max(a[0], a[1]), a[2])
	}},
}

type callNode struct {
	name string
	fn   builtin
	args []node
}

func (n *callNode) eval(ctx Context) (Value, error) {
	args := make([]float64, len(n.args))
	for i, arg := range n.args {
		v, err := arg.eval(ctx)
		if err != nil {
			return Value{}, err
		}
		args[i] = v.Number()
	}
	return Number(n.fn.apply(args)), nil
}
