package expr

// Value is the result of evaluating an expression: a number or a boolean.
type Value struct {
	num    float64
	truth  bool
	isBool bool
}

// Number wraps a float64 as a Value.
func Number(f float64) Value { return Value{num: f} }

// Bool wraps a bool as a Value.
func Bool(b bool) Value { return Value{truth: b, isBool: true} }

// IsBool reports whether the value is boolean.
func (v Value) IsBool() bool { return v.isBool }

// Number returns the numeric value, coercing booleans to {0,1}.
func (v Value) Number() float64 {
	if v.isBool {
		if v.truth {
			return 1
		}
		return 0
	}
	return v.num
}

// Truth returns the boolean value; numbers are true when nonzero.
func (v Value) Truth() bool {
	if v.isBool {
		return v.truth
	}
	return v.num != 0
}
