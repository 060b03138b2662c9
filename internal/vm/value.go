package vm

import "fmt"

// ValueKind identifies the variant held by a Value.
type ValueKind uint8

const (
	// VKNone is the empty value.
	VKNone ValueKind = iota
	// VKBool holds a boolean.
	VKBool
	// VKInt holds a 64-bit signed integer.
	VKInt
	// VKFloat holds a 64-bit float.
	VKFloat
	// VKTensor holds a reference-counted tensor.
	VKTensor
)

func (k ValueKind) String() string {
	switch k {
	case VKNone:
		return "none"
	case VKBool:
		return "bool"
	case VKInt:
		return "int"
	case VKFloat:
		return "float"
	case VKTensor:
		return "tensor"
	}
	return fmt.Sprintf("ValueKind(%d)", k)
}

// WrongVariantError reports an access of a Value through the wrong variant.
// The boundary is language neutral, so variant mismatches are fallible
// conversions rather than assertions.
type WrongVariantError struct {
	Want ValueKind
	Got  ValueKind
}

func (e *WrongVariantError) Error() string {
	return fmt.Sprintf("runtime value holds %s, not %s", e.Got, e.Want)
}

// Value is the tagged union crossing the invocation boundary. The tensor
// variant owns one reference to its buffer.
type Value struct {
	kind ValueKind

	b bool
	i int64
	f float64
	t Ref[*Tensor]
}

// None builds the empty value.
func None() Value { return Value{kind: VKNone} }

// Bool builds a boolean value.
func Bool(v bool) Value { return Value{kind: VKBool, b: v} }

// Int builds an integer value.
func Int(v int64) Value { return Value{kind: VKInt, i: v} }

// Float builds a floating-point value.
func Float(v float64) Value { return Value{kind: VKFloat, f: v} }

// TensorValue wraps a tensor handle, taking ownership of one reference.
func TensorValue(r Ref[*Tensor]) Value { return Value{kind: VKTensor, t: r} }

// Kind returns the held variant.
func (v Value) Kind() ValueKind { return v.kind }

// IsNone reports whether the value is empty.
func (v Value) IsNone() bool { return v.kind == VKNone }

// AsBool extracts the boolean variant.
func (v Value) AsBool() (bool, error) {
	if v.kind != VKBool {
		return false, &WrongVariantError{Want: VKBool, Got: v.kind}
	}
	return v.b, nil
}

// AsInt extracts the integer variant.
func (v Value) AsInt() (int64, error) {
	if v.kind != VKInt {
		return 0, &WrongVariantError{Want: VKInt, Got: v.kind}
	}
	return v.i, nil
}

// AsFloat extracts the floating-point variant.
func (v Value) AsFloat() (float64, error) {
	if v.kind != VKFloat {
		return 0, &WrongVariantError{Want: VKFloat, Got: v.kind}
	}
	return v.f, nil
}

// AsTensor extracts the tensor variant without transferring ownership.
func (v Value) AsTensor() (Ref[*Tensor], error) {
	if v.kind != VKTensor {
		return Ref[*Tensor]{}, &WrongVariantError{Want: VKTensor, Got: v.kind}
	}
	return v.t, nil
}

// Retain returns a copy of the value owning its own tensor reference.
func (v Value) Retain() Value {
	if v.kind == VKTensor {
		v.t = v.t.Retain()
	}
	return v
}

// Release drops the value's tensor reference, if any.
func (v *Value) Release() {
	if v.kind == VKTensor {
		v.t.Release()
	}
	v.kind = VKNone
}
