// Package types defines the small type universe of the slab compiler and an
// interner that provides stable structural TypeIDs for it.
package types

import (
	"fmt"
	"strings"
)

// TypeID identifies an interned type.
type TypeID uint32

// NoTypeID is the invalid type sentinel.
const NoTypeID TypeID = 0

// Kind discriminates type descriptors.
type Kind uint8

const (
	// KindInvalid is the zero, unusable kind.
	KindInvalid Kind = iota
	// KindNone is the unit/none type.
	KindNone
	// KindBool is the boolean type.
	KindBool
	// KindInt is the 64-bit signed integer type.
	KindInt
	// KindFloat is the 64-bit floating point type.
	KindFloat
	// KindTensor is a tensor type with optional rank/shape refinement.
	KindTensor
	// KindClass is a module-class reference type. It exists only before
	// globalization; a flat program must not contain it.
	KindClass
)

// ElementType enumerates supported tensor element kinds.
type ElementType int32

const (
	// F32 is the 32-bit floating point element kind.
	F32 ElementType = iota
)

// ByteSize returns the storage size of one element.
func (e ElementType) ByteSize() int32 {
	switch e {
	case F32:
		return 4
	}
	return 0
}

func (e ElementType) String() string {
	switch e {
	case F32:
		return "f32"
	}
	return fmt.Sprintf("elem(%d)", int32(e))
}

// DynamicDim marks an unknown extent in a ranked tensor type.
const DynamicDim int64 = -1

// Type is a structural type descriptor.
type Type struct {
	Kind Kind

	// Tensor refinement. Rank < 0 means unranked; otherwise len(Dims) == Rank
	// and each dim is either a concrete extent or DynamicDim.
	Elem ElementType
	Rank int32
	Dims []int64

	// Aliasable marks a tensor that acts as a mutable reference. A
	// non-aliasable tensor is value-semantic: immutable once produced.
	Aliasable bool

	// Class name for KindClass.
	Class string
}

// IsTensor reports whether the descriptor is a tensor type.
func (t Type) IsTensor() bool { return t.Kind == KindTensor }

// IsRanked reports whether the tensor descriptor carries a rank.
func (t Type) IsRanked() bool { return t.Kind == KindTensor && t.Rank >= 0 }

func (t Type) String() string {
	switch t.Kind {
	case KindNone:
		return "none"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindClass:
		return "class<" + t.Class + ">"
	case KindTensor:
		var sb strings.Builder
		if t.Aliasable {
			sb.WriteString("tensor")
		} else {
			sb.WriteString("vtensor")
		}
		sb.WriteByte('<')
		if t.Rank >= 0 {
			for _, d := range t.Dims {
				if d == DynamicDim {
					sb.WriteByte('?')
				} else {
					fmt.Fprintf(&sb, "%d", d)
				}
				sb.WriteByte('x')
			}
		} else {
			sb.WriteString("*x")
		}
		sb.WriteString(t.Elem.String())
		sb.WriteByte('>')
		return sb.String()
	}
	return "invalid"
}

// MakeTensor builds a ranked tensor descriptor.
func MakeTensor(elem ElementType, dims []int64, aliasable bool) Type {
	d := make([]int64, len(dims))
	copy(d, dims)
	return Type{Kind: KindTensor, Elem: elem, Rank: int32(len(d)), Dims: d, Aliasable: aliasable}
}

// MakeUnrankedTensor builds the least refined tensor descriptor for elem.
func MakeUnrankedTensor(elem ElementType, aliasable bool) Type {
	return Type{Kind: KindTensor, Elem: elem, Rank: -1, Aliasable: aliasable}
}

// MakeClass builds a module-class reference descriptor.
func MakeClass(name string) Type {
	return Type{Kind: KindClass, Class: name}
}
