package ir

import (
	"fmt"
	"strings"

	"slab/internal/types"
)

// OperandKind distinguishes operand sources.
type OperandKind uint8

const (
	// OperandConst is an inline constant operand.
	OperandConst OperandKind = iota
	// OperandUse reads a local.
	OperandUse
)

// Operand is an instruction input.
type Operand struct {
	Kind OperandKind
	Type types.TypeID

	Const Const
	Local LocalID
}

// UseOf builds a local-use operand.
func UseOf(l LocalID, t types.TypeID) Operand {
	return Operand{Kind: OperandUse, Type: t, Local: l}
}

// ConstOf builds an inline constant operand.
func ConstOf(c Const) Operand {
	return Operand{Kind: OperandConst, Type: c.Type, Const: c}
}

// ConstKind enumerates constant kinds.
type ConstKind uint8

const (
	// ConstNone is the unit constant.
	ConstNone ConstKind = iota
	// ConstBool is a boolean constant.
	ConstBool
	// ConstInt is an integer constant.
	ConstInt
	// ConstFloat is a floating-point constant.
	ConstFloat
	// ConstTensor is a dense tensor literal.
	ConstTensor
	// ConstCellRef makes a cell's initializer refer to another cell's value.
	// Slot inlining folds chains of these to a fixed point.
	ConstCellRef
)

// Const is a literal value usable as an operand or a cell initializer.
type Const struct {
	Kind ConstKind
	Type types.TypeID

	BoolValue  bool
	IntValue   int64
	FloatValue float64
	Tensor     *TensorLit
	Cell       CellID
}

// TensorLit is a dense, value-semantic tensor literal.
type TensorLit struct {
	Elem types.ElementType
	Dims []int64
	Data []float32
}

// NumElements returns the dense element count of the literal.
func (t *TensorLit) NumElements() int64 {
	n := int64(1)
	for _, d := range t.Dims {
		n *= d
	}
	return n
}

// NoneConst builds the unit constant.
func NoneConst(t types.TypeID) Const {
	return Const{Kind: ConstNone, Type: t}
}

// BoolConst builds a boolean constant.
func BoolConst(v bool, t types.TypeID) Const {
	return Const{Kind: ConstBool, Type: t, BoolValue: v}
}

// IntConst builds an integer constant.
func IntConst(v int64, t types.TypeID) Const {
	return Const{Kind: ConstInt, Type: t, IntValue: v}
}

// FloatConst builds a floating-point constant.
func FloatConst(v float64, t types.TypeID) Const {
	return Const{Kind: ConstFloat, Type: t, FloatValue: v}
}

// TensorConst builds a dense tensor literal constant.
func TensorConst(lit *TensorLit, t types.TypeID) Const {
	return Const{Kind: ConstTensor, Type: t, Tensor: lit}
}

// CellRefConst builds an initializer constant referring to another cell.
func CellRefConst(cell CellID, t types.TypeID) Const {
	return Const{Kind: ConstCellRef, Type: t, Cell: cell}
}

func (c Const) String() string {
	switch c.Kind {
	case ConstNone:
		return "none"
	case ConstBool:
		return fmt.Sprintf("%t", c.BoolValue)
	case ConstInt:
		return fmt.Sprintf("%d", c.IntValue)
	case ConstFloat:
		return fmt.Sprintf("%g", c.FloatValue)
	case ConstCellRef:
		return fmt.Sprintf("cellref(%d)", c.Cell)
	case ConstTensor:
		if c.Tensor == nil {
			return "dense<>"
		}
		var sb strings.Builder
		sb.WriteString("dense<[")
		for i, v := range c.Tensor.Data {
			if i > 0 {
				sb.WriteString(", ")
			}
			if i >= 8 {
				sb.WriteString("...")
				break
			}
			fmt.Fprintf(&sb, "%g", v)
		}
		sb.WriteString("]>")
		return sb.String()
	}
	return "const?"
}
