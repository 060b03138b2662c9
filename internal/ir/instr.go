package ir

import "slab/internal/types"

// InstrKind enumerates instruction kinds.
type InstrKind uint8

const (
	// InstrNop is a no-op left behind by rewrites; printers skip it.
	InstrNop InstrKind = iota
	// InstrConst materializes a constant.
	InstrConst
	// InstrCopy forwards a value to a new local.
	InstrCopy
	// InstrCellLoad reads a global storage cell.
	InstrCellLoad
	// InstrCellStore writes a global storage cell.
	InstrCellStore
	// InstrCall invokes another function in the program.
	InstrCall
	// InstrPrimOp applies a pure arithmetic primitive.
	InstrPrimOp
	// InstrToValue produces a value-semantic copy of an aliasable tensor.
	InstrToValue
	// InstrToAlias produces a fresh aliasable reference holding a copy of a
	// value-semantic tensor.
	InstrToAlias
	// InstrOverwrite stores a value-semantic tensor into an aliasable tensor
	// in place; the write is observable through every alias of the target.
	InstrOverwrite
	// InstrBoundCast converts between refinements of a tensor type. Widening
	// is static; narrowing is checked at run time and fails the invocation
	// when the value does not satisfy the bound.
	InstrBoundCast

	// Object-graph instructions. They exist only before globalization; a
	// globalized program containing one is a post-condition violation.

	// InstrAttrGet reads an attribute of a module instance.
	InstrAttrGet
	// InstrAttrSet writes an attribute of a module instance.
	InstrAttrSet
	// InstrMethodCall invokes a method on a module instance.
	InstrMethodCall
)

// Instr is a kind-tagged instruction.
type Instr struct {
	Kind InstrKind

	Const      ConstInstr
	Copy       CopyInstr
	CellLoad   CellLoadInstr
	CellStore  CellStoreInstr
	Call       CallInstr
	PrimOp     PrimOpInstr
	ToValue    ToValueInstr
	ToAlias    ToAliasInstr
	Overwrite  OverwriteInstr
	BoundCast  BoundCastInstr
	AttrGet    AttrGetInstr
	AttrSet    AttrSetInstr
	MethodCall MethodCallInstr
}

// ConstInstr materializes Value into Dst.
type ConstInstr struct {
	Dst   LocalID
	Value Const
}

// CopyInstr forwards Src into Dst.
type CopyInstr struct {
	Dst LocalID
	Src Operand
}

// CellLoadInstr reads Cell into Dst.
type CellLoadInstr struct {
	Dst  LocalID
	Cell CellID
}

// CellStoreInstr writes Src into Cell.
type CellStoreInstr struct {
	Cell CellID
	Src  Operand
}

// Callee is a resolved call target.
type Callee struct {
	Func FuncID
	Name string
}

// CallInstr invokes Callee with Args; results land in Dsts in order.
type CallInstr struct {
	Dsts   []LocalID
	Callee Callee
	Args   []Operand
}

// PrimOpKind enumerates the arithmetic primitives the core carries. The full
// operator surface lives with an external collaborator; these cover what the
// passes and the boundary runtime need.
type PrimOpKind uint8

const (
	// OpAdd adds two ints, two floats, or two tensors elementwise.
	OpAdd PrimOpKind = iota
	// OpSub subtracts like OpAdd.
	OpSub
	// OpMul multiplies like OpAdd.
	OpMul
	// OpNeg negates one int, float, or tensor.
	OpNeg
)

func (k PrimOpKind) String() string {
	switch k {
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpMul:
		return "mul"
	case OpNeg:
		return "neg"
	}
	return "op?"
}

// PrimOpInstr applies Op to Args and stores the result in Dst. Primitives
// are pure: they read their tensor operands and never write through them.
type PrimOpInstr struct {
	Dst  LocalID
	Op   PrimOpKind
	Args []Operand
}

// ToValueInstr copies the aliasable tensor Src into a fresh value-semantic
// tensor Dst.
type ToValueInstr struct {
	Dst LocalID
	Src Operand
}

// ToAliasInstr copies the value-semantic tensor Src into a fresh aliasable
// tensor Dst.
type ToAliasInstr struct {
	Dst LocalID
	Src Operand
}

// OverwriteInstr writes Src over the contents of the aliasable Target.
type OverwriteInstr struct {
	Target LocalID
	Src    Operand
}

// BoundCastInstr converts Src to the refinement Type and stores it in Dst.
type BoundCastInstr struct {
	Dst  LocalID
	Src  Operand
	Type types.TypeID
}

// AttrGetInstr reads attribute Attr of the instance held by Object.
type AttrGetInstr struct {
	Dst    LocalID
	Object Operand
	Attr   string
}

// AttrSetInstr writes attribute Attr of the instance held by Object.
type AttrSetInstr struct {
	Object Operand
	Attr   string
	Src    Operand
}

// MethodCallInstr invokes Method on the instance held by Object.
type MethodCallInstr struct {
	Dsts   []LocalID
	Object Operand
	Method string
	Args   []Operand
}

// IsObjectInstr reports whether the instruction belongs to the object-graph
// era and must be gone after globalization.
func (i *Instr) IsObjectInstr() bool {
	switch i.Kind {
	case InstrAttrGet, InstrAttrSet, InstrMethodCall:
		return true
	}
	return false
}

// Operands returns every operand read by the instruction. Callers must not
// retain the slice across mutations of the instruction.
func (i *Instr) Operands() []Operand {
	switch i.Kind {
	case InstrCopy:
		return []Operand{i.Copy.Src}
	case InstrCellStore:
		return []Operand{i.CellStore.Src}
	case InstrCall:
		return i.Call.Args
	case InstrPrimOp:
		return i.PrimOp.Args
	case InstrToValue:
		return []Operand{i.ToValue.Src}
	case InstrToAlias:
		return []Operand{i.ToAlias.Src}
	case InstrOverwrite:
		return []Operand{i.Overwrite.Src}
	case InstrBoundCast:
		return []Operand{i.BoundCast.Src}
	case InstrAttrGet:
		return []Operand{i.AttrGet.Object}
	case InstrAttrSet:
		return []Operand{i.AttrSet.Object, i.AttrSet.Src}
	case InstrMethodCall:
		ops := make([]Operand, 0, len(i.MethodCall.Args)+1)
		ops = append(ops, i.MethodCall.Object)
		ops = append(ops, i.MethodCall.Args...)
		return ops
	}
	return nil
}

// Dsts returns every local written by the instruction.
func (i *Instr) Dsts() []LocalID {
	switch i.Kind {
	case InstrConst:
		return []LocalID{i.Const.Dst}
	case InstrCopy:
		return []LocalID{i.Copy.Dst}
	case InstrCellLoad:
		return []LocalID{i.CellLoad.Dst}
	case InstrCall:
		return i.Call.Dsts
	case InstrPrimOp:
		return []LocalID{i.PrimOp.Dst}
	case InstrToValue:
		return []LocalID{i.ToValue.Dst}
	case InstrToAlias:
		return []LocalID{i.ToAlias.Dst}
	case InstrBoundCast:
		return []LocalID{i.BoundCast.Dst}
	case InstrAttrGet:
		return []LocalID{i.AttrGet.Dst}
	case InstrMethodCall:
		return i.MethodCall.Dsts
	}
	return nil
}
