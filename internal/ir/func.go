package ir

import "slab/internal/types"

// LocalID indexes a local slot inside a function frame. Parameters occupy
// the first len(Params) locals.
type LocalID uint32

// NoLocalID is the invalid local sentinel.
const NoLocalID LocalID = ^LocalID(0)

// BlockID indexes a basic block inside a function.
type BlockID uint32

// Param is a declared function parameter.
type Param struct {
	Name string
	Type types.TypeID
}

// Local is a frame slot. Locals carry the static type the body was written
// against; the calling-convention adjuster may retype boundary locals.
type Local struct {
	Name string
	Type types.TypeID
}

// Func is an ordered parameter list, a body of basic blocks, and a result
// list. A monomorphized method has no implicit receiver: instance state is
// reached through direct cell accesses in the body.
type Func struct {
	ID   FuncID
	Name string

	// ExportedName is the name outside callers invoke this function by.
	// Empty for internal functions; the calling-convention adjuster only
	// touches functions with a non-empty ExportedName.
	ExportedName string

	Params  []Param
	Results []types.TypeID

	Locals []Local
	Blocks []Block
	Entry  BlockID
}

// Exported reports whether the function is externally visible.
func (f *Func) Exported() bool { return f.ExportedName != "" }

// NewLocal appends a local slot and returns its id.
func (f *Func) NewLocal(name string, t types.TypeID) LocalID {
	id := LocalID(len(f.Locals))
	f.Locals = append(f.Locals, Local{Name: name, Type: t})
	return id
}

// Block is a straight-line instruction sequence ending in a terminator.
type Block struct {
	Instrs []Instr
	Term   Terminator
}

// TermKind enumerates block terminators.
type TermKind uint8

const (
	// TermNone marks an unterminated block; validation rejects it.
	TermNone TermKind = iota
	// TermReturn returns from the function.
	TermReturn
	// TermGoto transfers to another block.
	TermGoto
	// TermIf branches on a boolean operand.
	TermIf
)

// Terminator ends a basic block.
type Terminator struct {
	Kind TermKind

	Return ReturnTerm
	Goto   GotoTerm
	If     IfTerm
}

// ReturnTerm carries the returned operands, one per declared result.
type ReturnTerm struct {
	Values []Operand
}

// GotoTerm is an unconditional transfer.
type GotoTerm struct {
	Target BlockID
}

// IfTerm is a conditional transfer.
type IfTerm struct {
	Cond Operand
	Then BlockID
	Else BlockID
}
