package ir

import "slices"

// Clone deep-copies the program. Passes are functions from one program to a
// new one; they clone their input first and never mutate it.
func (p *Program) Clone() *Program {
	out := NewProgram(p.Types)
	out.Cells = make([]*Cell, len(p.Cells))
	for i, c := range p.Cells {
		cc := *c
		cc.Init = cloneConst(c.Init)
		out.Cells[i] = &cc
	}
	out.Funcs = make([]*Func, len(p.Funcs))
	for i, f := range p.Funcs {
		out.Funcs[i] = CloneFunc(f)
	}
	out.RebuildIndex()
	return out
}

// CloneFunc deep-copies one function.
func CloneFunc(f *Func) *Func {
	out := &Func{
		ID:           f.ID,
		Name:         f.Name,
		ExportedName: f.ExportedName,
		Params:       slices.Clone(f.Params),
		Results:      slices.Clone(f.Results),
		Locals:       slices.Clone(f.Locals),
		Entry:        f.Entry,
	}
	out.Blocks = make([]Block, len(f.Blocks))
	for i := range f.Blocks {
		out.Blocks[i] = cloneBlock(&f.Blocks[i])
	}
	return out
}

func cloneBlock(b *Block) Block {
	out := Block{Term: b.Term}
	out.Term.Return.Values = cloneOperands(b.Term.Return.Values)
	out.Instrs = make([]Instr, len(b.Instrs))
	for i := range b.Instrs {
		out.Instrs[i] = cloneInstr(&b.Instrs[i])
	}
	return out
}

func cloneInstr(in *Instr) Instr {
	out := *in
	switch in.Kind {
	case InstrConst:
		out.Const.Value = cloneConst(in.Const.Value)
	case InstrCall:
		out.Call.Dsts = slices.Clone(in.Call.Dsts)
		out.Call.Args = cloneOperands(in.Call.Args)
	case InstrPrimOp:
		out.PrimOp.Args = cloneOperands(in.PrimOp.Args)
	case InstrMethodCall:
		out.MethodCall.Dsts = slices.Clone(in.MethodCall.Dsts)
		out.MethodCall.Args = cloneOperands(in.MethodCall.Args)
	}
	return out
}

func cloneOperands(ops []Operand) []Operand {
	if ops == nil {
		return nil
	}
	out := make([]Operand, len(ops))
	for i := range ops {
		out[i] = ops[i]
		out[i].Const = cloneConst(ops[i].Const)
	}
	return out
}

func cloneConst(c Const) Const {
	out := c
	if c.Tensor != nil {
		out.Tensor = &TensorLit{
			Elem: c.Tensor.Elem,
			Dims: slices.Clone(c.Tensor.Dims),
			Data: slices.Clone(c.Tensor.Data),
		}
	}
	return out
}
