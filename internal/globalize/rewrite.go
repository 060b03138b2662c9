package globalize

import (
	"fmt"

	"slab/internal/ident"
	"slab/internal/ir"
	"slab/internal/og"
)

// nullReceiver marks a local holding a null module reference. Reads through
// it are unresolvable.
const nullReceiver og.InstanceID = og.NoInstanceID

// rewriteBody specializes a cloned method body for one receiver instance:
// attribute reads become cell loads, attribute writes become cell stores,
// and method calls on statically known receivers become direct calls. The
// receiver parameter and every class-typed local disappear from the result.
func (g *globalizer) rewriteBody(f *ir.Func, self og.InstanceID) error {
	// recv maps class-typed locals to the instance they hold. Conflicting
	// assignments poison the local; a poisoned receiver is unresolvable.
	recv := make(map[ir.LocalID]og.InstanceID)
	poisoned := make(map[ir.LocalID]bool)
	recv[0] = self

	bind := func(l ir.LocalID, inst og.InstanceID) {
		if prev, ok := recv[l]; ok && prev != inst {
			poisoned[l] = true
			return
		}
		recv[l] = inst
	}
	instOf := func(o ir.Operand) (og.InstanceID, bool) {
		if o.Kind != ir.OperandUse || poisoned[o.Local] {
			return nullReceiver, false
		}
		inst, ok := recv[o.Local]
		return inst, ok
	}

	for bi := range f.Blocks {
		bb := &f.Blocks[bi]
		for ii := range bb.Instrs {
			in := &bb.Instrs[ii]
			switch in.Kind {
			case ir.InstrAttrGet:
				inst, ok := instOf(in.AttrGet.Object)
				if !ok || inst == nullReceiver {
					return &UnresolvedReceiverError{
						Func:   f.Name,
						Detail: fmt.Sprintf("attribute %q read through unknown receiver", in.AttrGet.Attr),
					}
				}
				attr, err := g.attrOf(inst, in.AttrGet.Attr)
				if err != nil {
					return fmt.Errorf("globalize: %s: %w", f.Name, err)
				}
				if g.out.Types.IsClass(attr.Type) {
					slot := g.mod.Graph.Instance(inst).Slot(attr.Name)
					bind(in.AttrGet.Dst, slot.Value.Instance)
					*in = ir.Instr{Kind: ir.InstrNop}
					continue
				}
				cell := g.cellBySlot[ident.SlotKey{Instance: inst, Attr: attr.Name}]
				*in = ir.Instr{
					Kind:     ir.InstrCellLoad,
					CellLoad: ir.CellLoadInstr{Dst: in.AttrGet.Dst, Cell: cell},
				}

			case ir.InstrAttrSet:
				inst, ok := instOf(in.AttrSet.Object)
				if !ok || inst == nullReceiver {
					return &UnresolvedReceiverError{
						Func:   f.Name,
						Detail: fmt.Sprintf("attribute %q written through unknown receiver", in.AttrSet.Attr),
					}
				}
				attr, err := g.attrOf(inst, in.AttrSet.Attr)
				if err != nil {
					return fmt.Errorf("globalize: %s: %w", f.Name, err)
				}
				if g.out.Types.IsClass(attr.Type) {
					return &UnresolvedReceiverError{
						Func:   f.Name,
						Detail: fmt.Sprintf("write of module-typed attribute %q after load time", attr.Name),
					}
				}
				cell := g.cellBySlot[ident.SlotKey{Instance: inst, Attr: attr.Name}]
				*in = ir.Instr{
					Kind:      ir.InstrCellStore,
					CellStore: ir.CellStoreInstr{Cell: cell, Src: in.AttrSet.Src},
				}

			case ir.InstrMethodCall:
				inst, ok := instOf(in.MethodCall.Object)
				if !ok || inst == nullReceiver {
					return &UnresolvedReceiverError{
						Func:   f.Name,
						Detail: fmt.Sprintf("method %q called through unknown receiver", in.MethodCall.Method),
					}
				}
				if err := g.checkArgsResolvable(f, in.MethodCall.Args); err != nil {
					return err
				}
				target, err := g.ensureMethod(inst, in.MethodCall.Method)
				if err != nil {
					return err
				}
				callee := g.out.Func(target)
				*in = ir.Instr{
					Kind: ir.InstrCall,
					Call: ir.CallInstr{
						Dsts:   in.MethodCall.Dsts,
						Callee: ir.Callee{Func: target, Name: callee.Name},
						Args:   in.MethodCall.Args,
					},
				}

			case ir.InstrCall:
				if err := g.checkArgsResolvable(f, in.Call.Args); err != nil {
					return err
				}
				mapped, ok := g.freeFuncs[in.Call.Callee.Func]
				if !ok {
					return &UnresolvedReceiverError{
						Func:   f.Name,
						Detail: fmt.Sprintf("direct call of method body %q", in.Call.Callee.Name),
					}
				}
				in.Call.Callee.Func = mapped

			case ir.InstrCopy:
				if inst, ok := instOf(in.Copy.Src); ok {
					bind(in.Copy.Dst, inst)
					*in = ir.Instr{Kind: ir.InstrNop}
				}

			default:
				for _, o := range in.Operands() {
					if _, ok := instOf(o); ok {
						return &UnresolvedReceiverError{
							Func:   f.Name,
							Detail: "module value used as a plain operand",
						}
					}
				}
			}
		}
		if bb.Term.Kind == ir.TermReturn {
			for _, o := range bb.Term.Return.Values {
				if _, ok := instOf(o); ok {
					return &UnresolvedReceiverError{
						Func:   f.Name,
						Detail: "module value returned from a method",
					}
				}
			}
		}
	}

	return g.dropClassLocals(f)
}

func (g *globalizer) attrOf(inst og.InstanceID, name string) (*og.AttrDecl, error) {
	node := g.mod.Graph.Instance(inst)
	cls := g.mod.Graph.ClassOf(node)
	if cls == nil {
		return nil, fmt.Errorf("instance %d has unknown class %q", inst, node.Class)
	}
	attr := cls.Attr(name)
	if attr == nil {
		return nil, fmt.Errorf("class %s has no attribute %q", cls.Name, name)
	}
	return attr, nil
}

// checkArgsResolvable rejects module values escaping through call operands:
// a receiver passed as a plain argument cannot be resolved statically.
func (g *globalizer) checkArgsResolvable(f *ir.Func, args []ir.Operand) error {
	for _, a := range args {
		if g.out.Types.IsClass(a.Type) {
			return &UnresolvedReceiverError{
				Func:   f.Name,
				Detail: "module value passed as a call argument",
			}
		}
	}
	return nil
}

// dropClassLocals removes the receiver parameter and every class-typed
// local, renumbering the remainder. A surviving use of a removed local means
// the rewrite missed an object construct.
func (g *globalizer) dropClassLocals(f *ir.Func) error {
	remap := make([]ir.LocalID, len(f.Locals))
	kept := make([]ir.Local, 0, len(f.Locals))
	for i, l := range f.Locals {
		if g.out.Types.IsClass(l.Type) {
			remap[i] = ir.NoLocalID
			continue
		}
		remap[i] = ir.LocalID(len(kept))
		kept = append(kept, l)
	}
	f.Locals = kept
	if len(f.Params) > 0 {
		f.Params = f.Params[1:]
	}

	var missing error
	renumber := func(l ir.LocalID) ir.LocalID {
		if int(l) >= len(remap) || remap[l] == ir.NoLocalID {
			if missing == nil {
				missing = &ResidualObjectGraphError{
					Subject: f.Name,
					Detail:  fmt.Sprintf("use of removed class-typed local %%%d", l),
				}
			}
			return l
		}
		return remap[l]
	}
	renumberOperand := func(o *ir.Operand) {
		if o.Kind == ir.OperandUse {
			o.Local = renumber(o.Local)
		}
	}

	for bi := range f.Blocks {
		bb := &f.Blocks[bi]
		for ii := range bb.Instrs {
			in := &bb.Instrs[ii]
			switch in.Kind {
			case ir.InstrConst:
				in.Const.Dst = renumber(in.Const.Dst)
			case ir.InstrCopy:
				in.Copy.Dst = renumber(in.Copy.Dst)
				renumberOperand(&in.Copy.Src)
			case ir.InstrCellLoad:
				in.CellLoad.Dst = renumber(in.CellLoad.Dst)
			case ir.InstrCellStore:
				renumberOperand(&in.CellStore.Src)
			case ir.InstrCall:
				for di := range in.Call.Dsts {
					in.Call.Dsts[di] = renumber(in.Call.Dsts[di])
				}
				for ai := range in.Call.Args {
					renumberOperand(&in.Call.Args[ai])
				}
			case ir.InstrPrimOp:
				in.PrimOp.Dst = renumber(in.PrimOp.Dst)
				for ai := range in.PrimOp.Args {
					renumberOperand(&in.PrimOp.Args[ai])
				}
			case ir.InstrToValue:
				in.ToValue.Dst = renumber(in.ToValue.Dst)
				renumberOperand(&in.ToValue.Src)
			case ir.InstrToAlias:
				in.ToAlias.Dst = renumber(in.ToAlias.Dst)
				renumberOperand(&in.ToAlias.Src)
			case ir.InstrOverwrite:
				in.Overwrite.Target = renumber(in.Overwrite.Target)
				renumberOperand(&in.Overwrite.Src)
			case ir.InstrBoundCast:
				in.BoundCast.Dst = renumber(in.BoundCast.Dst)
				renumberOperand(&in.BoundCast.Src)
			case ir.InstrAttrGet, ir.InstrAttrSet, ir.InstrMethodCall:
				missing = &ResidualObjectGraphError{
					Subject: f.Name,
					Detail:  "object-graph instruction survived the rewrite",
				}
			}
		}
		switch bb.Term.Kind {
		case ir.TermReturn:
			for vi := range bb.Term.Return.Values {
				renumberOperand(&bb.Term.Return.Values[vi])
			}
		case ir.TermIf:
			renumberOperand(&bb.Term.If.Cond)
		}
	}
	return missing
}

// checkResidual verifies the post-condition: no object-graph construct
// remains anywhere in the flat program.
func checkResidual(p *ir.Program) error {
	for _, c := range p.Cells {
		if p.Types.IsClass(c.Type) {
			return &ResidualObjectGraphError{Subject: c.Name, Detail: "class-typed cell"}
		}
	}
	for _, f := range p.Funcs {
		for _, prm := range f.Params {
			if p.Types.IsClass(prm.Type) {
				return &ResidualObjectGraphError{Subject: f.Name, Detail: "class-typed parameter"}
			}
		}
		for _, r := range f.Results {
			if p.Types.IsClass(r) {
				return &ResidualObjectGraphError{Subject: f.Name, Detail: "class-typed result"}
			}
		}
		for _, l := range f.Locals {
			if p.Types.IsClass(l.Type) {
				return &ResidualObjectGraphError{Subject: f.Name, Detail: "class-typed local"}
			}
		}
		for bi := range f.Blocks {
			for ii := range f.Blocks[bi].Instrs {
				in := &f.Blocks[bi].Instrs[ii]
				if in.IsObjectInstr() {
					return &ResidualObjectGraphError{
						Subject: f.Name,
						Detail:  fmt.Sprintf("object-graph instruction at bb%d[%d]", bi, ii),
					}
				}
			}
		}
	}
	return nil
}
