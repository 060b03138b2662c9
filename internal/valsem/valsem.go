// Package valsem converts aliasable tensor values to value-semantic form
// wherever no observable aliasing escapes. The analysis is conservative: a
// value with any mutation or escape in sight stays aliasable, because a
// wrong conversion is a silent correctness bug in the produced program.
package valsem

import (
	"slab/internal/diag"
	"slab/internal/ir"
	"slab/internal/types"
)

// Run maximizes value semantics per function. The input is not mutated.
func Run(in *ir.Program, bag *diag.Bag) (*ir.Program, error) {
	p := in.Clone()
	for _, f := range p.Funcs {
		convertFunc(p, f, bag)
		foldRoundTrips(p, f)
	}
	return p, nil
}

// useClass classifies how a local is consumed.
type useClass uint8

const (
	usePure useClass = iota
	useMutation
	useEscape
)

// convertFunc retypes aliasable locals whose every consumer is a pure read
// and whose defining operation has a value-semantic form.
func convertFunc(p *ir.Program, f *ir.Func, bag *diag.Bag) {
	// defBlock records the single defining block of each local, or -1 for
	// locals with multiple defs (never converted).
	defBlock := make([]int, len(f.Locals))
	defInstr := make([]int, len(f.Locals))
	for i := range defBlock {
		defBlock[i] = -2 // no def seen
	}
	for bi := range f.Blocks {
		for ii := range f.Blocks[bi].Instrs {
			for _, d := range f.Blocks[bi].Instrs[ii].Dsts() {
				if defBlock[d] == -2 {
					defBlock[d] = bi
					defInstr[d] = ii
				} else {
					defBlock[d] = -1
				}
			}
		}
	}

	for l := range f.Locals {
		lid := ir.LocalID(l)
		if !p.Types.IsAliasable(f.Locals[l].Type) {
			continue
		}
		if defBlock[l] < 0 || int(lid) < len(f.Params) {
			// Parameters belong to the calling-convention adjuster.
			continue
		}
		def := &f.Blocks[defBlock[l]].Instrs[defInstr[l]]
		if !convertibleDef(p, def, lid) {
			continue
		}
		switch classifyUses(p, f, lid, defBlock[l]) {
		case usePure:
			retypeToValue(p, f, lid, def)
			bag.Infof(diag.ValsemConverted, f.Name, "converted %%%d to value semantics", lid)
		case useMutation:
			bag.Infof(diag.ValsemKeptAliasable, f.Name, "kept %%%d aliasable: in-place mutation is observed", lid)
		}
	}
}

// convertibleDef reports whether the defining operation of lid has a
// value-semantic form that preserves behavior when no alias escapes.
func convertibleDef(p *ir.Program, def *ir.Instr, lid ir.LocalID) bool {
	switch def.Kind {
	case ir.InstrToAlias:
		return def.ToAlias.Dst == lid
	case ir.InstrCellLoad:
		// A load from a never-stored, never-overwritten cell yields a buffer
		// nobody rewrites; reading it as an immutable snapshot is equivalent.
		// Stored cells stay aliasable; proving the absence of interleaved
		// writes is the slot-inlining pass's job, not this one's.
		return def.CellLoad.Dst == lid &&
			!cellStored(p, def.CellLoad.Cell) &&
			!cellMutatedThroughLoad(p, def.CellLoad.Cell)
	}
	return false
}

func cellStored(p *ir.Program, id ir.CellID) bool {
	for _, f := range p.Funcs {
		for bi := range f.Blocks {
			for ii := range f.Blocks[bi].Instrs {
				in := &f.Blocks[bi].Instrs[ii]
				if in.Kind == ir.InstrCellStore && in.CellStore.Cell == id {
					return true
				}
			}
		}
	}
	return false
}

// cellMutatedThroughLoad reports whether any function overwrites a local
// that a load of id may have defined. Such a write mutates the cell's
// buffer through an alias, so loads of the cell cannot become snapshots.
func cellMutatedThroughLoad(p *ir.Program, id ir.CellID) bool {
	for _, f := range p.Funcs {
		loaded := make(map[ir.LocalID]bool)
		for bi := range f.Blocks {
			for ii := range f.Blocks[bi].Instrs {
				in := &f.Blocks[bi].Instrs[ii]
				if in.Kind == ir.InstrCellLoad && in.CellLoad.Cell == id {
					loaded[in.CellLoad.Dst] = true
				}
			}
		}
		if len(loaded) == 0 {
			continue
		}
		for bi := range f.Blocks {
			for ii := range f.Blocks[bi].Instrs {
				in := &f.Blocks[bi].Instrs[ii]
				if in.Kind == ir.InstrOverwrite && loaded[in.Overwrite.Target] {
					return true
				}
			}
		}
	}
	return false
}

// classifyUses scans every consumer of lid. Any use outside the defining
// block is an escape: the local analysis does not track aliases across
// control flow.
func classifyUses(p *ir.Program, f *ir.Func, lid ir.LocalID, homeBlock int) useClass {
	worst := usePure
	note := func(c useClass) {
		if c > worst {
			worst = c
		}
	}
	usesLocal := func(ops []ir.Operand) bool {
		for _, o := range ops {
			if o.Kind == ir.OperandUse && o.Local == lid {
				return true
			}
		}
		return false
	}

	for bi := range f.Blocks {
		bb := &f.Blocks[bi]
		for ii := range bb.Instrs {
			in := &bb.Instrs[ii]
			if !usesLocal(in.Operands()) && !(in.Kind == ir.InstrOverwrite && in.Overwrite.Target == lid) {
				continue
			}
			if bi != homeBlock {
				note(useEscape)
				continue
			}
			switch in.Kind {
			case ir.InstrPrimOp, ir.InstrToValue:
				note(usePure)
			case ir.InstrOverwrite:
				if in.Overwrite.Target == lid {
					note(useMutation)
				} else {
					// Reading lid as the overwrite source is a pure read.
					note(usePure)
				}
			default:
				// Copies, calls, stores and returns create aliases the
				// local analysis cannot follow.
				note(useEscape)
			}
		}
		if bb.Term.Kind == ir.TermReturn && usesLocal(bb.Term.Return.Values) {
			note(useEscape)
		}
		if bb.Term.Kind == ir.TermIf && bb.Term.If.Cond.Kind == ir.OperandUse && bb.Term.If.Cond.Local == lid {
			note(useEscape)
		}
	}
	return worst
}

// retypeToValue rewrites the definition and every consumer of lid to the
// value-semantic form.
func retypeToValue(p *ir.Program, f *ir.Func, lid ir.LocalID, def *ir.Instr) {
	valueType := p.Types.WithAliasable(f.Locals[lid].Type, false)
	f.Locals[lid].Type = valueType

	switch def.Kind {
	case ir.InstrToAlias:
		// The copy into a fresh alias becomes a plain forward of the value.
		*def = ir.Instr{
			Kind: ir.InstrCopy,
			Copy: ir.CopyInstr{Dst: lid, Src: def.ToAlias.Src},
		}
	case ir.InstrCellLoad:
		// The load now produces an immutable snapshot; nothing to rewrite.
	}

	// Consumers that copied the alias into a value become plain forwards.
	for bi := range f.Blocks {
		for ii := range f.Blocks[bi].Instrs {
			in := &f.Blocks[bi].Instrs[ii]
			if in.Kind == ir.InstrToValue && in.ToValue.Src.Kind == ir.OperandUse && in.ToValue.Src.Local == lid {
				src := in.ToValue.Src
				src.Type = valueType
				*in = ir.Instr{
					Kind: ir.InstrCopy,
					Copy: ir.CopyInstr{Dst: in.ToValue.Dst, Src: src},
				}
			}
			retypeOperands(in, lid, valueType)
		}
		retypeTermOperands(&f.Blocks[bi].Term, lid, valueType)
	}
}

// retypeOperands updates the static type of every use of lid in place.
func retypeOperands(in *ir.Instr, lid ir.LocalID, t types.TypeID) {
	fix := func(o *ir.Operand) {
		if o.Kind == ir.OperandUse && o.Local == lid {
			o.Type = t
		}
	}
	switch in.Kind {
	case ir.InstrCopy:
		fix(&in.Copy.Src)
	case ir.InstrCellStore:
		fix(&in.CellStore.Src)
	case ir.InstrCall:
		for i := range in.Call.Args {
			fix(&in.Call.Args[i])
		}
	case ir.InstrPrimOp:
		for i := range in.PrimOp.Args {
			fix(&in.PrimOp.Args[i])
		}
	case ir.InstrToValue:
		fix(&in.ToValue.Src)
	case ir.InstrToAlias:
		fix(&in.ToAlias.Src)
	case ir.InstrOverwrite:
		fix(&in.Overwrite.Src)
	case ir.InstrBoundCast:
		fix(&in.BoundCast.Src)
	}
}

func retypeTermOperands(t *ir.Terminator, lid ir.LocalID, typ types.TypeID) {
	switch t.Kind {
	case ir.TermReturn:
		for i := range t.Return.Values {
			o := &t.Return.Values[i]
			if o.Kind == ir.OperandUse && o.Local == lid {
				o.Type = typ
			}
		}
	case ir.TermIf:
		if t.If.Cond.Kind == ir.OperandUse && t.If.Cond.Local == lid {
			t.If.Cond.Type = typ
		}
	}
}

// foldRoundTrips rewrites to_value(to_alias(x)) chains left behind by other
// rewrites into plain forwards of x when the intermediate alias has no other
// consumer.
func foldRoundTrips(p *ir.Program, f *ir.Func) {
	for bi := range f.Blocks {
		bb := &f.Blocks[bi]
		for ii := range bb.Instrs {
			in := &bb.Instrs[ii]
			if in.Kind != ir.InstrToValue || in.ToValue.Src.Kind != ir.OperandUse {
				continue
			}
			alias := in.ToValue.Src.Local
			def, only := soleDefAndUse(f, alias, bi, ii)
			if def == nil || def.Kind != ir.InstrToAlias || def.ToAlias.Dst != alias || !only {
				continue
			}
			src := def.ToAlias.Src
			*in = ir.Instr{
				Kind: ir.InstrCopy,
				Copy: ir.CopyInstr{Dst: in.ToValue.Dst, Src: src},
			}
			*def = ir.Instr{Kind: ir.InstrNop}
		}
	}
}

// soleDefAndUse returns the unique defining instruction of lid and whether
// the use at (useBlock, useInstr) is its only consumer.
func soleDefAndUse(f *ir.Func, lid ir.LocalID, useBlock, useInstr int) (*ir.Instr, bool) {
	var def *ir.Instr
	defs := 0
	uses := 0
	for bi := range f.Blocks {
		bb := &f.Blocks[bi]
		for ii := range bb.Instrs {
			in := &bb.Instrs[ii]
			for _, d := range in.Dsts() {
				if d == lid {
					def = in
					defs++
				}
			}
			if bi == useBlock && ii == useInstr {
				continue
			}
			for _, o := range in.Operands() {
				if o.Kind == ir.OperandUse && o.Local == lid {
					uses++
				}
			}
			if in.Kind == ir.InstrOverwrite && in.Overwrite.Target == lid {
				uses++
			}
		}
		if bb.Term.Kind == ir.TermReturn {
			for _, o := range bb.Term.Return.Values {
				if o.Kind == ir.OperandUse && o.Local == lid {
					uses++
				}
			}
		}
	}
	if defs != 1 {
		return nil, false
	}
	return def, uses == 0
}
