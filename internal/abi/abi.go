// Package abi rewrites function boundaries so externally visible functions
// present a fixed convention: every tensor argument and result crosses the
// boundary in its least refined, value-semantic form. Entry narrows and
// de-aliases for internal use; exit widens and re-values; call sites of
// adjusted functions convert in the opposite direction so function bodies
// keep observing the internal convention.
package abi

import (
	"slab/internal/diag"
	"slab/internal/ir"
	"slab/internal/types"
)

type signature struct {
	params  []types.TypeID
	results []types.TypeID
}

// Run adjusts every exported function and every call site of one. The input
// is not mutated. Functions without external visibility are left untouched.
func Run(in *ir.Program, bag *diag.Bag) (*ir.Program, error) {
	p := in.Clone()

	// Internal signatures must be captured before any boundary is rewritten.
	internal := make(map[ir.FuncID]signature)
	for _, f := range p.Funcs {
		if !f.Exported() {
			continue
		}
		sig := signature{
			params:  make([]types.TypeID, len(f.Params)),
			results: append([]types.TypeID(nil), f.Results...),
		}
		for i, prm := range f.Params {
			sig.params[i] = prm.Type
		}
		internal[f.ID] = sig
	}

	for _, f := range p.Funcs {
		rewriteCallSites(p, f, internal)
	}
	for _, f := range p.Funcs {
		if sig, ok := internal[f.ID]; ok {
			adjustBoundary(p, f, sig)
			bag.Infof(diag.AbiAdjusted, f.Name, "erased boundary signature for %q", f.ExportedName)
		}
	}
	return p, nil
}

// adjustBoundary rewrites one exported function: parameters arrive erased
// and value-semantic and are refined and re-aliased at entry; results are
// re-valued and erased at every return point.
func adjustBoundary(p *ir.Program, f *ir.Func, sig signature) {
	// Entry conversions. The parameter local is retyped to the external
	// form; the body's uses move to the recovered internal local.
	var entry []ir.Instr
	for i := range f.Params {
		tInt := sig.params[i]
		tExt := p.Types.Erase(tInt)
		if !p.Types.IsTensor(tInt) || tExt == tInt {
			continue
		}
		pl := ir.LocalID(i)
		f.Params[i].Type = tExt
		f.Locals[pl].Type = tExt

		cur := pl
		curType := tExt
		tValue := p.Types.WithAliasable(tInt, false)
		if tValue != tExt {
			r := f.NewLocal(f.Params[i].Name+".refined", tValue)
			entry = append(entry, ir.Instr{
				Kind: ir.InstrBoundCast,
				BoundCast: ir.BoundCastInstr{
					Dst: r, Src: ir.UseOf(cur, curType), Type: tValue,
				},
			})
			cur, curType = r, tValue
		}
		if p.Types.IsAliasable(tInt) {
			a := f.NewLocal(f.Params[i].Name+".alias", tInt)
			entry = append(entry, ir.Instr{
				Kind:    ir.InstrToAlias,
				ToAlias: ir.ToAliasInstr{Dst: a, Src: ir.UseOf(cur, curType)},
			})
			cur, curType = a, tInt
		}
		replaceUses(f, pl, cur, curType)
	}
	if len(entry) > 0 {
		eb := &f.Blocks[f.Entry]
		eb.Instrs = append(entry, eb.Instrs...)
	}

	// Exit conversions at every return point.
	extResults := make([]types.TypeID, len(sig.results))
	for i, tInt := range sig.results {
		extResults[i] = p.Types.Erase(tInt)
	}
	for bi := range f.Blocks {
		bb := &f.Blocks[bi]
		if bb.Term.Kind != ir.TermReturn {
			continue
		}
		for vi := range bb.Term.Return.Values {
			tInt := sig.results[vi]
			tExt := extResults[vi]
			if !p.Types.IsTensor(tInt) || tExt == tInt {
				continue
			}
			op := bb.Term.Return.Values[vi]
			if p.Types.IsAliasable(op.Type) {
				v := f.NewLocal("", p.Types.WithAliasable(op.Type, false))
				bb.Instrs = append(bb.Instrs, ir.Instr{
					Kind:    ir.InstrToValue,
					ToValue: ir.ToValueInstr{Dst: v, Src: op},
				})
				op = ir.UseOf(v, p.Types.WithAliasable(op.Type, false))
			}
			if op.Type != tExt {
				e := f.NewLocal("", tExt)
				bb.Instrs = append(bb.Instrs, ir.Instr{
					Kind:      ir.InstrBoundCast,
					BoundCast: ir.BoundCastInstr{Dst: e, Src: op, Type: tExt},
				})
				op = ir.UseOf(e, tExt)
			}
			bb.Term.Return.Values[vi] = op
		}
	}
	f.Results = extResults
}

// rewriteCallSites wraps every call of an adjusted function with the
// inverse transform: operands are re-valued and erased before the call,
// results are refined and re-aliased after it.
func rewriteCallSites(p *ir.Program, f *ir.Func, internal map[ir.FuncID]signature) {
	for bi := range f.Blocks {
		bb := &f.Blocks[bi]
		var out []ir.Instr
		for ii := range bb.Instrs {
			in := bb.Instrs[ii]
			if in.Kind != ir.InstrCall {
				out = append(out, in)
				continue
			}
			sig, ok := internal[in.Call.Callee.Func]
			if !ok {
				out = append(out, in)
				continue
			}

			for ai := range in.Call.Args {
				tInt := sig.params[ai]
				tExt := p.Types.Erase(tInt)
				if !p.Types.IsTensor(tInt) || tExt == tInt {
					continue
				}
				op := in.Call.Args[ai]
				if p.Types.IsAliasable(op.Type) {
					v := f.NewLocal("", p.Types.WithAliasable(op.Type, false))
					out = append(out, ir.Instr{
						Kind:    ir.InstrToValue,
						ToValue: ir.ToValueInstr{Dst: v, Src: op},
					})
					op = ir.UseOf(v, p.Types.WithAliasable(op.Type, false))
				}
				if op.Type != tExt {
					e := f.NewLocal("", tExt)
					out = append(out, ir.Instr{
						Kind:      ir.InstrBoundCast,
						BoundCast: ir.BoundCastInstr{Dst: e, Src: op, Type: tExt},
					})
					op = ir.UseOf(e, tExt)
				}
				in.Call.Args[ai] = op
			}

			var post []ir.Instr
			for di := range in.Call.Dsts {
				tInt := sig.results[di]
				tExt := p.Types.Erase(tInt)
				if !p.Types.IsTensor(tInt) || tExt == tInt {
					continue
				}
				origDst := in.Call.Dsts[di]
				tmp := f.NewLocal("", tExt)
				in.Call.Dsts[di] = tmp

				cur := tmp
				curType := tExt
				tValue := p.Types.WithAliasable(tInt, false)
				if p.Types.IsAliasable(tInt) {
					if tValue != tExt {
						r := f.NewLocal("", tValue)
						post = append(post, ir.Instr{
							Kind:      ir.InstrBoundCast,
							BoundCast: ir.BoundCastInstr{Dst: r, Src: ir.UseOf(cur, curType), Type: tValue},
						})
						cur, curType = r, tValue
					}
					post = append(post, ir.Instr{
						Kind:    ir.InstrToAlias,
						ToAlias: ir.ToAliasInstr{Dst: origDst, Src: ir.UseOf(cur, curType)},
					})
				} else {
					post = append(post, ir.Instr{
						Kind:      ir.InstrBoundCast,
						BoundCast: ir.BoundCastInstr{Dst: origDst, Src: ir.UseOf(cur, curType), Type: tInt},
					})
				}
			}

			out = append(out, in)
			out = append(out, post...)
		}
		bb.Instrs = out
	}
}

// replaceUses rewires every read of from to a read of to, leaving the
// boundary conversion instructions that define to untouched.
func replaceUses(f *ir.Func, from, to ir.LocalID, toType types.TypeID) {
	fix := func(o *ir.Operand) {
		if o.Kind == ir.OperandUse && o.Local == from {
			o.Local = to
			o.Type = toType
		}
	}
	for bi := range f.Blocks {
		bb := &f.Blocks[bi]
		for ii := range bb.Instrs {
			in := &bb.Instrs[ii]
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
				if in.ToAlias.Dst != to {
					fix(&in.ToAlias.Src)
				}
			case ir.InstrOverwrite:
				if in.Overwrite.Target == from {
					in.Overwrite.Target = to
				}
				fix(&in.Overwrite.Src)
			case ir.InstrBoundCast:
				if in.BoundCast.Dst != to {
					fix(&in.BoundCast.Src)
				}
			}
		}
		switch bb.Term.Kind {
		case ir.TermReturn:
			for i := range bb.Term.Return.Values {
				fix(&bb.Term.Return.Values[i])
			}
		case ir.TermIf:
			fix(&bb.Term.If.Cond)
		}
	}
}
