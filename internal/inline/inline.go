// Package inline proves global storage cells write-once and substitutes
// their initializer at every read site, then prunes dead cells. Exported
// cells stay addressable for introspection and are only substituted at
// internal read sites.
package inline

import (
	"fmt"

	"slab/internal/diag"
	"slab/internal/ir"
)

// Run performs slot inlining to a fixed point. The input is not mutated.
func Run(in *ir.Program, bag *diag.Bag) (*ir.Program, error) {
	p := in.Clone()

	// Each round either strictly shrinks the live mutable surface or makes
	// no progress, so the cell count bounds the iteration.
	for round := 0; round <= len(p.Cells); round++ {
		if !substituteOnce(p, bag) {
			break
		}
	}

	pruned, err := pruneDeadCells(p, bag)
	if err != nil {
		return nil, err
	}
	return pruned, nil
}

// substituteOnce runs one substitution round and reports whether anything
// changed.
func substituteOnce(p *ir.Program, bag *diag.Bag) bool {
	mutated := mutatedCells(p)
	progress := false

	// Fold write-once cell reads into their initializers. A cell whose
	// initializer refers to another cell folds one level per round; chains
	// of cells-of-cells reach a fixed point within the round bound.
	for _, f := range p.Funcs {
		for bi := range f.Blocks {
			for ii := range f.Blocks[bi].Instrs {
				in := &f.Blocks[bi].Instrs[ii]
				if in.Kind != ir.InstrCellLoad {
					continue
				}
				cell := p.Cell(in.CellLoad.Cell)
				if cell == nil || mutated[cell.ID] {
					continue
				}
				dst := in.CellLoad.Dst
				if cell.Init.Kind == ir.ConstCellRef {
					*in = ir.Instr{
						Kind:     ir.InstrCellLoad,
						CellLoad: ir.CellLoadInstr{Dst: dst, Cell: cell.Init.Cell},
					}
				} else {
					*in = ir.Instr{
						Kind:  ir.InstrConst,
						Const: ir.ConstInstr{Dst: dst, Value: cell.Init},
					}
				}
				bag.Infof(diag.InlineSubstituted, f.Name, "inlined write-once cell %s", cell.Name)
				progress = true
			}
		}
	}

	// Fold initializer chains: a cell referring to a write-once cell takes
	// that cell's initializer directly.
	for _, c := range p.Cells {
		if c.Init.Kind != ir.ConstCellRef {
			continue
		}
		target := p.Cell(c.Init.Cell)
		if target == nil || mutated[target.ID] || target.Init.Kind == ir.ConstCellRef && target.Init.Cell == c.ID {
			continue
		}
		c.Init = target.Init
		progress = true
	}

	return progress
}

// mutatedCells collects every cell written after the initialization point.
// Cell initializers are metadata, not code, so any store instruction at all
// disqualifies a cell from write-once status.
func mutatedCells(p *ir.Program) map[ir.CellID]bool {
	out := make(map[ir.CellID]bool)
	for _, f := range p.Funcs {
		for bi := range f.Blocks {
			for ii := range f.Blocks[bi].Instrs {
				in := &f.Blocks[bi].Instrs[ii]
				if in.Kind == ir.InstrCellStore {
					out[in.CellStore.Cell] = true
				}
			}
		}
	}
	return out
}

// pruneDeadCells removes internal cells with no remaining references and
// renumbers the survivors.
func pruneDeadCells(p *ir.Program, bag *diag.Bag) (*ir.Program, error) {
	referenced := make(map[ir.CellID]bool)
	for _, f := range p.Funcs {
		for bi := range f.Blocks {
			for ii := range f.Blocks[bi].Instrs {
				in := &f.Blocks[bi].Instrs[ii]
				switch in.Kind {
				case ir.InstrCellLoad:
					referenced[in.CellLoad.Cell] = true
				case ir.InstrCellStore:
					referenced[in.CellStore.Cell] = true
				}
			}
		}
	}
	for _, c := range p.Cells {
		if c.Init.Kind == ir.ConstCellRef && (c.Exported || referenced[c.ID]) {
			referenced[c.Init.Cell] = true
		}
	}

	remap := make([]ir.CellID, len(p.Cells))
	kept := make([]*ir.Cell, 0, len(p.Cells))
	for i, c := range p.Cells {
		if !c.Exported && !referenced[c.ID] {
			remap[i] = ir.NoCellID
			bag.Infof(diag.InlinePrunedCell, c.Name, "pruned dead write-once cell")
			continue
		}
		if c.Exported && !referenced[c.ID] {
			bag.Infof(diag.InlineKeptExported, c.Name, "kept exported cell after substitution")
		}
		remap[i] = ir.CellID(len(kept))
		kept = append(kept, c)
	}
	if len(kept) == len(p.Cells) {
		return p, nil
	}

	for _, c := range kept {
		c.ID = remap[c.ID]
		if c.Init.Kind == ir.ConstCellRef {
			mapped := remap[c.Init.Cell]
			if mapped == ir.NoCellID {
				return nil, fmt.Errorf("inline: cell %s refers to pruned cell", c.Name)
			}
			c.Init.Cell = mapped
		}
	}
	p.Cells = kept
	for _, f := range p.Funcs {
		for bi := range f.Blocks {
			for ii := range f.Blocks[bi].Instrs {
				in := &f.Blocks[bi].Instrs[ii]
				switch in.Kind {
				case ir.InstrCellLoad:
					in.CellLoad.Cell = remap[in.CellLoad.Cell]
				case ir.InstrCellStore:
					in.CellStore.Cell = remap[in.CellStore.Cell]
				}
			}
		}
	}
	p.RebuildIndex()
	return p, nil
}
