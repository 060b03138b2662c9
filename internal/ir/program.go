// Package ir defines the flat program representation the slab passes
// transform: global storage cells and functions over basic blocks. Before
// globalization the same representation also carries object-graph
// instructions (attribute reads/writes, method calls); a globalized program
// must contain none of them.
package ir

import (
	"fmt"

	"slab/internal/types"
)

// FuncID indexes a function inside a Program.
type FuncID uint32

// NoFuncID is the invalid function sentinel.
const NoFuncID FuncID = ^FuncID(0)

// CellID indexes a global storage cell inside a Program.
type CellID uint32

// NoCellID is the invalid cell sentinel.
const NoCellID CellID = ^CellID(0)

// Cell is a process-wide named mutable location with a declared type bound
// and an initializer. Exported cells stay addressable from outside the
// program and may not be pruned by slot inlining.
type Cell struct {
	ID       CellID
	Name     string
	Type     types.TypeID
	Init     Const
	Exported bool
}

// Program is one flat compilation unit: cells plus functions.
type Program struct {
	Types *types.Interner

	Cells []*Cell
	Funcs []*Func

	CellByName map[string]CellID
	FuncByName map[string]FuncID
}

// NewProgram constructs an empty program over the given type interner.
func NewProgram(in *types.Interner) *Program {
	return &Program{
		Types:      in,
		CellByName: make(map[string]CellID),
		FuncByName: make(map[string]FuncID),
	}
}

// AddCell appends a cell and registers its name.
func (p *Program) AddCell(c *Cell) (CellID, error) {
	if c == nil {
		return NoCellID, fmt.Errorf("ir: nil cell")
	}
	if _, ok := p.CellByName[c.Name]; ok {
		return NoCellID, fmt.Errorf("ir: duplicate cell name %q", c.Name)
	}
	id := CellID(len(p.Cells))
	c.ID = id
	p.Cells = append(p.Cells, c)
	p.CellByName[c.Name] = id
	return id, nil
}

// AddFunc appends a function and registers its name.
func (p *Program) AddFunc(f *Func) (FuncID, error) {
	if f == nil {
		return NoFuncID, fmt.Errorf("ir: nil func")
	}
	if _, ok := p.FuncByName[f.Name]; ok {
		return NoFuncID, fmt.Errorf("ir: duplicate func name %q", f.Name)
	}
	id := FuncID(len(p.Funcs))
	f.ID = id
	p.Funcs = append(p.Funcs, f)
	p.FuncByName[f.Name] = id
	return id, nil
}

// Cell returns the cell for id, or nil.
func (p *Program) Cell(id CellID) *Cell {
	if int(id) >= len(p.Cells) {
		return nil
	}
	return p.Cells[id]
}

// Func returns the function for id, or nil.
func (p *Program) Func(id FuncID) *Func {
	if int(id) >= len(p.Funcs) {
		return nil
	}
	return p.Funcs[id]
}

// RebuildIndex recomputes the name lookup maps from the slices. Decoders and
// passes that renumber cells or functions call this once at the end.
func (p *Program) RebuildIndex() {
	p.CellByName = make(map[string]CellID, len(p.Cells))
	for _, c := range p.Cells {
		p.CellByName[c.Name] = c.ID
	}
	p.FuncByName = make(map[string]FuncID, len(p.Funcs))
	for _, f := range p.Funcs {
		p.FuncByName[f.Name] = f.ID
	}
}
