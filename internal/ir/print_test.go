package ir

import (
	"strings"
	"testing"
)

func TestDump_RendersCellsAndFuncs(t *testing.T) {
	p := twoCellProgram(t)
	out := Dump(p)

	for _, want := range []string{
		"cell @C.count : int = 3 (exported)",
		"cell @C.step : int = 1 (internal)",
		`func C.bump() -> (int) exported "bump" {`,
		"bb0:",
		"%0 = cell.load @C.count",
		"%2 = add %0, %1",
		"cell.store @C.count, %2",
		"return %2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("dump is missing %q\n%s", want, out)
		}
	}
}

func TestDump_SkipsNops(t *testing.T) {
	p := twoCellProgram(t)
	f := p.Funcs[0]
	f.Blocks[0].Instrs = append([]Instr{{Kind: InstrNop}}, f.Blocks[0].Instrs...)
	if strings.Contains(Dump(p), "nop") {
		t.Errorf("dump rendered a nop")
	}
}

func TestDump_Deterministic(t *testing.T) {
	p := twoCellProgram(t)
	if Dump(p) != Dump(p) {
		t.Fatalf("two dumps of the same program differ")
	}
}
