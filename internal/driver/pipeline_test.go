package driver

import (
	"errors"
	"strings"
	"testing"

	"slab/internal/ident"
	"slab/internal/og"
	"slab/internal/testkit"
	"slab/internal/vm"
)

func compile(t *testing.T, mod *og.Module, opt Options) *Result {
	t.Helper()
	res, err := Compile(mod, opt)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return res
}

func invokeInt(t *testing.T, h *vm.Handle, name string) int64 {
	t.Helper()
	outputs := make([]vm.Value, 1)
	if err := h.Invoke(name, nil, outputs); err != nil {
		t.Fatalf("Invoke %s: %v", name, err)
	}
	got, err := outputs[0].AsInt()
	if err != nil {
		t.Fatalf("output of %s: %v", name, err)
	}
	return got
}

func TestCompile_CounterEndToEnd(t *testing.T) {
	res := compile(t, testkit.MustCounterModule(), Options{})
	if err := testkit.CheckFlatProgram(res.Program); err != nil {
		t.Fatalf("flat program check: %v", err)
	}
	if err := testkit.CheckBoundarySignatures(res.Program); err != nil {
		t.Fatalf("boundary check: %v", err)
	}

	h, err := vm.Load(res.Program)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	md, err := h.Metadata("bump")
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if md.NumInputs != 0 || md.NumOutputs != 1 {
		t.Fatalf("metadata = %+v, want {0 1}", md)
	}
	if got := invokeInt(t, h, "bump"); got != 4 {
		t.Fatalf("first bump = %d, want 4", got)
	}
	if got := invokeInt(t, h, "bump"); got != 5 {
		t.Fatalf("second bump = %d, want 5", got)
	}
}

func TestCompile_SharedPairEndToEnd(t *testing.T) {
	res := compile(t, testkit.MustSharedPairModule(), Options{})
	h, err := vm.Load(res.Program)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := invokeInt(t, h, "total"); got != 14 {
		t.Fatalf("total = %d, want 14", got)
	}
	// Private methods never reach the exported table.
	if err := h.Invoke("get", nil, nil); !errors.Is(err, vm.ErrFunctionNotFound) {
		t.Fatalf("private method lookup = %v, want ErrFunctionNotFound", err)
	}
}

func TestCompile_RecordsTimings(t *testing.T) {
	res := compile(t, testkit.MustCounterModule(), Options{})
	want := []string{"identify", "globalize", "inline-slots", "value-semantics", "adjust-abi"}
	if len(res.Timings) != len(want) {
		t.Fatalf("timings = %v, want %d phases", res.Timings, len(want))
	}
	for i, ph := range res.Timings {
		if ph.Name != want[i] {
			t.Fatalf("phase %d = %q, want %q", i, ph.Name, want[i])
		}
	}
}

func TestCompile_DisabledPassesSkipped(t *testing.T) {
	res := compile(t, testkit.MustCounterModule(), Options{
		DisableInline: true,
		DisableValsem: true,
		DisableABI:    true,
	})
	for _, ph := range res.Timings {
		switch ph.Name {
		case "inline-slots", "value-semantics", "adjust-abi":
			t.Fatalf("disabled phase %q ran", ph.Name)
		}
	}
	h, err := vm.Load(res.Program)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := invokeInt(t, h, "bump"); got != 4 {
		t.Fatalf("bump without refinement passes = %d, want 4", got)
	}
}

func TestCompile_DumpsAfterEachPhase(t *testing.T) {
	var sb strings.Builder
	compile(t, testkit.MustCounterModule(), Options{DumpIR: &sb})
	out := sb.String()
	for _, name := range []string{"identify", "globalize", "adjust-abi"} {
		if !strings.Contains(out, "// after "+name) {
			t.Fatalf("dump is missing the %q section", name)
		}
	}
	// No program exists yet after identification; that section lists the
	// assigned instance names.
	if !strings.Contains(out, "instance C\n") {
		t.Fatalf("identify section does not list the root instance:\n%s", out)
	}
}

// multiRootModule adds a second unreferenced instance, which the
// identification stage must reject.
func multiRootModule(t *testing.T) *og.Module {
	t.Helper()
	mod := testkit.MustCounterModule()
	other, err := mod.Graph.NewInstance("C")
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	other.SetSlot("count", og.IntValue(0))
	return mod
}

func TestCompile_IdentifyFailureCarriesDiags(t *testing.T) {
	mod := multiRootModule(t)
	res, err := Compile(mod, Options{})
	if err == nil {
		t.Fatalf("Compile accepted a multi-root graph")
	}
	if !strings.Contains(err.Error(), "identify") {
		t.Fatalf("error %v does not name the failing phase", err)
	}
	var mre *ident.MultipleRootsError
	if !errors.As(err, &mre) {
		t.Fatalf("error %v, want MultipleRootsError", err)
	}
	if res == nil || res.Diags == nil {
		t.Fatalf("failed compile dropped its diagnostics")
	}
}
