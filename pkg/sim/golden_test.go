package sim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dlathrop/svsim/internal/hdl"
)

const svDir = "../../testdata/sv"

func loadFixture(t *testing.T, module string) (*hdl.ModuleIR, *hdl.Cache) {
	t.Helper()

	path := filepath.Join(svDir, module+".sv")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading fixture %s: %v", path, err)
	}

	ir, err := hdl.ParseModule(string(data))
	if err != nil {
		t.Fatalf("parsing fixture %s: %v", path, err)
	}

	cache := hdl.NewCache(svDir)
	cache.Put(ir)

	return ir, cache
}

// S1 — NAND gate.
func TestGolden_S1_NandGate(t *testing.T) {
	ir, cache := loadFixture(t, "nand_gate")

	ev, err := NewEvaluator(ir, cache, svDir, "", nil, DefaultConfig())
	if err != nil {
		t.Fatalf("constructing evaluator: %v", err)
	}

	cases := []struct {
		a, b, want int64
	}{
		{0, 0, 1},
		{1, 0, 1},
		{1, 1, 0},
	}

	for _, c := range cases {
		out, err := ev.Evaluate(map[string]int64{"inA": c.a, "inB": c.b})
		if err != nil {
			t.Fatalf("evaluate(%d,%d): %v", c.a, c.b, err)
		}

		if out["outY"] != c.want {
			t.Errorf("evaluate(%d,%d) = %d, want %d", c.a, c.b, out["outY"], c.want)
		}
	}
}

// S2 — XOR built from four NAND instances; also exercises CountPrimitiveGates.
func TestGolden_S2_XorViaNand(t *testing.T) {
	ir, cache := loadFixture(t, "xor_via_nand")

	ev, err := NewEvaluator(ir, cache, svDir, "", nil, DefaultConfig())
	if err != nil {
		t.Fatalf("constructing evaluator: %v", err)
	}

	cases := []struct {
		a, b, want int64
	}{
		{0, 0, 0},
		{0, 1, 1},
		{1, 0, 1},
		{1, 1, 0},
	}

	for _, c := range cases {
		out, err := ev.Evaluate(map[string]int64{"A": c.a, "B": c.b})
		if err != nil {
			t.Fatalf("evaluate(%d,%d): %v", c.a, c.b, err)
		}

		if out["Y"] != c.want {
			t.Errorf("evaluate(%d,%d) = %d, want %d", c.a, c.b, out["Y"], c.want)
		}
	}

	n, err := hdl.CountPrimitiveGates(ir, cache, svDir, "nand_gate")
	if err != nil {
		t.Fatalf("CountPrimitiveGates: %v", err)
	}

	if n != 4 {
		t.Errorf("CountPrimitiveGates = %d, want 4", n)
	}
}

// S3 — 4-bit ripple-carry adder.
func TestGolden_S3_Adder4(t *testing.T) {
	ir, cache := loadFixture(t, "adder4")

	ev, err := NewEvaluator(ir, cache, svDir, "", nil, DefaultConfig())
	if err != nil {
		t.Fatalf("constructing evaluator: %v", err)
	}

	out, err := ev.Evaluate(map[string]int64{"A": 0b1011, "B": 0b0110, "Cin": 0})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	if out["Sum"] != 0b0001 {
		t.Errorf("Sum = %#b, want %#b", out["Sum"], 0b0001)
	}

	if out["Cout"] != 1 {
		t.Errorf("Cout = %d, want 1", out["Cout"])
	}
}

// S4 — 1-bit register.
func TestGolden_S4_Register1(t *testing.T) {
	ir, cache := loadFixture(t, "register1")

	ev, err := NewEvaluator(ir, cache, svDir, "", nil, DefaultConfig())
	if err != nil {
		t.Fatalf("constructing evaluator: %v", err)
	}

	if !ev.IsSequential() {
		t.Fatalf("expected register1 to be sequential")
	}

	ev.Reset()

	steps := []struct {
		clk, d, want int64
	}{
		{0, 1, 0},
		{1, 1, 1},
		{1, 0, 0},
		{0, 1, 0},
		{0, 1, 0},
	}

	for i, s := range steps {
		out, err := ev.Evaluate(map[string]int64{"clk": s.clk, "d": s.d})
		if err != nil {
			t.Fatalf("step %d: evaluate: %v", i, err)
		}

		if out["q"] != s.want {
			t.Errorf("step %d: q = %d, want %d", i, out["q"], s.want)
		}
	}
}

// S5 — 8-bit counter with synchronous reset.
func TestGolden_S5_Counter8(t *testing.T) {
	ir, cache := loadFixture(t, "counter8")

	ev, err := NewEvaluator(ir, cache, svDir, "", nil, DefaultConfig())
	if err != nil {
		t.Fatalf("constructing evaluator: %v", err)
	}

	ev.Reset()

	steps := []struct {
		clk, rst, want int64
	}{
		{1, 0, 1},
		{1, 0, 2},
		{1, 0, 3},
		{1, 1, 0},
		{0, 0, 0},
	}

	for i, s := range steps {
		out, err := ev.Evaluate(map[string]int64{"clk": s.clk, "rst": s.rst})
		if err != nil {
			t.Fatalf("step %d: evaluate: %v", i, err)
		}

		if out["cnt"] != s.want {
			t.Errorf("step %d: cnt = %d, want %d", i, out["cnt"], s.want)
		}
	}
}

// S6 — rom_ primitive short-circuit.
func TestGolden_S6_RomBoot(t *testing.T) {
	ir, cache := loadFixture(t, "rom_boot")

	ev, err := NewEvaluator(ir, cache, svDir, "", nil, DefaultConfig())
	if err != nil {
		t.Fatalf("constructing evaluator: %v", err)
	}

	out, err := ev.Evaluate(map[string]int64{"addr": 2})
	if err != nil {
		t.Fatalf("evaluate(addr=2): %v", err)
	}

	if out["data"] != 0xCC {
		t.Errorf("data at addr 2 = %#x, want 0xCC", out["data"])
	}

	out, err = ev.Evaluate(map[string]int64{"addr": 17})
	if err != nil {
		t.Fatalf("evaluate(addr=17): %v", err)
	}

	if out["data"] != 0xBB {
		t.Errorf("data at addr 17 (wraps to 17%%4=1) = %#x, want 0xBB", out["data"])
	}
}

// B3 — negedge-low input on a posedge block produces no state change.
func TestGolden_B3_NoEdgeNoChange(t *testing.T) {
	ir, cache := loadFixture(t, "register1")

	ev, err := NewEvaluator(ir, cache, svDir, "", nil, DefaultConfig())
	if err != nil {
		t.Fatalf("constructing evaluator: %v", err)
	}

	ev.Reset()

	out, err := ev.Evaluate(map[string]int64{"clk": 0, "d": 1})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	if out["q"] != 0 {
		t.Fatalf("q after clk=0 cycle = %d, want 0 (no edge)", out["q"])
	}
}
