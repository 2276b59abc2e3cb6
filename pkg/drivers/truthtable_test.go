package drivers

import (
	"os"
	"testing"

	"github.com/dlathrop/svsim/internal/hdl"
	"github.com/dlathrop/svsim/pkg/sim"
)

func loadFixture(t *testing.T, dir, module string) (*hdl.ModuleIR, *hdl.Cache) {
	t.Helper()

	data, err := os.ReadFile(dir + "/" + module + ".sv")
	if err != nil {
		t.Fatalf("reading fixture: %v", err)
	}

	ir, err := hdl.ParseModule(string(data))
	if err != nil {
		t.Fatalf("parsing fixture: %v", err)
	}

	cache := hdl.NewCache(dir)
	cache.Put(ir)

	return ir, cache
}

const svDir = "../../testdata/sv"

func TestTruthTable_0_NandGateExhaustive(t *testing.T) {
	ir, cache := loadFixture(t, svDir, "nand_gate")

	ev, err := sim.NewEvaluator(ir, cache, svDir, "", nil, sim.DefaultConfig())
	if err != nil {
		t.Fatalf("constructing evaluator: %v", err)
	}

	table, err := RunTruthTable(ir, ev, 1<<20)
	if err != nil {
		t.Fatalf("RunTruthTable: %v", err)
	}

	if table.Truncated {
		t.Errorf("expected full enumeration, got truncated")
	}

	if len(table.Rows) != 4 {
		t.Fatalf("expected 4 rows for a 2-input gate, got %d", len(table.Rows))
	}

	for _, row := range table.Rows {
		want := int64(1)
		if row.Inputs["inA"] == 1 && row.Inputs["inB"] == 1 {
			want = 0
		}

		if row.Outputs["outY"] != want {
			t.Errorf("row %v: outY = %d, want %d", row.Inputs, row.Outputs["outY"], want)
		}
	}
}

// B1: truncation when the space exceeds maxCombinations.
func TestTruthTable_1_Truncation(t *testing.T) {
	ir, cache := loadFixture(t, svDir, "adder4")

	ev, err := sim.NewEvaluator(ir, cache, svDir, "", nil, sim.DefaultConfig())
	if err != nil {
		t.Fatalf("constructing evaluator: %v", err)
	}

	table, err := RunTruthTable(ir, ev, 5)
	if err != nil {
		t.Fatalf("RunTruthTable: %v", err)
	}

	if !table.Truncated {
		t.Errorf("expected truncation with maxCombinations=5")
	}

	if len(table.Rows) != 5 {
		t.Errorf("expected exactly 5 rows, got %d", len(table.Rows))
	}
}
