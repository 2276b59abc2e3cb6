package drivers

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/dlathrop/svsim/pkg/sim"
)

const vectorDir = "../../testdata/vectors"

func runVectorFixture(t *testing.T, module, vectorFile string) *VectorReport {
	t.Helper()

	ir, cache := loadFixture(t, svDir, module)

	data, err := os.ReadFile(vectorDir + "/" + vectorFile)
	if err != nil {
		t.Fatalf("reading vector file: %v", err)
	}

	var raw map[string]json.RawMessage
	_ = json.Unmarshal(data, &raw)

	bindings, err := ExtractBindings(raw, svDir)
	if err != nil {
		t.Fatalf("ExtractBindings: %v", err)
	}

	ev, err := sim.NewEvaluator(ir, cache, svDir, "", bindings, sim.DefaultConfig())
	if err != nil {
		t.Fatalf("constructing evaluator: %v", err)
	}

	report, err := RunVectorFile(data, ev)
	if err != nil {
		t.Fatalf("RunVectorFile: %v", err)
	}

	return report
}

func TestVectorFile_0_NandGateCombinational(t *testing.T) {
	report := runVectorFixture(t, "nand_gate", "nand_gate.json")

	if report.Passed != report.Total {
		t.Errorf("nand_gate vectors: %d/%d passed", report.Passed, report.Total)

		for _, r := range report.Results {
			if !r.Passed {
				t.Logf("FAIL %s: %s", r.Name, r.Message)
			}
		}
	}
}

func TestVectorFile_1_XorViaNand(t *testing.T) {
	report := runVectorFixture(t, "xor_via_nand", "xor_via_nand.json")

	if report.Passed != report.Total {
		t.Errorf("xor_via_nand vectors: %d/%d passed", report.Passed, report.Total)
	}
}

func TestVectorFile_2_Adder4(t *testing.T) {
	report := runVectorFixture(t, "adder4", "adder4.json")

	if report.Passed != report.Total {
		t.Errorf("adder4 vectors: %d/%d passed", report.Passed, report.Total)
	}
}

func TestVectorFile_3_Register1ModernSequence(t *testing.T) {
	report := runVectorFixture(t, "register1", "register1.json")

	if report.Passed != report.Total {
		t.Errorf("register1 vectors: %d/%d passed", report.Passed, report.Total)

		for _, r := range report.Results {
			if !r.Passed {
				t.Logf("FAIL %s: %s", r.Name, r.Message)
			}
		}
	}
}

func TestVectorFile_4_Counter8ModernSequence(t *testing.T) {
	report := runVectorFixture(t, "counter8", "counter8.json")

	if report.Passed != report.Total {
		t.Errorf("counter8 vectors: %d/%d passed", report.Passed, report.Total)

		for _, r := range report.Results {
			if !r.Passed {
				t.Logf("FAIL %s: %s", r.Name, r.Message)
			}
		}
	}
}

func TestVectorFile_5_RomBoot(t *testing.T) {
	report := runVectorFixture(t, "rom_boot", "rom_boot.json")

	if report.Passed != report.Total {
		t.Errorf("rom_boot vectors: %d/%d passed", report.Passed, report.Total)
	}
}

func TestExtractBindings_0_BareRomKey(t *testing.T) {
	raw := map[string]json.RawMessage{
		"rom": json.RawMessage(`{"memory": "mem", "file": "boot.txt"}`),
	}

	bindings, err := ExtractBindings(raw, "/base")
	if err != nil {
		t.Fatalf("ExtractBindings: %v", err)
	}

	if len(bindings) != 1 {
		t.Fatalf("expected one binding, got %d", len(bindings))
	}

	if bindings[0].Mode != sim.ROM {
		t.Errorf("expected ROM mode from bare rom key")
	}

	if bindings[0].File != "/base/boot.txt" {
		t.Errorf("expected relative file joined against baseDir, got %s", bindings[0].File)
	}
}

func TestExtractBindings_1_MemoryFilesArray(t *testing.T) {
	raw := map[string]json.RawMessage{
		"memory_files": json.RawMessage(`{"ram": [{"instance": "cpu.regs", "path": "/abs/regs.txt"}]}`),
	}

	bindings, err := ExtractBindings(raw, "/base")
	if err != nil {
		t.Fatalf("ExtractBindings: %v", err)
	}

	if len(bindings) != 1 || bindings[0].Mode != sim.RAM {
		t.Fatalf("expected one RAM binding, got %+v", bindings)
	}

	if bindings[0].InstancePath != "cpu.regs" {
		t.Errorf("expected instance path cpu.regs, got %s", bindings[0].InstancePath)
	}
}
