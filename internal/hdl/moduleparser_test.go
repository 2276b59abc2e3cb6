package hdl

import "testing"

func TestParseModule_0(t *testing.T) {
	ir, err := ParseModule(`module nand_gate(input inA, input inB, output outY);
  assign outY = ~(inA & inB);
endmodule`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ir.Name != "nand_gate" {
		t.Errorf("expected name nand_gate, got %s", ir.Name)
	}

	if len(ir.Inputs) != 2 || len(ir.Outputs) != 1 {
		t.Errorf("expected 2 inputs/1 output, got %d/%d", len(ir.Inputs), len(ir.Outputs))
	}
}

func TestParseModule_1(t *testing.T) {
	ir, err := ParseModule(`module adder(input [3:0] A, input [3:0] B, output [3:0] Sum);
  assign Sum = A + B;
endmodule`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	w, ok := ir.SignalWidth("A")
	if !ok || w != 4 {
		t.Errorf("expected A to have width 4, got %d (ok=%v)", w, ok)
	}
}

func TestParseModule_2(t *testing.T) {
	_, err := ParseModule(`not a module at all`)
	if err == nil {
		t.Fatalf("expected error for missing module declaration")
	}

	if !Is(err, InvalidSource) {
		t.Errorf("expected InvalidSource, got %v", err)
	}
}

func TestParseModule_3(t *testing.T) {
	ir, err := ParseModule(`module reg1(input clk, input d, output reg q);
  always_ff @(posedge clk) begin
    q <= d;
  end
endmodule`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ir.SeqBlocks) != 1 {
		t.Fatalf("expected one always_ff block, got %d", len(ir.SeqBlocks))
	}

	if ir.SeqBlocks[0].Clock != "clk" {
		t.Errorf("expected clock clk, got %s", ir.SeqBlocks[0].Clock)
	}
}

func TestParseModule_4(t *testing.T) {
	ir, err := ParseModule(`module child(input a, output b);
  assign b = a;
endmodule
module top(input x, output y);
  child c1(.a(x), .b(y));
endmodule`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// ParseModule recognizes only the first module declaration; each
	// module lives in its own file, resolved on demand by Cache.
	if ir.Name != "child" {
		t.Errorf("expected first module child, got %s", ir.Name)
	}
}
