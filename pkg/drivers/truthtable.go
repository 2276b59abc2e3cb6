// Package drivers implements the two batch drivers built on top of
// pkg/sim: an exhaustive combinational truth-table enumerator (C9) and a
// JSON vector-file test runner (C10).
package drivers

import (
	log "github.com/sirupsen/logrus"

	"github.com/dlathrop/svsim/internal/hdl"
	"github.com/dlathrop/svsim/pkg/sim"
)

// Row is one truth-table entry: the input combination and the outputs it
// produced.
type Row struct {
	Inputs  map[string]int64
	Outputs map[string]int64
}

// TruthTable is the result of an exhaustive enumeration.
type TruthTable struct {
	Columns   []string
	Rows      []Row
	Truncated bool
	Total     uint64
}

// RunTruthTable enumerates every input combination for ir (declaration
// order, MSB-first packing across the concatenated input width), calling
// ev.Evaluate for each, up to maxCombinations rows. If the full space
// exceeds that cap, the enumeration is truncated and a warning logged
// (spec.md §4.10, B1).
func RunTruthTable(ir *hdl.ModuleIR, ev sim.Evaluator, maxCombinations uint64) (*TruthTable, error) {
	widths := make([]int, len(ir.Inputs))
	totalWidth := 0

	for i, name := range ir.Inputs {
		w := 1
		if decl, ok := ir.Signals[name]; ok {
			w = decl.Width()
		}

		widths[i] = w
		totalWidth += w
	}

	full, exact := spaceSize(totalWidth)

	truncated := !exact || full > maxCombinations

	limit := full
	if truncated {
		limit = maxCombinations
	}

	if truncated {
		log.Warnf("truth table for %s truncated: %d/%d combinations (max-combinations=%d)",
			ir.Name, limit, full, maxCombinations)
	}

	table := &TruthTable{Columns: append([]string(nil), ir.Inputs...), Total: full}

	for i := uint64(0); i < limit; i++ {
		inputs := sliceCombination(i, ir.Inputs, widths, totalWidth)

		outputs, err := ev.Evaluate(inputs)
		if err != nil {
			return nil, err
		}

		table.Rows = append(table.Rows, Row{Inputs: inputs, Outputs: outputs})
	}

	table.Truncated = truncated

	return table, nil
}

// spaceSize returns 2^totalWidth and whether that value is exactly
// representable in a uint64 (it overflows once totalWidth >= 64, in which
// case the caller should treat the space as unbounded and rely solely on
// maxCombinations).
func spaceSize(totalWidth int) (uint64, bool) {
	if totalWidth >= 64 {
		return ^uint64(0), false
	}

	return uint64(1) << uint(totalWidth), true
}

// sliceCombination packs combo's bits into one int64 per input, MSB-first
// in declaration order.
func sliceCombination(combo uint64, names []string, widths []int, totalWidth int) map[string]int64 {
	inputs := make(map[string]int64, len(names))
	pos := totalWidth

	for i, name := range names {
		w := widths[i]
		pos -= w

		mask := uint64(1)<<uint(w) - 1
		inputs[name] = int64((combo >> uint(pos)) & mask)
	}

	return inputs
}
