package drivers

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/bits-and-blooms/bitset"

	"github.com/dlathrop/svsim/pkg/sim"
)

// VectorResult is the outcome of one expectation check within a vector
// file: one combinational row, one legacy cycle, or one modern test case
// (or one step of its sequence).
type VectorResult struct {
	Name    string
	Passed  bool
	Message string
}

// VectorReport summarizes a whole vector file run (spec.md §4.10: the
// driver "returns (passed, total)").
type VectorReport struct {
	Results  []VectorResult
	Passed   int
	Total    int
	Coverage map[string]*bitset.BitSet
}

func (r *VectorReport) record(name string, passed bool, message string) {
	r.Results = append(r.Results, VectorResult{Name: name, Passed: passed, Message: message})
	r.Total++

	if passed {
		r.Passed++
	}
}

// observe marks, for each named signal, which bit position held a 1 in this
// row. Run across a whole vector file this accumulates a per-signal "which
// bits were ever exercised" coverage map, printed as a one-line summary by
// the CLI; it is additive instrumentation, not a pass/fail criterion.
func (r *VectorReport) observe(values map[string]int64) {
	if r.Coverage == nil {
		r.Coverage = make(map[string]*bitset.BitSet)
	}

	for name, v := range values {
		bs, ok := r.Coverage[name]
		if !ok {
			bs = bitset.New(64)
			r.Coverage[name] = bs
		}

		for bit := uint(0); bit < 64; bit++ {
			if v&(int64(1)<<bit) != 0 {
				bs.Set(bit)
			}
		}
	}
}

// CoverageSummary renders the observed-bit counts in signal name order.
func (r *VectorReport) CoverageSummary() string {
	names := make([]string, 0, len(r.Coverage))
	for name := range r.Coverage {
		names = append(names, name)
	}

	sort.Strings(names)

	summary := ""

	for _, name := range names {
		summary += fmt.Sprintf("%s:%d ", name, r.Coverage[name].Count())
	}

	return summary
}

// memoryBindingSpec mirrors one entry of memory_init / memory_files /
// rom / ram (spec.md §6).
type memoryBindingSpec struct {
	Type         string `json:"type"`
	Module       string `json:"module"`
	Instance     string `json:"instance"`
	InstancePath string `json:"instance_path"`
	Memory       string `json:"memory"`
	Name         string `json:"name"`
	File         string `json:"file"`
	Path         string `json:"path"`
}

func (s memoryBindingSpec) toBinding(baseDir string) sim.Binding {
	mode := sim.RAM
	if s.Type == "rom" {
		mode = sim.ROM
	}

	instancePath := s.InstancePath
	if instancePath == "" {
		instancePath = s.Instance
	}

	memName := s.Memory
	if memName == "" {
		memName = s.Name
	}

	file := s.File
	if file == "" {
		file = s.Path
	}

	if file != "" && !filepath.IsAbs(file) {
		file = filepath.Join(baseDir, file)
	}

	return sim.Binding{
		Module:       s.Module,
		InstancePath: instancePath,
		Memory:       memName,
		File:         file,
		Mode:         mode,
	}
}

// ExtractBindings parses the memory-binding keys a vector file may carry
// (memory_init array, memory_files.rom/ram, or bare top-level rom/ram,
// each either an object or an array of objects), resolving relative file
// paths against baseDir (the vector file's own directory).
func ExtractBindings(raw map[string]json.RawMessage, baseDir string) ([]sim.Binding, error) {
	var bindings []sim.Binding

	if v, ok := raw["memory_init"]; ok {
		specs, err := decodeSpecList(v)
		if err != nil {
			return nil, fmt.Errorf("memory_init: %w", err)
		}

		for _, s := range specs {
			bindings = append(bindings, s.toBinding(baseDir))
		}
	}

	if v, ok := raw["memory_files"]; ok {
		var byKind map[string]json.RawMessage
		if err := json.Unmarshal(v, &byKind); err != nil {
			return nil, fmt.Errorf("memory_files: %w", err)
		}

		for kind, list := range byKind {
			specs, err := decodeSpecList(list)
			if err != nil {
				return nil, fmt.Errorf("memory_files.%s: %w", kind, err)
			}

			for _, s := range specs {
				if s.Type == "" {
					s.Type = kind
				}

				bindings = append(bindings, s.toBinding(baseDir))
			}
		}
	}

	for _, kind := range []string{"rom", "ram"} {
		v, ok := raw[kind]
		if !ok {
			continue
		}

		specs, err := decodeSpecList(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", kind, err)
		}

		for _, s := range specs {
			if s.Type == "" {
				s.Type = kind
			}

			bindings = append(bindings, s.toBinding(baseDir))
		}
	}

	return bindings, nil
}

// decodeSpecList accepts either a single binding object or an array of
// them.
func decodeSpecList(raw json.RawMessage) ([]memoryBindingSpec, error) {
	var list []memoryBindingSpec
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var one memoryBindingSpec
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, err
	}

	return []memoryBindingSpec{one}, nil
}

// ===========================================================================
// Shape detection and execution
// ===========================================================================

type legacyCycle struct {
	Cycle           int              `json:"cycle"`
	Inputs          map[string]int64 `json:"inputs"`
	ExpectedOutputs map[string]int64 `json:"expected_outputs"`
	Description     string           `json:"description"`
}

type legacyDoc struct {
	TestType   string        `json:"test_type"`
	TestCycles []legacyCycle `json:"test_cycles"`
}

type modernCase struct {
	Name     string           `json:"name"`
	Inputs   map[string]int64 `json:"inputs"`
	Expected map[string]int64 `json:"expected"`
	Sequence []modernStep     `json:"sequence"`
}

type modernStep struct {
	Inputs   map[string]int64 `json:"inputs"`
	Expected map[string]int64 `json:"expected"`
}

type modernDoc struct {
	Sequential bool         `json:"sequential"`
	TestCases  []modernCase `json:"test_cases"`
}

type combRow struct {
	Values map[string]int64
	Expect map[string]int64
}

// RunVectorFile parses data (the contents of a vector JSON file) and runs
// it against ev, dispatching to the combinational,
// legacy-sequential, or modern-sequential shape (spec.md §6).
func RunVectorFile(data []byte, ev sim.Evaluator) (*VectorReport, error) {
	report := &VectorReport{}

	var arr []map[string]json.RawMessage
	if err := json.Unmarshal(data, &arr); err == nil {
		rows, err := parseCombinationalRows(arr)
		if err != nil {
			return nil, err
		}

		runCombinational(rows, ev, report)

		return report, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unrecognized vector file shape: %w", err)
	}

	if _, hasType := raw["test_type"]; hasType {
		var doc legacyDoc
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}

		runLegacySequential(doc, ev, report)

		return report, nil
	}

	var doc modernDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	runModernSequential(doc, ev, report)

	return report, nil
}

// ExtractCycles reduces a vector file to a flat, ordered list of per-cycle
// input maps, for "svsim trace" — which drives cycles without checking any
// expectations, so only the Inputs side of whichever shape the file carries
// matters.
func ExtractCycles(data []byte) ([]map[string]int64, error) {
	var arr []map[string]json.RawMessage
	if err := json.Unmarshal(data, &arr); err == nil {
		rows, err := parseCombinationalRows(arr)
		if err != nil {
			return nil, err
		}

		cycles := make([]map[string]int64, len(rows))
		for i, r := range rows {
			cycles[i] = r.Values
		}

		return cycles, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unrecognized vector file shape: %w", err)
	}

	if _, hasType := raw["test_type"]; hasType {
		var doc legacyDoc
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}

		cycles := make([]map[string]int64, len(doc.TestCycles))
		for i, c := range doc.TestCycles {
			cycles[i] = c.Inputs
		}

		return cycles, nil
	}

	var doc modernDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	var cycles []map[string]int64

	for _, tc := range doc.TestCases {
		if len(tc.Sequence) > 0 {
			for _, s := range tc.Sequence {
				cycles = append(cycles, s.Inputs)
			}

			continue
		}

		cycles = append(cycles, tc.Inputs)
	}

	return cycles, nil
}

func parseCombinationalRows(arr []map[string]json.RawMessage) ([]combRow, error) {
	rows := make([]combRow, 0, len(arr))

	for _, entry := range arr {
		row := combRow{Values: make(map[string]int64), Expect: make(map[string]int64)}

		for key, v := range entry {
			if key == "expect" {
				if err := json.Unmarshal(v, &row.Expect); err != nil {
					return nil, fmt.Errorf("expect: %w", err)
				}

				continue
			}

			var iv int64
			if err := json.Unmarshal(v, &iv); err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}

			row.Values[key] = iv
		}

		rows = append(rows, row)
	}

	return rows, nil
}

func runCombinational(rows []combRow, ev sim.Evaluator, report *VectorReport) {
	for i, row := range rows {
		outputs, err := ev.Evaluate(row.Values)

		name := fmt.Sprintf("row %d", i)

		if err != nil {
			report.record(name, false, err.Error())
			continue
		}

		report.observe(row.Values)
		report.observe(outputs)

		ok, msg := checkExpectations(row.Expect, outputs)
		report.record(name, ok, msg)
	}
}

func runLegacySequential(doc legacyDoc, ev sim.Evaluator, report *VectorReport) {
	ev.Reset()

	for _, cyc := range doc.TestCycles {
		outputs, err := ev.Evaluate(cyc.Inputs)

		name := cyc.Description
		if name == "" {
			name = fmt.Sprintf("cycle %d", cyc.Cycle)
		}

		if err != nil {
			report.record(name, false, err.Error())
			continue
		}

		report.observe(cyc.Inputs)
		report.observe(outputs)

		ok, msg := checkExpectations(cyc.ExpectedOutputs, outputs)
		report.record(name, ok, msg)
	}
}

func runModernSequential(doc modernDoc, ev sim.Evaluator, report *VectorReport) {
	for _, tc := range doc.TestCases {
		ev.Reset()

		if len(tc.Sequence) > 0 {
			for step, s := range tc.Sequence {
				outputs, err := ev.Evaluate(s.Inputs)

				name := fmt.Sprintf("%s[%d]", tc.Name, step)

				if err != nil {
					report.record(name, false, err.Error())
					continue
				}

				report.observe(s.Inputs)
				report.observe(outputs)

				ok, msg := checkExpectations(s.Expected, outputs)
				report.record(name, ok, msg)
			}

			continue
		}

		outputs, err := ev.Evaluate(tc.Inputs)
		if err != nil {
			report.record(tc.Name, false, err.Error())
			continue
		}

		report.observe(tc.Inputs)
		report.observe(outputs)

		ok, msg := checkExpectations(tc.Expected, outputs)
		report.record(tc.Name, ok, msg)
	}
}

func checkExpectations(expected, actual map[string]int64) (bool, string) {
	for name, want := range expected {
		got, ok := actual[name]
		if !ok {
			return false, fmt.Sprintf("missing output %s", name)
		}

		if got != want {
			return false, fmt.Sprintf("%s: expected %d, got %d", name, want, got)
		}
	}

	return true, ""
}
