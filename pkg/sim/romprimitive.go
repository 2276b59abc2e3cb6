package sim

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/dlathrop/svsim/internal/hdl"
)

// RomPrimitive implements the `rom_` short-circuit (spec.md §4.7): a module
// whose name begins with rom_ is never elaborated from its body (if any).
// Instead its first input is an address into a data file named
// `<rest-of-name>.txt`, and its first output returns the looked-up word.
// It is stateless, so Peek and Evaluate coincide and Reset is a no-op.
type RomPrimitive struct {
	addrPort  string
	dataPort  string
	dataWidth int
	data      []int64
}

// isRomPrimitive reports whether name triggers the rom_ short-circuit.
func isRomPrimitive(name string) bool {
	return strings.HasPrefix(name, "rom_")
}

// newRomPrimitive loads the backing data file for ir (whose name must
// begin with rom_) and builds its lookup table. sourceDir anchors the
// search for the data file: sourceDir itself, then sourceDir/roms, then
// ./roms relative to the process working directory.
func newRomPrimitive(ir *hdl.ModuleIR, sourceDir string) (*RomPrimitive, error) {
	if len(ir.Inputs) == 0 || len(ir.Outputs) == 0 {
		return nil, &hdl.Error{
			Kind:    hdl.MissingROM,
			Message: "rom_ primitive must declare at least one input and one output",
			Context: ir.Name,
		}
	}

	rest := strings.TrimPrefix(ir.Name, "rom_")
	filename := rest + ".txt"

	path, err := locateRomFile(sourceDir, filename)
	if err != nil {
		return nil, err
	}

	values, err := loadRomFile(path)
	if err != nil {
		return nil, err
	}

	dataPort := ir.Outputs[0]

	width := 1
	if decl, ok := ir.Signals[dataPort]; ok {
		width = decl.Width()
	}

	return &RomPrimitive{
		addrPort:  ir.Inputs[0],
		dataPort:  dataPort,
		dataWidth: width,
		data:      values,
	}, nil
}

func locateRomFile(sourceDir, filename string) (string, error) {
	candidates := []string{
		filepath.Join(sourceDir, filename),
		filepath.Join(sourceDir, "roms", filename),
		filepath.Join("roms", filename),
	}

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", &hdl.Error{
		Kind:    hdl.MissingROM,
		Message: "rom data file not found",
		Context: filename,
	}
}

func loadRomFile(path string) ([]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &hdl.Error{Kind: hdl.MissingROM, Message: "cannot read rom data file", Context: path}
	}
	defer f.Close()

	var values []int64

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}

		v, err := parseInitValue(line)
		if err != nil {
			return nil, &hdl.Error{Kind: hdl.MissingROM, Message: "malformed rom data value", Context: line}
		}

		values = append(values, v)
	}

	if err := scanner.Err(); err != nil {
		return nil, &hdl.Error{Kind: hdl.MissingROM, Message: "error reading rom data file", Context: path}
	}

	return values, nil
}

func (r *RomPrimitive) lookup(inputs map[string]int64) map[string]int64 {
	depth := int64(len(r.data))

	var value int64

	if depth > 0 {
		addr := inputs[r.addrPort] % depth
		if addr < 0 {
			addr += depth
		}

		value = maskWord(r.data[addr], r.dataWidth)
	}

	return map[string]int64{r.dataPort: value}
}

// Evaluate implements Evaluator.
func (r *RomPrimitive) Evaluate(inputs map[string]int64) (map[string]int64, error) {
	return r.lookup(inputs), nil
}

// Peek implements Evaluator.
func (r *RomPrimitive) Peek(inputs map[string]int64) (map[string]int64, error) {
	return r.lookup(inputs), nil
}

// Reset implements Evaluator: a rom_ primitive carries no mutable state.
func (r *RomPrimitive) Reset() {}

// IsSequential implements Evaluator.
func (r *RomPrimitive) IsSequential() bool { return false }
