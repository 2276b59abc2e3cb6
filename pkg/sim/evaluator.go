package sim

import (
	"github.com/dlathrop/svsim/internal/hdl"
)

// Evaluator is the capability shared by every evaluatable module instance,
// combinational or sequential (spec.md §9 redesign note: "express this as a
// polymorphic Evaluator capability with two variants behind a common
// interface exposing evaluate, peek, and reset" rather than relying on
// dynamic introspection of the module's own statement count).
type Evaluator interface {
	// Evaluate drives one full evaluation given primary-input values,
	// returning the resulting output values. For a Sequential instance
	// this advances persistent state (Sample/Compute/Commit/Re-present);
	// for a Combinational instance it recomputes the fixed point and
	// recursively advances any sequential children.
	Evaluate(inputs map[string]int64) (map[string]int64, error)
	// Peek reports what Evaluate would currently return without
	// advancing any persistent state anywhere in the instance subtree.
	Peek(inputs map[string]int64) (map[string]int64, error)
	// Reset restores persistent state throughout the instance subtree:
	// registers to zero, memories to their loaded init image (zero when
	// no file is bound).
	Reset()
	// IsSequential reports whether this instance itself owns persistent
	// state (has at least one always_ff block). Purely combinational
	// wrapper modules report false even when a descendant is sequential.
	IsSequential() bool
}

// NewEvaluator constructs the Evaluator for ir: a RomPrimitive if its name
// begins with rom_, else a Sequential if it declares any always_ff block,
// otherwise a Combinational. cache resolves child
// module names; sourceDir anchors relative module search; instancePath is
// this instance's dotted path from the simulation root (used for memory
// binding resolution, spec.md §4.8); bindings are applied against this
// instance's own memories and passed down to children unchanged.
func NewEvaluator(
	ir *hdl.ModuleIR,
	cache *hdl.Cache,
	sourceDir string,
	instancePath string,
	bindings []Binding,
	cfg Config,
) (Evaluator, error) {
	if isRomPrimitive(ir.Name) {
		return newRomPrimitive(ir, sourceDir)
	}

	if len(ir.SeqBlocks) > 0 {
		return newSequential(ir, cache, sourceDir, instancePath, bindings, cfg)
	}

	return newCombinational(ir, cache, sourceDir, instancePath, bindings, cfg)
}

func childInstancePath(parent, instance string) string {
	if parent == "" {
		return instance
	}

	return parent + "." + instance
}

func bindMemories(ir *hdl.ModuleIR, instancePath string, bindings []Binding) (map[string]*MemoryArray, error) {
	arrays := make(map[string]*MemoryArray, len(ir.Memories))

	for name, decl := range ir.Memories {
		arr := NewMemoryArray(decl)

		for _, b := range bindings {
			if !b.Matches(ir.Name, instancePath, name) {
				continue
			}

			arr.Mode = b.Mode

			if b.File != "" {
				if err := arr.LoadFile(b.File); err != nil {
					return nil, err
				}
			}

			break
		}

		arrays[name] = arr
	}

	return arrays, nil
}
