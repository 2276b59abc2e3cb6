// Package sim implements the combinational and sequential evaluation
// engines (spec.md §4.5-§4.8): a fixed-point propagator over continuous
// assignments and sub-instances, a per-cycle wrapper implementing
// blocking/non-blocking discipline, and the memory subsystem backing both.
package sim

// Config carries the small set of knobs spec.md leaves as implementation
// choices: the truth-table enumeration cap, the fixed-point iteration
// slack constant `k` (spec.md §4.5), and extra module search directories
// layered on top of the module cache's default CWD/source-dir search.
type Config struct {
	// MaxCombinations bounds truth-table enumeration (spec.md §4.10, B1).
	MaxCombinations uint64
	// FixedPointSlack is the constant `k` added to the combinational
	// fixed-point iteration bound |assignments|+2*|combBlocks|+k.
	FixedPointSlack uint
	// SearchPaths are extra directories the module cache consults after
	// the working directory and the referencing source's directory.
	SearchPaths []string
}

// DefaultConfig returns svsim's default configuration.
func DefaultConfig() Config {
	return Config{
		MaxCombinations: 1 << 20,
		FixedPointSlack: 8,
	}
}
