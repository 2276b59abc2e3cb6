package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dlathrop/svsim/internal/hdl"
	"github.com/dlathrop/svsim/pkg/sim"
)

// GetFlag gets an expected flag, or prints the error and exits with status 2.
func GetFlag(cmd *cobra.Command, flag string) bool {
	r, err := cmd.Flags().GetBool(flag)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	return r
}

// GetUint gets an expected unsigned integer, or prints the error and exits
// with status 4.
func GetUint(cmd *cobra.Command, flag string) uint {
	r, err := cmd.Flags().GetUint(flag)
	if err != nil {
		fmt.Println(err)
		os.Exit(4)
	}

	return r
}

// GetUint64 gets an expected unsigned 64-bit integer, or prints the error
// and exits with status 4.
func GetUint64(cmd *cobra.Command, flag string) uint64 {
	r, err := cmd.Flags().GetUint64(flag)
	if err != nil {
		fmt.Println(err)
		os.Exit(4)
	}

	return r
}

// GetString gets an expected string, or prints the error and exits with
// status 4.
func GetString(cmd *cobra.Command, flag string) string {
	r, err := cmd.Flags().GetString(flag)
	if err != nil {
		fmt.Println(err)
		os.Exit(4)
	}

	return r
}

// GetStringArray gets an expected string array, or prints the error and
// exits with status 4.
func GetStringArray(cmd *cobra.Command, flag string) []string {
	r, err := cmd.Flags().GetStringArray(flag)
	if err != nil {
		fmt.Println(err)
		os.Exit(4)
	}

	return r
}

// simConfig builds a sim.Config from the persistent flags every subcommand
// shares.
func simConfig(cmd *cobra.Command) sim.Config {
	return sim.Config{
		MaxCombinations: GetUint64(cmd, "max-combos"),
		FixedPointSlack: GetUint(cmd, "slack"),
		SearchPaths:     GetStringArray(cmd, "search"),
	}
}

// loadTopModule parses path as the top-level module under simulation,
// returning its IR and the directory future relative lookups (child
// modules, rom_ data files) should anchor on.
func loadTopModule(cmd *cobra.Command, path string) (*hdl.ModuleIR, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}

	ir, err := hdl.ParseModule(string(data))
	if err != nil {
		return nil, "", err
	}

	return ir, filepath.Dir(path), nil
}

// parseAssignments parses a list of "name=value" strings (as produced by a
// repeated --in flag) into an input map. Values accept 0x/0b/0o-prefixed or
// decimal integer literals.
func parseAssignments(pairs []string) (map[string]int64, error) {
	out := make(map[string]int64, len(pairs))

	for _, p := range pairs {
		eq := strings.IndexByte(p, '=')
		if eq < 0 {
			return nil, fmt.Errorf("malformed assignment %q, expected name=value", p)
		}

		name := strings.TrimSpace(p[:eq])
		valueText := strings.TrimSpace(p[eq+1:])

		v, err := strconv.ParseInt(valueText, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed value in %q: %w", p, err)
		}

		out[name] = v
	}

	return out, nil
}
