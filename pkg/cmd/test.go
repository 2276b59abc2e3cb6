package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"encoding/json"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dlathrop/svsim/internal/hdl"
	"github.com/dlathrop/svsim/pkg/drivers"
	"github.com/dlathrop/svsim/pkg/sim"
)

// testCmd runs a JSON vector file against a module, reporting pass/fail per
// row, cycle, or test case.
var testCmd = &cobra.Command{
	Use:   "test module.sv vectors.json",
	Short: "Run a JSON vector file against a module.",
	Long: `Parse a module and a vector file (combinational rows, legacy
test_cycles, or modern test_cases/sequence, per spec.md §6), evaluating each
row/cycle/case against the module and reporting which passed.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		configureLogging(cmd)

		ir, sourceDir, err := loadTopModule(cmd, args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		vectorPath := args[1]

		data, err := os.ReadFile(vectorPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		var raw map[string]json.RawMessage
		// Non-object shapes (a bare combinational array) carry no memory
		// bindings; ignore the unmarshal error and proceed with none.
		_ = json.Unmarshal(data, &raw)

		bindings, err := drivers.ExtractBindings(raw, filepath.Dir(vectorPath))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		cfg := simConfig(cmd)
		cache := hdl.NewCache(cfg.SearchPaths...)
		cache.Put(ir)

		ev, err := sim.NewEvaluator(ir, cache, sourceDir, "", bindings, cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		report, err := drivers.RunVectorFile(data, ev)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		for _, r := range report.Results {
			if r.Passed {
				log.Debugf("PASS %s", r.Name)
				continue
			}

			fmt.Printf("FAIL %s: %s\n", r.Name, r.Message)
		}

		fmt.Printf("%d/%d passed\n", report.Passed, report.Total)

		if cov := report.CoverageSummary(); cov != "" {
			log.Debugf("bit coverage: %s", cov)
		}

		if report.Passed != report.Total {
			os.Exit(1)
		}
	},
}
