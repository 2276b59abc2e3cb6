package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/term"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dlathrop/svsim/internal/hdl"
	"github.com/dlathrop/svsim/pkg/drivers"
	"github.com/dlathrop/svsim/pkg/sim"
)

// traceCmd drives a sequential module cycle-by-cycle, printing its inputs
// and outputs on each cycle. It is a thin presentation layer over C7 and
// exists to give C10's sequential path a CLI entrypoint; it performs no
// evaluation logic of its own.
var traceCmd = &cobra.Command{
	Use:   "trace module.sv vectors.json",
	Short: "Drive a sequential module cycle-by-cycle and print a trace.",
	Long: `Parse a module and a vector file containing legacy test_cycles or
modern test_cases/sequence entries, evaluating one clock cycle per entry and
printing its inputs and resulting outputs. Unlike "svsim test" this does not
check expectations; it is purely observational.`,
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

		cycles, err := drivers.ExtractCycles(data)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		ev.Reset()

		interactive := term.IsTerminal(int(os.Stdout.Fd()))

		for i, inputs := range cycles {
			outputs, err := ev.Evaluate(inputs)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}

			log.Debugf("cycle %d: inputs=%v", i, inputs)

			line := formatCycle(i, inputs, outputs)

			if interactive {
				fmt.Printf("\r%s", line)
			} else {
				fmt.Println(line)
			}
		}

		if interactive {
			fmt.Println()
		}
	},
}

func formatCycle(i int, inputs, outputs map[string]int64) string {
	line := fmt.Sprintf("cycle %d:", i)

	for _, name := range sortedKeys(inputs) {
		line += fmt.Sprintf(" %s=%d", name, inputs[name])
	}

	line += " ->"

	for _, name := range sortedKeys(outputs) {
		line += fmt.Sprintf(" %s=%d", name, outputs[name])
	}

	return line
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
