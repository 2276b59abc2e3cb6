package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dlathrop/svsim/internal/hdl"
	"github.com/dlathrop/svsim/pkg/sim"
)

// computeCmd evaluates a single module once against an explicit set of
// input values and prints the resulting outputs.
var computeCmd = &cobra.Command{
	Use:   "compute module.sv [--in name=value]...",
	Short: "Evaluate one module once and print its outputs.",
	Long: `Parse a module and evaluate it for one input assignment. For a
purely combinational module this computes the fixed point once; for a
sequential module it runs one clock cycle.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		configureLogging(cmd)

		ir, sourceDir, err := loadTopModule(cmd, args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		inputs, err := parseAssignments(GetStringArray(cmd, "in"))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		cfg := simConfig(cmd)
		cache := hdl.NewCache(cfg.SearchPaths...)
		cache.Put(ir)

		ev, err := sim.NewEvaluator(ir, cache, sourceDir, "", nil, cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		outputs, err := ev.Evaluate(inputs)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		for _, name := range ir.Outputs {
			log.Debugf("output %s resolved", name)
			fmt.Printf("%s = %d\n", name, outputs[name])
		}
	},
}

func init() {
	computeCmd.Flags().StringArrayP("in", "i", nil, "input assignment name=value (repeatable)")
}
