package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dlathrop/svsim/internal/hdl"
)

// gatesCmd prints the structural count of a designated primitive reachable
// through a module's instantiation tree.
var gatesCmd = &cobra.Command{
	Use:   "gates module.sv [--primitive name]",
	Short: "Count instances of a primitive reachable through a module.",
	Long: `Parse a module and walk its instantiation tree, counting how many
instances of the named primitive (default nand_gate) are reachable, whether
instantiated directly or nested inside other modules.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		configureLogging(cmd)

		ir, sourceDir, err := loadTopModule(cmd, args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		cfg := simConfig(cmd)
		cache := hdl.NewCache(cfg.SearchPaths...)
		cache.Put(ir)

		primitive := GetString(cmd, "primitive")

		count, err := hdl.CountPrimitiveGates(ir, cache, sourceDir, primitive)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		fmt.Printf("%d\n", count)
	},
}

func init() {
	gatesCmd.Flags().String("primitive", "nand_gate", "name of the primitive module to count")
}
