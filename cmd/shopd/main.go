// README: shopd CLI entry point; serve runs the engine, the other commands talk to a running instance.
package main

import (
	"log"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "shopd",
		Short:         "Real-time shopper dispatch engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newScanOnceCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newBenchCmd())
	return root
}
