// Command chatlabctl is a local operator/debug CLI over the same core
// package surface cmd/chatlabd exposes over stdio — import a file or run a
// query directly, without round-tripping through the worker-host framing
// (§0).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:   "chatlabctl",
		Short: "Operator CLI for the chatlab-core import/query/merge/migrate surface",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "chatlabd.yaml", "path to the bootstrap config")

	root.AddCommand(newImportCmd(&configPath))
	root.AddCommand(newSessionCmd(&configPath))
	root.AddCommand(newQueryCmd(&configPath))
	root.AddCommand(newMergeCmd(&configPath))
	root.AddCommand(newMigrateCmd(&configPath))
	return root
}
