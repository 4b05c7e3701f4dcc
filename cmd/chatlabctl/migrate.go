package main

import (
	"github.com/spf13/cobra"

	"github.com/chatlab/chatlab-core/internal/worker"
)

// newMigrateCmd wires up the migration.* op group (§4.9, §6.4): report
// which stores trail the latest schema version and apply pending
// migrations to one of them.
func newMigrateCmd(configPath *string) *cobra.Command {
	root := &cobra.Command{
		Use:   "migrate",
		Short: "Check and apply pending schema migrations",
	}

	root.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Report the count of stores trailing the latest schema version and their pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(*configPath, worker.OpMigrationCheck, nil)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "run <session-id>",
		Short: "Apply every pending migration to one session's store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(*configPath, worker.OpMigrationRun, worker.MigrationRunPayload{SessionID: args[0]})
		},
	})

	return root
}
