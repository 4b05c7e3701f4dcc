package main

import (
	"github.com/spf13/cobra"

	"github.com/chatlab/chatlab-core/internal/worker"
)

func newImportCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a chat export into a fresh session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proc, err := openProcess(*configPath)
			if err != nil {
				return err
			}
			defer proc.Close()
			req := worker.Request{
				ID:      newRequestID(),
				Op:      worker.OpImportStream,
				Payload: worker.ImportStreamPayload{SourcePath: args[0]},
			}
			return submitAndPrint(proc, req)
		},
	}

	var sessionID string
	incCmd := &cobra.Command{
		Use:   "incremental <file>",
		Short: "Copy only the new messages in <file> into an existing session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proc, err := openProcess(*configPath)
			if err != nil {
				return err
			}
			defer proc.Close()
			req := worker.Request{
				ID: newRequestID(),
				Op: worker.OpImportIncremental,
				Payload: worker.ImportIncrementalPayload{
					SessionID:  sessionID,
					SourcePath: args[0],
				},
			}
			return submitAndPrint(proc, req)
		},
	}
	incCmd.Flags().StringVar(&sessionID, "session", "", "session id to import into")
	incCmd.MarkFlagRequired("session")
	cmd.AddCommand(incCmd)

	infoCmd := &cobra.Command{
		Use:   "info <file>",
		Short: "Sniff <file> and report its detected format without importing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proc, err := openProcess(*configPath)
			if err != nil {
				return err
			}
			defer proc.Close()
			req := worker.Request{
				ID:      newRequestID(),
				Op:      worker.OpImportParseFileInfo,
				Payload: worker.ImportParseFileInfoPayload{SourcePath: args[0]},
			}
			return submitAndPrint(proc, req)
		},
	}
	cmd.AddCommand(infoCmd)

	return cmd
}
