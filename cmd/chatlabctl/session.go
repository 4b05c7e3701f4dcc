package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/chatlab/chatlab-core/internal/worker"
)

// newSessionCmd wires up the session.* and member.* op groups from §6.4
// under one "session" command tree — a session's members are logically
// owned by it (§3 "Ownership"), so nesting member.* under "session member"
// keeps chatlabctl's surface as flat as the actual worker.Op set.
func newSessionCmd(configPath *string) *cobra.Command {
	root := &cobra.Command{
		Use:   "session",
		Short: "Inspect and manage imported sessions",
	}

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every imported session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(*configPath, worker.OpSessionList, nil)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "get <session-id>",
		Short: "Show one session's summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(*configPath, worker.OpSessionGet, worker.SessionGetPayload{SessionID: args[0]})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "rename <session-id> <name>",
		Short: "Rename a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(*configPath, worker.OpSessionRename, worker.SessionRenamePayload{SessionID: args[0], Name: args[1]})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session's store and sidecars",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(*configPath, worker.OpSessionDelete, worker.SessionDeletePayload{SessionID: args[0]})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "set-owner <session-id> <owner-id>",
		Short: "Set a session's owner member id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(*configPath, worker.OpSessionUpdateOwnerID, worker.SessionUpdateOwnerIDPayload{SessionID: args[0], OwnerID: args[1]})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "set-gap-threshold <session-id> <seconds>",
		Short: "Set the session-index gap threshold used by generate-index",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			seconds, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return err
			}
			return submit(*configPath, worker.OpSessionUpdateGapThreshold, worker.SessionUpdateGapThresholdPayload{SessionID: args[0], Seconds: seconds})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "generate-index <session-id>",
		Short: "(Re)build the session-index for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(*configPath, worker.OpSessionGenerateIndex, worker.SessionGenerateIndexPayload{SessionID: args[0]})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "has-index <session-id>",
		Short: "Report whether a session-index has been built",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(*configPath, worker.OpSessionHasIndex, worker.SessionHasIndexPayload{SessionID: args[0]})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "index-stats <session-id>",
		Short: "Show session-index entry count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(*configPath, worker.OpSessionIndexStats, worker.SessionIndexStatsPayload{SessionID: args[0]})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "clear-index <session-id>",
		Short: "Drop a session's session-index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(*configPath, worker.OpSessionClearIndex, worker.SessionClearIndexPayload{SessionID: args[0]})
		},
	})

	root.AddCommand(newMemberCmd(configPath))
	return root
}

// newMemberCmd wires up the member.* op group (§6.4) under "session member".
func newMemberCmd(configPath *string) *cobra.Command {
	root := &cobra.Command{
		Use:   "member",
		Short: "Inspect and manage a session's members",
	}

	root.AddCommand(&cobra.Command{
		Use:   "list <session-id>",
		Short: "List a session's members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(*configPath, worker.OpMemberList, worker.MemberListPayload{SessionID: args[0]})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "name-history <session-id> <member-id>",
		Short: "Show a member's account/nickname history, oldest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			memberID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return err
			}
			return submit(*configPath, worker.OpMemberNameHistory, worker.MemberNameHistoryPayload{SessionID: args[0], MemberID: memberID})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "delete <session-id> <member-id>",
		Short: "Delete a member from a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			memberID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return err
			}
			return submit(*configPath, worker.OpMemberDelete, worker.MemberDeletePayload{SessionID: args[0], MemberID: memberID})
		},
	})

	var aliasesCSV string
	updateAliasesCmd := &cobra.Command{
		Use:   "set-aliases <session-id> <member-id>",
		Short: "Replace a member's user-defined alias list",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			memberID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return err
			}
			return submit(*configPath, worker.OpMemberUpdateAliases, worker.MemberUpdateAliasesPayload{
				SessionID: args[0],
				MemberID:  memberID,
				Aliases:   splitCSV(aliasesCSV),
			})
		},
	}
	updateAliasesCmd.Flags().StringVar(&aliasesCSV, "aliases", "", "comma-separated alias list")
	root.AddCommand(updateAliasesCmd)

	return root
}
