package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chatlab/chatlab-core/internal/worker"
)

// newMergeCmd wires up the merge.* op group (§4.6, §6.4): stage several
// exports, inspect their conflicts, resolve and merge them into a
// canonical export, and clear the staging stores a merge left behind.
func newMergeCmd(configPath *string) *cobra.Command {
	root := &cobra.Command{
		Use:   "merge",
		Short: "Merge overlapping exports of the same conversation",
	}

	root.AddCommand(&cobra.Command{
		Use:   "info <file>",
		Short: "Sniff <file> and report its detected format, same as import info",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(*configPath, worker.OpMergeParseFileInfo, worker.MergeParseFileInfoPayload{SourcePath: args[0]})
		},
	})

	var checkMergeID string
	checkCmd := &cobra.Command{
		Use:   "check-conflicts <merge-id> <file>...",
		Short: "Stage the given exports and report timestamp/sender conflicts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mergeID := checkMergeID
			if mergeID == "" {
				mergeID = args[0]
				args = args[1:]
			}
			if len(args) == 0 {
				return fmt.Errorf("at least one source file is required")
			}
			return submit(*configPath, worker.OpMergeCheckConflicts, worker.MergeCheckConflictsPayload{
				MergeID:     mergeID,
				SourcePaths: args,
			})
		},
	}
	checkCmd.Flags().StringVar(&checkMergeID, "id", "", "merge id (defaults to the first positional argument)")
	root.AddCommand(checkCmd)

	var resolutionsCSV, outPath string
	var reimport bool
	mergeFilesCmd := &cobra.Command{
		Use:   "run <merge-id>",
		Short: "Merge a previously-staged merge id into a canonical export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolutions, err := parseResolutions(resolutionsCSV)
			if err != nil {
				return err
			}
			return submit(*configPath, worker.OpMergeMergeFiles, worker.MergeMergeFilesPayload{
				MergeID:     args[0],
				Resolutions: resolutions,
				OutPath:     outPath,
				Reimport:    reimport,
			})
		},
	}
	mergeFilesCmd.Flags().StringVar(&resolutionsCSV, "resolutions", "",
		"comma-separated timestamp:senderPlatformId:sourceIndex triples resolving conflicts (§9)")
	mergeFilesCmd.Flags().StringVar(&outPath, "out", "", "canonical export output path")
	mergeFilesCmd.Flags().BoolVar(&reimport, "reimport", false, "re-enter the import pipeline against the merged export")
	root.AddCommand(mergeFilesCmd)

	root.AddCommand(&cobra.Command{
		Use:   "clear-cache <merge-id>",
		Short: "Evict and delete every staging store for a merge id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(*configPath, worker.OpMergeClearCache, worker.MergeClearCachePayload{MergeID: args[0]})
		},
	})

	return root
}

// parseResolutions parses "ts:sender:sourceIndex" triples, the CLI's plain-
// text encoding of worker.MergeResolution (merge.Resolution).
func parseResolutions(csv string) ([]worker.MergeResolution, error) {
	parts := splitCSV(csv)
	out := make([]worker.MergeResolution, 0, len(parts))
	for _, p := range parts {
		fields := strings.Split(p, ":")
		if len(fields) != 3 {
			return nil, fmt.Errorf("invalid resolution %q: want timestamp:senderPlatformId:sourceIndex", p)
		}
		ts, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid resolution timestamp in %q: %w", p, err)
		}
		idx, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("invalid resolution source index in %q: %w", p, err)
		}
		out = append(out, worker.MergeResolution{Timestamp: ts, SenderID: fields[1], SourceIndex: idx})
	}
	return out, nil
}
