package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/chatlab/chatlab-core/internal/bootstrap"
	"github.com/chatlab/chatlab-core/internal/config"
	"github.com/chatlab/chatlab-core/internal/logging"
	"github.com/chatlab/chatlab-core/internal/worker"
)

// openProcess loads configPath and wires up the same registry/dispatch/
// worker.Host graph chatlabd runs, for a single CLI invocation.
func openProcess(configPath string) (*bootstrap.Process, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	cfg = bootstrap.ResolvePaths(cfg, filepath.Dir(configPath))
	logger, err := logging.Setup(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return bootstrap.New(cfg, logger.WithField("component", "chatlabctl"))
}

// submitAndPrint runs req against proc.Host, rendering progress lines with
// humanize'd byte counts to stderr-style feedback and the final result as
// indented JSON to stdout.
func submitAndPrint(proc *bootstrap.Process, req worker.Request) error {
	resp := proc.Host.Submit(context.Background(), req, func(p worker.Progress) {
		if p.TotalBytes > 0 {
			fmt.Printf("[%s] %s: %s / %s (%d%%)\n", req.Op, p.Stage,
				humanize.Bytes(uint64(p.BytesRead)), humanize.Bytes(uint64(p.TotalBytes)), p.Percentage)
		} else {
			fmt.Printf("[%s] %s: %s messages\n", req.Op, p.Stage, humanize.Comma(p.MessagesProcessed))
		}
	})
	if !resp.OK {
		return resp.Err
	}
	out, err := json.MarshalIndent(resp.Result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func newRequestID() string { return worker.NewRequestID() }

// filterFlags holds the three independent §3 "Filter" fields as plain int64
// flag targets; only the ones the user actually set (per cmd.Flags().
// Changed) end up non-nil in the worker.Filter, matching the filter's
// "each independent" semantics rather than treating an unset 0 as a real
// boundary.
type filterFlags struct {
	startTs  int64
	endTs    int64
	memberID int64
}

func addFilterFlags(cmd *cobra.Command, f *filterFlags) {
	cmd.Flags().Int64Var(&f.startTs, "start", 0, "filter: minimum timestamp (inclusive, unix seconds)")
	cmd.Flags().Int64Var(&f.endTs, "end", 0, "filter: maximum timestamp (inclusive, unix seconds)")
	cmd.Flags().Int64Var(&f.memberID, "member", 0, "filter: member id")
}

func (f *filterFlags) toFilter(cmd *cobra.Command) worker.Filter {
	var out worker.Filter
	if cmd.Flags().Changed("start") {
		out.StartTs = &f.startTs
	}
	if cmd.Flags().Changed("end") {
		out.EndTs = &f.endTs
	}
	if cmd.Flags().Changed("member") {
		out.MemberID = &f.memberID
	}
	return out
}

// splitCSV splits a comma-separated flag value into its trimmed, non-empty
// parts. An empty s yields a nil slice, so an unset --keywords/--sessions
// flag composes cleanly with the payload fields it feeds.
func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseInt64CSV parses a comma-separated list of message/session ids.
func parseInt64CSV(s string) ([]int64, error) {
	parts := splitCSV(s)
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// submit builds a Request from op/payload, opens the process for the
// duration of the call, and prints the result the same way submitAndPrint
// does — a small convenience for the many single-shot leaf commands in
// session.go/query.go/merge.go/migrate.go.
func submit(configPath string, op string, payload any) error {
	proc, err := openProcess(configPath)
	if err != nil {
		return err
	}
	defer proc.Close()
	return submitAndPrint(proc, worker.Request{ID: newRequestID(), Op: op, Payload: payload})
}
