package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/chatlab/chatlab-core/internal/worker"
)

// newQueryCmd wires up the query.*, msg.*, and sql.* op groups from §6.4
// under one "query" command tree, since every one of them is a read-only
// operation against a session's store parameterized by the same filter
// shape (§4.7).
func newQueryCmd(configPath *string) *cobra.Command {
	root := &cobra.Command{
		Use:   "query",
		Short: "Run read-only aggregate/behavioral/message queries against a session",
	}

	for _, agg := range []struct {
		use string
		op  string
	}{
		{"available-years <session-id>", worker.OpQueryAvailableYears},
		{"member-activity <session-id>", worker.OpQueryMemberActivity},
		{"hourly <session-id>", worker.OpQueryHourly},
		{"daily <session-id>", worker.OpQueryDaily},
		{"weekday <session-id>", worker.OpQueryWeekday},
		{"monthly <session-id>", worker.OpQueryMonthly},
		{"yearly <session-id>", worker.OpQueryYearly},
		{"length-distribution <session-id>", worker.OpQueryLengthDistribution},
		{"type-distribution <session-id>", worker.OpQueryTypeDistribution},
		{"time-range <session-id>", worker.OpQueryTimeRange},
		{"repeat <session-id>", worker.OpQueryRepeat},
		{"night-owl <session-id>", worker.OpQueryNightOwl},
		{"dragon-king <session-id>", worker.OpQueryDragonKing},
		{"diving <session-id>", worker.OpQueryDiving},
		{"monologue <session-id>", worker.OpQueryMonologue},
		{"mention <session-id>", worker.OpQueryMention},
		{"mention-graph <session-id>", worker.OpQueryMentionGraph},
		{"laugh <session-id>", worker.OpQueryLaugh},
		{"meme-battle <session-id>", worker.OpQueryMemeBattle},
		{"check-in <session-id>", worker.OpQueryCheckIn},
	} {
		agg := agg
		var flags filterFlags
		cmd := &cobra.Command{
			Use:   agg.use,
			Args:  cobra.ExactArgs(1),
			Short: "Run " + agg.op + " over the given session",
			RunE: func(cmd *cobra.Command, args []string) error {
				return submit(*configPath, agg.op, worker.QueryPayload{
					SessionID: args[0],
					Filter:    flags.toFilter(cmd),
				})
			},
		}
		addFilterFlags(cmd, &flags)
		root.AddCommand(cmd)
	}

	var topN int
	var catchphraseFlags filterFlags
	catchphraseCmd := &cobra.Command{
		Use:   "catchphrase <session-id>",
		Short: "Run query.catchphrase over the given session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(*configPath, worker.OpQueryCatchphrase, worker.QueryPayload{
				SessionID: args[0],
				Filter:    catchphraseFlags.toFilter(cmd),
				TopN:      topN,
			})
		},
	}
	addFilterFlags(catchphraseCmd, &catchphraseFlags)
	catchphraseCmd.Flags().IntVar(&topN, "top", 10, "number of catchphrases to return")
	root.AddCommand(catchphraseCmd)

	root.AddCommand(newMsgCmd(configPath))
	root.AddCommand(newSQLCmd(configPath))
	return root
}

// newMsgCmd wires up the msg.* op group (§6.4) under "query msg".
func newMsgCmd(configPath *string) *cobra.Command {
	root := &cobra.Command{
		Use:   "msg",
		Short: "Message search, paging, and context-window operations",
	}

	var searchFlags filterFlags
	var searchKeywords string
	var searchLimit int
	searchCmd := &cobra.Command{
		Use:   "search <session-id>",
		Short: "Find messages containing every given keyword, most recent first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(*configPath, worker.OpMsgSearch, worker.MsgSearchPayload{
				SessionID: args[0],
				Filter:    searchFlags.toFilter(cmd),
				Keywords:  splitCSV(searchKeywords),
				Limit:     searchLimit,
			})
		},
	}
	addFilterFlags(searchCmd, &searchFlags)
	searchCmd.Flags().StringVar(&searchKeywords, "keywords", "", "comma-separated keywords, all must match")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "max results (0 = default page size)")
	root.AddCommand(searchCmd)

	var contextIDs string
	var contextWindow int
	contextCmd := &cobra.Command{
		Use:   "context <session-id>",
		Short: "Return the union of [id-k, id+k] windows around one or more ids",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseInt64CSV(contextIDs)
			if err != nil {
				return err
			}
			return submit(*configPath, worker.OpMsgContext, worker.MsgContextPayload{
				SessionID: args[0],
				IDs:       ids,
				Window:    contextWindow,
			})
		},
	}
	contextCmd.Flags().StringVar(&contextIDs, "ids", "", "comma-separated message ids")
	contextCmd.Flags().IntVar(&contextWindow, "window", 10, "messages of context on each side")
	root.AddCommand(contextCmd)

	var recentN int
	recentCmd := &cobra.Command{
		Use:   "recent <session-id>",
		Short: "Return the most recent N messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(*configPath, worker.OpMsgRecent, worker.MsgRecentPayload{SessionID: args[0], N: recentN})
		},
	}
	recentCmd.Flags().IntVar(&recentN, "n", 20, "number of messages")
	root.AddCommand(recentCmd)

	var allRecentSessions string
	var allRecentN int
	allRecentCmd := &cobra.Command{
		Use:   "all-recent",
		Short: "Return the most recent N messages from each of several sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(*configPath, worker.OpMsgAllRecent, worker.MsgAllRecentPayload{
				SessionIDs: splitCSV(allRecentSessions),
				N:          allRecentN,
			})
		},
	}
	allRecentCmd.Flags().StringVar(&allRecentSessions, "sessions", "", "comma-separated session ids")
	allRecentCmd.Flags().IntVar(&allRecentN, "n", 20, "number of messages per session")
	root.AddCommand(allRecentCmd)

	betweenCmd := &cobra.Command{
		Use:   "between <session-id> <start-id> <end-id>",
		Short: "Return every message with start-id <= id <= end-id",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			startID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return err
			}
			endID, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return err
			}
			return submit(*configPath, worker.OpMsgBetween, worker.MsgBetweenPayload{SessionID: args[0], StartID: startID, EndID: endID})
		},
	}
	root.AddCommand(betweenCmd)

	root.AddCommand(newCursorCmd(configPath, "before", worker.OpMsgBefore, "Return up to N messages strictly before a cursor id, descending"))
	root.AddCommand(newCursorCmd(configPath, "after", worker.OpMsgAfter, "Return up to N messages strictly after a cursor id, ascending"))

	var fwcFlags filterFlags
	var fwcWindow int
	fwcCmd := &cobra.Command{
		Use:   "filter-with-context <session-id>",
		Short: "Apply a filter and return each hit with N messages of context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(*configPath, worker.OpMsgFilterWithContext, worker.MsgFilterWithContextPayload{
				SessionID: args[0],
				Filter:    fwcFlags.toFilter(cmd),
				Window:    fwcWindow,
			})
		},
	}
	addFilterFlags(fwcCmd, &fwcFlags)
	fwcCmd.Flags().IntVar(&fwcWindow, "window", 10, "messages of context on each side")
	root.AddCommand(fwcCmd)

	var fromFlags filterFlags
	var fromSessions, fromKeywords string
	var fromLimit int
	fromCmd := &cobra.Command{
		Use:   "from-sessions",
		Short: "Search several sessions at once, merge-sorted by timestamp",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(*configPath, worker.OpMsgFromSessions, worker.MsgFromSessionsPayload{
				SessionIDs: splitCSV(fromSessions),
				Filter:     fromFlags.toFilter(cmd),
				Keywords:   splitCSV(fromKeywords),
				Limit:      fromLimit,
			})
		},
	}
	addFilterFlags(fromCmd, &fromFlags)
	fromCmd.Flags().StringVar(&fromSessions, "sessions", "", "comma-separated session ids")
	fromCmd.Flags().StringVar(&fromKeywords, "keywords", "", "comma-separated keywords, all must match")
	fromCmd.Flags().IntVar(&fromLimit, "limit", 0, "max results (0 = default page size)")
	root.AddCommand(fromCmd)

	return root
}

// newCursorCmd builds the shared shape of "msg before"/"msg after": a
// cursor id, page size, filter, and optional keyword OR-group (§4.7
// "Message paging").
func newCursorCmd(configPath *string, use, op, short string) *cobra.Command {
	var flags filterFlags
	var keywords string
	var n int
	cmd := &cobra.Command{
		Use:   use + " <session-id> <cursor-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return err
			}
			return submit(*configPath, op, worker.MsgCursorPayload{
				SessionID: args[0],
				ID:        id,
				N:         n,
				Filter:    flags.toFilter(cmd),
				Keywords:  splitCSV(keywords),
			})
		},
	}
	addFilterFlags(cmd, &flags)
	cmd.Flags().StringVar(&keywords, "keywords", "", "comma-separated keywords, at least one must match")
	cmd.Flags().IntVar(&n, "n", 0, "page size (0 = default page size)")
	return cmd
}

// newSQLCmd wires up the sql.* op group (§6.4, §9's raw-SQL guardrails)
// under "query sql".
func newSQLCmd(configPath *string) *cobra.Command {
	root := &cobra.Command{
		Use:   "sql",
		Short: "Run bounded read-only SQL against a session's store",
	}

	var limit int
	execCmd := &cobra.Command{
		Use:   "execute <session-id> <query>",
		Short: "Execute a read-only, row-limited, time-bounded SQL statement",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(*configPath, worker.OpSQLExecute, worker.SQLExecutePayload{SessionID: args[0], Query: args[1], Limit: limit})
		},
	}
	execCmd.Flags().IntVar(&limit, "limit", 0, "row limit (0 = server default)")
	root.AddCommand(execCmd)

	root.AddCommand(&cobra.Command{
		Use:   "schema <session-id>",
		Short: "Print the session store's schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(*configPath, worker.OpSQLSchema, worker.SQLSchemaPayload{SessionID: args[0]})
		},
	})

	return root
}
