package main

import (
	"encoding/json"

	"github.com/chatlab/chatlab-core/internal/worker"
)

// decodePayload unmarshals raw into the Payload struct the op switch in
// worker's dispatch.go expects for op, returning it as the `any` worker.Request.Payload
// carries. Ops with no payload (migration.check, session.getAll/list)
// return nil.
func decodePayload(op string, raw json.RawMessage) (any, error) {
	switch op {
	case worker.OpImportStream:
		return decodeInto[worker.ImportStreamPayload](raw)
	case worker.OpImportAnalyzeIncremental:
		return decodeInto[worker.ImportAnalyzeIncrementalPayload](raw)
	case worker.OpImportIncremental:
		return decodeInto[worker.ImportIncrementalPayload](raw)
	case worker.OpImportParseFileInfo:
		return decodeInto[worker.ImportParseFileInfoPayload](raw)

	case worker.OpSessionGetAll, worker.OpSessionList:
		return nil, nil
	case worker.OpSessionGet:
		return decodeInto[worker.SessionGetPayload](raw)
	case worker.OpSessionRename:
		return decodeInto[worker.SessionRenamePayload](raw)
	case worker.OpSessionDelete:
		return decodeInto[worker.SessionDeletePayload](raw)
	case worker.OpSessionUpdateOwnerID:
		return decodeInto[worker.SessionUpdateOwnerIDPayload](raw)
	case worker.OpSessionUpdateGapThreshold:
		return decodeInto[worker.SessionUpdateGapThresholdPayload](raw)
	case worker.OpSessionGenerateIndex:
		return decodeInto[worker.SessionGenerateIndexPayload](raw)
	case worker.OpSessionHasIndex:
		return decodeInto[worker.SessionHasIndexPayload](raw)
	case worker.OpSessionIndexStats:
		return decodeInto[worker.SessionIndexStatsPayload](raw)
	case worker.OpSessionClearIndex:
		return decodeInto[worker.SessionClearIndexPayload](raw)

	case worker.OpMemberList:
		return decodeInto[worker.MemberListPayload](raw)
	case worker.OpMemberUpdateAliases:
		return decodeInto[worker.MemberUpdateAliasesPayload](raw)
	case worker.OpMemberDelete:
		return decodeInto[worker.MemberDeletePayload](raw)
	case worker.OpMemberNameHistory:
		return decodeInto[worker.MemberNameHistoryPayload](raw)

	case worker.OpQueryAvailableYears, worker.OpQueryMemberActivity, worker.OpQueryHourly,
		worker.OpQueryDaily, worker.OpQueryWeekday, worker.OpQueryMonthly, worker.OpQueryYearly,
		worker.OpQueryLengthDistribution, worker.OpQueryTypeDistribution, worker.OpQueryTimeRange,
		worker.OpQueryRepeat, worker.OpQueryCatchphrase, worker.OpQueryNightOwl, worker.OpQueryDragonKing,
		worker.OpQueryDiving, worker.OpQueryMonologue, worker.OpQueryMention, worker.OpQueryMentionGraph,
		worker.OpQueryLaugh, worker.OpQueryMemeBattle, worker.OpQueryCheckIn:
		return decodeInto[worker.QueryPayload](raw)

	case worker.OpMsgSearch:
		return decodeInto[worker.MsgSearchPayload](raw)
	case worker.OpMsgContext:
		return decodeInto[worker.MsgContextPayload](raw)
	case worker.OpMsgRecent:
		return decodeInto[worker.MsgRecentPayload](raw)
	case worker.OpMsgAllRecent:
		return decodeInto[worker.MsgAllRecentPayload](raw)
	case worker.OpMsgBetween:
		return decodeInto[worker.MsgBetweenPayload](raw)
	case worker.OpMsgBefore, worker.OpMsgAfter:
		return decodeInto[worker.MsgCursorPayload](raw)
	case worker.OpMsgFilterWithContext:
		return decodeInto[worker.MsgFilterWithContextPayload](raw)
	case worker.OpMsgFromSessions:
		return decodeInto[worker.MsgFromSessionsPayload](raw)

	case worker.OpSQLExecute:
		return decodeInto[worker.SQLExecutePayload](raw)
	case worker.OpSQLSchema:
		return decodeInto[worker.SQLSchemaPayload](raw)

	case worker.OpMergeParseFileInfo:
		return decodeInto[worker.MergeParseFileInfoPayload](raw)
	case worker.OpMergeCheckConflicts:
		return decodeInto[worker.MergeCheckConflictsPayload](raw)
	case worker.OpMergeMergeFiles:
		return decodeInto[worker.MergeMergeFilesPayload](raw)
	case worker.OpMergeClearCache:
		return decodeInto[worker.MergeClearCachePayload](raw)

	case worker.OpMigrationCheck:
		return nil, nil
	case worker.OpMigrationRun:
		return decodeInto[worker.MigrationRunPayload](raw)

	default:
		return nil, unknownOpErr(op)
	}
}

func decodeInto[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	err := json.Unmarshal(raw, &v)
	return v, err
}

type unknownOpError struct{ op string }

func (e unknownOpError) Error() string { return "unknown op " + e.op }

func unknownOpErr(op string) error { return unknownOpError{op: op} }
