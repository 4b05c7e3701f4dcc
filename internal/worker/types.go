// Package worker implements the off-thread request host described in spec
// §4.8/§6.4: a single dedicated execution context that receives typed
// requests, streams progress, dispatches to import/query/merge/migration,
// and owns the open-store cache. The host is transport-agnostic — it
// exchanges Go values, not bytes; cmd/chatlabd is the one piece that frames
// these as newline-delimited JSON over stdio (§9, §4.8a).
package worker

import (
	"github.com/chatlab/chatlab-core/internal/coreerr"
	"github.com/chatlab/chatlab-core/internal/merge"
	"github.com/chatlab/chatlab-core/internal/model"
)

// Op names mirror §6.4's worker request surface exactly.
const (
	OpImportStream             = "import.stream"
	OpImportAnalyzeIncremental = "import.analyzeIncremental"
	OpImportIncremental        = "import.incremental"
	OpImportParseFileInfo      = "import.parseFileInfo"

	OpSessionGetAll             = "session.getAll"
	OpSessionGet                = "session.get"
	OpSessionRename             = "session.rename"
	OpSessionDelete             = "session.delete"
	OpSessionUpdateOwnerID      = "session.updateOwnerId"
	OpSessionUpdateGapThreshold = "session.updateGapThreshold"
	OpSessionGenerateIndex      = "session.generateIndex"
	OpSessionHasIndex           = "session.hasIndex"
	OpSessionIndexStats         = "session.indexStats"
	OpSessionClearIndex         = "session.clearIndex"
	OpSessionList               = "session.list"

	OpMemberList           = "member.list"
	OpMemberUpdateAliases  = "member.updateAliases"
	OpMemberDelete         = "member.delete"
	OpMemberNameHistory    = "member.nameHistory"

	OpQueryAvailableYears      = "query.availableYears"
	OpQueryMemberActivity      = "query.memberActivity"
	OpQueryHourly              = "query.hourly"
	OpQueryDaily               = "query.daily"
	OpQueryWeekday             = "query.weekday"
	OpQueryMonthly             = "query.monthly"
	OpQueryYearly              = "query.yearly"
	OpQueryLengthDistribution  = "query.lengthDistribution"
	OpQueryTypeDistribution    = "query.typeDistribution"
	OpQueryTimeRange           = "query.timeRange"

	OpQueryRepeat       = "query.repeat"
	OpQueryCatchphrase  = "query.catchphrase"
	OpQueryNightOwl     = "query.nightOwl"
	OpQueryDragonKing   = "query.dragonKing"
	OpQueryDiving       = "query.diving"
	OpQueryMonologue    = "query.monologue"
	OpQueryMention      = "query.mention"
	OpQueryMentionGraph = "query.mentionGraph"
	OpQueryLaugh        = "query.laugh"
	OpQueryMemeBattle   = "query.memeBattle"
	OpQueryCheckIn      = "query.checkIn"

	OpMsgSearch           = "msg.search"
	OpMsgContext          = "msg.context"
	OpMsgRecent           = "msg.recent"
	OpMsgAllRecent        = "msg.allRecent"
	OpMsgBetween          = "msg.between"
	OpMsgBefore           = "msg.before"
	OpMsgAfter            = "msg.after"
	OpMsgFilterWithContext = "msg.filterWithContext"
	OpMsgFromSessions     = "msg.fromSessions"

	OpSQLExecute = "sql.execute"
	OpSQLSchema  = "sql.schema"

	OpMergeParseFileInfo  = "merge.parseFileInfo"
	OpMergeCheckConflicts = "merge.checkConflicts"
	OpMergeMergeFiles     = "merge.mergeFiles"
	OpMergeClearCache     = "merge.clearCache"

	OpMigrationCheck = "migration.check"
	OpMigrationRun   = "migration.run"
)

// Request is the transport-agnostic envelope every operation arrives in
// (§6.4: "{ id: string, op: string, payload: object }"). Payload holds one
// of the Payload structs declared in payloads.go, selected by Op.
type Request struct {
	ID      string
	Op      string
	Payload any
}

// Response is the envelope every operation returns (§6.4: "{ id, ok,
// result | error }").
type Response struct {
	ID     string         `json:"id"`
	OK     bool           `json:"ok"`
	Result any            `json:"result,omitempty"`
	Err    *coreerr.Error `json:"error,omitempty"`
}

// Progress is one `{ id, progress: {...} }` event (§6.4), posted zero or
// more times before the terminal Response for long-running requests.
type Progress struct {
	ID                string `json:"-"`
	Stage             string `json:"stage"`
	BytesRead         int64  `json:"bytesRead"`
	TotalBytes        int64  `json:"totalBytes"`
	MessagesProcessed int64  `json:"messagesProcessed"`
	Percentage        int    `json:"percentage"`
	Message           string `json:"message"`
}

// ProgressFunc receives zero or more Progress events before the terminal
// Response (§4.8: "Every long-running request ... posts typed progress
// events before final completion").
type ProgressFunc func(Progress)

// Filter mirrors model.Filter for payload construction convenience.
type Filter = model.Filter

// MergeResolution mirrors merge.Resolution for payload construction.
type MergeResolution = merge.Resolution
