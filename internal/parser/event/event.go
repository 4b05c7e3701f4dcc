// Package event defines the ordered event sequence every stream parser
// emits: one Meta, one Members, zero or more MessageBatch, interleaved
// Progress, and exactly one terminal Done (§4.2).
package event

import "github.com/chatlab/chatlab-core/internal/model"

// Stage names used in Progress.Stage and in the worker's progress payload.
const (
	StageMeta      = "meta"
	StageMembers   = "members"
	StageMessages  = "messages"
	StageCommit    = "commit"
	StageIndex     = "index"
	StageDone      = "done"
	StageError     = "error"
	StageStop      = "stop" // cancellation (§5)
)

// Meta carries the single per-session meta row, plus whatever sources the
// originating export declared (only populated when re-importing a
// canonical export, §6.1).
type Meta struct {
	Meta    model.Meta
	Sources []model.SourceRef
}

// Members carries the final roster observed during one streaming pass. The
// qq, wechat and canonical parsers emit it before any batch; discord, which
// only discovers members incrementally, emits it once at end of stream,
// after all batches and before Done, holding the full set
// accumulated so far — callers should not assume it precedes MessageBatch.
type Members struct {
	Members []model.Member
}

// MessageBatch is one batch of up to the parser's configured batch size
// (default 5000, §4.2).
type MessageBatch struct {
	Messages []RawMessage
}

// RawMessage is a message as the parser observed it, before the import
// pipeline validates sender/timestamp/type and assigns a store-internal id.
type RawMessage struct {
	SenderPlatformID string
	SenderAccount    string
	SenderNick       string
	Timestamp        int64
	Type             model.MessageType
	Content          *string
}

// Progress reports monotonically increasing bytes-read and a best-effort
// percentage (§4.2, §5).
type Progress struct {
	Stage            string
	BytesRead        int64
	TotalBytes       int64
	MessagesProcessed int64
	Percentage       int
	Message          string
}

// Done is the terminal event. Err is non-nil only on a fatal parser error
// (§7d); soft per-message errors never reach here, they're folded into
// Dropped.
type Done struct {
	Err     error
	Dropped int64
}

// Percentage computes min(100, round(100*bytesRead/totalBytes)) per §4.2,
// returning 0 when totalBytes is unknown or zero.
func Percentage(bytesRead, totalBytes int64) int {
	if totalBytes <= 0 {
		return 0
	}
	pct := int((bytesRead*100 + totalBytes/2) / totalBytes)
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	return pct
}

// Sink is the push-callback half of the parser contract (§9: "push callback
// accepting onMeta/onMembers/onMessageBatch/onProgress" is one of the two
// acceptable shapes; the core uses this one throughout because the import
// pipeline and the worker host both want to react inline rather than pull).
type Sink interface {
	OnMeta(Meta) error
	OnMembers(Members) error
	OnMessageBatch(MessageBatch) error
	OnProgress(Progress)
	OnDone(Done)
}
