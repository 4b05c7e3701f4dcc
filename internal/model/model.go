// Package model holds the types shared across every layer of the core:
// parsers produce them, the importer persists them, the query layer reads
// them back out. Nothing here knows about SQL or JSON wire shapes directly.
package model

// Platform is one of the tags a session can carry. "mixed" and "unknown"
// only ever appear after a merge of sources that disagree, or when the
// sniffer could not narrow detection to a single platform.
type Platform string

const (
	PlatformQQ      Platform = "qq"
	PlatformWeChat  Platform = "wechat"
	PlatformDiscord Platform = "discord"
	PlatformMixed   Platform = "mixed"
	PlatformUnknown Platform = "unknown"
)

// Kind is the conversation kind.
type Kind string

const (
	KindGroup   Kind = "group"
	KindPrivate Kind = "private"
)

// NameKind distinguishes the two per-member name histories tracked during
// import (§3 "Name history entry").
type NameKind string

const (
	NameAccount  NameKind = "account_name"
	NameNickname NameKind = "group_nickname"
)

// Meta is the single per-session meta row.
type Meta struct {
	Name        string
	Platform    Platform
	Kind        Kind
	ImportedAt  int64
	GroupID     string
	GroupAvatar string // inline data: URL, empty when absent
}

// Member is a participant within one session, keyed by PlatformID.
type Member struct {
	ID             int64
	PlatformID     string
	AccountName    string
	GroupNickname  string
	Aliases        []string
	Avatar         string // inline data: URL, empty when absent
}

// NameHistoryEntry is one [Start, End) interval for a (member, kind) pair.
// End == 0 with Open == true means the interval has no recorded end yet.
type NameHistoryEntry struct {
	ID       int64
	MemberID int64
	Kind     NameKind
	Name     string
	Start    int64
	End      int64
	Open     bool
}

// Message is a single persisted message row. ID is monotone in insertion
// order, which is not necessarily timestamp order (§3).
type Message struct {
	ID            int64
	SenderID      int64
	SenderAccount string
	SenderNick    string
	Timestamp     int64
	Type          MessageType
	Content       *string
}

// SessionIndexEntry is one contiguous run of messages delimited by the
// session's gap threshold (§3 "Session-index entry").
type SessionIndexEntry struct {
	ID          int64
	StartTs     int64
	EndTs       int64
	Count       int64
	FirstMsgID  int64
}

// Filter is the uniform query filter: each field is independent and they
// compose conjunctively (§4.7).
type Filter struct {
	StartTs  *int64
	EndTs    *int64
	MemberID *int64
}

// SystemAuthorExclusion is appended to every human-user-facing aggregate
// (§4.7).
const SystemAuthorExclusion = "系统消息"

// SourceRef records one contributing export inside a merged meta.sources
// list (§6.1).
type SourceRef struct {
	Filename     string
	Platform     Platform
	MessageCount int
}
