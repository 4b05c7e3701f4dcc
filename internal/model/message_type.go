package model

// MessageType is the wire-stable message type enum (§3).
type MessageType int

const (
	MessageText      MessageType = 0
	MessageImage     MessageType = 1
	MessageVoice     MessageType = 2
	MessageVideo     MessageType = 3
	MessageFile      MessageType = 4
	MessageEmoji     MessageType = 5
	MessageLink      MessageType = 7
	MessageLocation  MessageType = 8
	MessageRedPacket MessageType = 20
	MessageTransfer  MessageType = 21
	MessagePoke      MessageType = 22
	MessageCall      MessageType = 23
	MessageShare     MessageType = 24
	MessageReply     MessageType = 25
	MessageForward   MessageType = 26
	MessageContact   MessageType = 27
	MessageSystem    MessageType = 80
	MessageRecall    MessageType = 81
	MessageOther     MessageType = 99
)

// knownTypes backs IsKnown without allocating a map on every call.
var knownTypes = map[MessageType]struct{}{
	MessageText: {}, MessageImage: {}, MessageVoice: {}, MessageVideo: {},
	MessageFile: {}, MessageEmoji: {}, MessageLink: {}, MessageLocation: {},
	MessageRedPacket: {}, MessageTransfer: {}, MessagePoke: {}, MessageCall: {},
	MessageShare: {}, MessageReply: {}, MessageForward: {}, MessageContact: {},
	MessageSystem: {}, MessageRecall: {}, MessageOther: {},
}

var typeNames = map[MessageType]string{
	MessageText: "text", MessageImage: "image", MessageVoice: "voice", MessageVideo: "video",
	MessageFile: "file", MessageEmoji: "emoji", MessageLink: "link", MessageLocation: "location",
	MessageRedPacket: "red_packet", MessageTransfer: "transfer", MessagePoke: "poke", MessageCall: "call",
	MessageShare: "share", MessageReply: "reply", MessageForward: "forward", MessageContact: "contact",
	MessageSystem: "system", MessageRecall: "recall", MessageOther: "other",
}

// String renders the enum's wire name, falling back to "other" for any
// value IsKnown rejects.
func (t MessageType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return typeNames[MessageOther]
}

// IsKnown reports whether t is a member of the wire-stable enum.
func IsKnown(t MessageType) bool {
	_, ok := knownTypes[t]
	return ok
}

// Normalize maps any unrecognized integer onto MessageOther, per §3:
// "Unknown inputs map to other."
func Normalize(raw int) MessageType {
	t := MessageType(raw)
	if IsKnown(t) {
		return t
	}
	return MessageOther
}

// textHeuristics maps markers observed in the text content of formats that
// don't carry an explicit type field (e.g. legacy QQ exports) onto the enum,
// per §4.2 "textual-content heuristics".
var textHeuristics = []struct {
	marker string
	typ    MessageType
}{
	{"[图片]", MessageImage},
	{"[动画表情]", MessageEmoji},
	{"[语音]", MessageVoice},
	{"[视频]", MessageVideo},
	{"[文件]", MessageFile},
	{"红包", MessageRedPacket},
	{"[位置]", MessageLocation},
	{"拍了拍", MessagePoke},
	{"[转账]", MessageTransfer},
}

// TypeFromContent guesses a message type from its raw textual content when
// the source format has no reliable type field of its own.
func TypeFromContent(content string) MessageType {
	for _, h := range textHeuristics {
		if containsMarker(content, h.marker) {
			return h.typ
		}
	}
	return MessageText
}

func containsMarker(s, marker string) bool {
	if len(marker) > len(s) {
		return false
	}
	for i := 0; i+len(marker) <= len(s); i++ {
		if s[i:i+len(marker)] == marker {
			return true
		}
	}
	return false
}
