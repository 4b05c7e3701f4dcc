// Package qq streams a QQ-native chat export: a top-level object carrying
// "group_code"/"group" metadata, a "members" array keyed by "uin", and a
// "messages" array. It is the parser registered for model.PlatformQQ.
package qq

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"regexp"

	"github.com/tidwall/gjson"

	"github.com/chatlab/chatlab-core/internal/format"
	"github.com/chatlab/chatlab-core/internal/model"
	"github.com/chatlab/chatlab-core/internal/parser"
	"github.com/chatlab/chatlab-core/internal/parser/event"
)

// Descriptor is the registry entry for this format.
var Descriptor = format.Descriptor{
	ID:         "qq",
	Name:       "QQ Export",
	Platform:   model.PlatformQQ,
	Priority:   0,
	Extensions: []string{".json"},
	Signature: format.Signature{
		Patterns:       []*regexp.Regexp{regexp.MustCompile(`"uin"\s*:`)},
		RequiredFields: []string{"group_code", "members", "messages"},
	},
}

// RegisterInto adds Descriptor to r (§9: explicit registration, no init()
// side effects).
func RegisterInto(r *format.Registry) { r.Register(Descriptor) }

type rawMember struct {
	Uin      string `json:"uin"`
	Nickname string `json:"nickname"`
	Card     string `json:"card"`
	Avatar   string `json:"avatar"`
}

type rawMessage struct {
	Uin      string `json:"uin"`
	Nickname string `json:"nickname"`
	Time     any    `json:"time"`
	MsgType  *int   `json:"msg_type"`
	Content  string `json:"content"`
}

// Parser implements parser.Stream for the QQ export format.
type Parser struct{}

func (Parser) Descriptor() format.Descriptor { return Descriptor }

func (Parser) Parse(ctx context.Context, path string, sink event.Sink) error {
	f, err := os.Open(path)
	if err != nil {
		sink.OnDone(event.Done{Err: err})
		return err
	}

	info, _ := f.Stat()
	var totalBytes int64
	if info != nil {
		totalBytes = info.Size()
	}

	// Bounded prefix extraction for meta: group_code/group name/avatar live
	// near the head of a QQ export, well before the (potentially huge)
	// messages array, so a single gjson pass over a head prefix is enough
	// (§4.2: "extract that section either from an enlarged head prefix").
	head := make([]byte, 64*1024)
	n, _ := io.ReadFull(f, head)
	head = head[:n]
	f.Close()

	groupName := gjson.GetBytes(head, "group.name").String()
	groupCode := gjson.GetBytes(head, "group_code").String()
	groupAvatar := gjson.GetBytes(head, "group.avatar").String()

	if err := sink.OnMeta(event.Meta{Meta: model.Meta{
		Name:        firstNonEmpty(groupName, groupCode),
		Platform:    model.PlatformQQ,
		Kind:        model.KindGroup,
		GroupID:     groupCode,
		GroupAvatar: groupAvatar,
	}}); err != nil {
		return err
	}

	// Members and messages each get their own fresh streaming pass over
	// the file rather than sharing one Decoder, since a single top-level
	// object can't be rewound once the token stream has walked past a
	// field (§4.2: bounded byte pipeline, never the whole file in memory).
	memberList, err := streamMembers(path)
	if err != nil {
		sink.OnDone(event.Done{Err: err})
		return err
	}
	if err := sink.OnMembers(event.Members{Members: memberList}); err != nil {
		return err
	}

	dropped, err := streamMessages(ctx, path, totalBytes, sink)
	sink.OnDone(event.Done{Err: err, Dropped: dropped})
	return err
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func streamMembers(path string) ([]model.Member, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	if err := parser.SeekToArrayField(dec, "members"); err != nil {
		return nil, err
	}
	var out []model.Member
	for dec.More() {
		var m rawMember
		if err := dec.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, model.Member{
			PlatformID:    m.Uin,
			AccountName:   firstNonEmpty(m.Card, m.Nickname),
			GroupNickname: m.Nickname,
			Avatar:        m.Avatar,
		})
	}
	return out, nil
}

func streamMessages(ctx context.Context, path string, totalBytes int64, sink event.Sink) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var bytesRead int64
	cr := parser.CountingReader{R: f, OnRead: func(n int64) { bytesRead += n }}
	dec := json.NewDecoder(cr)
	if err := parser.SeekToArrayField(dec, "messages"); err != nil {
		return 0, err
	}

	var dropped, processed int64
	batch := make([]event.RawMessage, 0, parser.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := sink.OnMessageBatch(event.MessageBatch{Messages: batch}); err != nil {
			return err
		}
		sink.OnProgress(event.Progress{
			Stage:             event.StageMessages,
			BytesRead:         bytesRead,
			TotalBytes:        totalBytes,
			MessagesProcessed: processed,
			Percentage:        event.Percentage(bytesRead, totalBytes),
		})
		batch = make([]event.RawMessage, 0, parser.BatchSize)
		return nil
	}

	for dec.More() {
		select {
		case <-ctx.Done():
			sink.OnProgress(event.Progress{Stage: event.StageStop, BytesRead: bytesRead, TotalBytes: totalBytes})
			return dropped, ctx.Err()
		default:
		}

		var m rawMessage
		if err := dec.Decode(&m); err != nil {
			return dropped, err
		}
		ts, ok := parser.NormalizeTimestamp(m.Time)
		if !ok || m.Uin == "" {
			dropped++
			continue
		}
		var typ model.MessageType
		if m.MsgType != nil {
			typ = model.Normalize(*m.MsgType)
		} else {
			typ = model.TypeFromContent(m.Content)
		}
		var content *string
		if typ != model.MessageRecall {
			c := m.Content
			content = &c
		}
		batch = append(batch, event.RawMessage{
			SenderPlatformID: m.Uin,
			SenderAccount:    m.Nickname,
			SenderNick:       m.Nickname,
			Timestamp:        ts,
			Type:             typ,
			Content:          content,
		})
		processed++
		if len(batch) >= parser.BatchSize {
			if err := flush(); err != nil {
				return dropped, err
			}
		}
	}
	return dropped, flush()
}
