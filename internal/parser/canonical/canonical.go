// Package canonical reads and writes the documented export format (§6.1),
// identified by the presence of a top-level "chatlab" object. It
// doubles as an ordinary source format (priority -1, so its sniff is tried
// before every platform-specific one) and as the merger's own
// import/export codec (§4.6 step 6).
package canonical

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"regexp"

	"github.com/chatlab/chatlab-core/internal/format"
	"github.com/chatlab/chatlab-core/internal/model"
	"github.com/chatlab/chatlab-core/internal/parser"
	"github.com/chatlab/chatlab-core/internal/parser/event"
)

var Descriptor = format.Descriptor{
	ID:         "canonical",
	Name:       "chatlab Export",
	Platform:   model.PlatformMixed,
	Priority:   -1,
	Extensions: []string{".json"},
	Signature: format.Signature{
		Patterns:       []*regexp.Regexp{regexp.MustCompile(`"chatlab"\s*:\s*\{`)},
		RequiredFields: []string{"chatlab", "meta", "members", "messages"},
	},
}

func RegisterInto(r *format.Registry) { r.Register(Descriptor) }

// Document is the full §6.1 JSON shape, used both to decode (small files,
// or the in-memory merge result before it's streamed out) and as the field
// layout the streaming Parse below tracks token-by-token and Write encodes.
type Document struct {
	Chatlab  ChatlabBlock `json:"chatlab"`
	Meta     MetaBlock    `json:"meta"`
	Members  []MemberJSON `json:"members"`
	Messages []MessageJSON `json:"messages"`
}

type ChatlabBlock struct {
	Version     string `json:"version"`
	ExportedAt  int64  `json:"exportedAt"`
	Generator   string `json:"generator,omitempty"`
	Description string `json:"description,omitempty"`
}

type MetaBlock struct {
	Name        string            `json:"name"`
	Platform    string            `json:"platform"`
	Type        string            `json:"type"`
	Sources     []SourceJSON      `json:"sources,omitempty"`
	GroupID     string            `json:"groupId,omitempty"`
	GroupAvatar string            `json:"groupAvatar,omitempty"`
}

type SourceJSON struct {
	Filename     string `json:"filename"`
	Platform     string `json:"platform,omitempty"`
	MessageCount int    `json:"messageCount"`
}

type MemberJSON struct {
	PlatformID    string   `json:"platformId"`
	AccountName   string   `json:"accountName"`
	GroupNickname string   `json:"groupNickname,omitempty"`
	Aliases       []string `json:"aliases,omitempty"`
	Avatar        string   `json:"avatar,omitempty"`
}

type MessageJSON struct {
	Sender        string  `json:"sender"`
	AccountName   string  `json:"accountName"`
	GroupNickname string  `json:"groupNickname,omitempty"`
	Timestamp     int64   `json:"timestamp"`
	Type          int     `json:"type"`
	Content       *string `json:"content"`
}

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
	f.Close()

	meta, sources, err := readMeta(path)
	if err != nil {
		sink.OnDone(event.Done{Err: err})
		return err
	}
	if err := sink.OnMeta(event.Meta{Meta: meta, Sources: sources}); err != nil {
		return err
	}

	members, err := streamMembers(path)
	if err != nil {
		sink.OnDone(event.Done{Err: err})
		return err
	}
	if err := sink.OnMembers(event.Members{Members: members}); err != nil {
		return err
	}

	dropped, err := streamMessages(ctx, path, totalBytes, sink)
	sink.OnDone(event.Done{Err: err, Dropped: dropped})
	return err
}

func readMeta(path string) (model.Meta, []model.SourceRef, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Meta{}, nil, err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	if err := seekToObjectField(dec, "meta"); err != nil {
		return model.Meta{}, nil, err
	}
	var mb MetaBlock
	if err := dec.Decode(&mb); err != nil {
		return model.Meta{}, nil, err
	}
	var sources []model.SourceRef
	for _, s := range mb.Sources {
		sources = append(sources, model.SourceRef{Filename: s.Filename, Platform: model.Platform(s.Platform), MessageCount: s.MessageCount})
	}
	return model.Meta{
		Name:        mb.Name,
		Platform:    model.Platform(mb.Platform),
		Kind:        model.Kind(mb.Type),
		GroupID:     mb.GroupID,
		GroupAvatar: mb.GroupAvatar,
	}, sources, nil
}

func seekToObjectField(dec *json.Decoder, key string) error {
	if _, err := dec.Token(); err != nil {
		return err
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			continue
		}
		if name != key {
			if err := parser.SkipValue(dec); err != nil {
				return err
			}
			continue
		}
		return nil
	}
	return parser.ErrArrayFieldNotFound
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
		var m MemberJSON
		if err := dec.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, model.Member{
			PlatformID:    m.PlatformID,
			AccountName:   m.AccountName,
			GroupNickname: m.GroupNickname,
			Aliases:       m.Aliases,
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
		var m MessageJSON
		if err := dec.Decode(&m); err != nil {
			return dropped, err
		}
		ts, ok := parser.NormalizeTimestamp(m.Timestamp)
		if !ok || m.Sender == "" {
			dropped++
			continue
		}
		batch = append(batch, event.RawMessage{
			SenderPlatformID: m.Sender,
			SenderAccount:    m.AccountName,
			SenderNick:       m.GroupNickname,
			Timestamp:        ts,
			Type:             model.Normalize(m.Type),
			Content:          m.Content,
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

// Write encodes doc to w as the indented §6.1 shape. It's handed an
// already-materialized Document because the merger sorts in memory before
// writing (§4.6 step 5-6); the single json.Encoder.Encode call marshals the
// whole document in memory before writing it to w.
func Write(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
