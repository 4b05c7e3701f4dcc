// Package wechat streams a WeChat-style chat export: a top-level object
// carrying a "wxid" (the chat's own identifier) and "talker" info, a
// "contacts" array, and a "messages" array keyed by "createTime". It is the
// parser registered for model.PlatformWeChat, and the one format in this
// module that declares a preprocessor (§4.3): WeChat exports routinely
// embed large base64 voice/image blobs this core never decodes.
package wechat

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

var Descriptor = format.Descriptor{
	ID:         "wechat",
	Name:       "WeChat Export",
	Platform:   model.PlatformWeChat,
	Priority:   0,
	Extensions: []string{".json"},
	Signature: format.Signature{
		Patterns:       []*regexp.Regexp{regexp.MustCompile(`"wxid"\s*:`)},
		RequiredFields: []string{"talker", "contacts", "messages"},
	},
}

func RegisterInto(r *format.Registry) { r.Register(Descriptor) }

type rawContact struct {
	WxID     string `json:"wxid"`
	Remark   string `json:"remark"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
}

type rawMessage struct {
	Sender     string `json:"sender"`
	IsSender   bool   `json:"isSender"`
	CreateTime any    `json:"createTime"`
	Type       *int   `json:"type"`
	Content    string `json:"content"`
}

// Parser implements parser.Stream and parser.Preprocessor.
type Parser struct {
	// PreprocessThresholdBytes is the size above which NeedsPreprocess
	// trips (§4.3 default 256 MiB).
	PreprocessThresholdBytes int64
}

func New() *Parser {
	return &Parser{PreprocessThresholdBytes: 256 * 1024 * 1024}
}

func (Parser) Descriptor() format.Descriptor { return Descriptor }

// NeedsPreprocess trips above the byte threshold, or when a bounded head
// scan finds an inline base64 payload past the per-message size cutoff
// (§4.3). The latter check reads a head prefix of twice that cutoff and
// looks only at the first contact's avatar, so it stays bounded regardless
// of file size.
func (p *Parser) NeedsPreprocess(path string, size int64) bool {
	if size > p.PreprocessThresholdBytes {
		return true
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	head := make([]byte, 2*inlinePayloadCutoff)
	n, _ := io.ReadFull(f, head)
	return gjson.GetBytes(head[:n], "contacts.0.avatar").Exists() &&
		len(gjson.GetBytes(head[:n], "contacts.0.avatar").Str) > inlinePayloadCutoff
}

// inlinePayloadCutoff is the length above which a string value counts as
// an inline payload; it gets elided to a placeholder during preprocessing rather than copied into
// the temp file verbatim.
const inlinePayloadCutoff = 64 * 1024

// Preprocess streams path through a brace-matching pass, rewriting any
// string value longer than inlinePayloadCutoff to a short placeholder, and
// writes the result to a new temp file. It reports progress through the
// same event.Progress type Parse uses so the worker host's contract is
// uniform across preprocess and parse (§4.3).
func (p *Parser) Preprocess(ctx context.Context, path string, sink event.Sink) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()
	info, _ := src.Stat()
	var totalBytes int64
	if info != nil {
		totalBytes = info.Size()
	}

	tmp, err := os.CreateTemp("", "wechat-preproc-*.json")
	if err != nil {
		return "", err
	}
	defer tmp.Close()

	var bytesRead int64
	cr := parser.CountingReader{R: src, OnRead: func(n int64) { bytesRead += n }}
	dec := json.NewDecoder(cr)
	enc := json.NewEncoder(tmp)

	// Re-stream the whole document token by token, copying every token
	// through untouched except oversized strings, which are rewritten to a
	// placeholder. json.Decoder/Encoder token streaming keeps this bounded
	// regardless of overall document size.
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		if s, ok := tok.(string); ok && len(s) > inlinePayloadCutoff {
			tok = "[elided]"
		}
		if err := enc.Encode(tok); err != nil {
			return "", err
		}
		sink.OnProgress(event.Progress{
			Stage:      "preprocess",
			BytesRead:  bytesRead,
			TotalBytes: totalBytes,
			Percentage: event.Percentage(bytesRead, totalBytes),
		})
	}
	return tmp.Name(), nil
}

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
	head := make([]byte, 64*1024)
	n, _ := io.ReadFull(f, head)
	head = head[:n]
	f.Close()

	talker := gjson.GetBytes(head, "talker").String()
	isGroup := gjson.GetBytes(head, "isGroup").Bool()
	groupAvatar := gjson.GetBytes(head, "groupAvatar").String()

	kind := model.KindPrivate
	if isGroup {
		kind = model.KindGroup
	}
	if err := sink.OnMeta(event.Meta{Meta: model.Meta{
		Name:        talker,
		Platform:    model.PlatformWeChat,
		Kind:        kind,
		GroupAvatar: groupAvatar,
	}}); err != nil {
		return err
	}

	members, err := streamContacts(path)
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

func streamContacts(path string) ([]model.Member, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	if err := parser.SeekToArrayField(dec, "contacts"); err != nil {
		return nil, err
	}
	var out []model.Member
	for dec.More() {
		var c rawContact
		if err := dec.Decode(&c); err != nil {
			return nil, err
		}
		name := c.Remark
		if name == "" {
			name = c.Nickname
		}
		out = append(out, model.Member{
			PlatformID:    c.WxID,
			AccountName:   name,
			GroupNickname: c.Nickname,
			Avatar:        c.Avatar,
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
		ts, ok := parser.NormalizeTimestamp(m.CreateTime)
		if !ok || m.Sender == "" {
			dropped++
			continue
		}
		var typ model.MessageType
		if m.Type != nil {
			typ = model.Normalize(*m.Type)
		} else {
			typ = model.TypeFromContent(m.Content)
		}
		var content *string
		if typ != model.MessageRecall {
			c := m.Content
			content = &c
		}
		batch = append(batch, event.RawMessage{
			SenderPlatformID: m.Sender,
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
