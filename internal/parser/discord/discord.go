// Package discord streams a DiscordChatExporter-style JSON export: a
// top-level object carrying "guild"/"channel" metadata and a "messages"
// array with ISO-8601 timestamps and a textual type field.
package discord

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
	ID:         "discord",
	Name:       "Discord Export",
	Platform:   model.PlatformDiscord,
	Priority:   0,
	Extensions: []string{".json"},
	Signature: format.Signature{
		Patterns:       []*regexp.Regexp{regexp.MustCompile(`"guild"\s*:`)},
		RequiredFields: []string{"channel", "messages"},
	},
}

func RegisterInto(r *format.Registry) { r.Register(Descriptor) }

// typeTable maps DiscordChatExporter's textual message type field onto the
// wire-stable enum (§4.2: "per-format mapping tables").
var typeTable = map[string]model.MessageType{
	"Default":            model.MessageText,
	"Reply":               model.MessageReply,
	"ChannelPinnedMessage": model.MessageSystem,
	"GuildMemberJoin":      model.MessageSystem,
	"Call":                 model.MessageCall,
}

type rawAuthor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Nickname    string `json:"nickname"`
	AvatarURL   string `json:"avatarUrl"`
}

type rawAttachment struct {
	URL string `json:"url"`
}

type rawMessage struct {
	Author      rawAuthor       `json:"author"`
	Timestamp   string          `json:"timestamp"`
	Type        string          `json:"type"`
	Content     string          `json:"content"`
	Attachments []rawAttachment `json:"attachments"`
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
	head := make([]byte, 64*1024)
	n, _ := io.ReadFull(f, head)
	head = head[:n]
	f.Close()

	guildName := gjson.GetBytes(head, "guild.name").String()
	channelName := gjson.GetBytes(head, "channel.name").String()
	guildID := gjson.GetBytes(head, "guild.id").String()

	name := channelName
	if guildName != "" {
		name = guildName + " #" + channelName
	}
	if err := sink.OnMeta(event.Meta{Meta: model.Meta{
		Name:     name,
		Platform: model.PlatformDiscord,
		Kind:     model.KindGroup,
		GroupID:  guildID,
	}}); err != nil {
		return err
	}

	members, dropped, err := streamMessagesAndMembers(ctx, path, totalBytes, sink)
	if err == nil {
		err = sinkMembers(sink, members)
	}
	sink.OnDone(event.Done{Err: err, Dropped: dropped})
	return err
}

// sinkMembers is split out from the message pass below: the roster is only
// final once every message has been seen (a Discord export has no upfront
// member list), matching §4.2's "final roster observed during streaming"
// which the contract allows to be emitted after the message batches.
func sinkMembers(sink event.Sink, members map[string]model.Member) error {
	out := make([]model.Member, 0, len(members))
	for _, m := range members {
		out = append(out, m)
	}
	return sink.OnMembers(event.Members{Members: out})
}

func streamMessagesAndMembers(ctx context.Context, path string, totalBytes int64, sink event.Sink) (map[string]model.Member, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var bytesRead int64
	cr := parser.CountingReader{R: f, OnRead: func(n int64) { bytesRead += n }}
	dec := json.NewDecoder(cr)
	if err := parser.SeekToArrayField(dec, "messages"); err != nil {
		return nil, 0, err
	}

	members := make(map[string]model.Member)
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
			return members, dropped, ctx.Err()
		default:
		}
		var m rawMessage
		if err := dec.Decode(&m); err != nil {
			return members, dropped, err
		}
		ts, ok := parser.NormalizeTimestamp(m.Timestamp)
		if !ok || m.Author.ID == "" {
			dropped++
			continue
		}
		typ, known := typeTable[m.Type]
		if !known {
			typ = model.TypeFromContent(m.Content)
			if len(m.Attachments) > 0 {
				typ = model.MessageFile
			}
		}
		content := m.Content
		members[m.Author.ID] = model.Member{
			PlatformID:  m.Author.ID,
			AccountName: m.Author.Name,
			Avatar:      m.Author.AvatarURL,
		}
		batch = append(batch, event.RawMessage{
			SenderPlatformID: m.Author.ID,
			SenderAccount:    m.Author.Name,
			SenderNick:       m.Author.Nickname,
			Timestamp:        ts,
			Type:             typ,
			Content:          &content,
		})
		processed++
		if len(batch) >= parser.BatchSize {
			if err := flush(); err != nil {
				return members, dropped, err
			}
		}
	}
	return members, dropped, flush()
}
