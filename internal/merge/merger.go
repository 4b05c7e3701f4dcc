package merge

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/chatlab/chatlab-core/internal/coreerr"
	"github.com/chatlab/chatlab-core/internal/importer"
	"github.com/chatlab/chatlab-core/internal/model"
	"github.com/chatlab/chatlab-core/internal/parser/canonical"
	"github.com/chatlab/chatlab-core/internal/staging"
)

// Source pairs one staging store with the export filename it came from and
// the order it should be traversed in during merge.
type Source struct {
	Store    *staging.Store
	Filename string
}

// Merger reads N staging stores and produces conflict reports and a
// canonical merged export (§4.6).
type Merger struct {
	Sources []Source
}

func New(sources []Source) *Merger { return &Merger{Sources: sources} }

// memberSource carries one source's member roster tagged with its position
// in m.Sources, so unionMembers can upgrade attributes by source order
// ("whichever source provides a non-empty value last", §4.6 step 4)
// instead of by the nondeterministic order of a map.
type memberSource struct {
	Filename string
	Members  []model.Member
}

func (m *Merger) readAll(ctx context.Context) ([]stagedMessage, map[string]bool, []model.Meta, []memberSource, error) {
	var all []stagedMessage
	platforms := map[string]bool{}
	var metas []model.Meta
	memberSources := make([]memberSource, len(m.Sources))

	for i, src := range m.Sources {
		rows, err := src.Store.DB.QueryContext(ctx, `SELECT ts, sender_platform_id, sender_account_name, sender_group_nickname, type, content FROM message`)
		if err != nil {
			return nil, nil, nil, nil, coreerr.Wrap(coreerr.CodeIO, err, "read staging messages")
		}
		for rows.Next() {
			var sm stagedMessage
			var content *string
			if err := rows.Scan(&sm.Timestamp, &sm.SenderID, &sm.Account, &sm.Nickname, &sm.Type, &content); err != nil {
				rows.Close()
				return nil, nil, nil, nil, err
			}
			if content != nil {
				sm.Content = *content
			}
			sm.SourceIndex = i
			all = append(all, sm)
		}
		rows.Close()

		var name, platform, kind, groupID, groupAvatar string
		_ = src.Store.DB.QueryRowContext(ctx, `SELECT name, platform, type, group_id, group_avatar FROM meta LIMIT 1`).
			Scan(&name, &platform, &kind, &groupID, &groupAvatar)
		platforms[platform] = true
		metas = append(metas, model.Meta{Name: name, Platform: model.Platform(platform), Kind: model.Kind(kind), GroupID: groupID, GroupAvatar: groupAvatar})

		memberRows, err := src.Store.DB.QueryContext(ctx, `SELECT platform_id, account_name, group_nickname, avatar FROM member`)
		if err == nil {
			var mems []model.Member
			for memberRows.Next() {
				var mem model.Member
				memberRows.Scan(&mem.PlatformID, &mem.AccountName, &mem.GroupNickname, &mem.Avatar)
				mems = append(mems, mem)
			}
			memberRows.Close()
			memberSources[i] = memberSource{Filename: src.Filename, Members: mems}
		}
	}
	return all, platforms, metas, memberSources, nil
}

// CheckConflicts runs §4.6 step 2-3 over every registered source.
func (m *Merger) CheckConflicts(ctx context.Context) (ConflictReport, error) {
	all, platforms, _, _, err := m.readAll(ctx)
	if err != nil {
		return ConflictReport{}, err
	}
	return CheckConflicts(all, platforms)
}

// Resolution maps a conflict's (timestamp, senderID) key to the source
// index the user chose to keep — the explicit resolution map the open
// question in §9 calls for, consulted per duplicate key rather than always
// trusting first-seen-wins.
type Resolution struct {
	Timestamp int64
	SenderID  string
	SourceIndex int
}

func resolutionKey(ts int64, sender string) string { return fmt.Sprintf("%d|%s", ts, sender) }

// Merge performs §4.6 step 4-6: streams every staged message, applies the
// (timestamp, senderPlatformId, content length) dedup key with
// first-processed-wins (source traversal order, reordered per resolutions
// so a user's chosen variant is processed first for its key), unions
// members upgrading attributes to the latest non-empty value, sorts by
// timestamp, and returns the canonical document ready for Write.
func (m *Merger) Merge(ctx context.Context, resolutions []Resolution) (canonical.Document, error) {
	all, platforms, metas, memberSources, err := m.readAll(ctx)
	if err != nil {
		return canonical.Document{}, err
	}
	if len(platforms) > 1 {
		return canonical.Document{}, coreerr.New(coreerr.CodeMixedPlatforms, "sources report more than one platform")
	}

	resolved := make(map[string]int, len(resolutions))
	for _, r := range resolutions {
		resolved[resolutionKey(r.Timestamp, r.SenderID)] = r.SourceIndex
	}

	// Reorder so that, for any key with an explicit resolution, the chosen
	// source's message for that key is encountered first.
	sort.SliceStable(all, func(i, j int) bool {
		pi := priority(all[i], resolved)
		pj := priority(all[j], resolved)
		if pi != pj {
			return pi < pj
		}
		return all[i].SourceIndex < all[j].SourceIndex
	})

	type dedupKey struct {
		ts     int64
		sender string
		length int
	}
	seen := make(map[dedupKey]bool)
	var merged []stagedMessage
	for _, sm := range all {
		k := dedupKey{ts: sm.Timestamp, sender: sm.SenderID, length: len(sm.Content)}
		if seen[k] {
			continue
		}
		seen[k] = true
		merged = append(merged, sm)
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Timestamp < merged[j].Timestamp })

	doc := canonical.Document{
		Chatlab: canonical.ChatlabBlock{Version: "1.0", ExportedAt: time.Now().Unix(), Generator: "chatlab-core merge"},
		Members: unionMembers(memberSources),
	}
	if len(metas) > 0 {
		doc.Meta = canonical.MetaBlock{
			Name:        metas[0].Name,
			Platform:    string(metas[0].Platform),
			Type:        string(metas[0].Kind),
			GroupID:     metas[0].GroupID,
			GroupAvatar: metas[0].GroupAvatar,
		}
	}
	counts := make([]int, len(m.Sources))
	for _, sm := range all {
		counts[sm.SourceIndex]++
	}
	for i, src := range m.Sources {
		doc.Meta.Sources = append(doc.Meta.Sources, canonical.SourceJSON{
			Filename:     src.Filename,
			Platform:     string(platformOf(metas, i)),
			MessageCount: counts[i],
		})
	}
	for _, sm := range merged {
		content := sm.Content
		doc.Messages = append(doc.Messages, canonical.MessageJSON{
			Sender:        sm.SenderID,
			AccountName:   sm.Account,
			GroupNickname: sm.Nickname,
			Timestamp:     sm.Timestamp,
			Type:          sm.Type,
			Content:       &content,
		})
	}
	return doc, nil
}

func priority(sm stagedMessage, resolved map[string]int) int {
	chosen, ok := resolved[resolutionKey(sm.Timestamp, sm.SenderID)]
	if !ok {
		return 1
	}
	if chosen == sm.SourceIndex {
		return 0
	}
	return 2
}

func platformOf(metas []model.Meta, index int) model.Platform {
	if index < 0 || index >= len(metas) {
		return model.PlatformUnknown
	}
	return metas[index].Platform
}

func unionMembers(sources []memberSource) []canonical.MemberJSON {
	byPlatformID := map[string]*model.Member{}
	for _, src := range sources {
		for _, mem := range src.Members {
			existing, ok := byPlatformID[mem.PlatformID]
			if !ok {
				m := mem
				byPlatformID[mem.PlatformID] = &m
				continue
			}
			// "attributes ... are upgraded to whichever source provides a
			// non-empty value last" (§4.6 step 4).
			if mem.AccountName != "" {
				existing.AccountName = mem.AccountName
			}
			if mem.GroupNickname != "" {
				existing.GroupNickname = mem.GroupNickname
			}
			if mem.Avatar != "" {
				existing.Avatar = mem.Avatar
			}
		}
	}
	out := make([]canonical.MemberJSON, 0, len(byPlatformID))
	for _, mem := range byPlatformID {
		out = append(out, canonical.MemberJSON{
			PlatformID:    mem.PlatformID,
			AccountName:   mem.AccountName,
			GroupNickname: mem.GroupNickname,
			Aliases:       mem.Aliases,
			Avatar:        mem.Avatar,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlatformID < out[j].PlatformID })
	return out
}

// WriteCanonical writes doc to w and, if reimport is non-nil, re-enters the
// import pipeline against the written file (§4.6 step 6).
func WriteCanonical(ctx context.Context, w io.Writer, doc canonical.Document, outPath string, reimport *importer.Pipeline) (string, error) {
	if err := canonical.Write(w, doc); err != nil {
		return "", errors.Wrap(err, "write canonical export")
	}
	if reimport == nil {
		return "", nil
	}
	result, err := reimport.Import(ctx, outPath, nil)
	if err != nil {
		return "", err
	}
	return result.SessionID, nil
}
