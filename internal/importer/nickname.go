package importer

import "github.com/chatlab/chatlab-core/internal/model"

// observation is one (name, firstSeenTs) pair recorded in memory while
// streaming messages, per (member, kind). Nothing here touches the store
// until compaction — §9: "Nickname trackers live in process memory and are
// flushed once at end-of-import; do not persist them incrementally."
type observation struct {
	name  string
	start int64
}

// nicknameTracker accumulates raw (name, ts) observations per platform id
// and per NameKind, then compacts them into model.NameHistoryEntry values
// once streaming ends (§4.4 step 5).
type nicknameTracker struct {
	account  map[string][]observation
	nickname map[string][]observation
}

func newNicknameTracker() *nicknameTracker {
	return &nicknameTracker{
		account:  make(map[string][]observation),
		nickname: make(map[string][]observation),
	}
}

// Observe records a name seen for platformID at ts, appending only when it
// differs from the most recently observed name for that (member, kind) —
// §4.4: "on observed change, appends (name, start=timestamp)".
func (t *nicknameTracker) Observe(platformID string, kind model.NameKind, name string, ts int64) {
	if name == "" {
		return
	}
	m := t.bucket(kind)
	obs := m[platformID]
	if len(obs) > 0 && obs[len(obs)-1].name == name {
		return
	}
	m[platformID] = append(obs, observation{name: name, start: ts})
}

func (t *nicknameTracker) bucket(kind model.NameKind) map[string][]observation {
	if kind == model.NameAccount {
		return t.account
	}
	return t.nickname
}

// CompactedEntry is one history interval ready to persist, plus the latest
// name for the member row update (§4.4 step 5).
type CompactedEntry struct {
	Kind    model.NameKind
	Name    string
	Start   int64
	End     int64
	Open    bool
}

// Compact reduces the raw per-kind observation list for platformID into the
// ordered, non-overlapping interval list §4.4 step 5 describes: dedupe
// identical consecutive names (already enforced by Observe, but a second
// pass stays correct if observations arrived out of timestamp order),
// require >= 2 distinct names to persist any history at all, close each
// entry's end at the next entry's start, leave the last one open.
func Compact(platformID string, kind model.NameKind, obs []observation) []CompactedEntry {
	deduped := dedupeConsecutive(obs)
	if len(deduped) < 2 {
		return nil
	}
	out := make([]CompactedEntry, 0, len(deduped))
	for i, o := range deduped {
		e := CompactedEntry{Kind: kind, Name: o.name, Start: o.start}
		if i+1 < len(deduped) {
			e.End = deduped[i+1].start
		} else {
			e.Open = true
		}
		out = append(out, e)
	}
	return out
}

func dedupeConsecutive(obs []observation) []observation {
	if len(obs) == 0 {
		return nil
	}
	sorted := make([]observation, len(obs))
	copy(sorted, obs)
	// Observations are appended in message-stream order already, which is
	// ascending timestamp order for any single sender in practice, but
	// sort defensively since history correctness depends on it.
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1].start > sorted[j].start; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	out := sorted[:1]
	for _, o := range sorted[1:] {
		if out[len(out)-1].name == o.name {
			continue
		}
		out = append(out, o)
	}
	return out
}

// LatestName returns the most recently observed name, or "" if there were
// none, used to update the member row's current name (§4.4 step 5).
func LatestName(obs []observation) string {
	if len(obs) == 0 {
		return ""
	}
	return obs[len(obs)-1].name
}
