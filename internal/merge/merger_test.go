package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chatlab/chatlab-core/internal/model"
)

func TestPriorityPrefersResolvedSource(t *testing.T) {
	resolved := map[string]int{resolutionKey(100, "u1"): 1}

	chosen := stagedMessage{SourceIndex: 1, Timestamp: 100, SenderID: "u1"}
	other := stagedMessage{SourceIndex: 0, Timestamp: 100, SenderID: "u1"}
	unresolvedKey := stagedMessage{SourceIndex: 0, Timestamp: 200, SenderID: "u1"}

	assert.Less(t, priority(chosen, resolved), priority(other, resolved))
	assert.Equal(t, 1, priority(unresolvedKey, resolved))
}

func TestUnionMembersUpgradesNonEmptyAttributes(t *testing.T) {
	sources := []memberSource{
		{Filename: "a.json", Members: []model.Member{{PlatformID: "p1", AccountName: "Alice", Avatar: ""}}},
		{Filename: "b.json", Members: []model.Member{{PlatformID: "p1", AccountName: "", Avatar: "data:image/png;base64,abc"}}},
	}
	out := unionMembers(sources)
	if assert.Len(t, out, 1) {
		assert.Equal(t, "p1", out[0].PlatformID)
		assert.Equal(t, "Alice", out[0].AccountName)
		assert.Equal(t, "data:image/png;base64,abc", out[0].Avatar)
	}
}

func TestUnionMembersSortsByPlatformID(t *testing.T) {
	sources := []memberSource{
		{Filename: "a.json", Members: []model.Member{{PlatformID: "p2"}, {PlatformID: "p1"}}},
	}
	out := unionMembers(sources)
	if assert.Len(t, out, 2) {
		assert.Equal(t, "p1", out[0].PlatformID)
		assert.Equal(t, "p2", out[1].PlatformID)
	}
}

// TestUnionMembersLastSourceWinsDeterministically pins down §4.6 step 4's
// "whichever source provides a non-empty value last": when two sources both
// supply a non-empty value for the *same* attribute, the later source in
// Sources order must win every run, not whichever the map iteration order
// happened to visit last.
func TestUnionMembersLastSourceWinsDeterministically(t *testing.T) {
	sources := []memberSource{
		{Filename: "a.json", Members: []model.Member{{PlatformID: "p1", AccountName: "Alice", GroupNickname: "AliceNick"}}},
		{Filename: "b.json", Members: []model.Member{{PlatformID: "p1", AccountName: "Alicia", GroupNickname: "AliciaNick"}}},
	}
	for i := 0; i < 20; i++ {
		out := unionMembers(sources)
		if assert.Len(t, out, 1) {
			assert.Equal(t, "Alicia", out[0].AccountName)
			assert.Equal(t, "AliciaNick", out[0].GroupNickname)
		}
	}
}

func TestPlatformOfOutOfRangeIsUnknown(t *testing.T) {
	assert.Equal(t, model.PlatformUnknown, platformOf(nil, 0))
	assert.Equal(t, model.PlatformUnknown, platformOf([]model.Meta{{Platform: model.PlatformQQ}}, 5))
}
