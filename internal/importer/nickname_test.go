package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chatlab/chatlab-core/internal/model"
)

func TestObserveIgnoresConsecutiveDuplicate(t *testing.T) {
	tr := newNicknameTracker()
	tr.Observe("p1", model.NameAccount, "Alice", 1)
	tr.Observe("p1", model.NameAccount, "Alice", 2)
	assert.Len(t, tr.account["p1"], 1)
}

func TestObserveIgnoresEmptyName(t *testing.T) {
	tr := newNicknameTracker()
	tr.Observe("p1", model.NameAccount, "", 1)
	assert.Empty(t, tr.account["p1"])
}

func TestCompactNeedsTwoDistinctNames(t *testing.T) {
	obs := []observation{{name: "Alice", start: 1}}
	assert.Nil(t, Compact("p1", model.NameAccount, obs))
}

func TestCompactBuildsOpenEndedIntervals(t *testing.T) {
	// Account history A[1,2), B[2,4), A[4,inf).
	obs := []observation{
		{name: "A", start: 1},
		{name: "B", start: 2},
		{name: "A", start: 4},
	}
	entries := Compact("p1", model.NameAccount, obs)
	if assert.Len(t, entries, 3) {
		assert.Equal(t, CompactedEntry{Kind: model.NameAccount, Name: "A", Start: 1, End: 2}, entries[0])
		assert.Equal(t, CompactedEntry{Kind: model.NameAccount, Name: "B", Start: 2, End: 4}, entries[1])
		assert.Equal(t, CompactedEntry{Kind: model.NameAccount, Name: "A", Start: 4, Open: true}, entries[2])
	}
}

func TestCompactSortsOutOfOrderObservations(t *testing.T) {
	obs := []observation{
		{name: "A", start: 4},
		{name: "B", start: 2},
		{name: "C", start: 1},
	}
	entries := Compact("p1", model.NameAccount, obs)
	if assert.Len(t, entries, 3) {
		assert.Equal(t, "C", entries[0].Name)
		assert.Equal(t, "B", entries[1].Name)
		assert.Equal(t, "A", entries[2].Name)
		assert.True(t, entries[2].Open)
	}
}

func TestLatestNameReturnsLastObservation(t *testing.T) {
	obs := []observation{{name: "A", start: 1}, {name: "B", start: 4}}
	assert.Equal(t, "B", LatestName(obs))
	assert.Equal(t, "", LatestName(nil))
}
