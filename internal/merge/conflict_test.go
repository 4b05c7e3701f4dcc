package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chatlab/chatlab-core/internal/coreerr"
)

func TestCheckConflictsRejectsMixedPlatforms(t *testing.T) {
	_, err := CheckConflicts(nil, map[string]bool{"qq": true, "wechat": true})
	code, ok := coreerr.CodeOf(err)
	assert.True(t, ok)
	assert.Equal(t, coreerr.CodeMixedPlatforms, code)
}

func TestCheckConflictsReportsDivergentContent(t *testing.T) {
	// Two sources, same (timestamp, sender), two different one-byte contents.
	messages := []stagedMessage{
		{SourceIndex: 0, Timestamp: 100, SenderID: "u1", Content: "a"},
		{SourceIndex: 1, Timestamp: 100, SenderID: "u1", Content: "b"},
	}
	report, err := CheckConflicts(messages, map[string]bool{"qq": true})
	assert.NoError(t, err)
	if assert.Len(t, report.Conflicts, 1) {
		conflict := report.Conflicts[0]
		assert.Equal(t, int64(100), conflict.Timestamp)
		assert.Equal(t, "u1", conflict.SenderID)
		assert.Len(t, conflict.Variants, 2)
		for _, v := range conflict.Variants {
			assert.Equal(t, 1, v.ContentLength)
		}
	}
}

func TestCheckConflictsAutoDedupsIdenticalContent(t *testing.T) {
	messages := []stagedMessage{
		{SourceIndex: 0, Timestamp: 100, SenderID: "u1", Content: "same"},
		{SourceIndex: 1, Timestamp: 100, SenderID: "u1", Content: "same"},
	}
	report, err := CheckConflicts(messages, map[string]bool{"qq": true})
	assert.NoError(t, err)
	assert.Empty(t, report.Conflicts)
	assert.Equal(t, 1, report.AutoDeduped)
}

func TestCheckConflictsAutoDedupsPureImageVariants(t *testing.T) {
	messages := []stagedMessage{
		{SourceIndex: 0, Timestamp: 100, SenderID: "u1", Content: "[图片: a.jpg]"},
		{SourceIndex: 1, Timestamp: 100, SenderID: "u1", Content: "[图片: b.png]"},
	}
	report, err := CheckConflicts(messages, map[string]bool{"qq": true})
	assert.NoError(t, err)
	assert.Empty(t, report.Conflicts)
	assert.Equal(t, 1, report.AutoDeduped)
}

func TestCheckConflictsSingleSourceNeverConflicts(t *testing.T) {
	messages := []stagedMessage{
		{SourceIndex: 0, Timestamp: 100, SenderID: "u1", Content: "a"},
		{SourceIndex: 0, Timestamp: 100, SenderID: "u1", Content: "b"},
	}
	report, err := CheckConflicts(messages, map[string]bool{"qq": true})
	assert.NoError(t, err)
	assert.Empty(t, report.Conflicts)
}
