package merge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatlab/chatlab-core/internal/parser/canonical"
	"github.com/chatlab/chatlab-core/internal/staging"
)

const exportA = `{
	"chatlab": {"version": "1.0", "exportedAt": 1},
	"meta": {"name": "G", "platform": "qq", "type": "group"},
	"members": [{"platformId": "u1", "accountName": "Alice"}],
	"messages": [
		{"sender": "u1", "accountName": "Alice", "timestamp": 1700000000, "type": 0, "content": "hello"},
		{"sender": "u1", "accountName": "Alice", "timestamp": 1700000010, "type": 0, "content": "only in A"}
	]
}`

const exportB = `{
	"chatlab": {"version": "1.0", "exportedAt": 1},
	"meta": {"name": "G", "platform": "qq", "type": "group"},
	"members": [{"platformId": "u1", "accountName": "Alice"}],
	"messages": [
		{"sender": "u1", "accountName": "Alice", "timestamp": 1700000000, "type": 0, "content": "hello"},
		{"sender": "u1", "accountName": "Alice", "timestamp": 1700000020, "type": 0, "content": "only in B"}
	]
}`

func ingestFixture(t *testing.T, tempDir, filename, body string) *staging.Store {
	t.Helper()
	srcPath := filepath.Join(t.TempDir(), filename)
	require.NoError(t, os.WriteFile(srcPath, []byte(body), 0o644))

	st, err := staging.New(context.Background(), tempDir, filename)
	require.NoError(t, err)
	require.NoError(t, st.Ingest(context.Background(), canonical.Parser{}, srcPath))
	return st
}

func TestMergerDeduplicatesIdenticalOverlap(t *testing.T) {
	tempDir := t.TempDir()
	a := ingestFixture(t, tempDir, "a.json", exportA)
	b := ingestFixture(t, tempDir, "b.json", exportB)
	defer a.Close()
	defer b.Close()

	m := New([]Source{{Store: a, Filename: "a.json"}, {Store: b, Filename: "b.json"}})
	doc, err := m.Merge(context.Background(), nil)
	require.NoError(t, err)

	// "hello" at ts=1700000000 appears in both sources with identical
	// content and is deduplicated down to one row; the other two messages
	// are each unique to their source.
	assert.Len(t, doc.Messages, 3)
	var contents []string
	for _, msg := range doc.Messages {
		contents = append(contents, *msg.Content)
	}
	assert.ElementsMatch(t, []string{"hello", "only in A", "only in B"}, contents)
}

func TestMergerCheckConflictsOnDivergentOverlap(t *testing.T) {
	tempDir := t.TempDir()
	a := ingestFixture(t, tempDir, "a.json", `{
		"chatlab": {"version": "1.0", "exportedAt": 1},
		"meta": {"name": "G", "platform": "qq", "type": "group"},
		"members": [],
		"messages": [{"sender": "u1", "accountName": "Alice", "timestamp": 1700000000, "type": 0, "content": "a"}]
	}`)
	b := ingestFixture(t, tempDir, "b.json", `{
		"chatlab": {"version": "1.0", "exportedAt": 1},
		"meta": {"name": "G", "platform": "qq", "type": "group"},
		"members": [],
		"messages": [{"sender": "u1", "accountName": "Alice", "timestamp": 1700000000, "type": 0, "content": "b"}]
	}`)
	defer a.Close()
	defer b.Close()

	m := New([]Source{{Store: a, Filename: "a.json"}, {Store: b, Filename: "b.json"}})
	report, err := m.CheckConflicts(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Conflicts, 1)
}

func TestMergerResolutionPicksChosenSourceVariant(t *testing.T) {
	tempDir := t.TempDir()
	a := ingestFixture(t, tempDir, "a.json", `{
		"chatlab": {"version": "1.0", "exportedAt": 1},
		"meta": {"name": "G", "platform": "qq", "type": "group"},
		"members": [],
		"messages": [{"sender": "u1", "accountName": "Alice", "timestamp": 1700000000, "type": 0, "content": "from a"}]
	}`)
	b := ingestFixture(t, tempDir, "b.json", `{
		"chatlab": {"version": "1.0", "exportedAt": 1},
		"meta": {"name": "G", "platform": "qq", "type": "group"},
		"members": [],
		"messages": [{"sender": "u1", "accountName": "Alice", "timestamp": 1700000000, "type": 0, "content": "from b"}]
	}`)
	defer a.Close()
	defer b.Close()

	m := New([]Source{{Store: a, Filename: "a.json"}, {Store: b, Filename: "b.json"}})
	doc, err := m.Merge(context.Background(), []Resolution{
		{Timestamp: 1700000000, SenderID: "u1", SourceIndex: 1},
	})
	require.NoError(t, err)
	require.Len(t, doc.Messages, 1)
	assert.Equal(t, "from b", *doc.Messages[0].Content)
}
