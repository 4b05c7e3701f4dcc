package importer

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatlab/chatlab-core/internal/coreerr"
	"github.com/chatlab/chatlab-core/internal/format"
	"github.com/chatlab/chatlab-core/internal/parser/canonical"
)

const sampleCanonicalExport = `{
	"chatlab": {"version": "1.0", "exportedAt": 1700000100},
	"meta": {"name": "Test Group", "platform": "qq", "type": "group"},
	"members": [
		{"platformId": "u1", "accountName": "Alice"},
		{"platformId": "u2", "accountName": "Bob"}
	],
	"messages": [
		{"sender": "u1", "accountName": "Alice", "timestamp": 1700000000, "type": 0, "content": "hi"},
		{"sender": "u2", "accountName": "Bob", "timestamp": 1700000010, "type": 0, "content": "hello"},
		{"sender": "u1", "accountName": "Alicia", "timestamp": 1700000020, "type": 0, "content": "renamed now"}
	]
}`

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	reg := format.NewRegistry()
	canonical.RegisterInto(reg)
	dispatch := Dispatch{canonical.Descriptor.ID: canonical.Parser{}}
	p := New(reg, dispatch, t.TempDir())
	p.Clock = func() int64 { return 1700000100 }
	return p
}

func TestImportCanonicalExport(t *testing.T) {
	p := newTestPipeline(t)
	srcPath := filepath.Join(t.TempDir(), "export.json")
	require.NoError(t, os.WriteFile(srcPath, []byte(sampleCanonicalExport), 0o644))

	result, err := p.Import(context.Background(), srcPath, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, result.SessionID)
	assert.Equal(t, int64(3), result.MessageCount)
	assert.Equal(t, int64(0), result.Dropped)

	dbPath := filepath.Join(p.StoreDir, result.SessionID+".db")
	_, statErr := os.Stat(dbPath)
	assert.NoError(t, statErr)
}

func TestImportUnrecognizedFormatLeavesNoStoreFile(t *testing.T) {
	p := newTestPipeline(t)
	srcPath := filepath.Join(t.TempDir(), "garbage.json")
	require.NoError(t, os.WriteFile(srcPath, []byte(`{"not":"a known shape"}`), 0o644))

	entriesBefore, _ := os.ReadDir(p.StoreDir)

	_, err := p.Import(context.Background(), srcPath, nil)
	assert.Error(t, err)

	entriesAfter, _ := os.ReadDir(p.StoreDir)
	assert.Len(t, entriesAfter, len(entriesBefore))
}

func TestImportCancelledContextSurfacesAsCancelledCode(t *testing.T) {
	p := newTestPipeline(t)
	srcPath := filepath.Join(t.TempDir(), "export.json")
	require.NoError(t, os.WriteFile(srcPath, []byte(sampleCanonicalExport), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Import(ctx, srcPath, nil)
	require.Error(t, err)
	code, ok := coreerr.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, coreerr.CodeCancelled, code)
}

func TestImportBuildsNicknameHistoryAcrossRename(t *testing.T) {
	p := newTestPipeline(t)
	srcPath := filepath.Join(t.TempDir(), "export.json")
	require.NoError(t, os.WriteFile(srcPath, []byte(sampleCanonicalExport), 0o644))

	result, err := p.Import(context.Background(), srcPath, nil)
	require.NoError(t, err)

	dbPath := filepath.Join(p.StoreDir, result.SessionID+".db")
	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer db.Close()

	var historyCount int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM member_name_history`).Scan(&historyCount))
	// Alice -> Alicia is two distinct names for u1, so exactly one open
	// history row pair (one closed, one open) is recorded; Bob never
	// changed name, so he contributes none.
	assert.Equal(t, 2, historyCount)

	var latestName string
	require.NoError(t, db.QueryRow(`SELECT account_name FROM member WHERE platform_id = 'u1'`).Scan(&latestName))
	assert.Equal(t, "Alicia", latestName)
}
