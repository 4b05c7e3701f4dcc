package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.CreateSchema(context.Background()))
	return s
}

func TestCreateSchemaStampsVersion(t *testing.T) {
	s := openTestStore(t)
	v, err := s.SchemaVersionOf(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, v)
}

func TestCreateSecondaryIndexesSucceedsWithoutError(t *testing.T) {
	s := openTestStore(t)
	err := s.CreateSecondaryIndexes(context.Background())
	assert.NoError(t, err, "a nil underlying error must surface as a true nil error, not a typed-nil *coreerr.Error")
}

func TestCheckpointSucceedsWithoutError(t *testing.T) {
	s := openTestStore(t)
	err := s.Checkpoint(context.Background())
	assert.NoError(t, err)
}

func TestSchemaVersionOfZeroOnFreshFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()

	v, err := s.SchemaVersionOf(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, v)
}

func TestDeleteRemovesStoreAndSidecars(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, s.CreateSchema(context.Background()))
	require.NoError(t, s.Close())

	require.NoError(t, Delete(path))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	for _, suffix := range []string{"-wal", "-shm"} {
		_, err = os.Stat(path + suffix)
		assert.True(t, os.IsNotExist(err))
	}
}

func TestDeleteIsSafeOnMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never-created.db")
	assert.NoError(t, Delete(path))
}
