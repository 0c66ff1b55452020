package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/companion-gate/internal/storage"
)

func TestBackendReadMissing(t *testing.T) {
	b, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = b.Read(context.Background(), storage.FamilyTrials)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBackendWriteRead(t *testing.T) {
	b, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, storage.FamilyTrials, []byte(`{"a":1}`)))
	require.NoError(t, b.Write(ctx, storage.FamilyTrials, []byte(`{"a":2}`)))

	data, err := b.Read(ctx, storage.FamilyTrials)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(data))

	// временные файлы не остаются в каталоге
	matches, err := filepath.Glob(filepath.Join(b.dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestBackendQuarantine(t *testing.T) {
	dir := t.TempDir()
	b, err := New(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(b.Path(storage.FamilySubscriptions), []byte("garbage"), 0o600))

	backup, err := b.Quarantine(ctx, storage.FamilySubscriptions, "20260301T100000")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "subscriptions.json.corrupt-20260301T100000"), backup)

	content, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, "garbage", string(content))

	_, err = b.Read(ctx, storage.FamilySubscriptions)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBackendQuarantineMissing(t *testing.T) {
	b, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = b.Quarantine(context.Background(), storage.FamilyTrials, "x")
	assert.Error(t, err)
}
