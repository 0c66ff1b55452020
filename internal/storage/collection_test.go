package storage_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/companion-gate/internal/lib/clock"
	"github.com/magabrotheeeer/companion-gate/internal/models"
	"github.com/magabrotheeeer/companion-gate/internal/storage"
	"github.com/magabrotheeeer/companion-gate/internal/storage/file"
)

var now = time.Date(2026, 3, 1, 16, 30, 0, 0, time.UTC)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

// memBackend бэкенд в памяти с управляемыми ошибками.
type memBackend struct {
	mu          sync.Mutex
	data        map[string][]byte
	quarantined map[string][]byte
	readErr     error
	writeErr    error
	writes      int
}

func newMemBackend() *memBackend {
	return &memBackend{data: map[string][]byte{}, quarantined: map[string][]byte{}}
}

func (m *memBackend) Read(_ context.Context, family string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	d, ok := m.data[family]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return d, nil
}

func (m *memBackend) Write(_ context.Context, family string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.writeErr != nil {
		return m.writeErr
	}
	m.data[family] = append([]byte(nil), data...)
	return nil
}

func (m *memBackend) Quarantine(_ context.Context, family, suffix string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := family + ":" + suffix
	m.quarantined[key] = m.data[family]
	delete(m.data, family)
	return key, nil
}

func TestCollectionRoundTripAcrossRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	backend, err := file.New(dir)
	require.NoError(t, err)
	clk := clock.Fake(now)

	subs, err := storage.Open[models.SubscriptionRecord](ctx, backend, storage.FamilySubscriptions, clk, newNoopLogger())
	require.NoError(t, err)
	rec := models.SubscriptionRecord{
		ActivatedAt:      now,
		ExpiresAt:        now.AddDate(0, 0, 30),
		Status:           models.StatusActive,
		Reminder7Sent:    true,
		ActivatedByAdmin: true,
	}
	require.NoError(t, subs.Put(ctx, "whatsapp:+5215550001", rec))

	daily, err := storage.Open[models.DailySessionRecord](ctx, backend, storage.FamilyDailySessions, clk, newNoopLogger())
	require.NoError(t, err)
	dailyRec := models.DailySessionRecord{LastSessionDate: "2026-03-01", SessionCount: 4, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, daily.Put(ctx, "whatsapp:+5215550001", dailyRec))

	// новый процесс: все читается с нуля
	reopened, err := storage.Open[models.SubscriptionRecord](ctx, backend, storage.FamilySubscriptions, clk, newNoopLogger())
	require.NoError(t, err)
	got, ok := reopened.Get("whatsapp:+5215550001")
	require.True(t, ok)
	assert.Equal(t, rec, got)

	reopenedDaily, err := storage.Open[models.DailySessionRecord](ctx, backend, storage.FamilyDailySessions, clk, newNoopLogger())
	require.NoError(t, err)
	gotDaily, ok := reopenedDaily.Get("whatsapp:+5215550001")
	require.True(t, ok)
	assert.Equal(t, dailyRec, gotDaily)
}

func TestCollectionCorruptFileIsQuarantined(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	backend, err := file.New(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(backend.Path(storage.FamilyTrials), []byte("{not json"), 0o600))

	trials, err := storage.Open[models.TrialRecord](ctx, backend, storage.FamilyTrials, clock.Fake(now), newNoopLogger())
	require.NoError(t, err)

	assert.Equal(t, 0, trials.Len())
	backup := filepath.Join(dir, "trials.json.corrupt-20260301T163000")
	content, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(content))
	_, err = os.Stat(backend.Path(storage.FamilyTrials))
	assert.True(t, os.IsNotExist(err))
}

func TestCollectionUnreadableIsQuarantined(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	backend.data[storage.FamilyTrials] = []byte(`{}`)
	backend.readErr = errors.New("disk on fire")

	trials, err := storage.Open[models.TrialRecord](ctx, backend, storage.FamilyTrials, clock.Fake(now), newNoopLogger())
	require.NoError(t, err)

	assert.Equal(t, 0, trials.Len())
	assert.Contains(t, backend.quarantined, "trials:20260301T163000")
}

func TestCollectionUnavailableBackendIsNotQuarantined(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	backend.data[storage.FamilySubscriptions] = []byte(`{}`)
	backend.readErr = fmt.Errorf("dial tcp: i/o timeout: %w", storage.ErrUnavailable)

	subs, err := storage.Open[models.SubscriptionRecord](ctx, backend, storage.FamilySubscriptions, clock.Fake(now), newNoopLogger())

	require.ErrorIs(t, err, storage.ErrUnavailable)
	assert.Nil(t, subs)
	assert.Empty(t, backend.quarantined)
	assert.Equal(t, []byte(`{}`), backend.data[storage.FamilySubscriptions])
}

func TestCollectionDropsMalformedRecords(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	backend.data[storage.FamilySubscriptions] = []byte(`{
		"good": {"activated_at":"2026-03-01T10:00:00Z","expires_at":"2026-03-31T10:00:00Z","status":"active"},
		"bad-date": {"activated_at":"yesterday","expires_at":"2026-03-31T10:00:00Z","status":"active"},
		"missing": {"status":"active"}
	}`)
	var dropped []string

	subs, err := storage.Open[models.SubscriptionRecord](ctx, backend, storage.FamilySubscriptions, clock.Fake(now), newNoopLogger(),
		storage.WithDropHook(func(family string) { dropped = append(dropped, family) }))
	require.NoError(t, err)

	assert.Equal(t, 1, subs.Len())
	_, ok := subs.Get("good")
	assert.True(t, ok)
	_, ok = subs.Get("bad-date")
	assert.False(t, ok)
	assert.Len(t, dropped, 2)
	assert.Empty(t, backend.quarantined)
}

func TestCollectionSaveFailureKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	var failures int
	trials, err := storage.Open[models.TrialRecord](ctx, backend, storage.FamilyTrials, clock.Fake(now), newNoopLogger(),
		storage.WithSaveErrorHook(func(string) { failures++ }))
	require.NoError(t, err)

	backend.writeErr = errors.New("read-only filesystem")
	rec := models.TrialRecord{StartDate: now, EndDate: now.AddDate(0, 0, 21)}
	err = trials.Put(ctx, "u1", rec)
	require.Error(t, err)
	assert.Equal(t, 1, failures)

	got, ok := trials.Get("u1")
	require.True(t, ok)
	assert.Equal(t, rec, got)

	// следующая мутация дописывает и прежнее изменение
	backend.writeErr = nil
	require.NoError(t, trials.Put(ctx, "u2", rec))
	reopened, err := storage.Open[models.TrialRecord](ctx, backend, storage.FamilyTrials, clock.Fake(now), newNoopLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Len())
}

func TestCollectionDeleteAndSnapshot(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	trials, err := storage.Open[models.TrialRecord](ctx, backend, storage.FamilyTrials, clock.Fake(now), newNoopLogger())
	require.NoError(t, err)
	rec := models.TrialRecord{StartDate: now, EndDate: now.AddDate(0, 0, 21)}
	require.NoError(t, trials.Put(ctx, "u1", rec))
	require.NoError(t, trials.Put(ctx, "u2", rec))

	snap := trials.Snapshot()
	require.NoError(t, trials.Delete(ctx, "u1"))

	assert.Len(t, snap, 2, "snapshot must not observe later mutations")
	assert.Equal(t, 1, trials.Len())

	writes := backend.writes
	require.NoError(t, trials.Delete(ctx))
	assert.Equal(t, writes, backend.writes, "empty delete must not write")
}
