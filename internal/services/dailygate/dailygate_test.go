package dailygate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/companion-gate/internal/lib/clock"
	"github.com/magabrotheeeer/companion-gate/internal/models"
	"github.com/magabrotheeeer/companion-gate/internal/storage"
	"github.com/magabrotheeeer/companion-gate/internal/storage/file"
)

const user = "whatsapp:+5214420000001"

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func mexico(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Mexico_City")
	require.NoError(t, err)
	return loc
}

func TestGateLifecycle(t *testing.T) {
	loc := mexico(t)
	ctx := context.Background()
	backend, err := file.New(t.TempDir())
	require.NoError(t, err)
	clk := clock.Fake(time.Date(2026, 3, 2, 23, 10, 0, 0, loc))
	store, err := storage.Open[models.DailySessionRecord](ctx, backend, storage.FamilyDailySessions, clk, newNoopLogger())
	require.NoError(t, err)
	gate := New(store, loc, clk, newNoopLogger())

	assert.False(t, gate.HasUsedSessionToday(user))

	rec, err := gate.RegisterSessionCompletion(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", rec.LastSessionDate)
	assert.Equal(t, 1, rec.SessionCount)
	assert.True(t, gate.HasUsedSessionToday(user))
	assert.Equal(t, 1, gate.CompletedToday())
	assert.Equal(t, 50*time.Minute, gate.TimeUntilNextReset())

	// после перезапуска ограничение сохраняется
	reopenedStore, err := storage.Open[models.DailySessionRecord](ctx, backend, storage.FamilyDailySessions, clk, newNoopLogger())
	require.NoError(t, err)
	reopened := New(reopenedStore, loc, clk, newNoopLogger())
	assert.True(t, reopened.HasUsedSessionToday(user))

	// полночь прошла, больше ничего не менялось
	clk.Advance(50 * time.Minute)
	assert.False(t, gate.HasUsedSessionToday(user))
	assert.Equal(t, 0, gate.CompletedToday())
	assert.Equal(t, 24*time.Hour, gate.TimeUntilNextReset())

	rec, err = gate.RegisterSessionCompletion(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-03", rec.LastSessionDate)
	assert.Equal(t, 2, rec.SessionCount)
}

func TestGateUsesCalendarDayNotElapsedHours(t *testing.T) {
	loc := mexico(t)
	ctx := context.Background()
	backend, err := file.New(t.TempDir())
	require.NoError(t, err)
	clk := clock.Fake(time.Date(2026, 3, 2, 0, 30, 0, 0, loc))
	store, err := storage.Open[models.DailySessionRecord](ctx, backend, storage.FamilyDailySessions, clk, newNoopLogger())
	require.NoError(t, err)
	gate := New(store, loc, clk, newNoopLogger())

	_, err = gate.RegisterSessionCompletion(ctx, user)
	require.NoError(t, err)

	// 23 часа спустя, тот же календарный день
	clk.Advance(23 * time.Hour)
	assert.True(t, gate.HasUsedSessionToday(user))
}

func TestIsToday(t *testing.T) {
	loc := mexico(t)
	clk := clock.Fake(time.Date(2026, 3, 3, 0, 10, 0, 0, loc))
	gate := New(new(MockStore), loc, clk, newNoopLogger())

	assert.True(t, gate.IsToday(time.Date(2026, 3, 3, 0, 0, 0, 0, loc)))
	assert.False(t, gate.IsToday(time.Date(2026, 3, 2, 23, 50, 0, 0, loc)))
	// 05:50 UTC это 23:50 предыдущего дня в Мехико
	assert.False(t, gate.IsToday(time.Date(2026, 3, 3, 5, 50, 0, 0, time.UTC)))
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Get(id string) (models.DailySessionRecord, bool) {
	args := m.Called(id)
	return args.Get(0).(models.DailySessionRecord), args.Bool(1)
}

func (m *MockStore) Put(ctx context.Context, id string, rec models.DailySessionRecord) error {
	args := m.Called(ctx, id, rec)
	return args.Error(0)
}

func (m *MockStore) Snapshot() map[string]models.DailySessionRecord {
	args := m.Called()
	return args.Get(0).(map[string]models.DailySessionRecord)
}

func TestRegisterSessionCompletionSaveError(t *testing.T) {
	loc := mexico(t)
	clk := clock.Fake(time.Date(2026, 3, 2, 12, 0, 0, 0, loc))
	store := new(MockStore)
	store.On("Get", user).Return(models.DailySessionRecord{}, false).Once()
	store.On("Put", mock.Anything, user, mock.MatchedBy(func(rec models.DailySessionRecord) bool {
		return rec.LastSessionDate == "2026-03-02" && rec.SessionCount == 1
	})).Return(errors.New("disk full")).Once()

	gate := New(store, loc, clk, newNoopLogger())
	_, err := gate.RegisterSessionCompletion(context.Background(), user)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "dailygate.RegisterSessionCompletion")
	store.AssertExpectations(t)
}
