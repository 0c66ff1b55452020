package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrialRecordValid(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	assert.True(t, TrialRecord{StartDate: start, EndDate: start.AddDate(0, 0, 21)}.Valid())
	assert.False(t, TrialRecord{}.Valid())
	assert.False(t, TrialRecord{StartDate: start, EndDate: start.AddDate(0, 0, -1)}.Valid())
}

func TestSubscriptionRecordValid(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := SubscriptionRecord{ActivatedAt: now, ExpiresAt: now.AddDate(0, 0, 30), Status: StatusActive}

	assert.True(t, rec.Valid())

	rec.Status = "paused"
	assert.False(t, rec.Valid())

	assert.False(t, SubscriptionRecord{Status: StatusActive}.Valid())
}

func TestReminderFlags(t *testing.T) {
	var rec SubscriptionRecord
	for _, days := range ReminderThresholds {
		assert.False(t, rec.ReminderSent(days))
		rec.MarkReminderSent(days)
		assert.True(t, rec.ReminderSent(days))
	}
	assert.True(t, rec.Reminder7Sent && rec.Reminder3Sent && rec.Reminder0Sent)
	// неизвестный порог считается уже отправленным, чтобы не слать лишнего
	assert.True(t, rec.ReminderSent(5))
}

func TestDailySessionRecordValid(t *testing.T) {
	assert.True(t, DailySessionRecord{LastSessionDate: "2026-03-01", SessionCount: 1}.Valid())
	assert.False(t, DailySessionRecord{LastSessionDate: "01-03-2026"}.Valid())
	assert.False(t, DailySessionRecord{}.Valid())
}
