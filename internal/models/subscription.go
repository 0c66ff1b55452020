package models

import "time"

// SubscriptionStatus статус платной подписки.
type SubscriptionStatus string

const (
	// StatusActive подписка действует.
	StatusActive SubscriptionStatus = "active"
	// StatusExpired срок подписки истек.
	StatusExpired SubscriptionStatus = "expired"
)

// Пороги напоминаний об окончании подписки, в днях до истечения.
const (
	ReminderWeek  = 7
	ReminderThree = 3
	ReminderToday = 0
)

// ReminderThresholds пороги в порядке убывания.
var ReminderThresholds = []int{ReminderWeek, ReminderThree, ReminderToday}

// SubscriptionRecord платная подписка. Создается или заменяется только
// явной активацией.
type SubscriptionRecord struct {
	ActivatedAt      time.Time          `json:"activated_at"`
	ExpiresAt        time.Time          `json:"expires_at"`
	Status           SubscriptionStatus `json:"status"`
	Reminder7Sent    bool               `json:"reminder_7_sent"`
	Reminder3Sent    bool               `json:"reminder_3_sent"`
	Reminder0Sent    bool               `json:"reminder_0_sent"`
	ActivatedByAdmin bool               `json:"activated_by_admin"`
}

// Valid сообщает, пригодна ли запись к использованию.
func (s SubscriptionRecord) Valid() bool {
	if s.ActivatedAt.IsZero() || s.ExpiresAt.IsZero() || s.ExpiresAt.Before(s.ActivatedAt) {
		return false
	}
	return s.Status == StatusActive || s.Status == StatusExpired
}

// ReminderSent сообщает, отправлено ли напоминание для порога days.
func (s SubscriptionRecord) ReminderSent(days int) bool {
	switch days {
	case ReminderWeek:
		return s.Reminder7Sent
	case ReminderThree:
		return s.Reminder3Sent
	case ReminderToday:
		return s.Reminder0Sent
	}
	return true
}

// MarkReminderSent отмечает напоминание для порога days как отправленное.
func (s *SubscriptionRecord) MarkReminderSent(days int) {
	switch days {
	case ReminderWeek:
		s.Reminder7Sent = true
	case ReminderThree:
		s.Reminder3Sent = true
	case ReminderToday:
		s.Reminder0Sent = true
	}
}
