// Package models содержит доменные структуры записей, которые хранятся
// в коллекциях: пробный период, подписка и учет ежедневных сессий.
package models

import "time"

// TrialRecord пробный период пользователя. Создается при первом контакте и
// дальше не меняется, кроме флага IsSubscribed.
type TrialRecord struct {
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	IsSubscribed bool      `json:"is_subscribed"`
}

// Valid сообщает, пригодна ли запись к использованию. Запись с нулевыми
// или перепутанными датами считается отсутствующей.
func (t TrialRecord) Valid() bool {
	return !t.StartDate.IsZero() && !t.EndDate.IsZero() && !t.EndDate.Before(t.StartDate)
}
