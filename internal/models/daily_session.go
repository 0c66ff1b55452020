package models

import "time"

// DateLayout формат календарной даты в записях.
const DateLayout = "2006-01-02"

// DailySessionRecord учет завершенных сессий пользователя.
type DailySessionRecord struct {
	// LastSessionDate дата последней завершенной сессии в формате DateLayout.
	LastSessionDate string    `json:"last_session_date"`
	SessionCount    int       `json:"session_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Valid сообщает, пригодна ли запись к использованию.
func (d DailySessionRecord) Valid() bool {
	_, err := time.Parse(DateLayout, d.LastSessionDate)
	return err == nil && d.SessionCount >= 0
}
