// Package clock абстрагирует время, чтобы фоновые задачи и политики доступа
// можно было тестировать без реального ожидания.
package clock

import "time"

// Clock источник текущего времени и таймеров.
type Clock interface {
	// Now возвращает текущее время.
	Now() time.Time
	// After возвращает канал, в который придет время по истечении d.
	// При d <= 0 канал срабатывает сразу.
	After(d time.Duration) <-chan time.Time
}

// Real возвращает Clock поверх пакета time.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
