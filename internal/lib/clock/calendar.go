package clock

import "time"

// Day возвращает полночь календарного дня t в часовом поясе loc.
func Day(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// SameDay сообщает, приходятся ли a и b на один календарный день в loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	return Day(a, loc).Equal(Day(b, loc))
}

// DaysBetween возвращает разницу в календарных днях: Day(to) - Day(from).
// Считается по датам, а не по 24-часовым интервалам, поэтому переходы на
// летнее время не сдвигают результат.
func DaysBetween(from, to time.Time, loc *time.Location) int {
	f := Day(from, loc)
	t := Day(to, loc)
	fu := time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, time.UTC)
	tu := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int(tu.Sub(fu).Hours() / 24)
}

// UntilMidnight возвращает время до следующей полуночи в loc.
func UntilMidnight(t time.Time, loc *time.Location) time.Duration {
	next := Day(t, loc).AddDate(0, 0, 1)
	return next.Sub(t)
}
