// Package period содержит календарные вычисления в часовом поясе пользователя:
// границы месяца для подсчёта транзакций и сравнение календарных дней для уведомлений.
package period

import (
	"time"
	// Встроенная база часовых поясов: контейнеры без tzdata тоже знают Africa/Luanda.
	_ "time/tzdata"
)

// DefaultTimezone — часовой пояс пользователя по умолчанию.
const DefaultTimezone = "Africa/Luanda"

// MonthBounds возвращает полуинтервал [start, end) календарного месяца,
// содержащего t, в часовом поясе loc. Результат возвращается в UTC.
func MonthBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 1, 0)
	return start.UTC(), end.UTC()
}

// SameDay сообщает, приходятся ли a и b на один календарный день в поясе loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// Location загружает часовой пояс по имени IANA.
// Пустое или неизвестное имя даёт fallback, а при его отсутствии UTC.
func Location(name string, fallback *time.Location) *time.Location {
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	if fallback != nil {
		return fallback
	}
	return time.UTC
}
