package model

import "time"

// DateLayout is the ISO-8601 calendar date layout used on the wire.
const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Date builds a UTC civil date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a UTC civil date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return Day(t), nil
}

// DaysIn returns the number of days in month for year.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Anniversary returns the occurrence of month/day in year. Days past the end of
// the month are clamped, so 29 Feb becomes 28 Feb in non-leap years.
func Anniversary(year int, month time.Month, day int) time.Time {
	if n := DaysIn(year, month); day > n {
		day = n
	}
	if day < 1 {
		day = 1
	}
	return Date(year, month, day)
}

// NextAnniversary returns the first occurrence of anchor's month/day that is
// not before from.
func NextAnniversary(anchor, from time.Time) time.Time {
	from = Day(from)
	occ := Anniversary(from.Year(), anchor.Month(), anchor.Day())
	if occ.Before(from) {
		occ = Anniversary(from.Year()+1, anchor.Month(), anchor.Day())
	}
	return occ
}

// NextLeadDate returns the next occurrence of anchor's month/day that is not
// before from, and the date leadDays ahead of it. The lead date may fall
// before from; callers drop it rather than moving to a later occurrence.
func NextLeadDate(anchor, from time.Time, leadDays int) (lead, occurrence time.Time) {
	occurrence = NextAnniversary(anchor, from)
	return AddDays(occurrence, -leadDays), occurrence
}

// AddDays shifts a civil date by n days.
func AddDays(t time.Time, n int) time.Time {
	return Day(t).AddDate(0, 0, n)
}

// DaysBetween returns the absolute number of days separating a and b.
func DaysBetween(a, b time.Time) int {
	d := Day(a).Sub(Day(b))
	if d < 0 {
		d = -d
	}
	return int(d / (24 * time.Hour))
}

// Between reports whether d lies in [start, end], both ends inclusive.
func Between(d, start, end time.Time) bool {
	d = Day(d)
	return !d.Before(Day(start)) && !d.After(Day(end))
}
