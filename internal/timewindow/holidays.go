package timewindow

import "time"

// Holiday is a nationwide public holiday on a calendar date
type Holiday struct {
	Date time.Time
	Name string
}

// EasterSunday returns Easter Sunday of year in the Gregorian calendar
// (anonymous Gregorian algorithm). The result is midnight UTC.
func EasterSunday(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// Holidays lists the nationwide German public holidays of year in date order.
// Regional holidays are not included.
func Holidays(year int) []Holiday {
	easter := EasterSunday(year)
	fixed := func(m time.Month, d int) time.Time {
		return time.Date(year, m, d, 0, 0, 0, 0, time.UTC)
	}

	return []Holiday{
		{fixed(time.January, 1), "Neujahr"},
		{easter.AddDate(0, 0, -2), "Karfreitag"},
		{easter, "Ostersonntag"},
		{easter.AddDate(0, 0, 1), "Ostermontag"},
		{fixed(time.May, 1), "Tag der Arbeit"},
		{easter.AddDate(0, 0, 39), "Christi Himmelfahrt"},
		{easter.AddDate(0, 0, 49), "Pfingstsonntag"},
		{easter.AddDate(0, 0, 50), "Pfingstmontag"},
		{fixed(time.October, 3), "Tag der Deutschen Einheit"},
		{fixed(time.December, 25), "1. Weihnachtstag"},
		{fixed(time.December, 26), "2. Weihnachtstag"},
	}
}

// IsPublicHoliday reports whether the calendar date of t, read in t's own
// location, is a nationwide public holiday.
func IsPublicHoliday(t time.Time) bool {
	y, m, d := t.Date()
	for _, h := range Holidays(y) {
		hy, hm, hd := h.Date.Date()
		if hy == y && hm == m && hd == d {
			return true
		}
	}
	return false
}

// IsWeekendOrHoliday reports whether t falls on Saturday, Sunday or a public holiday.
func IsWeekendOrHoliday(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return true
	}
	return IsPublicHoliday(t)
}
