package tracker

import "fmt"

// WeekOf returns the ISO-8601 week number of d and the week-numbering year it belongs to.
// The date is shifted to the Thursday of its week (weeks run Monday..Sunday) and the week
// number is ceil((days since Jan 1 of the Thursday's year + 1) / 7). The year is the year
// of that Thursday, so Dec 30, 2024 is week 1 of 2025 and Jan 1, 2021 is week 53 of 2020.
func WeekOf(d Date) (week, year int) {
	thursday := d.AddDays(4 - isoWeekday(d))
	jan1 := NewDate(thursday.Year(), 1, 1)
	days := int(thursday.Time().Sub(jan1.Time()).Hours() / 24)
	return (days + 7) / 7, thursday.Year()
}

// WeeksInYear returns the number of ISO weeks in year, 52 or 53. Dec 28 is always in the last week.
func WeeksInYear(year int) int {
	week, _ := WeekOf(NewDate(year, 12, 28))
	return week
}

// WeekRange is the Monday..Sunday span of a week, both days inclusive
type WeekRange struct {
	Start Date
	End   Date
}

// RangeOf returns the dates of ISO week `week` of `year`. Week 1 starts on the Monday
// on or before January 4th.
func RangeOf(week, year int) WeekRange {
	jan4 := NewDate(year, 1, 4)
	monday := jan4.AddDays(1 - isoWeekday(jan4) + (week-1)*7)
	return WeekRange{Start: monday, End: monday.AddDays(6)}
}

// Contains reports whether d falls into the range
func (r WeekRange) Contains(d Date) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// String formats the range as day/month pairs, i.e. "08.01. - 14.01."
func (r WeekRange) String() string {
	return r.Start.Format("02.01.") + " - " + r.End.Format("02.01.")
}

// Cursor is the (week, year) pair selected for display
type Cursor struct {
	Week int `json:"week"`
	Year int `json:"year"`
}

// CursorOf returns the cursor of the ISO week containing d
func CursorOf(d Date) Cursor {
	week, year := WeekOf(d)
	return Cursor{Week: week, Year: year}
}

// Valid reports whether the week exists in the cursor's year
func (c Cursor) Valid() bool {
	return c.Week >= 1 && c.Week <= WeeksInYear(c.Year)
}

// Next steps one week forward. Past the last week of the year (52 or 53) it moves to week 1 of the next year.
func (c Cursor) Next() Cursor {
	if c.Week >= WeeksInYear(c.Year) {
		return Cursor{Week: 1, Year: c.Year + 1}
	}
	return Cursor{Week: c.Week + 1, Year: c.Year}
}

// Prev steps one week back. Below week 1 it moves to the last week of the previous year.
func (c Cursor) Prev() Cursor {
	if c.Week <= 1 {
		return Cursor{Week: WeeksInYear(c.Year - 1), Year: c.Year - 1}
	}
	if last := WeeksInYear(c.Year); c.Week > last {
		return Cursor{Week: last, Year: c.Year}
	}
	return Cursor{Week: c.Week - 1, Year: c.Year}
}

// Range returns the dates of the cursor's week
func (c Cursor) Range() WeekRange {
	return RangeOf(c.Week, c.Year)
}

// Contains reports whether d belongs to the cursor's ISO week
func (c Cursor) Contains(d Date) bool {
	return CursorOf(d) == c
}

// String returns the calendar week label, i.e. "KW 2, 2024"
func (c Cursor) String() string {
	return fmt.Sprintf("KW %d, %d", c.Week, c.Year)
}
