package tracker

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar date without time of day. It is anchored at UTC midnight,
// so date math never drifts with the local timezone or DST.
type Date struct {
	t time.Time
}

// NewDate makes a Date from year, month and day, normalizing overflows the way time.Date does
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf drops the time of day of ts, keeping the calendar date as seen in ts location
func DateOf(ts time.Time) Date {
	y, m, d := ts.Date()
	return NewDate(y, m, d)
}

// ParseDate parses "YYYY-MM-DD". Full RFC3339 timestamps are accepted as well and cut to their date.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(dateLayout, s, time.UTC); err == nil {
		return Date{t: t}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DateOf(t), nil
	}
	return Date{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
}

// Time returns the date as UTC midnight
func (d Date) Time() time.Time { return d.t }

// IsZero reports whether the date is unset
func (d Date) IsZero() bool { return d.t.IsZero() }

// Year returns the calendar year
func (d Date) Year() int { return d.t.Year() }

// Weekday returns the day of week
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }

// AddDays returns the date n days later (or earlier for negative n)
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// Compare returns -1, 0 or +1 like time.Time.Compare
func (d Date) Compare(o Date) int { return d.t.Compare(o.t) }

// Before reports whether d is before o
func (d Date) Before(o Date) bool { return d.t.Before(o.t) }

// After reports whether d is after o
func (d Date) After(o Date) bool { return d.t.After(o.t) }

// Format formats the date with time layout
func (d Date) Format(layout string) string { return d.t.Format(layout) }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(dateLayout)
}

// MarshalText implements encoding.TextMarshaler, used by both json and yaml
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, empty text resets to zero date
func (d *Date) UnmarshalText(text []byte) error {
	if len(strings.TrimSpace(string(text))) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// isoWeekday numbers days Monday=1..Sunday=7
func isoWeekday(d Date) int {
	wd := int(d.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}
