package ledger

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Day-granularity calendar date (all ledger dates are day-precise)
// =============================================================================

// Date is a calendar date normalized to UTC midnight. Invoice issue dates,
// due dates and payment dates never carry a time-of-day component, and
// normalizing on construction keeps comparisons and day arithmetic exact.
type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an arbitrary time to its calendar date.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func Today() Date {
	return DateOf(time.Now().UTC())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(other Date) bool        { return d.t.Before(other.t) }
func (d Date) After(other Date) bool         { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool         { return d.t.Equal(other.t) }
func (d Date) BeforeOrEqual(other Date) bool { return d.Before(other) || d.Equal(other) }
func (d Date) AfterOrEqual(other Date) bool  { return d.After(other) || d.Equal(other) }
func (d Date) IsZero() bool                  { return d.t.IsZero() }

// Arithmetic
func (d Date) AddDays(n int) Date   { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) AddMonths(n int) Date { return Date{t: d.t.AddDate(0, n, 0)} }

// Properties
func (d Date) Year() int         { return d.t.Year() }
func (d Date) Month() time.Month { return d.t.Month() }
func (d Date) Day() int          { return d.t.Day() }
func (d Date) Time() time.Time   { return d.t }

func (d Date) String() string { return d.t.Format("2006-01-02") }

// MonthEnd returns the last calendar day of d's month. Setting the day to 28
// and adding 4 days always lands in the following month regardless of month
// length; stepping back by that day-of-month lands on the last day of d's
// month.
func (d Date) MonthEnd() Date {
	next := time.Date(d.Year(), d.Month(), 28, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 4)
	return Date{t: next.AddDate(0, 0, -next.Day())}
}

// NextMonthEnd returns the last calendar day of the month that begins
// immediately after d. This is the issue date of a finance charge accrued
// against a document due on d.
func (d Date) NextMonthEnd() Date {
	return d.MonthEnd().AddDays(1).MonthEnd()
}

// CoveredMonth returns the charge-period key ("YYYY-MM") for a charge issued
// on d. At most one charge per chain may cover a given month.
func (d Date) CoveredMonth() string { return d.t.Format("2006-01") }

// DaysBetween returns the whole-day count to - from. The accrual window
// convention is exactly this difference: end date minus start date.
func DaysBetween(from, to Date) int {
	return int(to.t.Sub(from.t).Hours() / 24)
}
