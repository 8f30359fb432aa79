package domain

import (
	"fmt"
	"strings"
	"time"
)

// Repeat is a reminder's recurrence policy. Numeric values are persisted.
type Repeat int

const (
	RepeatNever Repeat = iota

	RepeatEveryHour
	RepeatEveryDay
	RepeatEveryWeek
	RepeatEveryMonth
	RepeatEveryYear

	RepeatEveryOtherHour
	RepeatEveryOtherDay
	RepeatEveryOtherWeek
	RepeatEveryOtherMonth
	RepeatEveryOtherYear

	RepeatEveryHalfHour
	RepeatEveryHalfDay
	RepeatEveryHalfMonth
	RepeatEveryHalfYear
)

// Unit is the calendar unit a recurring policy steps by.
type Unit int

const (
	UnitNone Unit = iota
	UnitHour
	UnitDay
	UnitWeek
	UnitMonth
	UnitYear
)

func (u Unit) String() string {
	switch u {
	case UnitHour:
		return "hour"
	case UnitDay:
		return "day"
	case UnitWeek:
		return "week"
	case UnitMonth:
		return "month"
	case UnitYear:
		return "year"
	}
	return "none"
}

// Step is how far one period reaches relative to the unit.
type Step int

const (
	StepOne Step = iota
	StepDouble
	StepHalf
)

// Rule splits the policy into its unit and step.
func (r Repeat) Rule() (Unit, Step) {
	switch {
	case r >= RepeatEveryHour && r <= RepeatEveryYear:
		return Unit(r - RepeatEveryHour + 1), StepOne
	case r >= RepeatEveryOtherHour && r <= RepeatEveryOtherYear:
		return Unit(r - RepeatEveryOtherHour + 1), StepDouble
	case r == RepeatEveryHalfHour:
		return UnitHour, StepHalf
	case r == RepeatEveryHalfDay:
		return UnitDay, StepHalf
	case r == RepeatEveryHalfMonth:
		return UnitMonth, StepHalf
	case r == RepeatEveryHalfYear:
		return UnitYear, StepHalf
	}
	return UnitNone, StepOne
}

func (r Repeat) Valid() bool {
	return r >= RepeatNever && r <= RepeatEveryHalfYear
}

func (r Repeat) Recurring() bool {
	unit, _ := r.Rule()
	return unit != UnitNone
}

func (r Repeat) String() string {
	unit, step := r.Rule()
	switch {
	case unit == UnitNone:
		return "never"
	case step == StepDouble:
		return "every other " + unit.String()
	case step == StepHalf:
		return "every half " + unit.String()
	}
	return "every " + unit.String()
}

// ParseRepeat accepts the String form, e.g. "never", "every day",
// "every other week", "every half month".
func ParseRepeat(s string) (Repeat, error) {
	norm := strings.Join(strings.Fields(strings.ToLower(s)), " ")
	if norm == "" {
		return RepeatNever, nil
	}
	for r := RepeatNever; r <= RepeatEveryHalfYear; r++ {
		if r.String() == norm {
			return r, nil
		}
	}
	return RepeatNever, fmt.Errorf("unknown repeat policy %q", s)
}

// Next advances prev by one period. Hours are elapsed time; days, weeks,
// months and years are calendar units applied in loc, so a reminder keeps
// its wall-clock time across DST changes and months of different length.
// Non-recurring policies return prev unchanged.
func (r Repeat) Next(prev time.Time, loc *time.Location) time.Time {
	unit, step := r.Rule()
	if unit == UnitNone {
		return prev
	}
	if loc == nil {
		loc = time.UTC
	}
	t := prev.In(loc)

	var next time.Time
	switch step {
	case StepOne:
		next = addUnits(t, unit, 1)
	case StepDouble:
		next = addUnits(t, unit, 2)
	case StepHalf:
		switch unit {
		case UnitHour:
			next = t.Add(30 * time.Minute)
		case UnitYear:
			next = addMonths(t, 6)
		default:
			// midpoint of the calendar period starting at t
			full := addUnits(t, unit, 1)
			next = t.Add(full.Sub(t) / 2)
		}
	}
	return next.UTC()
}

func addUnits(t time.Time, unit Unit, n int) time.Time {
	switch unit {
	case UnitHour:
		return t.Add(time.Duration(n) * time.Hour)
	case UnitDay:
		return t.AddDate(0, 0, n)
	case UnitWeek:
		return t.AddDate(0, 0, 7*n)
	case UnitMonth:
		return addMonths(t, n)
	case UnitYear:
		return addMonths(t, 12*n)
	}
	return t
}

// addMonths adds calendar months, clamping the day to the target month's
// length instead of overflowing into the next month.
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	target := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(target.Year(), target.Month()); d > last {
		d = last
	}
	return time.Date(target.Year(), target.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
