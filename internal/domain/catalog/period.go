package catalog

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/target/hrm-scheduler/internal/errors"
)

// DateLayout is the wire format of the date parameter.
const DateLayout = "2006-01-02"

const minYear = 2000

// Params carries the optional period parameters of one invocation.
type Params struct {
	Date     string `json:"date,omitempty"`
	Month    int    `json:"month,omitempty"`
	Year     int    `json:"year,omitempty"`
	TargetID string `json:"targetId,omitempty"`
}

// HasPeriod reports whether any period parameter is set.
func (p Params) HasPeriod() bool {
	return strings.TrimSpace(p.Date) != "" || p.Month != 0 || p.Year != 0
}

// Window is a half-open [From, To) range of instants.
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// Validate checks that the parameters required by kind are present and well formed, and that
// the period does not lie after the current date in loc.
func (p Params) Validate(kind ParamKind, now time.Time, loc *time.Location) error {
	for _, f := range kind.Fields() {
		if !p.has(f) {
			return apperrors.ParametersInvalid(f, fmt.Sprintf("%s is required for this job", f))
		}
	}
	if err := p.validateShape(); err != nil {
		return err
	}
	return p.validateNotFuture(now.In(loc), loc)
}

func (p Params) has(field string) bool {
	switch field {
	case "date":
		return strings.TrimSpace(p.Date) != ""
	case "month":
		return p.Month != 0
	case "year":
		return p.Year != 0
	}
	return false
}

func (p Params) validateShape() error {
	if d := strings.TrimSpace(p.Date); d != "" {
		if _, err := time.Parse(DateLayout, d); err != nil {
			return apperrors.ParametersInvalid("date", "date must be formatted as YYYY-MM-DD")
		}
	}
	if p.Month != 0 {
		if p.Month < 1 || p.Month > 12 {
			return apperrors.ParametersInvalid("month", "month must be between 1 and 12")
		}
		if p.Year == 0 {
			return apperrors.ParametersInvalid("year", "year is required when month is set")
		}
	}
	if p.Year != 0 && p.Year < minYear {
		return apperrors.ParametersInvalid("year", "year must be "+strconv.Itoa(minYear)+" or later")
	}
	return nil
}

func (p Params) validateNotFuture(today time.Time, loc *time.Location) error {
	if d := strings.TrimSpace(p.Date); d != "" {
		day, _ := time.ParseInLocation(DateLayout, d, loc)
		if day.After(startOfDay(today)) {
			return apperrors.FutureDateNotAllowedf("date %s is after the current date %s", d, today.Format(DateLayout))
		}
	}
	if p.Month != 0 {
		if p.Year > today.Year() || (p.Year == today.Year() && time.Month(p.Month) > today.Month()) {
			return apperrors.FutureDateNotAllowedf("period %04d-%02d is after the current month", p.Year, p.Month)
		}
	} else if p.Year > today.Year() {
		return apperrors.FutureDateNotAllowedf("year %d is after the current year", p.Year)
	}
	return nil
}

// Window returns the period implied by the parameters, evaluated in loc:
// a date is that calendar day, month+year the whole month, a bare year the anchor day January 1st,
// and no period at all means the current day.
// Params are expected to have passed Validate.
func (p Params) Window(loc *time.Location, now time.Time) Window {
	if d := strings.TrimSpace(p.Date); d != "" {
		if day, err := time.ParseInLocation(DateLayout, d, loc); err == nil {
			return Window{From: day, To: day.AddDate(0, 0, 1)}
		}
	}
	if p.Month != 0 && p.Year != 0 {
		from := time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, loc)
		return Window{From: from, To: from.AddDate(0, 1, 0)}
	}
	if p.Year != 0 {
		from := time.Date(p.Year, time.January, 1, 0, 0, 0, 0, loc)
		return Window{From: from, To: from.AddDate(0, 0, 1)}
	}
	from := startOfDay(now.In(loc))
	return Window{From: from, To: from.AddDate(0, 0, 1)}
}

// PeriodKey identifies the target period independently of when a run started.
// It is empty when no period parameter is set.
func (p Params) PeriodKey() string {
	switch {
	case strings.TrimSpace(p.Date) != "":
		return strings.TrimSpace(p.Date)
	case p.Month != 0 && p.Year != 0:
		return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
	case p.Year != 0:
		return strconv.Itoa(p.Year)
	}
	return ""
}

// GuardKey derives the concurrency key for name from every supplied period parameter.
func (p Params) GuardKey(name JobName) string {
	var b strings.Builder
	b.WriteString(string(name))
	if d := strings.TrimSpace(p.Date); d != "" {
		b.WriteString(":date=")
		b.WriteString(d)
	}
	if p.Month != 0 {
		b.WriteString(":month=")
		b.WriteString(strconv.Itoa(p.Month))
	}
	if p.Year != 0 {
		b.WriteString(":year=")
		b.WriteString(strconv.Itoa(p.Year))
	}
	return b.String()
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// PeriodRule derives the parameters of a group member from the time the group fires.
type PeriodRule string

const (
	PeriodNone          PeriodRule = ""
	PeriodToday         PeriodRule = "today"
	PeriodYesterday     PeriodRule = "yesterday"
	PeriodPreviousMonth PeriodRule = "previous_month"
	PeriodPreviousYear  PeriodRule = "previous_year"
)

// Resolve returns the parameters for a run firing at now in loc.
func (r PeriodRule) Resolve(now time.Time, loc *time.Location) Params {
	today := startOfDay(now.In(loc))
	switch r {
	case PeriodToday:
		return Params{Date: today.Format(DateLayout)}
	case PeriodYesterday:
		return Params{Date: today.AddDate(0, 0, -1).Format(DateLayout)}
	case PeriodPreviousMonth:
		prev := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, -1, 0)
		return Params{Month: int(prev.Month()), Year: prev.Year()}
	case PeriodPreviousYear:
		return Params{Year: today.Year() - 1}
	case PeriodNone:
		return Params{}
	}
	return Params{}
}

// CalendarGuard restricts a group to specific calendar days.
type CalendarGuard string

const (
	GuardNone         CalendarGuard = ""
	GuardFirstOfMonth CalendarGuard = "first_of_month"
	GuardFirstOfYear  CalendarGuard = "first_of_year"
)

// Allows reports whether the guard permits a run at now in loc, with a reason when it does not.
func (g CalendarGuard) Allows(now time.Time, loc *time.Location) (bool, string) {
	t := now.In(loc)
	switch g {
	case GuardFirstOfMonth:
		if t.Day() != 1 {
			return false, "runs only on the first day of the month"
		}
	case GuardFirstOfYear:
		if t.Day() != 1 || t.Month() != time.January {
			return false, "runs only on January 1st"
		}
	case GuardNone:
	}
	return true, ""
}
