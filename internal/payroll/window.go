package payroll

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

type WindowKind int

const (
	WindowDay WindowKind = iota + 1
	WindowMonth
)

// Window is the calendar day or month a report is aggregated over.
type Window struct {
	Kind  WindowKind
	Start time.Time
}

var embeddedDate = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// ParseWindow accepts YYYY-MM-DD for a day or YYYY-MM for a month.
func ParseWindow(raw string) (Window, error) {
	trimmed := strings.TrimSpace(raw)
	if day, err := time.Parse(dayLayout, trimmed); err == nil {
		return Window{Kind: WindowDay, Start: day.UTC()}, nil
	}
	if month, err := time.Parse(monthLayout, trimmed); err == nil {
		return Window{Kind: WindowMonth, Start: month.UTC()}, nil
	}
	return Window{}, fmt.Errorf("invalid window %q: expected YYYY-MM-DD or YYYY-MM", raw)
}

func DayWindow(t time.Time) Window {
	t = t.UTC()
	return Window{Kind: WindowDay, Start: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

func MonthWindow(t time.Time) Window {
	t = t.UTC()
	return Window{Kind: WindowMonth, Start: time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)}
}

func (w Window) IsZero() bool {
	return w.Kind == 0
}

func (w Window) String() string {
	switch w.Kind {
	case WindowDay:
		return w.Start.Format(dayLayout)
	case WindowMonth:
		return w.Start.Format(monthLayout)
	default:
		return ""
	}
}

// Bounds returns the half-open [from, to) interval covered by the window.
func (w Window) Bounds() (time.Time, time.Time) {
	switch w.Kind {
	case WindowDay:
		return w.Start, w.Start.AddDate(0, 0, 1)
	case WindowMonth:
		return w.Start, w.Start.AddDate(0, 1, 0)
	default:
		return time.Time{}, time.Time{}
	}
}

// Days lists every day window inside the window.
func (w Window) Days() []Window {
	from, to := w.Bounds()
	days := make([]Window, 0, 31)
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		days = append(days, Window{Kind: WindowDay, Start: d})
	}
	return days
}

// Contains reports whether a YYYY-MM-DD (or longer, e.g. RFC 3339) date
// string falls inside the window. Unparsable dates never match.
func (w Window) Contains(date string) bool {
	day, ok := parseRecordDay(date)
	if !ok {
		return false
	}
	from, to := w.Bounds()
	return !day.Before(from) && day.Before(to)
}

// RecordDate picks the date a record is filtered by: its own date field if
// set, else the first YYYY-MM-DD found in its identifier.
func RecordDate(date string, id string) string {
	if strings.TrimSpace(date) != "" {
		return strings.TrimSpace(date)
	}
	return embeddedDate.FindString(id)
}

func parseRecordDay(date string) (time.Time, bool) {
	trimmed := strings.TrimSpace(date)
	if len(trimmed) < len(dayLayout) {
		return time.Time{}, false
	}
	day, err := time.Parse(dayLayout, trimmed[:len(dayLayout)])
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}
