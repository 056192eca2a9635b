package history

import (
	"fmt"
	"time"
)

// Lookback is the caller-chosen horizon bounding which historical
// (non-active) records are admitted into the patient context.
type Lookback string

const (
	Lookback3Months Lookback = "Last 3 months"
	LookbackYear    Lookback = "Last year"
	Lookback2Years  Lookback = "Last 2 years"
	LookbackAll     Lookback = "All history"
)

// Months resolves the lookback to a concrete month count. The second
// return is false for LookbackAll (and anything unrecognized), meaning
// no cutoff applies.
func (l Lookback) Months() (int, bool) {
	switch l {
	case Lookback3Months:
		return 3, true
	case LookbackYear:
		return 12, true
	case Lookback2Years:
		return 24, true
	default:
		return 0, false
	}
}

// ParseLookback maps the caller-facing range labels onto the enum.
func ParseLookback(s string) (Lookback, error) {
	switch Lookback(s) {
	case Lookback3Months, LookbackYear, Lookback2Years, LookbackAll:
		return Lookback(s), nil
	case "":
		return LookbackAll, nil
	default:
		return "", fmt.Errorf("unknown lookback range %q", s)
	}
}

// window is a lookback resolved against a concrete "now".
type window struct {
	cutoff  time.Time
	months  int
	bounded bool
}

func resolveWindow(l Lookback, now time.Time) window {
	months, ok := l.Months()
	if !ok {
		return window{}
	}
	return window{
		cutoff:  now.AddDate(0, -months, 0),
		months:  months,
		bounded: true,
	}
}

type class int

const (
	classActive class = iota
	classHistorical
	classExcluded
)

// classify applies the shared admission policy: active records are kept
// regardless of date; non-active records are admitted only when the
// window is unbounded or their relevant date is on or after the cutoff.
// A missing date excludes the record whenever a cutoff is in force.
func (w window) classify(active bool, date time.Time) class {
	if active {
		return classActive
	}
	if !w.bounded {
		return classHistorical
	}
	if date.IsZero() {
		return classExcluded
	}
	if date.Before(w.cutoff) {
		return classExcluded
	}
	return classHistorical
}

// admitsDate is the report variant of the policy: reports carry no
// active/historical status, they split purely on date. Dateless reports
// count as recent, matching the unbounded branch.
func (w window) admitsDate(date time.Time) bool {
	if !w.bounded || date.IsZero() {
		return true
	}
	return !date.Before(w.cutoff)
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseDate turns a FHIR dateTime string into a comparable instant.
// Partial dates (year or year-month precision) and anything else that
// fails to parse are treated as missing, never compared lexically.
func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
