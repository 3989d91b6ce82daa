package domain

import (
	"fmt"
	"time"
)

// DateTimeLayout is the wire format for timezone-naive local datetimes.
const DateTimeLayout = "2006-01-02T15:04"

var dateTimeLayouts = []string{
	DateTimeLayout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

// TimeWindow is a half-open interval [Start, End) of local wall-clock time.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewTimeWindow builds a validated window from two instants, dropping any
// zone information so that all windows compare on wall-clock time.
func NewTimeWindow(start, end time.Time) (TimeWindow, error) {
	w := TimeWindow{Start: Naive(start), End: Naive(end)}
	if err := w.Validate(); err != nil {
		return TimeWindow{}, err
	}
	return w, nil
}

// Validate fails with ErrInvalidWindow unless Start < End.
func (w TimeWindow) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidWindow)
	}
	if !w.Start.Before(w.End) {
		return fmt.Errorf("%w: start %s must be before end %s", ErrInvalidWindow,
			w.Start.Format(DateTimeLayout), w.End.Format(DateTimeLayout))
	}
	return nil
}

// Overlaps reports whether the two windows share any instant. Touching
// endpoints do not overlap.
func (w TimeWindow) Overlaps(other TimeWindow) bool {
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

// Overlaps is the free-function form of TimeWindow.Overlaps.
func Overlaps(a, b TimeWindow) bool {
	return a.Overlaps(b)
}

// Duration is the length of the window.
func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

func (w TimeWindow) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(DateTimeLayout), w.End.Format(DateTimeLayout))
}

// Naive keeps the wall clock of t and relabels it as UTC, truncated to the
// microsecond precision of a postgres timestamp column.
func Naive(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC).
		Truncate(time.Microsecond)
}

// ParseDateTime accepts the datetime-local formats produced by browsers and
// the legacy "YYYY-MM-DD HH:MM" form.
func ParseDateTime(value string) (time.Time, error) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse datetime %q", ErrInvalidWindow, value)
}
