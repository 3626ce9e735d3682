package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// Recurring reports whether the event carries an RRULE line.
func (e Event) Recurring() bool {
	return e.rruleLine() != ""
}

func (e Event) rruleLine() string {
	for _, line := range e.Recurrence {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToUpper(line), "RRULE:") {
			return line[len("RRULE:"):]
		}
	}
	return ""
}

// NextOccurrences expands the event's RRULE from its start and returns up to
// n occurrence start times. Events without recurrence yield their start.
func (e Event) NextOccurrences(n int) ([]time.Time, error) {
	if n <= 0 {
		return nil, nil
	}
	start, err := e.Start.Time(nil)
	if err != nil {
		return nil, err
	}
	line := e.rruleLine()
	if line == "" {
		return []time.Time{start}, nil
	}

	r, err := rrule.StrToRRule(line)
	if err != nil {
		return nil, fmt.Errorf("calendar: %q: recurrence: %w", e.Summary, err)
	}
	r.DTStart(start)

	out := make([]time.Time, 0, n)
	next := r.After(start, true)
	for !next.IsZero() && len(out) < n {
		out = append(out, next)
		next = r.After(next, false)
	}
	return out, nil
}

// RecurrenceSummary is a one-line preview for selection cards, e.g.
// "repeats: Tue Jan 9 12:00, Tue Jan 16 12:00, ...". Empty when the event
// does not recur or its rule cannot be parsed.
func (e Event) RecurrenceSummary(n int) string {
	if !e.Recurring() {
		return ""
	}
	times, err := e.NextOccurrences(n + 1)
	if err != nil || len(times) < 2 {
		return ""
	}
	parts := make([]string, 0, len(times)-1)
	for _, t := range times[1:] {
		if e.Start.AllDay() {
			parts = append(parts, t.Format("Mon Jan 2"))
		} else {
			parts = append(parts, t.Format("Mon Jan 2 15:04"))
		}
	}
	return "repeats: " + strings.Join(parts, ", ") + ", ..."
}
