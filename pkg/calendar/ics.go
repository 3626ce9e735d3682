package calendar

import (
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"
)

const productID = "-//BillaBee//Conversation Client//EN"

// WriteICS serializes events as a VCALENDAR so a batch can be imported by
// hand when the backend is unreachable.
func WriteICS(w io.Writer, events []Event, now time.Time) error {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for _, e := range events {
		start, err := e.Start.Time(nil)
		if err != nil {
			return fmt.Errorf("calendar: export %q: %w", e.Summary, err)
		}
		end, err := e.End.Time(nil)
		if err != nil {
			return fmt.Errorf("calendar: export %q: %w", e.Summary, err)
		}

		ev := cal.AddEvent(uuid.NewString() + "@billabee")
		ev.SetCreatedTime(now)
		ev.SetDtStampTime(now)
		if e.Start.AllDay() {
			ev.SetAllDayStartAt(start)
			ev.SetAllDayEndAt(end)
		} else {
			ev.SetStartAt(start)
			ev.SetEndAt(end)
		}
		ev.SetSummary(e.Summary)
		if e.Description != "" {
			ev.SetDescription(e.Description)
		}
		if e.Location != "" {
			ev.SetLocation(e.Location)
		}
		if line := e.rruleLine(); line != "" {
			ev.AddRrule(line)
		}
		if e.Theme != "" {
			ev.AddProperty(ical.ComponentPropertyCategories, e.Theme)
		}
	}

	_, err := io.WriteString(w, cal.Serialize())
	return err
}

// ICSFileName suggests a file name for an exported batch.
func ICSFileName(events []Event, now time.Time) string {
	name := "billabee-events"
	if len(events) == 1 {
		slug := strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
				return r
			case r >= 'A' && r <= 'Z':
				return r + ('a' - 'A')
			default:
				return '-'
			}
		}, strings.TrimSpace(events[0].Summary))
		slug = strings.Trim(slug, "-")
		if slug != "" {
			name = slug
		}
	}
	return fmt.Sprintf("%s-%s.ics", name, now.Format("20060102-150405"))
}
