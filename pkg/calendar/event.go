package calendar

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// AutoTheme leaves theme inference to the backend.
const AutoTheme = "Auto"

// DateTime mirrors the Google Calendar EventDateTime resource. The legacy
// chat endpoint sends bare ISO strings instead, so both forms decode.
type DateTime struct {
	Date     string `json:"date,omitempty"`
	DateTime string `json:"dateTime,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

func (d *DateTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*d = DateTime{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if isDateOnly(s) {
			*d = DateTime{Date: s}
		} else {
			*d = DateTime{DateTime: s}
		}
		return nil
	}
	type plain DateTime
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("calendar: date-time: %w", err)
	}
	*d = DateTime(p)
	return nil
}

func (d DateTime) IsZero() bool {
	return d.Date == "" && d.DateTime == ""
}

func (d DateTime) AllDay() bool {
	return d.DateTime == "" && d.Date != ""
}

// Raw returns the value exactly as the backend sent it.
func (d DateTime) Raw() string {
	if d.DateTime != "" {
		return d.DateTime
	}
	return d.Date
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Time parses the value. Naive date-times are placed in TimeZone when it
// names a known location, else in loc.
func (d DateTime) Time(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	if d.TimeZone != "" {
		if tz, err := time.LoadLocation(d.TimeZone); err == nil {
			loc = tz
		}
	}
	if d.DateTime != "" {
		for _, layout := range dateTimeLayouts {
			if t, err := time.ParseInLocation(layout, d.DateTime, loc); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("calendar: unrecognized date-time %q", d.DateTime)
	}
	if d.Date != "" {
		t, err := time.ParseInLocation("2006-01-02", d.Date, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("calendar: unrecognized date %q", d.Date)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("calendar: empty date-time")
}

// Display formats the value for a selection card, falling back to the raw
// backend string when it cannot be parsed.
func (d DateTime) Display() string {
	t, err := d.Time(nil)
	if err != nil {
		return d.Raw()
	}
	if d.AllDay() {
		return t.Format("Mon Jan 2, 2006")
	}
	return t.Format("Mon Jan 2, 2006 15:04")
}

func isDateOnly(s string) bool {
	if len(s) != len("2006-01-02") {
		return false
	}
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

type Reminders struct {
	UseDefault bool               `json:"useDefault"`
	Overrides  []ReminderOverride `json:"overrides,omitempty"`
}

type ReminderOverride struct {
	Method  string `json:"method,omitempty"`
	Minutes int    `json:"minutes,omitempty"`
}

// Event is a candidate calendar event proposed by the assistant.
type Event struct {
	Summary     string     `json:"summary"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	Start       DateTime   `json:"start"`
	End         DateTime   `json:"end"`
	Timezone    string     `json:"timezone,omitempty"`
	Recurrence  []string   `json:"recurrence,omitempty"`
	Reminders   *Reminders `json:"reminders,omitempty"`
	ColorID     string     `json:"colorId,omitempty"`
	Theme       string     `json:"theme,omitempty"`
}

// WithTheme returns a copy carrying the chosen theme. AutoTheme and the
// empty string clear any override.
func (e Event) WithTheme(theme string) Event {
	theme = strings.TrimSpace(theme)
	if theme == "" || strings.EqualFold(theme, AutoTheme) {
		e.Theme = ""
		return e
	}
	e.Theme = theme
	return e
}

// Validate reports the problems the calendar backend would reject.
func (e Event) Validate() error {
	if strings.TrimSpace(e.Summary) == "" {
		return fmt.Errorf("calendar: event has no summary")
	}
	if e.Start.IsZero() || e.End.IsZero() {
		return fmt.Errorf("calendar: %q: start and end are required", e.Summary)
	}
	start, err := e.Start.Time(nil)
	if err != nil {
		return fmt.Errorf("calendar: %q: %w", e.Summary, err)
	}
	end, err := e.End.Time(nil)
	if err != nil {
		return fmt.Errorf("calendar: %q: %w", e.Summary, err)
	}
	if !end.After(start) {
		return fmt.Errorf("calendar: %q: end time must be after the start time", e.Summary)
	}
	return nil
}

// Instruction phrases the event as a chat request that re-embeds its exact
// fields, so the backend's tool-calling path performs the creation.
func (e Event) Instruction() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Please create this calendar event exactly as specified: summary %q, start %q, end %q",
		e.Summary, e.Start.Raw(), e.End.Raw())
	if tz := e.timeZone(); tz != "" {
		fmt.Fprintf(&b, ", time zone %q", tz)
	}
	if e.Description != "" {
		fmt.Fprintf(&b, ", description %q", e.Description)
	}
	if e.Location != "" {
		fmt.Fprintf(&b, ", location %q", e.Location)
	}
	if len(e.Recurrence) > 0 {
		fmt.Fprintf(&b, ", recurrence %q", strings.Join(e.Recurrence, "; "))
	}
	if e.Theme != "" {
		fmt.Fprintf(&b, ", theme %q", e.Theme)
	}
	b.WriteString(".")
	return b.String()
}

func (e Event) timeZone() string {
	if e.Start.TimeZone != "" {
		return e.Start.TimeZone
	}
	return e.Timezone
}
