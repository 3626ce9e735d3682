package conversation

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sipeed/billabee/pkg/calendar"
)

// Batch is the set of candidate events produced by one assistant turn,
// together with the user's per-event selection and theme choice.
type Batch struct {
	ID     string
	Events []calendar.Event

	selected []bool
	themes   []string
}

// NewBatch starts every candidate selected with the Auto theme.
func NewBatch(events []calendar.Event) *Batch {
	b := &Batch{
		ID:       uuid.NewString(),
		Events:   append([]calendar.Event(nil), events...),
		selected: make([]bool, len(events)),
		themes:   make([]string, len(events)),
	}
	for i := range b.selected {
		b.selected[i] = true
		b.themes[i] = calendar.AutoTheme
	}
	return b
}

func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Events)
}

func (b *Batch) check(i int) error {
	if i < 0 || i >= b.Len() {
		return fmt.Errorf("conversation: no event #%d (have %d)", i+1, b.Len())
	}
	return nil
}

// Toggle flips the selection of candidate i and returns the new state.
func (b *Batch) Toggle(i int) (bool, error) {
	if err := b.check(i); err != nil {
		return false, err
	}
	b.selected[i] = !b.selected[i]
	return b.selected[i], nil
}

func (b *Batch) Select(i int, on bool) error {
	if err := b.check(i); err != nil {
		return err
	}
	b.selected[i] = on
	return nil
}

func (b *Batch) IsSelected(i int) bool {
	return b.check(i) == nil && b.selected[i]
}

// SetTheme records the theme for candidate i. An empty theme means Auto.
func (b *Batch) SetTheme(i int, theme string) error {
	if err := b.check(i); err != nil {
		return err
	}
	theme = strings.TrimSpace(theme)
	if theme == "" {
		theme = calendar.AutoTheme
	}
	b.themes[i] = theme
	return nil
}

func (b *Batch) Theme(i int) string {
	if b.check(i) != nil {
		return ""
	}
	return b.themes[i]
}

// Selected returns the checked candidates, in order, with their theme
// choice applied.
func (b *Batch) Selected() []calendar.Event {
	if b == nil {
		return nil
	}
	var out []calendar.Event
	for i, e := range b.Events {
		if b.selected[i] {
			out = append(out, e.WithTheme(b.themes[i]))
		}
	}
	return out
}

// Card is the display model of one candidate.
type Card struct {
	Index      int    `json:"index"`
	Summary    string `json:"summary"`
	Start      string `json:"start"`
	End        string `json:"end"`
	Location   string `json:"location,omitempty"`
	Selected   bool   `json:"selected"`
	Theme      string `json:"theme"`
	Recurrence string `json:"recurrence,omitempty"`
	Warning    string `json:"warning,omitempty"`
}

// Panel is everything shown in the candidate area. The zero Panel clears it.
type Panel struct {
	Cards   []Card   `json:"cards"`
	Themes  []string `json:"themes,omitempty"`
	Confirm bool     `json:"confirm"`
}

// Panel regenerates the candidate area from the batch: one card per event
// and a confirm control only when there is at least one card.
func (b *Batch) Panel(themes []string) Panel {
	if b.Len() == 0 {
		return Panel{}
	}
	cards := make([]Card, len(b.Events))
	for i, e := range b.Events {
		card := Card{
			Index:      i + 1,
			Summary:    e.Summary,
			Start:      e.Start.Display(),
			End:        e.End.Display(),
			Location:   e.Location,
			Selected:   b.IsSelected(i),
			Theme:      b.themes[i],
			Recurrence: e.RecurrenceSummary(2),
		}
		if err := e.Validate(); err != nil {
			card.Warning = strings.TrimPrefix(err.Error(), "calendar: ")
		}
		cards[i] = card
	}
	return Panel{
		Cards:   cards,
		Themes:  append([]string(nil), themes...),
		Confirm: true,
	}
}
