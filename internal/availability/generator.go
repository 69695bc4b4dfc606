package availability

import (
	"sort"
	"time"
)

const (
	DefaultMaxDays  = 15
	DefaultScanDays = 30
	DefaultStep     = 30 * time.Minute
)

// Slot is a bookable instant computed from rules. It is never persisted.
type Slot struct {
	Instant  time.Time `json:"instant"`
	Occupied bool      `json:"occupied"`
}

// Generator expands weekly rules into calendar days and slots in the clinic's
// time zone. The zero value is not usable; build one with NewGenerator.
type Generator struct {
	MaxDays  int
	ScanDays int
	Step     time.Duration
	Location *time.Location
}

func NewGenerator(loc *time.Location) Generator {
	if loc == nil {
		loc = time.Local
	}
	return Generator{
		MaxDays:  DefaultMaxDays,
		ScanDays: DefaultScanDays,
		Step:     DefaultStep,
		Location: loc,
	}
}

// Days returns up to MaxDays dates, starting the day after today, whose
// weekday appears in rules. At most ScanDays calendar days are inspected, so
// fewer dates may come back.
func (g Generator) Days(rules []Rule, today time.Time) []time.Time {
	if len(rules) == 0 {
		return nil
	}

	working := make(map[time.Weekday]bool, len(rules))
	for _, r := range rules {
		working[r.DayOfWeek] = true
	}

	day := g.Midnight(today).AddDate(0, 0, 1)
	var days []time.Time
	for i := 0; i < g.ScanDays && len(days) < g.MaxDays; i++ {
		if working[day.Weekday()] {
			days = append(days, day)
		}
		day = day.AddDate(0, 0, 1)
	}
	return days
}

// Slots walks every rule matching the weekday of day from its start time to
// its end time (exclusive) in Step increments. The result is sorted; an
// instant produced by two overlapping rules is emitted once.
func (g Generator) Slots(rules []Rule, day time.Time) []Slot {
	day = g.Midnight(day)
	step := int(g.Step / time.Minute)
	if step <= 0 {
		step = int(DefaultStep / time.Minute)
	}

	var slots []Slot
	for _, r := range rules {
		if r.DayOfWeek != day.Weekday() {
			continue
		}
		start, end, err := r.window()
		if err != nil {
			continue
		}
		for m := start; m < end; m += step {
			at := time.Date(day.Year(), day.Month(), day.Day(), 0, m, 0, 0, g.Location)
			slots = append(slots, Slot{Instant: at})
		}
	}

	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].Instant.Before(slots[j].Instant)
	})

	out := slots[:0]
	for i, s := range slots {
		if i > 0 && s.Instant.Equal(out[len(out)-1].Instant) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Bookable reports whether instant is one of the slots offered on one of the
// days returned by Days for the given today.
func (g Generator) Bookable(rules []Rule, instant, today time.Time) bool {
	target := g.Midnight(instant)
	for _, d := range g.Days(rules, today) {
		if !d.Equal(target) {
			continue
		}
		for _, s := range g.Slots(rules, d) {
			if s.Instant.Equal(instant) {
				return true
			}
		}
		return false
	}
	return false
}

// SameDay compares the calendar date of a and b in the generator's zone.
func (g Generator) SameDay(a, b time.Time) bool {
	ay, am, ad := a.In(g.Location).Date()
	by, bm, bd := b.In(g.Location).Date()
	return ay == by && am == bm && ad == bd
}

// Midnight returns the start of the local calendar day containing t.
func (g Generator) Midnight(t time.Time) time.Time {
	y, m, d := t.In(g.Location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, g.Location)
}
