package availability

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidDay   = errors.New("day_of_week must be between 0 (Sunday) and 6 (Saturday)")
	ErrInvalidClock = errors.New("time must be formatted as HH:MM")
	ErrEmptyWindow  = errors.New("start time must be before end time")
)

const clockLayout = "15:04"

// Rule is a weekly recurring window during which a specialist offers one specialty.
type Rule struct {
	DayOfWeek time.Weekday `json:"day_of_week"`
	Start     string       `json:"start_time"`
	End       string       `json:"end_time"`
}

// Schedule holds the rules of a specialist keyed by specialty name.
type Schedule map[string][]Rule

func (r Rule) Validate() error {
	if r.DayOfWeek < time.Sunday || r.DayOfWeek > time.Saturday {
		return ErrInvalidDay
	}
	start, err := parseClock(r.Start)
	if err != nil {
		return fmt.Errorf("start_time %q: %w", r.Start, err)
	}
	end, err := parseClock(r.End)
	if err != nil {
		return fmt.Errorf("end_time %q: %w", r.End, err)
	}
	if start >= end {
		return ErrEmptyWindow
	}
	return nil
}

// ValidateRules checks every rule of a full-replace list.
func ValidateRules(rules []Rule) error {
	for i, r := range rules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return nil
}

// window returns the rule bounds in minutes after midnight.
func (r Rule) window() (start, end int, err error) {
	if start, err = parseClock(r.Start); err != nil {
		return 0, 0, err
	}
	if end, err = parseClock(r.End); err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func parseClock(s string) (int, error) {
	if len(s) != len(clockLayout) {
		return 0, ErrInvalidClock
	}
	t, err := time.Parse(clockLayout, s)
	if err != nil {
		return 0, ErrInvalidClock
	}
	return t.Hour()*60 + t.Minute(), nil
}
