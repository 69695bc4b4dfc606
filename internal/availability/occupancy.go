package availability

import "time"

// Occupant is the part of an existing booking the occupancy filter needs.
// Active is false for cancelled and rejected bookings.
type Occupant struct {
	Instant time.Time
	Active  bool
}

// MarkOccupied returns a copy of slots where a slot is occupied iff an active
// occupant sits at exactly the same instant (minute precision).
func MarkOccupied(slots []Slot, occupants []Occupant) []Slot {
	taken := make(map[int64]bool, len(occupants))
	for _, o := range occupants {
		if o.Active {
			taken[minuteKey(o.Instant)] = true
		}
	}

	out := make([]Slot, len(slots))
	for i, s := range slots {
		out[i] = Slot{Instant: s.Instant, Occupied: taken[minuteKey(s.Instant)]}
	}
	return out
}

func minuteKey(t time.Time) int64 {
	return t.Truncate(time.Minute).Unix()
}
