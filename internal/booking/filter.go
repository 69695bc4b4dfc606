package booking

import (
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is a window over a filtered list.
type Page struct {
	Items  []Booking `json:"items"`
	Total  int       `json:"total"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
}

// Query narrows a booking listing. Term is matched case-insensitively
// against every text a user can see on a booking.
type Query struct {
	Term   string
	Limit  int
	Offset int
}

func (q Query) normalize() Query {
	if q.Limit <= 0 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	q.Term = strings.ToLower(strings.TrimSpace(q.Term))
	return q
}

// Matches reports whether term occurs in any searchable field. Dates are
// rendered in loc. An empty term matches everything.
func (b *Booking) Matches(term string, loc *time.Location) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	for _, field := range b.searchable(loc) {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

func (b *Booking) searchable(loc *time.Location) []string {
	local := b.Instant.In(loc)
	fields := []string{
		b.Specialty,
		string(b.Status),
		b.PatientName,
		b.SpecialistName,
		b.Comment,
		b.CancellationReason,
		local.Format("2006-01-02"),
		local.Format("02/01/2006"),
		local.Format("15:04"),
	}
	if b.Survey != nil {
		fields = append(fields, b.Survey.Response)
	}
	if r := b.ClinicalRecord; r != nil {
		fields = append(fields,
			formatFloat(r.HeightCM),
			formatFloat(r.WeightKG),
			formatFloat(r.TemperatureC),
			r.BloodPressure,
		)
		for _, e := range r.Extra {
			fields = append(fields, e.Key, e.Value)
		}
	}
	return fields
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Apply filters bookings by the query term and cuts out the requested page.
func Apply(bookings []Booking, q Query, loc *time.Location) Page {
	q = q.normalize()

	matched := make([]Booking, 0, len(bookings))
	for i := range bookings {
		if bookings[i].Matches(q.Term, loc) {
			matched = append(matched, bookings[i])
		}
	}

	page := Page{Total: len(matched), Limit: q.Limit, Offset: q.Offset, Items: []Booking{}}
	if q.Offset >= len(matched) {
		return page
	}
	end := q.Offset + q.Limit
	if end > len(matched) {
		end = len(matched)
	}
	page.Items = matched[q.Offset:end]
	return page
}
