package booking

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestMatches(t *testing.T) {
	b := Booking{
		Specialty:      "Cardiology",
		Status:         StatusCompleted,
		PatientName:    "Ana Gómez",
		SpecialistName: "Gregory House",
		Instant:        time.Date(2024, time.May, 10, 9, 30, 0, 0, time.UTC),
		Survey:         &Survey{Response: "Very kind staff"},
		ClinicalRecord: &ClinicalRecord{
			HeightCM:      172,
			WeightKG:      68.5,
			TemperatureC:  36.6,
			BloodPressure: "120/80",
			Extra:         []Entry{{Key: "Allergy", Value: "Penicillin"}},
		},
	}

	for _, term := range []string{"cardio", "COMPLETED", "gómez", "house", "10/05/2024", "2024-05-10", "09:30", "kind", "68.5", "120/80", "allergy", "penicillin", "  "} {
		assert.True(t, b.Matches(term, time.UTC), term)
	}
	for _, term := range []string{"dermatology", "cancelled", "11/05/2024", "aspirin"} {
		assert.False(t, b.Matches(term, time.UTC), term)
	}
}

func TestApplyPaginates(t *testing.T) {
	var bookings []Booking
	for i := 0; i < 25; i++ {
		bookings = append(bookings, Booking{
			ID:          uuid.New(),
			Specialty:   "Cardiology",
			PatientName: fmt.Sprintf("Patient %02d", i),
			Status:      StatusRequested,
		})
	}

	page := Apply(bookings, Query{}, time.UTC)
	assert.Equal(t, 25, page.Total)
	assert.Equal(t, DefaultPageSize, page.Limit)
	assert.Len(t, page.Items, DefaultPageSize)

	page = Apply(bookings, Query{Limit: 10, Offset: 20}, time.UTC)
	assert.Len(t, page.Items, 5)
	assert.Equal(t, "Patient 20", page.Items[0].PatientName)

	page = Apply(bookings, Query{Limit: 500, Offset: -3}, time.UTC)
	assert.Equal(t, MaxPageSize, page.Limit)
	assert.Equal(t, 0, page.Offset)
	assert.Len(t, page.Items, 25)

	page = Apply(bookings, Query{Offset: 40}, time.UTC)
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)

	page = Apply(bookings, Query{Term: "patient 1"}, time.UTC)
	assert.Equal(t, 10, page.Total)
}
