package booking

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusRequested Status = "requested"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Active reports whether a booking in this status still holds its slot.
func (s Status) Active() bool {
	return s != StatusCancelled && s != StatusRejected
}

func (s Status) Terminal() bool {
	switch s {
	case StatusRejected, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

const MaxExtraEntries = 3

var ErrInvalidRecord = errors.New("invalid clinical record")

type Entry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ClinicalRecord holds the notes a specialist attaches when completing a visit.
type ClinicalRecord struct {
	HeightCM      float64 `json:"height_cm"`
	WeightKG      float64 `json:"weight_kg"`
	TemperatureC  float64 `json:"temperature_c"`
	BloodPressure string  `json:"blood_pressure"`
	Extra         []Entry `json:"extra,omitempty"`
}

func (r ClinicalRecord) Validate() error {
	switch {
	case r.HeightCM <= 0 || r.HeightCM > 300:
		return fmt.Errorf("%w: height must be between 0 and 300 cm", ErrInvalidRecord)
	case r.WeightKG <= 0 || r.WeightKG > 700:
		return fmt.Errorf("%w: weight must be between 0 and 700 kg", ErrInvalidRecord)
	case r.TemperatureC < 25 || r.TemperatureC > 45:
		return fmt.Errorf("%w: temperature must be between 25 and 45 °C", ErrInvalidRecord)
	case strings.TrimSpace(r.BloodPressure) == "":
		return fmt.Errorf("%w: blood pressure is required", ErrInvalidRecord)
	case len(r.Extra) > MaxExtraEntries:
		return fmt.Errorf("%w: at most %d extra entries", ErrInvalidRecord, MaxExtraEntries)
	}

	seen := make(map[string]bool, len(r.Extra))
	for _, e := range r.Extra {
		key := strings.TrimSpace(e.Key)
		if key == "" {
			return fmt.Errorf("%w: extra entry without a key", ErrInvalidRecord)
		}
		if seen[strings.ToLower(key)] {
			return fmt.Errorf("%w: duplicate extra key %q", ErrInvalidRecord, key)
		}
		seen[strings.ToLower(key)] = true
	}
	return nil
}

// Survey is the patient's answer to the post-visit questionnaire.
type Survey struct {
	Response    string    `json:"response"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type Booking struct {
	ID                 uuid.UUID       `json:"id"`
	PatientID          uuid.UUID       `json:"patient_id"`
	SpecialistID       uuid.UUID       `json:"specialist_id"`
	Specialty          string          `json:"specialty"`
	Instant            time.Time       `json:"instant"`
	Status             Status          `json:"status"`
	PatientName        string          `json:"patient_name"`
	SpecialistName     string          `json:"specialist_name"`
	Comment            string          `json:"comment,omitempty"`
	CancellationReason string          `json:"cancellation_reason,omitempty"`
	Survey             *Survey         `json:"survey,omitempty"`
	ClinicalRecord     *ClinicalRecord `json:"clinical_record,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

type CreateRequest struct {
	PatientID    uuid.UUID `json:"patient_id"`
	SpecialistID uuid.UUID `json:"specialist_id"`
	Specialty    string    `json:"specialty"`
	Instant      time.Time `json:"instant"`
}
