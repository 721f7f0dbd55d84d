package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SensorReading is one timestamped sensor sample for a field. It arrives on
// the sensor-readings topic and is discarded after processing; this service
// keeps no reading history.
type SensorReading struct {
	ReadingID     uuid.UUID `json:"readingId"`
	FieldID       uuid.UUID `json:"fieldId"`
	SoilHumidity  float64   `json:"soilHumidity"`
	Temperature   float64   `json:"temperature"`
	Precipitation float64   `json:"precipitation"`
	RecordedAt    time.Time `json:"recordedAt"`
}

// Validation errors
var (
	ErrNilReadingID   = errors.New("reading ID cannot be nil")
	ErrNilFieldID     = errors.New("field ID cannot be nil")
	ErrZeroRecordedAt = errors.New("recorded-at timestamp cannot be zero")
)

// Validate checks that the reading is well formed: identifiers and timestamp
// must be present. Metric values are not range-checked here; implausible
// readings still flow to the rules, which compare against thresholds only.
func (r *SensorReading) Validate() error {
	if r.ReadingID == uuid.Nil {
		return ErrNilReadingID
	}

	if r.FieldID == uuid.Nil {
		return ErrNilFieldID
	}

	if r.RecordedAt.IsZero() {
		return ErrZeroRecordedAt
	}

	return nil
}
