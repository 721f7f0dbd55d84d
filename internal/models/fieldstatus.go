package models

import (
	"time"

	"github.com/google/uuid"
)

// FieldStatusType is the single current risk classification for a field.
type FieldStatusType string

const (
	StatusNormal       FieldStatusType = "Normal"
	StatusDroughtAlert FieldStatusType = "DroughtAlert"
	StatusPestRisk     FieldStatusType = "PestRisk"
	StatusFloodRisk    FieldStatusType = "FloodRisk"
)

// StatusForAlertType maps an alert type to the field status it implies.
func StatusForAlertType(t AlertType) FieldStatusType {
	switch t {
	case AlertDroughtRisk:
		return StatusDroughtAlert
	case AlertPestRisk:
		return StatusPestRisk
	case AlertFloodRisk:
		return StatusFloodRisk
	default:
		return StatusNormal
	}
}

// FieldStatus is the one-row-per-field summary kept current on every reading.
// Last-observed metrics are nil until the first reading arrives.
type FieldStatus struct {
	FieldID           uuid.UUID       `json:"fieldId"`
	Status            FieldStatusType `json:"status"`
	LastSoilHumidity  *float64        `json:"lastSoilHumidity,omitempty"`
	LastTemperature   *float64        `json:"lastTemperature,omitempty"`
	LastPrecipitation *float64        `json:"lastPrecipitation,omitempty"`
	LastReadingAt     *time.Time      `json:"lastReadingAt,omitempty"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// FieldSnapshot is the immutable view of a field's persisted state taken once
// per processing cycle, inside the serialized scope, and shared read-only by
// all rule evaluators. Status is nil before the field's first reading.
type FieldSnapshot struct {
	Status       *FieldStatus
	ActiveTypes  map[AlertType]bool
	LatestActive *Alert
}

// HasActive reports whether the field has an unresolved alert of the given type.
func (s *FieldSnapshot) HasActive(t AlertType) bool {
	return s.ActiveTypes[t]
}
