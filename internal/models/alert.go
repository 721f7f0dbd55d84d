package models

import (
	"time"

	"github.com/google/uuid"
)

// AlertType identifies the risk rule that fired an alert.
type AlertType string

const (
	AlertDroughtRisk AlertType = "DroughtRisk"
	AlertPestRisk    AlertType = "PestRisk"
	AlertFloodRisk   AlertType = "FloodRisk"
)

// IsValid checks if the alert type is one of the known rules.
func (t AlertType) IsValid() bool {
	switch t {
	case AlertDroughtRisk, AlertPestRisk, AlertFloodRisk:
		return true
	default:
		return false
	}
}

// Severity represents how urgent an alert is.
type Severity string

const (
	SeverityWarning  Severity = "Warning"
	SeverityCritical Severity = "Critical"
)

// MaxMessageLength bounds the human-readable alert text.
const MaxMessageLength = 512

// Alert is a persisted record of a fired risk rule. It stays active until
// explicitly resolved; while active it suppresses duplicates of its type and
// participates in field status fallback.
type Alert struct {
	ID          uuid.UUID  `json:"id"`
	FieldID     uuid.UUID  `json:"fieldId"`
	Type        AlertType  `json:"type"`
	Severity    Severity   `json:"severity"`
	Message     string     `json:"message"`
	IsActive    bool       `json:"isActive"`
	TriggeredAt time.Time  `json:"triggeredAt"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
}

// NewAlert creates an active alert for a field.
func NewAlert(fieldID uuid.UUID, typ AlertType, severity Severity, message string, triggeredAt time.Time) *Alert {
	if len(message) > MaxMessageLength {
		message = message[:MaxMessageLength]
	}

	return &Alert{
		ID:          uuid.New(),
		FieldID:     fieldID,
		Type:        typ,
		Severity:    severity,
		Message:     message,
		IsActive:    true,
		TriggeredAt: triggeredAt,
	}
}

// Resolve deactivates the alert. Only external collaborators resolve alerts;
// the engine never flips one back.
func (a *Alert) Resolve(at time.Time) {
	a.IsActive = false
	a.ResolvedAt = &at
}
