package rules

import (
	"context"
	"fmt"
	"time"

	"cropwatch/internal/models"
)

// Drought thresholds
const (
	DroughtHumidityThreshold = 30.0
	DroughtWindow            = 24 * time.Hour
)

// DroughtRule fires when soil humidity has stayed below the threshold for the
// drought window. Because no reading history is retained, "persistently low"
// is approximated from two points: the current reading and the last persisted
// field status. A brief spike between the two points is invisible to this
// check; see the known-limitation note in DESIGN.md.
type DroughtRule struct{}

func (DroughtRule) Name() string { return "drought" }

func (DroughtRule) Evaluate(ctx context.Context, reading *models.SensorReading, snap *models.FieldSnapshot) (*models.Alert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if snap.HasActive(models.AlertDroughtRisk) {
		return nil, nil
	}

	if reading.SoilHumidity >= DroughtHumidityThreshold {
		return nil, nil
	}

	status := snap.Status
	since := reading.RecordedAt.Add(-DroughtWindow)

	persistentlyLow := status != nil &&
		status.LastSoilHumidity != nil && *status.LastSoilHumidity < DroughtHumidityThreshold &&
		status.LastReadingAt != nil && !status.LastReadingAt.After(since)

	if !persistentlyLow {
		return nil, nil
	}

	msg := fmt.Sprintf("Soil humidity at %.1f%%, below %.0f%% for more than %.0f consecutive hours.",
		reading.SoilHumidity, DroughtHumidityThreshold, DroughtWindow.Hours())

	return models.NewAlert(reading.FieldID, models.AlertDroughtRisk, models.SeverityCritical, msg, reading.RecordedAt), nil
}
