package rules

import (
	"context"
	"fmt"

	"cropwatch/internal/models"
)

// FloodPrecipitationThreshold is the single-reading precipitation level that
// indicates flooding risk.
const FloodPrecipitationThreshold = 50.0

// FloodRule fires when one reading alone reports heavy enough precipitation.
type FloodRule struct{}

func (FloodRule) Name() string { return "flood" }

func (FloodRule) Evaluate(ctx context.Context, reading *models.SensorReading, snap *models.FieldSnapshot) (*models.Alert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if reading.Precipitation < FloodPrecipitationThreshold {
		return nil, nil
	}

	if snap.HasActive(models.AlertFloodRisk) {
		return nil, nil
	}

	msg := fmt.Sprintf("Precipitation of %.1fmm indicates flooding risk for the field.",
		reading.Precipitation)

	return models.NewAlert(reading.FieldID, models.AlertFloodRisk, models.SeverityCritical, msg, reading.RecordedAt), nil
}
