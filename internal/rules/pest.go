package rules

import (
	"context"
	"fmt"

	"cropwatch/internal/models"
)

// Pest thresholds
const (
	PestTemperatureThreshold   = 35.0
	PestPrecipitationThreshold = 5.0
)

// PestRule fires when high temperature coincides with low precipitation,
// conditions favorable to pest development.
type PestRule struct{}

func (PestRule) Name() string { return "pest" }

func (PestRule) Evaluate(ctx context.Context, reading *models.SensorReading, snap *models.FieldSnapshot) (*models.Alert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if reading.Temperature < PestTemperatureThreshold || reading.Precipitation >= PestPrecipitationThreshold {
		return nil, nil
	}

	if snap.HasActive(models.AlertPestRisk) {
		return nil, nil
	}

	msg := fmt.Sprintf("Temperature of %.1f°C with precipitation of %.1fmm indicates conditions favorable to pest development.",
		reading.Temperature, reading.Precipitation)

	return models.NewAlert(reading.FieldID, models.AlertPestRisk, models.SeverityWarning, msg, reading.RecordedAt), nil
}
