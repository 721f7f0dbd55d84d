// Package engine orchestrates one processing cycle per sensor reading: rule
// fan-out, field status resolution, and the single atomic commit.
package engine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"cropwatch/internal/logger"
	"cropwatch/internal/metrics"
	"cropwatch/internal/models"
	"cropwatch/internal/rules"
	"cropwatch/internal/store"
)

// Engine evaluates risk rules against incoming readings and keeps alerts and
// field status consistent. It is safe for concurrent use; per-field
// serialization is delegated to the store's update scope.
type Engine struct {
	store store.Store
	rules []rules.Rule
	now   func() time.Time
}

// New constructs an Engine over the given store with the full rule set.
func New(s store.Store) *Engine {
	return &Engine{
		store: s,
		rules: rules.All(),
		now:   time.Now,
	}
}

// Process runs one full cycle for a reading. Everything happens inside the
// store's per-field serialized transaction: the snapshot read, the concurrent
// rule evaluation, alert insertion, and the field status upsert commit
// together or not at all. Errors propagate to the caller untouched so the
// consumption pipeline can decide the settlement action.
func (e *Engine) Process(ctx context.Context, reading *models.SensorReading) error {
	log := logger.WithField(reading.FieldID.String())
	log.Debug().
		Str("reading_id", reading.ReadingID.String()).
		Float64("soil_humidity", reading.SoilHumidity).
		Float64("temperature", reading.Temperature).
		Float64("precipitation", reading.Precipitation).
		Msg("processing reading")

	return e.store.UpdateField(ctx, reading.FieldID, func(ctx context.Context, tx store.Tx) error {
		snap, err := tx.Snapshot(ctx, reading.FieldID)
		if err != nil {
			return fmt.Errorf("snapshot failed: %w", err)
		}

		fired, err := e.evaluate(ctx, reading, snap)
		if err != nil {
			return err
		}

		if len(fired) > 0 {
			if err := tx.InsertAlerts(ctx, fired); err != nil {
				return fmt.Errorf("alert insert failed: %w", err)
			}

			for _, a := range fired {
				log.Warn().
					Str("alert_id", a.ID.String()).
					Str("type", string(a.Type)).
					Str("severity", string(a.Severity)).
					Time("triggered_at", a.TriggeredAt).
					Msg("alert created")
				metrics.AlertsCreated.WithLabelValues(string(a.Type)).Inc()
			}
		}

		status := e.nextStatus(reading, snap, fired)
		if err := tx.UpsertFieldStatus(ctx, status); err != nil {
			return fmt.Errorf("field status upsert failed: %w", err)
		}

		return nil
	})
}

// evaluate fans the rule set out over the shared immutable snapshot and joins
// before returning. The first rule error cancels the remaining evaluations.
func (e *Engine) evaluate(ctx context.Context, reading *models.SensorReading, snap *models.FieldSnapshot) ([]*models.Alert, error) {
	results := make([]*models.Alert, len(e.rules))

	g, gctx := errgroup.WithContext(ctx)
	for i, rule := range e.rules {
		i, rule := i, rule
		g.Go(func() error {
			alert, err := rule.Evaluate(gctx, reading, snap)
			if err != nil {
				return fmt.Errorf("rule %s failed: %w", rule.Name(), err)
			}
			results[i] = alert
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var fired []*models.Alert
	for _, a := range results {
		if a != nil {
			fired = append(fired, a)
		}
	}

	return fired, nil
}

// nextStatus resolves the field's single status. New alerts win by fixed
// priority (Drought > Pest > Flood); with no new alert the status mirrors the
// most recently triggered pre-existing active alert, and only a field with no
// active alerts at all goes back to Normal.
func (e *Engine) nextStatus(reading *models.SensorReading, snap *models.FieldSnapshot, fired []*models.Alert) *models.FieldStatus {
	status := models.StatusNormal

	switch {
	case hasType(fired, models.AlertDroughtRisk):
		status = models.StatusDroughtAlert
	case hasType(fired, models.AlertPestRisk):
		status = models.StatusPestRisk
	case hasType(fired, models.AlertFloodRisk):
		status = models.StatusFloodRisk
	case snap.LatestActive != nil:
		status = models.StatusForAlertType(snap.LatestActive.Type)
	}

	humidity := reading.SoilHumidity
	temperature := reading.Temperature
	precipitation := reading.Precipitation
	recordedAt := reading.RecordedAt

	return &models.FieldStatus{
		FieldID:           reading.FieldID,
		Status:            status,
		LastSoilHumidity:  &humidity,
		LastTemperature:   &temperature,
		LastPrecipitation: &precipitation,
		LastReadingAt:     &recordedAt,
		UpdatedAt:         e.now().UTC(),
	}
}

func hasType(alerts []*models.Alert, t models.AlertType) bool {
	for _, a := range alerts {
		if a.Type == t {
			return true
		}
	}
	return false
}
