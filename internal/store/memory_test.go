package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"cropwatch/internal/models"
	"cropwatch/internal/store"
)

func TestMemoryUpdateFieldCommitsOnSuccess(t *testing.T) {
	mem := store.NewMemory()
	fieldID := uuid.New()
	now := time.Now().UTC()

	err := mem.UpdateField(context.Background(), fieldID, func(ctx context.Context, tx store.Tx) error {
		alert := models.NewAlert(fieldID, models.AlertPestRisk, models.SeverityWarning, "pest", now)
		if err := tx.InsertAlerts(ctx, []*models.Alert{alert}); err != nil {
			return err
		}
		return tx.UpsertFieldStatus(ctx, &models.FieldStatus{
			FieldID:   fieldID,
			Status:    models.StatusPestRisk,
			UpdatedAt: now,
		})
	})
	if err != nil {
		t.Fatalf("UpdateField failed: %v", err)
	}

	if got := len(mem.ActiveAlerts(fieldID)); got != 1 {
		t.Errorf("active alerts = %d, want 1", got)
	}
	if status := mem.FieldStatus(fieldID); status == nil || status.Status != models.StatusPestRisk {
		t.Errorf("field status = %+v, want PestRisk", status)
	}
}

func TestMemoryUpdateFieldRollsBackOnError(t *testing.T) {
	mem := store.NewMemory()
	fieldID := uuid.New()
	boom := errors.New("boom")

	err := mem.UpdateField(context.Background(), fieldID, func(ctx context.Context, tx store.Tx) error {
		alert := models.NewAlert(fieldID, models.AlertFloodRisk, models.SeverityCritical, "flood", time.Now())
		if err := tx.InsertAlerts(ctx, []*models.Alert{alert}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if got := len(mem.ActiveAlerts(fieldID)); got != 0 {
		t.Errorf("active alerts = %d, want 0 after rollback", got)
	}
}

func TestMemorySnapshotOrdersLatestActiveFirst(t *testing.T) {
	mem := store.NewMemory()
	fieldID := uuid.New()
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	older := models.NewAlert(fieldID, models.AlertPestRisk, models.SeverityWarning, "pest", base)
	newer := models.NewAlert(fieldID, models.AlertFloodRisk, models.SeverityCritical, "flood", base.Add(time.Hour))

	err := mem.UpdateField(context.Background(), fieldID, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertAlerts(ctx, []*models.Alert{newer, older})
	})
	if err != nil {
		t.Fatalf("UpdateField failed: %v", err)
	}

	var snap *models.FieldSnapshot
	err = mem.UpdateField(context.Background(), fieldID, func(ctx context.Context, tx store.Tx) error {
		var err error
		snap, err = tx.Snapshot(ctx, fieldID)
		return err
	})
	if err != nil {
		t.Fatalf("snapshot read failed: %v", err)
	}

	if !snap.HasActive(models.AlertPestRisk) || !snap.HasActive(models.AlertFloodRisk) {
		t.Fatalf("snapshot missing active types: %+v", snap.ActiveTypes)
	}
	if snap.LatestActive == nil || snap.LatestActive.ID != newer.ID {
		t.Errorf("latest active = %+v, want the flood alert", snap.LatestActive)
	}
	if snap.Status != nil {
		t.Errorf("status = %+v, want nil before first status upsert", snap.Status)
	}
}

func TestMemoryResolveAlert(t *testing.T) {
	mem := store.NewMemory()
	fieldID := uuid.New()
	alert := models.NewAlert(fieldID, models.AlertDroughtRisk, models.SeverityCritical, "drought", time.Now())

	err := mem.UpdateField(context.Background(), fieldID, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertAlerts(ctx, []*models.Alert{alert})
	})
	if err != nil {
		t.Fatalf("UpdateField failed: %v", err)
	}

	if err := mem.ResolveAlert(context.Background(), alert.ID, time.Now()); err != nil {
		t.Fatalf("ResolveAlert failed: %v", err)
	}
	if got := len(mem.ActiveAlerts(fieldID)); got != 0 {
		t.Errorf("active alerts = %d, want 0 after resolve", got)
	}

	// Resolving twice is an error: the alert is no longer active.
	if err := mem.ResolveAlert(context.Background(), alert.ID, time.Now()); !errors.Is(err, store.ErrAlertNotFound) {
		t.Errorf("second resolve error = %v, want ErrAlertNotFound", err)
	}
}
