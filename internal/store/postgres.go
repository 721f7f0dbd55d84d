package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cropwatch/internal/models"
)

// Postgres is the production Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects a pool to the given DSN and verifies connectivity.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// Ping checks database connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// UpdateField opens a transaction, takes a transaction-scoped advisory lock on
// the field id, and runs fn. The lock serializes concurrent cycles for the
// same field across all pool connections (and service instances sharing the
// database), including the first reading where no status row exists to lock.
// It is released automatically at commit or rollback.
func (p *Postgres) UpdateField(ctx context.Context, fieldID uuid.UUID, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// Rollback is a no-op after a successful commit.
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, fieldID); err != nil {
		return fmt.Errorf("failed to acquire field lock: %w", err)
	}

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	return nil
}

// ResolveAlert deactivates an alert and stamps its resolution time. Consumed
// by the external resolve collaborator, not by the engine.
func (p *Postgres) ResolveAlert(ctx context.Context, alertID uuid.UUID, at time.Time) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE alerts SET is_active = FALSE, resolved_at = $2 WHERE id = $1 AND is_active`,
		alertID, at)
	if err != nil {
		return fmt.Errorf("failed to resolve alert: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrAlertNotFound
	}

	return nil
}

// ErrAlertNotFound is returned when resolving an alert that does not exist or
// is already resolved.
var ErrAlertNotFound = errors.New("store: active alert not found")

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Snapshot(ctx context.Context, fieldID uuid.UUID) (*models.FieldSnapshot, error) {
	snap := &models.FieldSnapshot{
		ActiveTypes: make(map[models.AlertType]bool),
	}

	var status models.FieldStatus
	err := t.tx.QueryRow(ctx, `
		SELECT field_id, status, last_soil_humidity, last_temperature, last_precipitation, last_reading_at, updated_at
		FROM field_status
		WHERE field_id = $1`, fieldID).Scan(
		&status.FieldID,
		&status.Status,
		&status.LastSoilHumidity,
		&status.LastTemperature,
		&status.LastPrecipitation,
		&status.LastReadingAt,
		&status.UpdatedAt,
	)
	switch {
	case err == nil:
		snap.Status = &status
	case errors.Is(err, pgx.ErrNoRows):
		// first reading for this field
	default:
		return nil, fmt.Errorf("failed to load field status: %w", err)
	}

	rows, err := t.tx.Query(ctx, `
		SELECT id, field_id, type, severity, message, is_active, triggered_at, resolved_at
		FROM alerts
		WHERE field_id = $1 AND is_active
		ORDER BY triggered_at DESC`, fieldID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active alerts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a models.Alert
		if err := rows.Scan(
			&a.ID,
			&a.FieldID,
			&a.Type,
			&a.Severity,
			&a.Message,
			&a.IsActive,
			&a.TriggeredAt,
			&a.ResolvedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}

		snap.ActiveTypes[a.Type] = true
		if snap.LatestActive == nil {
			alert := a
			snap.LatestActive = &alert
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read active alerts: %w", err)
	}

	return snap, nil
}

func (t *pgTx) InsertAlerts(ctx context.Context, alerts []*models.Alert) error {
	for _, a := range alerts {
		_, err := t.tx.Exec(ctx, `
			INSERT INTO alerts (id, field_id, type, severity, message, is_active, triggered_at, resolved_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			a.ID, a.FieldID, a.Type, a.Severity, a.Message, a.IsActive, a.TriggeredAt, a.ResolvedAt)
		if err != nil {
			return fmt.Errorf("failed to insert alert %s: %w", a.ID, err)
		}
	}

	return nil
}

func (t *pgTx) UpsertFieldStatus(ctx context.Context, status *models.FieldStatus) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO field_status (field_id, status, last_soil_humidity, last_temperature, last_precipitation, last_reading_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (field_id) DO UPDATE SET
			status = EXCLUDED.status,
			last_soil_humidity = EXCLUDED.last_soil_humidity,
			last_temperature = EXCLUDED.last_temperature,
			last_precipitation = EXCLUDED.last_precipitation,
			last_reading_at = EXCLUDED.last_reading_at,
			updated_at = EXCLUDED.updated_at`,
		status.FieldID, status.Status, status.LastSoilHumidity, status.LastTemperature,
		status.LastPrecipitation, status.LastReadingAt, status.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert field status: %w", err)
	}

	return nil
}
