// Package store is the persistence boundary for alerts and field status.
// All mutation happens inside UpdateField, which serializes the full
// read-evaluate-write cycle per field id and commits it as one transaction.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"cropwatch/internal/models"
)

// ErrTxDone is returned when a transaction handle is used after commit or rollback.
var ErrTxDone = errors.New("store: transaction already closed")

// Tx is the transactional view handed to the update function. It is only
// valid for the duration of the UpdateField call that produced it.
type Tx interface {
	// Snapshot reads the field's persisted state in one pass: the status row,
	// the set of active alert types, and the most recently triggered active
	// alert. Status is nil for a field that has never reported.
	Snapshot(ctx context.Context, fieldID uuid.UUID) (*models.FieldSnapshot, error)

	// InsertAlerts stages new alert rows.
	InsertAlerts(ctx context.Context, alerts []*models.Alert) error

	// UpsertFieldStatus stages the field's one status row, creating it on the
	// field's first reading.
	UpsertFieldStatus(ctx context.Context, status *models.FieldStatus) error
}

// Store is the transactional alert/field-status store.
type Store interface {
	// UpdateField runs fn inside a transaction that holds a per-field
	// serialization scope for the whole read-evaluate-write cycle. The
	// transaction commits iff fn returns nil; any error (including context
	// cancellation) rolls back every staged change.
	UpdateField(ctx context.Context, fieldID uuid.UUID, fn func(ctx context.Context, tx Tx) error) error

	Close() error
}
