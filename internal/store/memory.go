package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"cropwatch/internal/models"
)

// Memory is an in-process Store used by tests and local development. It
// mirrors the Postgres backend's guarantees: a per-field mutex held across the
// whole update serializes cycles for the same field, and staged writes are
// applied only if the update function succeeds.
type Memory struct {
	mu       sync.Mutex
	fieldMu  map[uuid.UUID]*sync.Mutex
	statuses map[uuid.UUID]models.FieldStatus
	alerts   map[uuid.UUID][]models.Alert
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		fieldMu:  make(map[uuid.UUID]*sync.Mutex),
		statuses: make(map[uuid.UUID]models.FieldStatus),
		alerts:   make(map[uuid.UUID][]models.Alert),
	}
}

// Close implements Store.
func (m *Memory) Close() error { return nil }

func (m *Memory) lockFor(fieldID uuid.UUID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.fieldMu[fieldID]
	if !ok {
		l = &sync.Mutex{}
		m.fieldMu[fieldID] = l
	}
	return l
}

// UpdateField serializes on the field's mutex, runs fn against a staging
// transaction, and applies the staged writes only when fn returns nil.
func (m *Memory) UpdateField(ctx context.Context, fieldID uuid.UUID, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l := m.lockFor(fieldID)
	l.Lock()
	defer l.Unlock()

	tx := &memTx{store: m}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.done = true

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range tx.newAlerts {
		m.alerts[a.FieldID] = append(m.alerts[a.FieldID], *a)
	}
	if tx.newStatus != nil {
		m.statuses[tx.newStatus.FieldID] = *tx.newStatus
	}

	return nil
}

// ResolveAlert deactivates an active alert by id.
func (m *Memory) ResolveAlert(ctx context.Context, alertID uuid.UUID, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for fieldID, list := range m.alerts {
		for i := range list {
			if list[i].ID == alertID && list[i].IsActive {
				list[i].Resolve(at)
				m.alerts[fieldID] = list
				return nil
			}
		}
	}

	return ErrAlertNotFound
}

// ActiveAlerts returns copies of the field's active alerts, most recently
// triggered first.
func (m *Memory) ActiveAlerts(fieldID uuid.UUID) []models.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Alert
	for _, a := range m.alerts[fieldID] {
		if a.IsActive {
			out = append(out, a)
		}
	}

	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].TriggeredAt.After(out[i].TriggeredAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}

	return out
}

// FieldStatus returns a copy of the field's status row, or nil if the field
// has never reported.
func (m *Memory) FieldStatus(fieldID uuid.UUID) *models.FieldStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.statuses[fieldID]
	if !ok {
		return nil
	}
	return &s
}

type memTx struct {
	store     *Memory
	done      bool
	newAlerts []*models.Alert
	newStatus *models.FieldStatus
}

func (t *memTx) Snapshot(ctx context.Context, fieldID uuid.UUID) (*models.FieldSnapshot, error) {
	if t.done {
		return nil, ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap := &models.FieldSnapshot{
		ActiveTypes: make(map[models.AlertType]bool),
	}

	if s := t.store.FieldStatus(fieldID); s != nil {
		snap.Status = s
	}

	for _, a := range t.store.ActiveAlerts(fieldID) {
		snap.ActiveTypes[a.Type] = true
		if snap.LatestActive == nil {
			alert := a
			snap.LatestActive = &alert
		}
	}

	return snap, nil
}

func (t *memTx) InsertAlerts(ctx context.Context, alerts []*models.Alert) error {
	if t.done {
		return ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t.newAlerts = append(t.newAlerts, alerts...)
	return nil
}

func (t *memTx) UpsertFieldStatus(ctx context.Context, status *models.FieldStatus) error {
	if t.done {
		return ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s := *status
	t.newStatus = &s
	return nil
}
