// Package rules holds the risk rule evaluators. Each rule is a pure decision
// over one reading plus the field snapshot taken at the start of the cycle;
// rules never touch the store and never see each other's output.
package rules

import (
	"context"

	"cropwatch/internal/models"
)

// Rule decides whether a reading should fire a new alert for a field.
// A nil alert with a nil error means the rule did not fire (or was
// suppressed by an existing active alert of its type).
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, reading *models.SensorReading, snap *models.FieldSnapshot) (*models.Alert, error)
}

// All returns the full rule set in evaluation order. Order does not affect
// results; every rule runs against the same snapshot.
func All() []Rule {
	return []Rule{
		DroughtRule{},
		PestRule{},
		FloodRule{},
	}
}
