package models

import (
	"time"

	"github.com/google/uuid"
)

// UrgencyLevel is reference data mapping an urgency name to the SLA window
// a job of that urgency must be completed in.
type UrgencyLevel struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Name      string    `db:"name"       json:"name"`
	SLAHours  int       `db:"sla_hours"  json:"sla_hours"`
	IsActive  bool      `db:"is_active"  json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
