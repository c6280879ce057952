package models

import (
	"time"

	"github.com/google/uuid"
)

// CrewStatus is the availability of a crew.
type CrewStatus string

const (
	CrewStatusAvailable CrewStatus = "available"
	CrewStatusAssigned  CrewStatus = "assigned"
	CrewStatusOffline   CrewStatus = "offline"
)

// Crew is a clearance team. Only approved, available crews with known
// coordinates are candidates for automatic dispatch.
type Crew struct {
	ID          uuid.UUID  `db:"id"           json:"id"`
	TenantID    uuid.UUID  `db:"tenant_id"    json:"tenant_id"`
	FullName    string     `db:"full_name"    json:"full_name"`
	Email       string     `db:"email"        json:"email"`
	PhoneNumber *string    `db:"phone_number" json:"phone_number,omitempty"`
	Status      CrewStatus `db:"status"       json:"status"`
	IsApproved  bool       `db:"is_approved"  json:"is_approved"`
	Latitude    *float64   `db:"latitude"     json:"latitude,omitempty"`
	Longitude   *float64   `db:"longitude"    json:"longitude,omitempty"`
	CreatedAt   time.Time  `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"   json:"updated_at"`
}

// HasLocation reports whether the crew has known coordinates.
func (c *Crew) HasLocation() bool {
	return c.Latitude != nil && c.Longitude != nil
}
