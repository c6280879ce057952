package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the stored status of a clearance job.
type JobStatus string

const (
	JobStatusPending             JobStatus = "pending"
	JobStatusCreated             JobStatus = "job_created"
	JobStatusQuoteSent           JobStatus = "quote_sent"
	JobStatusQuoteAccepted       JobStatus = "quote_accepted"
	JobStatusQuoteRejected       JobStatus = "quote_rejected"
	JobStatusCrewAssigned        JobStatus = "crew_assigned"
	JobStatusCrewDispatched      JobStatus = "crew_dispatched"
	JobStatusCrewArrived         JobStatus = "crew_arrived"
	JobStatusBeforePhoto         JobStatus = "before_photo"
	JobStatusClearanceInProgress JobStatus = "clearance_in_progress"
	JobStatusAfterPhoto          JobStatus = "after_photo"
	JobStatusWorkCompleted       JobStatus = "work_completed"
	JobStatusCompleted           JobStatus = "job_completed"
	JobStatusCancelled           JobStatus = "cancelled"
)

// Job is a property clearance request. Drafts (status pending) have no client;
// everything else is owned by the client that submitted or confirmed it.
// Jobs are never deleted: cancelled and job_completed are terminal.
type Job struct {
	ID                 uuid.UUID  `db:"id"                  json:"id"`
	TenantID           uuid.UUID  `db:"tenant_id"           json:"tenant_id"`
	ClientID           *uuid.UUID `db:"client_id"           json:"client_id,omitempty"`
	UrgencyLevelID     *uuid.UUID `db:"urgency_level_id"    json:"urgency_level_id,omitempty"`
	ServiceType        string     `db:"service_type"        json:"service_type"`
	PropertySize       *string    `db:"property_size"       json:"property_size,omitempty"`
	VanLoads           *int       `db:"van_loads"           json:"van_loads,omitempty"`
	WasteTypes         *string    `db:"waste_types"         json:"waste_types,omitempty"`
	PropertyAddress    string     `db:"property_address"    json:"property_address"`
	PreferredDate      string     `db:"preferred_date"      json:"preferred_date"`
	PreferredTime      string     `db:"preferred_time"      json:"preferred_time"`
	AdditionalInfo     *string    `db:"additional_info"     json:"additional_information,omitempty"`
	Latitude           *float64   `db:"latitude"            json:"latitude,omitempty"`
	Longitude          *float64   `db:"longitude"           json:"longitude,omitempty"`
	AssignedCrewID     *uuid.UUID `db:"assigned_crew_id"    json:"assigned_crew_id,omitempty"`
	QuoteAmount        *float64   `db:"quote_amount"        json:"quote_amount,omitempty"`
	DepositAmount      *float64   `db:"deposit_amount"      json:"deposit_amount,omitempty"`
	QuoteNotes         *string    `db:"quote_notes"         json:"quote_notes,omitempty"`
	DeclineReason      *string    `db:"decline_reason"      json:"decline_reason,omitempty"`
	CancellationReason *string    `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	Rating             *int       `db:"rating"              json:"rating,omitempty"`
	Status             JobStatus  `db:"status"              json:"status"`
	CompletedAt        *time.Time `db:"completed_at"        json:"completed_at,omitempty"`
	CreatedAt          time.Time  `db:"created_at"          json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"          json:"updated_at"`
}

// HasLocation reports whether geocoding produced coordinates for the job.
func (j *Job) HasLocation() bool {
	return j.Latitude != nil && j.Longitude != nil
}
