package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	PaymentTypeDeposit = "deposit"
	PaymentTypeFinal   = "final"

	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

// Payment records money received (or expected) against a job.
// A completed deposit blocks cancellation of the job.
type Payment struct {
	ID            uuid.UUID  `db:"id"             json:"id"`
	TenantID      uuid.UUID  `db:"tenant_id"      json:"tenant_id"`
	JobID         uuid.UUID  `db:"job_id"         json:"job_id"`
	Type          string     `db:"payment_type"   json:"payment_type"`
	Amount        float64    `db:"amount"         json:"amount"`
	Status        string     `db:"payment_status" json:"payment_status"`
	Method        *string    `db:"payment_method" json:"payment_method,omitempty"`
	TransactionID *string    `db:"transaction_id" json:"transaction_id,omitempty"`
	PaidAt        *time.Time `db:"paid_at"        json:"paid_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at"     json:"created_at"`
}

// Invoice is issued once per completed job.
type Invoice struct {
	ID          uuid.UUID  `db:"id"             json:"id"`
	TenantID    uuid.UUID  `db:"tenant_id"      json:"tenant_id"`
	JobID       uuid.UUID  `db:"job_id"         json:"job_id"`
	ClientID    *uuid.UUID `db:"client_id"      json:"client_id,omitempty"`
	Number      string     `db:"invoice_number" json:"invoice_number"`
	Amount      float64    `db:"amount"         json:"amount"`
	Status      string     `db:"status"         json:"status"`
	GeneratedAt time.Time  `db:"generated_at"   json:"generated_at"`
}
