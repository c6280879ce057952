package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/clearops/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	GetDefaultTenant(ctx context.Context) (*models.Tenant, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error

	ListUrgencyLevels(ctx context.Context) ([]*models.UrgencyLevel, error)
	GetUrgencyLevel(ctx context.Context, id uuid.UUID) (*models.UrgencyLevel, error)

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, int, error)

	// UpsertCrew inserts a crew or replaces its profile. Status is written on
	// insert only; later changes go through Tx.SetCrewStatus.
	UpsertCrew(ctx context.Context, crew *models.Crew) error
	GetCrew(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Crew, error)
	ListCrews(ctx context.Context, tenantID uuid.UUID) ([]*models.Crew, error)

	CreatePayment(ctx context.Context, p *models.Payment) error
	ListPayments(ctx context.Context, jobID uuid.UUID, tenantID uuid.UUID) ([]*models.Payment, error)

	// CreateInvoice returns ErrDuplicateKey when the job already has an invoice.
	CreateInvoice(ctx context.Context, inv *models.Invoice) error
	GetInvoiceByJobID(ctx context.Context, jobID uuid.UUID, tenantID uuid.UUID) (*models.Invoice, error)

	// InTx runs fn in a single transaction. fn's error rolls everything back.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of operations that must see and write a consistent view:
// job status checks, crew claims and payment guards.
type Tx interface {
	// GetJobForUpdate reads the job and holds it against concurrent mutation
	// until the transaction ends.
	GetJobForUpdate(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Job, error)
	UpdateJob(ctx context.Context, job *models.Job) error

	CrewDirectory
	PaymentLedger
}

// CrewDirectory reads and claims crews.
type CrewDirectory interface {
	GetCrew(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Crew, error)
	// ListAvailableCrews returns approved, available crews with coordinates, ordered by id.
	ListAvailableCrews(ctx context.Context, tenantID uuid.UUID) ([]*models.Crew, error)
	// SetCrewStatus moves a crew from one status to another. It reports false,
	// without error, when the crew was not in status from.
	SetCrewStatus(ctx context.Context, id uuid.UUID, from, to models.CrewStatus) (bool, error)
	// CrewHasActiveJob reports whether any non-terminal job holds the crew.
	CrewHasActiveJob(ctx context.Context, crewID uuid.UUID) (bool, error)
}

// PaymentLedger answers payment questions that guard job operations and
// records payments against a locked job.
type PaymentLedger interface {
	HasCompletedDeposit(ctx context.Context, jobID uuid.UUID) (bool, error)
	CreatePayment(ctx context.Context, p *models.Payment) error
}

// JobFilter selects jobs for listing. ClientID narrows to one client's jobs.
type JobFilter struct {
	TenantID uuid.UUID
	ClientID *uuid.UUID
	Status   models.JobStatus
	Page     int
	Limit    int
}

// Normalize clamps pagination to sane bounds.
func (f JobFilter) Normalize() (limit, offset int) {
	limit = f.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}
