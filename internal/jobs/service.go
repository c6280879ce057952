// Package jobs implements every client, crew and staff operation on a job.
// It is the only caller of the lifecycle state machine: each mutation reads
// the job under lock, checks guards and the transition table, and writes the
// result in one store transaction.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/clearops/internal/billing"
	"github.com/kiranshivaraju/clearops/internal/cache"
	"github.com/kiranshivaraju/clearops/internal/dispatch"
	"github.com/kiranshivaraju/clearops/internal/geocode"
	"github.com/kiranshivaraju/clearops/internal/notify"
	"github.com/kiranshivaraju/clearops/internal/sla"
	"github.com/kiranshivaraju/clearops/internal/store"
	"github.com/kiranshivaraju/clearops/pkg/models"
)

// ErrValidation marks malformed input. Handlers map it to 400.
var ErrValidation = errors.New("invalid request")

// Ref identifies a job as seen by a caller. A non-nil ClientID restricts
// access to that client's jobs; jobs owned by someone else are reported as
// not found.
type Ref struct {
	TenantID uuid.UUID
	JobID    uuid.UUID
	ClientID *uuid.UUID
}

func (r Ref) owns(job *models.Job) bool {
	if r.ClientID == nil {
		return true
	}
	return job.ClientID != nil && *job.ClientID == *r.ClientID
}

// Deps are the collaborators of a Service. Cache and Notifier may be nil.
type Deps struct {
	Store         store.Store
	Dispatcher    *dispatch.Engine
	Geocoder      geocode.Geocoder
	SLA           *sla.Policy
	Invoices      *billing.Issuer
	Notifier      notify.Sender
	Cache         cache.Cache
	NotifyTimeout time.Duration
}

// Service orchestrates job operations.
type Service struct {
	store         store.Store
	dispatcher    *dispatch.Engine
	geocoder      geocode.Geocoder
	sla           *sla.Policy
	invoices      *billing.Issuer
	notifier      notify.Sender
	cache         cache.Cache
	notifyTimeout time.Duration
	now           func() time.Time
}

// NewService creates a new Service.
func NewService(d Deps) *Service {
	timeout := d.NotifyTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	geocoder := d.Geocoder
	if geocoder == nil {
		geocoder = geocode.Disabled{}
	}
	return &Service{
		store:         d.Store,
		dispatcher:    d.Dispatcher,
		geocoder:      geocoder,
		sla:           d.SLA,
		invoices:      d.Invoices,
		notifier:      d.Notifier,
		cache:         d.Cache,
		notifyTimeout: timeout,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// mutate loads the job under lock, applies fn and persists the result. An
// error from fn rolls back everything fn wrote through tx.
func (s *Service) mutate(ctx context.Context, ref Ref, fn func(tx store.Tx, job *models.Job) error) (*models.Job, models.JobStatus, error) {
	var (
		job  *models.Job
		from models.JobStatus
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		j, err := tx.GetJobForUpdate(ctx, ref.JobID, ref.TenantID)
		if err != nil {
			return err
		}
		if !ref.owns(j) {
			return store.ErrNotFound
		}
		from = j.Status
		if err := fn(tx, j); err != nil {
			return err
		}
		if err := tx.UpdateJob(ctx, j); err != nil {
			return err
		}
		job = j
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return job, from, nil
}

// releaseCrew returns the job's crew to the available pool. A crew that is
// not currently assigned (taken offline by an admin, say) is left alone.
func releaseCrew(ctx context.Context, tx store.Tx, job *models.Job) error {
	if job.AssignedCrewID == nil {
		return nil
	}
	released, err := tx.SetCrewStatus(ctx, *job.AssignedCrewID, models.CrewStatusAssigned, models.CrewStatusAvailable)
	if err != nil {
		return err
	}
	if !released {
		slog.Warn("crew was not in assigned state on release",
			"job_id", job.ID, "crew_id", *job.AssignedCrewID)
	}
	return nil
}

// afterCommit refreshes the status cache and tells the client about the
// change. Neither step can fail the operation.
func (s *Service) afterCommit(ctx context.Context, job *models.Job, from models.JobStatus, reason string) {
	if s.cache != nil {
		if err := s.cache.SetJobStatus(ctx, job.TenantID, job.ID, string(job.Status), dispatch.StatusCacheTTL); err != nil {
			slog.Warn("failed to cache job status", "job_id", job.ID, "error", err)
		}
	}

	if s.notifier == nil || from == job.Status {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()

	err := s.notifier.JobStatusChanged(nctx, notify.StatusChange{
		TenantID:  job.TenantID,
		JobID:     job.ID,
		ClientID:  job.ClientID,
		From:      from,
		To:        job.Status,
		Reason:    reason,
		ChangedAt: job.UpdatedAt,
	})
	if err != nil {
		slog.Warn("status notification failed", "job_id", job.ID, "status", job.Status, "error", err)
	}
}
