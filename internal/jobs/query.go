package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/clearops/internal/dispatch"
	"github.com/kiranshivaraju/clearops/internal/lifecycle"
	"github.com/kiranshivaraju/clearops/internal/sla"
	"github.com/kiranshivaraju/clearops/internal/store"
	"github.com/kiranshivaraju/clearops/pkg/models"
)

// View is a job as presented to clients: raw status plus its display label
// and SLA standing.
type View struct {
	*models.Job
	DisplayStatus string             `json:"display_status"`
	SLAStatus     sla.Status         `json:"sla_status"`
	SLADeadline   time.Time          `json:"sla_deadline"`
	NextStatuses  []models.JobStatus `json:"next_statuses"`
}

// Tracking is the full progress picture of one job.
type Tracking struct {
	View
	Crew     *CrewSummary      `json:"crew,omitempty"`
	Payments []*models.Payment `json:"payments"`
	Invoice  *models.Invoice   `json:"invoice,omitempty"`
}

// CrewSummary is what a client may see of the assigned crew.
type CrewSummary struct {
	ID          uuid.UUID `json:"id"`
	FullName    string    `json:"full_name"`
	PhoneNumber *string   `json:"phone_number,omitempty"`
}

// StatusView is the lightweight status answer served from cache when possible.
type StatusView struct {
	JobID         uuid.UUID        `json:"job_id"`
	Status        models.JobStatus `json:"status"`
	DisplayStatus string           `json:"display_status"`
}

func (s *Service) get(ctx context.Context, ref Ref) (*models.Job, error) {
	job, err := s.store.GetJob(ctx, ref.JobID, ref.TenantID)
	if err != nil {
		return nil, err
	}
	if !ref.owns(job) {
		return nil, store.ErrNotFound
	}
	return job, nil
}

func (s *Service) view(ctx context.Context, job *models.Job) View {
	v := View{
		Job:           job,
		DisplayStatus: lifecycle.Label(job.Status),
		NextStatuses:  lifecycle.Successors(job.Status),
	}
	if s.sla != nil {
		v.SLAStatus, v.SLADeadline = s.sla.Evaluate(ctx, job)
	} else {
		v.SLAStatus = sla.Evaluate(job, sla.DefaultHours, s.now())
		v.SLADeadline = sla.Deadline(job.CreatedAt, sla.DefaultHours)
	}
	return v
}

// Get returns one job with its SLA standing.
func (s *Service) Get(ctx context.Context, ref Ref) (*View, error) {
	job, err := s.get(ctx, ref)
	if err != nil {
		return nil, err
	}
	v := s.view(ctx, job)
	return &v, nil
}

// List returns a page of jobs with their SLA standing.
func (s *Service) List(ctx context.Context, filter store.JobFilter) ([]View, int, error) {
	if filter.Status != "" && !lifecycle.Valid(filter.Status) {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, filter.Status)
	}
	jobs, total, err := s.store.ListJobs(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("listing jobs: %w", err)
	}

	views := make([]View, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, s.view(ctx, j))
	}
	return views, total, nil
}

// Track returns the job with its crew, payments and invoice.
func (s *Service) Track(ctx context.Context, ref Ref) (*Tracking, error) {
	job, err := s.get(ctx, ref)
	if err != nil {
		return nil, err
	}

	t := &Tracking{View: s.view(ctx, job)}

	if job.AssignedCrewID != nil {
		crew, err := s.store.GetCrew(ctx, *job.AssignedCrewID, job.TenantID)
		switch {
		case err == nil:
			t.Crew = &CrewSummary{ID: crew.ID, FullName: crew.FullName, PhoneNumber: crew.PhoneNumber}
		case !errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("loading crew: %w", err)
		}
	}

	t.Payments, err = s.store.ListPayments(ctx, job.ID, job.TenantID)
	if err != nil {
		return nil, fmt.Errorf("loading payments: %w", err)
	}
	if t.Payments == nil {
		t.Payments = []*models.Payment{}
	}

	inv, err := s.store.GetInvoiceByJobID(ctx, job.ID, job.TenantID)
	switch {
	case err == nil:
		t.Invoice = inv
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("loading invoice: %w", err)
	}
	return t, nil
}

// Status returns the job's current status. Staff lookups (no client scope)
// are served from the status cache; client lookups always check ownership
// against the store.
func (s *Service) Status(ctx context.Context, ref Ref) (*StatusView, error) {
	if ref.ClientID == nil && s.cache != nil {
		cached, found, err := s.cache.GetJobStatus(ctx, ref.TenantID, ref.JobID)
		if err != nil {
			slog.Warn("job status cache read failed", "job_id", ref.JobID, "error", err)
		} else if found && lifecycle.Valid(models.JobStatus(cached)) {
			st := models.JobStatus(cached)
			return &StatusView{JobID: ref.JobID, Status: st, DisplayStatus: lifecycle.Label(st)}, nil
		}
	}

	job, err := s.get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetJobStatus(ctx, job.TenantID, job.ID, string(job.Status), dispatch.StatusCacheTTL); err != nil {
			slog.Warn("failed to cache job status", "job_id", job.ID, "error", err)
		}
	}
	return &StatusView{JobID: job.ID, Status: job.Status, DisplayStatus: lifecycle.Label(job.Status)}, nil
}
