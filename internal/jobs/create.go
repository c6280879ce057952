package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/clearops/internal/dispatch"
	"github.com/kiranshivaraju/clearops/internal/geo"
	"github.com/kiranshivaraju/clearops/internal/lifecycle"
	"github.com/kiranshivaraju/clearops/internal/store"
	"github.com/kiranshivaraju/clearops/pkg/models"
)

// JobParams is a clearance request as submitted by a client or a draft form.
type JobParams struct {
	UrgencyLevelID  *uuid.UUID
	ServiceType     string
	PropertySize    *string
	VanLoads        *int
	WasteTypes      *string
	PropertyAddress string
	PreferredDate   string
	PreferredTime   string
	AdditionalInfo  *string
}

func (p *JobParams) normalize() {
	p.ServiceType = strings.TrimSpace(p.ServiceType)
	p.PropertyAddress = strings.TrimSpace(p.PropertyAddress)
	p.PreferredDate = strings.TrimSpace(p.PreferredDate)
	p.PreferredTime = strings.TrimSpace(p.PreferredTime)
}

func (p JobParams) validate() error {
	switch {
	case p.ServiceType == "":
		return fmt.Errorf("%w: service_type is required", ErrValidation)
	case p.PropertyAddress == "":
		return fmt.Errorf("%w: property_address is required", ErrValidation)
	case p.PreferredDate == "":
		return fmt.Errorf("%w: preferred_date is required", ErrValidation)
	case p.PreferredTime == "":
		return fmt.Errorf("%w: preferred_time is required", ErrValidation)
	case p.VanLoads != nil && *p.VanLoads < 0:
		return fmt.Errorf("%w: van_loads must not be negative", ErrValidation)
	}
	return nil
}

// CreateResult is a newly created job and what dispatch made of it.
// Dispatch is nil when dispatch could not be attempted.
type CreateResult struct {
	Job      *models.Job      `json:"job"`
	Dispatch *dispatch.Result `json:"dispatch,omitempty"`
}

func (s *Service) checkParams(ctx context.Context, p *JobParams) error {
	p.normalize()
	if err := p.validate(); err != nil {
		return err
	}
	if p.UrgencyLevelID == nil {
		return nil
	}
	if _, err := s.store.GetUrgencyLevel(ctx, *p.UrgencyLevelID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: unknown urgency level %s", ErrValidation, *p.UrgencyLevelID)
		}
		return fmt.Errorf("lookup urgency level: %w", err)
	}
	return nil
}

func (s *Service) newJob(tenantID uuid.UUID, clientID *uuid.UUID, status models.JobStatus, p JobParams) *models.Job {
	now := s.now()
	return &models.Job{
		ID:              uuid.New(),
		TenantID:        tenantID,
		ClientID:        clientID,
		UrgencyLevelID:  p.UrgencyLevelID,
		ServiceType:     p.ServiceType,
		PropertySize:    p.PropertySize,
		VanLoads:        p.VanLoads,
		WasteTypes:      p.WasteTypes,
		PropertyAddress: p.PropertyAddress,
		PreferredDate:   p.PreferredDate,
		PreferredTime:   p.PreferredTime,
		AdditionalInfo:  p.AdditionalInfo,
		Status:          status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// locate geocodes the address. Failures are logged and reported as "no location".
func (s *Service) locate(ctx context.Context, address string) (*float64, *float64) {
	p, ok, err := s.geocoder.Resolve(ctx, address)
	if err != nil {
		slog.Warn("geocoding failed", "geocoder", s.geocoder.Name(), "error", err)
		return nil, nil
	}
	if !ok {
		slog.Info("address not located", "geocoder", s.geocoder.Name())
		return nil, nil
	}
	return &p.Lat, &p.Lon
}

// dispatchNew runs dispatch for a job that was just created or confirmed.
// A dispatch failure leaves the job in job_created and is only logged.
func (s *Service) dispatchNew(ctx context.Context, job *models.Job) *CreateResult {
	res := &CreateResult{Job: job}
	if s.dispatcher == nil {
		return res
	}

	dr, err := s.dispatcher.Dispatch(ctx, job.TenantID, job.ID)
	if err != nil {
		slog.Error("dispatch failed", "job_id", job.ID, "error", err)
		return res
	}
	res.Dispatch = dr
	res.Job = dr.Job
	return res
}

// Create submits a job for an authenticated client, geocodes its address and
// tries to dispatch the nearest crew.
func (s *Service) Create(ctx context.Context, tenantID, clientID uuid.UUID, p JobParams) (*CreateResult, error) {
	if err := s.checkParams(ctx, &p); err != nil {
		return nil, err
	}

	job := s.newJob(tenantID, &clientID, models.JobStatusCreated, p)
	job.Latitude, job.Longitude = s.locate(ctx, job.PropertyAddress)

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}
	slog.Info("job created", "tenant_id", tenantID, "job_id", job.ID, "located", job.HasLocation())
	s.afterCommit(ctx, job, job.Status, "")

	return s.dispatchNew(ctx, job), nil
}

// CreateDraft stores an anonymous request in pending. It has no client and is
// neither geocoded nor dispatched until confirmed.
func (s *Service) CreateDraft(ctx context.Context, tenantID uuid.UUID, p JobParams) (*models.Job, error) {
	if err := s.checkParams(ctx, &p); err != nil {
		return nil, err
	}

	job := s.newJob(tenantID, nil, models.JobStatusPending, p)
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating draft: %w", err)
	}
	slog.Info("draft created", "tenant_id", tenantID, "job_id", job.ID)
	return job, nil
}

// GetDraft returns a job that is still a draft. Confirmed jobs are only
// reachable through their owner.
func (s *Service) GetDraft(ctx context.Context, tenantID, jobID uuid.UUID) (*models.Job, error) {
	job, err := s.store.GetJob(ctx, jobID, tenantID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusPending {
		return nil, store.ErrNotFound
	}
	return job, nil
}

// ConfirmDraft attaches the now-authenticated client to a draft, moves it to
// job_created and dispatches it like a direct submission.
func (s *Service) ConfirmDraft(ctx context.Context, tenantID, jobID, clientID uuid.UUID) (*CreateResult, error) {
	draft, err := s.store.GetJob(ctx, jobID, tenantID)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.Require(draft, models.JobStatusPending); err != nil {
		return nil, err
	}

	var lat, lon *float64
	if draft.HasLocation() {
		lat, lon = draft.Latitude, draft.Longitude
	} else {
		lat, lon = s.locate(ctx, draft.PropertyAddress)
	}

	job, from, err := s.mutate(ctx, Ref{TenantID: tenantID, JobID: jobID}, func(_ store.Tx, j *models.Job) error {
		if err := lifecycle.Require(j, models.JobStatusPending); err != nil {
			return err
		}
		if err := lifecycle.Transition(j, models.JobStatusCreated, s.now()); err != nil {
			return err
		}
		j.ClientID = &clientID
		j.Latitude, j.Longitude = lat, lon
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("draft confirmed", "tenant_id", tenantID, "job_id", jobID, "located", job.HasLocation())
	s.afterCommit(ctx, job, from, "")

	return s.dispatchNew(ctx, job), nil
}

// Dispatch retries automatic crew assignment, e.g. after a skip or once a
// quote is accepted.
func (s *Service) Dispatch(ctx context.Context, ref Ref) (*dispatch.Result, error) {
	job, err := s.get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !job.HasLocation() {
		job.Latitude, job.Longitude = s.locate(ctx, job.PropertyAddress)
		if job.HasLocation() {
			if _, _, err := s.mutate(ctx, ref, func(_ store.Tx, j *models.Job) error {
				j.Latitude, j.Longitude = job.Latitude, job.Longitude
				return nil
			}); err != nil {
				return nil, err
			}
		}
	}
	if s.dispatcher == nil {
		return &dispatch.Result{Outcome: dispatch.SkippedNoCrew, Job: job}, nil
	}
	return s.dispatcher.Dispatch(ctx, ref.TenantID, ref.JobID)
}

// point returns the job's coordinates if it has them.
func point(job *models.Job) (geo.Point, bool) {
	return geo.PointFrom(job.Latitude, job.Longitude)
}
