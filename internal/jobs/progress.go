package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/clearops/internal/geo"
	"github.com/kiranshivaraju/clearops/internal/lifecycle"
	"github.com/kiranshivaraju/clearops/internal/notify"
	"github.com/kiranshivaraju/clearops/internal/sla"
	"github.com/kiranshivaraju/clearops/internal/store"
	"github.com/kiranshivaraju/clearops/pkg/models"
)

// Statuses a crew may report through Advance. Completion, cancellation and
// quote decisions have dedicated operations with their own guards.
var progressStatuses = []models.JobStatus{
	models.JobStatusCrewDispatched,
	models.JobStatusCrewArrived,
	models.JobStatusBeforePhoto,
	models.JobStatusClearanceInProgress,
	models.JobStatusAfterPhoto,
	models.JobStatusWorkCompleted,
}

// AssignCrew manually assigns a specific crew. The crew must be approved and
// available; it is claimed in the same transaction as the job update.
func (s *Service) AssignCrew(ctx context.Context, ref Ref, crewID uuid.UUID) (*models.Job, error) {
	var crew *models.Crew
	job, from, err := s.mutate(ctx, ref, func(tx store.Tx, j *models.Job) error {
		if j.AssignedCrewID != nil {
			return fmt.Errorf("%w: job already has crew %s", lifecycle.ErrGuardViolation, *j.AssignedCrewID)
		}
		if !lifecycle.CanTransition(j.Status, models.JobStatusCrewAssigned) {
			return fmt.Errorf("%w: %s -> %s", lifecycle.ErrInvalidTransition, j.Status, models.JobStatusCrewAssigned)
		}

		c, err := tx.GetCrew(ctx, crewID, j.TenantID)
		if err != nil {
			return err
		}
		if !c.IsApproved {
			return fmt.Errorf("%w: crew %s is not approved", lifecycle.ErrGuardViolation, crewID)
		}
		claimed, err := tx.SetCrewStatus(ctx, crewID, models.CrewStatusAvailable, models.CrewStatusAssigned)
		if err != nil {
			return err
		}
		if !claimed {
			return fmt.Errorf("%w: crew %s is not available", lifecycle.ErrGuardViolation, crewID)
		}
		busy, err := tx.CrewHasActiveJob(ctx, crewID)
		if err != nil {
			return err
		}
		if busy {
			return fmt.Errorf("%w: crew %s already holds an active job", lifecycle.ErrGuardViolation, crewID)
		}

		j.AssignedCrewID = &crewID
		if err := lifecycle.Transition(j, models.JobStatusCrewAssigned, s.now()); err != nil {
			return err
		}
		crew = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("crew assigned", "job_id", job.ID, "crew_id", crewID)
	s.afterCommit(ctx, job, from, "")
	s.notifyAssignment(ctx, job, crew)
	return job, nil
}

func (s *Service) notifyAssignment(ctx context.Context, job *models.Job, crew *models.Crew) {
	if s.notifier == nil {
		return
	}
	var distance float64
	if jp, ok := point(job); ok {
		if cp, ok := geo.PointFrom(crew.Latitude, crew.Longitude); ok {
			distance = geo.Haversine(jp, cp)
		}
	}

	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()
	err := s.notifier.JobAssigned(nctx, notify.Assignment{
		TenantID:   job.TenantID,
		JobID:      job.ID,
		CrewID:     crew.ID,
		CrewName:   crew.FullName,
		CrewEmail:  crew.Email,
		Address:    job.PropertyAddress,
		DistanceKm: distance,
		AssignedAt: job.UpdatedAt,
	})
	if err != nil {
		slog.Warn("crew notification failed", "job_id", job.ID, "crew_id", crew.ID, "error", err)
	}
}

// Advance records crew progress through the work stages.
func (s *Service) Advance(ctx context.Context, ref Ref, to models.JobStatus) (*models.Job, error) {
	if !slices.Contains(progressStatuses, to) {
		return nil, fmt.Errorf("%w: %q is not a progress status", ErrValidation, to)
	}

	job, from, err := s.mutate(ctx, ref, func(_ store.Tx, j *models.Job) error {
		return lifecycle.Transition(j, to, s.now())
	})
	if err != nil {
		return nil, err
	}
	slog.Info("job advanced", "job_id", job.ID, "from", from, "to", to)
	s.afterCommit(ctx, job, from, "")
	return job, nil
}

// CompletionResult is a completed job with its SLA verdict and invoice.
// Invoice is nil when issuing failed; the completion itself stands.
type CompletionResult struct {
	Job       *models.Job     `json:"job"`
	SLAStatus sla.Status      `json:"sla_status"`
	Invoice   *models.Invoice `json:"invoice,omitempty"`
}

// Complete closes out a job whose work is done: the crew is released in the
// same transaction, then the SLA is evaluated and an invoice issued.
func (s *Service) Complete(ctx context.Context, ref Ref) (*CompletionResult, error) {
	job, from, err := s.mutate(ctx, ref, func(tx store.Tx, j *models.Job) error {
		if err := lifecycle.Transition(j, models.JobStatusCompleted, s.now()); err != nil {
			return err
		}
		return releaseCrew(ctx, tx, j)
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, job, from, "")

	res := &CompletionResult{Job: job}
	if s.sla != nil {
		status, deadline := s.sla.Evaluate(ctx, job)
		res.SLAStatus = status
		slog.Info("job completed", "job_id", job.ID, "sla_status", status, "deadline", deadline)
	}

	if s.invoices != nil {
		inv, err := s.invoices.Issue(ctx, job)
		if err != nil {
			slog.Error("invoice issue failed", "job_id", job.ID, "error", err)
		} else {
			res.Invoice = inv
		}
	}
	return res, nil
}

// Cancel cancels a job before work starts. A completed deposit blocks
// cancellation whatever the status; the crew, if any, is released.
func (s *Service) Cancel(ctx context.Context, ref Ref, reason string) (*models.Job, error) {
	reason = strings.TrimSpace(reason)

	job, from, err := s.mutate(ctx, ref, func(tx store.Tx, j *models.Job) error {
		paid, err := tx.HasCompletedDeposit(ctx, j.ID)
		if err != nil {
			return err
		}
		if paid {
			return fmt.Errorf("%w: cannot cancel after the deposit has been paid", lifecycle.ErrGuardViolation)
		}
		if !lifecycle.Cancellable(j.Status) {
			return fmt.Errorf("%w: job cannot be cancelled from %s", lifecycle.ErrInvalidTransition, j.Status)
		}
		if err := lifecycle.Transition(j, models.JobStatusCancelled, s.now()); err != nil {
			return err
		}
		if reason != "" {
			j.CancellationReason = &reason
		}
		return releaseCrew(ctx, tx, j)
	})
	if err != nil {
		return nil, err
	}
	slog.Info("job cancelled", "job_id", job.ID, "from", from)
	s.afterCommit(ctx, job, from, reason)
	return job, nil
}

// Rate stores the client's 1-5 rating of a completed job. A job can be rated once.
func (s *Service) Rate(ctx context.Context, ref Ref, rating int) (*models.Job, error) {
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrValidation)
	}

	job, _, err := s.mutate(ctx, ref, func(_ store.Tx, j *models.Job) error {
		if err := lifecycle.Require(j, models.JobStatusCompleted); err != nil {
			return err
		}
		if j.Rating != nil {
			return fmt.Errorf("%w: job already rated", lifecycle.ErrGuardViolation)
		}
		j.Rating = &rating
		j.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("job rated", "job_id", job.ID, "rating", rating)
	return job, nil
}
