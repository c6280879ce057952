// Package dispatch assigns the nearest available crew to a job.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/clearops/internal/cache"
	"github.com/kiranshivaraju/clearops/internal/geo"
	"github.com/kiranshivaraju/clearops/internal/lifecycle"
	"github.com/kiranshivaraju/clearops/internal/notify"
	"github.com/kiranshivaraju/clearops/internal/store"
	"github.com/kiranshivaraju/clearops/pkg/models"
)

// Outcome is the result of a dispatch attempt.
type Outcome string

const (
	Assigned          Outcome = "assigned"
	SkippedNoLocation Outcome = "skipped_no_location"
	SkippedNoCrew     Outcome = "skipped_no_crew"
)

// StatusCacheTTL bounds how long a cached job status may be served.
const StatusCacheTTL = 10 * time.Minute

const defaultNotifyTimeout = 5 * time.Second

// Result describes what Dispatch did. Skips are results, not errors: the job
// simply stays where it was.
type Result struct {
	Outcome    Outcome      `json:"outcome"`
	Job        *models.Job  `json:"job"`
	Crew       *models.Crew `json:"crew,omitempty"`
	DistanceKm float64      `json:"distance_km,omitempty"`

	from models.JobStatus
}

// Engine runs dispatch. One Engine is shared by all requests.
type Engine struct {
	store         store.Store
	notifier      notify.Sender
	cache         cache.Cache
	notifyTimeout time.Duration
	now           func() time.Time
}

// NewEngine creates an Engine. c may be nil to skip status caching.
func NewEngine(s store.Store, n notify.Sender, c cache.Cache) *Engine {
	return &Engine{
		store:         s,
		notifier:      n,
		cache:         c,
		notifyTimeout: defaultNotifyTimeout,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithNotifyTimeout bounds each post-commit notification. Non-positive
// values keep the default.
func (e *Engine) WithNotifyTimeout(d time.Duration) *Engine {
	if d > 0 {
		e.notifyTimeout = d
	}
	return e
}

// Dispatchable reports whether a job can be auto-dispatched in its current state.
func Dispatchable(job *models.Job) bool {
	return job.AssignedCrewID == nil && lifecycle.CanTransition(job.Status, models.JobStatusCrewDispatched)
}

// Dispatch picks the nearest available crew for the job and moves the job to
// crew_dispatched. The job row lock and the crew claim share one transaction,
// so two concurrent dispatches can never take the same crew.
func (e *Engine) Dispatch(ctx context.Context, tenantID, jobID uuid.UUID) (*Result, error) {
	var res *Result
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		job, err := tx.GetJobForUpdate(ctx, jobID, tenantID)
		if err != nil {
			return err
		}
		res, err = e.assign(ctx, tx, job)
		return err
	})
	if errors.Is(err, store.ErrDuplicateKey) {
		// Another job holds the claimed crew; the rollback restored both rows.
		slog.Warn("dispatch lost crew claim", "tenant_id", tenantID, "job_id", jobID, "error", err)
		job, gerr := e.store.GetJob(ctx, jobID, tenantID)
		if gerr != nil {
			return nil, fmt.Errorf("dispatch job %s: %w", jobID, gerr)
		}
		res, err = &Result{Outcome: SkippedNoCrew, Job: job}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dispatch job %s: %w", jobID, err)
	}

	switch res.Outcome {
	case Assigned:
		slog.Info("crew dispatched",
			"tenant_id", tenantID, "job_id", jobID, "crew_id", res.Crew.ID, "distance_km", res.DistanceKm)
		e.afterAssign(ctx, res)
	default:
		slog.Info("dispatch skipped", "tenant_id", tenantID, "job_id", jobID, "outcome", res.Outcome)
	}
	return res, nil
}

func (e *Engine) assign(ctx context.Context, tx store.Tx, job *models.Job) (*Result, error) {
	if !Dispatchable(job) {
		return nil, fmt.Errorf("%w: job is %s", lifecycle.ErrInvalidTransition, job.Status)
	}

	origin, ok := geo.PointFrom(job.Latitude, job.Longitude)
	if !ok {
		return &Result{Outcome: SkippedNoLocation, Job: job}, nil
	}

	available, err := tx.ListAvailableCrews(ctx, job.TenantID)
	if err != nil {
		return nil, err
	}

	for _, cand := range Rank(origin, available) {
		claimed, err := tx.SetCrewStatus(ctx, cand.Crew.ID, models.CrewStatusAvailable, models.CrewStatusAssigned)
		if err != nil {
			return nil, err
		}
		if !claimed {
			continue
		}
		// A crew marked available while a job still holds it stays claimed,
		// which puts its status right again.
		busy, err := tx.CrewHasActiveJob(ctx, cand.Crew.ID)
		if err != nil {
			return nil, err
		}
		if busy {
			slog.Warn("available crew already holds a job", "tenant_id", job.TenantID, "crew_id", cand.Crew.ID)
			continue
		}

		from := job.Status
		crewID := cand.Crew.ID
		job.AssignedCrewID = &crewID
		if err := lifecycle.Transition(job, models.JobStatusCrewDispatched, e.now()); err != nil {
			return nil, err
		}
		if err := tx.UpdateJob(ctx, job); err != nil {
			return nil, err
		}

		cand.Crew.Status = models.CrewStatusAssigned
		return &Result{Outcome: Assigned, Job: job, Crew: cand.Crew, DistanceKm: cand.DistanceKm, from: from}, nil
	}

	return &Result{Outcome: SkippedNoCrew, Job: job}, nil
}

// afterAssign runs once the assignment is committed. Failures here are logged
// and never undo the assignment.
func (e *Engine) afterAssign(ctx context.Context, res *Result) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.notifyTimeout)
	defer cancel()

	if e.cache != nil {
		if err := e.cache.SetJobStatus(ctx, res.Job.TenantID, res.Job.ID, string(res.Job.Status), StatusCacheTTL); err != nil {
			slog.Warn("failed to cache job status", "job_id", res.Job.ID, "error", err)
		}
	}

	if e.notifier == nil {
		return
	}
	err := e.notifier.JobStatusChanged(ctx, notify.StatusChange{
		TenantID:  res.Job.TenantID,
		JobID:     res.Job.ID,
		ClientID:  res.Job.ClientID,
		From:      res.from,
		To:        res.Job.Status,
		ChangedAt: res.Job.UpdatedAt,
	})
	if err != nil {
		slog.Warn("status notification failed", "job_id", res.Job.ID, "error", err)
	}

	err = e.notifier.JobAssigned(ctx, notify.Assignment{
		TenantID:   res.Job.TenantID,
		JobID:      res.Job.ID,
		CrewID:     res.Crew.ID,
		CrewName:   res.Crew.FullName,
		CrewEmail:  res.Crew.Email,
		Address:    res.Job.PropertyAddress,
		DistanceKm: res.DistanceKm,
		AssignedAt: res.Job.UpdatedAt,
	})
	if err != nil {
		slog.Warn("crew notification failed", "job_id", res.Job.ID, "crew_id", res.Crew.ID, "error", err)
	}
}
