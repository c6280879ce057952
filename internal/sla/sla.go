// Package sla computes service-level deadlines for jobs from their urgency level.
package sla

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/clearops/internal/cache"
	"github.com/kiranshivaraju/clearops/pkg/models"
)

// DefaultHours applies when a job has no resolvable urgency level.
const DefaultHours = 24

// Status is the customer-facing SLA verdict.
type Status string

const (
	Met      Status = "SLA Met"
	Breached Status = "SLA Breached"
	OnTrack  Status = "On Track"
)

// Deadline is createdAt plus the SLA window.
func Deadline(createdAt time.Time, slaHours int) time.Time {
	return createdAt.Add(time.Duration(slaHours) * time.Hour)
}

// Evaluate derives the SLA status of job. Completed jobs are judged by the time
// they reached job_completed; everything else by now.
func Evaluate(job *models.Job, slaHours int, now time.Time) Status {
	deadline := Deadline(job.CreatedAt, slaHours)

	if job.Status == models.JobStatusCompleted {
		finished := job.UpdatedAt
		if job.CompletedAt != nil {
			finished = *job.CompletedAt
		}
		if finished.After(deadline) {
			return Breached
		}
		return Met
	}

	if now.After(deadline) {
		return Breached
	}
	return OnTrack
}

// UrgencyLookup resolves urgency levels by id.
type UrgencyLookup interface {
	GetUrgencyLevel(ctx context.Context, id uuid.UUID) (*models.UrgencyLevel, error)
}

// Policy resolves SLA hours for a job, caching urgency lookups in Redis.
// Lookup failures fall back to DefaultHours.
type Policy struct {
	levels UrgencyLookup
	cache  cache.Cache
	ttl    time.Duration
	now    func() time.Time
}

// NewPolicy creates a Policy. c may be nil to disable caching.
func NewPolicy(levels UrgencyLookup, c cache.Cache, ttl time.Duration) *Policy {
	return &Policy{levels: levels, cache: c, ttl: ttl, now: time.Now}
}

// Hours returns the SLA window for an urgency level reference.
func (p *Policy) Hours(ctx context.Context, urgencyID *uuid.UUID) int {
	if urgencyID == nil {
		return DefaultHours
	}

	key := cache.UrgencyLevelKey(*urgencyID)
	if p.cache != nil {
		if raw, found, err := p.cache.Get(ctx, key); err == nil && found {
			if h, err := strconv.Atoi(string(raw)); err == nil {
				return h
			}
		}
	}

	level, err := p.levels.GetUrgencyLevel(ctx, *urgencyID)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Warn("urgency level lookup failed, using default SLA",
				"urgency_level_id", *urgencyID, "error", err)
		}
		return DefaultHours
	}
	if level.SLAHours <= 0 {
		return DefaultHours
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, key, []byte(strconv.Itoa(level.SLAHours)), p.ttl); err != nil {
			slog.Warn("failed to cache urgency level", "urgency_level_id", *urgencyID, "error", err)
		}
	}
	return level.SLAHours
}

// Evaluate resolves the job's SLA window and evaluates it against the current time.
func (p *Policy) Evaluate(ctx context.Context, job *models.Job) (Status, time.Time) {
	hours := p.Hours(ctx, job.UrgencyLevelID)
	return Evaluate(job, hours, p.now()), Deadline(job.CreatedAt, hours)
}
