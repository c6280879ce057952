// Package notify tells crews and clients about job events. Delivery is best
// effort: callers log failures and never roll back on them.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/clearops/pkg/models"
	"github.com/redis/go-redis/v9"
)

const (
	EventJobAssigned      = "job.assigned"
	EventJobStatusChanged = "job.status_changed"
)

// Assignment describes a crew that was just dispatched to a job.
type Assignment struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	JobID      uuid.UUID `json:"job_id"`
	CrewID     uuid.UUID `json:"crew_id"`
	CrewName   string    `json:"crew_name"`
	CrewEmail  string    `json:"crew_email"`
	Address    string    `json:"property_address"`
	DistanceKm float64   `json:"distance_km"`
	AssignedAt time.Time `json:"assigned_at"`
}

// StatusChange describes a client-visible status move.
type StatusChange struct {
	TenantID  uuid.UUID        `json:"tenant_id"`
	JobID     uuid.UUID        `json:"job_id"`
	ClientID  *uuid.UUID       `json:"client_id,omitempty"`
	From      models.JobStatus `json:"from"`
	To        models.JobStatus `json:"to"`
	Reason    string           `json:"reason,omitempty"`
	ChangedAt time.Time        `json:"changed_at"`
}

// Sender delivers job notifications.
type Sender interface {
	JobAssigned(ctx context.Context, a Assignment) error
	JobStatusChanged(ctx context.Context, c StatusChange) error
}

// StreamSender appends notifications to a Redis stream. Email and push
// delivery workers consume the stream.
type StreamSender struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

// NewStreamSender creates a StreamSender. The stream is trimmed to roughly maxLen entries.
func NewStreamSender(client redis.Cmdable, stream string, maxLen int64) *StreamSender {
	return &StreamSender{client: client, stream: stream, maxLen: maxLen}
}

func (s *StreamSender) JobAssigned(ctx context.Context, a Assignment) error {
	return s.publish(ctx, EventJobAssigned, a.TenantID, a.JobID, a)
}

func (s *StreamSender) JobStatusChanged(ctx context.Context, c StatusChange) error {
	return s.publish(ctx, EventJobStatusChanged, c.TenantID, c.JobID, c)
}

func (s *StreamSender) publish(ctx context.Context, event string, tenantID, jobID uuid.UUID, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"event":     event,
			"tenant_id": tenantID.String(),
			"job_id":    jobID.String(),
			"data":      string(data),
			"timestamp": time.Now().Unix(),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event, err)
	}
	return nil
}

// LogSender only logs notifications. Used when no stream is configured.
type LogSender struct{}

func (LogSender) JobAssigned(_ context.Context, a Assignment) error {
	slog.Info("crew assigned",
		"job_id", a.JobID, "crew_id", a.CrewID, "distance_km", a.DistanceKm)
	return nil
}

func (LogSender) JobStatusChanged(_ context.Context, c StatusChange) error {
	slog.Info("job status changed",
		"job_id", c.JobID, "from", c.From, "to", c.To)
	return nil
}
