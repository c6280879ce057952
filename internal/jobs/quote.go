package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kiranshivaraju/clearops/internal/lifecycle"
	"github.com/kiranshivaraju/clearops/internal/store"
	"github.com/kiranshivaraju/clearops/pkg/models"
)

// QuoteParams is a staff quote for a job.
type QuoteParams struct {
	Amount  float64
	Deposit *float64
	Notes   *string
}

func (p QuoteParams) validate() error {
	if p.Amount <= 0 {
		return fmt.Errorf("%w: quote amount must be positive", ErrValidation)
	}
	if p.Deposit != nil && (*p.Deposit < 0 || *p.Deposit > p.Amount) {
		return fmt.Errorf("%w: deposit must be between 0 and the quote amount", ErrValidation)
	}
	return nil
}

// SendQuote records a quote and moves the job to quote_sent. Re-quoting a
// declined quote is allowed.
func (s *Service) SendQuote(ctx context.Context, ref Ref, p QuoteParams) (*models.Job, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	job, from, err := s.mutate(ctx, ref, func(_ store.Tx, j *models.Job) error {
		if err := lifecycle.Transition(j, models.JobStatusQuoteSent, s.now()); err != nil {
			return err
		}
		amount := p.Amount
		j.QuoteAmount = &amount
		j.DepositAmount = p.Deposit
		j.QuoteNotes = p.Notes
		j.DeclineReason = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("quote sent", "job_id", job.ID, "amount", p.Amount)
	s.afterCommit(ctx, job, from, "")
	return job, nil
}

// ApproveQuote accepts the outstanding quote. A quote that was already
// approved or declined fails with ErrInvalidTransition.
func (s *Service) ApproveQuote(ctx context.Context, ref Ref) (*models.Job, error) {
	job, from, err := s.mutate(ctx, ref, func(_ store.Tx, j *models.Job) error {
		if err := lifecycle.Require(j, models.JobStatusQuoteSent); err != nil {
			return fmt.Errorf("quote already processed: %w", err)
		}
		return lifecycle.Transition(j, models.JobStatusQuoteAccepted, s.now())
	})
	if err != nil {
		return nil, err
	}
	slog.Info("quote approved", "job_id", job.ID)
	s.afterCommit(ctx, job, from, "")
	return job, nil
}

// DeclineQuote rejects the outstanding quote with an optional reason. A crew
// dispatched ahead of the quote goes back to the pool; a re-quoted job is
// dispatched again once accepted.
func (s *Service) DeclineQuote(ctx context.Context, ref Ref, reason string) (*models.Job, error) {
	reason = strings.TrimSpace(reason)

	job, from, err := s.mutate(ctx, ref, func(tx store.Tx, j *models.Job) error {
		if err := lifecycle.Require(j, models.JobStatusQuoteSent); err != nil {
			return fmt.Errorf("quote already processed: %w", err)
		}
		if err := lifecycle.Transition(j, models.JobStatusQuoteRejected, s.now()); err != nil {
			return err
		}
		if reason != "" {
			j.DeclineReason = &reason
		}
		if err := releaseCrew(ctx, tx, j); err != nil {
			return err
		}
		j.AssignedCrewID = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("quote declined", "job_id", job.ID)
	s.afterCommit(ctx, job, from, reason)
	return job, nil
}
