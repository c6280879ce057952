package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/clearops/internal/lifecycle"
	"github.com/kiranshivaraju/clearops/internal/store"
	"github.com/kiranshivaraju/clearops/pkg/models"
)

var (
	paymentTypes    = map[string]bool{models.PaymentTypeDeposit: true, models.PaymentTypeFinal: true}
	paymentStatuses = map[string]bool{
		models.PaymentStatusPending:   true,
		models.PaymentStatusCompleted: true,
		models.PaymentStatusFailed:    true,
		models.PaymentStatusRefunded:  true,
	}
)

// PaymentParams is a payment reported by the payment provider integration.
type PaymentParams struct {
	Type          string
	Amount        float64
	Status        string
	Method        *string
	TransactionID *string
}

func (p *PaymentParams) normalize() {
	p.Type = strings.ToLower(strings.TrimSpace(p.Type))
	p.Status = strings.ToLower(strings.TrimSpace(p.Status))
	if p.Status == "" {
		p.Status = models.PaymentStatusPending
	}
}

func (p PaymentParams) validate() error {
	switch {
	case !paymentTypes[p.Type]:
		return fmt.Errorf("%w: payment_type must be deposit or final", ErrValidation)
	case !paymentStatuses[p.Status]:
		return fmt.Errorf("%w: unknown payment_status %q", ErrValidation, p.Status)
	case p.Amount <= 0:
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	return nil
}

// RecordPayment adds a payment to the job's ledger. A completed deposit is
// what blocks later cancellation, so the payment is written under the job's
// row lock and a cancelled job cannot take one.
func (s *Service) RecordPayment(ctx context.Context, ref Ref, p PaymentParams) (*models.Payment, error) {
	p.normalize()
	if err := p.validate(); err != nil {
		return nil, err
	}

	var pay *models.Payment
	job, _, err := s.mutate(ctx, ref, func(tx store.Tx, j *models.Job) error {
		if j.Status == models.JobStatusCancelled &&
			p.Type == models.PaymentTypeDeposit && p.Status == models.PaymentStatusCompleted {
			return fmt.Errorf("%w: job is cancelled", lifecycle.ErrGuardViolation)
		}

		now := s.now()
		pay = &models.Payment{
			ID:            uuid.New(),
			TenantID:      j.TenantID,
			JobID:         j.ID,
			Type:          p.Type,
			Amount:        p.Amount,
			Status:        p.Status,
			Method:        p.Method,
			TransactionID: p.TransactionID,
			CreatedAt:     now,
		}
		if p.Status == models.PaymentStatusCompleted {
			pay.PaidAt = &now
		}
		if err := tx.CreatePayment(ctx, pay); err != nil {
			return fmt.Errorf("recording payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("payment recorded", "job_id", job.ID, "payment_type", pay.Type, "payment_status", pay.Status)
	return pay, nil
}

// ListPayments returns the job's payments, oldest first.
func (s *Service) ListPayments(ctx context.Context, ref Ref) ([]*models.Payment, error) {
	job, err := s.get(ctx, ref)
	if err != nil {
		return nil, err
	}
	payments, err := s.store.ListPayments(ctx, job.ID, job.TenantID)
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}
	if payments == nil {
		payments = []*models.Payment{}
	}
	return payments, nil
}
