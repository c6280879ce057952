// Package billing issues invoices for completed jobs.
package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/clearops/internal/store"
	"github.com/kiranshivaraju/clearops/pkg/models"
)

const InvoiceStatusPending = "pending"

// InvoiceStore persists invoices.
type InvoiceStore interface {
	CreateInvoice(ctx context.Context, inv *models.Invoice) error
	GetInvoiceByJobID(ctx context.Context, jobID uuid.UUID, tenantID uuid.UUID) (*models.Invoice, error)
}

// Issuer creates one invoice per job.
type Issuer struct {
	store InvoiceStore
	now   func() time.Time
}

func NewIssuer(s InvoiceStore) *Issuer {
	return &Issuer{store: s, now: func() time.Time { return time.Now().UTC() }}
}

// InvoiceNumber formats an invoice number as INV-<yyyymmdd>-<8 hex>.
func InvoiceNumber(at time.Time, id uuid.UUID) string {
	hex := strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
	return fmt.Sprintf("INV-%s-%s", at.Format("20060102"), hex)
}

// Issue creates the job's invoice, or returns the existing one when the job
// was already invoiced. The amount is the quoted amount.
func (i *Issuer) Issue(ctx context.Context, job *models.Job) (*models.Invoice, error) {
	if existing, err := i.store.GetInvoiceByJobID(ctx, job.ID, job.TenantID); err == nil {
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup invoice: %w", err)
	}

	var amount float64
	if job.QuoteAmount != nil {
		amount = *job.QuoteAmount
	}

	now := i.now()
	id := uuid.New()
	inv := &models.Invoice{
		ID:          id,
		TenantID:    job.TenantID,
		JobID:       job.ID,
		ClientID:    job.ClientID,
		Number:      InvoiceNumber(now, id),
		Amount:      amount,
		Status:      InvoiceStatusPending,
		GeneratedAt: now,
	}

	if err := i.store.CreateInvoice(ctx, inv); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return i.store.GetInvoiceByJobID(ctx, job.ID, job.TenantID)
		}
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	return inv, nil
}
