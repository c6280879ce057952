package billing_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/clearops/internal/billing"
	"github.com/kiranshivaraju/clearops/internal/store/memory"
	"github.com/kiranshivaraju/clearops/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completedJob(quote *float64) *models.Job {
	clientID := uuid.New()
	return &models.Job{
		ID:          uuid.New(),
		TenantID:    uuid.New(),
		ClientID:    &clientID,
		QuoteAmount: quote,
		Status:      models.JobStatusCompleted,
	}
}

func TestInvoiceNumber(t *testing.T) {
	id := uuid.MustParse("0a1b2c3d-4e5f-6071-8293-a4b5c6d7e8f9")
	at := time.Date(2025, 3, 9, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "INV-20250309-0A1B2C3D", billing.InvoiceNumber(at, id))
}

func TestIssue_CreatesInvoiceFromQuote(t *testing.T) {
	s := memory.New()
	quote := 480.0
	job := completedJob(&quote)

	inv, err := billing.NewIssuer(s).Issue(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, job.ID, inv.JobID)
	assert.Equal(t, job.ClientID, inv.ClientID)
	assert.InDelta(t, 480.0, inv.Amount, 1e-9)
	assert.Equal(t, billing.InvoiceStatusPending, inv.Status)
	assert.Regexp(t, regexp.MustCompile(`^INV-\d{8}-[0-9A-F]{8}$`), inv.Number)

	stored, err := s.GetInvoiceByJobID(context.Background(), job.ID, job.TenantID)
	require.NoError(t, err)
	assert.Equal(t, inv.Number, stored.Number)
}

func TestIssue_Idempotent(t *testing.T) {
	s := memory.New()
	quote := 100.0
	job := completedJob(&quote)
	issuer := billing.NewIssuer(s)

	first, err := issuer.Issue(context.Background(), job)
	require.NoError(t, err)
	second, err := issuer.Issue(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestIssue_NoQuoteIsZeroAmount(t *testing.T) {
	inv, err := billing.NewIssuer(memory.New()).Issue(context.Background(), completedJob(nil))
	require.NoError(t, err)
	assert.Zero(t, inv.Amount)
}
