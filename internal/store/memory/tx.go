package memory

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/clearops/internal/store"
	"github.com/kiranshivaraju/clearops/pkg/models"
)

type memTx struct {
	s    *Store
	undo []func()
}

func (t *memTx) rollback() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) GetJobForUpdate(_ context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Job, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.s.job(id, tenantID)
}

func (t *memTx) UpdateJob(_ context.Context, job *models.Job) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	prev, ok := t.s.jobs[job.ID]
	if !ok || prev.TenantID != job.TenantID {
		return store.ErrNotFound
	}
	if job.AssignedCrewID != nil && !isTerminal(job.Status) {
		for _, other := range t.s.jobs {
			if other.ID != job.ID && other.AssignedCrewID != nil &&
				*other.AssignedCrewID == *job.AssignedCrewID && !isTerminal(other.Status) {
				return store.ErrDuplicateKey
			}
		}
	}

	cp := *job
	t.s.jobs[job.ID] = &cp
	t.undo = append(t.undo, func() { t.s.jobs[prev.ID] = prev })
	return nil
}

func (t *memTx) GetCrew(_ context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Crew, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.s.crew(id, tenantID)
}

func (t *memTx) ListAvailableCrews(_ context.Context, tenantID uuid.UUID) ([]*models.Crew, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	var crews []*models.Crew
	for _, c := range t.s.crews {
		if c.TenantID == tenantID && c.Status == models.CrewStatusAvailable && c.IsApproved && c.HasLocation() {
			cp := *c
			crews = append(crews, &cp)
		}
	}
	sort.Slice(crews, func(i, j int) bool { return bytes.Compare(crews[i].ID[:], crews[j].ID[:]) < 0 })
	return crews, nil
}

func (t *memTx) SetCrewStatus(_ context.Context, id uuid.UUID, from, to models.CrewStatus) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	c, ok := t.s.crews[id]
	if !ok || c.Status != from {
		return false, nil
	}
	next := *c
	next.Status = to
	next.UpdatedAt = time.Now().UTC()
	t.s.crews[id] = &next
	t.undo = append(t.undo, func() { t.s.crews[id] = c })
	return true, nil
}

func (t *memTx) HasCompletedDeposit(_ context.Context, jobID uuid.UUID) (bool, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	for _, p := range t.s.payments {
		if p.JobID == jobID && p.Type == models.PaymentTypeDeposit && p.Status == models.PaymentStatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) CrewHasActiveJob(_ context.Context, crewID uuid.UUID) (bool, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	for _, j := range t.s.jobs {
		if j.AssignedCrewID != nil && *j.AssignedCrewID == crewID && !isTerminal(j.Status) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) CreatePayment(_ context.Context, p *models.Payment) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if _, ok := t.s.payments[p.ID]; ok {
		return store.ErrDuplicateKey
	}
	cp := *p
	t.s.payments[p.ID] = &cp
	t.undo = append(t.undo, func() { delete(t.s.payments, p.ID) })
	return nil
}

// Mirrors the partial unique index on jobs.assigned_crew_id.
func isTerminal(s models.JobStatus) bool {
	return s == models.JobStatusCompleted || s == models.JobStatusCancelled
}
