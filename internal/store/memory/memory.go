// Package memory is an in-process implementation of store.Store for tests and
// local development. Transactions are serialized by a single mutex and rolled
// back from an undo log when the callback fails.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/clearops/internal/store"
	"github.com/kiranshivaraju/clearops/pkg/models"
)

var _ store.Store = (*Store)(nil)

// Store is a fully in-memory store.Store. Safe for concurrent access.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	tenants  map[uuid.UUID]*models.Tenant
	apiKeys  map[uuid.UUID]*models.APIKey
	levels   map[uuid.UUID]*models.UrgencyLevel
	jobs     map[uuid.UUID]*models.Job
	crews    map[uuid.UUID]*models.Crew
	payments map[uuid.UUID]*models.Payment
	invoices map[uuid.UUID]*models.Invoice // keyed by job id
}

// New returns a Store seeded like a freshly migrated database: a default
// tenant and the Standard, Urgent and Emergency urgency levels.
func New() *Store {
	now := time.Now().UTC()
	s := &Store{
		tenants:  make(map[uuid.UUID]*models.Tenant),
		apiKeys:  make(map[uuid.UUID]*models.APIKey),
		levels:   make(map[uuid.UUID]*models.UrgencyLevel),
		jobs:     make(map[uuid.UUID]*models.Job),
		crews:    make(map[uuid.UUID]*models.Crew),
		payments: make(map[uuid.UUID]*models.Payment),
		invoices: make(map[uuid.UUID]*models.Invoice),
	}

	t := &models.Tenant{ID: uuid.New(), Name: "default", CreatedAt: now, UpdatedAt: now}
	s.tenants[t.ID] = t

	for _, seed := range []struct {
		name  string
		hours int
	}{{"Standard", 72}, {"Urgent", 48}, {"Emergency", 24}} {
		l := &models.UrgencyLevel{ID: uuid.New(), Name: seed.name, SLAHours: seed.hours, IsActive: true, CreatedAt: now}
		s.levels[l.ID] = l
	}
	return s
}

// Ping always succeeds for the memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// InTx runs fn with exclusive access to transactional state.
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{s: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// --- Tenants ---

func (s *Store) GetDefaultTenant(_ context.Context) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tenants {
		if t.Name == "default" {
			cp := *t
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

// --- API Keys ---

func (s *Store) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []*models.APIKey
	for _, k := range s.apiKeys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			cp := *k
			keys = append(keys, &cp)
		}
	}
	return keys, nil
}

func (s *Store) UpdateAPIKeyLastUsed(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if k, ok := s.apiKeys[id]; ok {
		now := time.Now().UTC()
		k.LastUsedAt = &now
		k.UpdatedAt = now
	}
	return nil
}

func (s *Store) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range s.apiKeys {
		if k.ID == key.ID || k.KeyHash == key.KeyHash {
			return store.ErrDuplicateKey
		}
	}
	cp := *key
	s.apiKeys[key.ID] = &cp
	return nil
}

func (s *Store) ListAPIKeys(_ context.Context, tenantID uuid.UUID) ([]*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []*models.APIKey
	for _, k := range s.apiKeys {
		if k.TenantID == tenantID && k.DeletedAt == nil {
			cp := *k
			keys = append(keys, &cp)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].CreatedAt.After(keys[j].CreatedAt) })
	return keys, nil
}

func (s *Store) RevokeAPIKey(_ context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.apiKeys[id]
	if !ok || k.TenantID != tenantID || k.DeletedAt != nil {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	k.DeletedAt = &now
	k.UpdatedAt = now
	return nil
}

// --- Urgency Levels ---

func (s *Store) ListUrgencyLevels(_ context.Context) ([]*models.UrgencyLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var levels []*models.UrgencyLevel
	for _, l := range s.levels {
		if l.IsActive {
			cp := *l
			levels = append(levels, &cp)
		}
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].SLAHours > levels[j].SLAHours })
	return levels, nil
}

func (s *Store) GetUrgencyLevel(_ context.Context, id uuid.UUID) (*models.UrgencyLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.levels[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

// --- Jobs ---

func (s *Store) CreateJob(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return store.ErrDuplicateKey
	}
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *Store) GetJob(_ context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.job(id, tenantID)
}

func (s *Store) job(id uuid.UUID, tenantID uuid.UUID) (*models.Job, error) {
	j, ok := s.jobs[id]
	if !ok || j.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *Store) ListJobs(_ context.Context, filter store.JobFilter) ([]*models.Job, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Job
	for _, j := range s.jobs {
		if j.TenantID != filter.TenantID {
			continue
		}
		if filter.ClientID != nil && (j.ClientID == nil || *j.ClientID != *filter.ClientID) {
			continue
		}
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		cp := *j
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, k int) bool {
		if !matched[i].CreatedAt.Equal(matched[k].CreatedAt) {
			return matched[i].CreatedAt.After(matched[k].CreatedAt)
		}
		return bytes.Compare(matched[i].ID[:], matched[k].ID[:]) < 0
	})

	total := len(matched)
	limit, offset := filter.Normalize()
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return matched[offset:end], total, nil
}

// --- Crews ---

func (s *Store) UpsertCrew(_ context.Context, crew *models.Crew) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.crews {
		if c.ID != crew.ID && c.TenantID == crew.TenantID && c.Email == crew.Email {
			return store.ErrDuplicateKey
		}
	}
	if existing, ok := s.crews[crew.ID]; ok {
		if existing.TenantID != crew.TenantID {
			return nil
		}
		cp := *crew
		cp.Status = existing.Status
		cp.CreatedAt = existing.CreatedAt
		s.crews[crew.ID] = &cp
		return nil
	}
	cp := *crew
	s.crews[crew.ID] = &cp
	return nil
}

func (s *Store) GetCrew(_ context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Crew, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.crew(id, tenantID)
}

func (s *Store) crew(id uuid.UUID, tenantID uuid.UUID) (*models.Crew, error) {
	c, ok := s.crews[id]
	if !ok || c.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) ListCrews(_ context.Context, tenantID uuid.UUID) ([]*models.Crew, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var crews []*models.Crew
	for _, c := range s.crews {
		if c.TenantID == tenantID {
			cp := *c
			crews = append(crews, &cp)
		}
	}
	sort.Slice(crews, func(i, j int) bool {
		if crews[i].FullName != crews[j].FullName {
			return crews[i].FullName < crews[j].FullName
		}
		return bytes.Compare(crews[i].ID[:], crews[j].ID[:]) < 0
	})
	return crews, nil
}

// --- Payments & Invoices ---

func (s *Store) CreatePayment(_ context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.payments[p.ID]; ok {
		return store.ErrDuplicateKey
	}
	cp := *p
	s.payments[p.ID] = &cp
	return nil
}

func (s *Store) ListPayments(_ context.Context, jobID uuid.UUID, tenantID uuid.UUID) ([]*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payments []*models.Payment
	for _, p := range s.payments {
		if p.JobID == jobID && p.TenantID == tenantID {
			cp := *p
			payments = append(payments, &cp)
		}
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].CreatedAt.Before(payments[j].CreatedAt) })
	return payments, nil
}

func (s *Store) CreateInvoice(_ context.Context, inv *models.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.invoices[inv.JobID]; ok {
		return store.ErrDuplicateKey
	}
	for _, existing := range s.invoices {
		if existing.Number == inv.Number {
			return store.ErrDuplicateKey
		}
	}
	cp := *inv
	s.invoices[inv.JobID] = &cp
	return nil
}

func (s *Store) GetInvoiceByJobID(_ context.Context, jobID uuid.UUID, tenantID uuid.UUID) (*models.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoices[jobID]
	if !ok || inv.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}
