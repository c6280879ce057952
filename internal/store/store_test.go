package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/clearops/internal/dispatch"
	"github.com/kiranshivaraju/clearops/internal/notify"
	"github.com/kiranshivaraju/clearops/internal/store"
	"github.com/kiranshivaraju/clearops/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("clearops_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func newStore(t *testing.T) (*store.PostgresStore, uuid.UUID) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	tenant, err := s.GetDefaultTenant(context.Background())
	require.NoError(t, err)
	return s, tenant.ID
}

func now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

func ptr[T any](v T) *T { return &v }

func newJob(tenantID uuid.UUID, clientID *uuid.UUID, lat, lon float64) *models.Job {
	ts := now()
	return &models.Job{
		ID:              uuid.New(),
		TenantID:        tenantID,
		ClientID:        clientID,
		ServiceType:     "house_clearance",
		PropertyAddress: "1 High Street",
		PreferredDate:   "2025-08-14",
		PreferredTime:   "morning",
		Latitude:        &lat,
		Longitude:       &lon,
		Status:          models.JobStatusCreated,
		CreatedAt:       ts,
		UpdatedAt:       ts,
	}
}

func newCrew(tenantID uuid.UUID, email string, lat, lon float64) *models.Crew {
	ts := now()
	return &models.Crew{
		ID:         uuid.New(),
		TenantID:   tenantID,
		FullName:   "Crew " + email,
		Email:      email,
		Status:     models.CrewStatusAvailable,
		IsApproved: true,
		Latitude:   &lat,
		Longitude:  &lon,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
}

// --- Tenant & reference data ---

func TestGetDefaultTenant(t *testing.T) {
	s, tenantID := newStore(t)

	tenant, err := s.GetDefaultTenant(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "default", tenant.Name)
	assert.Equal(t, tenantID, tenant.ID)
}

func TestUrgencyLevels_Seeded(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	levels, err := s.ListUrgencyLevels(ctx)
	require.NoError(t, err)
	require.Len(t, levels, 3)

	hours := map[string]int{}
	for _, l := range levels {
		hours[l.Name] = l.SLAHours
	}
	assert.Equal(t, map[string]int{"Standard": 72, "Urgent": 48, "Emergency": 24}, hours)

	got, err := s.GetUrgencyLevel(ctx, levels[0].ID)
	require.NoError(t, err)
	assert.Equal(t, levels[0].Name, got.Name)

	_, err = s.GetUrgencyLevel(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- API Key Tests ---

func TestAPIKey_CreateAndGet(t *testing.T) {
	s, tenantID := newStore(t)
	ctx := context.Background()

	ts := now()
	key := &models.APIKey{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Name:      "dispatch-desk",
		KeyHash:   "bcrypt-hash-here",
		KeyPrefix: "co_abcd1",
		Scopes:    []string{"staff"},
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))

	keys, err := s.GetAPIKeyByPrefix(ctx, "co_abcd1")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, key.ID, keys[0].ID)
	assert.Equal(t, []string{"staff"}, keys[0].Scopes)
}

func TestAPIKey_RevokeHidesKey(t *testing.T) {
	s, tenantID := newStore(t)
	ctx := context.Background()
	ts := now()

	key := &models.APIKey{
		ID: uuid.New(), TenantID: tenantID, Name: "revoke-me", KeyHash: "hash",
		KeyPrefix: "co_revk1", Scopes: []string{"client"}, CreatedAt: ts, UpdatedAt: ts,
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))
	require.NoError(t, s.UpdateAPIKeyLastUsed(ctx, key.ID))

	keys, err := s.ListAPIKeys(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.NotNil(t, keys[0].LastUsedAt)

	require.NoError(t, s.RevokeAPIKey(ctx, key.ID, tenantID))

	keys, err = s.ListAPIKeys(ctx, tenantID)
	require.NoError(t, err)
	assert.Empty(t, keys)

	keys, err = s.GetAPIKeyByPrefix(ctx, "co_revk1")
	require.NoError(t, err)
	assert.Empty(t, keys)

	assert.ErrorIs(t, s.RevokeAPIKey(ctx, key.ID, tenantID), store.ErrNotFound)
}

func TestAPIKey_DuplicateID(t *testing.T) {
	s, tenantID := newStore(t)
	ctx := context.Background()
	ts := now()

	id := uuid.New()
	require.NoError(t, s.CreateAPIKey(ctx, &models.APIKey{
		ID: id, TenantID: tenantID, Name: "dup1", KeyHash: "h1", KeyPrefix: "co_dup01",
		Scopes: []string{"client"}, CreatedAt: ts, UpdatedAt: ts,
	}))
	err := s.CreateAPIKey(ctx, &models.APIKey{
		ID: id, TenantID: tenantID, Name: "dup2", KeyHash: "h2", KeyPrefix: "co_dup02",
		Scopes: []string{"client"}, CreatedAt: ts, UpdatedAt: ts,
	})
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

// --- Jobs ---

func TestJob_CreateGetList(t *testing.T) {
	s, tenantID := newStore(t)
	ctx := context.Background()

	alice, bob := uuid.New(), uuid.New()
	j1 := newJob(tenantID, &alice, 51.5, -0.12)
	j1.VanLoads = ptr(3)
	j1.AdditionalInfo = ptr("side gate")
	require.NoError(t, s.CreateJob(ctx, j1))
	require.NoError(t, s.CreateJob(ctx, newJob(tenantID, &alice, 51.5, -0.12)))
	require.NoError(t, s.CreateJob(ctx, newJob(tenantID, &bob, 51.5, -0.12)))

	got, err := s.GetJob(ctx, j1.ID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCreated, got.Status)
	require.NotNil(t, got.VanLoads)
	assert.Equal(t, 3, *got.VanLoads)
	assert.Equal(t, "side gate", *got.AdditionalInfo)
	assert.InDelta(t, 51.5, *got.Latitude, 1e-9)

	_, err = s.GetJob(ctx, j1.ID, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)

	jobs, total, err := s.ListJobs(ctx, store.JobFilter{TenantID: tenantID, ClientID: &alice, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, jobs, 1)

	_, total, err = s.ListJobs(ctx, store.JobFilter{TenantID: tenantID, Status: models.JobStatusCancelled})
	require.NoError(t, err)
	assert.Zero(t, total)

	_, total, err = s.ListJobs(ctx, store.JobFilter{TenantID: tenantID})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func TestInTx_RollsBackOnError(t *testing.T) {
	s, tenantID := newStore(t)
	ctx := context.Background()

	job := newJob(tenantID, nil, 51.5, -0.12)
	require.NoError(t, s.CreateJob(ctx, job))

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx store.Tx) error {
		j, err := tx.GetJobForUpdate(ctx, job.ID, tenantID)
		require.NoError(t, err)
		j.Status = models.JobStatusCancelled
		require.NoError(t, tx.UpdateJob(ctx, j))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetJob(ctx, job.ID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCreated, got.Status)
}

// --- Crews ---

func TestCrew_UpsertAndUniqueEmail(t *testing.T) {
	s, tenantID := newStore(t)
	ctx := context.Background()

	c := newCrew(tenantID, "a@crew.example.com", 51.5, -0.12)
	require.NoError(t, s.UpsertCrew(ctx, c))

	c.FullName = "Renamed"
	c.Status = models.CrewStatusOffline
	require.NoError(t, s.UpsertCrew(ctx, c))

	got, err := s.GetCrew(ctx, c.ID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.FullName)
	assert.Equal(t, models.CrewStatusAvailable, got.Status, "profile writes leave status alone")

	dup := newCrew(tenantID, "a@crew.example.com", 0, 0)
	assert.ErrorIs(t, s.UpsertCrew(ctx, dup), store.ErrDuplicateKey)

	crews, err := s.ListCrews(ctx, tenantID)
	require.NoError(t, err)
	assert.Len(t, crews, 1)
}

func TestCrew_ListAvailableAndCompareAndSet(t *testing.T) {
	s, tenantID := newStore(t)
	ctx := context.Background()

	ready := newCrew(tenantID, "ready@crew.example.com", 51.5, -0.12)
	unapproved := newCrew(tenantID, "new@crew.example.com", 51.5, -0.12)
	unapproved.IsApproved = false
	unlocated := newCrew(tenantID, "lost@crew.example.com", 0, 0)
	unlocated.Latitude, unlocated.Longitude = nil, nil
	for _, c := range []*models.Crew{ready, unapproved, unlocated} {
		require.NoError(t, s.UpsertCrew(ctx, c))
	}

	err := s.InTx(ctx, func(tx store.Tx) error {
		crews, err := tx.ListAvailableCrews(ctx, tenantID)
		require.NoError(t, err)
		require.Len(t, crews, 1)
		assert.Equal(t, ready.ID, crews[0].ID)

		ok, err := tx.SetCrewStatus(ctx, ready.ID, models.CrewStatusAvailable, models.CrewStatusAssigned)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = tx.SetCrewStatus(ctx, ready.ID, models.CrewStatusAvailable, models.CrewStatusAssigned)
		require.NoError(t, err)
		assert.False(t, ok, "second claim must fail")
		return nil
	})
	require.NoError(t, err)
}

func TestJob_ActiveCrewUniqueIndex(t *testing.T) {
	s, tenantID := newStore(t)
	ctx := context.Background()

	crew := newCrew(tenantID, "busy@crew.example.com", 51.5, -0.12)
	require.NoError(t, s.UpsertCrew(ctx, crew))

	j1 := newJob(tenantID, nil, 51.5, -0.12)
	j1.AssignedCrewID = &crew.ID
	j1.Status = models.JobStatusCrewAssigned
	require.NoError(t, s.CreateJob(ctx, j1))

	j2 := newJob(tenantID, nil, 51.5, -0.12)
	require.NoError(t, s.CreateJob(ctx, j2))

	err := s.InTx(ctx, func(tx store.Tx) error {
		j, err := tx.GetJobForUpdate(ctx, j2.ID, tenantID)
		require.NoError(t, err)
		j.AssignedCrewID = &crew.ID
		j.Status = models.JobStatusCrewAssigned
		return tx.UpdateJob(ctx, j)
	})
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

func TestCrew_HasActiveJob(t *testing.T) {
	s, tenantID := newStore(t)
	ctx := context.Background()

	crew := newCrew(tenantID, "holder@crew.example.com", 51.5, -0.12)
	require.NoError(t, s.UpsertCrew(ctx, crew))

	busy := func() bool {
		var got bool
		require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
			var err error
			got, err = tx.CrewHasActiveJob(ctx, crew.ID)
			return err
		}))
		return got
	}
	assert.False(t, busy())

	j := newJob(tenantID, nil, 51.5, -0.12)
	j.AssignedCrewID = &crew.ID
	j.Status = models.JobStatusCompleted
	require.NoError(t, s.CreateJob(ctx, j))
	assert.False(t, busy(), "completed jobs do not hold a crew")

	live := newJob(tenantID, nil, 51.5, -0.12)
	live.AssignedCrewID = &crew.ID
	live.Status = models.JobStatusClearanceInProgress
	require.NoError(t, s.CreateJob(ctx, live))
	assert.True(t, busy())
}

// --- Payments & invoices ---

func TestPayments_CreateInTxRollsBack(t *testing.T) {
	s, tenantID := newStore(t)
	ctx := context.Background()

	job := newJob(tenantID, nil, 51.5, -0.12)
	require.NoError(t, s.CreateJob(ctx, job))

	boom := errors.New("abort")
	err := s.InTx(ctx, func(tx store.Tx) error {
		_, err := tx.GetJobForUpdate(ctx, job.ID, tenantID)
		require.NoError(t, err)
		require.NoError(t, tx.CreatePayment(ctx, &models.Payment{
			ID: uuid.New(), TenantID: tenantID, JobID: job.ID, Type: "deposit",
			Amount: 50, Status: "completed", CreatedAt: now(),
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	payments, err := s.ListPayments(ctx, job.ID, tenantID)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestPayments_DepositGuardQuery(t *testing.T) {
	s, tenantID := newStore(t)
	ctx := context.Background()

	job := newJob(tenantID, nil, 51.5, -0.12)
	require.NoError(t, s.CreateJob(ctx, job))

	pay := func(typ, status string) {
		require.NoError(t, s.CreatePayment(ctx, &models.Payment{
			ID: uuid.New(), TenantID: tenantID, JobID: job.ID, Type: typ,
			Amount: 50, Status: status, CreatedAt: now(),
		}))
	}
	hasDeposit := func() bool {
		var got bool
		require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
			var err error
			got, err = tx.HasCompletedDeposit(ctx, job.ID)
			return err
		}))
		return got
	}

	pay("deposit", "pending")
	pay("final", "completed")
	assert.False(t, hasDeposit())

	pay("deposit", "completed")
	assert.True(t, hasDeposit())

	payments, err := s.ListPayments(ctx, job.ID, tenantID)
	require.NoError(t, err)
	assert.Len(t, payments, 3)
}

func TestInvoice_OnePerJob(t *testing.T) {
	s, tenantID := newStore(t)
	ctx := context.Background()

	job := newJob(tenantID, nil, 51.5, -0.12)
	require.NoError(t, s.CreateJob(ctx, job))

	inv := &models.Invoice{
		ID: uuid.New(), TenantID: tenantID, JobID: job.ID, Number: "INV-20250814-ABCDEF12",
		Amount: 240, Status: "issued", GeneratedAt: now(),
	}
	require.NoError(t, s.CreateInvoice(ctx, inv))

	got, err := s.GetInvoiceByJobID(ctx, job.ID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, inv.Number, got.Number)

	again := *inv
	again.ID = uuid.New()
	again.Number = "INV-20250814-00000000"
	assert.ErrorIs(t, s.CreateInvoice(ctx, &again), store.ErrDuplicateKey)

	_, err = s.GetInvoiceByJobID(ctx, uuid.New(), tenantID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Dispatch under contention ---

func TestDispatch_ConcurrentJobsClaimOneCrew(t *testing.T) {
	s, tenantID := newStore(t)
	ctx := context.Background()

	crew := newCrew(tenantID, "only@crew.example.com", 51.51, -0.12)
	require.NoError(t, s.UpsertCrew(ctx, crew))

	const n = 8
	jobIDs := make([]uuid.UUID, n)
	for i := range jobIDs {
		j := newJob(tenantID, nil, 51.5, -0.12)
		require.NoError(t, s.CreateJob(ctx, j))
		jobIDs[i] = j.ID
	}

	engine := dispatch.NewEngine(s, notify.LogSender{}, nil)

	var wg sync.WaitGroup
	outcomes := make([]dispatch.Outcome, n)
	errs := make([]error, n)
	for i, id := range jobIDs {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			res, err := engine.Dispatch(ctx, tenantID, id)
			errs[i] = err
			if res != nil {
				outcomes[i] = res.Outcome
			}
		}(i, id)
	}
	wg.Wait()

	assigned := 0
	for i := range outcomes {
		require.NoError(t, errs[i])
		if outcomes[i] == dispatch.Assigned {
			assigned++
		} else {
			assert.Equal(t, dispatch.SkippedNoCrew, outcomes[i])
		}
	}
	assert.Equal(t, 1, assigned)

	got, err := s.GetCrew(ctx, crew.ID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, models.CrewStatusAssigned, got.Status)
}

func TestPing(t *testing.T) {
	s, _ := newStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
