package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/clearops/pkg/models"
)

// querier is satisfied by both the pool and a pgx.Tx, so row helpers work
// inside and outside transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InTx runs fn in a READ COMMITTED transaction. Row locks taken through the
// Tx (GetJobForUpdate) and conditional crew updates serialize competing writers.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// --- Tenants ---

func (s *PostgresStore) GetDefaultTenant(ctx context.Context) (*models.Tenant, error) {
	var t models.Tenant
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at, updated_at FROM tenants WHERE name = 'default' LIMIT 1`,
	).Scan(&t.ID, &t.Name, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get default tenant: %w", err)
	}
	return &t, nil
}

// --- API Keys ---

const apiKeyColumns = `id, tenant_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at`

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	return collectAPIKeys(rows)
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, tenant_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.TenantID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE tenant_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return collectAPIKeys(rows)
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`, id, tenantID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collectAPIKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.TenantID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

// --- Urgency Levels ---

func (s *PostgresStore) ListUrgencyLevels(ctx context.Context) ([]*models.UrgencyLevel, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, sla_hours, is_active, created_at FROM urgency_levels
		 WHERE is_active ORDER BY sla_hours DESC`)
	if err != nil {
		return nil, fmt.Errorf("list urgency levels: %w", err)
	}
	defer rows.Close()

	var levels []*models.UrgencyLevel
	for rows.Next() {
		var l models.UrgencyLevel
		if err := rows.Scan(&l.ID, &l.Name, &l.SLAHours, &l.IsActive, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan urgency level: %w", err)
		}
		levels = append(levels, &l)
	}
	return levels, rows.Err()
}

func (s *PostgresStore) GetUrgencyLevel(ctx context.Context, id uuid.UUID) (*models.UrgencyLevel, error) {
	var l models.UrgencyLevel
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, sla_hours, is_active, created_at FROM urgency_levels WHERE id = $1`, id,
	).Scan(&l.ID, &l.Name, &l.SLAHours, &l.IsActive, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get urgency level: %w", err)
	}
	return &l, nil
}

// --- Jobs ---

const jobColumns = `id, tenant_id, client_id, urgency_level_id, service_type, property_size, van_loads,
	waste_types, property_address, preferred_date, preferred_time, additional_info, latitude, longitude,
	assigned_crew_id, quote_amount, deposit_amount, quote_notes, decline_reason, cancellation_reason,
	rating, status, completed_at, created_at, updated_at`

func scanJob(row rowScanner) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.TenantID, &j.ClientID, &j.UrgencyLevelID, &j.ServiceType, &j.PropertySize,
		&j.VanLoads, &j.WasteTypes, &j.PropertyAddress, &j.PreferredDate, &j.PreferredTime,
		&j.AdditionalInfo, &j.Latitude, &j.Longitude, &j.AssignedCrewID, &j.QuoteAmount,
		&j.DepositAmount, &j.QuoteNotes, &j.DeclineReason, &j.CancellationReason, &j.Rating,
		&j.Status, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (`+jobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
		         $21, $22, $23, $24, $25)`,
		job.ID, job.TenantID, job.ClientID, job.UrgencyLevelID, job.ServiceType, job.PropertySize,
		job.VanLoads, job.WasteTypes, job.PropertyAddress, job.PreferredDate, job.PreferredTime,
		job.AdditionalInfo, job.Latitude, job.Longitude, job.AssignedCrewID, job.QuoteAmount,
		job.DepositAmount, job.QuoteNotes, job.DeclineReason, job.CancellationReason, job.Rating,
		job.Status, job.CompletedAt, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND tenant_id = $2`, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, int, error) {
	conditions := []string{"tenant_id = $1"}
	args := []any{filter.TenantID}
	argIdx := 2

	if filter.ClientID != nil {
		conditions = append(conditions, fmt.Sprintf("client_id = $%d", argIdx))
		args = append(args, *filter.ClientID)
		argIdx++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM jobs WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	limit, offset := filter.Normalize()
	dataQuery := fmt.Sprintf(
		`SELECT %s FROM jobs WHERE %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		jobColumns, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, total, rows.Err()
}

// --- Crews ---

const crewColumns = `id, tenant_id, full_name, email, phone_number, status, is_approved, latitude, longitude, created_at, updated_at`

func scanCrew(row rowScanner) (*models.Crew, error) {
	var c models.Crew
	err := row.Scan(&c.ID, &c.TenantID, &c.FullName, &c.Email, &c.PhoneNumber, &c.Status,
		&c.IsApproved, &c.Latitude, &c.Longitude, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func collectCrews(rows pgx.Rows) ([]*models.Crew, error) {
	defer rows.Close()

	var crews []*models.Crew
	for rows.Next() {
		c, err := scanCrew(rows)
		if err != nil {
			return nil, fmt.Errorf("scan crew: %w", err)
		}
		crews = append(crews, c)
	}
	return crews, rows.Err()
}

// UpsertCrew inserts a crew or updates its profile, approval, location and status.
func (s *PostgresStore) UpsertCrew(ctx context.Context, crew *models.Crew) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO crews (`+crewColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
		   full_name = EXCLUDED.full_name,
		   email = EXCLUDED.email,
		   phone_number = EXCLUDED.phone_number,
		   is_approved = EXCLUDED.is_approved,
		   latitude = EXCLUDED.latitude,
		   longitude = EXCLUDED.longitude,
		   updated_at = EXCLUDED.updated_at
		 WHERE crews.tenant_id = EXCLUDED.tenant_id`,
		crew.ID, crew.TenantID, crew.FullName, crew.Email, crew.PhoneNumber, crew.Status,
		crew.IsApproved, crew.Latitude, crew.Longitude, crew.CreatedAt, crew.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("upsert crew: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCrew(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Crew, error) {
	return getCrew(ctx, s.pool, id, tenantID)
}

func (s *PostgresStore) ListCrews(ctx context.Context, tenantID uuid.UUID) ([]*models.Crew, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+crewColumns+` FROM crews WHERE tenant_id = $1 ORDER BY full_name, id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list crews: %w", err)
	}
	return collectCrews(rows)
}

func getCrew(ctx context.Context, q querier, id uuid.UUID, tenantID uuid.UUID) (*models.Crew, error) {
	c, err := scanCrew(q.QueryRow(ctx,
		`SELECT `+crewColumns+` FROM crews WHERE id = $1 AND tenant_id = $2`, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get crew: %w", err)
	}
	return c, nil
}

// --- Payments & Invoices ---

func (s *PostgresStore) CreatePayment(ctx context.Context, p *models.Payment) error {
	return createPayment(ctx, s.pool, p)
}

func createPayment(ctx context.Context, q querier, p *models.Payment) error {
	_, err := q.Exec(ctx,
		`INSERT INTO payments (id, tenant_id, job_id, payment_type, amount, payment_status, payment_method,
		                       transaction_id, paid_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.TenantID, p.JobID, p.Type, p.Amount, p.Status, p.Method, p.TransactionID, p.PaidAt, p.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPayments(ctx context.Context, jobID uuid.UUID, tenantID uuid.UUID) ([]*models.Payment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, job_id, payment_type, amount, payment_status, payment_method, transaction_id,
		        paid_at, created_at
		 FROM payments WHERE job_id = $1 AND tenant_id = $2 ORDER BY created_at, id`, jobID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		var p models.Payment
		if err := rows.Scan(&p.ID, &p.TenantID, &p.JobID, &p.Type, &p.Amount, &p.Status, &p.Method,
			&p.TransactionID, &p.PaidAt, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, &p)
	}
	return payments, rows.Err()
}

func (s *PostgresStore) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO invoices (id, tenant_id, job_id, client_id, invoice_number, amount, status, generated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		inv.ID, inv.TenantID, inv.JobID, inv.ClientID, inv.Number, inv.Amount, inv.Status, inv.GeneratedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create invoice: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetInvoiceByJobID(ctx context.Context, jobID uuid.UUID, tenantID uuid.UUID) (*models.Invoice, error) {
	var inv models.Invoice
	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, job_id, client_id, invoice_number, amount, status, generated_at
		 FROM invoices WHERE job_id = $1 AND tenant_id = $2`, jobID, tenantID,
	).Scan(&inv.ID, &inv.TenantID, &inv.JobID, &inv.ClientID, &inv.Number, &inv.Amount, &inv.Status, &inv.GeneratedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return &inv, nil
}

// --- Transactions ---

type pgTx struct {
	q querier
}

func (t *pgTx) GetJobForUpdate(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Job, error) {
	j, err := scanJob(t.q.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND tenant_id = $2 FOR UPDATE`, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job for update: %w", err)
	}
	return j, nil
}

func (t *pgTx) UpdateJob(ctx context.Context, job *models.Job) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE jobs SET
		   client_id = $3, latitude = $4, longitude = $5, assigned_crew_id = $6, quote_amount = $7,
		   deposit_amount = $8, quote_notes = $9, decline_reason = $10, cancellation_reason = $11,
		   rating = $12, status = $13, completed_at = $14, updated_at = $15
		 WHERE id = $1 AND tenant_id = $2`,
		job.ID, job.TenantID, job.ClientID, job.Latitude, job.Longitude, job.AssignedCrewID, job.QuoteAmount,
		job.DepositAmount, job.QuoteNotes, job.DeclineReason, job.CancellationReason, job.Rating,
		job.Status, job.CompletedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) GetCrew(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Crew, error) {
	return getCrew(ctx, t.q, id, tenantID)
}

func (t *pgTx) ListAvailableCrews(ctx context.Context, tenantID uuid.UUID) ([]*models.Crew, error) {
	rows, err := t.q.Query(ctx,
		`SELECT `+crewColumns+` FROM crews
		 WHERE tenant_id = $1 AND status = 'available' AND is_approved
		   AND latitude IS NOT NULL AND longitude IS NOT NULL
		 ORDER BY id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list available crews: %w", err)
	}
	return collectCrews(rows)
}

// SetCrewStatus is a compare-and-set: under READ COMMITTED a concurrent
// claimer blocks on the row lock and then re-checks the WHERE clause, so only
// one transaction sees RowsAffected == 1.
func (t *pgTx) SetCrewStatus(ctx context.Context, id uuid.UUID, from, to models.CrewStatus) (bool, error) {
	tag, err := t.q.Exec(ctx,
		`UPDATE crews SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, from, to)
	if err != nil {
		return false, fmt.Errorf("set crew status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) CrewHasActiveJob(ctx context.Context, crewID uuid.UUID) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM jobs
		               WHERE assigned_crew_id = $1 AND status NOT IN ('job_completed', 'cancelled'))`,
		crewID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check crew jobs: %w", err)
	}
	return exists, nil
}

func (t *pgTx) CreatePayment(ctx context.Context, p *models.Payment) error {
	return createPayment(ctx, t.q, p)
}

func (t *pgTx) HasCompletedDeposit(ctx context.Context, jobID uuid.UUID) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM payments
		               WHERE job_id = $1 AND payment_type = 'deposit' AND payment_status = 'completed')`,
		jobID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check deposit: %w", err)
	}
	return exists, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

var _ Store = (*PostgresStore)(nil)
