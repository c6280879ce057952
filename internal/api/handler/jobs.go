package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/clearops/internal/api/response"
	"github.com/kiranshivaraju/clearops/internal/dispatch"
	"github.com/kiranshivaraju/clearops/internal/jobs"
	"github.com/kiranshivaraju/clearops/internal/store"
	"github.com/kiranshivaraju/clearops/pkg/models"
)

// JobService defines the job operations the handlers depend on.
type JobService interface {
	Create(ctx context.Context, tenantID, clientID uuid.UUID, p jobs.JobParams) (*jobs.CreateResult, error)
	CreateDraft(ctx context.Context, tenantID uuid.UUID, p jobs.JobParams) (*models.Job, error)
	GetDraft(ctx context.Context, tenantID, jobID uuid.UUID) (*models.Job, error)
	ConfirmDraft(ctx context.Context, tenantID, jobID, clientID uuid.UUID) (*jobs.CreateResult, error)
	Dispatch(ctx context.Context, ref jobs.Ref) (*dispatch.Result, error)

	Get(ctx context.Context, ref jobs.Ref) (*jobs.View, error)
	List(ctx context.Context, filter store.JobFilter) ([]jobs.View, int, error)
	Track(ctx context.Context, ref jobs.Ref) (*jobs.Tracking, error)
	Status(ctx context.Context, ref jobs.Ref) (*jobs.StatusView, error)

	SendQuote(ctx context.Context, ref jobs.Ref, p jobs.QuoteParams) (*models.Job, error)
	ApproveQuote(ctx context.Context, ref jobs.Ref) (*models.Job, error)
	DeclineQuote(ctx context.Context, ref jobs.Ref, reason string) (*models.Job, error)

	AssignCrew(ctx context.Context, ref jobs.Ref, crewID uuid.UUID) (*models.Job, error)
	Advance(ctx context.Context, ref jobs.Ref, to models.JobStatus) (*models.Job, error)
	Complete(ctx context.Context, ref jobs.Ref) (*jobs.CompletionResult, error)
	Cancel(ctx context.Context, ref jobs.Ref, reason string) (*models.Job, error)
	Rate(ctx context.Context, ref jobs.Ref, rating int) (*models.Job, error)

	RecordPayment(ctx context.Context, ref jobs.Ref, p jobs.PaymentParams) (*models.Payment, error)
	ListPayments(ctx context.Context, ref jobs.Ref) ([]*models.Payment, error)
}

// Jobs serves the /jobs and /drafts routes.
type Jobs struct {
	svc JobService
}

func NewJobs(svc JobService) *Jobs {
	return &Jobs{svc: svc}
}

type jobRequest struct {
	UrgencyLevelID  *uuid.UUID `json:"urgency_level_id"`
	ServiceType     string     `json:"service_type"`
	PropertySize    *string    `json:"property_size"`
	VanLoads        *int       `json:"van_loads"`
	WasteTypes      *string    `json:"waste_types"`
	PropertyAddress string     `json:"property_address"`
	PreferredDate   string     `json:"preferred_date"`
	PreferredTime   string     `json:"preferred_time"`
	AdditionalInfo  *string    `json:"additional_information"`
}

func (req jobRequest) params() jobs.JobParams {
	return jobs.JobParams{
		UrgencyLevelID:  req.UrgencyLevelID,
		ServiceType:     req.ServiceType,
		PropertySize:    req.PropertySize,
		VanLoads:        req.VanLoads,
		WasteTypes:      req.WasteTypes,
		PropertyAddress: req.PropertyAddress,
		PreferredDate:   req.PreferredDate,
		PreferredTime:   req.PreferredTime,
		AdditionalInfo:  req.AdditionalInfo,
	}
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// Create handles POST /api/v1/jobs.
func (h *Jobs) Create(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	cid, ok := clientID(w, r)
	if !ok {
		return
	}
	var req jobRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	res, err := h.svc.Create(r.Context(), tid, cid, req.params())
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, res)
}

// List handles GET /api/v1/jobs.
func (h *Jobs) List(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	cid, ok := scope(w, r)
	if !ok {
		return
	}

	filter := store.JobFilter{
		TenantID: tid,
		ClientID: cid,
		Status:   models.JobStatus(r.URL.Query().Get("status")),
		Page:     queryInt(r, "page", 1),
		Limit:    queryInt(r, "limit", 20),
	}
	views, total, err := h.svc.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	limit, _ := filter.Normalize()
	response.Collection(w, views, response.NewPaginationMeta(filter.Page, limit, total))
}

// Get handles GET /api/v1/jobs/{jobID}.
func (h *Jobs) Get(w http.ResponseWriter, r *http.Request) {
	ref, ok := jobRef(w, r)
	if !ok {
		return
	}
	v, err := h.svc.Get(r.Context(), ref)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, v)
}

// Status handles GET /api/v1/jobs/{jobID}/status.
func (h *Jobs) Status(w http.ResponseWriter, r *http.Request) {
	ref, ok := jobRef(w, r)
	if !ok {
		return
	}
	st, err := h.svc.Status(r.Context(), ref)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, st)
}

// Track handles GET /api/v1/jobs/{jobID}/tracking.
func (h *Jobs) Track(w http.ResponseWriter, r *http.Request) {
	ref, ok := jobRef(w, r)
	if !ok {
		return
	}
	t, err := h.svc.Track(r.Context(), ref)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, t)
}

// Dispatch handles POST /api/v1/jobs/{jobID}/dispatch. A skipped dispatch is
// still a successful call; the outcome says why no crew was assigned.
func (h *Jobs) Dispatch(w http.ResponseWriter, r *http.Request) {
	ref, ok := staffJobRef(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Dispatch(r.Context(), ref)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res.Outcome != dispatch.Assigned {
		response.Accepted(w, res)
		return
	}
	response.JSON(w, res)
}

// Cancel handles POST /api/v1/jobs/{jobID}/cancel.
func (h *Jobs) Cancel(w http.ResponseWriter, r *http.Request) {
	ref, ok := jobRef(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}
	job, err := h.svc.Cancel(r.Context(), ref, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, job)
}

// Rate handles POST /api/v1/jobs/{jobID}/rating.
func (h *Jobs) Rate(w http.ResponseWriter, r *http.Request) {
	ref, ok := clientJobRef(w, r)
	if !ok {
		return
	}
	var req struct {
		Rating *int `json:"rating"`
	}
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.Rating == nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "rating is required", nil)
		return
	}
	job, err := h.svc.Rate(r.Context(), ref, *req.Rating)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, job)
}

// SendQuote handles POST /api/v1/jobs/{jobID}/quote.
func (h *Jobs) SendQuote(w http.ResponseWriter, r *http.Request) {
	ref, ok := staffJobRef(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount  float64  `json:"amount"`
		Deposit *float64 `json:"deposit_amount"`
		Notes   *string  `json:"notes"`
	}
	if !decodeJSON(w, r, &req, false) {
		return
	}
	job, err := h.svc.SendQuote(r.Context(), ref, jobs.QuoteParams{
		Amount:  req.Amount,
		Deposit: req.Deposit,
		Notes:   req.Notes,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, job)
}

// ApproveQuote handles POST /api/v1/jobs/{jobID}/quote/approve.
func (h *Jobs) ApproveQuote(w http.ResponseWriter, r *http.Request) {
	ref, ok := clientJobRef(w, r)
	if !ok {
		return
	}
	job, err := h.svc.ApproveQuote(r.Context(), ref)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, job)
}

// DeclineQuote handles POST /api/v1/jobs/{jobID}/quote/decline.
func (h *Jobs) DeclineQuote(w http.ResponseWriter, r *http.Request) {
	ref, ok := clientJobRef(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}
	job, err := h.svc.DeclineQuote(r.Context(), ref, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, job)
}

// AssignCrew handles POST /api/v1/jobs/{jobID}/assign.
func (h *Jobs) AssignCrew(w http.ResponseWriter, r *http.Request) {
	ref, ok := staffJobRef(w, r)
	if !ok {
		return
	}
	var req struct {
		CrewID uuid.UUID `json:"crew_id"`
	}
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.CrewID == uuid.Nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "crew_id is required", nil)
		return
	}
	job, err := h.svc.AssignCrew(r.Context(), ref, req.CrewID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, job)
}

// Advance handles POST /api/v1/jobs/{jobID}/progress.
func (h *Jobs) Advance(w http.ResponseWriter, r *http.Request) {
	ref, ok := staffJobRef(w, r)
	if !ok {
		return
	}
	var req struct {
		Status models.JobStatus `json:"status"`
	}
	if !decodeJSON(w, r, &req, false) {
		return
	}
	job, err := h.svc.Advance(r.Context(), ref, req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, job)
}

// Complete handles POST /api/v1/jobs/{jobID}/complete.
func (h *Jobs) Complete(w http.ResponseWriter, r *http.Request) {
	ref, ok := staffJobRef(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Complete(r.Context(), ref)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, res)
}

// RecordPayment handles POST /api/v1/jobs/{jobID}/payments.
func (h *Jobs) RecordPayment(w http.ResponseWriter, r *http.Request) {
	ref, ok := staffJobRef(w, r)
	if !ok {
		return
	}
	var req struct {
		Type          string  `json:"payment_type"`
		Amount        float64 `json:"amount"`
		Status        string  `json:"payment_status"`
		Method        *string `json:"payment_method"`
		TransactionID *string `json:"transaction_id"`
	}
	if !decodeJSON(w, r, &req, false) {
		return
	}
	p, err := h.svc.RecordPayment(r.Context(), ref, jobs.PaymentParams{
		Type:          req.Type,
		Amount:        req.Amount,
		Status:        req.Status,
		Method:        req.Method,
		TransactionID: req.TransactionID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, p)
}

// ListPayments handles GET /api/v1/jobs/{jobID}/payments.
func (h *Jobs) ListPayments(w http.ResponseWriter, r *http.Request) {
	ref, ok := jobRef(w, r)
	if !ok {
		return
	}
	payments, err := h.svc.ListPayments(r.Context(), ref)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, payments)
}

// CreateDraft handles POST /api/v1/drafts. Drafts are anonymous; any
// authenticated key may create one.
func (h *Jobs) CreateDraft(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	var req jobRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	job, err := h.svc.CreateDraft(r.Context(), tid, req.params())
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, job)
}

// GetDraft handles GET /api/v1/drafts/{jobID}.
func (h *Jobs) GetDraft(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	jid, ok := urlUUID(w, r, "jobID")
	if !ok {
		return
	}
	job, err := h.svc.GetDraft(r.Context(), tid, jid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, job)
}

// ConfirmDraft handles POST /api/v1/drafts/{jobID}/confirm.
func (h *Jobs) ConfirmDraft(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	jid, ok := urlUUID(w, r, "jobID")
	if !ok {
		return
	}
	cid, ok := clientID(w, r)
	if !ok {
		return
	}
	res, err := h.svc.ConfirmDraft(r.Context(), tid, jid, cid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, res)
}
