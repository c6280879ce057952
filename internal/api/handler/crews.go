package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/clearops/internal/api/response"
	"github.com/kiranshivaraju/clearops/internal/geo"
	"github.com/kiranshivaraju/clearops/internal/geocode"
	"github.com/kiranshivaraju/clearops/internal/store"
	"github.com/kiranshivaraju/clearops/pkg/models"
)

// CrewStore is the slice of the store crew administration needs.
type CrewStore interface {
	GetCrew(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Crew, error)
	UpsertCrew(ctx context.Context, crew *models.Crew) error
	ListCrews(ctx context.Context, tenantID uuid.UUID) ([]*models.Crew, error)
	InTx(ctx context.Context, fn func(tx store.Tx) error) error
}

var errCrewBusy = errors.New("crew is assigned to an active job")

// Crews serves /admin/crews.
type Crews struct {
	store    CrewStore
	geocoder geocode.Geocoder
}

// NewCrews creates crew admin handlers. g may be nil, in which case crews
// must be registered with explicit coordinates to be dispatchable.
func NewCrews(s CrewStore, g geocode.Geocoder) *Crews {
	if g == nil {
		g = geocode.Disabled{}
	}
	return &Crews{store: s, geocoder: g}
}

type crewRequest struct {
	ID          *uuid.UUID         `json:"id"`
	FullName    string             `json:"full_name"`
	Email       string             `json:"email"`
	PhoneNumber *string            `json:"phone_number"`
	Status      *models.CrewStatus `json:"status"`
	IsApproved  bool               `json:"is_approved"`
	Latitude    *float64           `json:"latitude"`
	Longitude   *float64           `json:"longitude"`
	Address     string             `json:"address"`
}

// Upsert handles POST /api/v1/admin/crews. Without an id a new crew is
// registered; with one the crew's profile is replaced. Status on an existing
// crew only moves between available and offline, and never while dispatch
// holds the crew.
func (h *Crews) Upsert(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	var req crewRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.FullName == "" {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "full_name is required", nil)
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "email must be a valid address", nil)
		return
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "latitude and longitude must be set together", nil)
		return
	}
	if p, ok := geo.PointFrom(req.Latitude, req.Longitude); ok && !p.Valid() {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "coordinates out of range", nil)
		return
	}

	now := time.Now().UTC()
	crew := &models.Crew{
		ID:          uuid.New(),
		TenantID:    tid,
		FullName:    req.FullName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Status:      models.CrewStatusAvailable,
		IsApproved:  req.IsApproved,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	created := true

	if req.ID != nil {
		existing, err := h.store.GetCrew(r.Context(), *req.ID, tid)
		switch {
		case err == nil:
			crew.ID = existing.ID
			crew.Status = existing.Status
			crew.CreatedAt = existing.CreatedAt
			created = false
		case errors.Is(err, store.ErrNotFound):
			crew.ID = *req.ID
		default:
			writeError(w, r, err)
			return
		}
	}

	if req.Status != nil {
		switch {
		case *req.Status != models.CrewStatusAvailable && *req.Status != models.CrewStatusOffline:
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "status must be available or offline", nil)
			return
		case crew.Status == models.CrewStatusAssigned && *req.Status != crew.Status:
			response.Error(w, http.StatusConflict, "CREW_BUSY", "Crew is assigned to an active job", nil)
			return
		}
		if created {
			crew.Status = *req.Status
		}
	}

	if !crew.HasLocation() && strings.TrimSpace(req.Address) != "" {
		h.locate(r.Context(), crew, req.Address)
	}

	if err := h.store.UpsertCrew(r.Context(), crew); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			response.Error(w, http.StatusConflict, "DUPLICATE_KEY", "A crew with this email already exists", nil)
			return
		}
		writeError(w, r, err)
		return
	}

	if !created && req.Status != nil && *req.Status != crew.Status {
		status, err := h.setStatus(r.Context(), crew.ID, tid, *req.Status)
		if errors.Is(err, errCrewBusy) {
			response.Error(w, http.StatusConflict, "CREW_BUSY", "Crew is assigned to an active job", nil)
			return
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		crew.Status = status
	}

	slog.Info("crew saved", "tenant_id", tid, "crew_id", crew.ID, "created", created, "located", crew.HasLocation())
	if created {
		response.Created(w, crew)
		return
	}
	response.JSON(w, crew)
}

// setStatus moves a crew between available and offline against its current
// row, so a claim made since the crew was read is never overwritten.
func (h *Crews) setStatus(ctx context.Context, id, tenantID uuid.UUID, to models.CrewStatus) (models.CrewStatus, error) {
	err := h.store.InTx(ctx, func(tx store.Tx) error {
		cur, err := tx.GetCrew(ctx, id, tenantID)
		if err != nil {
			return err
		}
		if cur.Status == to {
			return nil
		}
		if cur.Status == models.CrewStatusAssigned {
			return errCrewBusy
		}
		ok, err := tx.SetCrewStatus(ctx, id, cur.Status, to)
		if err != nil {
			return err
		}
		if !ok {
			return errCrewBusy
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return to, nil
}

func (h *Crews) locate(ctx context.Context, crew *models.Crew, address string) {
	p, found, err := h.geocoder.Resolve(ctx, address)
	if err != nil {
		slog.Warn("crew geocoding failed", "crew_id", crew.ID, "error", err)
		return
	}
	if found {
		crew.Latitude, crew.Longitude = &p.Lat, &p.Lon
	}
}

// List handles GET /api/v1/admin/crews.
func (h *Crews) List(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	crews, err := h.store.ListCrews(r.Context(), tid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if crews == nil {
		crews = []*models.Crew{}
	}
	response.JSON(w, crews)
}
