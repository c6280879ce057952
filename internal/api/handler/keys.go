package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/clearops/internal/api/middleware"
	"github.com/kiranshivaraju/clearops/internal/api/response"
	"github.com/kiranshivaraju/clearops/internal/store"
	"github.com/kiranshivaraju/clearops/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const rawKeyPrefix = "co_"

var knownScopes = map[string]bool{
	mw.ScopeClient: true,
	mw.ScopeStaff:  true,
	mw.ScopeAdmin:  true,
}

// KeyStore is the slice of the store API key administration needs.
type KeyStore interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error
}

// Keys serves /admin/keys.
type Keys struct {
	store KeyStore
	cost  int
}

func NewKeys(s KeyStore) *Keys {
	return &Keys{store: s, cost: bcrypt.DefaultCost}
}

// NewKeysWithCost is NewKeys with a custom bcrypt cost, for tests.
func NewKeysWithCost(s KeyStore, cost int) *Keys {
	return &Keys{store: s, cost: cost}
}

// GenerateRawKey returns a new random API key.
func GenerateRawKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return rawKeyPrefix + hex.EncodeToString(b), nil
}

// Create handles POST /api/v1/admin/keys. The raw key is only ever returned here.
func (h *Keys) Create(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}

	var req struct {
		Name   string   `json:"name"`
		Scopes []string `json:"scopes"`
	}
	if !decodeJSON(w, r, &req, false) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "name is required", nil)
		return
	}
	if len(req.Scopes) == 0 {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "at least one scope is required", nil)
		return
	}
	for _, s := range req.Scopes {
		if !knownScopes[s] {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				fmt.Sprintf("unknown scope %q", s), nil)
			return
		}
	}

	rawKey, err := GenerateRawKey()
	if err != nil {
		writeError(w, r, err)
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), h.cost)
	if err != nil {
		writeError(w, r, fmt.Errorf("hash api key: %w", err))
		return
	}

	now := time.Now().UTC()
	key := &models.APIKey{
		ID:        uuid.New(),
		TenantID:  tid,
		Name:      req.Name,
		KeyHash:   string(hash),
		KeyPrefix: rawKey[:mw.KeyPrefixLen],
		Scopes:    req.Scopes,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.store.CreateAPIKey(r.Context(), key); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			response.Error(w, http.StatusConflict, "DUPLICATE_KEY", "API key with this name already exists", nil)
			return
		}
		writeError(w, r, err)
		return
	}
	slog.Info("api key created", "tenant_id", tid, "key_id", key.ID, "scopes", key.Scopes)

	response.Created(w, map[string]any{
		"id":         key.ID.String(),
		"name":       key.Name,
		"key":        rawKey, // Only shown once at creation
		"key_prefix": key.KeyPrefix,
		"scopes":     key.Scopes,
		"created_at": key.CreatedAt,
	})
}

// List handles GET /api/v1/admin/keys.
func (h *Keys) List(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	keys, err := h.store.ListAPIKeys(r.Context(), tid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if keys == nil {
		keys = []*models.APIKey{}
	}
	// KeyHash is never serialised.
	response.JSON(w, keys)
}

// Revoke handles DELETE /api/v1/admin/keys/{keyID}.
func (h *Keys) Revoke(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	id, ok := urlUUID(w, r, "keyID")
	if !ok {
		return
	}
	if err := h.store.RevokeAPIKey(r.Context(), id, tid); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("api key revoked", "tenant_id", tid, "key_id", id)
	response.NoContent(w)
}
