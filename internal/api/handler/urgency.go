package handler

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/clearops/internal/api/response"
	"github.com/kiranshivaraju/clearops/pkg/models"
)

// UrgencyLister lists the active urgency levels.
type UrgencyLister interface {
	ListUrgencyLevels(ctx context.Context) ([]*models.UrgencyLevel, error)
}

// NewUrgencyLevelsHandler returns an http.HandlerFunc for GET /api/v1/urgency-levels.
func NewUrgencyLevelsHandler(s UrgencyLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		levels, err := s.ListUrgencyLevels(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		if levels == nil {
			levels = []*models.UrgencyLevel{}
		}
		response.JSON(w, levels)
	}
}
