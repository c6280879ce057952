package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/clearops/internal/api/middleware"
	"github.com/kiranshivaraju/clearops/internal/api/response"
	"github.com/kiranshivaraju/clearops/internal/jobs"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads the request body into v. An empty body is accepted when
// optional is set, leaving v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
	return false
}

func tenantID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := mw.GetTenantID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
	}
	return id, ok
}

func urlUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", param+" must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

// clientID returns the client the request acts for and rejects requests without one.
func clientID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := mw.GetClientID(r)
	if !ok {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", mw.ClientIDHeader+" header is required", nil)
	}
	return id, ok
}

// scope returns the client restriction for a read or client action. Requests
// without X-Client-ID act for staff and need the staff scope.
func scope(w http.ResponseWriter, r *http.Request) (*uuid.UUID, bool) {
	if id, ok := mw.GetClientID(r); ok {
		return &id, true
	}
	if !mw.HasScope(r, mw.ScopeStaff) {
		response.Error(w, http.StatusForbidden, "FORBIDDEN",
			mw.ClientIDHeader+" header is required for non-staff keys", nil)
		return nil, false
	}
	return nil, true
}

// jobRef builds a client-scoped (or staff) reference to the job in the URL.
func jobRef(w http.ResponseWriter, r *http.Request) (jobs.Ref, bool) {
	tid, ok := tenantID(w, r)
	if !ok {
		return jobs.Ref{}, false
	}
	jid, ok := urlUUID(w, r, "jobID")
	if !ok {
		return jobs.Ref{}, false
	}
	cid, ok := scope(w, r)
	if !ok {
		return jobs.Ref{}, false
	}
	return jobs.Ref{TenantID: tid, JobID: jid, ClientID: cid}, true
}

// clientJobRef is jobRef for actions only the owning client may take.
func clientJobRef(w http.ResponseWriter, r *http.Request) (jobs.Ref, bool) {
	tid, ok := tenantID(w, r)
	if !ok {
		return jobs.Ref{}, false
	}
	jid, ok := urlUUID(w, r, "jobID")
	if !ok {
		return jobs.Ref{}, false
	}
	cid, ok := clientID(w, r)
	if !ok {
		return jobs.Ref{}, false
	}
	return jobs.Ref{TenantID: tid, JobID: jid, ClientID: &cid}, true
}

// staffJobRef is jobRef for staff-only routes; X-Client-ID is ignored.
func staffJobRef(w http.ResponseWriter, r *http.Request) (jobs.Ref, bool) {
	tid, ok := tenantID(w, r)
	if !ok {
		return jobs.Ref{}, false
	}
	jid, ok := urlUUID(w, r, "jobID")
	if !ok {
		return jobs.Ref{}, false
	}
	return jobs.Ref{TenantID: tid, JobID: jid}, true
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
