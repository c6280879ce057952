package middleware

import (
	"context"
	"net/http"
	"slices"
	"sync"

	"github.com/google/uuid"
)

type contextKey string

const (
	tenantIDKey     contextKey = "tenant_id"
	keyPrefixKey    contextKey = "key_prefix"
	apiKeyScopesKey contextKey = "api_key_scopes"
	clientIDKey     contextKey = "client_id"
	requestInfoKey  contextKey = "request_info"
)

// requestInfo gathers the caller's identity as inner middleware resolves it,
// so Logger and Recovery, which run before auth, can report who called.
type requestInfo struct {
	mu        sync.Mutex
	tenantID  *uuid.UUID
	clientID  *uuid.UUID
	keyPrefix string
}

func withRequestInfo(ctx context.Context) (context.Context, *requestInfo) {
	info := &requestInfo{}
	return context.WithValue(ctx, requestInfoKey, info), info
}

func requestInfoFrom(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(requestInfoKey).(*requestInfo)
	return info
}

func noteRequest(ctx context.Context, fn func(*requestInfo)) {
	if info := requestInfoFrom(ctx); info != nil {
		info.mu.Lock()
		fn(info)
		info.mu.Unlock()
	}
}

// attrs returns slog key/value pairs for whatever identity is known.
func (i *requestInfo) attrs() []any {
	if i == nil {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	var out []any
	if i.tenantID != nil {
		out = append(out, "tenant_id", *i.tenantID)
	}
	if i.keyPrefix != "" {
		out = append(out, "key_prefix", i.keyPrefix)
	}
	if i.clientID != nil {
		out = append(out, "client_id", *i.clientID)
	}
	return out
}

func SetTenantID(ctx context.Context, id uuid.UUID) context.Context {
	noteRequest(ctx, func(i *requestInfo) { i.tenantID = &id })
	return context.WithValue(ctx, tenantIDKey, id)
}

func GetTenantID(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(tenantIDKey).(uuid.UUID)
	return id, ok
}

func SetClientID(ctx context.Context, id uuid.UUID) context.Context {
	noteRequest(ctx, func(i *requestInfo) { i.clientID = &id })
	return context.WithValue(ctx, clientIDKey, id)
}

// GetClientID returns the end client the request acts for, if any.
func GetClientID(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(clientIDKey).(uuid.UUID)
	return id, ok
}

func setKeyPrefix(ctx context.Context, prefix string) context.Context {
	noteRequest(ctx, func(i *requestInfo) { i.keyPrefix = prefix })
	return context.WithValue(ctx, keyPrefixKey, prefix)
}

func getKeyPrefix(r *http.Request) (string, bool) {
	prefix, ok := r.Context().Value(keyPrefixKey).(string)
	return prefix, ok
}

func SetScopes(ctx context.Context, scopes []string) context.Context {
	return context.WithValue(ctx, apiKeyScopesKey, scopes)
}

func getScopes(r *http.Request) []string {
	scopes, _ := r.Context().Value(apiKeyScopesKey).([]string)
	return scopes
}

// HasScope reports whether the authenticated key carries scope. The admin
// scope satisfies every check.
func HasScope(r *http.Request, scope string) bool {
	scopes := getScopes(r)
	return slices.Contains(scopes, scope) || slices.Contains(scopes, ScopeAdmin)
}

// ExportedKeyPrefixKey returns the context key for key_prefix (for testing).
func ExportedKeyPrefixKey() contextKey {
	return keyPrefixKey
}
