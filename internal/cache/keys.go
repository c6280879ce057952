package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

func JobStatusKey(tenantID, jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s:%s", tenantID, jobID)
}

// RateLimitKey scopes a rate limit bucket to a tenant and the caller within it.
func RateLimitKey(tenantID uuid.UUID, subject string) string {
	return fmt.Sprintf("ratelimit:%s:%s", tenantID, subject)
}

func UrgencyLevelKey(id uuid.UUID) string {
	return fmt.Sprintf("urgency:%s", id)
}

// GeocodeKey normalises the address before hashing so trivially different
// spellings share an entry.
func GeocodeKey(provider, address string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(address)), " ")
	sum := sha256.Sum256([]byte(norm))
	return fmt.Sprintf("geocode:%s:%s", provider, hex.EncodeToString(sum[:]))
}
