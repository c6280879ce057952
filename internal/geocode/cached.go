package geocode

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/clearops/internal/cache"
	"github.com/kiranshivaraju/clearops/internal/geo"
)

type cachedResult struct {
	Found bool    `json:"found"`
	Lat   float64 `json:"lat,omitempty"`
	Lon   float64 `json:"lon,omitempty"`
}

// Cached memoizes another Geocoder's answers in Redis, including "not found"
// answers. Errors are never cached.
type Cached struct {
	next  Geocoder
	cache cache.Cache
	ttl   time.Duration
}

// NewCached wraps next with a Redis-backed cache.
func NewCached(next Geocoder, c cache.Cache, ttl time.Duration) *Cached {
	return &Cached{next: next, cache: c, ttl: ttl}
}

func (c *Cached) Name() string { return c.next.Name() }

func (c *Cached) Resolve(ctx context.Context, address string) (geo.Point, bool, error) {
	key := cache.GeocodeKey(c.next.Name(), address)

	raw, found, err := c.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("geocode cache read failed", "error", err)
	} else if found {
		var hit cachedResult
		if err := json.Unmarshal(raw, &hit); err == nil {
			return geo.Point{Lat: hit.Lat, Lon: hit.Lon}, hit.Found, nil
		}
	}

	p, ok, err := c.next.Resolve(ctx, address)
	if err != nil {
		return geo.Point{}, false, err
	}

	data, _ := json.Marshal(cachedResult{Found: ok, Lat: p.Lat, Lon: p.Lon})
	if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
		slog.Warn("geocode cache write failed", "error", err)
	}
	return p, ok, nil
}

var _ Geocoder = (*Cached)(nil)
