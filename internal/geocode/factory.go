package geocode

import (
	"fmt"

	"github.com/kiranshivaraju/clearops/internal/cache"
	"github.com/kiranshivaraju/clearops/internal/config"
)

// New constructs the configured geocoder. Called once at server startup.
// When c is non-nil and a cache TTL is configured, results are cached in Redis.
func New(cfg config.GeocoderConfig, c cache.Cache) (Geocoder, error) {
	switch cfg.Provider {
	case "disabled":
		return Disabled{}, nil
	case "nominatim":
		var g Geocoder = NewNominatim(cfg)
		if c != nil && cfg.CacheTTL > 0 {
			g = NewCached(g, c, cfg.CacheTTL)
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown geocoder %q: must be one of nominatim, disabled", cfg.Provider)
	}
}
