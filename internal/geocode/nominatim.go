package geocode

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kiranshivaraju/clearops/internal/config"
	"github.com/kiranshivaraju/clearops/internal/geo"
	"golang.org/x/time/rate"
)

// Nominatim resolves addresses with an OpenStreetMap Nominatim server. The
// public instance allows one request per second, so calls are throttled.
type Nominatim struct {
	client       *resty.Client
	limiter      *rate.Limiter
	countryCodes string
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// NewNominatim creates a Nominatim geocoder from config.
func NewNominatim(cfg config.GeocoderConfig) *Nominatim {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && r.StatusCode() >= http.StatusInternalServerError
		}).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "application/json")

	return &Nominatim{
		client:       client,
		limiter:      rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		countryCodes: cfg.CountryCodes,
	}
}

func (n *Nominatim) Name() string { return "nominatim" }

func (n *Nominatim) Resolve(ctx context.Context, address string) (geo.Point, bool, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return geo.Point{}, false, nil
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return geo.Point{}, false, fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	params := map[string]string{
		"q":      address,
		"format": "jsonv2",
		"limit":  "1",
	}
	if n.countryCodes != "" {
		params["countrycodes"] = n.countryCodes
	}

	var places []nominatimPlace
	resp, err := n.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&places).
		ForceContentType("application/json").
		Get("/search")
	if err != nil {
		return geo.Point{}, false, classifyError(err)
	}
	if resp.StatusCode() != http.StatusOK {
		return geo.Point{}, false, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode())
	}

	if len(places) == 0 {
		return geo.Point{}, false, nil
	}

	lat, errLat := strconv.ParseFloat(places[0].Lat, 64)
	lon, errLon := strconv.ParseFloat(places[0].Lon, 64)
	if errLat != nil || errLon != nil {
		return geo.Point{}, false, fmt.Errorf("%w: bad coordinates %q,%q", ErrInvalidResponse, places[0].Lat, places[0].Lon)
	}

	p := geo.Point{Lat: lat, Lon: lon}
	if !p.Valid() {
		return geo.Point{}, false, fmt.Errorf("%w: coordinates out of range", ErrInvalidResponse)
	}
	return p, true, nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Compile-time check that Nominatim implements Geocoder.
var _ Geocoder = (*Nominatim)(nil)
