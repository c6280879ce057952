package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/kiranshivaraju/clearops/internal/geo"
	"github.com/kiranshivaraju/clearops/internal/geocode"
)

// Geocoder satisfies geocode.Geocoder for testing.
type Geocoder struct {
	Name_       string
	ResolveFunc func(ctx context.Context, address string) (geo.Point, bool, error)

	mu    sync.Mutex
	calls []string
}

func (m *Geocoder) Name() string { return m.Name_ }

func (m *Geocoder) Resolve(ctx context.Context, address string) (geo.Point, bool, error) {
	m.mu.Lock()
	m.calls = append(m.calls, address)
	m.mu.Unlock()

	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, address)
	}
	return geo.Point{}, false, nil
}

// Calls returns the addresses passed to Resolve so far.
func (m *Geocoder) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// NewStaticGeocoder resolves addresses from a fixed table, case-insensitively.
// Unknown addresses are reported as not found.
func NewStaticGeocoder(places map[string]geo.Point) *Geocoder {
	table := make(map[string]geo.Point, len(places))
	for addr, p := range places {
		table[strings.ToLower(addr)] = p
	}
	return &Geocoder{
		Name_: "mock",
		ResolveFunc: func(_ context.Context, address string) (geo.Point, bool, error) {
			p, ok := table[strings.ToLower(address)]
			return p, ok, nil
		},
	}
}

// NewFailingGeocoder returns a Geocoder that always returns the given error.
func NewFailingGeocoder(err error) *Geocoder {
	return &Geocoder{
		Name_: "mock-failing",
		ResolveFunc: func(_ context.Context, _ string) (geo.Point, bool, error) {
			return geo.Point{}, false, err
		},
	}
}

// NewTimeoutGeocoder returns a Geocoder that blocks until context is cancelled.
func NewTimeoutGeocoder() *Geocoder {
	return &Geocoder{
		Name_: "mock-timeout",
		ResolveFunc: func(ctx context.Context, _ string) (geo.Point, bool, error) {
			<-ctx.Done()
			return geo.Point{}, false, geocode.ErrTimeout
		},
	}
}

// Compile-time check that Geocoder implements geocode.Geocoder.
var _ geocode.Geocoder = (*Geocoder)(nil)
