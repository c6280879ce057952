// Package geocode turns free-text property addresses into coordinates.
package geocode

import (
	"context"
	"errors"

	"github.com/kiranshivaraju/clearops/internal/geo"
)

var (
	ErrUnavailable     = errors.New("geocoder unavailable")
	ErrTimeout         = errors.New("geocoder timeout")
	ErrInvalidResponse = errors.New("geocoder returned invalid response")
)

// Geocoder resolves an address. ok is false when the address could not be
// located; err is reserved for transport and provider failures. Callers treat
// both as "no location" and carry on without dispatch.
type Geocoder interface {
	Name() string
	Resolve(ctx context.Context, address string) (p geo.Point, ok bool, err error)
}

// Disabled never resolves anything. Jobs stay in job_created until a crew is
// assigned by hand.
type Disabled struct{}

func (Disabled) Name() string { return "disabled" }

func (Disabled) Resolve(context.Context, string) (geo.Point, bool, error) {
	return geo.Point{}, false, nil
}
