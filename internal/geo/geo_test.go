package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	london = Point{Lat: 51.5074, Lon: -0.1278}
	paris  = Point{Lat: 48.8566, Lon: 2.3522}
)

func TestHaversine_SamePointIsZero(t *testing.T) {
	assert.Zero(t, Haversine(london, london))
}

func TestHaversine_Symmetric(t *testing.T) {
	assert.InDelta(t, Haversine(london, paris), Haversine(paris, london), 1e-9)
}

func TestHaversine_LondonParis(t *testing.T) {
	assert.InDelta(t, 343.5, Haversine(london, paris), 1.0)
}

func TestHaversine_Antipodal(t *testing.T) {
	d := Haversine(Point{Lat: 0, Lon: 0}, Point{Lat: 0, Lon: 180})
	assert.InDelta(t, math.Pi*EarthRadiusKm, d, 1e-6)
}

func TestHaversine_NearbyOrdering(t *testing.T) {
	job := Point{Lat: 51.5, Lon: -0.12}
	near := Point{Lat: 51.51, Lon: -0.12}
	far := Point{Lat: 51.6, Lon: -0.12}
	assert.Less(t, Haversine(job, near), Haversine(job, far))
}

func TestPointFrom(t *testing.T) {
	lat, lon := 51.5, -0.1

	p, ok := PointFrom(&lat, &lon)
	assert.True(t, ok)
	assert.Equal(t, Point{Lat: 51.5, Lon: -0.1}, p)

	_, ok = PointFrom(&lat, nil)
	assert.False(t, ok)
	_, ok = PointFrom(nil, &lon)
	assert.False(t, ok)
}

func TestPoint_Valid(t *testing.T) {
	assert.True(t, london.Valid())
	assert.False(t, Point{Lat: 91, Lon: 0}.Valid())
	assert.False(t, Point{Lat: 0, Lon: -181}.Valid())
	assert.False(t, Point{Lat: math.NaN(), Lon: 0}.Valid())
}
