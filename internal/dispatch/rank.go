package dispatch

import (
	"sort"

	"github.com/kiranshivaraju/clearops/internal/geo"
	"github.com/kiranshivaraju/clearops/pkg/models"
)

// Candidate is a crew with its distance to the job.
type Candidate struct {
	Crew       *models.Crew
	DistanceKm float64
}

// Rank orders located crews by distance from origin, nearest first. The sort
// is stable, so crews at equal distance keep their input order (by id when
// read from the store). Crews without coordinates are dropped.
func Rank(origin geo.Point, crews []*models.Crew) []Candidate {
	out := make([]Candidate, 0, len(crews))
	for _, c := range crews {
		p, ok := geo.PointFrom(c.Latitude, c.Longitude)
		if !ok {
			continue
		}
		out = append(out, Candidate{Crew: c, DistanceKm: geo.Haversine(origin, p)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out
}
