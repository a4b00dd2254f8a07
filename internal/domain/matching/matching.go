// Package matching picks the therapists who can take a booking at a given
// place and time.
package matching

import (
	"sort"
	"time"

	"soulease/backend/internal/domain/availability"
	"soulease/backend/internal/domain/booking"
	"soulease/backend/internal/domain/geo"
	"soulease/backend/internal/domain/therapist"
)

// Candidate is an eligible therapist and their straight-line distance to
// the target.
type Candidate struct {
	therapist.Therapist
	DistanceKm float64 `json:"distanceKm"`
}

// RankNearestAvailable keeps the therapists who resolve as available at
// when, have a known location and have no conflicting booking, ordered by
// distance to target. Ties keep input order. The result is never nil.
func RankNearestAvailable(candidates []therapist.Therapist, target geo.Point, when time.Time, bookings []booking.Booking) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for _, t := range candidates {
		t = t.Resolved(when)
		if t.Available != availability.StatusAvailable {
			continue
		}
		if t.Location == nil {
			continue
		}
		if booking.HasConflict(bookings, t.ID, when) {
			continue
		}
		out = append(out, Candidate{Therapist: t, DistanceKm: geo.DistanceKm(*t.Location, target)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out
}
