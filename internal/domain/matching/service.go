package matching

import (
	"context"
	"fmt"
	"time"

	"soulease/backend/internal/domain/booking"
	"soulease/backend/internal/domain/geo"
	"soulease/backend/internal/domain/therapist"
)

type Roster interface {
	All(ctx context.Context) ([]therapist.Therapist, error)
}

type Bookings interface {
	ListAround(ctx context.Context, when time.Time) ([]booking.Booking, error)
}

type Service struct {
	roster   Roster
	bookings Bookings
	now      func() time.Time
}

func NewService(roster Roster, bookings Bookings, now func() time.Time) *Service {
	return &Service{roster: roster, bookings: bookings, now: now}
}

// Nearest ranks therapists free at when around target. A zero when means now.
func (s *Service) Nearest(ctx context.Context, target geo.Point, when time.Time, limit int) ([]Candidate, error) {
	if !target.Valid() || target.IsZero() {
		return nil, fmt.Errorf("%w: invalid target location", ErrBadRequest)
	}
	if when.IsZero() {
		when = s.now()
	}
	when = when.In(s.now().Location())

	ts, err := s.roster.All(ctx)
	if err != nil {
		return nil, err
	}
	bs, err := s.bookings.ListAround(ctx, when)
	if err != nil {
		return nil, err
	}
	out := RankNearestAvailable(ts, target, when, bs)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
