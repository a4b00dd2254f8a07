package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"soulease/backend/internal/domain/booking"
)

var ErrBadRequest = errors.New("bad request")

func IsErrBadRequest(err error) bool { return errors.Is(err, ErrBadRequest) }

// maxDays caps the range of one report.
const maxDays = 366

type Bookings interface {
	ListAll(ctx context.Context, from, to time.Time) ([]booking.Booking, error)
}

type Service struct {
	bookings Bookings
	now      func() time.Time
}

func NewService(bookings Bookings, now func() time.Time) *Service {
	return &Service{bookings: bookings, now: now}
}

// Report summarizes the days from..to inclusive, given as YYYY-MM-DD in the
// business time zone. Empty bounds default to the last 30 days.
func (s *Service) Report(ctx context.Context, from, to string) (*Summary, error) {
	now := s.now()
	loc := now.Location()

	end := startOfDay(now).AddDate(0, 0, 1)
	if to != "" {
		d, err := time.ParseInLocation(dateKey, to, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: to must be YYYY-MM-DD", ErrBadRequest)
		}
		end = d.AddDate(0, 0, 1)
	}
	start := end.AddDate(0, 0, -30)
	if from != "" {
		d, err := time.ParseInLocation(dateKey, from, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: from must be YYYY-MM-DD", ErrBadRequest)
		}
		start = d
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: from must not be after to", ErrBadRequest)
	}
	if end.Sub(start) > maxDays*24*time.Hour+time.Hour {
		return nil, fmt.Errorf("%w: range exceeds %d days", ErrBadRequest, maxDays)
	}

	bs, err := s.bookings.ListAll(ctx, start, end)
	if err != nil {
		return nil, err
	}
	sum := Aggregate(bs, start, end, loc)
	return &sum, nil
}
