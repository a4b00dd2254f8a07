package http

import (
	"context"
	"time"

	"soulease/backend/internal/domain/admin"
	"soulease/backend/internal/domain/booking"
	"soulease/backend/internal/domain/geo"
	"soulease/backend/internal/domain/matching"
	"soulease/backend/internal/domain/report"
	"soulease/backend/internal/domain/therapist"
	"soulease/backend/internal/domain/user"
	"soulease/backend/internal/maps"
	"soulease/backend/internal/uploads"
)

type TherapistService interface {
	List(ctx context.Context, q string) ([]therapist.Therapist, error)
	Get(ctx context.Context, id string) (*therapist.Therapist, error)
	Create(ctx context.Context, in therapist.CreateTherapistInput) (*therapist.Therapist, error)
	Update(ctx context.Context, id string, in therapist.UpdateTherapistInput) (*therapist.Therapist, error)
	Delete(ctx context.Context, id string) error
	SetHoliday(ctx context.Context, id string, on bool) (*therapist.Therapist, error)
	UpdateLocation(ctx context.Context, id string, p geo.Point) (*therapist.Therapist, error)
	UpdateSchedule(ctx context.Context, id, start, end string) (*therapist.Therapist, error)
	UpdateFCMToken(ctx context.Context, id, token string) error
	NextSlot(ctx context.Context, id string, durationMin int) (string, error)
	Subscribe(ctx context.Context, onChange func([]therapist.Therapist)) (unsubscribe func())
}

type BookingService interface {
	Create(ctx context.Context, userID string, in booking.CreateBookingInput) (*booking.Booking, error)
	Get(ctx context.Context, actor booking.Actor, id string) (*booking.Booking, error)
	ListForUser(ctx context.Context, userID string) ([]booking.Booking, error)
	ListForTherapist(ctx context.Context, therapistID string) ([]booking.Booking, error)
	ListAll(ctx context.Context, from, to time.Time) ([]booking.Booking, error)
	UpdateStatus(ctx context.Context, actor booking.Actor, id string, to booking.Status) (*booking.Booking, error)
	Cancel(ctx context.Context, actor booking.Actor, id string) (*booking.Booking, error)
	Review(ctx context.Context, userID, id string, in booking.ReviewInput) (*booking.Booking, error)
}

type MatchingService interface {
	Nearest(ctx context.Context, target geo.Point, when time.Time, limit int) ([]matching.Candidate, error)
}

type ReportService interface {
	Report(ctx context.Context, from, to string) (*report.Summary, error)
}

type AdminService interface {
	ListAdmins(ctx context.Context) ([]user.Profile, error)
	Grant(ctx context.Context, actorUID string, in admin.GrantInput) (*user.Profile, error)
	Revoke(ctx context.Context, actorUID, uid string) (*user.Profile, error)
}

// Maps is the geocoding and routing adapter; nil disables geocoding and
// distance falls back to straight-line.
type Maps interface {
	Geocode(ctx context.Context, address string) (*maps.Address, error)
	ReverseGeocode(ctx context.Context, p geo.Point) (*maps.Address, error)
	DrivingDistance(ctx context.Context, from, to geo.Point) (geo.Route, error)
}

type UploadSigner interface {
	SignedUploadURL(ctx context.Context, therapistID, contentType string) (*uploads.UploadURL, error)
}
