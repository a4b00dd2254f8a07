package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"soulease/backend/internal/domain/availability"
	"soulease/backend/internal/domain/geo"
	"soulease/backend/internal/domain/therapist"
	"soulease/backend/internal/notify"
	"soulease/backend/internal/utils"
)

const (
	maxDurationMin = 8 * 60
	maxReviewRunes = 1000
	maxNoteRunes   = 500
	defaultRange   = 30 * 24 * time.Hour
)

// Store is the persistence the service needs; *Repo implements it.
type Store interface {
	Create(ctx context.Context, b Booking, countToday bool) (string, error)
	Get(ctx context.Context, id string) (*Booking, error)
	ListByUser(ctx context.Context, userID string) ([]Booking, error)
	ListByTherapist(ctx context.Context, therapistID string) ([]Booking, error)
	ListRange(ctx context.Context, from, to time.Time) ([]Booking, error)
	UpdateStatus(ctx context.Context, id string, to Status, now time.Time, check func(Booking) error) (*Booking, error)
	Review(ctx context.Context, id string, in ReviewInput, check func(Booking) error) (*Booking, error)
}

// Therapists looks up the therapist a booking is for.
type Therapists interface {
	Get(ctx context.Context, id string) (*therapist.Therapist, error)
}

// Router estimates the driving route between two points.
type Router interface {
	DrivingDistance(ctx context.Context, from, to geo.Point) (geo.Route, error)
}

type Service struct {
	store      Store
	therapists Therapists
	router     Router
	notifier   notify.Notifier
	fees       FeePolicy
	now        func() time.Time
	log        *zap.Logger
}

type Options struct {
	Router   Router
	Notifier notify.Notifier
	// Fees defaults to DefaultFeePolicy when nil.
	Fees   *FeePolicy
	Now    func() time.Time
	Logger *zap.Logger
}

func NewService(store Store, therapists Therapists, opts Options) *Service {
	s := &Service{
		store:      store,
		therapists: therapists,
		router:     opts.Router,
		notifier:   opts.Notifier,
		fees:       DefaultFeePolicy,
		now:        opts.Now,
		log:        opts.Logger,
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	if opts.Fees != nil {
		s.fees = *opts.Fees
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// Create books a therapist for userID. The therapist must not be on
// holiday, must be working at the requested time and must have no other
// booking within ConflictWindow.
func (s *Service) Create(ctx context.Context, userID string, in CreateBookingInput) (*Booking, error) {
	in.Trim()
	if in.TherapistID == "" {
		return nil, fmt.Errorf("%w: therapistId is required", ErrBadRequest)
	}
	if in.ServiceName == "" {
		return nil, fmt.Errorf("%w: serviceName is required", ErrBadRequest)
	}
	if in.ServicePrice < 0 {
		return nil, fmt.Errorf("%w: servicePrice must not be negative", ErrBadRequest)
	}
	if in.DurationMin <= 0 || in.DurationMin > maxDurationMin {
		return nil, fmt.Errorf("%w: durationMin must be 1-%d", ErrBadRequest, maxDurationMin)
	}
	if !in.Location.Valid() || in.Location.IsZero() {
		return nil, fmt.Errorf("%w: location is required", ErrBadRequest)
	}

	now := s.now()
	when, err := utils.ParseTime(in.ScheduledAt, now.Location())
	if err != nil {
		return nil, fmt.Errorf("%w: scheduledAt: %v", ErrBadRequest, err)
	}
	when = when.In(now.Location()).Truncate(time.Minute)
	if when.Before(now.Truncate(time.Minute)) {
		return nil, fmt.Errorf("%w: scheduledAt is in the past", ErrBadRequest)
	}

	t, err := s.therapists.Get(ctx, in.TherapistID)
	if err != nil {
		if therapist.IsErrNotFound(err) {
			return nil, fmt.Errorf("%w: therapist %s", ErrNotFound, in.TherapistID)
		}
		return nil, err
	}
	if availability.IsHoliday(t.ManualStatus) {
		return nil, fmt.Errorf("%w: %s is on holiday", ErrUnavailable, t.Name)
	}
	if !t.Window.ContainsTime(when) {
		return nil, fmt.Errorf("%w: %s works %s-%s", ErrUnavailable, t.Name, t.StartTime, t.EndTime)
	}

	route := s.route(ctx, t, in.Location)
	fee := s.fees.TravelFee(route.DistanceKm)

	b := Booking{
		TherapistID:   t.ID,
		TherapistName: t.Name,
		UserID:        userID,
		UserName:      utils.TrimMax(in.UserName, 100),
		Phone:         utils.TrimMax(in.Phone, 32),
		ServiceName:   in.ServiceName,
		ServicePrice:  in.ServicePrice,
		DurationMin:   in.DurationMin,
		ScheduledAt:   when.UTC(),
		Address:       utils.TrimMax(in.Address, 300),
		Location:      in.Location,
		DistanceKm:    route.DistanceKm,
		TravelFee:     fee,
		Total:         in.ServicePrice + fee,
		Status:        StatusPending,
		Note:          utils.TrimMax(in.Note, maxNoteRunes),
		CreatedAt:     now.UTC(),
		UpdatedAt:     now.UTC(),
	}
	id, err := s.store.Create(ctx, b, CountsToday(when, now))
	if err != nil {
		return nil, err
	}
	b.ID = id
	b.UserStatus = b.Status.UserStatus()

	s.log.Info("booking created",
		zap.String("bookingId", id),
		zap.String("therapistId", t.ID),
		zap.Time("scheduledAt", b.ScheduledAt),
		zap.Float64("distanceKm", b.DistanceKm),
		zap.Bool("estimatedDistance", route.Estimated),
	)
	s.notify(ctx, notify.EventCreated, b, t.FCMToken)
	return &b, nil
}

// route returns the driving route from the therapist to dest, falling back
// to straight-line distance when maps are unavailable. A therapist without
// a known location travels zero kilometres.
func (s *Service) route(ctx context.Context, t *therapist.Therapist, dest geo.Point) geo.Route {
	if t.Location == nil {
		return geo.Route{Estimated: true}
	}
	if s.router != nil {
		r, err := s.router.DrivingDistance(ctx, *t.Location, dest)
		if err == nil {
			return r
		}
		s.log.Warn("driving distance failed, using straight line",
			zap.String("therapistId", t.ID), zap.Error(err))
	}
	return geo.StraightLine(*t.Location, dest)
}

// Get returns a booking visible to actor.
func (s *Service) Get(ctx context.Context, actor Actor, id string) (*Booking, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: bookingId is required", ErrBadRequest)
	}
	b, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canSee(actor, *b) {
		return nil, fmt.Errorf("%w: booking %s", ErrForbidden, id)
	}
	return b, nil
}

func (s *Service) ListForUser(ctx context.Context, userID string) ([]Booking, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrBadRequest)
	}
	return s.store.ListByUser(ctx, userID)
}

func (s *Service) ListForTherapist(ctx context.Context, therapistID string) ([]Booking, error) {
	if therapistID == "" {
		return nil, fmt.Errorf("%w: therapistId is required", ErrBadRequest)
	}
	return s.store.ListByTherapist(ctx, therapistID)
}

// ListAll returns bookings scheduled in [from, to). Zero bounds default to
// the last 30 days up to now plus 30 days.
func (s *Service) ListAll(ctx context.Context, from, to time.Time) ([]Booking, error) {
	now := s.now()
	if from.IsZero() {
		from = now.Add(-defaultRange)
	}
	if to.IsZero() {
		to = now.Add(defaultRange)
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: from must be before to", ErrBadRequest)
	}
	return s.store.ListRange(ctx, from, to)
}

// ListAround returns every booking that could conflict with when.
func (s *Service) ListAround(ctx context.Context, when time.Time) ([]Booking, error) {
	return s.store.ListRange(ctx, when.Add(-ConflictWindow), when.Add(ConflictWindow+time.Second))
}

// UpdateStatus moves a booking along its lifecycle. Admins may change any
// booking, therapists their own, and users may only cancel theirs.
func (s *Service) UpdateStatus(ctx context.Context, actor Actor, id string, to Status) (*Booking, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: bookingId is required", ErrBadRequest)
	}
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrBadRequest, to)
	}
	b, err := s.store.UpdateStatus(ctx, id, to, s.now(), func(cur Booking) error {
		switch {
		case actor.Admin:
		case actor.TherapistID != "" && actor.TherapistID == cur.TherapistID:
		case actor.UID != "" && actor.UID == cur.UserID && to == StatusCancelled:
		default:
			return fmt.Errorf("%w: cannot set booking %s to %s", ErrForbidden, id, to)
		}
		if !CanTransition(cur.Status, to) {
			return fmt.Errorf("%w: booking is %s, cannot become %s", ErrConflict, cur.Status, to)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("booking status changed",
		zap.String("bookingId", id), zap.String("status", string(to)), zap.String("actor", actor.UID))
	s.notify(ctx, notify.EventStatusChanged, *b, s.deviceToken(ctx, b.TherapistID))
	return b, nil
}

func (s *Service) Cancel(ctx context.Context, actor Actor, id string) (*Booking, error) {
	return s.UpdateStatus(ctx, actor, id, StatusCancelled)
}

// Review rates a completed booking. Only the booking's customer may review,
// and only once.
func (s *Service) Review(ctx context.Context, userID, id string, in ReviewInput) (*Booking, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: bookingId is required", ErrBadRequest)
	}
	if in.Rating < 1 || in.Rating > 5 {
		return nil, fmt.Errorf("%w: rating must be 1-5", ErrBadRequest)
	}
	in.Text = utils.TrimMax(in.Text, maxReviewRunes)

	b, err := s.store.Review(ctx, id, in, func(cur Booking) error {
		if cur.UserID == "" || cur.UserID != userID {
			return fmt.Errorf("%w: not your booking", ErrForbidden)
		}
		if cur.Status != StatusCompleted {
			return fmt.Errorf("%w: only completed bookings can be reviewed", ErrConflict)
		}
		if cur.Reviewed() {
			return fmt.Errorf("%w: booking already reviewed", ErrConflict)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, notify.EventReviewed, *b, "")
	return b, nil
}

func (s *Service) deviceToken(ctx context.Context, therapistID string) string {
	t, err := s.therapists.Get(ctx, therapistID)
	if err != nil {
		return ""
	}
	return t.FCMToken
}

func (s *Service) notify(ctx context.Context, kind notify.EventKind, b Booking, token string) {
	ev := notify.BookingEvent{
		ID:            uuid.NewString(),
		Kind:          kind,
		BookingID:     b.ID,
		TherapistID:   b.TherapistID,
		TherapistName: b.TherapistName,
		UserName:      b.UserName,
		Phone:         b.Phone,
		ServiceName:   b.ServiceName,
		ScheduledAt:   b.ScheduledAt.In(s.now().Location()),
		Address:       b.Address,
		Location:      b.Location,
		DistanceKm:    b.DistanceKm,
		TravelFee:     b.TravelFee,
		Total:         b.Total,
		Status:        string(b.Status),
		Rating:        b.Rating,
		DeviceToken:   token,
	}
	if err := s.notifier.NotifyBooking(ctx, ev); err != nil {
		s.log.Warn("booking notification failed",
			zap.String("bookingId", b.ID), zap.String("kind", string(kind)), zap.Error(err))
	}
}

func canSee(actor Actor, b Booking) bool {
	return actor.Admin ||
		(actor.UID != "" && actor.UID == b.UserID) ||
		(actor.TherapistID != "" && actor.TherapistID == b.TherapistID)
}
