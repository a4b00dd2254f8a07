package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"soulease/backend/internal/domain/availability"
	"soulease/backend/internal/domain/geo"
	"soulease/backend/internal/domain/therapist"
	"soulease/backend/internal/notify"
)

var ict = time.FixedZone("ICT", 7*60*60)

type memStore struct {
	mu    sync.Mutex
	docs  map[string]Booking
	seq   int
	today map[string]int64
	total map[string]int64
}

func newMemStore() *memStore {
	return &memStore{docs: map[string]Booking{}, today: map[string]int64{}, total: map[string]int64{}}
}

func (m *memStore) counters(therapistID string) (today, total int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.today[therapistID], m.total[therapistID]
}

func (m *memStore) Create(_ context.Context, b Booking, countToday bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cur := range m.docs {
		if cur.TherapistID == b.TherapistID && Conflicts(cur, b.ScheduledAt) {
			return "", fmt.Errorf("%w: overlapping booking", ErrConflict)
		}
	}
	m.seq++
	b.ID = fmt.Sprintf("b%d", m.seq)
	m.docs[b.ID] = b
	m.total[b.TherapistID]++
	if countToday {
		m.today[b.TherapistID]++
	}
	return b.ID, nil
}

func (m *memStore) Get(_ context.Context, id string) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (m *memStore) filter(keep func(Booking) bool) []Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Booking{}
	for _, b := range m.docs {
		if keep(b) {
			out = append(out, b)
		}
	}
	return out
}

func (m *memStore) ListByUser(_ context.Context, uid string) ([]Booking, error) {
	return m.filter(func(b Booking) bool { return b.UserID == uid }), nil
}

func (m *memStore) ListByTherapist(_ context.Context, tid string) ([]Booking, error) {
	return m.filter(func(b Booking) bool { return b.TherapistID == tid }), nil
}

func (m *memStore) ListRange(_ context.Context, from, to time.Time) ([]Booking, error) {
	return m.filter(func(b Booking) bool {
		return !b.ScheduledAt.Before(from) && b.ScheduledAt.Before(to)
	}), nil
}

func (m *memStore) mutate(id string, check func(Booking) error, apply func(*Booking)) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if err := check(b); err != nil {
		return nil, err
	}
	apply(&b)
	m.docs[id] = b
	return &b, nil
}

func (m *memStore) UpdateStatus(_ context.Context, id string, to Status, now time.Time, check func(Booking) error) (*Booking, error) {
	return m.mutate(id, check, func(b *Booking) {
		if to == StatusCancelled && b.Status != StatusCancelled && CountsToday(b.ScheduledAt, now) {
			m.today[b.TherapistID] = DecrementToday(m.today[b.TherapistID])
		}
		b.Status = to
	})
}

func (m *memStore) Review(_ context.Context, id string, in ReviewInput, check func(Booking) error) (*Booking, error) {
	return m.mutate(id, check, func(b *Booking) { b.Rating, b.Review = in.Rating, in.Text })
}

type therapistMap map[string]therapist.Therapist

func (tm therapistMap) Get(_ context.Context, id string) (*therapist.Therapist, error) {
	t, ok := tm[id]
	if !ok {
		return nil, therapist.ErrNotFound
	}
	return &t, nil
}

type fixedRouter struct {
	route geo.Route
	err   error
}

func (r fixedRouter) DrivingDistance(context.Context, geo.Point, geo.Point) (geo.Route, error) {
	return r.route, r.err
}

type recorder struct {
	mu     sync.Mutex
	events []notify.BookingEvent
	err    error
}

func (r *recorder) NotifyBooking(_ context.Context, ev notify.BookingEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

var (
	home  = geo.Point{Lat: 13.7563, Lng: 100.5018}
	guest = geo.Point{Lat: 13.7363, Lng: 100.5018}
	now   = time.Date(2026, 3, 14, 12, 0, 0, 0, ict)
)

func roster() therapistMap {
	loc := home
	return therapistMap{
		"t1": {ID: "t1", Name: "Dao", Location: &loc, StartTime: "10:00", EndTime: "22:00",
			Window: availability.Window{Start: availability.MustParseClock("10:00"), End: availability.MustParseClock("22:00")},
			FCMToken: "tok"},
		"t2": {ID: "t2", Name: "Som", ManualStatus: "holiday", Window: availability.DefaultWindow},
	}
}

func newSvc(store Store, opts Options) *Service {
	opts.Now = func() time.Time { return now }
	opts.Logger = zap.NewNop()
	return NewService(store, roster(), opts)
}

func validInput() CreateBookingInput {
	return CreateBookingInput{
		TherapistID:  "t1",
		UserName:     "Ann",
		Phone:        "0812345678",
		ServiceName:  "Thai massage",
		ServicePrice: 500,
		DurationMin:  60,
		ScheduledAt:  "2026-03-14T15:00",
		Address:      "Sukhumvit 11",
		Location:     guest,
	}
}

func TestCreate_UsesRouterAndPrices(t *testing.T) {
	rec := &recorder{}
	svc := newSvc(newMemStore(), Options{
		Router:   fixedRouter{route: geo.Route{DistanceKm: 7.4, DurationMin: 20}},
		Notifier: rec,
	})

	b, err := svc.Create(context.Background(), "u1", validInput())
	require.NoError(t, err)
	assert.Equal(t, StatusPending, b.Status)
	assert.Equal(t, UserUpcoming, b.UserStatus)
	assert.Equal(t, 7.4, b.DistanceKm)
	assert.Equal(t, 50.0, b.TravelFee)
	assert.Equal(t, 550.0, b.Total)
	assert.Equal(t, time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC), b.ScheduledAt)

	require.Len(t, rec.events, 1)
	assert.Equal(t, notify.EventCreated, rec.events[0].Kind)
	assert.Equal(t, "tok", rec.events[0].DeviceToken)
}

func TestCreate_ZeroFeePolicyChargesNothing(t *testing.T) {
	svc := newSvc(newMemStore(), Options{
		Router: fixedRouter{route: geo.Route{DistanceKm: 42}},
		Fees:   &FeePolicy{},
	})

	b, err := svc.Create(context.Background(), "u1", validInput())
	require.NoError(t, err)
	assert.Equal(t, 0.0, b.TravelFee)
	assert.Equal(t, 500.0, b.Total)
}

func TestCreate_CountsTodayOnlyForSameDay(t *testing.T) {
	store := newMemStore()
	svc := newSvc(store, Options{})
	ctx := context.Background()

	_, err := svc.Create(ctx, "u1", validInput())
	require.NoError(t, err)

	in := validInput()
	in.ScheduledAt = "2026-03-15T15:00"
	_, err = svc.Create(ctx, "u2", in)
	require.NoError(t, err)

	today, total := store.counters("t1")
	assert.Equal(t, int64(1), today)
	assert.Equal(t, int64(2), total)
}

func TestCancel_ReleasesTodayCounter(t *testing.T) {
	store := newMemStore()
	svc := newSvc(store, Options{})
	ctx := context.Background()

	todays, err := svc.Create(ctx, "u1", validInput())
	require.NoError(t, err)
	in := validInput()
	in.ScheduledAt = "2026-03-16T15:00"
	later, err := svc.Create(ctx, "u2", in)
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, Actor{UID: "u2"}, later.ID)
	require.NoError(t, err)
	today, total := store.counters("t1")
	assert.Equal(t, int64(1), today)
	assert.Equal(t, int64(2), total)

	_, err = svc.Cancel(ctx, Actor{UID: "u1"}, todays.ID)
	require.NoError(t, err)
	today, _ = store.counters("t1")
	assert.Equal(t, int64(0), today)

	// A second cancel is rejected and leaves the counter alone.
	_, err = svc.Cancel(ctx, Actor{Admin: true}, todays.ID)
	assert.True(t, IsErrConflict(err))
	today, _ = store.counters("t1")
	assert.Equal(t, int64(0), today)
}

func TestCreate_FallsBackToStraightLine(t *testing.T) {
	svc := newSvc(newMemStore(), Options{Router: fixedRouter{err: errors.New("quota")}})

	b, err := svc.Create(context.Background(), "u1", validInput())
	require.NoError(t, err)
	assert.InDelta(t, geo.DistanceKm(home, guest), b.DistanceKm, 1e-9)
	assert.Equal(t, 0.0, b.TravelFee)
}

func TestCreate_NotificationFailureIsNotFatal(t *testing.T) {
	svc := newSvc(newMemStore(), Options{Notifier: &recorder{err: errors.New("down")}})
	_, err := svc.Create(context.Background(), "u1", validInput())
	assert.NoError(t, err)
}

func TestCreate_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(*CreateBookingInput)
		check func(error) bool
	}{
		{"missing therapist", func(in *CreateBookingInput) { in.TherapistID = " " }, IsErrBadRequest},
		{"missing service", func(in *CreateBookingInput) { in.ServiceName = "" }, IsErrBadRequest},
		{"zero duration", func(in *CreateBookingInput) { in.DurationMin = 0 }, IsErrBadRequest},
		{"no location", func(in *CreateBookingInput) { in.Location = geo.Point{} }, IsErrBadRequest},
		{"bad time", func(in *CreateBookingInput) { in.ScheduledAt = "tomorrow" }, IsErrBadRequest},
		{"past", func(in *CreateBookingInput) { in.ScheduledAt = "2026-03-14T11:00" }, IsErrBadRequest},
		{"unknown therapist", func(in *CreateBookingInput) { in.TherapistID = "nope" }, IsErrNotFound},
		{"holiday", func(in *CreateBookingInput) { in.TherapistID = "t2" }, IsErrUnavailable},
		{"outside hours", func(in *CreateBookingInput) { in.ScheduledAt = "2026-03-14T23:00" }, IsErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mut(&in)
			_, err := newSvc(newMemStore(), Options{}).Create(context.Background(), "u1", in)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}
}

func TestCreate_Conflict(t *testing.T) {
	svc := newSvc(newMemStore(), Options{})
	ctx := context.Background()

	_, err := svc.Create(ctx, "u1", validInput())
	require.NoError(t, err)

	in := validInput()
	in.ScheduledAt = "2026-03-14T15:30"
	_, err = svc.Create(ctx, "u2", in)
	assert.True(t, IsErrConflict(err))

	in.ScheduledAt = "2026-03-14T16:00"
	_, err = svc.Create(ctx, "u2", in)
	assert.NoError(t, err)
}

func TestUpdateStatus_Permissions(t *testing.T) {
	store := newMemStore()
	svc := newSvc(store, Options{})
	ctx := context.Background()

	b, err := svc.Create(ctx, "u1", validInput())
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, Actor{UID: "u1"}, b.ID, StatusConfirmed)
	assert.True(t, IsErrForbidden(err))

	_, err = svc.UpdateStatus(ctx, Actor{UID: "x", TherapistID: "t2"}, b.ID, StatusConfirmed)
	assert.True(t, IsErrForbidden(err))

	got, err := svc.UpdateStatus(ctx, Actor{UID: "x", TherapistID: "t1"}, b.ID, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)

	_, err = svc.UpdateStatus(ctx, Actor{Admin: true}, b.ID, StatusPending)
	assert.True(t, IsErrConflict(err))

	_, err = svc.Cancel(ctx, Actor{UID: "u1"}, b.ID)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, Actor{Admin: true}, b.ID, StatusCompleted)
	assert.True(t, IsErrConflict(err))

	_, err = svc.UpdateStatus(ctx, Actor{Admin: true}, b.ID, Status("done"))
	assert.True(t, IsErrBadRequest(err))
}

func TestReview(t *testing.T) {
	store := newMemStore()
	svc := newSvc(store, Options{})
	ctx := context.Background()

	b, err := svc.Create(ctx, "u1", validInput())
	require.NoError(t, err)

	_, err = svc.Review(ctx, "u1", b.ID, ReviewInput{Rating: 5})
	assert.True(t, IsErrConflict(err), "pending bookings cannot be reviewed")

	admin := Actor{Admin: true}
	_, err = svc.UpdateStatus(ctx, admin, b.ID, StatusConfirmed)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, admin, b.ID, StatusCompleted)
	require.NoError(t, err)

	_, err = svc.Review(ctx, "u1", b.ID, ReviewInput{Rating: 6})
	assert.True(t, IsErrBadRequest(err))

	_, err = svc.Review(ctx, "u2", b.ID, ReviewInput{Rating: 4})
	assert.True(t, IsErrForbidden(err))

	got, err := svc.Review(ctx, "u1", b.ID, ReviewInput{Rating: 4, Text: "  great  "})
	require.NoError(t, err)
	assert.Equal(t, 4, got.Rating)
	assert.Equal(t, "great", got.Review)

	_, err = svc.Review(ctx, "u1", b.ID, ReviewInput{Rating: 5})
	assert.True(t, IsErrConflict(err))
}

func TestGet_Visibility(t *testing.T) {
	svc := newSvc(newMemStore(), Options{})
	ctx := context.Background()
	b, err := svc.Create(ctx, "u1", validInput())
	require.NoError(t, err)

	_, err = svc.Get(ctx, Actor{UID: "u1"}, b.ID)
	assert.NoError(t, err)
	_, err = svc.Get(ctx, Actor{TherapistID: "t1"}, b.ID)
	assert.NoError(t, err)
	_, err = svc.Get(ctx, Actor{UID: "u2"}, b.ID)
	assert.True(t, IsErrForbidden(err))
}

func TestListAll_Range(t *testing.T) {
	svc := newSvc(newMemStore(), Options{})
	_, err := svc.ListAll(context.Background(), now, now.Add(-time.Hour))
	assert.True(t, IsErrBadRequest(err))

	_, err = svc.Create(context.Background(), "u1", validInput())
	require.NoError(t, err)
	all, err := svc.ListAll(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
