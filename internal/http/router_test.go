package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"soulease/backend/internal/config"
	"soulease/backend/internal/domain/admin"
	"soulease/backend/internal/domain/availability"
	"soulease/backend/internal/domain/booking"
	"soulease/backend/internal/domain/geo"
	"soulease/backend/internal/domain/matching"
	"soulease/backend/internal/domain/report"
	"soulease/backend/internal/domain/therapist"
	"soulease/backend/internal/maps"
	"soulease/backend/internal/uploads"

	"firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bangkok = time.FixedZone("ICT", 7*3600)

type fakeVerifier map[string]*auth.Token

func (f fakeVerifier) VerifyIDToken(_ context.Context, tok string) (*auth.Token, error) {
	if t, ok := f[tok]; ok {
		return t, nil
	}
	return nil, errors.New("bad token")
}

var tokens = fakeVerifier{
	"admin":     {UID: "a1", Claims: map[string]any{"role": "admin"}},
	"therapist": {UID: "tu1", Claims: map[string]any{"role": "therapist", "therapistId": "t1"}},
	"user":      {UID: "u1", Claims: map[string]any{}},
}

// Unimplemented methods panic through the nil embedded interface.
type fakeTherapists struct {
	TherapistService
	list     []therapist.Therapist
	created  therapist.CreateTherapistInput
	location geo.Point
	locID    string
}

func (f *fakeTherapists) List(_ context.Context, _ string) ([]therapist.Therapist, error) {
	return f.list, nil
}

func (f *fakeTherapists) Get(_ context.Context, id string) (*therapist.Therapist, error) {
	for _, t := range f.list {
		if t.ID == id {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: therapist %s", therapist.ErrNotFound, id)
}

func (f *fakeTherapists) Create(_ context.Context, in therapist.CreateTherapistInput) (*therapist.Therapist, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", therapist.ErrBadRequest)
	}
	f.created = in
	return &therapist.Therapist{ID: "new", Name: in.Name}, nil
}

func (f *fakeTherapists) UpdateLocation(_ context.Context, id string, p geo.Point) (*therapist.Therapist, error) {
	f.locID, f.location = id, p
	return &therapist.Therapist{ID: id, Location: &p}, nil
}

func (f *fakeTherapists) NextSlot(_ context.Context, id string, duration int) (string, error) {
	if duration <= 0 {
		return "", fmt.Errorf("%w: bad duration", therapist.ErrBadRequest)
	}
	return id + "@" + fmt.Sprint(duration), nil
}

func (f *fakeTherapists) Subscribe(_ context.Context, onChange func([]therapist.Therapist)) func() {
	go onChange(f.list)
	return func() {}
}

type fakeBookings struct {
	BookingService
	createErr  error
	createdFor string
	actor      booking.Actor
	status     booking.Status
	listedFor  string
}

func (f *fakeBookings) Create(_ context.Context, userID string, in booking.CreateBookingInput) (*booking.Booking, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.createdFor = userID
	return &booking.Booking{ID: "b1", UserID: userID, TherapistID: in.TherapistID, Status: booking.StatusPending}, nil
}

func (f *fakeBookings) ListForTherapist(_ context.Context, therapistID string) ([]booking.Booking, error) {
	f.listedFor = therapistID
	return []booking.Booking{{ID: "b1", TherapistID: therapistID}}, nil
}

func (f *fakeBookings) UpdateStatus(_ context.Context, actor booking.Actor, id string, to booking.Status) (*booking.Booking, error) {
	f.actor, f.status = actor, to
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status", booking.ErrBadRequest)
	}
	return &booking.Booking{ID: id, Status: to}, nil
}

type fakeMatching struct {
	target geo.Point
	when   time.Time
	limit  int
}

func (f *fakeMatching) Nearest(_ context.Context, target geo.Point, when time.Time, limit int) ([]matching.Candidate, error) {
	f.target, f.when, f.limit = target, when, limit
	return []matching.Candidate{}, nil
}

type fakeMaps struct{ err error }

func (f fakeMaps) Geocode(context.Context, string) (*maps.Address, error) { return nil, maps.ErrNoResults }
func (f fakeMaps) ReverseGeocode(context.Context, geo.Point) (*maps.Address, error) {
	return &maps.Address{FormattedAddress: "Sukhumvit"}, nil
}
func (f fakeMaps) DrivingDistance(context.Context, geo.Point, geo.Point) (geo.Route, error) {
	if f.err != nil {
		return geo.Route{}, f.err
	}
	return geo.Route{DistanceKm: 12.5, DurationMin: 30}, nil
}

type fixture struct {
	therapists *fakeTherapists
	bookings   *fakeBookings
	matching   *fakeMatching
	handler    http.Handler
}

func newFixture(t *testing.T, mut ...func(*RouterDeps)) *fixture {
	t.Helper()
	f := &fixture{
		therapists: &fakeTherapists{list: []therapist.Therapist{{ID: "t1", Name: "Nok"}}},
		bookings:   &fakeBookings{},
		matching:   &fakeMatching{},
	}
	d := RouterDeps{
		Cfg:          config.Config{Location: bangkok, AllowedOrigins: []string{"http://localhost:3000"}},
		Auth:         tokens,
		TherapistSvc: f.therapists,
		BookingSvc:   f.bookings,
		MatchingSvc:  f.matching,
		Now:          func() time.Time { return time.Date(2025, 3, 10, 14, 0, 0, 0, bangkok) },
	}
	for _, m := range mut {
		m(&d)
	}
	f.handler = NewRouter(d)
	return f
}

func (f *fixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthzIsPublic(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok":true`)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, 401, f.do(http.MethodGet, "/v1/therapists", "", "").Code)
	assert.Equal(t, 401, f.do(http.MethodGet, "/v1/therapists", "forged", "").Code)
}

func TestMe(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/v1/me", "therapist", "")
	require.Equal(t, 200, rec.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "tu1", out["uid"])
	assert.Equal(t, "t1", out["therapistId"])
	assert.Equal(t, false, out["admin"])
}

func TestListAndGetTherapists(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/v1/therapists", "user", "")
	require.Equal(t, 200, rec.Code)
	var out struct {
		Therapists []therapist.Therapist `json:"therapists"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Therapists, 1)
	assert.Equal(t, "Nok", out.Therapists[0].Name)

	assert.Equal(t, 200, f.do(http.MethodGet, "/v1/therapists/t1", "user", "").Code)
	assert.Equal(t, 404, f.do(http.MethodGet, "/v1/therapists/missing", "user", "").Code)
}

func TestNextSlot(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/v1/therapists/t1/next-slot?duration=90", "user", "")
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `"nextSlot":"t1@90"`)

	assert.Equal(t, 400, f.do(http.MethodGet, "/v1/therapists/t1/next-slot?duration=-5", "user", "").Code)
}

func TestNearest(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, 400, f.do(http.MethodGet, "/v1/therapists/nearest?lat=13.7", "user", "").Code)
	assert.Equal(t, 400, f.do(http.MethodGet, "/v1/therapists/nearest?lat=95&lng=100", "user", "").Code)
	assert.Equal(t, 400, f.do(http.MethodGet, "/v1/therapists/nearest?lat=13.7&lng=100.5&at=soon", "user", "").Code)

	rec := f.do(http.MethodGet, "/v1/therapists/nearest?lat=13.7&lng=100.5&limit=3", "user", "")
	require.Equal(t, 200, rec.Code)
	assert.Equal(t, geo.Point{Lat: 13.7, Lng: 100.5}, f.matching.target)
	assert.Equal(t, 3, f.matching.limit)
	assert.True(t, f.matching.when.Equal(time.Date(2025, 3, 10, 14, 0, 0, 0, bangkok)))
	assert.Contains(t, rec.Body.String(), `"therapists":[]`)

	rec = f.do(http.MethodGet, "/v1/therapists/nearest?lat=13.7&lng=100.5&at=2025-03-11T09:30", "user", "")
	require.Equal(t, 200, rec.Code)
	assert.True(t, f.matching.when.Equal(time.Date(2025, 3, 11, 9, 30, 0, 0, bangkok)))
	assert.Equal(t, 10, f.matching.limit)
}

func TestGeoDistance(t *testing.T) {
	q := "/v1/geo/distance?fromLat=13.7563&fromLng=100.5018&toLat=13.7367&toLng=100.5231"

	f := newFixture(t)
	rec := f.do(http.MethodGet, q, "user", "")
	require.Equal(t, 200, rec.Code)
	var route geo.Route
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &route))
	assert.True(t, route.Estimated)
	assert.InDelta(t, 3.1, route.DistanceKm, 0.2)

	f = newFixture(t, func(d *RouterDeps) { d.Maps = fakeMaps{} })
	rec = f.do(http.MethodGet, q, "user", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &route))
	assert.Equal(t, geo.Route{DistanceKm: 12.5, DurationMin: 30}, route)

	f = newFixture(t, func(d *RouterDeps) { d.Maps = fakeMaps{err: errors.New("quota")} })
	rec = f.do(http.MethodGet, q, "user", "")
	require.Equal(t, 200, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &route))
	assert.True(t, route.Estimated)

	assert.Equal(t, 400, f.do(http.MethodGet, "/v1/geo/distance?fromLat=1", "user", "").Code)
}

func TestGeocode(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, 503, f.do(http.MethodGet, "/v1/geo/geocode?address=x", "user", "").Code)

	f = newFixture(t, func(d *RouterDeps) { d.Maps = fakeMaps{} })
	assert.Equal(t, 400, f.do(http.MethodGet, "/v1/geo/geocode", "user", "").Code)
	assert.Equal(t, 404, f.do(http.MethodGet, "/v1/geo/geocode?address=nowhere", "user", "").Code)

	rec := f.do(http.MethodGet, "/v1/geo/reverse?lat=13.7&lng=100.5", "user", "")
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sukhumvit")
}

func TestCreateBooking(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/v1/bookings", "user", `{"therapistId":" t1 ","scheduledAt":"2025-03-10T16:00"}`)
	require.Equal(t, 201, rec.Code)
	assert.Equal(t, "u1", f.bookings.createdFor)
	assert.Contains(t, rec.Body.String(), `"therapistId":"t1"`)

	assert.Equal(t, 400, f.do(http.MethodPost, "/v1/bookings", "user", `{`).Code)
}

func TestCreateBookingErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{booking.ErrConflict, 409},
		{booking.ErrUnavailable, 409},
		{booking.ErrBadRequest, 400},
		{booking.ErrNotFound, 404},
		{errors.New("firestore down"), 500},
	}
	for _, tc := range cases {
		f := newFixture(t)
		f.bookings.createErr = fmt.Errorf("%w: detail", tc.err)
		rec := f.do(http.MethodPost, "/v1/bookings", "user", `{}`)
		assert.Equal(t, tc.want, rec.Code, tc.err.Error())
	}
}

func TestTherapistRoutes(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, 403, f.do(http.MethodGet, "/v1/therapist/bookings", "user", "").Code)

	rec := f.do(http.MethodGet, "/v1/therapist/bookings", "therapist", "")
	require.Equal(t, 200, rec.Code)
	assert.Equal(t, "t1", f.bookings.listedFor)

	rec = f.do(http.MethodPut, "/v1/therapist/location", "therapist", `{"lat":13.75,"lng":100.5}`)
	require.Equal(t, 200, rec.Code)
	assert.Equal(t, "t1", f.therapists.locID)
	assert.Equal(t, geo.Point{Lat: 13.75, Lng: 100.5}, f.therapists.location)

	rec = f.do(http.MethodPost, "/v1/therapist/bookings/b9/status", "therapist", `{"status":" Confirmed "}`)
	require.Equal(t, 200, rec.Code)
	assert.Equal(t, booking.StatusConfirmed, f.bookings.status)
	assert.Equal(t, booking.Actor{UID: "tu1", TherapistID: "t1"}, f.bookings.actor)

	rec = f.do(http.MethodPost, "/v1/therapist/bookings/b9/status", "therapist", `{"status":"done"}`)
	assert.Equal(t, 400, rec.Code)
}

func TestAdminRoutes(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, 403, f.do(http.MethodPost, "/v1/admin/therapists", "user", `{"name":"Ploy"}`).Code)
	assert.Equal(t, 403, f.do(http.MethodPost, "/v1/admin/therapists", "therapist", `{"name":"Ploy"}`).Code)

	rec := f.do(http.MethodPost, "/v1/admin/therapists", "admin", `{"name":"  Ploy "}`)
	require.Equal(t, 201, rec.Code)
	assert.Equal(t, "Ploy", f.therapists.created.Name)

	assert.Equal(t, 400, f.do(http.MethodPost, "/v1/admin/therapists", "admin", `{"name":""}`).Code)

	rec = f.do(http.MethodPost, "/v1/admin/bookings/b2/status", "admin", `{"status":"completed"}`)
	require.Equal(t, 200, rec.Code)
	assert.True(t, f.bookings.actor.Admin)

	assert.Equal(t, 503, f.do(http.MethodPost, "/v1/admin/therapists/t1/upload-url", "admin", `{"contentType":"image/png"}`).Code)
}

type fakeSigner struct{}

func (fakeSigner) SignedUploadURL(_ context.Context, id, contentType string) (*uploads.UploadURL, error) {
	if contentType != "image/png" {
		return nil, fmt.Errorf("%w: unsupported content type", uploads.ErrBadRequest)
	}
	return &uploads.UploadURL{URL: "https://storage.test/" + id, Method: "PUT"}, nil
}

func TestUploadURL(t *testing.T) {
	f := newFixture(t, func(d *RouterDeps) { d.Uploads = fakeSigner{} })

	assert.Equal(t, 200, f.do(http.MethodPost, "/v1/admin/therapists/t1/upload-url", "admin", `{"contentType":"image/png"}`).Code)
	assert.Equal(t, 400, f.do(http.MethodPost, "/v1/admin/therapists/t1/upload-url", "admin", `{"contentType":"text/html"}`).Code)
	assert.Equal(t, 404, f.do(http.MethodPost, "/v1/admin/therapists/nope/upload-url", "admin", `{"contentType":"image/png"}`).Code)
}

func TestStreamTherapists(t *testing.T) {
	f := newFixture(t, func(d *RouterDeps) { d.Heartbeat = 20 * time.Millisecond })
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/therapists/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer user")

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))

	var events []string
	var data string
	sc := bufio.NewScanner(res.Body)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "event: ") {
			events = append(events, strings.TrimPrefix(line, "event: "))
		}
		if strings.HasPrefix(line, "data: ") && len(events) > 0 && events[len(events)-1] == "therapists" {
			data = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	require.NotEmpty(t, events)
	assert.Equal(t, "connected", events[0])
	assert.Contains(t, data, `"name":"Nok"`)
}

func TestErrorMapping(t *testing.T) {
	status, _ := mapTherapistError(&availability.InvalidInputError{Field: "startTime", Value: "25:00"})
	assert.Equal(t, 400, status)

	status, _ = mapTherapistError(fmt.Errorf("%w: hours invalid", therapist.ErrMalformed))
	assert.Equal(t, 409, status)

	status, _ = mapBookingError(&availability.InvalidInputError{Field: "startTime", Value: "9am"})
	assert.Equal(t, 400, status)

	status, _ = mapAdminError(fmt.Errorf("%w: cannot revoke yourself", admin.ErrForbidden))
	assert.Equal(t, 403, status)

	status, _ = mapQueryError(fmt.Errorf("%w: range too long", report.ErrBadRequest))
	assert.Equal(t, 400, status)

	status, _ = mapQueryError(uploads.ErrNotConfigured)
	assert.Equal(t, 503, status)

	status, _ = mapQueryError(fmt.Errorf("%w: limit", matching.ErrBadRequest))
	assert.Equal(t, 400, status)
}
