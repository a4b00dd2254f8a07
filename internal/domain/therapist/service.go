package therapist

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"soulease/backend/internal/domain/availability"
	"soulease/backend/internal/domain/geo"
	"soulease/backend/internal/utils"
)

// Store is the persistence the service needs; *Repo implements it.
type Store interface {
	List(ctx context.Context) ([]Record, error)
	Get(ctx context.Context, id string) (*Record, error)
	Create(ctx context.Context, fields map[string]interface{}) (string, error)
	Update(ctx context.Context, id string, fields map[string]interface{}) error
	Delete(ctx context.Context, id string) error
	Watch(ctx context.Context, onChange func([]Record)) error
	ResetTodayBookings(ctx context.Context) (int, error)
}

type Service struct {
	store Store
	now   func() time.Time
	log   *zap.Logger
}

// NewService builds the therapist service. now must return the current
// instant in the business time zone; availability is evaluated on its
// wall clock.
func NewService(store Store, now func() time.Time, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, now: now, log: log}
}

// List returns every therapist with availability and badge resolved now,
// listed ones first, then by rating. q filters by name/service prefix.
func (s *Service) List(ctx context.Context, q string) ([]Therapist, error) {
	recs, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := s.resolveAll(recs, s.now())
	if q != "" {
		filtered := out[:0]
		for _, t := range out {
			if utils.MatchesTokens(t.Keywords, q) {
				filtered = append(filtered, t)
			}
		}
		out = filtered
	}
	return out, nil
}

// All returns the whole roster resolved now.
func (s *Service) All(ctx context.Context) ([]Therapist, error) {
	return s.List(ctx, "")
}

func (s *Service) Get(ctx context.Context, id string) (*Therapist, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: therapistId is required", ErrBadRequest)
	}
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	t, err := Normalize(rec.ID, rec.Raw)
	if err != nil {
		return nil, err
	}
	t = t.Resolved(s.now())
	return &t, nil
}

func (s *Service) Create(ctx context.Context, in CreateTherapistInput) (*Therapist, error) {
	in.Trim()
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrBadRequest)
	}
	w := availability.DefaultWindow
	if in.StartTime != "" || in.EndTime != "" {
		var err error
		if w, err = availability.ParseWindow(in.StartTime, in.EndTime); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
	}
	if in.Location != nil && !in.Location.Valid() {
		return nil, fmt.Errorf("%w: currentLocation out of range", ErrBadRequest)
	}

	now := time.Now().UTC()
	fields := map[string]interface{}{
		"name":          in.Name,
		"nameLower":     utils.NormalizeNameLower(in.Name),
		"keywords":      utils.SearchTokens(append([]string{in.Name}, in.Services...)...),
		"imageUrl":      in.ImageURL,
		"startTime":     w.StartString(),
		"endTime":       w.EndString(),
		"rating":        0.0,
		"reviewCount":   0,
		"todayBookings": 0,
		"totalBookings": 0,
		"services":      in.Services,
		"createdAt":     now,
		"updatedAt":     now,
	}
	if in.UID != "" {
		fields["uid"] = in.UID
	}
	if in.Location != nil {
		fields["currentLocation"] = pointFields(*in.Location)
	}

	id, err := s.store.Create(ctx, fields)
	if err != nil {
		return nil, err
	}
	s.log.Info("therapist created", zap.String("therapistId", id), zap.String("name", in.Name))
	return s.reload(ctx, id)
}

// Update patches a therapist. It merges onto the stored document rather
// than the normalized view, so a document with unparsable hours can be
// repaired by sending new startTime/endTime.
func (s *Service) Update(ctx context.Context, id string, in UpdateTherapistInput) (*Therapist, error) {
	in.Trim()
	if id == "" {
		return nil, fmt.Errorf("%w: therapistId is required", ErrBadRequest)
	}
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	raw := rec.Raw

	fields := map[string]interface{}{"updatedAt": time.Now().UTC()}
	name, services := strings.TrimSpace(raw.Name), raw.Services
	if in.Name != nil {
		if *in.Name == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", ErrBadRequest)
		}
		name = *in.Name
		fields["name"] = name
		fields["nameLower"] = utils.NormalizeNameLower(name)
	}
	if in.Services != nil {
		services = in.Services
		fields["services"] = services
	}
	if in.Name != nil || in.Services != nil {
		fields["keywords"] = utils.SearchTokens(append([]string{name}, services...)...)
	}
	if in.UID != nil {
		fields["uid"] = *in.UID
	}
	if in.ImageURL != nil {
		fields["imageUrl"] = *in.ImageURL
	}
	if in.StartTime != nil || in.EndTime != nil {
		start, end := storedClock(raw.StartTime, availability.DefaultWindow.StartString()),
			storedClock(raw.EndTime, availability.DefaultWindow.EndString())
		if in.StartTime != nil {
			start = *in.StartTime
		}
		if in.EndTime != nil {
			end = *in.EndTime
		}
		w, err := availability.ParseWindow(start, end)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		fields["startTime"] = w.StartString()
		fields["endTime"] = w.EndString()
	}
	if in.Location != nil {
		if !in.Location.Valid() {
			return nil, fmt.Errorf("%w: currentLocation out of range", ErrBadRequest)
		}
		fields["currentLocation"] = pointFields(*in.Location)
	}

	if err := s.store.Update(ctx, id, fields); err != nil {
		return nil, err
	}
	return s.reload(ctx, id)
}

func storedClock(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

// reload reads id back after a successful write. A document that still
// cannot be normalized yields ErrMalformed rather than a bad-request error,
// since the write itself was accepted.
func (s *Service) reload(ctx context.Context, id string) (*Therapist, error) {
	t, err := s.Get(ctx, id)
	if availability.IsErrInvalidInput(err) {
		s.log.Warn("therapist saved with invalid stored hours", zap.String("therapistId", id), zap.Error(err))
		return nil, fmt.Errorf("%w: changes to therapist %s were saved, but its working hours are invalid (%v); set startTime and endTime",
			ErrMalformed, id, err)
	}
	return t, err
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: therapistId is required", ErrBadRequest)
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("therapist deleted", zap.String("therapistId", id))
	return nil
}

// SetHoliday sets or clears the holiday override.
func (s *Service) SetHoliday(ctx context.Context, id string, on bool) (*Therapist, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: therapistId is required", ErrBadRequest)
	}
	manual := ""
	if on {
		manual = availability.ManualHoliday
	}
	if err := s.store.Update(ctx, id, map[string]interface{}{
		"manualStatus": manual,
		"updatedAt":    time.Now().UTC(),
	}); err != nil {
		return nil, err
	}
	s.log.Info("holiday toggled", zap.String("therapistId", id), zap.Bool("holiday", on))
	return s.reload(ctx, id)
}

func (s *Service) UpdateLocation(ctx context.Context, id string, p geo.Point) (*Therapist, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: therapistId is required", ErrBadRequest)
	}
	if !p.Valid() || (p.Lat == 0 && p.Lng == 0) {
		return nil, fmt.Errorf("%w: invalid location", ErrBadRequest)
	}
	if err := s.store.Update(ctx, id, map[string]interface{}{
		"currentLocation": pointFields(p),
		"updatedAt":       time.Now().UTC(),
	}); err != nil {
		return nil, err
	}
	return s.reload(ctx, id)
}

func (s *Service) UpdateSchedule(ctx context.Context, id, start, end string) (*Therapist, error) {
	return s.Update(ctx, id, UpdateTherapistInput{StartTime: &start, EndTime: &end})
}

// UpdateFCMToken stores the device token used for booking pushes.
func (s *Service) UpdateFCMToken(ctx context.Context, id, token string) error {
	if id == "" || token == "" {
		return fmt.Errorf("%w: therapistId and token are required", ErrBadRequest)
	}
	return s.store.Update(ctx, id, map[string]interface{}{
		"fcmToken":  token,
		"updatedAt": time.Now().UTC(),
	})
}

// NextSlot returns when therapist id is next free after a service of durationMin.
func (s *Service) NextSlot(ctx context.Context, id string, durationMin int) (string, error) {
	if durationMin <= 0 || durationMin > 24*60 {
		return "", fmt.Errorf("%w: duration must be 1-1440 minutes", ErrBadRequest)
	}
	t, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return availability.NextSlot(durationMin, t.Window, s.now()).String(), nil
}

// Subscribe delivers the resolved roster to onChange on every change until
// the returned function is called or ctx ends.
func (s *Service) Subscribe(ctx context.Context, onChange func([]Therapist)) (unsubscribe func()) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		err := s.store.Watch(ctx, func(recs []Record) {
			onChange(s.resolveAll(recs, s.now()))
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("therapist subscription ended", zap.Error(err))
		}
	}()
	return cancel
}

// ResetDailyCounters zeroes every therapist's todayBookings.
func (s *Service) ResetDailyCounters(ctx context.Context) (int, error) {
	n, err := s.store.ResetTodayBookings(ctx)
	if err != nil {
		return n, err
	}
	s.log.Info("daily booking counters reset", zap.Int("therapists", n))
	return n, nil
}

func (s *Service) resolveAll(recs []Record, now time.Time) []Therapist {
	out := make([]Therapist, 0, len(recs))
	for _, rec := range recs {
		t, err := Normalize(rec.ID, rec.Raw)
		if err != nil {
			s.log.Warn("skipping malformed therapist", zap.String("therapistId", rec.ID), zap.Error(err))
			continue
		}
		out = append(out, t.Resolved(now))
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if ra, rb := statusRank(a.Available), statusRank(b.Available); ra != rb {
			return ra < rb
		}
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
		return a.Name < b.Name
	})
	return out
}

func statusRank(st availability.Status) int {
	switch st {
	case availability.StatusAvailable:
		return 0
	case availability.StatusBookable:
		return 1
	case availability.StatusResting:
		return 2
	default:
		return 3
	}
}

func pointFields(p geo.Point) map[string]interface{} {
	return map[string]interface{}{"lat": p.Lat, "lng": p.Lng}
}
