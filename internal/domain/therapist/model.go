package therapist

import (
	"fmt"
	"math"
	"strings"
	"time"

	"soulease/backend/internal/domain/availability"
	"soulease/backend/internal/domain/badge"
	"soulease/backend/internal/domain/geo"
	"soulease/backend/internal/utils"
)

// Collection is the Firestore collection holding therapist documents.
const Collection = "therapists"

// RawTherapist is a therapist document as stored. Older documents may miss
// fields or carry the legacy top-level lat/lng pair; Normalize turns it into
// a Therapist.
type RawTherapist struct {
	UID             string     `firestore:"uid,omitempty"`
	Name            string     `firestore:"name"`
	NameLower       string     `firestore:"nameLower,omitempty"`
	Keywords        []string   `firestore:"keywords,omitempty"`
	ImageURL        string     `firestore:"imageUrl,omitempty"`
	Rating          *float64   `firestore:"rating,omitempty"`
	ReviewCount     *int64     `firestore:"reviewCount,omitempty"`
	TodayBookings   *int64     `firestore:"todayBookings,omitempty"`
	TotalBookings   *int64     `firestore:"totalBookings,omitempty"`
	StartTime       string     `firestore:"startTime,omitempty"`
	EndTime         string     `firestore:"endTime,omitempty"`
	ManualStatus    string     `firestore:"manualStatus,omitempty"`
	CurrentLocation *geo.Point `firestore:"currentLocation,omitempty"`
	Lat             *float64   `firestore:"lat,omitempty"`
	Lng             *float64   `firestore:"lng,omitempty"`
	Services        []string   `firestore:"services,omitempty"`
	FCMToken        string     `firestore:"fcmToken,omitempty"`
	CreatedAt       time.Time  `firestore:"createdAt,omitempty"`
	UpdatedAt       time.Time  `firestore:"updatedAt,omitempty"`

	// Stored by older clients; never read back as truth.
	Available string `firestore:"available,omitempty"`
}

// Therapist is the normalized, typed therapist record.
type Therapist struct {
	ID            string     `json:"id"`
	UID           string     `json:"uid,omitempty"`
	Name          string     `json:"name"`
	ImageURL      string     `json:"imageUrl,omitempty"`
	Rating        float64    `json:"rating"`
	ReviewCount   int        `json:"reviewCount"`
	TodayBookings int        `json:"todayBookings"`
	TotalBookings int        `json:"totalBookings"`
	StartTime     string     `json:"startTime"`
	EndTime       string     `json:"endTime"`
	ManualStatus  string     `json:"manualStatus,omitempty"`
	Location      *geo.Point `json:"currentLocation,omitempty"`
	Services      []string   `json:"services,omitempty"`
	Keywords      []string   `json:"-"`
	FCMToken      string     `json:"-"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`

	Window availability.Window `json:"-"`

	// Derived on every read by Resolved.
	Available availability.Status `json:"available"`
	Badge     badge.Key           `json:"badge,omitempty"`
}

// Normalize converts a stored document into a Therapist. Missing clocks
// fall back to the default window, currentLocation wins over the legacy
// lat/lng pair, and counters are clamped at zero. Unparsable clocks yield
// an *availability.InvalidInputError.
func Normalize(id string, raw RawTherapist) (Therapist, error) {
	start, end := strings.TrimSpace(raw.StartTime), strings.TrimSpace(raw.EndTime)
	if start == "" {
		start = availability.DefaultWindow.StartString()
	}
	if end == "" {
		end = availability.DefaultWindow.EndString()
	}
	w, err := availability.ParseWindow(start, end)
	if err != nil {
		return Therapist{}, fmt.Errorf("therapist %s: %w", id, err)
	}

	t := Therapist{
		ID:            id,
		UID:           raw.UID,
		Name:          strings.TrimSpace(raw.Name),
		ImageURL:      raw.ImageURL,
		Rating:        clampRating(deref(raw.Rating)),
		ReviewCount:   nonNegative(raw.ReviewCount),
		TodayBookings: nonNegative(raw.TodayBookings),
		TotalBookings: nonNegative(raw.TotalBookings),
		StartTime:     w.StartString(),
		EndTime:       w.EndString(),
		ManualStatus:  strings.TrimSpace(raw.ManualStatus),
		Location:      location(raw),
		Services:      raw.Services,
		Keywords:      raw.Keywords,
		FCMToken:      raw.FCMToken,
		CreatedAt:     raw.CreatedAt,
		UpdatedAt:     raw.UpdatedAt,
		Window:        w,
	}
	if len(t.Keywords) == 0 {
		t.Keywords = utils.SearchTokens(append([]string{t.Name}, t.Services...)...)
	}
	return t, nil
}

func location(raw RawTherapist) *geo.Point {
	if p := raw.CurrentLocation; p != nil && p.Valid() && (p.Lat != 0 || p.Lng != 0) {
		cp := *p
		return &cp
	}
	if raw.Lat != nil && raw.Lng != nil {
		p := geo.Point{Lat: *raw.Lat, Lng: *raw.Lng}
		if p.Valid() && (p.Lat != 0 || p.Lng != 0) {
			return &p
		}
	}
	return nil
}

func deref(f *float64) float64 {
	if f == nil || math.IsNaN(*f) {
		return 0
	}
	return *f
}

func clampRating(r float64) float64 {
	return math.Max(0, math.Min(5, r))
}

func nonNegative(n *int64) int {
	if n == nil || *n < 0 {
		return 0
	}
	return int(*n)
}

// AvailabilityInput is the resolver's view of t.
func (t Therapist) AvailabilityInput() availability.Input {
	return availability.Input{
		ManualStatus:  t.ManualStatus,
		Window:        t.Window,
		TodayBookings: t.TodayBookings,
	}
}

// Resolved returns a copy of t with Available and Badge computed at now.
func (t Therapist) Resolved(now time.Time) Therapist {
	t.Available = availability.Resolve(t.AvailabilityInput(), now)
	t.Badge = ""
	if k, ok := badge.Select(badge.Subject{
		TodayBookings: t.TodayBookings,
		TotalBookings: t.TotalBookings,
		Status:        t.Available,
	}); ok {
		t.Badge = k
	}
	return t
}

// CreateTherapistInput is the admin payload for adding a therapist to the roster.
type CreateTherapistInput struct {
	UID       string     `json:"uid,omitempty"`
	Name      string     `json:"name"`
	ImageURL  string     `json:"imageUrl,omitempty"`
	StartTime string     `json:"startTime,omitempty"`
	EndTime   string     `json:"endTime,omitempty"`
	Services  []string   `json:"services,omitempty"`
	Location  *geo.Point `json:"currentLocation,omitempty"`
}

func (in *CreateTherapistInput) Trim() {
	in.UID = strings.TrimSpace(in.UID)
	in.Name = strings.TrimSpace(in.Name)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	in.StartTime = strings.TrimSpace(in.StartTime)
	in.EndTime = strings.TrimSpace(in.EndTime)
	in.Services = trimAll(in.Services)
}

// UpdateTherapistInput patches a therapist; nil fields are left untouched.
type UpdateTherapistInput struct {
	UID       *string    `json:"uid,omitempty"`
	Name      *string    `json:"name,omitempty"`
	ImageURL  *string    `json:"imageUrl,omitempty"`
	StartTime *string    `json:"startTime,omitempty"`
	EndTime   *string    `json:"endTime,omitempty"`
	Services  []string   `json:"services,omitempty"`
	Location  *geo.Point `json:"currentLocation,omitempty"`
}

func (in *UpdateTherapistInput) Trim() {
	for _, p := range []*string{in.UID, in.Name, in.ImageURL, in.StartTime, in.EndTime} {
		if p != nil {
			*p = strings.TrimSpace(*p)
		}
	}
	in.Services = trimAll(in.Services)
}

func trimAll(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
