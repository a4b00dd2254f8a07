// Package badge picks the decorative marker shown on a therapist card.
package badge

import "soulease/backend/internal/domain/availability"

type Key string

const (
	TopBookedToday Key = "top_booked_today"
	PopularToday   Key = "popular_today"
	New            Key = "new"
)

// Subject is the part of a therapist the rules look at.
type Subject struct {
	TodayBookings int
	TotalBookings int
	Status        availability.Status
}

// Rule activates a badge. Lower Priority wins.
type Rule struct {
	Key      Key
	Priority int
	Active   func(Subject) bool
}

// Rules is the canonical table. Every rule is gated on the therapist being
// listed (available or bookable).
var Rules = []Rule{
	{
		Key:      TopBookedToday,
		Priority: 1,
		Active:   func(s Subject) bool { return s.Status.Listed() && s.TodayBookings >= 5 },
	},
	{
		Key:      PopularToday,
		Priority: 2,
		Active: func(s Subject) bool {
			return s.Status.Listed() && s.TodayBookings >= 3 && s.TodayBookings <= 4
		},
	},
	{
		Key:      New,
		Priority: 3,
		Active:   func(s Subject) bool { return s.Status.Listed() && s.TotalBookings < 100 },
	},
}

// Select returns the active rule with the lowest priority from the canonical
// table, or false when no rule activates.
func Select(s Subject) (Key, bool) {
	return SelectFrom(Rules, s)
}

// SelectFrom is Select over an arbitrary table. Ties keep table order.
func SelectFrom(rules []Rule, s Subject) (Key, bool) {
	var best *Rule
	for i := range rules {
		r := &rules[i]
		if !r.Active(s) {
			continue
		}
		if best == nil || r.Priority < best.Priority {
			best = r
		}
	}
	if best == nil {
		return "", false
	}
	return best.Key, true
}
