package booking

import "time"

// ConflictWindow is how close two bookings of one therapist may be scheduled.
const ConflictWindow = 60 * time.Minute

// Conflicts reports whether b blocks its therapist at when. Cancelled
// bookings never conflict.
func Conflicts(b Booking, when time.Time) bool {
	if b.Status == StatusCancelled {
		return false
	}
	d := b.ScheduledAt.Sub(when)
	if d < 0 {
		d = -d
	}
	return d < ConflictWindow
}

// HasConflict reports whether any of therapistID's bookings conflicts at when.
func HasConflict(bookings []Booking, therapistID string, when time.Time) bool {
	for _, b := range bookings {
		if b.TherapistID == therapistID && Conflicts(b, when) {
			return true
		}
	}
	return false
}

// CountsToday reports whether a booking scheduled at when belongs to the
// business day containing now, in now's location. Only such bookings are
// reflected in a therapist's todayBookings counter.
func CountsToday(when, now time.Time) bool {
	y1, m1, d1 := when.In(now.Location()).Date()
	y2, m2, d2 := now.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
