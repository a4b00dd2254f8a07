package availability

import (
	"strings"
	"time"
)

// Status is the derived availability of a therapist. It is recomputed on
// every read and never trusted from storage.
type Status string

const (
	StatusAvailable Status = "available"
	StatusBookable  Status = "bookable"
	StatusResting   Status = "resting"
	StatusHoliday   Status = "holiday"
)

// DailyBookingCeiling is the number of bookings in a day after which a
// therapist stops being immediately available and only takes advance bookings.
const DailyBookingCeiling = 5

// ManualHoliday is the manual-status value admins set to take a therapist off the roster.
const ManualHoliday = "holiday"

// Input is the therapist-shaped record the resolver works on.
type Input struct {
	ManualStatus  string
	Window        Window
	TodayBookings int
}

// IsHoliday reports whether a manual-status override means "holiday".
func IsHoliday(manual string) bool {
	return strings.EqualFold(strings.TrimSpace(manual), ManualHoliday)
}

// Resolve derives the status at now. Rules, first match wins:
// holiday override, outside the working window (resting), daily ceiling
// reached (bookable), otherwise available.
func Resolve(in Input, now time.Time) Status {
	if IsHoliday(in.ManualStatus) {
		return StatusHoliday
	}
	if !in.Window.ContainsTime(now) {
		return StatusResting
	}
	if in.TodayBookings >= DailyBookingCeiling {
		return StatusBookable
	}
	return StatusAvailable
}

// Listed reports whether a therapist in status s should be shown as bookable at all.
func (s Status) Listed() bool {
	return s == StatusAvailable || s == StatusBookable
}

func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusBookable, StatusResting, StatusHoliday:
		return true
	}
	return false
}
