package availability

import "time"

// Window is a daily working window. When End is before Start the window
// wraps past midnight. Start == End means open all day.
type Window struct {
	Start Clock
	End   Clock
}

// DefaultWindow is applied to therapists with no configured hours. It is
// stored as 00:00–00:00, the all-day form.
var DefaultWindow = Window{}

// ParseWindow parses a start/end pair of "HH:mm" strings.
func ParseWindow(start, end string) (Window, error) {
	s, err := parseClockField("startTime", start)
	if err != nil {
		return Window{}, err
	}
	e, err := parseClockField("endTime", end)
	if err != nil {
		return Window{}, err
	}
	return Window{Start: s, End: e}, nil
}

func (w Window) Wraps() bool { return w.End < w.Start }

func (w Window) allDay() bool { return w.Start == w.End }

// Contains reports whether c is inside the window. A plain window is
// half-open [Start, End); a wrapping one holds when c >= Start or c <= End.
func (w Window) Contains(c Clock) bool {
	switch {
	case w.allDay():
		return true
	case w.Wraps():
		return c >= w.Start || c <= w.End
	default:
		return c >= w.Start && c < w.End
	}
}

// ContainsTime reports whether the wall-clock time of t is inside the window.
func (w Window) ContainsTime(t time.Time) bool {
	return w.Contains(ClockOf(t))
}

// IsNowInRange reports whether now's time of day falls inside the window
// described by the start and end "HH:mm" strings.
func IsNowInRange(start, end string, now time.Time) (bool, error) {
	w, err := ParseWindow(start, end)
	if err != nil {
		return false, err
	}
	return w.ContainsTime(now), nil
}

func (w Window) StartString() string { return w.Start.String() }
func (w Window) EndString() string   { return w.End.String() }
