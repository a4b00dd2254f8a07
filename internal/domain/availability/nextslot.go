package availability

import "time"

// NextSlot returns the time of day a therapist working window w is next free
// after a service of durationMin minutes starting at now. If now is outside
// the window, or the service would run past the end of the current working
// period, the answer is the window's start (the next period).
func NextSlot(durationMin int, w Window, now time.Time) Clock {
	if durationMin < 0 {
		durationMin = 0
	}
	now = now.Truncate(time.Minute)
	done := now.Add(time.Duration(durationMin) * time.Minute)

	if w.allDay() {
		return ClockOf(done)
	}
	c := ClockOf(now)
	if !w.Contains(c) {
		return w.Start
	}

	periodEnd := w.End.On(now)
	if w.Wraps() && c >= w.Start {
		periodEnd = periodEnd.AddDate(0, 0, 1)
	}
	if done.After(periodEnd) {
		return w.Start
	}
	return ClockOf(done)
}

// NextAvailableSlot is NextSlot over "HH:mm" strings, formatted as "HH:mm".
func NextAvailableSlot(durationMin int, start, end string, now time.Time) (string, error) {
	w, err := ParseWindow(start, end)
	if err != nil {
		return "", err
	}
	return NextSlot(durationMin, w, now).String(), nil
}
