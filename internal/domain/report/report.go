// Package report aggregates bookings into revenue and volume figures.
package report

import (
	"fmt"
	"sort"
	"time"

	"soulease/backend/internal/domain/booking"
)

const dateKey = "2006-01-02"

// Aggregate buckets bookings scheduled in [from, to) by local day in loc and
// by therapist. Every day in the range gets a bucket; only completed
// bookings earn revenue.
func Aggregate(bookings []booking.Booking, from, to time.Time, loc *time.Location) Summary {
	if loc == nil {
		loc = time.UTC
	}
	from, to = from.In(loc), to.In(loc)

	days := []string{}
	daily := map[string]*DailyStats{}
	for d := startOfDay(from); d.Before(to); d = d.AddDate(0, 0, 1) {
		k := d.Format(dateKey)
		days = append(days, k)
		daily[k] = &DailyStats{Date: k}
	}

	var totals Totals
	byTherapist := map[string]*TherapistStats{}
	ratingSum := map[string]int{}

	for _, b := range bookings {
		at := b.ScheduledAt.In(loc)
		if at.Before(from) || !at.Before(to) {
			continue
		}
		ds := daily[at.Format(dateKey)]
		ts := byTherapist[b.TherapistID]
		if ts == nil {
			ts = &TherapistStats{TherapistID: b.TherapistID, TherapistName: b.TherapistName}
			byTherapist[b.TherapistID] = ts
		}

		totals.Bookings++
		ds.Bookings++
		ts.Bookings++

		switch b.Status {
		case booking.StatusCompleted:
			totals.Completed++
			totals.Revenue += b.Total
			totals.TravelFees += b.TravelFee
			ds.Completed++
			ds.Revenue += b.Total
			ts.Completed++
			ts.Revenue += b.Total
		case booking.StatusCancelled:
			totals.Cancelled++
			ds.Cancelled++
		}
		if b.Reviewed() {
			ts.Reviews++
			ratingSum[b.TherapistID] += b.Rating
		}
	}

	if totals.Bookings > 0 {
		totals.CompletionRate = fmt.Sprintf("%.1f", float64(totals.Completed)/float64(totals.Bookings)*100)
	} else {
		totals.CompletionRate = "0"
	}

	out := Summary{
		From:       from.Format(dateKey),
		To:         to.Add(-time.Nanosecond).Format(dateKey),
		Totals:     totals,
		Daily:      make([]DailyStats, 0, len(days)),
		Therapists: make([]TherapistStats, 0, len(byTherapist)),
	}
	for _, k := range days {
		out.Daily = append(out.Daily, *daily[k])
	}
	for id, ts := range byTherapist {
		if ts.Reviews > 0 {
			ts.AverageRating = float64(ratingSum[id]) / float64(ts.Reviews)
		}
		out.Therapists = append(out.Therapists, *ts)
	}
	sort.Slice(out.Therapists, func(i, j int) bool {
		a, b := out.Therapists[i], out.Therapists[j]
		if a.Revenue != b.Revenue {
			return a.Revenue > b.Revenue
		}
		if a.Bookings != b.Bookings {
			return a.Bookings > b.Bookings
		}
		return a.TherapistID < b.TherapistID
	})
	return out
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
