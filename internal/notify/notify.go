// Package notify delivers booking events to staff channels.
package notify

import (
	"context"
	"errors"
	"time"

	"soulease/backend/internal/domain/geo"
)

type EventKind string

const (
	EventCreated       EventKind = "booking.created"
	EventStatusChanged EventKind = "booking.status_changed"
	EventReviewed      EventKind = "booking.reviewed"
)

// BookingEvent is the flattened booking payload sent to every channel.
type BookingEvent struct {
	ID            string    `json:"eventId"`
	Kind          EventKind `json:"kind"`
	BookingID     string    `json:"bookingId"`
	TherapistID   string    `json:"therapistId"`
	TherapistName string    `json:"therapistName,omitempty"`
	UserName      string    `json:"userName,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	ServiceName   string    `json:"serviceName"`
	ScheduledAt   time.Time `json:"scheduledAt"`
	Address       string    `json:"address,omitempty"`
	Location      geo.Point `json:"location"`
	DistanceKm    float64   `json:"distanceKm"`
	TravelFee     float64   `json:"travelFee"`
	Total         float64   `json:"total"`
	Status        string    `json:"status"`
	Rating        int       `json:"rating,omitempty"`

	// Device token of the therapist; never serialized.
	DeviceToken string `json:"-"`
}

type Notifier interface {
	NotifyBooking(ctx context.Context, ev BookingEvent) error
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) NotifyBooking(ctx context.Context, ev BookingEvent) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.NotifyBooking(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) NotifyBooking(context.Context, BookingEvent) error { return nil }
