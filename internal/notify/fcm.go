package notify

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"
)

// Sender is the part of *messaging.Client FCM uses.
type Sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCM pushes booking events to the therapist's device.
type FCM struct {
	client Sender
}

func NewFCM(client Sender) *FCM {
	return &FCM{client: client}
}

func (f *FCM) NotifyBooking(ctx context.Context, ev BookingEvent) error {
	if ev.DeviceToken == "" {
		return nil
	}
	title := "New booking"
	switch ev.Kind {
	case EventStatusChanged:
		title = "Booking " + ev.Status
	case EventReviewed:
		title = "New review"
	}
	msg := &messaging.Message{
		Token: ev.DeviceToken,
		Notification: &messaging.Notification{
			Title: title,
			Body:  Summary(ev),
		},
		Data: map[string]string{
			"kind":      string(ev.Kind),
			"bookingId": ev.BookingID,
			"status":    ev.Status,
		},
	}
	if _, err := f.client.Send(ctx, msg); err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}
	return nil
}
