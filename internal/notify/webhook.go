package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// ChatWebhook posts booking events to the chat-bot relay as JSON.
type ChatWebhook struct {
	url        string
	token      string
	httpClient *http.Client
}

func NewChatWebhook(url, token string) *ChatWebhook {
	return &ChatWebhook{
		url:   url,
		token: token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type chatMessage struct {
	Text  string       `json:"text"`
	Event BookingEvent `json:"event"`
}

func (w *ChatWebhook) NotifyBooking(ctx context.Context, ev BookingEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	body, err := json.Marshal(chatMessage{Text: Summary(ev), Event: ev})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("chat webhook error (status %d): %s", resp.StatusCode, string(msg))
	}
	return nil
}

// Summary renders a one-line human readable description of ev.
func Summary(ev BookingEvent) string {
	when := ev.ScheduledAt.Format("2006-01-02 15:04")
	switch ev.Kind {
	case EventStatusChanged:
		return fmt.Sprintf("Booking %s with %s at %s is now %s", ev.BookingID, ev.TherapistName, when, ev.Status)
	case EventReviewed:
		return fmt.Sprintf("%s rated %s %d/5", ev.UserName, ev.TherapistName, ev.Rating)
	default:
		return fmt.Sprintf("New booking: %s for %s with %s at %s, %s (%.1f km, total %.0f)",
			ev.ServiceName, ev.UserName, ev.TherapistName, when, ev.Address, ev.DistanceKm, ev.Total)
	}
}
