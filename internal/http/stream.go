package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"soulease/backend/internal/domain/therapist"

	"go.uber.org/zap"
)

const defaultHeartbeat = 30 * time.Second

// streamTherapists pushes the resolved roster as server-sent events every
// time a therapist document changes.
func streamTherapists(d RouterDeps) http.HandlerFunc {
	heartbeat := d.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			Fail(w, 500, "streaming unsupported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		// Only the latest roster matters; a slow client skips stale ones.
		updates := make(chan []therapist.Therapist, 1)
		unsubscribe := d.TherapistSvc.Subscribe(r.Context(), func(list []therapist.Therapist) {
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- list:
			default:
			}
		})
		defer unsubscribe()

		fmt.Fprintf(w, "event: connected\ndata: {\"ts\":%q}\n\n", time.Now().UTC().Format(time.RFC3339))
		flusher.Flush()

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				fmt.Fprint(w, ": heartbeat\n\n")
				flusher.Flush()
			case list := <-updates:
				data, err := json.Marshal(map[string]any{"therapists": list})
				if err != nil {
					d.Logger.Error("encode therapist stream", zap.Error(err))
					continue
				}
				fmt.Fprintf(w, "event: therapists\ndata: %s\n\n", data)
				flusher.Flush()
			}
		}
	}
}
