package cart

import (
	"fmt"
	"net/http"
	"time"

	"github.com/angelmondragon/webstore-backend/api/responses"
	pkgerrors "github.com/angelmondragon/webstore-backend/pkg/errors"
	"github.com/angelmondragon/webstore-backend/pkg/logger"
)

const (
	cartUpdatedEvent = "cartUpdated"
	defaultHeartbeat = 25 * time.Second
	eventRetryMillis = 3000
)

// CartEvents streams a cartUpdated server-sent event whenever the device's cart
// or coupon changes. Bursts of changes collapse into one event; clients re-read
// the cart on receipt.
func CartEvents(sessions Sessions, heartbeat time.Duration, logg *logger.Logger) http.HandlerFunc {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := resolveSession(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
			return
		}
		if rc := http.NewResponseController(w); rc != nil {
			_ = rc.SetWriteDeadline(time.Time{})
		}

		pending := make(chan struct{}, 1)
		stop := session.Watch(func() {
			select {
			case pending <- struct{}{}:
			default:
			}
		})
		defer stop()

		header := w.Header()
		header.Set("Content-Type", "text/event-stream")
		header.Set("Cache-Control", "no-cache")
		header.Set("Connection", "keep-alive")
		header.Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "retry: %d\n\n", eventRetryMillis)
		flusher.Flush()

		ctx := r.Context()
		logg.Debug(ctx, "cart.events_connected")
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logg.Debug(ctx, "cart.events_disconnected")
				return
			case <-pending:
				if _, err := fmt.Fprintf(w, "event: %s\ndata: {}\n\n", cartUpdatedEvent); err != nil {
					return
				}
				flusher.Flush()
			case <-ticker.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}
