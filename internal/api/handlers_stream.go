package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"ratefeed/internal/model"
)

// EventRates is the server-sent event name of a series snapshot.
const EventRates = "rates"

// HandleStreamRates godoc
// @Summary Stream series snapshots
// @Description Server-sent events. Sends the current series on connect and every replacement afterwards, one "rates" event per snapshot. Slow readers only see the latest snapshot.
// @Tags rates
// @Produce text/event-stream
// @Success 200 {array} EntryResponse "Stream of rates events"
// @Router /rates/stream [get]
func HandleStreamRates(store Series, logger *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc := http.NewResponseController(w)
		// The server's write timeout would otherwise cut the stream.
		_ = rc.SetWriteDeadline(time.Time{})

		updates := make(chan []model.Entry, 1)
		cancel := store.Subscribe(func(entries []model.Entry) {
			// Only this observer sends, so after draining the send cannot block.
			select {
			case <-updates:
			default:
			}
			updates <- entries
		})
		defer cancel()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		for {
			select {
			case <-r.Context().Done():
				return
			case entries := <-updates:
				data, err := json.Marshal(toEntries(entries))
				if err != nil {
					logger.Errorw("Failed to encode rates event", "error", err)
					return
				}
				if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", EventRates, data); err != nil {
					return
				}
				if err := rc.Flush(); err != nil {
					logger.Warnw("Streaming not supported by response writer", "error", err)
					return
				}
			}
		}
	}
}
