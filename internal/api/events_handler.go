package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sungwon/wecom-relay/internal/logger"
	"github.com/sungwon/wecom-relay/internal/relay"
)

// EventsHandler handles POST /api/v1/events: one source-platform
// message-create event per request, posted by the gateway collector.
// Drop conditions (filtered channel, own bot, nothing to relay) still
// return 202; the event was received and acted on.
func EventsHandler(ingestor *relay.Ingestor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var evt relay.Event
		if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		err := ingestor.Ingest(r.Context(), &evt)
		switch {
		case err == nil:
			respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		case errors.Is(err, relay.ErrMalformedEvent):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, relay.ErrQueueSaturated):
			w.Header().Set("Retry-After", "5")
			respondError(w, http.StatusServiceUnavailable, "delivery queue saturated")
		case errors.Is(err, relay.ErrQueueClosed):
			respondError(w, http.StatusServiceUnavailable, "relay shutting down")
		default:
			log.Error().Err(err).Str("event_id", evt.ID).Msg("event ingestion failed")
			respondError(w, http.StatusInternalServerError, "ingestion failed")
		}
	}
}
