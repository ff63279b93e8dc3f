package api

import (
	"net/http"
	"strconv"

	"github.com/sungwon/wecom-relay/internal/history"
	"github.com/sungwon/wecom-relay/internal/logger"
)

const defaultDeliveriesLimit = 50

// DeliveriesHandler handles GET /api/v1/deliveries.
// It returns recent delivery outcomes from the history log, newest first.
func DeliveriesHandler(store *history.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		limit := defaultDeliveriesLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				respondError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = parsed
		}

		deliveries, err := store.Recent(r.Context(), limit)
		if err != nil {
			log.Error().Err(err).Msg("deliveries list failed")
			respondError(w, http.StatusInternalServerError, "deliveries list failed")
			return
		}

		respondJSON(w, http.StatusOK, map[string]interface{}{"deliveries": deliveries})
	}
}
