package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/sungwon/wecom-relay/internal/dlq"
	"github.com/sungwon/wecom-relay/internal/logger"
)

const defaultDLQListLimit = 100

// DLQListHandler handles GET /api/v1/dlq.
// It returns archived dead-lettered tasks, oldest first. The optional
// limit query parameter caps the result size.
func DLQListHandler(store *dlq.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		limit := int64(defaultDLQListLimit)
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || parsed <= 0 {
				respondError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = parsed
		}

		entries, err := store.Entries(r.Context(), limit)
		if err != nil {
			log.Error().Err(err).Msg("dlq list failed")
			respondError(w, http.StatusInternalServerError, "dlq list failed")
			return
		}

		type listEntry struct {
			dlq.Entry
			StreamID string `json:"stream_id"`
		}
		out := make([]listEntry, len(entries))
		for i, e := range entries {
			out[i] = listEntry{Entry: e, StreamID: e.StreamID}
		}

		respondJSON(w, http.StatusOK, map[string]interface{}{"entries": out})
	}
}

// dlqReprocessRequest is the JSON body for POST /api/v1/dlq/reprocess.
type dlqReprocessRequest struct {
	StreamIDs []string `json:"stream_ids"`
}

// dlqReprocessResponse is the JSON response for a DLQ reprocess operation.
type dlqReprocessResponse struct {
	Reprocessed int `json:"reprocessed"`
	Total       int `json:"total"`
}

// DLQReprocessHandler handles POST /api/v1/dlq/reprocess.
// It re-admits dead-lettered tasks to the delivery pipeline.
func DLQReprocessHandler(store *dlq.Store, enq dlq.Enqueuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var req dlqReprocessRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if len(req.StreamIDs) == 0 {
			respondError(w, http.StatusBadRequest, "stream_ids is required and must not be empty")
			return
		}

		reprocessed, err := store.Reprocess(r.Context(), enq, req.StreamIDs)
		if err != nil {
			log.Error().Err(err).
				Int("requested", len(req.StreamIDs)).
				Int("reprocessed", reprocessed).
				Msg("dlq reprocess failed")
			respondError(w, http.StatusInternalServerError, "reprocess failed")
			return
		}

		log.Info().
			Int("reprocessed", reprocessed).
			Int("total", len(req.StreamIDs)).
			Msg("dlq reprocess completed")

		respondJSON(w, http.StatusOK, dlqReprocessResponse{
			Reprocessed: reprocessed,
			Total:       len(req.StreamIDs),
		})
	}
}
