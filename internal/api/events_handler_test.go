package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/wecom-relay/internal/relay"
)

func newTestIngestor(queueSize int) (*relay.Ingestor, *relay.Queue) {
	q := relay.NewQueue(queueSize)
	ing := relay.NewIngestor(
		relay.NewChannelFilter(nil),
		relay.NewTransformer(2048),
		[]*relay.Queue{q},
		10*time.Millisecond,
		"",
		zerolog.Nop(),
	)
	return ing, q
}

func postEvent(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestEventsHandler_Accepted(t *testing.T) {
	ing, q := newTestIngestor(16)
	rec := postEvent(t, EventsHandler(ing),
		`{"id":"evt-1","channel_id":"123","author":{"id":"u-1","username":"alice"},"content":"hello"}`)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d, body %s", rec.Code, http.StatusAccepted, rec.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["status"] != "accepted" {
		t.Errorf("response status = %q, want accepted", resp["status"])
	}
	if q.Len() != 1 {
		t.Errorf("queue holds %d tasks, want 1", q.Len())
	}
}

func TestEventsHandler_DroppedEventStillAccepted(t *testing.T) {
	ing, q := newTestIngestor(16)

	// Bot-authored events are dropped but acknowledged.
	rec := postEvent(t, EventsHandler(ing),
		`{"id":"evt-1","channel_id":"123","author":{"id":"u-1","username":"bot","bot":true},"content":"hello"}`)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	if q.Len() != 0 {
		t.Errorf("queue holds %d tasks for a dropped event, want 0", q.Len())
	}
}

func TestEventsHandler_InvalidJSON(t *testing.T) {
	ing, _ := newTestIngestor(16)
	rec := postEvent(t, EventsHandler(ing), `{not json`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestEventsHandler_MalformedEvent(t *testing.T) {
	ing, _ := newTestIngestor(16)
	rec := postEvent(t, EventsHandler(ing),
		`{"channel_id":"123","author":{"username":"alice"},"content":"hello"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d, body %s", rec.Code, http.StatusBadRequest, rec.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["error"] == "" {
		t.Error("expected error message in response")
	}
}

func TestEventsHandler_QueueSaturated(t *testing.T) {
	ing, q := newTestIngestor(1)

	first := postEvent(t, EventsHandler(ing),
		`{"id":"evt-1","channel_id":"123","author":{"username":"alice"},"content":"one"}`)
	if first.Code != http.StatusAccepted {
		t.Fatalf("first event status = %d, want %d", first.Code, http.StatusAccepted)
	}

	rec := postEvent(t, EventsHandler(ing),
		`{"id":"evt-2","channel_id":"123","author":{"username":"alice"},"content":"two"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on saturation")
	}
	if q.Len() != 1 {
		t.Errorf("queue holds %d tasks, want 1", q.Len())
	}
}

func TestEventsHandler_RelayShuttingDown(t *testing.T) {
	ing, q := newTestIngestor(16)
	q.Close()

	rec := postEvent(t, EventsHandler(ing),
		`{"id":"evt-1","channel_id":"123","author":{"username":"alice"},"content":"hello"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
