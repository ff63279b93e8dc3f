package relay

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/wecom-relay/internal/metrics"
)

// ErrMalformedEvent marks an inbound event missing required fields.
// Such events are dropped and logged, never propagated as a crash.
var ErrMalformedEvent = errors.New("malformed inbound event")

// EventAuthor identifies the author of an inbound event.
type EventAuthor struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot"`
}

// Event is a raw message-create event from the source platform. It is
// untrusted input; Ingestor validates it before building an InboundMessage.
type Event struct {
	ID          string       `json:"id"`
	ChannelID   string       `json:"channel_id"`
	Author      EventAuthor  `json:"author"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments"`
	Timestamp   time.Time    `json:"timestamp"`
}

// Ingestor receives inbound message events and drives the pipeline:
// validation, loop prevention, channel filtering, transformation, and
// enqueueing. Its only blocking operation is the bounded enqueue.
type Ingestor struct {
	filter         *ChannelFilter
	transformer    *Transformer
	queues         []*Queue
	enqueueTimeout time.Duration
	botUserID      string
	log            zerolog.Logger
}

// NewIngestor creates an Ingestor feeding the given consumer queues.
// Tasks are partitioned across queues by channel ID, so per-channel FIFO
// ordering holds for any queue count. botUserID is the relay's own
// identity on the source platform; its events are dropped.
func NewIngestor(
	filter *ChannelFilter,
	transformer *Transformer,
	queues []*Queue,
	enqueueTimeout time.Duration,
	botUserID string,
	log zerolog.Logger,
) *Ingestor {
	return &Ingestor{
		filter:         filter,
		transformer:    transformer,
		queues:         queues,
		enqueueTimeout: enqueueTimeout,
		botUserID:      botUserID,
		log:            log,
	}
}

// Ingest processes one inbound event. Dropped events (own bot, filtered
// channel, nothing to relay) return nil; malformed events return
// ErrMalformedEvent and saturation returns a wrapped ErrQueueSaturated.
// Both are drop conditions, surfaced for logging and metrics only.
func (in *Ingestor) Ingest(ctx context.Context, evt *Event) error {
	if err := validateEvent(evt); err != nil {
		in.log.Warn().Err(err).
			Str("event_id", evt.ID).
			Str("channel_id", evt.ChannelID).
			Msg("dropping malformed event")
		metrics.EventsReceivedTotal.WithLabelValues("malformed").Inc()
		return err
	}

	if evt.Author.Bot || (in.botUserID != "" && evt.Author.ID == in.botUserID) {
		metrics.EventsReceivedTotal.WithLabelValues("bot").Inc()
		return nil
	}

	if !in.filter.Allowed(evt.ChannelID) {
		metrics.EventsReceivedTotal.WithLabelValues("filtered").Inc()
		return nil
	}

	if evt.Content == "" && len(evt.Attachments) == 0 {
		metrics.EventsReceivedTotal.WithLabelValues("empty").Inc()
		return nil
	}

	receivedAt := evt.Timestamp
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	msg := &InboundMessage{
		ID:          evt.ID,
		ChannelID:   evt.ChannelID,
		Author:      evt.Author.Username,
		Content:     evt.Content,
		Attachments: evt.Attachments,
		ReceivedAt:  receivedAt,
	}

	queue := in.queues[partition(msg.ChannelID, len(in.queues))]
	for seq, payload := range in.transformer.Transform(msg) {
		task := NewDeliveryTask(msg, payload, seq)
		if err := queue.Enqueue(task, in.enqueueTimeout); err != nil {
			in.log.Error().Err(err).
				Str("message_id", msg.ID).
				Str("channel_id", msg.ChannelID).
				Int("seq", seq).
				Msg("dropping task, queue backpressure exceeded")
			metrics.QueueDroppedTotal.Inc()
			return fmt.Errorf("enqueue task for message %s: %w", msg.ID, err)
		}
		metrics.TasksEnqueuedTotal.Inc()
	}

	metrics.EventsReceivedTotal.WithLabelValues("accepted").Inc()
	return nil
}

// validateEvent checks the fields an InboundMessage cannot be built without.
func validateEvent(evt *Event) error {
	switch {
	case evt.ID == "":
		return fmt.Errorf("%w: missing id", ErrMalformedEvent)
	case evt.ChannelID == "":
		return fmt.Errorf("%w: missing channel_id", ErrMalformedEvent)
	case evt.Author.ID == "" && evt.Author.Username == "":
		return fmt.Errorf("%w: missing author", ErrMalformedEvent)
	}
	return nil
}

// partition maps a channel ID to a consumer index so tasks from one
// channel always land on the same consumer.
func partition(channelID string, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(channelID))
	return int(h.Sum32() % uint32(n))
}
