// Package dlq archives dead-lettered delivery tasks in a Redis stream so
// operators can inspect and reprocess them. The store is optional: a nil
// *Store is a no-op, for deployments without Redis.
package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sungwon/wecom-relay/internal/relay"
)

// Entry wraps a dead-lettered task with failure metadata.
type Entry struct {
	// StreamID is the Redis stream entry ID, set when reading.
	StreamID string             `json:"-"`
	Task     *relay.DeliveryTask `json:"task"`
	Reason   string             `json:"reason"`
	MovedAt  time.Time          `json:"moved_at"`
}

// Enqueuer re-admits tasks to the delivery pipeline.
type Enqueuer interface {
	Requeue(task *relay.DeliveryTask) error
}

// Store is a Redis-stream-backed dead-letter archive.
type Store struct {
	client *redis.Client
	stream string
}

// NewStore creates a Store writing to the given stream. client may be nil
// when dead-letter archiving is disabled.
func NewStore(client *redis.Client, stream string) *Store {
	return &Store{client: client, stream: stream}
}

// Add archives a dead-lettered task. It implements relay.DeadLetterStore.
func (s *Store) Add(ctx context.Context, task *relay.DeliveryTask, reason string) error {
	if s == nil || s.client == nil {
		return nil
	}

	data, err := json.Marshal(Entry{
		Task:    task,
		Reason:  reason,
		MovedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}

	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd to dlq stream %s: %w", s.stream, err)
	}

	return nil
}

// Entries returns up to limit archived entries, oldest first.
func (s *Store) Entries(ctx context.Context, limit int64) ([]Entry, error) {
	if s == nil || s.client == nil {
		return nil, nil
	}

	msgs, err := s.client.XRangeN(ctx, s.stream, "-", "+", limit).Result()
	if err != nil {
		return nil, fmt.Errorf("xrange dlq stream %s: %w", s.stream, err)
	}

	entries := make([]Entry, 0, len(msgs))
	for _, msg := range msgs {
		data, ok := msg.Values["data"].(string)
		if !ok {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			continue
		}
		entry.StreamID = msg.ID
		entries = append(entries, entry)
	}
	return entries, nil
}

// Reprocess removes the given stream entries from the archive and
// re-admits their tasks to the pipeline with delivery state reset. It
// returns the number of tasks successfully reprocessed.
func (s *Store) Reprocess(ctx context.Context, enq Enqueuer, streamIDs []string) (int, error) {
	if s == nil || s.client == nil {
		return 0, nil
	}

	reprocessed := 0
	for _, id := range streamIDs {
		msgs, err := s.client.XRange(ctx, s.stream, id, id).Result()
		if err != nil {
			return reprocessed, fmt.Errorf("xrange dlq entry %s: %w", id, err)
		}
		if len(msgs) == 0 {
			continue
		}

		data, ok := msgs[0].Values["data"].(string)
		if !ok {
			continue
		}

		var entry Entry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			continue
		}

		if err := enq.Requeue(entry.Task); err != nil {
			return reprocessed, fmt.Errorf("requeue task %s: %w", entry.Task.ID, err)
		}

		if err := s.client.XDel(ctx, s.stream, id).Err(); err != nil {
			return reprocessed, fmt.Errorf("xdel dlq entry %s: %w", id, err)
		}

		reprocessed++
	}

	return reprocessed, nil
}
