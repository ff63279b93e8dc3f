package relay

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/wecom-relay/internal/metrics"
	"github.com/sungwon/wecom-relay/internal/ratelimit"
)

// Sender delivers one payload to the destination webhook.
type Sender interface {
	Send(ctx context.Context, payload *OutboundPayload) error
}

// PermanentError marks delivery failures that will not succeed on retry.
// Errors not implementing it are treated as transient to avoid data loss.
type PermanentError interface {
	error
	PermanentFailure() bool
}

// DeadLetterStore archives tasks that exhausted delivery.
type DeadLetterStore interface {
	Add(ctx context.Context, task *DeliveryTask, reason string) error
}

// DeliveryRecord is one completed task outcome for the history log.
type DeliveryRecord struct {
	TaskID    string
	MessageID string
	ChannelID string
	Status    TaskStatus
	Attempts  int
	LastError string
	Duration  time.Duration
}

// DeliveryRecorder persists task outcomes for operators.
type DeliveryRecorder interface {
	Record(ctx context.Context, rec DeliveryRecord) error
}

// Consumer drains one queue partition sequentially: throttle, send,
// classify, retry in place, dead-letter. Retrying in place keeps tasks in
// enqueue order, so per-channel FIFO delivery holds.
type Consumer struct {
	name     string
	queue    *Queue
	limiter  *ratelimit.Bucket
	sender   Sender
	retry    *RetryStrategy
	dlq      DeadLetterStore
	recorder DeliveryRecorder
	log      zerolog.Logger
}

// NewConsumer creates a Consumer for one queue partition. The limiter is
// shared between all consumers so the destination's rate limit binds the
// whole process. dlq and recorder may be nil-valued implementations.
func NewConsumer(
	name string,
	queue *Queue,
	limiter *ratelimit.Bucket,
	sender Sender,
	retry *RetryStrategy,
	dlq DeadLetterStore,
	recorder DeliveryRecorder,
	log zerolog.Logger,
) *Consumer {
	return &Consumer{
		name:     name,
		queue:    queue,
		limiter:  limiter,
		sender:   sender,
		retry:    retry,
		dlq:      dlq,
		recorder: recorder,
		log:      log.With().Str("consumer", name).Logger(),
	}
}

// Run processes tasks until the queue is closed and drained or ctx is
// canceled.
func (c *Consumer) Run(ctx context.Context) {
	c.log.Info().Msg("consumer started")
	for {
		task, ok := c.queue.Dequeue(ctx)
		if !ok {
			c.log.Info().Msg("consumer stopping")
			return
		}
		metrics.QueueDepth.WithLabelValues(c.name).Set(float64(c.queue.Len()))
		c.process(ctx, task)
	}
}

// process drives one task through the delivery state machine.
func (c *Consumer) process(ctx context.Context, task *DeliveryTask) {
	start := time.Now()

	for {
		task.Status = StatusInFlight

		waitStart := time.Now()
		if err := c.limiter.Acquire(ctx); err != nil {
			c.abandon(task, err)
			return
		}
		metrics.RateLimitWaitDuration.Observe(time.Since(waitStart).Seconds())

		sendStart := time.Now()
		err := c.sender.Send(ctx, &task.Payload)
		metrics.DeliveryDuration.Observe(time.Since(sendStart).Seconds())
		task.Attempts++

		if err == nil {
			task.Status = StatusDelivered
			metrics.DeliveryAttemptsTotal.WithLabelValues("ok").Inc()
			metrics.DeliveriesTotal.WithLabelValues("delivered").Inc()
			c.log.Info().
				Str("task_id", task.ID).
				Str("message_id", task.MessageID).
				Int("attempts", task.Attempts).
				Int64("duration_ms", time.Since(start).Milliseconds()).
				Msg("task delivered")
			c.record(ctx, task, time.Since(start))
			return
		}

		task.LastError = err.Error()

		if isPermanent(err) {
			metrics.DeliveryAttemptsTotal.WithLabelValues("permanent").Inc()
			c.deadLetter(ctx, task, "permanent", err)
			return
		}

		metrics.DeliveryAttemptsTotal.WithLabelValues("transient").Inc()

		if !c.retry.ShouldRetry(task.Attempts) {
			c.deadLetter(ctx, task, "exhausted", err)
			return
		}

		backoff := c.retry.NextBackoff(task.Attempts - 1)
		task.Status = StatusRetrying
		task.NextRetryAt = time.Now().Add(backoff)
		c.log.Warn().Err(err).
			Str("task_id", task.ID).
			Int("attempts", task.Attempts).
			Dur("backoff", backoff).
			Msg("transient delivery failure, scheduling retry")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.abandon(task, ctx.Err())
			return
		case <-timer.C:
		}
	}
}

// deadLetter finalizes a task that will not be retried further.
func (c *Consumer) deadLetter(ctx context.Context, task *DeliveryTask, reason string, cause error) {
	task.Status = StatusDeadLettered
	metrics.DeadLetteredTotal.WithLabelValues(reason).Inc()
	metrics.DeliveriesTotal.WithLabelValues("dead_lettered").Inc()

	c.log.Error().Err(cause).
		Str("task_id", task.ID).
		Str("message_id", task.MessageID).
		Str("reason", reason).
		Int("attempts", task.Attempts).
		Msg("task dead-lettered")

	if err := c.dlq.Add(ctx, task, reason); err != nil {
		c.log.Error().Err(err).Str("task_id", task.ID).Msg("failed to archive dead-lettered task")
	}
	c.record(ctx, task, time.Since(task.CreatedAt))
}

// abandon logs a task dropped by shutdown or cancellation. Abandoned tasks
// are never retried after the process exits.
func (c *Consumer) abandon(task *DeliveryTask, cause error) {
	metrics.DeliveriesTotal.WithLabelValues("abandoned").Inc()
	c.log.Warn().Err(cause).
		Str("task_id", task.ID).
		Str("message_id", task.MessageID).
		Msg("task abandoned at shutdown")
}

func (c *Consumer) record(ctx context.Context, task *DeliveryTask, duration time.Duration) {
	err := c.recorder.Record(ctx, DeliveryRecord{
		TaskID:    task.ID,
		MessageID: task.MessageID,
		ChannelID: task.ChannelID,
		Status:    task.Status,
		Attempts:  task.Attempts,
		LastError: task.LastError,
		Duration:  duration,
	})
	if err != nil {
		c.log.Error().Err(err).Str("task_id", task.ID).Msg("failed to record delivery outcome")
	}
}

func isPermanent(err error) bool {
	var pe PermanentError
	return errors.As(err, &pe) && pe.PermanentFailure()
}
