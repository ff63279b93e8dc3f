// Package relay implements the message relay pipeline: event ingestion,
// channel filtering, content transformation, bounded queueing, and
// throttled delivery with retry and dead-lettering.
package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/wecom-relay/internal/ratelimit"
)

// PipelineConfig holds everything needed to assemble the pipeline.
type PipelineConfig struct {
	AllowedChannels []string
	BotUserID       string
	MaxPayloadBytes int
	Consumers       int
	QueueSize       int
	EnqueueTimeout  time.Duration
	ShutdownGrace   time.Duration
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
}

// Pipeline is the relay assembled end to end, constructed once at startup
// and passed by reference; there is no ambient global state. It owns the
// queues and consumers; the Ingestor is its producer side.
type Pipeline struct {
	Ingestor *Ingestor

	queues    []*Queue
	consumers []*Consumer
	grace     time.Duration
	timeout   time.Duration
	log       zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPipeline wires filter, transformer, queues, ingestor, and consumers.
// All consumers share one rate-limit bucket so the destination's limit
// binds the process as a whole.
func NewPipeline(
	cfg PipelineConfig,
	sender Sender,
	limiter *ratelimit.Bucket,
	dlq DeadLetterStore,
	recorder DeliveryRecorder,
	log zerolog.Logger,
) *Pipeline {
	filter := NewChannelFilter(cfg.AllowedChannels)
	transformer := NewTransformer(cfg.MaxPayloadBytes)
	retry := NewRetryStrategy(cfg.MaxAttempts, cfg.BaseDelay, cfg.MaxDelay)

	queues := make([]*Queue, cfg.Consumers)
	consumers := make([]*Consumer, cfg.Consumers)
	for i := range queues {
		queues[i] = NewQueue(cfg.QueueSize)
		consumers[i] = NewConsumer(
			fmt.Sprintf("consumer-%d", i),
			queues[i],
			limiter,
			sender,
			retry,
			dlq,
			recorder,
			log,
		)
	}

	return &Pipeline{
		Ingestor:  NewIngestor(filter, transformer, queues, cfg.EnqueueTimeout, cfg.BotUserID, log),
		queues:    queues,
		consumers: consumers,
		grace:     cfg.ShutdownGrace,
		timeout:   cfg.EnqueueTimeout,
		log:       log,
	}
}

// Start launches one goroutine per consumer.
func (p *Pipeline) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	for _, c := range p.consumers {
		p.wg.Add(1)
		go func(c *Consumer) {
			defer p.wg.Done()
			c.Run(ctx)
		}(c)
	}

	p.log.Info().Int("consumers", len(p.consumers)).Msg("relay pipeline started")
}

// Stop closes the queues and waits up to the shutdown grace period for
// consumers to drain their backlog. Tasks still undelivered after the
// grace period are abandoned and logged; nothing is retried after stop.
func (p *Pipeline) Stop() {
	for _, q := range p.queues {
		q.Close()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info().Msg("relay pipeline stopped gracefully")
	case <-time.After(p.grace):
		p.log.Warn().Msg("shutdown grace period elapsed, abandoning remaining tasks")
	}

	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// Requeue re-enqueues a task, routing it to its channel's partition and
// resetting its delivery state. Used when reprocessing dead-lettered tasks.
func (p *Pipeline) Requeue(task *DeliveryTask) error {
	task.Status = StatusPending
	task.Attempts = 0
	task.NextRetryAt = time.Time{}
	task.LastError = ""

	q := p.queues[partition(task.ChannelID, len(p.queues))]
	return q.Enqueue(task, p.timeout)
}
