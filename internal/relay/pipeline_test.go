package relay

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/wecom-relay/internal/ratelimit"
)

// collectingSender records delivered payloads in arrival order.
type collectingSender struct {
	mu    sync.Mutex
	texts []string
}

func (s *collectingSender) Send(ctx context.Context, payload *OutboundPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, payload.Text)
	return nil
}

func (s *collectingSender) delivered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

func testPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MaxPayloadBytes: 2048,
		Consumers:       2,
		QueueSize:       32,
		EnqueueTimeout:  100 * time.Millisecond,
		ShutdownGrace:   2 * time.Second,
		MaxAttempts:     3,
		BaseDelay:       time.Millisecond,
		MaxDelay:        10 * time.Millisecond,
	}
}

func TestPipeline_EndToEndDelivery(t *testing.T) {
	sender := &collectingSender{}
	recorder := &capturingRecorder{}
	p := NewPipeline(testPipelineConfig(), sender,
		ratelimit.NewBucket(100, 100), &capturingDLQ{}, recorder, zerolog.Nop())

	p.Start(context.Background())

	for i := 0; i < 5; i++ {
		evt := testEvent()
		evt.ID = fmt.Sprintf("evt-%d", i)
		evt.Content = fmt.Sprintf("message %d", i)
		if err := p.Ingestor.Ingest(context.Background(), evt); err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
	}
	p.Stop()

	got := sender.delivered()
	if len(got) != 5 {
		t.Fatalf("delivered %d payloads, want 5", len(got))
	}
	// All five events share one channel, so order is preserved.
	for i, text := range got {
		want := fmt.Sprintf("123: alice: message %d", i)
		if text != want {
			t.Errorf("delivery %d = %q, want %q", i, text, want)
		}
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.records) != 5 {
		t.Errorf("recorded %d outcomes, want 5", len(recorder.records))
	}
}

func TestPipeline_StopDrainsBacklog(t *testing.T) {
	sender := &collectingSender{}
	p := NewPipeline(testPipelineConfig(), sender,
		ratelimit.NewBucket(100, 100), &capturingDLQ{}, &capturingRecorder{}, zerolog.Nop())

	// Enqueue before starting consumers, then rely on Stop to drain.
	for i := 0; i < 10; i++ {
		evt := testEvent()
		evt.ID = fmt.Sprintf("evt-%d", i)
		if err := p.Ingestor.Ingest(context.Background(), evt); err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
	}

	p.Start(context.Background())
	p.Stop()

	if got := len(sender.delivered()); got != 10 {
		t.Errorf("delivered %d payloads after drain, want 10", got)
	}
}

func TestPipeline_StopWithoutStart(t *testing.T) {
	p := NewPipeline(testPipelineConfig(), &collectingSender{},
		ratelimit.NewBucket(100, 100), &capturingDLQ{}, &capturingRecorder{}, zerolog.Nop())
	p.Stop()
}

func TestPipeline_RequeueResetsTask(t *testing.T) {
	sender := &collectingSender{}
	p := NewPipeline(testPipelineConfig(), sender,
		ratelimit.NewBucket(100, 100), &capturingDLQ{}, &capturingRecorder{}, zerolog.Nop())

	task := testTask(0)
	task.Status = StatusDeadLettered
	task.Attempts = 3
	task.LastError = "status 400"
	task.NextRetryAt = time.Now()

	if err := p.Requeue(task); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if task.Status != StatusPending {
		t.Errorf("task status = %q, want %q", task.Status, StatusPending)
	}
	if task.Attempts != 0 {
		t.Errorf("task attempts = %d, want 0", task.Attempts)
	}
	if task.LastError != "" {
		t.Errorf("task LastError = %q, want empty", task.LastError)
	}

	p.Start(context.Background())
	p.Stop()
	if got := len(sender.delivered()); got != 1 {
		t.Errorf("delivered %d payloads, want the requeued task", got)
	}
}
