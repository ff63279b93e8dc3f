//go:build integration

package dlq_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sungwon/wecom-relay/internal/dlq"
	"github.com/sungwon/wecom-relay/internal/relay"
)

var (
	sharedClient   *redis.Client
	redisContainer testcontainers.Container
)

// TestMain sets up a shared Redis container for all integration tests.
func TestMain(m *testing.M) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
	}

	var err error
	redisContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start redis container: %v\n", err)
		os.Exit(1)
	}

	host, err := redisContainer.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get container host: %v\n", err)
		os.Exit(1)
	}

	port, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get container port: %v\n", err)
		os.Exit(1)
	}

	sharedClient = redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", host, port.Port()),
	})
	if err := sharedClient.Ping(ctx).Err(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to ping redis: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	sharedClient.Close()
	if err := redisContainer.Terminate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to terminate container: %v\n", err)
	}

	os.Exit(code)
}

// setupStore returns a Store on a fresh stream per test.
func setupStore(t *testing.T) *dlq.Store {
	t.Helper()
	stream := fmt.Sprintf("relay:dlq:test:%s", t.Name())
	t.Cleanup(func() {
		sharedClient.Del(context.Background(), stream)
	})
	return dlq.NewStore(sharedClient, stream)
}

func deadTask(seq int, reasonText string) *relay.DeliveryTask {
	msg := &relay.InboundMessage{ID: fmt.Sprintf("msg-%d", seq), ChannelID: "123", Author: "alice"}
	task := relay.NewDeliveryTask(msg, relay.OutboundPayload{Kind: relay.KindText, Text: "hello"}, seq)
	task.Status = relay.StatusDeadLettered
	task.Attempts = 5
	task.LastError = reasonText
	return task
}

// fakeEnqueuer collects requeued tasks, optionally failing.
type fakeEnqueuer struct {
	tasks []*relay.DeliveryTask
	err   error
}

func (f *fakeEnqueuer) Requeue(task *relay.DeliveryTask) error {
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, task)
	return nil
}

func TestStore_AddAndEntries(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	first := deadTask(0, "wecom: status 400: bad request")
	second := deadTask(1, "wecom: status 503: unavailable")
	if err := store.Add(ctx, first, "permanent"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.Add(ctx, second, "exhausted"); err != nil {
		t.Fatalf("add: %v", err)
	}

	entries, err := store.Entries(ctx, 10)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	// Oldest first.
	if entries[0].Task.ID != first.ID {
		t.Errorf("first entry task = %q, want %q", entries[0].Task.ID, first.ID)
	}
	if entries[0].Reason != "permanent" {
		t.Errorf("first entry reason = %q, want permanent", entries[0].Reason)
	}
	if entries[0].StreamID == "" {
		t.Error("entry StreamID not set")
	}
	if entries[0].Task.Attempts != 5 {
		t.Errorf("task attempts = %d, want 5", entries[0].Task.Attempts)
	}
	if entries[1].Reason != "exhausted" {
		t.Errorf("second entry reason = %q, want exhausted", entries[1].Reason)
	}
}

func TestStore_EntriesLimit(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := store.Add(ctx, deadTask(i, "err"), "exhausted"); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}

	entries, err := store.Entries(ctx, 3)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("got %d entries, want 3", len(entries))
	}
}

func TestStore_Reprocess(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := store.Add(ctx, deadTask(i, "err"), "exhausted"); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}

	entries, err := store.Entries(ctx, 10)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}

	enq := &fakeEnqueuer{}
	reprocessed, err := store.Reprocess(ctx, enq, []string{entries[0].StreamID, entries[2].StreamID})
	if err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	if reprocessed != 2 {
		t.Errorf("reprocessed = %d, want 2", reprocessed)
	}
	if len(enq.tasks) != 2 {
		t.Fatalf("requeued %d tasks, want 2", len(enq.tasks))
	}

	remaining, err := store.Entries(ctx, 10)
	if err != nil {
		t.Fatalf("entries after reprocess: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("got %d remaining entries, want 1", len(remaining))
	}
	if remaining[0].StreamID != entries[1].StreamID {
		t.Errorf("remaining entry = %q, want %q", remaining[0].StreamID, entries[1].StreamID)
	}
}

func TestStore_ReprocessUnknownID(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	if err := store.Add(ctx, deadTask(0, "err"), "exhausted"); err != nil {
		t.Fatalf("add: %v", err)
	}

	enq := &fakeEnqueuer{}
	reprocessed, err := store.Reprocess(ctx, enq, []string{"99999999999-0"})
	if err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	if reprocessed != 0 {
		t.Errorf("reprocessed = %d, want 0 for unknown stream ID", reprocessed)
	}
}

func TestStore_ReprocessStopsOnRequeueFailure(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	if err := store.Add(ctx, deadTask(0, "err"), "exhausted"); err != nil {
		t.Fatalf("add: %v", err)
	}
	entries, err := store.Entries(ctx, 10)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}

	enq := &fakeEnqueuer{err: fmt.Errorf("queue saturated")}
	reprocessed, err := store.Reprocess(ctx, enq, []string{entries[0].StreamID})
	if err == nil {
		t.Fatal("expected error when requeue fails")
	}
	if reprocessed != 0 {
		t.Errorf("reprocessed = %d, want 0", reprocessed)
	}

	// Entry must stay archived when requeue fails.
	remaining, err := store.Entries(ctx, 10)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(remaining) != 1 {
		t.Errorf("got %d remaining entries, want 1", len(remaining))
	}
}

func TestStore_NilStoreIsNoop(t *testing.T) {
	var store *dlq.Store
	ctx := context.Background()

	if err := store.Add(ctx, deadTask(0, "err"), "exhausted"); err != nil {
		t.Errorf("nil store Add: %v", err)
	}
	entries, err := store.Entries(ctx, 10)
	if err != nil {
		t.Errorf("nil store Entries: %v", err)
	}
	if entries != nil {
		t.Errorf("nil store returned %d entries", len(entries))
	}
}
