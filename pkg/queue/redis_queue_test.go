package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T, maxRetries int) *RedisJobQueue {
	t.Helper()
	redisSrv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: redisSrv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	q, err := NewRedisJobQueue(client, RedisQueueConfig{
		Stream:     "test:covers",
		Group:      "test-group",
		Consumer:   "consumer-1",
		RetryDelay: time.Millisecond,
		Block:      20 * time.Millisecond,
		MaxRetries: maxRetries,
	})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	return q
}

func TestNewRedisJobQueueValidates(t *testing.T) {
	if _, err := NewRedisJobQueue(nil, RedisQueueConfig{Stream: "s"}); err == nil {
		t.Fatal("expected error without client")
	}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	if _, err := NewRedisJobQueue(client, RedisQueueConfig{}); err == nil {
		t.Fatal("expected error without stream")
	}
}

func TestRedisJobQueueEnqueueTracksStatus(t *testing.T) {
	q := newTestQueue(t, 0)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, KindCoverBackfill, " "); err == nil {
		t.Fatal("expected error for empty book id")
	}
	job, err := q.Enqueue(ctx, KindCoverBackfill, "book-1")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	got, ok, err := q.GetJob(ctx, job.ID)
	if err != nil || !ok {
		t.Fatalf("get job: ok=%v err=%v", ok, err)
	}
	if got.Status != StatusQueued || got.Kind != KindCoverBackfill || got.BookID != "book-1" {
		t.Fatalf("job = %+v", got)
	}
	if got.CreatedAt.IsZero() || got.CreatedAt.Sub(job.CreatedAt).Abs() > time.Millisecond {
		t.Fatalf("createdAt = %v, want %v", got.CreatedAt, job.CreatedAt)
	}
	if _, ok, _ := q.GetJob(ctx, "unknown"); ok {
		t.Fatal("unknown job should not exist")
	}
}

func TestRedisJobQueueDropsMalformedMessages(t *testing.T) {
	q := newTestQueue(t, 1)
	ctx := context.Background()
	q.ensureGroup(ctx)
	if err := q.client.XAdd(ctx, &redis.XAddArgs{Stream: q.stream, Values: map[string]any{"kind": KindCoverBackfill}}).Err(); err != nil {
		t.Fatalf("xadd: %v", err)
	}
	msgs, err := q.next(ctx, "consumer-1")
	if err != nil || len(msgs) != 1 {
		t.Fatalf("next: %v %v", msgs, err)
	}
	called := false
	q.process(ctx, msgs[0], func(context.Context, Job) error {
		called = true
		return nil
	})
	if called {
		t.Fatal("handler ran for malformed message")
	}
	if n := q.client.XLen(ctx, q.stream).Val(); n != 0 {
		t.Fatalf("stream length = %d, want 0", n)
	}
}

func waitForStatus(t *testing.T, q *RedisJobQueue, jobID, status string) Job {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		job, ok, err := q.GetJob(context.Background(), jobID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if ok && job.Status == status {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %s", jobID, status)
	return Job{}
}

func TestRedisJobQueueProcessesJobs(t *testing.T) {
	q := newTestQueue(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen atomic.Value
	q.Start(ctx, 1, func(_ context.Context, job Job) error {
		seen.Store(job.BookID)
		return nil
	})
	job, err := q.Enqueue(ctx, KindCoverBackfill, "book-7")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	done := waitForStatus(t, q, job.ID, StatusDone)
	if done.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", done.Attempts)
	}
	if seen.Load() != "book-7" {
		t.Fatalf("handler saw %v", seen.Load())
	}
}

func TestRedisJobQueueFailsAfterMaxRetries(t *testing.T) {
	q := newTestQueue(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	q.Start(ctx, 1, func(context.Context, Job) error {
		calls.Add(1)
		return errors.New("catalog unavailable")
	})
	job, err := q.Enqueue(ctx, KindCoverBackfill, "book-9")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	failed := waitForStatus(t, q, job.ID, StatusFailed)
	if failed.Attempts != 2 || failed.ErrorMessage != "catalog unavailable" {
		t.Fatalf("job = %+v", failed)
	}
	if calls.Load() != 2 {
		t.Fatalf("handler calls = %d, want 2", calls.Load())
	}
}

func TestRedisJobQueueRequeueRetiresMessage(t *testing.T) {
	q, ctx, msgID, job := newPendingQueueMessage(t)

	if err := q.requeue(ctx, msgID, task{JobID: job.ID, Kind: job.Kind, BookID: job.BookID}); err != nil {
		t.Fatalf("requeue and ack: %v", err)
	}

	pending, err := q.client.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 0 {
		t.Fatalf("expected no pending messages, got %d", pending.Count)
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: "consumer-2",
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    0,
	}).Result()
	if err != nil {
		t.Fatalf("read requeued message: %v", err)
	}
	if len(streams) != 1 || len(streams[0].Messages) != 1 {
		t.Fatalf("expected one requeued message, got %+v", streams)
	}
	got := streams[0].Messages[0]
	if got.Values["job_id"] != job.ID || got.Values["book_id"] != job.BookID || got.Values["kind"] != KindCoverBackfill {
		t.Fatalf("unexpected requeued payload: %+v", got.Values)
	}
}

func TestRedisJobQueueRequeueFailureKeepsPendingMessage(t *testing.T) {
	q, ctx, msgID, job := newPendingQueueMessage(t)

	canceledCtx, cancel := context.WithCancel(ctx)
	cancel()
	if err := q.requeue(canceledCtx, msgID, task{JobID: job.ID, Kind: job.Kind, BookID: job.BookID}); err == nil {
		t.Fatalf("expected requeue to fail on canceled context")
	}

	pending, err := q.client.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 1 {
		t.Fatalf("expected original message to remain pending, got %d", pending.Count)
	}
}

func newPendingQueueMessage(t *testing.T) (*RedisJobQueue, context.Context, string, Job) {
	t.Helper()
	q := newTestQueue(t, 0)
	ctx := context.Background()
	q.ensureGroup(ctx)

	job, err := q.Enqueue(ctx, KindCoverBackfill, "book-1")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: "consumer-1",
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    0,
	}).Result()
	if err != nil {
		t.Fatalf("readgroup: %v", err)
	}
	if len(streams) != 1 || len(streams[0].Messages) != 1 {
		t.Fatalf("expected one pending message, got %+v", streams)
	}
	return q, ctx, streams[0].Messages[0].ID, job
}
