package queue

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"hr-bulk-import/internal/config"
)

func newTestQueue(t *testing.T, visibility time.Duration) *RedisQueue {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisQueueWithClient(client, config.Config{VisibilityTimeout: visibility, DLQName: "test:dlq"})
}

func TestEnqueueDequeueAck(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, time.Minute)

	for _, id := range []string{"job-1", "job-2"} {
		if err := q.Enqueue(ctx, Task{JobID: id, ImportType: "employee", SourceKey: id + "/staff.csv", SourceName: "staff.csv"}); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	if depth, _ := q.ReadyDepth(ctx); depth != 2 {
		t.Fatalf("expected depth 2 got %d", depth)
	}

	task, ok, err := q.DequeueWithLease(ctx)
	if err != nil || !ok {
		t.Fatalf("dequeue: ok=%v err=%v", ok, err)
	}
	if task.JobID != "job-1" || task.ImportType != "employee" || task.SourceKey != "job-1/staff.csv" || task.EnqueuedAt.IsZero() {
		t.Fatalf("unexpected task %+v", task)
	}
	if err := q.Ack(ctx, task.JobID); err != nil {
		t.Fatalf("ack: %v", err)
	}

	if _, ok, _ := q.DequeueWithLease(ctx); !ok {
		t.Fatalf("expected second task")
	}
	if _, ok, err := q.DequeueWithLease(ctx); ok || err != nil {
		t.Fatalf("expected empty queue, ok=%v err=%v", ok, err)
	}
}

func TestReapExpiredReturnsTasksOnce(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, time.Second)

	if err := q.Enqueue(ctx, Task{JobID: "job-1", ImportType: "employee", SourceKey: "job-1/a.csv", SourceName: "a.csv"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, _, err := q.DequeueWithLease(ctx); err != nil {
		t.Fatalf("dequeue: %v", err)
	}

	if reaped, _ := q.ReapExpired(ctx, time.Now(), 10); len(reaped) != 0 {
		t.Fatalf("lease should still be valid, reaped %+v", reaped)
	}

	later := time.Now().Add(5 * time.Second)
	reaped, err := q.ReapExpired(ctx, later, 10)
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if len(reaped) != 1 || reaped[0].JobID != "job-1" || reaped[0].SourceKey != "job-1/a.csv" {
		t.Fatalf("unexpected reaped tasks %+v", reaped)
	}
	if again, _ := q.ReapExpired(ctx, later, 10); len(again) != 0 {
		t.Fatalf("lease reaped twice: %+v", again)
	}
	if depth, _ := q.ReadyDepth(ctx); depth != 0 {
		t.Fatalf("reaped imports must not be re-queued, depth=%d", depth)
	}
}

func TestExtendLease(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, time.Second)

	_ = q.Enqueue(ctx, Task{JobID: "job-1", SourceKey: "job-1/a.csv"})
	_, _, _ = q.DequeueWithLease(ctx)
	if err := q.ExtendLease(ctx, "job-1", time.Hour); err != nil {
		t.Fatalf("extend: %v", err)
	}
	if reaped, _ := q.ReapExpired(ctx, time.Now().Add(5*time.Second), 10); len(reaped) != 0 {
		t.Fatalf("extended lease was reaped")
	}

	// extending an unknown lease must not create one
	_ = q.ExtendLease(ctx, "ghost", time.Hour)
	if n, _ := q.client.ZCard(ctx, q.inflightKey).Result(); n != 1 {
		t.Fatalf("expected 1 in-flight lease, got %d", n)
	}
}

func TestDLQ(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, time.Second)
	_ = q.DLQPush(ctx, "job-9")
	ids, err := q.DLQPeek(ctx, 5)
	if err != nil || len(ids) != 1 || ids[0] != "job-9" {
		t.Fatalf("unexpected dlq %v err=%v", ids, err)
	}
}
