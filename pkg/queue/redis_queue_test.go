package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestDeliveryQueueRequeueAndAckSuccess(t *testing.T) {
	q, ctx, msgID, job := newPendingDelivery(t)

	if err := q.requeueAndAck(ctx, msgID, job.ID, job.NotificationID, job.RecipientID); err != nil {
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
	if got.Values["notification_id"] != job.NotificationID || got.Values["recipient_id"] != job.RecipientID {
		t.Fatalf("unexpected requeued payload: %+v", got.Values)
	}
}

func TestDeliveryQueueRequeueFailureKeepsPendingMessage(t *testing.T) {
	q, ctx, msgID, job := newPendingDelivery(t)

	canceledCtx, cancel := context.WithCancel(ctx)
	cancel()
	if err := q.requeueAndAck(canceledCtx, msgID, job.ID, job.NotificationID, job.RecipientID); err == nil {
		t.Fatalf("expected requeueAndAck to fail on canceled context")
	}

	pending, err := q.client.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 1 {
		t.Fatalf("expected original message to remain pending, got %d", pending.Count)
	}
}

func TestDeliveryQueueTracksJobStatus(t *testing.T) {
	redisSrv := miniredis.RunT(t)
	q, err := NewRedisDeliveryQueue(RedisQueueConfig{
		Addr:   redisSrv.Addr(),
		Stream: "test:deliveries",
	})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	ctx := context.Background()

	job, err := q.Enqueue(ctx, "n-1", "member-1")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	got, found, err := q.GetJob(ctx, job.ID)
	if err != nil || !found {
		t.Fatalf("get job: found=%v err=%v", found, err)
	}
	if got.Status != StatusQueued || got.NotificationID != "n-1" || got.RecipientID != "member-1" {
		t.Fatalf("unexpected job: %+v", got)
	}

	if err := q.markDone(ctx, job.ID); err != nil {
		t.Fatalf("mark done: %v", err)
	}
	got, _, _ = q.GetJob(ctx, job.ID)
	if got.Status != StatusDone {
		t.Fatalf("expected done, got %s", got.Status)
	}
}

func TestReadPauseWaitsOutTheBlockWindow(t *testing.T) {
	redisSrv := miniredis.RunT(t)
	q, err := NewRedisDeliveryQueue(RedisQueueConfig{
		Addr:   redisSrv.Addr(),
		Stream: "test:deliveries",
		Block:  30 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}

	start := time.Now()
	q.readPause(context.Background())
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("pause returned after %v, want at least the block window", elapsed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start = time.Now()
	q.readPause(ctx)
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Fatalf("canceled pause took %v, want immediate return", elapsed)
	}
}

func TestPublishEmailNilPublisherIsDisabled(t *testing.T) {
	var p *AMQPPublisher
	if err := p.PublishEmail(context.Background(), EmailEvent{NotificationID: "n-1"}); err != nil {
		t.Fatalf("nil publisher should no-op, got %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("nil close should no-op, got %v", err)
	}
}

func newPendingDelivery(t *testing.T) (*RedisDeliveryQueue, context.Context, string, DeliveryJob) {
	t.Helper()

	redisSrv := miniredis.RunT(t)
	q, err := NewRedisDeliveryQueue(RedisQueueConfig{
		Addr:       redisSrv.Addr(),
		Stream:     "test:deliveries",
		Group:      "test-group",
		Consumer:   "consumer-1",
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}

	ctx := context.Background()
	q.ensureGroup(ctx)

	job, err := q.Enqueue(ctx, "n-1", "member-1")
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
