package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"campfire/internal/util"
)

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// DeliveryJob is one offline-notification delivery waiting to be sent.
type DeliveryJob struct {
	ID             string    `json:"id"`
	NotificationID string    `json:"notificationId"`
	RecipientID    string    `json:"recipientId"`
	Status         string    `json:"status"`
	ErrorMessage   string    `json:"errorMessage,omitempty"`
	Attempts       int       `json:"attempts"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// RedisDeliveryQueue queues notification deliveries on a Redis stream.
// Consumers in a group share the work; stalled deliveries are reclaimed
// and retried up to maxRetries before being marked failed.
type RedisDeliveryQueue struct {
	client       *redis.Client
	stream       string
	group        string
	consumerBase string
	jobTTL       time.Duration
	maxRetries   int
	block        time.Duration
	claimIdle    time.Duration
	retryDelay   time.Duration
	maxLen       int64
	readCount    int64
	claimCount   int64
	once         sync.Once
}

type RedisQueueConfig struct {
	Addr       string
	Password   string
	Stream     string
	Group      string
	Consumer   string
	JobTTL     time.Duration
	MaxRetries int
	Block      time.Duration
	ClaimIdle  time.Duration
	RetryDelay time.Duration
	MaxLen     int64
	ReadCount  int64
	ClaimCount int64
}

func NewRedisDeliveryQueue(cfg RedisQueueConfig) (*RedisDeliveryQueue, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		return nil, errors.New("queue stream required")
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "default"
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = util.NewID()
	}
	jobTTL := cfg.JobTTL
	if jobTTL <= 0 {
		jobTTL = 24 * time.Hour
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	block := cfg.Block
	if block <= 0 {
		block = 5 * time.Second
	}
	claimIdle := cfg.ClaimIdle
	if claimIdle <= 0 {
		claimIdle = 30 * time.Second
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	readCount := cfg.ReadCount
	if readCount <= 0 {
		readCount = 10
	}
	claimCount := cfg.ClaimCount
	if claimCount <= 0 {
		claimCount = 10
	}

	return &RedisDeliveryQueue{
		client:       redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		stream:       stream,
		group:        group,
		consumerBase: consumer,
		jobTTL:       jobTTL,
		maxRetries:   maxRetries,
		block:        block,
		claimIdle:    claimIdle,
		retryDelay:   retryDelay,
		maxLen:       maxLen,
		readCount:    readCount,
		claimCount:   claimCount,
	}, nil
}

// Enqueue queues one notification delivery for the recipient.
func (q *RedisDeliveryQueue) Enqueue(ctx context.Context, notificationID, recipientID string) (DeliveryJob, error) {
	notificationID = strings.TrimSpace(notificationID)
	recipientID = strings.TrimSpace(recipientID)
	if notificationID == "" || recipientID == "" {
		return DeliveryJob{}, errors.New("notificationId and recipientId required")
	}
	job := DeliveryJob{
		ID:             util.NewID(),
		NotificationID: notificationID,
		RecipientID:    recipientID,
		Status:         StatusQueued,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	if err := q.writeStatus(ctx, job); err != nil {
		return DeliveryJob{}, err
	}
	if err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"job_id":          job.ID,
			"notification_id": job.NotificationID,
			"recipient_id":    job.RecipientID,
		},
	}).Err(); err != nil {
		return DeliveryJob{}, err
	}
	return job, nil
}

func (q *RedisDeliveryQueue) GetJob(ctx context.Context, jobID string) (DeliveryJob, bool, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return DeliveryJob{}, false, nil
	}
	data, err := q.client.HGetAll(ctx, q.jobKey(jobID)).Result()
	if err != nil {
		return DeliveryJob{}, false, err
	}
	if len(data) == 0 {
		return DeliveryJob{}, false, nil
	}
	return decodeDeliveryJob(jobID, data), true, nil
}

// Start launches consumer goroutines until the context is canceled.
func (q *RedisDeliveryQueue) Start(ctx context.Context, concurrency int, handler func(context.Context, DeliveryJob) error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	q.ensureGroup(ctx)
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", q.consumerBase, i)
		go q.consumeLoop(ctx, consumer, handler)
	}
}

func (q *RedisDeliveryQueue) ensureGroup(ctx context.Context) {
	q.once.Do(func() {
		err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "$").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			slog.Warn("consumer group create failed", "stream", q.stream, "group", q.group, "err", err)
		}
	})
}

func (q *RedisDeliveryQueue) consumeLoop(ctx context.Context, consumer string, handler func(context.Context, DeliveryJob) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if msgs, err := q.claimPending(ctx, consumer); err == nil {
			for _, msg := range msgs {
				q.handleMessage(ctx, msg, handler)
			}
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    q.readCount,
			Block:    q.block,
		}).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			// XReadGroup only blocks on a live connection; pause here so a
			// dead Redis does not spin the loop.
			q.readPause(ctx)
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.handleMessage(ctx, msg, handler)
			}
		}
	}
}

func (q *RedisDeliveryQueue) readPause(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(q.block):
	}
}

func (q *RedisDeliveryQueue) claimPending(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	res, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  q.claimIdle,
		Start:    "0-0",
		Count:    q.claimCount,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (q *RedisDeliveryQueue) handleMessage(ctx context.Context, msg redis.XMessage, handler func(context.Context, DeliveryJob) error) {
	jobID, _ := msg.Values["job_id"].(string)
	notificationID, _ := msg.Values["notification_id"].(string)
	recipientID, _ := msg.Values["recipient_id"].(string)
	if jobID == "" || notificationID == "" {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	job, err := q.markProcessing(ctx, jobID, notificationID, recipientID)
	if err != nil {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	if err := handler(ctx, job); err == nil {
		_ = q.markDone(ctx, jobID)
		q.ackAndDel(ctx, msg.ID)
		return
	} else if job.Attempts >= q.maxRetries {
		_ = q.markFailed(ctx, jobID, err.Error())
		q.ackAndDel(ctx, msg.ID)
		return
	} else {
		_ = q.markQueued(ctx, jobID, err.Error())
	}
	if q.retryDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(q.retryDelay):
		}
	}
	_ = q.requeueAndAck(ctx, msg.ID, jobID, notificationID, recipientID)
}

func (q *RedisDeliveryQueue) ackAndDel(ctx context.Context, msgID string) {
	_, _ = q.client.XAck(ctx, q.stream, q.group, msgID).Result()
	_, _ = q.client.XDel(ctx, q.stream, msgID).Result()
}

func (q *RedisDeliveryQueue) requeueAndAck(ctx context.Context, msgID, jobID, notificationID, recipientID string) error {
	pipe := q.client.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"job_id":          jobID,
			"notification_id": notificationID,
			"recipient_id":    recipientID,
		},
	})
	pipe.XAck(ctx, q.stream, q.group, msgID)
	pipe.XDel(ctx, q.stream, msgID)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisDeliveryQueue) markProcessing(ctx context.Context, jobID, notificationID, recipientID string) (DeliveryJob, error) {
	job, _, err := q.GetJob(ctx, jobID)
	if err != nil {
		return DeliveryJob{}, err
	}
	if job.ID == "" {
		job = DeliveryJob{ID: jobID}
	}
	if notificationID != "" {
		job.NotificationID = notificationID
	}
	if recipientID != "" {
		job.RecipientID = recipientID
	}
	job.Attempts++
	job.Status = StatusProcessing
	job.UpdatedAt = time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = job.UpdatedAt
	}
	if err := q.writeStatus(ctx, job); err != nil {
		return DeliveryJob{}, err
	}
	return job, nil
}

func (q *RedisDeliveryQueue) markQueued(ctx context.Context, jobID, errMsg string) error {
	job, _, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	job.Status = StatusQueued
	job.ErrorMessage = errMsg
	job.UpdatedAt = time.Now().UTC()
	return q.writeStatus(ctx, job)
}

func (q *RedisDeliveryQueue) markDone(ctx context.Context, jobID string) error {
	job, _, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	job.Status = StatusDone
	job.ErrorMessage = ""
	job.UpdatedAt = time.Now().UTC()
	return q.writeStatus(ctx, job)
}

func (q *RedisDeliveryQueue) markFailed(ctx context.Context, jobID, errMsg string) error {
	job, _, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	job.Status = StatusFailed
	job.ErrorMessage = errMsg
	job.UpdatedAt = time.Now().UTC()
	return q.writeStatus(ctx, job)
}

func (q *RedisDeliveryQueue) writeStatus(ctx context.Context, job DeliveryJob) error {
	key := q.jobKey(job.ID)
	payload := map[string]any{
		"id":             job.ID,
		"notificationId": job.NotificationID,
		"recipientId":    job.RecipientID,
		"status":         job.Status,
		"error":          job.ErrorMessage,
		"attempts":       strconv.Itoa(job.Attempts),
		"createdAt":      job.CreatedAt.Format(time.RFC3339Nano),
		"updatedAt":      job.UpdatedAt.Format(time.RFC3339Nano),
	}
	if err := q.client.HSet(ctx, key, payload).Err(); err != nil {
		return err
	}
	_ = q.client.Expire(ctx, key, q.jobTTL).Err()
	return nil
}

func (q *RedisDeliveryQueue) jobKey(jobID string) string {
	return fmt.Sprintf("delivery:%s:%s", q.stream, jobID)
}

func decodeDeliveryJob(jobID string, data map[string]string) DeliveryJob {
	job := DeliveryJob{ID: jobID}
	job.NotificationID = data["notificationId"]
	job.RecipientID = data["recipientId"]
	job.Status = data["status"]
	job.ErrorMessage = data["error"]
	if v := data["attempts"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			job.Attempts = n
		}
	}
	if v := data["createdAt"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			job.CreatedAt = t
		}
	}
	if v := data["updatedAt"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			job.UpdatedAt = t
		}
	}
	return job
}
