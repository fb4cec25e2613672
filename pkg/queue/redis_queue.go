// Package queue runs background jobs on a Redis stream consumer group.
// Job state lives in a hash next to the stream so callers can poll it.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"langgrade/internal/util"
)

type RedisQueueConfig struct {
	Stream     string
	Group      string
	Consumer   string
	JobTTL     time.Duration
	MaxRetries int
	Block      time.Duration
	ClaimIdle  time.Duration
	RetryDelay time.Duration
	MaxLen     int64
	BatchSize  int64
}

type RedisJobQueue struct {
	client *redis.Client
	stream string
	group  string
	prefix string

	consumer   string
	jobTTL     time.Duration
	maxRetries int
	block      time.Duration
	claimIdle  time.Duration
	retryDelay time.Duration
	maxLen     int64
	batch      int64

	groupOnce sync.Once
}

// NewRedisJobQueue builds a queue on a shared client. Zero config values get
// defaults.
func NewRedisJobQueue(client *redis.Client, cfg RedisQueueConfig) (*RedisJobQueue, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		return nil, errors.New("queue stream required")
	}
	q := &RedisJobQueue{
		client:     client,
		stream:     stream,
		group:      firstNonEmpty(cfg.Group, "default"),
		prefix:     "job:" + stream + ":",
		consumer:   firstNonEmpty(cfg.Consumer, util.NewID()),
		jobTTL:     positive(cfg.JobTTL, 24*time.Hour),
		maxRetries: positive(cfg.MaxRetries, 3),
		block:      positive(cfg.Block, 5*time.Second),
		claimIdle:  positive(cfg.ClaimIdle, 30*time.Second),
		retryDelay: positive(cfg.RetryDelay, 2*time.Second),
		maxLen:     positive(cfg.MaxLen, 10000),
		batch:      positive(cfg.BatchSize, 10),
	}
	return q, nil
}

func firstNonEmpty(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}

func positive[T int | int64 | time.Duration](v, fallback T) T {
	if v <= 0 {
		return fallback
	}
	return v
}

// Enqueue records a queued job and appends it to the stream atomically.
func (q *RedisJobQueue) Enqueue(ctx context.Context, kind, bookID string) (Job, error) {
	kind, bookID = strings.TrimSpace(kind), strings.TrimSpace(bookID)
	if kind == "" {
		return Job{}, errors.New("job kind required")
	}
	if bookID == "" {
		return Job{}, errors.New("bookId required")
	}
	now := time.Now().UTC()
	job := Job{ID: util.NewID(), Kind: kind, BookID: bookID, Status: StatusQueued, CreatedAt: now, UpdatedAt: now}
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		q.save(ctx, pipe, job)
		pipe.XAdd(ctx, q.entry(task{JobID: job.ID, Kind: kind, BookID: bookID}))
		return nil
	})
	if err != nil {
		return Job{}, fmt.Errorf("enqueue %s: %w", kind, err)
	}
	return job, nil
}

// GetJob returns the tracked state of jobID.
func (q *RedisJobQueue) GetJob(ctx context.Context, jobID string) (Job, bool, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return Job{}, false, nil
	}
	res := q.client.HGetAll(ctx, q.prefix+jobID)
	fields, err := res.Result()
	if err != nil {
		return Job{}, false, err
	}
	if len(fields) == 0 {
		return Job{}, false, nil
	}
	var rec jobRecord
	if err := res.Scan(&rec); err != nil {
		return Job{}, false, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return rec.job(jobID), true, nil
}

func (q *RedisJobQueue) save(ctx context.Context, pipe redis.Pipeliner, job Job) {
	key := q.prefix + job.ID
	pipe.HSet(ctx, key, job.record())
	pipe.Expire(ctx, key, q.jobTTL)
}

// update applies change to the stored job and writes it back.
func (q *RedisJobQueue) update(ctx context.Context, t task, change func(*Job)) (Job, error) {
	job, ok, err := q.GetJob(ctx, t.JobID)
	if err != nil {
		return Job{}, err
	}
	now := time.Now().UTC()
	if !ok {
		job = Job{ID: t.JobID, Kind: t.Kind, CreatedAt: now}
	}
	job.BookID = t.BookID
	change(&job)
	job.UpdatedAt = now
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		q.save(ctx, pipe, job)
		return nil
	})
	return job, err
}

func (q *RedisJobQueue) entry(t task) *redis.XAddArgs {
	return &redis.XAddArgs{Stream: q.stream, MaxLen: q.maxLen, Approx: true, Values: t.values()}
}

// Start runs concurrency consumers until ctx is done.
func (q *RedisJobQueue) Start(ctx context.Context, concurrency int, handler Handler) {
	q.ensureGroup(ctx)
	for i := range max(concurrency, 1) {
		go q.work(ctx, fmt.Sprintf("%s-%d", q.consumer, i), handler)
	}
}

func (q *RedisJobQueue) ensureGroup(ctx context.Context) {
	q.groupOnce.Do(func() {
		err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "$").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			util.LoggerFromContext(ctx).Warn("create consumer group failed", "stream", q.stream, "err", err)
		}
	})
}

func (q *RedisJobQueue) work(ctx context.Context, consumer string, handler Handler) {
	logger := util.LoggerFromContext(ctx).With("consumer", consumer)
	for ctx.Err() == nil {
		msgs, err := q.next(ctx, consumer)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("read queue failed", "stream", q.stream, "err", err)
				wait(ctx, time.Second)
			}
			continue
		}
		for _, msg := range msgs {
			q.process(ctx, msg, handler)
		}
	}
}

// next returns abandoned entries first, then blocks for new ones.
func (q *RedisJobQueue) next(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	claimed, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  q.claimIdle,
		Start:    "0-0",
		Count:    q.batch,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	if len(claimed) > 0 {
		return claimed, nil
	}
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: consumer,
		Streams:  []string{q.stream, ">"},
		Count:    q.batch,
		Block:    q.block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var msgs []redis.XMessage
	for _, s := range streams {
		msgs = append(msgs, s.Messages...)
	}
	return msgs, nil
}

func (q *RedisJobQueue) process(ctx context.Context, msg redis.XMessage, handler Handler) {
	logger := util.LoggerFromContext(ctx)
	t, ok := taskFrom(msg)
	if !ok {
		logger.Warn("drop malformed queue message", "msg_id", msg.ID)
		q.discard(ctx, msg.ID)
		return
	}
	job, err := q.update(ctx, t, func(j *Job) {
		j.Attempts++
		j.Status = StatusProcessing
	})
	if err != nil {
		logger.Warn("mark job processing failed", "job_id", t.JobID, "err", err)
		q.discard(ctx, msg.ID)
		return
	}

	runErr := handler(ctx, job)
	switch {
	case runErr == nil:
		_, _ = q.update(ctx, t, settle(StatusDone, ""))
		q.discard(ctx, msg.ID)
	case job.Attempts >= q.maxRetries:
		logger.Error("job failed", "job_id", job.ID, "kind", job.Kind, "attempts", job.Attempts, "err", runErr)
		_, _ = q.update(ctx, t, settle(StatusFailed, runErr.Error()))
		q.discard(ctx, msg.ID)
	default:
		logger.Warn("job attempt failed", "job_id", job.ID, "kind", job.Kind, "attempt", job.Attempts, "err", runErr)
		_, _ = q.update(ctx, t, settle(StatusQueued, runErr.Error()))
		if !wait(ctx, q.retryDelay) {
			return
		}
		if err := q.requeue(ctx, msg.ID, t); err != nil {
			logger.Warn("requeue job failed", "job_id", job.ID, "err", err)
		}
	}
}

func settle(status, errMsg string) func(*Job) {
	return func(j *Job) {
		j.Status = status
		j.ErrorMessage = errMsg
	}
}

func (q *RedisJobQueue) discard(ctx context.Context, msgID string) {
	_, _ = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAck(ctx, q.stream, q.group, msgID)
		pipe.XDel(ctx, q.stream, msgID)
		return nil
	})
}

// requeue appends t again and retires msgID in one transaction. On failure
// the original entry stays pending and is reclaimed later.
func (q *RedisJobQueue) requeue(ctx context.Context, msgID string, t task) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAdd(ctx, q.entry(t))
		pipe.XAck(ctx, q.stream, q.group, msgID)
		pipe.XDel(ctx, q.stream, msgID)
		return nil
	})
	return err
}

// wait sleeps for d and reports whether ctx is still live.
func wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
