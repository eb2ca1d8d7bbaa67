package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/robofleet/internal/scheduler/core"
	"github.com/autopeer-io/robofleet/pkg/log"
	"github.com/autopeer-io/robofleet/pkg/options"
)

// claimBatch bounds the jobs claimed by one poll.
const claimBatch = 100

// claimScript atomically removes and returns due job ids so that each job is
// delivered by exactly one scheduler instance.
var claimScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, id in ipairs(ids) do
  redis.call('ZREM', KEYS[1], id)
end
return ids
`)

// Redis keeps due times in a sorted set and job payloads in plain keys.
type Redis struct {
	client       redis.UniversalClient
	scheduledKey string
	jobPrefix    string
	pollInterval time.Duration
	clock        clock.WithTicker
	logger       log.Logger
}

var _ Scheduler = (*Redis)(nil)

// RedisOption configures a Redis scheduler.
type RedisOption func(*Redis)

// WithRedisClock replaces the wall clock, mainly for tests.
func WithRedisClock(c clock.WithTicker) RedisOption {
	return func(r *Redis) { r.clock = c }
}

// NewRedis connects to the configured server and verifies it answers.
func NewRedis(ctx context.Context, opts *options.RedisOptions, ropts ...RedisOption) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return NewRedisWithClient(client, opts.KeyPrefix, opts.PollInterval, ropts...), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client redis.UniversalClient, prefix string, pollInterval time.Duration, opts ...RedisOption) *Redis {
	r := &Redis{
		client:       client,
		scheduledKey: prefix + ":jobs:scheduled",
		jobPrefix:    prefix + ":jobs:payload:",
		pollInterval: pollInterval,
		clock:        clock.RealClock{},
		logger:       log.WithName("jobs.redis"),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Redis) payloadKey(id string) string {
	return r.jobPrefix + id
}

func (r *Redis) Schedule(ctx context.Context, job core.Job, delay time.Duration) (string, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	runAt := r.clock.Now().Add(delay)

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.payloadKey(id), payload, 0)
	pipe.ZAdd(ctx, r.scheduledKey, redis.Z{Score: float64(runAt.UnixMilli()), Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to store job: %w", err)
	}
	return id, nil
}

func (r *Redis) Cancel(ctx context.Context, jobID string) error {
	pipe := r.client.TxPipeline()
	pipe.ZRem(ctx, r.scheduledKey, jobID)
	pipe.Del(ctx, r.payloadKey(jobID))
	_, err := pipe.Exec(ctx)
	return err
}

// Pending returns the number of jobs not yet claimed.
func (r *Redis) Pending(ctx context.Context) (int64, error) {
	return r.client.ZCard(ctx, r.scheduledKey).Result()
}

func (r *Redis) Run(ctx context.Context, handle core.JobHandler) error {
	ticker := r.clock.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		if err := r.poll(ctx, handle); err != nil && ctx.Err() == nil {
			r.logger.Error(err, "Failed to poll due jobs")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
		}
	}
}

// poll claims every due job and hands it to handle.
func (r *Redis) poll(ctx context.Context, handle core.JobHandler) error {
	now := strconv.FormatInt(r.clock.Now().UnixMilli(), 10)
	ids, err := claimScript.Run(ctx, r.client, []string{r.scheduledKey}, now, claimBatch).StringSlice()
	if err != nil {
		return err
	}

	for _, id := range ids {
		job, err := r.take(ctx, id)
		if err != nil {
			r.logger.Error(err, "Dropping unreadable job", "job", id)
			continue
		}
		r.logger.Debug("Job is due", "job", id, "definition", job.DefinitionID)
		handle(ctx, job)
	}
	return nil
}

func (r *Redis) take(ctx context.Context, id string) (core.Job, error) {
	var job core.Job
	raw, err := r.client.GetDel(ctx, r.payloadKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return job, fmt.Errorf("payload of job %s is missing", id)
	}
	if err != nil {
		return job, err
	}
	if err := json.Unmarshal(raw, &job); err != nil {
		return job, fmt.Errorf("failed to decode job %s: %w", id, err)
	}
	return job, nil
}

// Close releases the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
