package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"cloudpulse/internal/config"
)

const (
	taskTypeCycle = "cost:cycle"
	queueName     = "cloudpulse"

	healthCheckTimeout = 3 * time.Second
)

// Queue is the durable backend: a Redis-backed periodic task whose schedule
// survives restarts. Worker concurrency is pinned to 1 so fetch cycles are
// single-flight even across missed ticks.
type Queue struct {
	redisOpt asynq.RedisClientOpt
	interval time.Duration
	logger   zerolog.Logger
}

// NewQueue constructs the durable queue backend.
func NewQueue(cfg config.RedisConfig, interval time.Duration, logger zerolog.Logger) *Queue {
	return &Queue{
		redisOpt: asynq.RedisClientOpt{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		},
		interval: interval,
		logger:   logger.With().Str("component", "scheduler_queue").Logger(),
	}
}

// Name identifies the backend in logs.
func (q *Queue) Name() string { return "queue" }

// Run starts the worker and the periodic enqueuer, then blocks until ctx is
// cancelled. Shutdown drains: the in-flight cycle finishes before return.
func (q *Queue) Run(ctx context.Context, cycle CycleFunc) error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(taskTypeCycle, func(ctx context.Context, _ *asynq.Task) error {
		return cycle(ctx)
	})

	srv := asynq.NewServer(q.redisOpt, asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{queueName: 1},
	})

	enqueuer := asynq.NewScheduler(q.redisOpt, nil)
	entry := fmt.Sprintf("@every %s", q.interval)
	if _, err := enqueuer.Register(entry, asynq.NewTask(taskTypeCycle, nil),
		asynq.Queue(queueName), asynq.MaxRetry(0)); err != nil {
		return fmt.Errorf("register periodic cycle: %w", err)
	}

	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("start queue worker: %w", err)
	}
	if err := enqueuer.Start(); err != nil {
		srv.Shutdown()
		return fmt.Errorf("start periodic enqueuer: %w", err)
	}

	q.logger.Info().Str("every", q.interval.String()).Msg("durable cycle schedule registered")

	<-ctx.Done()
	enqueuer.Shutdown()
	srv.Shutdown()
	return ctx.Err()
}

// Select picks the scheduler backend at startup. The durable queue is used
// only when Redis answers an explicit health-check ping; anything else is a
// designed fallback to the in-process timer, not an error path.
func Select(ctx context.Context, redisCfg config.RedisConfig, timerOpts TimerOptions, logger zerolog.Logger) Backend {
	log := logger.With().Str("component", "scheduler").Logger()

	if redisCfg.Addr == "" {
		log.Info().Msg("redis not configured; using in-process timer backend")
		return NewTimer(timerOpts, logger)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	defer client.Close()

	pingCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", redisCfg.Addr).Msg("redis unreachable; falling back to in-process timer backend")
		return NewTimer(timerOpts, logger)
	}

	log.Info().Str("addr", redisCfg.Addr).Msg("redis healthy; using durable queue backend")
	return NewQueue(redisCfg, timerOpts.Interval, logger)
}
