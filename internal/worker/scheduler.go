package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/supporthub/internal/observability"
)

var (
	// ErrUnknownPipeline is returned when a trigger names no registered pipeline.
	ErrUnknownPipeline = errors.New("unknown pipeline")
	// ErrRunInProgress is returned when the pipeline is already running in this process.
	ErrRunInProgress = errors.New("pipeline run already in progress")
	// ErrLockHeld is returned by RedisLocker when another replica holds the job.
	ErrLockHeld = errors.New("job lock held by another instance")
)

// PipelineFunc performs one run of a pipeline.
type PipelineFunc func(ctx context.Context) observability.RunSummary

// Runner owns the pipelines and keeps at most one run of each in flight.
type Runner struct {
	pipelines map[string]PipelineFunc
	running   map[string]*sync.Mutex
}

// NewRunner registers the ingestion and SLA monitor pipelines.
func NewRunner(ingestion *IngestionWorker, monitor *SlaMonitor) *Runner {
	r := &Runner{pipelines: map[string]PipelineFunc{}, running: map[string]*sync.Mutex{}}
	if ingestion != nil {
		r.Register(observability.PipelineIngestion, ingestion.RunAll)
	}
	if monitor != nil {
		r.Register(observability.PipelineSlaMonitor, monitor.RunAll)
	}
	return r
}

// Register adds a pipeline. It must be called before the runner is shared.
func (r *Runner) Register(name string, fn PipelineFunc) {
	r.pipelines[name] = fn
	r.running[name] = &sync.Mutex{}
}

// Pipelines lists the registered pipeline names.
func (r *Runner) Pipelines() []string {
	names := make([]string, 0, len(r.pipelines))
	for name := range r.pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes one run of pipeline unless one is already in flight.
func (r *Runner) Run(ctx context.Context, pipeline string) (observability.RunSummary, error) {
	fn, ok := r.pipelines[pipeline]
	if !ok {
		return observability.RunSummary{}, fmt.Errorf("%w: %s", ErrUnknownPipeline, pipeline)
	}
	mu := r.running[pipeline]
	if !mu.TryLock() {
		return observability.RunSummary{}, ErrRunInProgress
	}
	defer mu.Unlock()
	return fn(ctx), nil
}

// Scheduler runs pipelines on fixed intervals through gocron.
type Scheduler struct {
	scheduler gocron.Scheduler
	runner    *Runner
	logger    *zap.Logger
}

// NewScheduler builds a scheduler. A non-nil locker makes each job run on one replica at a time.
func NewScheduler(runner *Runner, locker gocron.Locker, logger *zap.Logger) (*Scheduler, error) {
	opts := []gocron.SchedulerOption{gocron.WithLogger(zapCronLogger{logger.Sugar()})}
	if locker != nil {
		opts = append(opts, gocron.WithDistributedLocker(locker))
	}
	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{scheduler: s, runner: runner, logger: logger}, nil
}

// Schedule runs pipeline every interval. Overlapping runs are rescheduled, not queued.
func (s *Scheduler) Schedule(ctx context.Context, pipeline string, interval time.Duration) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := s.runner.Run(ctx, pipeline); err != nil {
				s.logger.Warn("scheduled run skipped", zap.String("pipeline", pipeline), zap.Error(err))
			}
		}),
		gocron.WithName(pipeline),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", pipeline, err)
	}
	return nil
}

// Start begins executing scheduled jobs.
func (s *Scheduler) Start() {
	s.scheduler.Start()
}

// Shutdown stops the scheduler and waits for running jobs.
func (s *Scheduler) Shutdown() error {
	return s.scheduler.Shutdown()
}

// RedisLocker is a gocron.Locker backed by SET NX with an expiry.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisLocker builds a locker whose locks expire after ttl if never released.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisLocker{client: client, prefix: "supporthub:jobs:", ttl: ttl}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (gocron.Lock, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.prefix+key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &redisLock{client: l.client, key: l.prefix + key, token: token}, nil
}

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

type redisLock struct {
	client *redis.Client
	key    string
	token  string
}

// Unlock releases the lock only while this holder still owns it.
func (l *redisLock) Unlock(ctx context.Context) error {
	return unlockScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}

// zapCronLogger adapts zap to gocron's logger.
type zapCronLogger struct {
	s *zap.SugaredLogger
}

func (l zapCronLogger) Debug(msg string, args ...any) { l.s.Debugw(msg, args...) }
func (l zapCronLogger) Error(msg string, args ...any) { l.s.Errorw(msg, args...) }
func (l zapCronLogger) Info(msg string, args ...any)  { l.s.Infow(msg, args...) }
func (l zapCronLogger) Warn(msg string, args ...any)  { l.s.Warnw(msg, args...) }
