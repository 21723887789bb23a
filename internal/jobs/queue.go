package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"media-shrinker/internal/logging"
	"media-shrinker/internal/metrics"
)

const (
	// TaskTypeConvert is the asynq task type of a conversion job.
	TaskTypeConvert = "media:convert"

	// DefaultQueueName is the asynq queue conversion tasks are placed on.
	DefaultQueueName = "media"

	// DefaultJobTimeout bounds a single conversion.
	DefaultJobTimeout = 30 * time.Minute
)

// Trigger labels describing what enqueued a task.
const (
	TriggerComplete = "complete"
	TriggerS3Event  = "s3_event"
)

// taskIDNamespace scopes task IDs derived from source keys.
var taskIDNamespace = uuid.MustParse("4b7f3c1e-9d2a-5e6f-8a1b-0c3d5e7f9a2b")

// TaskPayload is the JSON body of a conversion task.
type TaskPayload struct {
	SourceKey string `json:"sourceKey"`
}

// Runner executes one conversion.
type Runner interface {
	Run(ctx context.Context, sourceKey string) error
}

// Gate holds a worker back before it starts a conversion.
type Gate interface {
	Wait(ctx context.Context) error
}

// QueueConfig configures the asynq client and worker server.
type QueueConfig struct {
	RedisURL    string
	QueueName   string
	Concurrency int
	Timeout     time.Duration
	// Gate is optional.
	Gate Gate
}

// Queue is the job host: the API enqueues conversion tasks and the worker
// server delivers each one to the Runner.
type Queue struct {
	client    *asynq.Client
	server    *asynq.Server
	mux       *asynq.ServeMux
	inspector *asynq.Inspector
	runner    Runner
	gate      Gate
	queueName string
	timeout   time.Duration
}

// NewQueue connects to Redis and prepares the worker server. Workers are not
// started until StartWorkers is called.
func NewQueue(cfg QueueConfig, runner Runner) (*Queue, error) {
	if runner == nil {
		return nil, errors.New("runner is nil")
	}
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if cfg.QueueName == "" {
		cfg.QueueName = DefaultQueueName
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultJobTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			cfg.QueueName: 1,
		},
		Logger:          logging.Sugar(),
		LogLevel:        asynqLogLevel(logging.GetLevel()),
		ShutdownTimeout: 30 * time.Second,
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logging.Error("Task %s failed: %v", task.Type(), err)
		}),
	})

	q := &Queue{
		client:    asynq.NewClient(opt),
		server:    server,
		mux:       asynq.NewServeMux(),
		inspector: asynq.NewInspector(opt),
		runner:    runner,
		gate:      cfg.Gate,
		queueName: cfg.QueueName,
		timeout:   cfg.Timeout,
	}
	q.mux.HandleFunc(TaskTypeConvert, q.handleConvertTask)
	return q, nil
}

// StartWorkers runs the asynq server in the background.
func (q *Queue) StartWorkers() {
	go func() {
		if err := q.server.Run(q.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			logging.Error("asynq server stopped with error: %v", err)
		}
	}()
}

// Shutdown waits for running tasks (up to the server's shutdown timeout) and
// closes the Redis connections.
func (q *Queue) Shutdown() {
	q.server.Shutdown()
	if err := q.client.Close(); err != nil {
		logging.Warn("failed to close asynq client: %v", err)
	}
	if err := q.inspector.Close(); err != nil {
		logging.Warn("failed to close asynq inspector: %v", err)
	}
}

// Enqueue schedules a conversion of sourceKey. Tasks are not retried by the
// queue, and a task for the same key that is still known to the queue is
// not added twice; in that case the existing task ID is returned.
func (q *Queue) Enqueue(ctx context.Context, sourceKey, trigger string) (string, error) {
	if sourceKey == "" {
		return "", errors.New("source key is required")
	}
	body, err := json.Marshal(TaskPayload{SourceKey: sourceKey})
	if err != nil {
		return "", err
	}

	taskID := TaskID(sourceKey)
	task := asynq.NewTask(TaskTypeConvert, body)
	info, err := q.client.EnqueueContext(ctx, task,
		asynq.Queue(q.queueName),
		asynq.TaskID(taskID),
		asynq.MaxRetry(0),
		asynq.Timeout(q.timeout),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			logging.Debug("Conversion of %s already queued as %s", sourceKey, taskID)
			metrics.TasksEnqueuedTotal.WithLabelValues(trigger, "duplicate").Inc()
			return taskID, nil
		}
		metrics.TasksEnqueuedTotal.WithLabelValues(trigger, "error").Inc()
		return "", fmt.Errorf("enqueue conversion of %s: %w", sourceKey, err)
	}

	metrics.TasksEnqueuedTotal.WithLabelValues(trigger, "success").Inc()
	logging.Info("Queued conversion of %s as task %s", sourceKey, info.ID)
	return info.ID, nil
}

// GetStats implements metrics.StatsProvider.
func (q *Queue) GetStats() (metrics.Stats, error) {
	info, err := q.inspector.GetQueueInfo(q.queueName)
	if err != nil {
		return metrics.Stats{}, err
	}
	return metrics.Stats{
		Pending:   info.Pending,
		Active:    info.Active,
		Scheduled: info.Scheduled,
		Retry:     info.Retry,
		Archived:  info.Archived,
		Completed: info.Completed,
	}, nil
}

func (q *Queue) handleConvertTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode task payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.SourceKey == "" {
		return fmt.Errorf("missing sourceKey in payload: %w", asynq.SkipRetry)
	}
	if q.gate != nil {
		if err := q.gate.Wait(ctx); err != nil {
			return fmt.Errorf("waiting to convert %s: %w", payload.SourceKey, err)
		}
	}
	return q.runner.Run(ctx, payload.SourceKey)
}

// TaskID derives a stable task ID from a source key.
func TaskID(sourceKey string) string {
	return "convert-" + uuid.NewSHA1(taskIDNamespace, []byte(sourceKey)).String()
}

func asynqLogLevel(level logging.LogLevel) asynq.LogLevel {
	switch level {
	case logging.LevelDebug:
		return asynq.DebugLevel
	case logging.LevelWarn:
		return asynq.WarnLevel
	case logging.LevelError:
		return asynq.ErrorLevel
	default:
		return asynq.InfoLevel
	}
}
