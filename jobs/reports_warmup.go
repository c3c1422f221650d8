package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/fleetdesk/fleetdesk/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Warmer refetches report views into the cache.
type Warmer interface {
	Warm(ctx context.Context, names ...string) (int, error)
}

// ReportsWarmupJob keeps report snapshots hot so the first visitor of the
// day does not wait on the backend.
type ReportsWarmupJob struct {
	Warmer  Warmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewReportsWarmupJob wires dependencies for the warmup handler.
func NewReportsWarmupJob(warmer Warmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReportsWarmupJob {
	return &ReportsWarmupJob{Warmer: warmer, Logger: logger, Metrics: metrics}
}

// Handle processes reports warmup tasks.
func (j *ReportsWarmupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Warmer == nil {
		return errors.New("reports warmup: handler not configured")
	}
	var payload ReportsWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskReportsWarmup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("views", len(payload.Views)))
	logger.Info("starting reports warmup")
	warmed, err := j.Warmer.Warm(ctx, payload.Views...)
	metrics.AddItems(TaskReportsWarmup, warmed)
	if err != nil {
		logger.Error("reports warmup incomplete", slog.Int("warmed", warmed), slog.Any("error", err))
		return err
	}
	logger.Info("reports warmup complete", slog.Int("warmed", warmed))
	return nil
}

func (j *ReportsWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReportsWarmup))
	}
	return slog.Default().With(slog.String("job", TaskReportsWarmup))
}
