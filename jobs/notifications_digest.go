package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/fleetdesk/fleetdesk/internal/backend"
	jobmetrics "github.com/fleetdesk/fleetdesk/internal/jobs"
)

// UnreadSource lists unread notifications.
type UnreadSource interface {
	FetchNamed(ctx context.Context, name string) backend.Result
}

// Notifier files a notification for a role.
type Notifier interface {
	Add(ctx context.Context, message, link, role string) error
}

// NotificationsDigestJob reminds each role of its unread notifications.
type NotificationsDigestJob struct {
	Source   UnreadSource
	Notifier Notifier
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewNotificationsDigestJob wires dependencies for the digest handler.
func NewNotificationsDigestJob(source UnreadSource, notifier Notifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *NotificationsDigestJob {
	return &NotificationsDigestJob{Source: source, Notifier: notifier, Logger: logger, Metrics: metrics}
}

// Handle processes digest tasks.
func (j *NotificationsDigestJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Source == nil || j.Notifier == nil {
		return errors.New("notifications digest: handler not configured")
	}
	payload := NotificationsDigestPayload{MinUnread: 1}
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.MinUnread < 1 {
		payload.MinUnread = 1
	}

	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskNotificationsDigest)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	logger := j.logger()

	res := j.Source.FetchNamed(ctx, backend.EndpointNotifications)
	if !res.Success {
		logger.Error("load unread notifications", slog.String("message", res.Message))
		return fmt.Errorf("load unread notifications: %s", res.Message)
	}
	counts := map[string]int{}
	for _, rec := range res.Data {
		if role := strings.ToUpper(strings.TrimSpace(rec.Text("role"))); role != "" {
			counts[role]++
		}
	}
	roles := make([]string, 0, len(counts))
	for role, n := range counts {
		if n >= payload.MinUnread {
			roles = append(roles, role)
		}
	}
	sort.Strings(roles)

	var errs []error
	sent := 0
	for _, role := range roles {
		msg := fmt.Sprintf("You have %d unread notifications", counts[role])
		if err := j.Notifier.Add(ctx, msg, "/notifications", role); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", role, err))
			continue
		}
		sent++
	}
	metrics.AddItems(TaskNotificationsDigest, sent)
	logger.Info("notifications digest sent", slog.Int("roles", sent))
	return errors.Join(errs...)
}

func (j *NotificationsDigestJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskNotificationsDigest))
	}
	return slog.Default().With(slog.String("job", TaskNotificationsDigest))
}
