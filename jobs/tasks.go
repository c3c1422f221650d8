package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReportsWarmup refetches report snapshots into the shared cache.
	TaskReportsWarmup = "reports:warmup"
	// TaskNotificationsDigest files a per-role reminder for unread notifications.
	TaskNotificationsDigest = "notifications:digest"
)

// ReportsWarmupPayload lists the report views to warm. Empty means all.
type ReportsWarmupPayload struct {
	Views []string `json:"views,omitempty"`
}

// NewReportsWarmupTask constructs a warmup task.
func NewReportsWarmupTask(views ...string) (*asynq.Task, error) {
	data, err := json.Marshal(ReportsWarmupPayload{Views: views})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportsWarmup, data), nil
}

// NotificationsDigestPayload tunes the digest. Roles below MinUnread are skipped.
type NotificationsDigestPayload struct {
	MinUnread int `json:"min_unread"`
}

// NewNotificationsDigestTask constructs a digest task.
func NewNotificationsDigestTask(minUnread int) (*asynq.Task, error) {
	data, err := json.Marshal(NotificationsDigestPayload{MinUnread: minUnread})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationsDigest, data), nil
}
