package jobs

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

// Client enqueues fleetdesk tasks.
type Client struct {
	client *asynq.Client
}

// NewClient dials nothing until the first enqueue.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// EnqueueReportsWarmup schedules a warmup of the given views, all when empty.
// Duplicate warmups within a minute collapse into one.
func (c *Client) EnqueueReportsWarmup(ctx context.Context, views ...string) (*asynq.TaskInfo, error) {
	task, err := NewReportsWarmupTask(views...)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.Unique(time.Minute), asynq.MaxRetry(3))
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.client.Close()
}
