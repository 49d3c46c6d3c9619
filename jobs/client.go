package jobs

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client enqueues the application's tasks with their default options.
type Client struct {
	enqueuer Enqueuer
}

// NewClient returns a Client backed by a new asynq client for opts.
func NewClient(opts asynq.RedisClientOpt) *Client {
	return &Client{enqueuer: asynq.NewClient(opts)}
}

// NewClientWith wraps an existing Enqueuer.
func NewClientWith(enqueuer Enqueuer) *Client {
	return &Client{enqueuer: enqueuer}
}

// EnqueueSendEmail queues one mail. Later options override the defaults.
func (c *Client) EnqueueSendEmail(ctx context.Context, payload SendEmailPayload, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	task, err := NewSendEmailTask(payload)
	if err != nil {
		return nil, err
	}
	defaults := []asynq.Option{asynq.Queue(QueueDefault), asynq.MaxRetry(5), asynq.Timeout(time.Minute)}
	return c.enqueuer.EnqueueContext(ctx, task, append(defaults, opts...)...)
}

// EnqueueWelcome queues the welcome mail for a newly created admin user.
func (c *Client) EnqueueWelcome(ctx context.Context, email, fullName, username string) error {
	_, err := c.EnqueueSendEmail(ctx, WelcomeMail(email, fullName, username))
	return err
}

// EnqueueWarrantyExpiryScan runs the expiry scan outside its schedule.
func (c *Client) EnqueueWarrantyExpiryScan(ctx context.Context, days int) (*asynq.TaskInfo, error) {
	task, err := NewWarrantyExpiryScanTask(days)
	if err != nil {
		return nil, err
	}
	return c.enqueuer.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(3))
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.enqueuer.Close()
}
