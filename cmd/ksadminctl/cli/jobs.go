package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/ks-enterprise/ks-admin/jobs"
)

// QueueReader is satisfied by *asynq.Inspector.
type QueueReader interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	Close() error
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    jobs.Enqueuer
	inspector QueueReader
}

// NewJobsCLI initialises the CLI helpers against the given Redis.
func NewJobsCLI(opts asynq.RedisClientOpt) *JobsCLI {
	return &JobsCLI{client: asynq.NewClient(opts), inspector: asynq.NewInspector(opts)}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		err = errors.Join(err, c.inspector.Close())
	}
	if c.client != nil {
		err = errors.Join(err, c.client.Close())
	}
	return err
}

// Trigger enqueues a supported job by name.
func (c *JobsCLI) Trigger(ctx context.Context, name string, days int) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	var (
		task *asynq.Task
		err  error
	)
	switch name {
	case jobs.TaskWarrantyExpiryScan:
		task, err = jobs.NewWarrantyExpiryScanTask(days)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(jobs.QueueDefault), asynq.MaxRetry(3))
}

// InspectQueue reports the depth of the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (jobs.QueueStats, error) {
	if c == nil || c.inspector == nil {
		return jobs.QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	return jobs.ReadQueueStats(c.inspector, jobs.QueueDefault)
}

// ListScheduled returns scheduled task infos.
func (c *JobsCLI) ListScheduled(ctx context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}

func newJobsCommand(deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger background jobs",
	}

	var days int
	trigger := &cobra.Command{
		Use:       "trigger <job>",
		Short:     "Enqueue a job immediately",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{jobs.TaskWarrantyExpiryScan},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobs(deps, func(c *JobsCLI) error {
				info, err := c.Trigger(cmd.Context(), strings.TrimSpace(args[0]), days)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s on queue %s\n", info.Type, info.ID, info.Queue)
				return nil
			})
		},
	}
	trigger.Flags().IntVar(&days, "days", jobs.DefaultReminderDays, "reminder window for warranty:expiry-scan")

	var size int
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show queue depth and scheduled tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobs(deps, func(c *JobsCLI) error {
				s, err := c.InspectQueue(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "queue=%s pending=%d active=%d scheduled=%d retry=%d failed=%d\n",
					s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Failed)
				scheduled, err := c.ListScheduled(cmd.Context(), size)
				if err != nil && !errors.Is(err, asynq.ErrQueueNotFound) {
					return err
				}
				for _, t := range scheduled {
					fmt.Fprintf(out, "scheduled %s %s at %s\n", t.Type, t.ID, t.NextProcessAt.Format(time.RFC3339))
				}
				return nil
			})
		},
	}
	stats.Flags().IntVar(&size, "limit", 10, "number of scheduled tasks to list")

	cmd.AddCommand(trigger, stats)
	return cmd
}

func withJobs(deps Deps, fn func(*JobsCLI) error) error {
	cfg, err := loadConfig(deps)
	if err != nil {
		return err
	}
	c, err := deps.OpenJobs(cfg)
	if err != nil {
		return fmt.Errorf("jobs: connect: %w", err)
	}
	defer c.Close()
	return fn(c)
}
