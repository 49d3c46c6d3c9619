package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ks-enterprise/ks-admin/internal/app"
	"github.com/ks-enterprise/ks-admin/internal/users"
	"github.com/ks-enterprise/ks-admin/jobs"
)

type fakeBootstrapper struct {
	got users.BootstrapRequest
	err error
}

func (f *fakeBootstrapper) Bootstrap(ctx context.Context, req users.BootstrapRequest) (*users.User, bool, error) {
	f.got = req
	if f.err != nil {
		return nil, false, f.err
	}
	return &users.User{ID: 7, Username: req.Username}, !req.Reset, nil
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Queue: jobs.QueueDefault, Type: task.Type()}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

type fakeQueue struct {
	info      *asynq.QueueInfo
	err       error
	scheduled []*asynq.TaskInfo
}

func (f *fakeQueue) GetQueueInfo(queue string) (*asynq.QueueInfo, error) { return f.info, f.err }

func (f *fakeQueue) ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return f.scheduled, nil
}

func (f *fakeQueue) Close() error { return nil }

func testDeps(boot *fakeBootstrapper, enq *fakeEnqueuer, queue *fakeQueue, env map[string]string) Deps {
	return Deps{
		LoadConfig: func() (*app.Config, error) {
			return &app.Config{PGDSN: "postgres://test", AppEnv: "test"}, nil
		},
		Migrate: func(ctx context.Context, dsn string, logger *slog.Logger) error {
			if dsn != "postgres://test" {
				return errors.New("unexpected dsn")
			}
			return nil
		},
		OpenBootstrapper: func(ctx context.Context, cfg *app.Config) (Bootstrapper, func(), error) {
			return boot, nil, nil
		},
		OpenJobs: func(cfg *app.Config) (*JobsCLI, error) {
			return &JobsCLI{client: enq, inspector: queue}, nil
		},
		Getenv: func(key string) string { return env[key] },
	}
}

func run(t *testing.T, deps Deps, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand(deps)
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrateCommand(t *testing.T) {
	out, err := run(t, testDeps(nil, nil, nil, nil), "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "migrations applied")
}

func TestBootstrapAdminReadsPasswordFromEnv(t *testing.T) {
	boot := &fakeBootstrapper{}
	env := map[string]string{"ADMIN_PW": "correct-horse"}
	out, err := run(t, testDeps(boot, nil, nil, env),
		"bootstrap-admin", "--email", "root@example.com", "--username", "root", "--password-env", "ADMIN_PW")
	require.NoError(t, err)
	assert.Equal(t, "correct-horse", boot.got.Password)
	assert.Equal(t, "root", boot.got.Username)
	assert.Equal(t, "Administrator", boot.got.FullName)
	assert.False(t, boot.got.Reset)
	assert.Contains(t, out, `super admin "root" created (id 7)`)
}

func TestBootstrapAdminReset(t *testing.T) {
	boot := &fakeBootstrapper{}
	env := map[string]string{DefaultPasswordEnv: "correct-horse"}
	out, err := run(t, testDeps(boot, nil, nil, env), "bootstrap-admin", "--email", "root@example.com", "--reset")
	require.NoError(t, err)
	assert.True(t, boot.got.Reset)
	assert.Contains(t, out, "reset")
}

func TestBootstrapAdminRequiresPassword(t *testing.T) {
	boot := &fakeBootstrapper{}
	_, err := run(t, testDeps(boot, nil, nil, nil), "bootstrap-admin", "--email", "root@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), DefaultPasswordEnv)
	assert.Empty(t, boot.got.Username)
}

func TestBootstrapAdminRequiresEmail(t *testing.T) {
	env := map[string]string{DefaultPasswordEnv: "correct-horse"}
	_, err := run(t, testDeps(&fakeBootstrapper{}, nil, nil, env), "bootstrap-admin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email")
}

func TestJobsTrigger(t *testing.T) {
	enq := &fakeEnqueuer{}
	out, err := run(t, testDeps(nil, enq, &fakeQueue{}, nil), "jobs", "trigger", jobs.TaskWarrantyExpiryScan, "--days", "14")
	require.NoError(t, err)
	require.Len(t, enq.tasks, 1)
	var payload jobs.WarrantyExpiryScanPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	assert.Equal(t, 14, payload.Days)
	assert.Contains(t, out, "enqueued warranty:expiry-scan as task-1")
}

func TestJobsTriggerRejectsUnknownJob(t *testing.T) {
	enq := &fakeEnqueuer{}
	_, err := run(t, testDeps(nil, enq, &fakeQueue{}, nil), "jobs", "trigger", "report:nightly")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported job")
	assert.Empty(t, enq.tasks)
}

func TestJobsTriggerNeedsJobName(t *testing.T) {
	_, err := run(t, testDeps(nil, &fakeEnqueuer{}, &fakeQueue{}, nil), "jobs", "trigger")
	require.Error(t, err)
}

func TestJobsStats(t *testing.T) {
	queue := &fakeQueue{
		info: &asynq.QueueInfo{Queue: jobs.QueueDefault, Pending: 2, Retry: 1},
		scheduled: []*asynq.TaskInfo{
			{ID: "s-1", Type: jobs.TaskTypeSendEmail, NextProcessAt: time.Date(2026, 3, 15, 7, 0, 0, 0, time.UTC)},
		},
	}
	out, err := run(t, testDeps(nil, &fakeEnqueuer{}, queue, nil), "jobs", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "queue=default pending=2 active=0 scheduled=0 retry=1 failed=0")
	assert.Contains(t, out, "scheduled mail:send s-1 at 2026-03-15T07:00:00Z")
}

func TestJobsStatsEmptyQueue(t *testing.T) {
	queue := &fakeQueue{err: asynq.ErrQueueNotFound}
	out, err := run(t, testDeps(nil, &fakeEnqueuer{}, queue, nil), "jobs", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "pending=0")
}
