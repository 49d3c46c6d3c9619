package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/ks-enterprise/ks-admin/internal/jobs"
	"github.com/ks-enterprise/ks-admin/internal/warranties"
)

// DefaultReminderDays is the scan window used when the payload carries none.
const DefaultReminderDays = 30

// ExpiringWarranties lists warranties that expire within a number of days.
type ExpiringWarranties interface {
	ExpiringWithin(ctx context.Context, days int) ([]warranties.Warranty, error)
}

// MailEnqueuer queues outgoing mail.
type MailEnqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// WarrantyExpiryScanJob queues one reminder mail per warranty expiring soon.
type WarrantyExpiryScanJob struct {
	Warranties ExpiringWarranties
	Mail       MailEnqueuer
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewWarrantyExpiryScanJob initialises the expiry scan handler.
func NewWarrantyExpiryScanJob(source ExpiringWarranties, mail MailEnqueuer, logger *slog.Logger, metrics *jobmetrics.Metrics) *WarrantyExpiryScanJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &WarrantyExpiryScanJob{Warranties: source, Mail: mail, Logger: logger, Metrics: metrics}
}

// Handle executes one scan.
func (j *WarrantyExpiryScanJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Warranties == nil || j.Mail == nil {
		return errors.New("warranty expiry scan: handler not configured")
	}
	var payload WarrantyExpiryScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("warranty expiry scan: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Days <= 0 {
		payload.Days = DefaultReminderDays
	}

	start := time.Now()
	done := j.Metrics.Start(TaskWarrantyExpiryScan)
	defer func() { err = done(err) }()
	logger := j.Logger.With(slog.Int("days", payload.Days))

	expiring, err := j.Warranties.ExpiringWithin(ctx, payload.Days)
	if err != nil {
		logger.Error("scan failed", slog.Any("error", err))
		return err
	}

	queued := 0
	for _, w := range expiring {
		if w.CustomerEmail == "" {
			j.Metrics.Reminder(jobmetrics.ReminderNoEmail)
			continue
		}
		// One reminder per warranty and expiration date. The task id is held
		// for the whole window so later daily scans collide with it.
		taskID := fmt.Sprintf("warranty-reminder:%d:%s", w.ID, w.ExpirationDate)
		_, err := j.Mail.EnqueueSendEmail(ctx, reminderMail(w), asynq.TaskID(taskID), asynq.Retention(reminderRetention(payload.Days)))
		switch {
		case errors.Is(err, asynq.ErrTaskIDConflict), errors.Is(err, asynq.ErrDuplicateTask):
			j.Metrics.Reminder(jobmetrics.ReminderDuplicate)
			continue
		case err != nil:
			logger.Error("enqueue reminder", slog.Int64("warranty_id", w.ID), slog.Any("error", err))
			return err
		}
		j.Metrics.Reminder(jobmetrics.ReminderQueued)
		queued++
	}

	logger.Info("completed warranty expiry scan",
		slog.Int("expiring", len(expiring)),
		slog.Int("queued", queued),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// reminderRetention keeps a reminder's task id for one day past the scan
// window, longer than any warranty can stay inside it.
func reminderRetention(days int) time.Duration {
	return time.Duration(days+1) * 24 * time.Hour
}

func reminderMail(w warranties.Warranty) SendEmailPayload {
	return SendEmailPayload{
		To:      w.CustomerEmail,
		Subject: fmt.Sprintf("Your warranty for %s expires on %s", w.ProductName, w.ExpirationDate),
		Body: fmt.Sprintf("Hello %s,\n\nThe warranty for your %s (serial %s) expires on %s.\n"+
			"Contact KS Enterprise support if you would like to extend your coverage.\n",
			w.CustomerName, w.ProductName, serialOrNA(w.SerialNumber), w.ExpirationDate),
	}
}

func serialOrNA(serial string) string {
	if serial == "" {
		return "n/a"
	}
	return serial
}

// WelcomeMail renders the account notice sent to new admin users.
func WelcomeMail(email, fullName, username string) SendEmailPayload {
	return SendEmailPayload{
		To:      email,
		Subject: "Your KS Enterprise admin account",
		Body: fmt.Sprintf("Hello %s,\n\nAn administrator account has been created for you.\n"+
			"Username: %s\n\nSign in to the admin panel to get started.\n", fullName, username),
	}
}
