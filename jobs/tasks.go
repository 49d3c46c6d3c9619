package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// QueueDefault is the only queue the admin worker consumes.
const QueueDefault = "default"

// Task types.
const (
	TaskTypeSendEmail      = "mail:send"
	TaskWarrantyExpiryScan = "warranty:expiry-scan"
)

// SendEmailPayload is one plain-text mail.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// WarrantyExpiryScanPayload configures one expiry scan run.
type WarrantyExpiryScanPayload struct {
	Days int `json:"days"`
}

// NewSendEmailTask wraps payload in a mail:send task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	return newTask(TaskTypeSendEmail, payload)
}

// NewWarrantyExpiryScanTask builds the scan task for a reminder window of days.
func NewWarrantyExpiryScanTask(days int) (*asynq.Task, error) {
	return newTask(TaskWarrantyExpiryScan, WarrantyExpiryScanPayload{Days: days})
}

func newTask(typ string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("jobs: encode %s payload: %w", typ, err)
	}
	return asynq.NewTask(typ, data), nil
}
