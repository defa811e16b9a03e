package notify

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
)

// TaskTypeSMS is the asynq task type for outbound SMS.
const TaskTypeSMS = "notify:sms"

// SMSPayload is the queued message.
type SMSPayload struct {
	Phone string `json:"phone"`
	Body  string `json:"body"`
}

// NewSMSTask builds an asynq task for one SMS.
func NewSMSTask(payload SMSPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSMS, data), nil
}

// QueueSender enqueues messages for the worker instead of calling the
// gateway inline, keeping request latency independent of the gateway.
type QueueSender struct {
	client *asynq.Client
}

// NewQueueSender wraps an asynq client.
func NewQueueSender(client *asynq.Client) *QueueSender {
	return &QueueSender{client: client}
}

func (s *QueueSender) Send(ctx context.Context, phone, body string) error {
	task, err := NewSMSTask(SMSPayload{Phone: phone, Body: body})
	if err != nil {
		return err
	}
	_, err = s.client.EnqueueContext(ctx, task)
	return err
}
