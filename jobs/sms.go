package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/pamoja-sacco/pamoja-sacco/internal/notify"
)

// SMSJob delivers queued member notifications through the configured
// gateway. Requests enqueue instead of calling the gateway inline, so a slow
// provider never stretches a financial transaction.
type SMSJob struct {
	Gateway notify.Sender
	Logger  *slog.Logger
}

// NewSMSJob initialises the SMS delivery handler.
func NewSMSJob(gateway notify.Sender, logger *slog.Logger) *SMSJob {
	return &SMSJob{Gateway: gateway, Logger: logger}
}

// Handle delivers one queued SMS. Gateway failures are logged and dropped
// rather than retried: member notifications are best effort and a stale
// balance text is worse than none.
func (j *SMSJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Gateway == nil {
		return errors.New("sms: handler not configured")
	}
	var payload notify.SMSPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Phone == "" {
		return asynq.SkipRetry
	}
	if err := j.Gateway.Send(ctx, payload.Phone, payload.Body); err != nil {
		j.Logger.Warn("sms delivery failed", slog.String("phone", payload.Phone), slog.Any("error", err))
		return asynq.SkipRetry
	}
	return nil
}
