// Package notify delivers best-effort member notifications. Send failures
// are logged and surfaced as warnings only; they never roll back the
// financial mutation that already committed.
package notify

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Sender delivers one SMS. Implementations wrap the external gateway.
type Sender interface {
	Send(ctx context.Context, phone, body string) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, phone, body string) error

func (f SenderFunc) Send(ctx context.Context, phone, body string) error {
	return f(ctx, phone, body)
}

// NopSender discards messages; used when no gateway is configured.
type NopSender struct{}

func (NopSender) Send(ctx context.Context, phone, body string) error { return nil }

var printer = message.NewPrinter(language.English)

// FormatAmount renders an amount with thousands separators for SMS text.
// Display only; the float conversion never feeds back into arithmetic.
func FormatAmount(currency string, amount decimal.Decimal) string {
	return printer.Sprintf("%s %.2f", currency, amount.InexactFloat64())
}

// BestEffort sends a message and logs a warning instead of returning the
// error. Callers invoke it after their transaction has committed.
func BestEffort(ctx context.Context, sender Sender, logger *slog.Logger, phone, body string) {
	if sender == nil || phone == "" {
		return
	}
	if err := sender.Send(ctx, phone, body); err != nil && logger != nil {
		logger.Warn("sms send failed", slog.String("phone", phone), slog.Any("error", err))
	}
}
