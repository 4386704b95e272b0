package core

import (
	"context"

	"go.uber.org/zap"
)

// LogAlerter writes alerts to the log. It is used when no SMTP relay is configured.
type LogAlerter struct {
	Logger *zap.Logger
}

func (a LogAlerter) Alert(_ context.Context, subject, body string) error {
	a.Logger.Warn("Operator alert", zap.String("subject", subject), zap.String("body", body))
	return nil
}

// alert sends through alerter and logs delivery failures. Alerts never fail the caller.
func alert(ctx context.Context, alerter OperatorAlerter, logger *zap.Logger, subject, body string) {
	if alerter == nil {
		return
	}
	if err := alerter.Alert(ctx, subject, body); err != nil {
		logger.Error("Failed to deliver operator alert", zap.String("subject", subject), zap.Error(err))
	}
}
