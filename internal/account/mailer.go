package account

import (
	"context"

	"entgate.dev/internal/log"
)

// LogMailer writes lifecycle codes to the log instead of delivering
// mail. Suitable for development and tests only.
type LogMailer struct{}

var _ Mailer = LogMailer{}

func (LogMailer) SendActivationCode(ctx context.Context, email, code string) error {
	log.Info(ctx, "activation code issued", log.String("email", email), log.String("code", code))
	return nil
}

func (LogMailer) SendPasswordResetCode(ctx context.Context, email, code string) error {
	log.Info(ctx, "password reset code issued", log.String("email", email), log.String("code", code))
	return nil
}
