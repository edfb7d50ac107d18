package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/smtp"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeWelcomeEmail delivers initial credentials for
	// admin-provisioned accounts out-of-band.
	TaskTypeWelcomeEmail = "mail:welcome"
	// TaskTypeSessionSweep bulk-deletes refresh sessions past expiry.
	TaskTypeSessionSweep = "sessions:sweep"
)

// WelcomeEmailPayload describes the information required to deliver initial
// credentials. It transits the queue, so the queue backend must be treated
// as credential-bearing infrastructure.
type WelcomeEmailPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// NewWelcomeEmailTask constructs an Asynq task.
func NewWelcomeEmailTask(payload WelcomeEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeWelcomeEmail, data), nil
}

// NewSessionSweepTask constructs the periodic sweep task.
func NewSessionSweepTask() *asynq.Task {
	return asynq.NewTask(TaskTypeSessionSweep, nil)
}

// SMTPConfig locates the outbound mail relay.
type SMTPConfig struct {
	Host string
	Port int
	From string
}

// NewWelcomeEmailHandler processes TaskTypeWelcomeEmail tasks.
func NewWelcomeEmailHandler(cfg SMTPConfig, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload WelcomeEmailPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: Welcome to Memora\r\n\r\n"+
			"An account has been created for you.\r\n\r\n"+
			"Email: %s\r\nTemporary password: %s\r\n\r\n"+
			"You will be asked to choose a new password on first login.\r\n",
			cfg.From, payload.Email, payload.Email, payload.Password)
		addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
		if err := smtp.SendMail(addr, nil, cfg.From, []string{payload.Email}, []byte(msg)); err != nil {
			return fmt.Errorf("jobs: send welcome mail: %w", err)
		}
		if logger != nil {
			logger.Info("welcome mail sent", slog.String("email", payload.Email))
		}
		return nil
	}
}

// SessionSweeper is the slice of the session store the sweep job needs.
type SessionSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// NewSessionSweepHandler processes TaskTypeSessionSweep tasks.
func NewSessionSweepHandler(sweeper SessionSweeper, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		removed, err := sweeper.SweepExpired(ctx)
		if err != nil {
			return fmt.Errorf("jobs: sweep sessions: %w", err)
		}
		if logger != nil && removed > 0 {
			logger.Info("swept expired sessions", slog.Int64("removed", removed))
		}
		return nil
	}
}
