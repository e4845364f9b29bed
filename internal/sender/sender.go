// Package sender delivers a batch of composed messages over one transport
// session.
package sender

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shineum/notify-mailer/internal/email"
	"github.com/shineum/notify-mailer/internal/transport"
)

// Sender submits batches through a transport.Dialer.
type Sender struct {
	dialer transport.Dialer
	from   string
	logger *slog.Logger
}

// New creates a Sender that uses from as the envelope sender. A nil logger
// falls back to slog.Default().
func New(dialer transport.Dialer, from string, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{
		dialer: dialer,
		from:   from,
		logger: logger.With("transport", dialer.Name()),
	}
}

// SendBatch opens one session and submits every message in order. The first
// failure aborts the rest of the batch and is returned as *email.DeliveryError.
// Messages sent before the failure are not retried or recalled.
func (s *Sender) SendBatch(ctx context.Context, batch email.Batch) error {
	if s.from == "" {
		err := &email.ConfigError{Key: "msg.from", Err: errors.New("is required")}
		s.logger.Error("failed to send mails", "error", err)
		return err
	}

	sess, err := s.dialer.Dial(ctx)
	if err != nil {
		dErr := &email.DeliveryError{Index: -1, Err: err}
		s.logger.Error("failed to send mails", "error", dErr)
		return dErr
	}
	defer func() {
		if err := sess.Close(); err != nil {
			s.logger.Warn("failed to close transport session", "error", err)
		}
	}()

	for i, msg := range batch {
		if err := sess.Send(ctx, s.from, msg.To, []byte(msg.Text)); err != nil {
			dErr := &email.DeliveryError{Index: i, To: msg.To, File: msg.File, Err: err}
			s.logger.Error("failed to send mails",
				"index", i,
				"to", msg.To,
				"file", msg.File,
				"error", err,
			)
			return dErr
		}
		s.logger.Debug("message sent", "index", i, "to", msg.To)
	}

	s.logger.Info("batch sent", "count", len(batch))
	return nil
}
