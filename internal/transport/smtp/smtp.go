// Package smtp implements a transport that delivers messages over a single
// SMTP client connection per session.
package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/shineum/notify-mailer/internal/transport"
)

// dialTimeout bounds the TCP connect when the context has no deadline.
const dialTimeout = 30 * time.Second

// Config holds the relay connection settings.
type Config struct {
	// Addr is the relay address in host:port form.
	Addr string

	// LocalName is sent in EHLO. Empty keeps the client default.
	LocalName string

	// Username and Password enable AUTH PLAIN when both are set.
	Username string
	Password string

	// TLSConfig enables STARTTLS when non-nil.
	TLSConfig *tls.Config
}

// Dialer opens SMTP sessions to a relay.
type Dialer struct {
	cfg Config
}

// New creates a Dialer for the given relay.
func New(cfg Config) *Dialer {
	return &Dialer{cfg: cfg}
}

// Dial connects to the relay, greets it, upgrades to TLS and authenticates
// as configured.
func (d *Dialer) Dial(ctx context.Context) (transport.Session, error) {
	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", d.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", d.cfg.Addr, err)
	}

	c := smtp.NewClient(conn)

	if d.cfg.LocalName != "" {
		if err := c.Hello(d.cfg.LocalName); err != nil {
			c.Close()
			return nil, fmt.Errorf("EHLO failed: %w", err)
		}
	}

	if d.cfg.TLSConfig != nil {
		if err := c.StartTLS(d.cfg.TLSConfig); err != nil {
			c.Close()
			return nil, fmt.Errorf("STARTTLS failed: %w", err)
		}
	}

	if d.cfg.Username != "" && d.cfg.Password != "" {
		if err := c.Auth(sasl.NewPlainClient("", d.cfg.Username, d.cfg.Password)); err != nil {
			c.Close()
			return nil, fmt.Errorf("AUTH failed: %w", err)
		}
	}

	return &session{client: c}, nil
}

// Name returns the transport name.
func (d *Dialer) Name() string {
	return "smtp"
}

type session struct {
	client *smtp.Client
}

// Send runs one MAIL/RCPT/DATA transaction on the open connection.
func (s *session) Send(ctx context.Context, from, to string, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.client.SendMail(from, []string{to}, bytes.NewReader(msg)); err != nil {
		return fmt.Errorf("SMTP transaction failed: %w", err)
	}
	return nil
}

// Close sends QUIT and closes the connection.
func (s *session) Close() error {
	if err := s.client.Quit(); err != nil {
		s.client.Close()
		return fmt.Errorf("QUIT failed: %w", err)
	}
	return nil
}
