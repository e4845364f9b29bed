// Package message composes plain-text notification messages from the shared
// configuration and one recipient descriptor.
package message

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/shineum/notify-mailer/internal/config"
	"github.com/shineum/notify-mailer/internal/descriptor"
	"github.com/shineum/notify-mailer/internal/email"
)

// DateLayout renders the Date header as "DD Mon YYYY HH:MM".
const DateLayout = "02 Jan 2006 15:04"

var errRequired = errors.New("is required")

// Builder renders headers and body text for recipient descriptors.
type Builder struct {
	cfg    *config.Config
	now    func() time.Time
	logger *slog.Logger
}

// Option customizes a Builder.
type Option func(*Builder)

// WithClock replaces the clock used for the Date header.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// WithLogger sets the logger failures are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// New creates a Builder over cfg.
func New(cfg *config.Config, opts ...Option) *Builder {
	b := &Builder{
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// HeaderFields returns the Date, From, Reply-To, To and Subject lines joined
// by newlines, in that order.
func (b *Builder) HeaderFields(d *descriptor.Descriptor) (string, error) {
	header, err := b.headerFields(d)
	if err != nil {
		b.logger.Error("failed to get header fields", "file", d.File, "error", err)
		return "", err
	}
	return header, nil
}

// Body returns the template selected by the descriptor's flag followed by
// one "Key:\tvalue" line per remaining field.
func (b *Builder) Body(d *descriptor.Descriptor) (string, error) {
	body, err := b.body(d)
	if err != nil {
		b.logger.Error("failed to get body", "file", d.File, "error", err)
		return "", err
	}
	return body, nil
}

// Build composes the full message for d.
func (b *Builder) Build(d *descriptor.Descriptor) (email.Message, error) {
	msg, err := b.build(d)
	if err != nil {
		b.logger.Error("failed to get mail", "file", d.File, "error", err)
		return email.Message{}, err
	}
	return msg, nil
}

// BuildFile loads the descriptor at path and composes its message.
func (b *Builder) BuildFile(path string) (email.Message, error) {
	d, err := descriptor.Load(path)
	if err != nil {
		b.logger.Error("failed to load descriptor", "file", path, "error", err)
		return email.Message{}, err
	}
	return b.Build(d)
}

func (b *Builder) build(d *descriptor.Descriptor) (email.Message, error) {
	header, err := b.headerFields(d)
	if err != nil {
		return email.Message{}, err
	}
	body, err := b.body(d)
	if err != nil {
		return email.Message{}, err
	}

	to, _ := d.Email()
	return email.Message{
		To:   to,
		Text: header + "\n" + body,
		File: d.File,
	}, nil
}

func (b *Builder) headerFields(d *descriptor.Descriptor) (string, error) {
	msg := b.cfg.Msg
	for _, r := range []struct{ key, value string }{
		{"msg.from", msg.From},
		{"msg.reply_to", msg.ReplyTo},
		{"msg.subject", msg.Subject},
	} {
		if r.value == "" {
			return "", &email.ConfigError{Key: r.key, Err: errRequired}
		}
	}

	to, err := d.Email()
	if err != nil {
		return "", err
	}

	lines := []string{
		"Date: " + b.now().Local().Format(DateLayout),
		"From: " + msg.From,
		"Reply-To: " + msg.ReplyTo,
		"To: " + to,
		"Subject: " + msg.Subject,
	}
	return strings.Join(lines, "\n"), nil
}

func (b *Builder) body(d *descriptor.Descriptor) (string, error) {
	if len(b.cfg.Body) == 0 {
		return "", &email.ConfigError{Key: "body", Err: errRequired}
	}

	flag, err := d.Flag()
	if err != nil {
		return "", err
	}
	tmpl, ok := b.cfg.Body[flag]
	if !ok {
		return "", &email.DataError{
			File:  d.File,
			Field: descriptor.KeyFlag,
			Err:   fmt.Errorf("no body template for flag %q", flag),
		}
	}

	extra := d.Extra()
	lines := make([]string, 0, len(extra))
	for _, f := range extra {
		if err := d.CheckLine(f); err != nil {
			return "", err
		}
		lines = append(lines, capitalize(f.Key)+":\t"+f.Value)
	}

	return tmpl + "\n" + strings.Join(lines, "\n"), nil
}

// capitalize title-cases the first letter of s and lower-cases the rest.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToTitle(r)) + strings.ToLower(s[size:])
}
