// Package stdout implements a transport that prints messages instead of
// delivering them.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shineum/notify-mailer/internal/transport"
)

const separator = "========================================\n"

// Dialer opens sessions that write to a fixed writer.
type Dialer struct {
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer
}

// New creates a stdout Dialer that writes to os.Stdout.
func New() *Dialer {
	return &Dialer{writer: os.Stdout}
}

// NewWithWriter creates a Dialer that writes to the given writer.
func NewWithWriter(w io.Writer) *Dialer {
	return &Dialer{writer: w}
}

// Dial returns a session bound to the dialer's writer.
func (d *Dialer) Dial(_ context.Context) (transport.Session, error) {
	return &session{writer: d.writer}, nil
}

// Name returns the transport name.
func (d *Dialer) Name() string {
	return "stdout"
}

type session struct {
	writer io.Writer
	count  int
}

// Send prints the envelope and the message text in a readable format.
func (s *session) Send(_ context.Context, from, to string, msg []byte) error {
	s.count++

	var b strings.Builder
	b.WriteString(separator)
	fmt.Fprintf(&b, "Message: %d\n", s.count)
	fmt.Fprintf(&b, "Envelope-From: %s\n", from)
	fmt.Fprintf(&b, "Envelope-To: %s\n", to)
	fmt.Fprintf(&b, "Size: %s\n", formatSize(len(msg)))
	b.WriteString("----------------------------------------\n")
	b.Write(msg)
	if len(msg) == 0 || msg[len(msg)-1] != '\n' {
		b.WriteString("\n")
	}
	b.WriteString(separator)

	if _, err := io.WriteString(s.writer, b.String()); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (s *session) Close() error {
	return nil
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
