package smtp

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// received is one message accepted by the test relay.
type received struct {
	from string
	to   []string
	data string
}

// relay is an in-process SMTP server backend recording every transaction.
type relay struct {
	mu         sync.Mutex
	sessions   int
	messages   []received
	username   string
	password   string
	rejectRcpt string
}

func (r *relay) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	r.mu.Lock()
	r.sessions++
	r.mu.Unlock()
	return &relaySession{relay: r}, nil
}

func (r *relay) snapshot() (int, []received) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions, append([]received(nil), r.messages...)
}

type relaySession struct {
	relay  *relay
	authed bool
	from   string
	to     []string
}

func (s *relaySession) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

func (s *relaySession) Auth(_ string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(_, username, password string) error {
		if username != s.relay.username || password != s.relay.password {
			return errors.New("invalid credentials")
		}
		s.authed = true
		return nil
	}), nil
}

func (s *relaySession) Mail(from string, _ *smtp.MailOptions) error {
	if s.relay.username != "" && !s.authed {
		return &smtp.SMTPError{Code: 530, EnhancedCode: smtp.EnhancedCode{5, 7, 0}, Message: "Authentication required"}
	}
	s.from = from
	return nil
}

func (s *relaySession) Rcpt(to string, _ *smtp.RcptOptions) error {
	if to == s.relay.rejectRcpt {
		return &smtp.SMTPError{Code: 550, EnhancedCode: smtp.EnhancedCode{5, 1, 1}, Message: "No such user"}
	}
	s.to = append(s.to, to)
	return nil
}

func (s *relaySession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.relay.mu.Lock()
	s.relay.messages = append(s.relay.messages, received{from: s.from, to: s.to, data: string(data)})
	s.relay.mu.Unlock()
	return nil
}

func (s *relaySession) Reset() {
	s.from = ""
	s.to = nil
}

func (s *relaySession) Logout() error {
	return nil
}

// startRelay serves be on a loopback port until the test ends.
func startRelay(t *testing.T, be *relay) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	srv := smtp.NewServer(be)
	srv.Domain = "localhost"
	srv.AllowInsecureAuth = true

	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })

	return ln.Addr().String()
}

func normalize(s string) string {
	return strings.TrimSuffix(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
}

func TestSession_SendsOverOneConnection(t *testing.T) {
	t.Parallel()

	be := &relay{}
	addr := startRelay(t, be)

	ctx := context.Background()
	sess, err := New(Config{Addr: addr, LocalName: "client.test"}).Dial(ctx)
	if err != nil {
		t.Fatalf("Dial(): %v", err)
	}

	texts := map[string]string{
		"b@y.org": "To: b@y.org\nSubject: Hi\nThanks\nName:\tBob",
		"c@z.org": "To: c@z.org\nSubject: Hi\nThanks\nName:\tCarol",
	}
	for _, to := range []string{"b@y.org", "c@z.org"} {
		if err := sess.Send(ctx, "a@x.org", to, []byte(texts[to])); err != nil {
			t.Fatalf("Send(%s): %v", to, err)
		}
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("Close(): %v", err)
	}

	sessions, msgs := be.snapshot()
	if sessions != 1 {
		t.Errorf("sessions: got %d, want 1", sessions)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages: got %d, want 2", len(msgs))
	}
	for i, to := range []string{"b@y.org", "c@z.org"} {
		if msgs[i].from != "a@x.org" {
			t.Errorf("message %d from: got %q, want %q", i, msgs[i].from, "a@x.org")
		}
		if len(msgs[i].to) != 1 || msgs[i].to[0] != to {
			t.Errorf("message %d to: got %v, want [%s]", i, msgs[i].to, to)
		}
		if got := normalize(msgs[i].data); got != texts[to] {
			t.Errorf("message %d data:\ngot  %q\nwant %q", i, got, texts[to])
		}
	}
}

func TestSession_RejectedRecipient(t *testing.T) {
	t.Parallel()

	be := &relay{rejectRcpt: "nobody@y.org"}
	addr := startRelay(t, be)

	ctx := context.Background()
	sess, err := New(Config{Addr: addr}).Dial(ctx)
	if err != nil {
		t.Fatalf("Dial(): %v", err)
	}
	defer sess.Close()

	err = sess.Send(ctx, "a@x.org", "nobody@y.org", []byte("Subject: Hi\nThanks"))
	if err == nil {
		t.Fatal("expected error for rejected recipient, got nil")
	}

	var smtpErr *smtp.SMTPError
	if !errors.As(err, &smtpErr) {
		t.Fatalf("expected *smtp.SMTPError in chain, got %v", err)
	}
	if smtpErr.Code != 550 {
		t.Errorf("code: got %d, want 550", smtpErr.Code)
	}
}

func TestDial_Auth(t *testing.T) {
	t.Parallel()

	be := &relay{username: "mailer", password: "s3cret"}
	addr := startRelay(t, be)
	ctx := context.Background()

	sess, err := New(Config{Addr: addr, Username: "mailer", Password: "s3cret"}).Dial(ctx)
	if err != nil {
		t.Fatalf("Dial(): %v", err)
	}
	if err := sess.Send(ctx, "a@x.org", "b@y.org", []byte("Subject: Hi\nThanks")); err != nil {
		t.Fatalf("Send(): %v", err)
	}
	sess.Close()

	_, err = New(Config{Addr: addr, Username: "mailer", Password: "wrong"}).Dial(ctx)
	if err == nil {
		t.Fatal("expected AUTH failure, got nil")
	}
	if !strings.Contains(err.Error(), "AUTH failed") {
		t.Errorf("unexpected error: %v", err)
	}

	unauth, err := New(Config{Addr: addr}).Dial(ctx)
	if err != nil {
		t.Fatalf("Dial(): %v", err)
	}
	defer unauth.Close()
	if err := unauth.Send(ctx, "a@x.org", "b@y.org", []byte("x")); err == nil {
		t.Error("expected MAIL to be refused without AUTH")
	}
}

func TestDial_ConnectionRefused(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = New(Config{Addr: addr}).Dial(context.Background())
	if err == nil {
		t.Fatal("expected connection error, got nil")
	}
	if !strings.Contains(err.Error(), addr) {
		t.Errorf("error should name the address, got %v", err)
	}
}

func TestSend_CancelledContext(t *testing.T) {
	t.Parallel()

	be := &relay{}
	addr := startRelay(t, be)

	sess, err := New(Config{Addr: addr}).Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial(): %v", err)
	}
	defer sess.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sess.Send(ctx, "a@x.org", "b@y.org", []byte("x")); !errors.Is(err, context.Canceled) {
		t.Errorf("Send(): got %v, want context.Canceled", err)
	}
	if _, msgs := be.snapshot(); len(msgs) != 0 {
		t.Errorf("messages: got %d, want 0", len(msgs))
	}
}

func TestName(t *testing.T) {
	t.Parallel()

	if got := New(Config{}).Name(); got != "smtp" {
		t.Errorf("Name(): got %q, want %q", got, "smtp")
	}
}
