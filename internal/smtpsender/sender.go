// Package smtpsender delivers plain-text messages over an authenticated SMTP
// submission session.
package smtpsender

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/jhillyerd/enmime"
	"github.com/oklog/ulid/v2"
)

// Security modes for the submission connection.
const (
	SecurityStartTLS = "starttls"
	SecurityTLS      = "tls"
	SecurityNone     = "none"
)

// Options configures a Sender.
type Options struct {
	// Addr is the submission server host:port.
	Addr     string
	Username string
	Password string
	// Security is one of SecurityStartTLS, SecurityTLS or SecurityNone.
	Security string
	// TLSConfig overrides the default TLS settings (server name taken from Addr).
	TLSConfig *tls.Config
}

// Sender owns one submission session. Calls are serialized, so the session is
// never used concurrently.
type Sender struct {
	opts Options

	mu     sync.Mutex
	client *smtp.Client
}

// New returns a Sender that connects lazily on the first Send.
func New(opts Options) *Sender {
	return &Sender{opts: opts}
}

// Connect opens and authenticates a new session, replacing any existing one.
func (s *Sender) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeLocked()
	return s.connectLocked()
}

// Connected reports whether a session is open.
func (s *Sender) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil
}

func (s *Sender) connectLocked() error {
	tlsConfig := s.opts.TLSConfig
	if tlsConfig == nil {
		host, _, err := net.SplitHostPort(s.opts.Addr)
		if err != nil {
			host = s.opts.Addr
		}
		tlsConfig = &tls.Config{ServerName: host}
	}

	var c *smtp.Client
	var err error
	switch s.opts.Security {
	case SecurityTLS:
		c, err = smtp.DialTLS(s.opts.Addr, tlsConfig)
	case SecurityNone:
		c, err = smtp.Dial(s.opts.Addr)
	default:
		c, err = smtp.DialStartTLS(s.opts.Addr, tlsConfig)
	}
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", s.opts.Addr, err)
	}

	if s.opts.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", s.opts.Username, s.opts.Password)); err != nil {
			_ = c.Close()
			return fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	s.client = c
	return nil
}

// Send builds a text/plain message and delivers it to the single recipient to.
// from and to may carry display names ("Name <addr>").
func (s *Sender) Send(ctx context.Context, from, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fromAddr, err := mail.ParseAddress(from)
	if err != nil {
		return fmt.Errorf("invalid sender %q: %w", from, err)
	}

	toAddr, err := mail.ParseAddress(to)
	if err != nil {
		return fmt.Errorf("invalid recipient %q: %w", to, err)
	}

	data, err := BuildMessage(fromAddr, toAddr, subject, body, time.Now())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A dropped idle session is replaced before anything is transmitted.
	// The delivery itself is attempted exactly once.
	if s.client != nil && s.client.Noop() != nil {
		s.closeLocked()
	}
	if s.client == nil {
		if err := s.connectLocked(); err != nil {
			return err
		}
	}

	err = s.deliverLocked(fromAddr.Address, toAddr.Address, data)
	if err == nil {
		return nil
	}

	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		// The server refused this message but the session is still usable.
		_ = s.client.Reset()
		return err
	}

	s.closeLocked()
	return err
}

func (s *Sender) deliverLocked(from, to string, data []byte) error {
	if err := s.client.Mail(from, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	if err := s.client.Rcpt(to, nil); err != nil {
		return fmt.Errorf("RCPT TO failed: %w", err)
	}

	w, err := s.client.Data()
	if err != nil {
		return fmt.Errorf("DATA failed: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}

	return nil
}

// Close quits the session if one is open.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}

	err := s.client.Quit()
	_ = s.client.Close()
	s.client = nil
	return err
}

func (s *Sender) closeLocked() {
	if s.client != nil {
		_ = s.client.Close()
		s.client = nil
	}
}

// BuildMessage renders a single-part text/plain message with From, To, Subject,
// Date and Message-ID headers.
func BuildMessage(from, to *mail.Address, subject, body string, now time.Time) ([]byte, error) {
	domain := "localhost"
	if at := strings.LastIndex(from.Address, "@"); at >= 0 {
		domain = from.Address[at+1:]
	}
	messageID := fmt.Sprintf("<%s@%s>", ulid.Make().String(), domain)

	part, err := enmime.Builder().
		From(from.Name, from.Address).
		To(to.Name, to.Address).
		Subject(subject).
		Date(now).
		Header("Message-ID", messageID).
		Text([]byte(body)).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build message: %w", err)
	}

	var buf bytes.Buffer
	if err := part.Encode(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}

	return buf.Bytes(), nil
}
