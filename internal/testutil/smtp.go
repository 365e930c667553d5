package testutil

import (
	"fmt"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// ReceivedMessage is one message accepted by the test SMTP server.
type ReceivedMessage struct {
	From     string
	To       []string
	Data     []byte
	AuthUser string
}

// MemoryBackend stores every accepted message in memory. It accepts any credentials.
type MemoryBackend struct {
	mu       sync.Mutex
	messages []ReceivedMessage
	rejected map[string]bool
	dropData bool
}

// NewMemoryBackend creates an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{rejected: make(map[string]bool)}
}

// NewSession implements smtp.Backend.
func (b *MemoryBackend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &memorySession{backend: b, conn: c}, nil
}

// DropNextData makes the next DATA store the message and then cut the
// connection before the server replies.
func (b *MemoryBackend) DropNextData() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropData = true
}

// RejectRecipient makes RCPT TO fail for addr.
func (b *MemoryBackend) RejectRecipient(addr string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejected[addr] = true
}

// Messages returns a copy of the accepted messages in arrival order.
func (b *MemoryBackend) Messages() []ReceivedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ReceivedMessage(nil), b.messages...)
}

// ClearMessages drops all stored messages.
func (b *MemoryBackend) ClearMessages() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = nil
}

type memorySession struct {
	backend  *MemoryBackend
	conn     *smtp.Conn
	authUser string
	from     string
	to       []string
}

var _ smtp.AuthSession = (*memorySession)(nil)

func (s *memorySession) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

func (s *memorySession) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(identity, username, password string) error {
		s.authUser = username
		return nil
	}), nil
}

func (s *memorySession) Mail(from string, _ *smtp.MailOptions) error {
	s.from = from
	return nil
}

func (s *memorySession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.backend.mu.Lock()
	rejected := s.backend.rejected[to]
	s.backend.mu.Unlock()

	if rejected {
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 1, 1},
			Message:      "Mailbox unavailable",
		}
	}

	s.to = append(s.to, to)
	return nil
}

func (s *memorySession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	s.backend.mu.Lock()
	s.backend.messages = append(s.backend.messages, ReceivedMessage{
		From:     s.from,
		To:       s.to,
		Data:     data,
		AuthUser: s.authUser,
	})
	drop := s.backend.dropData
	s.backend.dropData = false
	s.backend.mu.Unlock()

	if drop {
		_ = s.conn.Conn().Close()
	}
	return nil
}

func (s *memorySession) Reset() {
	s.from = ""
	s.to = nil
}

func (s *memorySession) Logout() error {
	return nil
}

// TestSMTPServer is an in-memory SMTP submission server on a random local port.
type TestSMTPServer struct {
	Server  *smtp.Server
	Address string
	Backend *MemoryBackend
}

// NewTestSMTPServer starts the server and closes it when the test ends.
func NewTestSMTPServer(t *testing.T) *TestSMTPServer {
	t.Helper()

	s, err := StartSMTPServer("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to start SMTP server: %v", err)
	}
	t.Cleanup(s.Close)

	return s
}

// StartSMTPServer starts a server outside of a test, e.g. for cmd/test-server.
func StartSMTPServer(addr string) (*TestSMTPServer, error) {
	be := NewMemoryBackend()

	s := smtp.NewServer(be)
	s.AllowInsecureAuth = true
	s.Domain = "localhost"

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	go func() {
		_ = s.Serve(listener)
	}()

	return &TestSMTPServer{
		Server:  s,
		Address: listener.Addr().String(),
		Backend: be,
	}, nil
}

// Close shuts down the server.
func (s *TestSMTPServer) Close() {
	_ = s.Server.Close()
}

// Messages returns all messages received by the server.
func (s *TestSMTPServer) Messages() []ReceivedMessage {
	return s.Backend.Messages()
}
