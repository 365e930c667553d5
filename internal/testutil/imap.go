package testutil

import (
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/backend/memory"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/server"
)

// TestIMAPServer is an in-memory IMAP server listening on a random local port.
// The memory backend has a single user "username"/"password" whose INBOX already holds
// one read message.
type TestIMAPServer struct {
	Server   *server.Server
	Address  string
	Backend  *memory.Backend
	username string
	password string
}

// TestMessage describes a message to append to the test mailbox.
type TestMessage struct {
	MessageID string
	From      string
	To        string
	Subject   string
	SentAt    time.Time
	// ContentType defaults to "text/plain; charset=utf-8".
	ContentType string
	// Body is written verbatim after the headers.
	Body string
	Seen bool
}

// NewTestIMAPServer starts the server and closes it when the test ends.
func NewTestIMAPServer(t *testing.T) *TestIMAPServer {
	t.Helper()

	s, err := StartIMAPServer("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to start IMAP server: %v", err)
	}
	t.Cleanup(s.Close)

	return s
}

// StartIMAPServer starts a server outside of a test, e.g. for cmd/test-server.
func StartIMAPServer(addr string) (*TestIMAPServer, error) {
	be := memory.New()

	s := server.New(be)
	s.AllowInsecureAuth = true

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	go func() {
		_ = s.Serve(listener)
	}()

	return &TestIMAPServer{
		Server:   s,
		Address:  listener.Addr().String(),
		Backend:  be,
		username: "username",
		password: "password",
	}, nil
}

// Close shuts down the server.
func (s *TestIMAPServer) Close() {
	_ = s.Server.Close()
}

func (s *TestIMAPServer) Username() string { return s.username }

func (s *TestIMAPServer) Password() string { return s.password }

// Connect opens a logged-in client with INBOX selected.
func (s *TestIMAPServer) Connect(t *testing.T) *imapclient.Client {
	t.Helper()

	c, err := s.dial()
	if err != nil {
		t.Fatalf("Failed to connect to test server: %v", err)
	}
	t.Cleanup(func() { _ = c.Logout() })

	return c
}

func (s *TestIMAPServer) dial() (*imapclient.Client, error) {
	c, err := imapclient.Dial(s.Address)
	if err != nil {
		return nil, err
	}

	if err := c.Login(s.username, s.password); err != nil {
		_ = c.Logout()
		return nil, err
	}

	if _, err := c.Select("INBOX", false); err != nil {
		_ = c.Logout()
		return nil, err
	}

	return c, nil
}

// AddMessage appends msg to INBOX and returns its UID.
func (s *TestIMAPServer) AddMessage(t *testing.T, msg TestMessage) uint32 {
	t.Helper()

	uid, err := s.Append(msg)
	if err != nil {
		t.Fatalf("Failed to add message: %v", err)
	}
	return uid
}

// Append is AddMessage for callers without a *testing.T.
func (s *TestIMAPServer) Append(msg TestMessage) (uint32, error) {
	if msg.MessageID == "" {
		msg.MessageID = fmt.Sprintf("<%d@test.local>", time.Now().UnixNano())
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}
	if msg.ContentType == "" {
		msg.ContentType = "text/plain; charset=utf-8"
	}
	if msg.To == "" {
		msg.To = "username@example.org"
	}

	c, err := s.dial()
	if err != nil {
		return 0, err
	}
	defer func() { _ = c.Logout() }()

	raw := strings.Join([]string{
		"Message-ID: " + msg.MessageID,
		"Date: " + msg.SentAt.Format(time.RFC1123Z),
		"From: " + msg.From,
		"To: " + msg.To,
		"Subject: " + msg.Subject,
		"MIME-Version: 1.0",
		"Content-Type: " + msg.ContentType,
		"",
		msg.Body,
	}, "\r\n")

	var flags []string
	if msg.Seen {
		flags = []string{imap.SeenFlag}
	}

	if err := c.Append("INBOX", flags, time.Now(), strings.NewReader(raw)); err != nil {
		return 0, fmt.Errorf("failed to append message: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Header.Add("Message-ID", msg.MessageID)
	uids, err := c.UidSearch(criteria)
	if err != nil {
		return 0, fmt.Errorf("failed to search for message: %w", err)
	}
	if len(uids) == 0 {
		return 0, fmt.Errorf("message not found after append")
	}

	return uids[0], nil
}

// IsSeen reports whether the message with uid carries the \Seen flag.
func (s *TestIMAPServer) IsSeen(t *testing.T, uid uint32) bool {
	t.Helper()

	c := s.Connect(t)

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqSet, []imap.FetchItem{imap.FetchFlags}, messages)
	}()

	var flags []string
	for m := range messages {
		flags = m.Flags
	}
	if err := <-done; err != nil {
		t.Fatalf("Failed to fetch flags: %v", err)
	}

	for _, f := range flags {
		if f == imap.SeenFlag {
			return true
		}
	}
	return false
}
