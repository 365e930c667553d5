package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/vdavid/mailagent/internal/models"
)

// SentMessage is one call to FakeMailbox.Send.
type SentMessage struct {
	From    string
	To      string
	Subject string
	Body    string
}

// FakeMailbox is an in-memory mailbox for agent and workflow tests. Messages stay
// unseen until fetched. Set the *Err fields to inject failures.
type FakeMailbox struct {
	mu       sync.Mutex
	order    []string
	messages map[string]*models.Message
	seen     map[string]bool
	sent     []SentMessage

	ConnectErr error
	// FetchErr fails Fetch for the listed IDs.
	FetchErr map[string]error
	// SendErr fails Send for the listed recipients.
	SendErr map[string]error

	Connects int
	Closes   int
	Fetches  []string
}

// NewFakeMailbox returns an empty mailbox.
func NewFakeMailbox() *FakeMailbox {
	return &FakeMailbox{
		messages: make(map[string]*models.Message),
		seen:     make(map[string]bool),
		FetchErr: make(map[string]error),
		SendErr:  make(map[string]error),
	}
}

// Deliver adds an unseen message.
func (m *FakeMailbox) Deliver(msg models.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order = append(m.order, msg.ID)
	m.messages[msg.ID] = &msg
}

// MarkUnseen clears the seen flag, as a user would in their mail client.
func (m *FakeMailbox) MarkUnseen(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, id)
}

// Sent returns a copy of everything sent so far.
func (m *FakeMailbox) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}

func (m *FakeMailbox) Connect(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Connects++
	return m.ConnectErr
}

func (m *FakeMailbox) ListUnseen(_ context.Context, limit int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for _, id := range m.order {
		if !m.seen[id] {
			ids = append(ids, id)
		}
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[len(ids)-limit:]
	}
	return ids
}

func (m *FakeMailbox) Fetch(_ context.Context, id string) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Fetches = append(m.Fetches, id)
	if err := m.FetchErr[id]; err != nil {
		return nil, err
	}

	msg, ok := m.messages[id]
	if !ok {
		return nil, errors.New("message not found")
	}
	m.seen[id] = true

	cp := *msg
	return &cp, nil
}

func (m *FakeMailbox) Send(_ context.Context, from, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.SendErr[to]; err != nil {
		return err
	}
	m.sent = append(m.sent, SentMessage{From: from, To: to, Subject: subject, Body: body})
	return nil
}

func (m *FakeMailbox) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closes++
	return nil
}
