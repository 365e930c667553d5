// Package journal keeps a durable record of every reply the agent sends or fails
// to send. Reply bodies are stored sealed.
package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/vdavid/mailagent/internal/crypto"
	"github.com/vdavid/mailagent/internal/db"
	"github.com/vdavid/mailagent/internal/models"
)

// Attempt describes one reply attempt.
type Attempt struct {
	MessageID string
	Recipient string
	Subject   string
	Generator string
	Body      string
	Err       error
}

// Entry is a journal row with its body opened.
type Entry struct {
	models.JournalEntry
	Body string
}

// Recorder is the write side used by the agent and the approval workflow.
type Recorder interface {
	Record(ctx context.Context, a Attempt) error
}

// Journal stores attempts for a single mailbox.
type Journal struct {
	pool    *pgxpool.Pool
	sealer  *crypto.Sealer
	mailbox string
	ownPool bool
}

var _ Recorder = (*Journal)(nil)

// Open connects to databaseURL. The schema from migrations/ must already be applied.
func Open(ctx context.Context, databaseURL, encryptionKey, mailbox string) (*Journal, error) {
	sealer, err := crypto.NewSealer(encryptionKey)
	if err != nil {
		return nil, err
	}

	pool, err := db.NewConnection(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	j := New(pool, sealer, mailbox)
	j.ownPool = true
	return j, nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool, sealer *crypto.Sealer, mailbox string) *Journal {
	return &Journal{pool: pool, sealer: sealer, mailbox: mailbox}
}

// Record stores a, sealing the body with the entry ID as additional data.
func (j *Journal) Record(ctx context.Context, a Attempt) error {
	id := ulid.Make().String()

	sealed, err := j.sealer.Seal(a.Body, []byte(id))
	if err != nil {
		return fmt.Errorf("failed to seal reply body: %w", err)
	}

	status := models.JournalStatusSent
	if a.Err != nil {
		status = models.JournalStatusFailed
	}

	return db.InsertJournalEntry(ctx, j.pool, &models.JournalEntry{
		ID:         id,
		Mailbox:    j.mailbox,
		MessageID:  a.MessageID,
		Recipient:  a.Recipient,
		Subject:    a.Subject,
		Generator:  a.Generator,
		Status:     status,
		SealedBody: sealed,
	})
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := db.ListJournalEntries(ctx, j.pool, j.mailbox, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		body, err := j.sealer.Open(row.SealedBody, []byte(row.ID))
		if err != nil {
			return nil, fmt.Errorf("failed to open journal entry %s: %w", row.ID, err)
		}
		entries = append(entries, Entry{JournalEntry: *row, Body: body})
	}

	return entries, nil
}

// Close releases the pool if Open created it.
func (j *Journal) Close() {
	if j.ownPool {
		db.CloseConnection(j.pool)
	}
}
