package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/mailagent/internal/models"
)

// InsertJournalEntry stores one reply attempt. A zero CreatedAt is set to now.
func InsertJournalEntry(ctx context.Context, pool *pgxpool.Pool, entry *models.JournalEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := pool.Exec(ctx, `
		INSERT INTO reply_journal (id, mailbox, message_id, recipient, subject, generator, status, sealed_body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		entry.ID,
		entry.Mailbox,
		entry.MessageID,
		entry.Recipient,
		entry.Subject,
		entry.Generator,
		entry.Status,
		entry.SealedBody,
		entry.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to insert journal entry: %w", err)
	}

	return nil
}

// ListJournalEntries returns the newest entries for mailbox, newest first.
func ListJournalEntries(ctx context.Context, pool *pgxpool.Pool, mailbox string, limit int) ([]*models.JournalEntry, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, mailbox, message_id, recipient, subject, generator, status, sealed_body, created_at
		FROM reply_journal
		WHERE mailbox = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, mailbox, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal entries: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.JournalEntry, error) {
		var e models.JournalEntry
		err := row.Scan(
			&e.ID,
			&e.Mailbox,
			&e.MessageID,
			&e.Recipient,
			&e.Subject,
			&e.Generator,
			&e.Status,
			&e.SealedBody,
			&e.CreatedAt,
		)
		return &e, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read journal entries: %w", err)
	}

	return entries, nil
}
