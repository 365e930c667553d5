package models

import "time"

// Message is a mailbox message as seen by the agent. It is never mutated after fetch.
type Message struct {
	// ID is the server-assigned identifier (the IMAP UID as a decimal string).
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	Sender     string    `json:"sender"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

// Draft is an outgoing message waiting for operator approval.
type Draft struct {
	ID        string `json:"id"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	// Source names who wrote the body: "operator" or a reply generator.
	Source string `json:"source"`
	// InReplyTo is the ID of the message being answered, if any.
	InReplyTo string    `json:"in_reply_to,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DraftSourceOperator marks a body typed by the operator.
const DraftSourceOperator = "operator"

// JournalEntry records one reply attempt.
type JournalEntry struct {
	ID         string    `json:"id"`
	Mailbox    string    `json:"mailbox"`
	MessageID  string    `json:"message_id"`
	Recipient  string    `json:"recipient"`
	Subject    string    `json:"subject"`
	Generator  string    `json:"generator"`
	Status     string    `json:"status"`
	SealedBody []byte    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	// JournalStatusSent marks a reply that was delivered to the submission server.
	JournalStatusSent = "sent"
	// JournalStatusFailed marks a reply that could not be sent.
	JournalStatusFailed = "failed"
)
