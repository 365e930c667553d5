// Package approval implements the operator-driven flow: draft a message, preview
// it, then approve or cancel it. Every operation returns the single text reply
// to show the operator.
package approval

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gologme/log"
	"github.com/oklog/ulid/v2"
	"github.com/vdavid/mailagent/internal/journal"
	"github.com/vdavid/mailagent/internal/logging"
	"github.com/vdavid/mailagent/internal/mailclient"
	"github.com/vdavid/mailagent/internal/models"
	"github.com/vdavid/mailagent/internal/reply"
	"github.com/vdavid/mailagent/internal/telemetry"
)

const (
	composeSubject    = "Message from Telegram"
	schedulingSubject = "Meeting Request"
	schedulingSender  = "Telegram"

	snippetLength = 100
	historyLimit  = 5
)

// Replies shown to the operator.
const (
	MsgSent             = "✅ Email sent!"
	MsgSendFailed       = "❌ Failed to send email."
	MsgNothingToApprove = "No pending email to approve."
	MsgCancelled        = "Pending email cancelled."
	MsgNothingToCancel  = "No pending email to cancel."
	MsgNoNewEmails      = "No new emails."
	MsgInvalidIndex     = "Invalid email number."
	MsgNoHistory        = "No replies recorded yet."
)

// HistoryReader lists recent journal entries.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Options holds the workflow's share of the configuration.
type Options struct {
	// Address is the mailbox address messages are sent from.
	Address string
	// ListLimit caps how many unread messages ListUnread shows.
	ListLimit int
}

// Workflow is single-threaded: callers dispatch one operation at a time.
type Workflow struct {
	opts      Options
	state     *State
	mailbox   mailclient.Mailbox
	generator reply.Generator
	template  reply.Template
	logger    *log.Logger

	journal journal.Recorder
	history HistoryReader
	metrics *telemetry.Recorder

	now func() time.Time
}

// Option configures optional collaborators.
type Option func(*Workflow)

// WithJournal records approved sends. If r can also list entries, the history
// command is enabled.
func WithJournal(r journal.Recorder) Option {
	return func(w *Workflow) {
		w.journal = r
		if h, ok := r.(HistoryReader); ok {
			w.history = h
		}
	}
}

// WithMetrics counts draft transitions.
func WithMetrics(r *telemetry.Recorder) Option {
	return func(w *Workflow) { w.metrics = r }
}

// New returns a workflow. generator writes replies and meeting requests when a
// generation service is active; template covers the rest. mailbox must be connected.
func New(opts Options, state *State, mailbox mailclient.Mailbox, generator reply.Generator, template reply.Template, logger *log.Logger, options ...Option) *Workflow {
	if generator == nil {
		generator = template
	}
	w := &Workflow{
		opts:      opts,
		state:     state,
		mailbox:   mailbox,
		generator: generator,
		template:  template,
		logger:    logger,
		now:       time.Now,
	}
	for _, o := range options {
		o(w)
	}
	return w
}

// Compose drafts a free-form message to recipient.
func (w *Workflow) Compose(ctx context.Context, op int64, recipient, text string) string {
	d := w.draft(ctx, op, recipient, composeSubject, text, models.DraftSourceOperator, "")
	return preview("Preview", d)
}

// ComposeScheduling drafts a meeting request about details.
func (w *Workflow) ComposeScheduling(ctx context.Context, op int64, recipient, details string) string {
	body := w.template.ScheduleRequest(details)
	source := reply.TemplateName
	if reply.Active(w.generator) {
		body = w.generator.Generate(ctx, schedulingSender, schedulingSubject, details)
		source = w.generator.Name()
	}

	d := w.draft(ctx, op, recipient, schedulingSubject, body, source, "")
	return preview("Preview", d)
}

// Approve sends the pending draft. The draft is dropped whether or not the send works.
func (w *Workflow) Approve(ctx context.Context, op int64) string {
	d, ok := w.state.takeDraft(op)
	if !ok {
		return MsgNothingToApprove
	}

	err := w.mailbox.Send(ctx, w.opts.Address, d.Recipient, d.Subject, d.Body)
	w.record(ctx, d, err)

	if err != nil {
		w.logger.Errorf("Failed to send approved email to %s: %v", logging.Truncate(d.Recipient, 80), err)
		w.metrics.Draft(ctx, "failed")
		return MsgSendFailed
	}

	w.logger.Infof("Approved email sent to %s", logging.Truncate(d.Recipient, 80))
	w.metrics.Draft(ctx, "sent")
	return MsgSent
}

// Cancel drops the pending draft.
func (w *Workflow) Cancel(ctx context.Context, op int64) string {
	if _, ok := w.state.takeDraft(op); !ok {
		return MsgNothingToCancel
	}
	w.metrics.Draft(ctx, "cancelled")
	return MsgCancelled
}

// ListUnread fetches unseen messages and remembers them for ReplyTo. It does not
// consult the agent's seen-set.
func (w *Workflow) ListUnread(ctx context.Context, op int64) string {
	var msgs []*models.Message
	for _, id := range w.mailbox.ListUnseen(ctx, w.opts.ListLimit) {
		msg, err := w.mailbox.Fetch(ctx, id)
		if err != nil {
			w.logger.Warnf("Error reading email %s: %v", id, err)
			continue
		}
		msgs = append(msgs, msg)
	}

	w.state.setListed(op, msgs)
	if len(msgs) == 0 {
		return MsgNoNewEmails
	}

	blocks := make([]string, 0, len(msgs))
	for i, msg := range msgs {
		blocks = append(blocks, fmt.Sprintf(
			"Email #%d\nFrom: %s\nSubject: %s\nSnippet: %s\n\nReply with /reply_to %d to generate a professional reply.",
			i+1, msg.Sender, msg.Subject, snippet(msg.Body), i+1))
	}
	return strings.Join(blocks, "\n\n")
}

// ReplyTo drafts a reply to the index-th (1-based) message of the last listing.
func (w *Workflow) ReplyTo(ctx context.Context, op int64, index int) string {
	msg, ok := w.state.listedAt(op, index)
	if !ok {
		return MsgInvalidIndex
	}

	body := w.generator.Generate(ctx, msg.Sender, msg.Subject, msg.Body)
	d := w.draft(ctx, op, msg.Sender, "Re: "+msg.Subject, body, w.generator.Name(), msg.ID)
	return preview("Reply Preview", d)
}

// History lists the most recent journal entries.
func (w *Workflow) History(ctx context.Context) string {
	if w.history == nil {
		return "History is not available: the reply journal is not configured."
	}

	entries, err := w.history.Recent(ctx, historyLimit)
	if err != nil {
		w.logger.Errorf("Failed to read reply journal: %v", err)
		return "Could not read the reply journal."
	}
	if len(entries) == 0 {
		return MsgNoHistory
	}

	var b strings.Builder
	b.WriteString("Recent replies:")
	for i, e := range entries {
		fmt.Fprintf(&b, "\n%d. [%s] %s to %s (%s, %s)",
			i+1, e.Status, e.Subject, e.Recipient, e.Generator, e.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return b.String()
}

// Dispatch routes a chat command. command may carry a leading slash and use
// either '-' or '_' between words.
func (w *Workflow) Dispatch(ctx context.Context, op int64, command string, args []string) string {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(command, "/")), "-", "_")

	switch name {
	case "compose", "mail":
		if len(args) < 2 {
			return fmt.Sprintf("Usage: /%s recipient@example.com message", name)
		}
		return w.Compose(ctx, op, args[0], strings.Join(args[1:], " "))

	case "compose_scheduling", "schedule":
		if len(args) < 2 {
			return fmt.Sprintf("Usage: /%s recipient@example.com meeting details", name)
		}
		return w.ComposeScheduling(ctx, op, args[0], strings.Join(args[1:], " "))

	case "approve":
		return w.Approve(ctx, op)

	case "cancel":
		return w.Cancel(ctx, op)

	case "list_unread", "read":
		return w.ListUnread(ctx, op)

	case "reply_to", "reply":
		if len(args) == 0 || !isDigits(args[0]) {
			return fmt.Sprintf("Usage: /%s <email_number>", name)
		}
		index, err := strconv.Atoi(args[0])
		if err != nil {
			return MsgInvalidIndex
		}
		return w.ReplyTo(ctx, op, index)

	case "history":
		if w.history != nil {
			return w.History(ctx)
		}

	case "start", "help":
		return w.Help()
	}

	return "Unknown command.\n\n" + w.Help()
}

// Help lists the available commands.
func (w *Workflow) Help() string {
	lines := []string{
		"Commands:",
		"/compose recipient@example.com message - draft an email",
		"/compose_scheduling recipient@example.com meeting details - draft a meeting request",
		"/approve - send the pending draft",
		"/cancel - discard the pending draft",
		"/list_unread - show unread emails",
		"/reply_to <email_number> - draft a reply to a listed email",
	}
	if w.history != nil {
		lines = append(lines, "/history - show recent replies")
	}
	return strings.Join(lines, "\n")
}

func (w *Workflow) draft(ctx context.Context, op int64, recipient, subject, body, source, inReplyTo string) *models.Draft {
	d := &models.Draft{
		ID:        ulid.Make().String(),
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
		Source:    source,
		InReplyTo: inReplyTo,
		CreatedAt: w.now(),
	}
	w.state.setDraft(op, d)
	w.metrics.Draft(ctx, "created")
	return d
}

func (w *Workflow) record(ctx context.Context, d *models.Draft, sendErr error) {
	if w.journal == nil {
		return
	}

	messageID := d.InReplyTo
	if messageID == "" {
		messageID = "draft:" + d.ID
	}

	err := w.journal.Record(ctx, journal.Attempt{
		MessageID: messageID,
		Recipient: d.Recipient,
		Subject:   d.Subject,
		Generator: d.Source,
		Body:      d.Body,
		Err:       sendErr,
	})
	if err != nil {
		w.logger.Warnf("Could not journal approved email %s: %v", d.ID, err)
	}
}

func preview(title string, d *models.Draft) string {
	return fmt.Sprintf("%s:\nTo: %s\nSubject: %s\nBody: %s\n\nReply /approve to send or /cancel to abort.",
		title, d.Recipient, d.Subject, d.Body)
}

// snippet returns the first snippetLength runes of body on one line.
func snippet(body string) string {
	r := []rune(body)
	if len(r) > snippetLength {
		r = r[:snippetLength]
	}
	s := strings.ReplaceAll(string(r), "\r\n", " ")
	return strings.ReplaceAll(s, "\n", " ")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
