// Package agent polls the mailbox and answers new messages automatically.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/gologme/log"
	"github.com/vdavid/mailagent/internal/journal"
	"github.com/vdavid/mailagent/internal/logging"
	"github.com/vdavid/mailagent/internal/mailclient"
	"github.com/vdavid/mailagent/internal/models"
	"github.com/vdavid/mailagent/internal/reply"
	"github.com/vdavid/mailagent/internal/seen"
	"github.com/vdavid/mailagent/internal/telemetry"
)

// Options holds the agent's share of the configuration.
type Options struct {
	// Address is the mailbox address replies are sent from.
	Address       string
	AutoReply     bool
	ReplyDelay    time.Duration
	CheckInterval time.Duration
	MaxPerCheck   int
}

// Outcome is the result of replying to one message.
type Outcome struct {
	MessageID string
	Recipient string
	Subject   string
	Generator string
	Err       error
}

// Agent runs the poll loop. It is not safe for concurrent use.
type Agent struct {
	opts      Options
	mailbox   mailclient.Mailbox
	generator reply.Generator
	seen      seen.Set
	journal   journal.Recorder
	metrics   *telemetry.Recorder
	logger    *log.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures optional collaborators.
type Option func(*Agent)

// WithJournal records every reply attempt.
func WithJournal(r journal.Recorder) Option {
	return func(a *Agent) { a.journal = r }
}

// WithMetrics counts cycles, messages and replies.
func WithMetrics(r *telemetry.Recorder) Option {
	return func(a *Agent) { a.metrics = r }
}

// New returns an agent. The mailbox must not be connected yet; Run connects it.
func New(opts Options, mailbox mailclient.Mailbox, generator reply.Generator, seenSet seen.Set, logger *log.Logger, options ...Option) *Agent {
	a := &Agent{
		opts:      opts,
		mailbox:   mailbox,
		generator: generator,
		seen:      seenSet,
		logger:    logger,
		sleep:     sleepContext,
	}
	for _, o := range options {
		o(a)
	}
	return a
}

// Run connects and polls until ctx is cancelled. A failed connect is fatal.
// Cancellation is honored between steps and during sleeps, never mid-send.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.mailbox.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to mailbox: %w", err)
	}

	a.logger.Infof("Email agent started for %s (checking every %s)", a.opts.Address, a.opts.CheckInterval)

	for ctx.Err() == nil {
		a.PollOnce(ctx)

		if err := a.sleep(ctx, a.opts.CheckInterval); err != nil {
			break
		}
	}

	a.logger.Infof("Stopping email agent")
	if err := a.mailbox.Close(); err != nil {
		a.logger.Debugf("Ignoring error while closing mail sessions: %v", err)
	}
	a.logger.Infof("Cleanup completed")

	return nil
}

// PollOnce runs one cycle: pick up new messages and reply to each. It returns one
// Outcome per reply attempt, in fetch order.
func (a *Agent) PollOnce(ctx context.Context) []Outcome {
	a.metrics.PollCycle(ctx)

	if !a.opts.AutoReply {
		a.logger.Infof("Auto-reply disabled, skipping check")
		return nil
	}

	messages := a.collect(ctx)
	if len(messages) == 0 {
		a.logger.Debugf("No new emails")
		return nil
	}

	a.metrics.MessagesDetected(ctx, len(messages))
	a.logger.Infof("Processing %d new email(s)", len(messages))

	outcomes := make([]Outcome, 0, len(messages))
	for _, msg := range messages {
		outcome, ok := a.reply(ctx, msg)
		if !ok {
			a.logger.Infof("Stopping batch: shutting down")
			break
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes
}

// collect fetches the unseen messages not handled before. Each fetched ID is added
// to the seen-set right away, so a failed reply is never retried.
func (a *Agent) collect(ctx context.Context) []*models.Message {
	var messages []*models.Message

	for _, id := range a.mailbox.ListUnseen(ctx, a.opts.MaxPerCheck) {
		done, err := a.seen.Contains(ctx, id)
		if err != nil {
			a.logger.Warnf("Could not check whether email %s was processed, skipping: %v", id, err)
			continue
		}
		if done {
			continue
		}

		msg, err := a.mailbox.Fetch(ctx, id)
		if err != nil {
			a.logger.Warnf("Error processing email %s: %v", id, err)
			continue
		}

		if err := a.seen.Add(ctx, id); err != nil {
			a.logger.Warnf("Could not record email %s as processed, skipping: %v", id, err)
			continue
		}

		a.logger.Infof("New email from %s: %s", logging.Truncate(msg.Sender, 80), logging.Truncate(msg.Subject, 50))
		messages = append(messages, msg)
	}

	return messages
}

// reply answers one message. ok is false when ctx was cancelled before sending.
func (a *Agent) reply(ctx context.Context, msg *models.Message) (Outcome, bool) {
	a.logger.Infof("Generating reply for: %s", logging.Truncate(msg.Subject, 50))
	text := a.generator.Generate(ctx, msg.Sender, msg.Subject, msg.Body)

	if err := a.sleep(ctx, a.opts.ReplyDelay); err != nil {
		return Outcome{}, false
	}

	outcome := Outcome{
		MessageID: msg.ID,
		Recipient: msg.Sender,
		Subject:   "Re: " + msg.Subject,
		Generator: a.generator.Name(),
	}
	outcome.Err = a.mailbox.Send(ctx, a.opts.Address, msg.Sender, outcome.Subject, text)

	if outcome.Err != nil {
		a.logger.Errorf("Failed to send reply to %s: %v", logging.Truncate(msg.Sender, 80), outcome.Err)
	} else {
		a.logger.Infof("Reply sent to %s", logging.Truncate(msg.Sender, 80))
	}

	a.metrics.Reply(ctx, outcome.Err)

	if a.journal != nil {
		err := a.journal.Record(ctx, journal.Attempt{
			MessageID: outcome.MessageID,
			Recipient: outcome.Recipient,
			Subject:   outcome.Subject,
			Generator: outcome.Generator,
			Body:      text,
			Err:       outcome.Err,
		})
		if err != nil {
			a.logger.Warnf("Could not journal reply to email %s: %v", msg.ID, err)
		}
	}

	return outcome, true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
