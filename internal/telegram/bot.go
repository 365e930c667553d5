// Package telegram connects the approval workflow to a Telegram bot. Updates are
// long-polled and handled one at a time.
package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gologme/log"
	"github.com/vdavid/mailagent/internal/logging"
)

// MsgNotAuthorized is the reply to users outside the allow-list.
const MsgNotAuthorized = "Not authorized."

const pollTimeoutSeconds = 60

// API is the part of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Dispatcher turns one command into one text reply.
type Dispatcher interface {
	Dispatch(ctx context.Context, op int64, command string, args []string) string
}

// Bot relays commands between Telegram and a Dispatcher.
type Bot struct {
	api        API
	dispatcher Dispatcher
	allowed    map[int64]bool
	token      string
	logger     *log.Logger
}

// Option configures a Bot.
type Option func(*Bot)

// WithToken removes token from every error the bot logs. The Bot API puts
// the token in request URLs, so transport errors carry it.
func WithToken(token string) Option {
	return func(b *Bot) { b.token = token }
}

// Redact replaces every occurrence of token in text.
func Redact(text, token string) string {
	if token == "" {
		return text
	}
	return strings.ReplaceAll(text, token, "<redacted>")
}

// redactingLogger routes the Bot API library's own log output through logger
// with the token removed.
type redactingLogger struct {
	token  string
	logger *log.Logger
}

var _ tgbotapi.BotLogger = redactingLogger{}

func (r redactingLogger) Println(v ...any) {
	r.logger.Warnf("Telegram: %s", Redact(strings.TrimSuffix(fmt.Sprintln(v...), "\n"), r.token))
}

func (r redactingLogger) Printf(format string, v ...any) {
	r.logger.Debugf("Telegram: %s", Redact(fmt.Sprintf(format, v...), r.token))
}

// Connect authenticates token against the Telegram API. It also points the
// library's logging at logger. Returned errors never contain the token.
func Connect(token string, logger *log.Logger) (*tgbotapi.BotAPI, error) {
	if err := tgbotapi.SetLogger(redactingLogger{token: token, logger: logger}); err != nil {
		return nil, fmt.Errorf("failed to set Telegram logger: %w", err)
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Telegram: %s", Redact(err.Error(), token))
	}
	return api, nil
}

// New returns a bot. An empty allowedUserIDs lets everyone in.
func New(api API, dispatcher Dispatcher, allowedUserIDs []int64, logger *log.Logger, opts ...Option) *Bot {
	allowed := make(map[int64]bool, len(allowedUserIDs))
	for _, id := range allowedUserIDs {
		allowed[id] = true
	}
	b := &Bot{api: api, dispatcher: dispatcher, allowed: allowed, logger: logger}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run handles updates until ctx is cancelled or the update channel closes.
func (b *Bot) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeoutSeconds
	updates := b.api.GetUpdatesChan(cfg)
	defer b.api.StopReceivingUpdates()

	b.logger.Infof("Telegram bot started")

	for {
		select {
		case <-ctx.Done():
			b.logger.Infof("Telegram bot stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.Handle(ctx, update)
		}
	}
}

// Handle answers a single update. Updates without a command are ignored.
func (b *Bot) Handle(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || !msg.IsCommand() {
		return
	}

	userID := msg.From.ID
	command := msg.Command()

	var text string
	if b.authorized(userID) {
		b.logger.Infof("Command /%s from user %d", command, userID)
		text = b.dispatcher.Dispatch(ctx, userID, command, strings.Fields(msg.CommandArguments()))
	} else {
		b.logger.Warnf("Rejected /%s from user %d", command, userID)
		text = MsgNotAuthorized
	}

	if _, err := b.api.Send(tgbotapi.NewMessage(msg.Chat.ID, text)); err != nil {
		b.logger.Errorf("Failed to send reply to chat %d: %s", msg.Chat.ID, Redact(err.Error(), b.token))
		b.logger.Debugf("Undelivered reply: %s", logging.Truncate(text, 80))
	}
}

func (b *Bot) authorized(userID int64) bool {
	return len(b.allowed) == 0 || b.allowed[userID]
}
