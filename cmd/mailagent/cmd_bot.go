package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vdavid/mailagent/internal/approval"
	"github.com/vdavid/mailagent/internal/telegram"
)

func newBotCmd(_, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot for drafting and approving messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runBot(ctx, stderr)
		},
	}
}

func runBot(ctx context.Context, stderr io.Writer) error {
	a, err := newApp(ctx, "bot", stderr)
	if err != nil {
		return err
	}
	defer a.close()

	cfg := a.cfg
	if err := cfg.ValidateBot(); err != nil {
		a.logger.Errorf("Invalid configuration: %v", err)
		return errExit
	}

	mailbox := a.newMailbox()
	if err := mailbox.Connect(ctx); err != nil {
		a.logger.Errorf("Failed to connect to mailbox: %v", err)
		return errExit
	}
	defer mailbox.Close() //nolint:errcheck // best-effort on shutdown

	api, err := telegram.Connect(cfg.Messaging.BotToken, a.logger)
	if err != nil {
		a.logger.Errorf("%v", err)
		return errExit
	}

	options := []approval.Option{approval.WithMetrics(a.metrics)}
	if r := a.journalRecorder(); r != nil {
		options = append(options, approval.WithJournal(r))
	}

	workflow := approval.New(approval.Options{
		Address:   cfg.Mailbox.Address,
		ListLimit: cfg.Agent.MaxEmailsPerCheck,
	}, approval.NewState(), mailbox, a.generator, a.template, a.logger, options...)

	bot := telegram.New(api, workflow, cfg.Messaging.AllowedUserIDs, a.logger, telegram.WithToken(cfg.Messaging.BotToken))
	return bot.Run(ctx)
}
