package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vdavid/mailagent/internal/agent"
	"github.com/vdavid/mailagent/internal/seen"
)

func newRunCmd(_, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Poll the mailbox and reply to new messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runAgent(ctx, stderr)
		},
	}
}

func runAgent(ctx context.Context, stderr io.Writer) error {
	a, err := newApp(ctx, "agent", stderr)
	if err != nil {
		return err
	}
	defer a.close()

	cfg := a.cfg
	seenSet, err := seen.Open(ctx, cfg.Agent.SeenStoreURL, cfg.Mailbox.Address)
	if err != nil {
		a.logger.Errorf("Failed to open seen store: %v", err)
		return errExit
	}
	defer seenSet.Close() //nolint:errcheck // best-effort on shutdown

	options := []agent.Option{agent.WithMetrics(a.metrics)}
	if r := a.journalRecorder(); r != nil {
		options = append(options, agent.WithJournal(r))
	}

	ag := agent.New(agent.Options{
		Address:       cfg.Mailbox.Address,
		AutoReply:     cfg.Agent.AutoReply,
		ReplyDelay:    cfg.ReplyDelay(),
		CheckInterval: cfg.CheckInterval(),
		MaxPerCheck:   cfg.Agent.MaxEmailsPerCheck,
	}, a.newMailbox(), a.generator, seenSet, a.logger, options...)

	if err := ag.Run(ctx); err != nil {
		a.logger.Errorf("%v", err)
		return errExit
	}
	return nil
}
