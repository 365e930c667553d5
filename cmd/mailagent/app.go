package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gologme/log"
	"github.com/vdavid/mailagent/internal/config"
	"github.com/vdavid/mailagent/internal/journal"
	"github.com/vdavid/mailagent/internal/logging"
	"github.com/vdavid/mailagent/internal/mailclient"
	"github.com/vdavid/mailagent/internal/reply"
	"github.com/vdavid/mailagent/internal/smtpsender"
	"github.com/vdavid/mailagent/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

// app holds the collaborators shared by the run and bot commands.
type app struct {
	cfg       *config.Config
	logger    *log.Logger
	metrics   *telemetry.Recorder
	template  reply.Template
	generator reply.Generator
	journal   *journal.Journal

	closers []func(context.Context) error
}

func fprintf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...) //nolint:errcheck // best-effort output
}

// loadConfig reads the config file, consulting the keyring when enabled.
func loadConfig(stderr io.Writer) (*config.Config, error) {
	var secrets config.SecretSource
	if useKeyring {
		ring, err := config.OpenKeyring()
		if err != nil {
			fprintf(stderr, "Warning: keyring unavailable: %v\n", err)
		} else {
			secrets = ring
		}
	}

	cfg, err := config.NewConfig(configPath, secrets)
	if err != nil {
		var cfgErr *config.Error
		if errors.As(err, &cfgErr) {
			fprintf(stderr, "Invalid configuration in %s: %v\n", configPath, cfgErr)
			fprintf(stderr, "Run 'mailagent init-config' to create a sample file.\n")
			return nil, errExit
		}
		return nil, err
	}
	return cfg, nil
}

// newApp loads the configuration and builds logging, telemetry, the reply
// journal and the reply generator.
func newApp(ctx context.Context, component string, stderr io.Writer) (*app, error) {
	cfg, err := loadConfig(stderr)
	if err != nil {
		return nil, err
	}

	logger, logCloser, err := logging.New(logging.Options{
		File:      cfg.Log.File,
		Level:     cfg.Log.Level,
		Component: component,
	})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, template: reply.Template{Signer: cfg.Agent.Signer}}
	a.closers = append(a.closers, func(context.Context) error { return logCloser.Close() })

	mp, shutdown, err := telemetry.Setup(ctx, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, shutdown)

	a.metrics, err = telemetry.NewRecorder(mp)
	if err != nil {
		a.close()
		return nil, err
	}

	if cfg.Journal.DatabaseURL != "" {
		a.journal, err = journal.Open(ctx, cfg.Journal.DatabaseURL, cfg.Journal.EncryptionKey, cfg.Mailbox.Address)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to open reply journal: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error {
			a.journal.Close()
			return nil
		})
		logger.Infof("Reply journal enabled")
	}

	a.generator = a.newGenerator(ctx)
	return a, nil
}

func (a *app) newGenerator(ctx context.Context) reply.Generator {
	gen := a.cfg.Generation
	credential := gen.Credential
	if config.IsPlaceholder(credential) {
		credential = ""
	}

	var model reply.Model
	if gen.Enabled && credential != "" {
		m, err := reply.NewGeminiModel(ctx, credential, gen.ModelID)
		if err != nil {
			a.logger.Warnf("Could not create generation client, using template replies")
		} else {
			model = m
		}
	}

	return reply.NewService(ctx, reply.ServiceOptions{
		Enabled:    gen.Enabled,
		Credential: credential,
		Tone:       gen.Tone,
		Signer:     a.cfg.Agent.Signer,
		Timeout:    a.cfg.GenerationTimeout(),
		OnFallback: func() { a.metrics.GenerationFallback(context.Background()) },
	}, model, a.template, a.logger)
}

func (a *app) newMailbox() *mailclient.Client {
	m := a.cfg.Mailbox
	return mailclient.New(mailclient.Options{
		ReadAddr: a.cfg.ReadAddr(),
		ReadTLS:  m.ReadTLS,
		Username: a.cfg.LoginUser(),
		Password: m.Credential,
		Submit: smtpsender.Options{
			Addr:     a.cfg.SubmitAddr(),
			Username: a.cfg.LoginUser(),
			Password: m.Credential,
			Security: m.SubmitSecurity,
		},
	}, a.logger)
}

// journalRecorder returns the journal as a Recorder, or nil when it is disabled.
func (a *app) journalRecorder() journal.Recorder {
	if a.journal == nil {
		return nil
	}
	return a.journal
}

// close releases resources in reverse order of creation.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil && a.logger != nil {
			a.logger.Debugf("Ignoring error during shutdown: %v", err)
		}
	}
	a.closers = nil
}
