package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vdavid/mailagent/internal/config"
)

func newCheckConfigCmd(stdout, stderr io.Writer) *cobra.Command {
	var bot bool
	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and print a summary without secrets",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig(stderr)
			if err != nil {
				return err
			}
			if bot {
				if err := cfg.ValidateBot(); err != nil {
					fprintf(stderr, "Invalid configuration in %s: %v\n", configPath, err)
					return errExit
				}
			}
			fprintf(stdout, "%s", cfg.Summary())
			fprintf(stdout, "Configuration OK\n")
			return nil
		},
	}
	cmd.Flags().BoolVar(&bot, "bot", false, "also check the settings the bot command needs")
	return cmd
}

func newInitConfigCmd(stdout, stderr io.Writer) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write a sample config file to fill in",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if _, err := os.Stat(configPath); err == nil && !force {
				fprintf(stderr, "%s already exists; use --force to overwrite it\n", configPath)
				return errExit
			}
			if err := config.WriteSample(configPath); err != nil {
				return err
			}
			fprintf(stdout, "Created sample config at %s. Fill in your credentials before running the agent.\n", configPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// newStoreCredentialCmd saves the mailbox credential in the system keyring so it
// can be left out of the config file.
func newStoreCredentialCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "store-credential <address>",
		Short: "Read a mailbox credential from stdin and save it in the system keyring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := readSecret(cmd.InOrStdin())
			if err != nil {
				fprintf(stderr, "%v\n", err)
				return errExit
			}

			ring, err := config.OpenKeyring()
			if err != nil {
				return err
			}
			if err := ring.Store(args[0], secret); err != nil {
				return err
			}
			fprintf(stdout, "Stored credential for %s\n", args[0])
			return nil
		},
	}
}

func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading credential: %w", err)
	}
	secret := strings.TrimSpace(line)
	if secret == "" {
		return "", errors.New("no credential given on stdin")
	}
	return secret, nil
}
