// mailagent answers incoming email automatically and lets an operator draft and
// approve messages from Telegram.
package main

import (
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/vdavid/mailagent/internal/config"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// errExit signals a non-zero exit after the command already reported the problem.
var errExit = errors.New("exit")

// Persistent flags.
var (
	configPath string
	useKeyring bool
)

// run executes the CLI and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		if !errors.Is(err, errExit) {
			fprintf(stderr, "mailagent: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "mailagent",
		Short:         "Email auto-reply agent with a Telegram approval workflow",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "path to the YAML config file")
	root.PersistentFlags().BoolVar(&useKeyring, "keyring", true, "look up a missing mailbox credential in the system keyring")
	root.CompletionOptions.DisableDefaultCmd = true
	root.AddCommand(
		newRunCmd(stdout, stderr),
		newBotCmd(stdout, stderr),
		newCheckConfigCmd(stdout, stderr),
		newInitConfigCmd(stdout, stderr),
		newStoreCredentialCmd(stdout, stderr),
	)
	return root
}
