// Command ncctl is a NETCONF operations client for the backend this
// repository implements: it dials a running session over SSH and issues
// one RPC per invocation.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &connectionConfig{}
	cmd := &cobra.Command{
		Use:   "ncctl",
		Short: "Issue NETCONF operations against a backend session",
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfg.target, "target", "localhost:830", "host:port of the NETCONF server")
	flags.StringVar(&cfg.user, "user", "", "SSH username")
	flags.StringVar(&cfg.password, "password", "", "SSH password (omit to use --key)")
	flags.StringVar(&cfg.keyPath, "key", "", "path to an SSH private key")
	flags.DurationVar(&cfg.setupTimeout, "setup-timeout", 0, "time to wait for the server hello (default from client config)")
	flags.BoolVar(&cfg.insecureHostKey, "insecure-host-key", true, "skip SSH host key verification")

	cmd.AddCommand(
		newLockCommand(cfg),
		newUnlockCommand(cfg),
		newGetConfigCommand(cfg),
		newEditConfigCommand(cfg),
		newCommitCommand(cfg),
		newCancelCommitCommand(cfg),
		newDiscardChangesCommand(cfg),
		newValidateCommand(cfg),
		newCopyConfigCommand(cfg),
		newDeleteConfigCommand(cfg),
		newCloseSessionCommand(cfg),
	)

	return cmd
}
