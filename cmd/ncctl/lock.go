package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLockCommand(cfg *connectionConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock <datastore>",
		Short: "Lock a configuration datastore",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cfg.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.Lock(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "locked %s\n", args[0])
			return nil
		},
	}
	return cmd
}

func newUnlockCommand(cfg *connectionConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unlock <datastore>",
		Short: "Unlock a configuration datastore",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cfg.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.Unlock(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "unlocked %s\n", args[0])
			return nil
		},
	}
	return cmd
}
