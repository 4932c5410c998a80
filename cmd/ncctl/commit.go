package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCommitCommand(cfg *connectionConfig) *cobra.Command {
	var confirmed bool
	var persist string
	var confirmTimeout uint64

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Commit the candidate configuration to running",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cfg.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			if confirmed {
				if err := sess.ConfirmedCommit(persist, confirmTimeout); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "confirmed commit in progress, confirm with another commit before the timeout")
				return nil
			}

			if err := sess.Commit(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "committed")
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirmed, "confirmed", false, "issue a confirmed commit instead of an ordinary one")
	cmd.Flags().StringVar(&persist, "persist", "", "persist-id to survive this session closing")
	cmd.Flags().Uint64Var(&confirmTimeout, "confirm-timeout", 600, "seconds before an unconfirmed commit is rolled back")
	return cmd
}

func newCancelCommitCommand(cfg *connectionConfig) *cobra.Command {
	var persist string

	cmd := &cobra.Command{
		Use:   "cancel-commit",
		Short: "Cancel a pending confirmed commit",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cfg.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.CancelCommit(persist); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cancelled")
			return nil
		},
	}
	cmd.Flags().StringVar(&persist, "persist-id", "", "persist-id of the confirmed commit to cancel")
	return cmd
}

func newDiscardChangesCommand(cfg *connectionConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discard-changes",
		Short: "Revert the candidate configuration to running",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cfg.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.DiscardChanges(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "discarded")
			return nil
		},
	}
	return cmd
}
