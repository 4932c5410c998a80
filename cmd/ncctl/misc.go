package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yangwire/ncbackend/netconf/ops"
)

func newValidateCommand(cfg *connectionConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <datastore>",
		Short: "Validate the contents of a configuration datastore",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cfg.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.Validate(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "valid")
			return nil
		},
	}
	return cmd
}

func newCopyConfigCommand(cfg *connectionConfig) *cobra.Command {
	var source, target string

	cmd := &cobra.Command{
		Use:   "copy-config",
		Short: "Copy one configuration datastore onto another",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cfg.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.CopyConfig(ops.DsName(source), ops.DsName(target)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "copied")
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "running", "datastore to copy from")
	cmd.Flags().StringVar(&target, "target", "startup", "datastore to copy to")
	return cmd
}

func newDeleteConfigCommand(cfg *connectionConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete-config <datastore>",
		Short: "Delete the contents of a configuration datastore",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cfg.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.DeleteConfig(ops.DsName(args[0])); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted")
			return nil
		},
	}
	return cmd
}

func newCloseSessionCommand(cfg *connectionConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close-session",
		Short: "Gracefully close the NETCONF session",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cfg.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.CloseSession(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "closed")
			return nil
		},
	}
	return cmd
}
