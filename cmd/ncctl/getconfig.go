package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yangwire/ncbackend/netconf/ops"
)

func newGetConfigCommand(cfg *connectionConfig) *cobra.Command {
	var source string
	var filter string

	cmd := &cobra.Command{
		Use:   "get-config",
		Short: "Retrieve all or part of a configuration datastore",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cfg.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			var result string
			var filterArg interface{}
			if filter != "" {
				filterArg = filter
			}
			if err := sess.GetConfigSubtree(filterArg, source, &result); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "running", "datastore to read")
	cmd.Flags().StringVar(&filter, "filter", "", "subtree filter XML (omit to fetch the whole datastore)")
	return cmd
}

func newEditConfigCommand(cfg *connectionConfig) *cobra.Command {
	var target string
	var configFile string
	var defaultOperation string

	cmd := &cobra.Command{
		Use:   "edit-config",
		Short: "Merge or replace part of a configuration datastore",
		RunE: func(cmd *cobra.Command, args []string) error {
			var config string
			switch {
			case configFile == "-":
				data, err := readAllStdin()
				if err != nil {
					return err
				}
				config = data
			case configFile != "":
				data, err := os.ReadFile(configFile)
				if err != nil {
					return fmt.Errorf("read config file: %w", err)
				}
				config = string(data)
			default:
				return fmt.Errorf("--config is required (use - for stdin)")
			}

			sess, err := cfg.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			var editOpts []ops.EditOption
			if defaultOperation != "" {
				editOpts = append(editOpts, ops.DefaultOperation(defaultOperation))
			}
			if err := sess.EditConfig(target, config, editOpts...); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "candidate", "datastore to edit")
	cmd.Flags().StringVar(&configFile, "config", "", "path to an XML config fragment, or - for stdin")
	cmd.Flags().StringVar(&defaultOperation, "default-operation", "", "default-operation attribute (merge|replace|none)")
	return cmd
}
