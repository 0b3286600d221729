package main

import (
	"fmt"
	"os"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"go-live-ide/internal/config"
)

func newConfigCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the config file.",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [--force]",
		Short: "Write the default settings to the config file.",
		Long: heredoc.Doc(`
			Writes the built-in defaults to the config file so they can be
			edited. An existing file is kept unless --force is given.
		`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(*cfgPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", *cfgPath)
			}
			if err := config.DefaultConfig().Save(*cfgPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", *cfgPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "addr: %s\nlog_level: %s\ndefault_zoom: %v\ncompiler.binary: %s\nworkspace.dir: %s\n",
				cfg.Addr, cfg.LogLevel, cfg.DefaultZoom, cfg.Compiler.Binary, cfg.Workspace.Dir)
			return cfg.Validate()
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
