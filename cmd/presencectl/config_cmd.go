package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/danmuck/presencectl/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage presencectl configuration files",
	}
	cmd.AddCommand(newConfigInitCommand(a), newConfigValidateCommand(a))
	return cmd
}

func newConfigInitCommand(a *app) *cobra.Command {
	var outPath string
	var force bool
	var stdout bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if stdout && outPath != "" {
				return fmt.Errorf("--stdout and --out are mutually exclusive")
			}
			starter := config.StarterConfig()
			starter.ClientID = a.cfg.ClientID
			if stdout {
				text, err := config.Template(starter)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), text)
				return nil
			}
			if outPath == "" {
				outPath = defaultConfigPath()
			}
			if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
				return fmt.Errorf("create config dir: %w", err)
			}
			if err := config.WriteTemplate(outPath, starter, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote config template to %s\n", outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", fmt.Sprintf("output path (defaults to %s)", defaultConfigPath()))
	cmd.Flags().BoolVar(&force, "force", false, "overwrite the target file if it already exists")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "print the config to stdout instead of writing a file")
	return cmd
}

func newConfigValidateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate a configuration file merged with environment and flags",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			path := a.configPath
			if len(args) == 1 {
				loaded, err := config.Load(args[0])
				if err != nil {
					return err
				}
				config.ApplyEnv(&loaded)
				if err := a.applyFlags(cmd.Flags(), &loaded); err != nil {
					return err
				}
				cfg, path = loaded, args[0]
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if path == "" {
				path = "defaults"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "validated %s (client_id=%s transport=%s)\n", path, cfg.ClientID, cfg.Transport)
			return nil
		},
	}
}
