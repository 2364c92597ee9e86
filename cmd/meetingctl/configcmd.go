package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"meetingd/internal/config"
)

func newConfigCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}

	check := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and print warnings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ResolvePath(c.configPath)
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config: %s\n", path)
			issues := cfg.Check()
			for _, w := range issues.Warnings() {
				fmt.Fprintf(out, "warning: %s\n", w.Error())
			}
			if errs := issues.Errors(); len(errs) > 0 {
				for _, e := range errs {
					fmt.Fprintf(out, "error: %s\n", e.Error())
				}
				return fmt.Errorf("%d configuration errors", len(errs))
			}
			fmt.Fprintln(out, "ok")
			return nil
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file if none exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ResolvePath(c.configPath)
			_, created, err := config.LoadOrCreate(path)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", path)
			}
			return nil
		},
	}

	cmd.AddCommand(check, initCmd)
	return cmd
}
