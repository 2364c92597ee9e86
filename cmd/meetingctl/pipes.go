package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPipesCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipes",
		Short: "Manage the pipe catalog",
	}
	cmd.AddCommand(
		newPipesListCmd(c),
		newPipesAddCmd(c),
		newPipesRemoveCmd(c),
		newPipesResolveCmd(c),
		newPipesRefreshCmd(c),
	)
	return cmd
}

func newPipesListCmd(c *cli) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Resolve and list every pipe in the catalog",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.App(cmd)
			if err != nil {
				return err
			}
			outcomes, err := a.Catalog.List(cmd.Context())
			if err != nil {
				return err
			}
			return writeDescriptors(cmd.OutOrStdout(), outcomes, format)
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "output format: table or json")
	return cmd
}

func newPipesAddCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "add <url>",
		Short: "Resolve a repository URL and add it to the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.App(cmd)
			if err != nil {
				return err
			}
			d, err := a.Catalog.Add(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", d.Name)
			return nil
		},
	}
}

func newPipesRemoveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <url>",
		Aliases: []string{"rm"},
		Short:   "Remove a repository URL from the catalog",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.App(cmd)
			if err != nil {
				return err
			}
			if err := a.Catalog.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}
}

func newPipesResolveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <url>",
		Short: "Resolve a repository URL without changing the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.App(cmd)
			if err != nil {
				return err
			}
			d, err := a.Resolver.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			writeDescriptor(cmd.OutOrStdout(), d)
			return nil
		},
	}
}

func newPipesRefreshCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <url>",
		Short: "Drop cached metadata for a repository URL and resolve it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.App(cmd)
			if err != nil {
				return err
			}
			d, err := a.Catalog.Refresh(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			writeDescriptor(cmd.OutOrStdout(), d)
			return nil
		},
	}
}
