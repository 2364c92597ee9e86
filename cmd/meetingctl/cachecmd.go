package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage cached repository metadata",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.App(cmd)
			if err != nil {
				return err
			}
			n, err := a.Cache.Purge(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d cached entries\n", n)
			return nil
		},
	})
	return cmd
}
