package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"meetingd/internal/history"
)

func newSyncCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Fetch new capture events and merge them into the history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.App(cmd)
			if err != nil {
				return err
			}
			res, err := a.Syncer.Sync(cmd.Context())
			if err != nil && !history.IsStorageDegraded(err) {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fetched %d events since %s: %d added, %d extended, %d meetings\n",
				res.Events, res.FetchStart.Local().Format("2006-01-02 15:04"), res.Added, res.Extended, len(res.Sessions))
			return err
		},
	}
}

func newListCmd(c *cli) *cobra.Command {
	var (
		format string
		limit  int
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List meetings, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.App(cmd)
			if err != nil {
				return err
			}
			sessions, err := a.Syncer.List(cmd.Context())
			if err != nil {
				return err
			}
			if limit > 0 && len(sessions) > limit {
				sessions = sessions[:limit]
			}
			return writeSessions(cmd.OutOrStdout(), sessions, format)
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "output format: table, plain, json, or jsonl")
	cmd.Flags().IntVar(&limit, "limit", 0, "show at most this many meetings (0 means no limit)")
	return cmd
}

func newShowCmd(c *cli) *cobra.Command {
	var (
		asJSON  bool
		noColor bool
	)
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a meeting and its transcript",
		Long:  "Show a meeting. The ID may be abbreviated to any unique prefix.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.App(cmd)
			if err != nil {
				return err
			}
			s, err := a.Syncer.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(s)
			}
			writeSession(out, s, outputWidth(out), !noColor && useColor(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the meeting as JSON")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
	return cmd
}

func newClearCmd(c *cli) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the whole meeting history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				fmt.Fprint(cmd.ErrOrStderr(), "delete all meetings? [y/N] ")
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
					return errors.New("aborted")
				}
			}
			a, err := c.App(cmd)
			if err != nil {
				return err
			}
			if err := a.Syncer.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "meeting history cleared")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newSummarizeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "summarize <id>",
		Short: "Generate and store a summary, streaming it as it is written",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.App(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, err = a.Enricher.Summarize(cmd.Context(), args[0], func(delta string) {
				fmt.Fprint(out, delta)
			})
			fmt.Fprintln(out)
			return err
		},
	}
}

func newParticipantsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "participants <id>",
		Short: "Identify and store the participants of a meeting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.App(cmd)
			if err != nil {
				return err
			}
			s, err := a.Enricher.IdentifyParticipants(cmd.Context(), args[0])
			if s.Participants != "" {
				fmt.Fprintln(cmd.OutOrStdout(), s.Participants)
			}
			return err
		},
	}
}

func newRenameCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Set the display name of a meeting",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.App(cmd)
			if err != nil {
				return err
			}
			s, err := a.Enricher.Rename(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s renamed to %q\n", shortID(s.ID), s.Name)
			return nil
		},
	}
}
