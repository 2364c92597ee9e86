package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"meetingd/internal/pipe"
	"meetingd/internal/session"
)

const (
	ansiReset  = "\033[0m"
	ansiDim    = "\033[2m"
	ansiYou    = "\033[36m"
	ansiOthers = "\033[33m"
)

func writeSessions(w io.Writer, sessions []session.Session, format string) error {
	switch strings.ToLower(format) {
	case "", "table":
		return writeSessionsTable(w, sessions)
	case "plain":
		for _, s := range sessions {
			if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				s.ID, s.StartTime.Local().Format(time.RFC3339), formatDuration(s.Duration()),
				s.TranscriptLength(), displayName(s)); err != nil {
				return err
			}
		}
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sessions)
	case "jsonl":
		enc := json.NewEncoder(w)
		for _, s := range sessions {
			if err := enc.Encode(s); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeSessionsTable(w io.Writer, sessions []session.Session) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignLeft},
		{Number: 3, Align: text.AlignCenter},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignLeft, WidthMax: 60},
	})
	tw.AppendHeader(table.Row{"ID", "Started", "Duration", "Chars", "Name"})
	for _, s := range sessions {
		tw.AppendRow(table.Row{
			shortID(s.ID),
			s.StartTime.Local().Format("2006-01-02 15:04"),
			formatDuration(s.Duration()),
			s.TranscriptLength(),
			displayName(s),
		})
	}
	if len(sessions) == 0 {
		tw.AppendRow(table.Row{"-", "(no meetings)", "-", 0, "-"})
	}
	tw.Render()
	return nil
}

func writeSession(w io.Writer, s session.Session, width int, color bool) {
	writeKV(w, "ID", s.ID)
	writeKV(w, "Name", displayName(s))
	writeKV(w, "Started", s.StartTime.Local().Format(time.RFC1123))
	writeKV(w, "Ended", s.EndTime.Local().Format(time.RFC1123))
	writeKV(w, "Duration", formatDuration(s.Duration()))
	if s.Participants != "" {
		writeKV(w, "Participants", s.Participants)
	}
	if s.Summary != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, colorize(color, ansiDim, "Summary"))
		fmt.Fprintln(w, text.WrapSoft(s.Summary, width))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, colorize(color, ansiDim, "Transcript"))
	for _, line := range s.Lines() {
		fmt.Fprintln(w, formatLine(line, width, color))
	}
}

func writeKV(w io.Writer, label, value string) {
	fmt.Fprintf(w, "%-13s %s\n", label+":", value)
}

// formatLine shortens the line timestamp to local wall-clock time, colors
// the speaker label and wraps the text to width.
func formatLine(line string, width int, color bool) string {
	ts, rest, ok := strings.Cut(line, " ")
	if !ok {
		return line
	}
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		ts = t.Local().Format("15:04:05")
	}
	label, body, ok := strings.Cut(rest, " ")
	if !ok {
		label, body = rest, ""
	}
	switch label {
	case "[you]":
		label = colorize(color, ansiYou, label)
	case "[others]":
		label = colorize(color, ansiOthers, label)
	}
	prefix := colorize(color, ansiDim, ts) + " " + label + " "
	indent := strings.Repeat(" ", len(ts)+1)
	wrapped := text.WrapSoft(body, max(width-len(ts)-12, 20))
	return prefix + strings.ReplaceAll(wrapped, "\n", "\n"+indent)
}

func writeDescriptors(w io.Writer, outcomes []pipe.Outcome, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(pipe.Descriptors(outcomes))
	case "", "table":
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 5, WidthMax: 60},
	})
	tw.AppendHeader(table.Row{"Name", "Author", "Stars", "Version", "Description"})
	for _, o := range outcomes {
		if o.Err != nil {
			tw.AppendRow(table.Row{o.Ref, "-", "-", "-", "error: " + o.Err.Error()})
			continue
		}
		d := o.Descriptor
		tw.AppendRow(table.Row{d.Name, d.Author, d.StarCount, orDash(d.LatestVersion), d.ShortDescription})
	}
	if len(outcomes) == 0 {
		tw.AppendRow(table.Row{"(no pipes)", "-", "-", "-", "-"})
	}
	tw.Render()
	return nil
}

func writeDescriptor(w io.Writer, d pipe.Descriptor) {
	writeKV(w, "Name", d.Name)
	writeKV(w, "Author", d.Author)
	writeKV(w, "Profile", d.AuthorProfileURL)
	writeKV(w, "Source", d.SourceURL)
	writeKV(w, "Stars", strconv.Itoa(d.StarCount))
	writeKV(w, "Version", orDash(d.LatestVersion))
	writeKV(w, "Updated", d.LastUpdated.Local().Format(time.RFC1123))
	if d.MainFileURL != "" {
		writeKV(w, "Main file", d.MainFileURL)
	}
	if d.ShortDescription != "" {
		writeKV(w, "Description", d.ShortDescription)
	}
}

func displayName(s session.Session) string {
	if s.Name != "" {
		return s.Name
	}
	return "(unnamed)"
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "00:00:00"
	}
	secs := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}

func colorize(enabled bool, code, s string) string {
	if !enabled || s == "" {
		return s
	}
	return code + s + ansiReset
}

// outputWidth returns the terminal width of out, then $COLUMNS, then 80.
func outputWidth(out io.Writer) int {
	if f, ok := out.(*os.File); ok {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			return w
		}
	}
	if v, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && v > 0 {
		return v
	}
	return 80
}

func useColor(out io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
