package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"meetingd/internal/app"
	"meetingd/internal/config"
	"meetingd/internal/history"
	"meetingd/internal/logging"
	"meetingd/internal/session"
	"meetingd/internal/store"
)

var meetingStart = time.Date(2024, 10, 15, 10, 0, 0, 0, time.UTC)

func seedStore(t *testing.T) store.KV {
	t.Helper()
	var transcript strings.Builder
	transcript.WriteString(session.RenderLine(session.Event{Timestamp: meetingStart, Text: "good morning", Device: session.DeviceInput}))
	transcript.WriteString(session.RenderLine(session.Event{Timestamp: meetingStart.Add(time.Minute), Text: "hi there", Device: session.DeviceOutput}))

	s := session.Session{
		ID:         session.StableID(meetingStart),
		GroupID:    1,
		StartTime:  meetingStart,
		EndTime:    meetingStart.Add(90 * time.Second),
		Transcript: transcript.String(),
	}
	kv := store.NewMemory()
	repo := history.NewRepository(kv, 0)
	if _, err := repo.Update(context.Background(), func([]session.Session) ([]session.Session, error) {
		return []session.Session{s}, nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return kv
}

// execute runs meetingctl against kv and returns stdout.
func execute(t *testing.T, kv store.KV, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("MEETINGD_DATA_DIR", t.TempDir())

	c := newCLI()
	c.build = func(cfg *config.Config, logger *logging.Logger) (*app.App, error) {
		return app.New(cfg, logger, app.WithStore(kv))
	}
	defer c.Close()

	root := newRootCmd(c)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "config.toml")}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestListJSON(t *testing.T) {
	out, err := execute(t, seedStore(t), "", "list", "--format", "json")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	var sessions []session.Session
	if err := json.Unmarshal([]byte(out), &sessions); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if len(sessions) != 1 || !sessions[0].StartTime.Equal(meetingStart) {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}
}

func TestListTable(t *testing.T) {
	out, err := execute(t, store.NewMemory(), "", "list")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(out, "(no meetings)") {
		t.Fatalf("expected empty table marker, got:\n%s", out)
	}
}

func TestRenameAndShow(t *testing.T) {
	kv := seedStore(t)
	prefix := session.StableID(meetingStart)[:8]

	out, err := execute(t, kv, "", "rename", prefix, "Weekly", "sync")
	if err != nil {
		t.Fatalf("rename failed: %v", err)
	}
	if !strings.Contains(out, `"Weekly sync"`) {
		t.Fatalf("unexpected rename output: %s", out)
	}

	out, err = execute(t, kv, "", "show", prefix, "--no-color")
	if err != nil {
		t.Fatalf("show failed: %v", err)
	}
	for _, want := range []string{"Weekly sync", "[you] good morning", "[others] hi there", "00:01:30"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}
}

func TestShowUnknownID(t *testing.T) {
	_, err := execute(t, seedStore(t), "", "show", "zzzz")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestClearRequiresConfirmation(t *testing.T) {
	kv := seedStore(t)
	if _, err := execute(t, kv, "n\n", "clear"); err == nil || err.Error() != "aborted" {
		t.Fatalf("expected abort, got %v", err)
	}
	out, _ := execute(t, kv, "", "list", "--format", "plain")
	if strings.TrimSpace(out) == "" {
		t.Fatal("history should survive an aborted clear")
	}

	if _, err := execute(t, kv, "", "clear", "--yes"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	out, _ = execute(t, kv, "", "list", "--format", "plain")
	if strings.TrimSpace(out) != "" {
		t.Fatalf("expected empty history, got %q", out)
	}
}

func TestSummarizeStreams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Team ", "agreed."} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()
	t.Setenv("MEETINGD_LLM_BASE_URL", srv.URL)
	t.Setenv("MEETINGD_LLM_API_KEY", "sk-test")

	kv := seedStore(t)
	out, err := execute(t, kv, "", "summarize", session.StableID(meetingStart))
	if err != nil {
		t.Fatalf("summarize failed: %v", err)
	}
	if strings.TrimSpace(out) != "Team agreed." {
		t.Fatalf("unexpected streamed output %q", out)
	}

	out, err = execute(t, kv, "", "show", session.StableID(meetingStart), "--json")
	if err != nil {
		t.Fatalf("show failed: %v", err)
	}
	var s session.Session
	if err := json.Unmarshal([]byte(out), &s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.Summary != "Team agreed." {
		t.Fatalf("summary not stored: %+v", s)
	}
}

func TestConfigCheck(t *testing.T) {
	out, err := execute(t, store.NewMemory(), "", "config", "check")
	if err != nil {
		t.Fatalf("config check failed: %v", err)
	}
	if !strings.Contains(out, "ok") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00:00"},
		{90 * time.Second, "00:01:30"},
		{2*time.Hour + 3*time.Second, "02:00:03"},
		{1500 * time.Millisecond, "00:00:02"},
		{-time.Minute, "00:00:00"},
	}
	for _, tc := range cases {
		if got := formatDuration(tc.in); got != tc.want {
			t.Errorf("formatDuration(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestFormatLine(t *testing.T) {
	line := strings.TrimSuffix(session.RenderLine(session.Event{
		Timestamp: meetingStart,
		Text:      "hello",
		Device:    session.DeviceInput,
	}), "\n")
	got := formatLine(line, 80, false)
	want := meetingStart.Local().Format("15:04:05") + " [you] hello"
	if got != want {
		t.Fatalf("formatLine = %q, want %q", got, want)
	}
	if colored := formatLine(line, 80, true); !strings.Contains(colored, ansiYou+"[you]"+ansiReset) {
		t.Fatalf("expected colored speaker label: %q", colored)
	}
}

func TestCacheClear(t *testing.T) {
	kv := seedStore(t)
	ctx := context.Background()
	if err := kv.Set(ctx, store.CachePrefix+"https://api/repos/a/b", []byte("x")); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, kv, "", "cache", "clear")
	if err != nil {
		t.Fatalf("cache clear failed: %v", err)
	}
	if !strings.Contains(out, "removed 1 cached entries") {
		t.Fatalf("unexpected output: %s", out)
	}
	if _, ok, _ := kv.Get(ctx, store.KeySessions); !ok {
		t.Fatal("sessions should survive a cache clear")
	}
}
