package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolateEnv clears every variable ApplyEnvOverrides reads.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, "MEETINGD_") {
			t.Setenv(name, "")
		}
	}
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("MEETINGD_DATA_DIR", t.TempDir())
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	isolateEnv(t)
	cfg := DefaultConfig()

	if cfg.Sync.Interval.Duration != 5*time.Minute {
		t.Errorf("expected interval 5m, got %s", cfg.Sync.Interval)
	}
	if cfg.Sync.Gap.Duration != 5*time.Minute {
		t.Errorf("expected gap 5m, got %s", cfg.Sync.Gap)
	}
	if cfg.Sync.MinTranscriptLength != 200 {
		t.Errorf("expected min transcript length 200, got %d", cfg.Sync.MinTranscriptLength)
	}
	if cfg.Cache.TTL.Duration != time.Hour {
		t.Errorf("expected cache ttl 1h, got %s", cfg.Cache.TTL)
	}
	if cfg.Capture.Kind != "audio" {
		t.Errorf("expected capture kind audio, got %s", cfg.Capture.Kind)
	}
	if !strings.HasPrefix(cfg.Storage.Path, os.Getenv("MEETINGD_DATA_DIR")) {
		t.Errorf("storage path should live under MEETINGD_DATA_DIR: %s", cfg.Storage.Path)
	}
	if len(cfg.Pipes.URLs) == 0 {
		t.Error("expected default pipe URLs")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestDefaultConfigWarnings(t *testing.T) {
	isolateEnv(t)
	warnings := DefaultConfig().Check().Warnings()

	fields := map[string]bool{}
	for _, w := range warnings {
		fields[w.Field] = true
	}
	if !fields["remote.token"] || !fields["llm.api_key"] {
		t.Errorf("expected token and api key warnings, got %v", warnings)
	}
}

func TestLoadNonexistent(t *testing.T) {
	isolateEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Capture.BatchLimit != 1000 {
		t.Errorf("expected default batch limit, got %d", cfg.Capture.BatchLimit)
	}
}

func TestLoadFormats(t *testing.T) {
	isolateEnv(t)

	cases := map[string]string{
		"config.toml": `
[sync]
interval = "2m"
gap = 600
min_transcript_length = 50

[pipes]
urls = ["https://github.com/acme/pipes/tree/main/pipe-a"]
`,
		"config.yaml": `
sync:
  interval: 2m
  gap: 600
  min_transcript_length: 50
pipes:
  urls:
    - https://github.com/acme/pipes/tree/main/pipe-a
`,
		"config.json": `{
  // comments and trailing commas are accepted
  "sync": {"interval": "2m", "gap": 600, "min_transcript_length": 50,},
  "pipes": {"urls": ["https://github.com/acme/pipes/tree/main/pipe-a"]},
}`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(writeFile(t, name, content))
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.Sync.Interval.Duration != 2*time.Minute {
				t.Errorf("interval: got %s", cfg.Sync.Interval)
			}
			if cfg.Sync.Gap.Duration != 10*time.Minute {
				t.Errorf("gap: got %s", cfg.Sync.Gap)
			}
			if cfg.Sync.MinTranscriptLength != 50 {
				t.Errorf("min transcript length: got %d", cfg.Sync.MinTranscriptLength)
			}
			if len(cfg.Pipes.URLs) != 1 || !strings.HasSuffix(cfg.Pipes.URLs[0], "pipe-a") {
				t.Errorf("pipe urls: got %v", cfg.Pipes.URLs)
			}
			// Unset sections keep their defaults.
			if cfg.Cache.TTL.Duration != time.Hour {
				t.Errorf("cache ttl: got %s", cfg.Cache.TTL)
			}
		})
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	isolateEnv(t)
	for name, content := range map[string]string{
		"config.toml": "[sync]\nintervall = \"2m\"\n",
		"config.yaml": "sync:\n  intervall: 2m\n",
		"config.json": `{"sync": {"intervall": "2m"}}`,
	} {
		if _, err := Load(writeFile(t, name, content)); err == nil {
			t.Errorf("%s: expected error for unknown key", name)
		}
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	isolateEnv(t)
	if _, err := Load(writeFile(t, "config.toml", "[sync\ninterval = ")); err == nil {
		t.Error("expected error for invalid TOML")
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	isolateEnv(t)
	_, err := Load(writeFile(t, "config.toml", "[cache]\nttl = \"soon\"\n"))
	if err == nil || !strings.Contains(err.Error(), "soon") {
		t.Errorf("expected invalid duration error, got %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	isolateEnv(t)
	t.Setenv("MEETINGD_CAPTURE_URL", "http://127.0.0.1:4040")
	t.Setenv("MEETINGD_SYNC_INTERVAL", "90s")
	t.Setenv("MEETINGD_BATCH_LIMIT", "250")
	t.Setenv("GITHUB_TOKEN", "ghp_fallback")
	t.Setenv("MEETINGD_LLM_API_KEY", "sk-primary")
	t.Setenv("OPENAI_API_KEY", "sk-fallback")
	t.Setenv("MEETINGD_METRICS_ENABLED", "true")

	cfg, err := Load(writeFile(t, "config.toml", "[capture]\nurl = \"http://file:1\"\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Capture.URL != "http://127.0.0.1:4040" {
		t.Errorf("env should override file: got %s", cfg.Capture.URL)
	}
	if cfg.Sync.Interval.Duration != 90*time.Second {
		t.Errorf("interval: got %s", cfg.Sync.Interval)
	}
	if cfg.Capture.BatchLimit != 250 {
		t.Errorf("batch limit: got %d", cfg.Capture.BatchLimit)
	}
	if cfg.Remote.Token != "ghp_fallback" {
		t.Errorf("token fallback: got %q", cfg.Remote.Token)
	}
	if cfg.LLM.APIKey != "sk-primary" {
		t.Errorf("MEETINGD_LLM_API_KEY should win: got %q", cfg.LLM.APIKey)
	}
	if !cfg.Metrics.Enabled {
		t.Error("metrics should be enabled")
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	isolateEnv(t)
	cfg := DefaultConfig()
	cfg.Capture.Kind = "video"
	cfg.Sync.Interval = D(time.Second)
	cfg.Pipes.Extensions = []string{"js"}
	cfg.Logging.Output = "file"
	cfg.Logging.FilePath = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	want := []string{"capture.kind", "sync.interval", "pipes.extensions[0]", "logging.file_path"}
	for _, field := range want {
		found := false
		for _, v := range verrs {
			if v.Field == field {
				found = true
			}
		}
		if !found {
			t.Errorf("missing error for %s in %v", field, verrs)
		}
	}
	if !verrs.HasErrors() || len(verrs.Warnings()) != 0 {
		t.Errorf("Validate should only return errors: %v", verrs)
	}
}

func TestInvalidPipeURLIsWarning(t *testing.T) {
	isolateEnv(t)
	cfg := DefaultConfig()
	cfg.Pipes.URLs = []string{"not a repo"}

	if err := cfg.Validate(); err != nil {
		t.Errorf("invalid pipe URL should not be fatal: %v", err)
	}
	found := false
	for _, w := range cfg.Check().Warnings() {
		if w.Field == "pipes.urls[0]" {
			found = true
		}
	}
	if !found {
		t.Error("expected warning for pipes.urls[0]")
	}
}

func TestClone(t *testing.T) {
	isolateEnv(t)
	cfg := DefaultConfig()
	clone := cfg.Clone()
	clone.Pipes.URLs[0] = "changed"
	clone.Sync.Gap = D(time.Hour)

	if cfg.Pipes.URLs[0] == "changed" {
		t.Error("clone shares the pipe URL slice")
	}
	if cfg.Sync.Gap.Duration == time.Hour {
		t.Error("clone shares sync config")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	isolateEnv(t)
	for _, name := range []string{"config.toml", "config.yaml", "config.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			cfg := DefaultConfig()
			cfg.Sync.Lookback = D(72 * time.Hour)
			cfg.LLM.Model = "local-model"

			if err := Save(cfg, path); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			info, err := os.Stat(path)
			if err != nil {
				t.Fatalf("stat: %v", err)
			}
			if info.Mode().Perm() != 0o600 {
				t.Errorf("expected mode 0600, got %o", info.Mode().Perm())
			}

			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if loaded.Sync.Lookback.Duration != 72*time.Hour {
				t.Errorf("lookback: got %s", loaded.Sync.Lookback)
			}
			if loaded.LLM.Model != "local-model" {
				t.Errorf("model: got %s", loaded.LLM.Model)
			}
		})
	}
}

func TestLoadOrCreate(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, created, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}
	if !created || cfg == nil {
		t.Fatal("expected config to be created")
	}

	_, created, err = LoadOrCreate(path)
	if err != nil {
		t.Fatalf("second LoadOrCreate failed: %v", err)
	}
	if created {
		t.Error("config should not be created twice")
	}
}

func TestEnsureDirectories(t *testing.T) {
	isolateEnv(t)
	tmp := t.TempDir()
	cfg := DefaultConfig()
	cfg.Storage.Path = filepath.Join(tmp, "data", "meetingd.db")
	cfg.Logging.Output = "file"
	cfg.Logging.FilePath = filepath.Join(tmp, "logs", "a", "meetingd.log")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{filepath.Join(tmp, "data"), filepath.Join(tmp, "logs", "a")} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("directory not created: %s", dir)
		}
	}
}

func TestLoggingConfig(t *testing.T) {
	isolateEnv(t)
	cfg := DefaultConfig()
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "json"

	lc, err := cfg.LoggingConfig()
	if err != nil {
		t.Fatalf("LoggingConfig failed: %v", err)
	}
	if lc.Output != "stderr" || lc.MaxBackups != 5 {
		t.Errorf("unexpected logging config: %+v", lc)
	}

	cfg.Logging.Level = "loud"
	if _, err := cfg.LoggingConfig(); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestSyncOptions(t *testing.T) {
	isolateEnv(t)
	cfg := DefaultConfig()
	cfg.Capture.Kind = "all"
	cfg.Capture.BatchLimit = 42

	opts := cfg.SyncOptions()
	if opts.Kind != "all" || opts.BatchLimit != 42 {
		t.Errorf("unexpected options: %+v", opts)
	}
	if opts.Gap != 5*time.Minute || opts.Lookback != 7*24*time.Hour {
		t.Errorf("unexpected durations: %+v", opts)
	}
}

func TestLoaderWatchReloads(t *testing.T) {
	isolateEnv(t)
	path := writeFile(t, "config.toml", "[sync]\ninterval = \"1m\"\n")

	loader := NewLoader(path)
	defer loader.Close()
	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	changed := make(chan [2]time.Duration, 1)
	loader.OnChange(func(old, new *Config) {
		select {
		case changed <- [2]time.Duration{old.Sync.Interval.Duration, new.Sync.Interval.Duration}:
		default:
		}
	})
	if err := loader.Watch(); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("[sync]\ninterval = \"3m\"\n"), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	select {
	case got := <-changed:
		if got[0] != time.Minute || got[1] != 3*time.Minute {
			t.Errorf("unexpected change %v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
	if loader.Config().Sync.Interval.Duration != 3*time.Minute {
		t.Errorf("loader config not updated: %s", loader.Config().Sync.Interval)
	}
}

func TestLoaderReloadKeepsConfigOnError(t *testing.T) {
	isolateEnv(t)
	path := writeFile(t, "config.toml", "[sync]\ninterval = \"1m\"\n")

	loader := NewLoader(path)
	defer loader.Close()
	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("[sync]\ninterval = \"1s\"\n"), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if err := loader.Reload(); err == nil {
		t.Fatal("expected validation error on reload")
	}
	if loader.Config().Sync.Interval.Duration != time.Minute {
		t.Errorf("config should be unchanged, got %s", loader.Config().Sync.Interval)
	}
}

func TestFindConfigFile(t *testing.T) {
	dir := t.TempDir()
	if got := FindConfigFile(dir); got != "" {
		t.Errorf("expected no config, got %s", got)
	}
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if got := FindConfigFile(dir); got != path {
		t.Errorf("expected %s, got %s", path, got)
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv("MEETINGD_CONFIG", "/etc/meetingd/config.yaml")
	if got := ResolvePath("/tmp/explicit.toml"); got != "/tmp/explicit.toml" {
		t.Errorf("explicit path should win, got %s", got)
	}
	if got := ResolvePath(""); got != "/etc/meetingd/config.yaml" {
		t.Errorf("expected MEETINGD_CONFIG, got %s", got)
	}
}
