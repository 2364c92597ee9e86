// Package config handles configuration loading and validation for meetingd.
//
// Configuration is read from TOML, YAML or JSON-with-comments files, layered
// over DefaultConfig, and then overridden from MEETINGD_* environment
// variables. A Loader watches the file and reloads it on change.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"meetingd/internal/cache"
	"meetingd/internal/capture"
	"meetingd/internal/history"
	"meetingd/internal/llm"
	"meetingd/internal/logging"
	"meetingd/internal/pipe"
	"meetingd/internal/session"
)

// Version is the current configuration schema version.
const Version = 1

// Duration is a time.Duration that reads and writes as a Go duration string
// ("5m", "1h30m") in every supported format.
type Duration struct {
	time.Duration
}

// D wraps d as a Duration.
func D(d time.Duration) Duration { return Duration{d} }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. A bare integer is
// read as seconds.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		d.Duration = 0
		return nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		d.Duration = time.Duration(secs) * time.Second
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

// UnmarshalJSON accepts a duration string or a number of seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return d.UnmarshalText([]byte(s))
	}
	var secs int64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("invalid duration %s", data)
	}
	d.Duration = time.Duration(secs) * time.Second
	return nil
}

// Config is the complete meetingd configuration.
type Config struct {
	Version int `toml:"version" json:"version" yaml:"version"`

	Capture CaptureConfig `toml:"capture" json:"capture" yaml:"capture"`
	Sync    SyncConfig    `toml:"sync" json:"sync" yaml:"sync"`
	Cache   CacheConfig   `toml:"cache" json:"cache" yaml:"cache"`
	Remote  RemoteConfig  `toml:"remote" json:"remote" yaml:"remote"`
	Pipes   PipesConfig   `toml:"pipes" json:"pipes" yaml:"pipes"`
	LLM     LLMConfig     `toml:"llm" json:"llm" yaml:"llm"`
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`

	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// CaptureConfig points at the local capture service.
type CaptureConfig struct {
	URL        string `toml:"url" json:"url" yaml:"url"`
	BatchLimit int    `toml:"batch_limit" json:"batch_limit" yaml:"batch_limit"`
	// Kind is "audio", "ocr" or "all".
	Kind string `toml:"kind" json:"kind" yaml:"kind"`
}

// SyncConfig controls meeting history synchronization.
type SyncConfig struct {
	Interval               Duration `toml:"interval" json:"interval" yaml:"interval"`
	Lookback               Duration `toml:"lookback" json:"lookback" yaml:"lookback"`
	Gap                    Duration `toml:"gap" json:"gap" yaml:"gap"`
	MinTranscriptLength    int      `toml:"min_transcript_length" json:"min_transcript_length" yaml:"min_transcript_length"`
	RetainOnStorageFailure int      `toml:"retain_on_storage_failure" json:"retain_on_storage_failure" yaml:"retain_on_storage_failure"`
}

// CacheConfig controls the remote response cache.
type CacheConfig struct {
	TTL               Duration `toml:"ttl" json:"ttl" yaml:"ttl"`
	CompressThreshold int      `toml:"compress_threshold" json:"compress_threshold" yaml:"compress_threshold"`
}

// RemoteConfig configures access to the repository host.
type RemoteConfig struct {
	APIURL    string   `toml:"api_url" json:"api_url" yaml:"api_url"`
	RawURL    string   `toml:"raw_url" json:"raw_url" yaml:"raw_url"`
	Token     string   `toml:"token" json:"token" yaml:"token"`
	Timeout   Duration `toml:"timeout" json:"timeout" yaml:"timeout"`
	UserAgent string   `toml:"user_agent" json:"user_agent" yaml:"user_agent"`
}

// PipesConfig configures pipe descriptor resolution.
type PipesConfig struct {
	URLs        []string `toml:"urls" json:"urls" yaml:"urls"`
	Extensions  []string `toml:"extensions" json:"extensions" yaml:"extensions"`
	Concurrency int      `toml:"concurrency" json:"concurrency" yaml:"concurrency"`
}

// LLMConfig configures the chat completion endpoint used for enrichment.
type LLMConfig struct {
	BaseURL            string   `toml:"base_url" json:"base_url" yaml:"base_url"`
	APIKey             string   `toml:"api_key" json:"api_key" yaml:"api_key"`
	Model              string   `toml:"model" json:"model" yaml:"model"`
	SummaryPrompt      string   `toml:"summary_prompt" json:"summary_prompt" yaml:"summary_prompt"`
	ParticipantsPrompt string   `toml:"participants_prompt" json:"participants_prompt" yaml:"participants_prompt"`
	Timeout            Duration `toml:"timeout" json:"timeout" yaml:"timeout"`
}

// StorageConfig locates the key-value store.
type StorageConfig struct {
	// Path is the SQLite database file. ":memory:" keeps state in process.
	Path          string `toml:"path" json:"path" yaml:"path"`
	MaxValueBytes int    `toml:"max_value_bytes" json:"max_value_bytes" yaml:"max_value_bytes"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string `toml:"level" json:"level" yaml:"level"`
	Format     string `toml:"format" json:"format" yaml:"format"`
	Output     string `toml:"output" json:"output" yaml:"output"`
	FilePath   string `toml:"file_path" json:"file_path" yaml:"file_path"`
	MaxSizeMB  int64  `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	Compress   bool   `toml:"compress" json:"compress" yaml:"compress"`
}

// MetricsConfig configures the Prometheus text endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Listen  string `toml:"listen" json:"listen" yaml:"listen"`
}

// MeetingdDir returns the base data directory, honoring MEETINGD_DATA_DIR.
func MeetingdDir() string {
	if dir := os.Getenv("MEETINGD_DATA_DIR"); dir != "" {
		return dir
	}
	return PlatformDataDir()
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	dir := MeetingdDir()
	return &Config{
		Version: Version,
		Capture: CaptureConfig{
			URL:        capture.DefaultURL,
			BatchLimit: capture.DefaultBatchLimit,
			Kind:       string(session.KindAudio),
		},
		Sync: SyncConfig{
			Interval:               D(history.DefaultPollerConfig().Interval),
			Lookback:               D(history.DefaultLookback),
			Gap:                    D(session.DefaultGap),
			MinTranscriptLength:    session.DefaultMinTranscriptLength,
			RetainOnStorageFailure: history.DefaultRetainOnStorageFailure,
		},
		Cache: CacheConfig{
			TTL:               D(cache.DefaultTTL),
			CompressThreshold: cache.DefaultCompressThreshold,
		},
		Remote: RemoteConfig{
			APIURL:    pipe.DefaultAPIURL,
			RawURL:    pipe.DefaultRawURL,
			Timeout:   D(30 * time.Second),
			UserAgent: "meetingd",
		},
		Pipes: PipesConfig{
			URLs:        append([]string(nil), pipe.DefaultURLs...),
			Extensions:  append([]string(nil), pipe.DefaultExtensions...),
			Concurrency: pipe.DefaultConcurrency,
		},
		LLM: LLMConfig{
			BaseURL:            llm.DefaultBaseURL,
			Model:              llm.DefaultModel,
			SummaryPrompt:      history.DefaultSummaryPrompt,
			ParticipantsPrompt: history.DefaultParticipantsPrompt,
			Timeout:            D(2 * time.Minute),
		},
		Storage: StorageConfig{
			Path:          filepath.Join(dir, "meetingd.db"),
			MaxValueBytes: 16 << 20,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(PlatformLogDir(), "meetingd.log"),
			MaxSizeMB:  50,
			MaxAgeDays: 14,
			MaxBackups: 5,
			Compress:   true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9464",
		},
	}
}

// Load reads the configuration at path over DefaultConfig. The format is
// chosen by extension; unknown extensions are read as TOML. A missing file
// yields the defaults. Environment overrides are applied but the result is
// not validated.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		cfg.ApplyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := decode(path, data, cfg); err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("parse JSON config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("parse YAML config %s: %w", path, err)
		}
	default:
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return fmt.Errorf("parse TOML config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("parse TOML config %s: unknown key %q", path, undecoded[0].String())
		}
	}
	return nil
}

// ApplyEnvOverrides applies MEETINGD_* environment variables. Secrets also
// fall back to GITHUB_TOKEN and OPENAI_API_KEY.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	setString := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}
	setInt := func(dst *int, key string) {
		if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
			*dst = v
		}
	}
	setDuration := func(dst *Duration, key string) {
		if v := os.Getenv(key); v != "" {
			var d Duration
			if d.UnmarshalText([]byte(v)) == nil {
				*dst = d
			}
		}
	}

	setString(&c.Capture.URL, "MEETINGD_CAPTURE_URL")
	setString(&c.Capture.Kind, "MEETINGD_CAPTURE_KIND")
	setInt(&c.Capture.BatchLimit, "MEETINGD_BATCH_LIMIT")

	setDuration(&c.Sync.Interval, "MEETINGD_SYNC_INTERVAL")
	setDuration(&c.Sync.Lookback, "MEETINGD_SYNC_LOOKBACK")
	setDuration(&c.Sync.Gap, "MEETINGD_SYNC_GAP")
	setInt(&c.Sync.MinTranscriptLength, "MEETINGD_MIN_TRANSCRIPT_LENGTH")

	setDuration(&c.Cache.TTL, "MEETINGD_CACHE_TTL")

	setString(&c.Remote.APIURL, "MEETINGD_API_URL")
	setString(&c.Remote.RawURL, "MEETINGD_RAW_URL")
	setString(&c.Remote.Token, "MEETINGD_GITHUB_TOKEN", "GITHUB_TOKEN")

	setString(&c.LLM.BaseURL, "MEETINGD_LLM_BASE_URL")
	setString(&c.LLM.Model, "MEETINGD_LLM_MODEL")
	setString(&c.LLM.APIKey, "MEETINGD_LLM_API_KEY", "OPENAI_API_KEY")

	setString(&c.Storage.Path, "MEETINGD_STORAGE_PATH")

	setString(&c.Logging.Level, "MEETINGD_LOG_LEVEL")
	setString(&c.Logging.Format, "MEETINGD_LOG_FORMAT")
	setString(&c.Logging.Output, "MEETINGD_LOG_OUTPUT")
	setString(&c.Logging.FilePath, "MEETINGD_LOG_FILE")

	setString(&c.Metrics.Listen, "MEETINGD_METRICS_LISTEN")
	if v := os.Getenv("MEETINGD_METRICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Metrics.Enabled = b
		}
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := &Config{
		Version: c.Version,
		Capture: c.Capture,
		Sync:    c.Sync,
		Cache:   c.Cache,
		Remote:  c.Remote,
		Pipes:   c.Pipes,
		LLM:     c.LLM,
		Storage: c.Storage,
		Logging: c.Logging,
		Metrics: c.Metrics,
	}
	out.Pipes.URLs = append([]string(nil), c.Pipes.URLs...)
	out.Pipes.Extensions = append([]string(nil), c.Pipes.Extensions...)
	return out
}

// EnsureDirectories creates the directories the storage and log files live in.
func (c *Config) EnsureDirectories() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var dirs []string
	if c.Storage.Path != "" && c.Storage.Path != ":memory:" {
		dirs = append(dirs, filepath.Dir(c.Storage.Path))
	}
	switch strings.ToLower(c.Logging.Output) {
	case "file", "both":
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// LoggingConfig converts the logging section for logging.New.
func (c *Config) LoggingConfig() (*logging.Config, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Logging.Format)
	if err != nil {
		return nil, err
	}
	out := logging.DefaultConfig()
	out.Level = level
	out.Format = format
	out.Output = c.Logging.Output
	out.FilePath = c.Logging.FilePath
	out.MaxSizeMB = c.Logging.MaxSizeMB
	out.MaxAgeDays = c.Logging.MaxAgeDays
	out.MaxBackups = c.Logging.MaxBackups
	out.Compress = c.Logging.Compress
	return out, nil
}

// SyncOptions converts the sync and capture sections for the history syncer.
func (c *Config) SyncOptions() history.Options {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return history.Options{
		Lookback:            c.Sync.Lookback.Duration,
		Gap:                 c.Sync.Gap.Duration,
		MinTranscriptLength: c.Sync.MinTranscriptLength,
		BatchLimit:          c.Capture.BatchLimit,
		Kind:                session.Kind(c.Capture.Kind),
	}
}
