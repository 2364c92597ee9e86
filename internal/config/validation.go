package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"meetingd/internal/history"
	"meetingd/internal/pipe"
	"meetingd/internal/session"
)

// ErrInvalidConfig matches any ValidationErrors via errors.Is.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
	Warning bool
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// IsWarning reports whether the issue is non-fatal.
func (e *ValidationError) IsWarning() bool { return e.Warning }

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for i := range e {
		msgs = append(msgs, e[i].Error())
	}
	return strings.Join(msgs, "; ")
}

// Is makes errors.Is(err, ErrInvalidConfig) true.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Warnings returns only warning-level validation errors.
func (e ValidationErrors) Warnings() ValidationErrors {
	var out ValidationErrors
	for _, v := range e {
		if v.Warning {
			out = append(out, v)
		}
	}
	return out
}

// Errors returns only error-level validation errors.
func (e ValidationErrors) Errors() ValidationErrors {
	var out ValidationErrors
	for _, v := range e {
		if !v.Warning {
			out = append(out, v)
		}
	}
	return out
}

// HasErrors returns true if there are any non-warning errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e.Errors()) > 0
}

// Validate returns the fatal validation errors as ValidationErrors, or nil.
func (c *Config) Validate() error {
	if errs := c.Check().Errors(); len(errs) > 0 {
		return errs
	}
	return nil
}

// Check returns every validation issue, warnings included.
func (c *Config) Check() ValidationErrors {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs ValidationErrors
	errs = append(errs, validateCapture(&c.Capture)...)
	errs = append(errs, validateSync(&c.Sync)...)
	errs = append(errs, validateCache(&c.Cache)...)
	errs = append(errs, validateRemote(&c.Remote)...)
	errs = append(errs, validatePipes(&c.Pipes)...)
	errs = append(errs, validateLLM(&c.LLM)...)
	errs = append(errs, validateStorage(&c.Storage)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateMetrics(&c.Metrics)...)
	return errs
}

func validateCapture(c *CaptureConfig) ValidationErrors {
	var errs ValidationErrors
	if !isValidURL(c.URL) {
		errs = append(errs, ValidationError{Field: "capture.url", Message: fmt.Sprintf("invalid URL: %q", c.URL)})
	}
	if c.BatchLimit < 1 {
		errs = append(errs, *RangeError("capture.batch_limit", 1, "unbounded"))
	}
	switch session.Kind(c.Kind) {
	case session.KindAudio, session.KindOCR, session.KindAll:
	default:
		errs = append(errs, ValidationError{
			Field:   "capture.kind",
			Message: fmt.Sprintf("invalid kind: %s (valid: audio, ocr, all)", c.Kind),
		})
	}
	return errs
}

func validateSync(s *SyncConfig) ValidationErrors {
	var errs ValidationErrors
	if minInterval := history.DefaultPollerConfig().MinInterval; s.Interval.Duration < minInterval {
		errs = append(errs, ValidationError{
			Field:   "sync.interval",
			Message: fmt.Sprintf("interval must be at least %s", minInterval),
		})
	}
	if s.Lookback.Duration <= 0 {
		errs = append(errs, ValidationError{Field: "sync.lookback", Message: "lookback must be positive"})
	}
	if s.Gap.Duration <= 0 {
		errs = append(errs, ValidationError{Field: "sync.gap", Message: "gap must be positive"})
	}
	if s.MinTranscriptLength < 0 {
		errs = append(errs, ValidationError{Field: "sync.min_transcript_length", Message: "cannot be negative"})
	}
	if s.RetainOnStorageFailure < 0 {
		errs = append(errs, ValidationError{Field: "sync.retain_on_storage_failure", Message: "cannot be negative"})
	}
	return errs
}

func validateCache(c *CacheConfig) ValidationErrors {
	var errs ValidationErrors
	if c.TTL.Duration <= 0 {
		errs = append(errs, ValidationError{Field: "cache.ttl", Message: "ttl must be positive"})
	}
	if c.CompressThreshold < 0 {
		errs = append(errs, ValidationError{Field: "cache.compress_threshold", Message: "cannot be negative"})
	}
	return errs
}

func validateRemote(r *RemoteConfig) ValidationErrors {
	var errs ValidationErrors
	if !isValidURL(r.APIURL) {
		errs = append(errs, ValidationError{Field: "remote.api_url", Message: fmt.Sprintf("invalid URL: %q", r.APIURL)})
	}
	if !isValidURL(r.RawURL) {
		errs = append(errs, ValidationError{Field: "remote.raw_url", Message: fmt.Sprintf("invalid URL: %q", r.RawURL)})
	}
	if r.Timeout.Duration <= 0 {
		errs = append(errs, ValidationError{Field: "remote.timeout", Message: "timeout must be positive"})
	}
	if r.Token == "" {
		errs = append(errs, ValidationError{
			Field:   "remote.token",
			Message: "no token set; unauthenticated requests are rate limited",
			Warning: true,
		})
	}
	return errs
}

func validatePipes(p *PipesConfig) ValidationErrors {
	var errs ValidationErrors
	for i, raw := range p.URLs {
		if _, err := pipe.ParseRef(raw); err != nil {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("pipes.urls[%d]", i),
				Message: err.Error(),
				Warning: true,
			})
		}
	}
	for i, ext := range p.Extensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("pipes.extensions[%d]", i),
				Message: fmt.Sprintf("extension %q must start with a dot", ext),
			})
		}
	}
	if p.Concurrency < 1 {
		errs = append(errs, *RangeError("pipes.concurrency", 1, "unbounded"))
	}
	return errs
}

func validateLLM(l *LLMConfig) ValidationErrors {
	var errs ValidationErrors
	if !isValidURL(l.BaseURL) {
		errs = append(errs, ValidationError{Field: "llm.base_url", Message: fmt.Sprintf("invalid URL: %q", l.BaseURL)})
	}
	if l.Model == "" {
		errs = append(errs, *RequiredFieldError("llm.model"))
	}
	if l.Timeout.Duration <= 0 {
		errs = append(errs, ValidationError{Field: "llm.timeout", Message: "timeout must be positive"})
	}
	if l.APIKey == "" {
		errs = append(errs, ValidationError{
			Field:   "llm.api_key",
			Message: "no API key set; summaries and participant detection are unavailable",
			Warning: true,
		})
	}
	return errs
}

func validateStorage(s *StorageConfig) ValidationErrors {
	var errs ValidationErrors
	if s.Path == "" {
		errs = append(errs, *RequiredFieldError("storage.path"))
	}
	if s.MaxValueBytes < 0 {
		errs = append(errs, ValidationError{Field: "storage.max_value_bytes", Message: "cannot be negative"})
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "file path is required when output is 'file' or 'both'",
			})
		}
		if l.MaxSizeMB < 1 {
			errs = append(errs, ValidationError{Field: "logging.max_size_mb", Message: "max size must be at least 1 MB"})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{Field: "logging.max_backups", Message: "max backups cannot be negative"})
	}
	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{Field: "logging.max_age_days", Message: "max age cannot be negative"})
	}
	return errs
}

func validateMetrics(m *MetricsConfig) ValidationErrors {
	if !m.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(m.Listen); err != nil {
		return ValidationErrors{{Field: "metrics.listen", Message: fmt.Sprintf("invalid listen address %q: %v", m.Listen, err)}}
	}
	return nil
}

func isValidURL(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}
