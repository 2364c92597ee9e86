package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
)

// FileRotator is an io.Writer that rotates the log file by size and day.
// Rotated files are renamed with a timestamp suffix and optionally gzipped.
type FileRotator struct {
	path       string
	maxBytes   int64
	maxBackups int
	maxAge     time.Duration
	compress   bool

	mu     sync.Mutex
	file   *os.File
	size   int64
	opened time.Time
	wg     sync.WaitGroup
}

// NewFileRotator opens (or creates) the log file described by cfg.
func NewFileRotator(cfg *Config) (*FileRotator, error) {
	r := &FileRotator{
		path:       cfg.FilePath,
		maxBytes:   cfg.MaxSizeMB * 1024 * 1024,
		maxBackups: cfg.MaxBackups,
		maxAge:     time.Duration(cfg.MaxAgeDays) * 24 * time.Hour,
		compress:   cfg.Compress,
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRotator) open() error {
	file, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	r.file = file
	r.size = info.Size()
	r.opened = time.Now()
	return nil
}

// Write implements io.Writer.
func (r *FileRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err := r.open(); err != nil {
			return 0, err
		}
	}

	if r.needsRotation(int64(len(p))) {
		if err := r.rotate(); err != nil {
			return 0, fmt.Errorf("rotate log: %w", err)
		}
	}

	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *FileRotator) needsRotation(n int64) bool {
	if r.maxBytes > 0 && r.size+n > r.maxBytes {
		return true
	}
	return r.opened.YearDay() != time.Now().YearDay()
}

func (r *FileRotator) rotate() error {
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("close current log: %w", err)
	}
	r.file = nil

	rotated := r.backupName(time.Now())
	if err := os.Rename(r.path, rotated); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rename log file: %w", err)
	}

	if err := r.open(); err != nil {
		return err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if r.compress {
			gzipFile(rotated)
		}
		r.prune()
	}()
	return nil
}

func (r *FileRotator) backupName(t time.Time) string {
	ext := filepath.Ext(r.path)
	stem := strings.TrimSuffix(r.path, ext)
	return fmt.Sprintf("%s-%s%s", stem, t.Format("20060102-150405.000"), ext)
}

// gzipFile replaces path with path.gz. Failures leave the original in place.
func gzipFile(path string) {
	in, err := os.Open(path)
	if err != nil {
		return
	}
	defer in.Close()

	out, err := os.Create(path + ".gz")
	if err != nil {
		return
	}

	gz := gzip.NewWriter(out)
	gz.Name = filepath.Base(path)
	_, copyErr := io.Copy(gz, in)
	closeErr := gz.Close()
	out.Close()

	if copyErr != nil || closeErr != nil {
		os.Remove(path + ".gz")
		return
	}
	os.Remove(path)
}

// Backups returns rotated log files, oldest first.
func (r *FileRotator) Backups() ([]string, error) {
	ext := filepath.Ext(r.path)
	stem := strings.TrimSuffix(r.path, ext)
	matches, err := filepath.Glob(stem + "-*" + ext + "*")
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

func (r *FileRotator) prune() {
	backups, err := r.Backups()
	if err != nil {
		return
	}

	if r.maxBackups > 0 && len(backups) > r.maxBackups {
		for _, path := range backups[:len(backups)-r.maxBackups] {
			os.Remove(path)
		}
		backups = backups[len(backups)-r.maxBackups:]
	}

	if r.maxAge <= 0 {
		return
	}
	cutoff := time.Now().Add(-r.maxAge)
	for _, path := range backups {
		if info, err := os.Stat(path); err == nil && info.ModTime().Before(cutoff) {
			os.Remove(path)
		}
	}
}

// Close waits for pending compression and closes the current file.
func (r *FileRotator) Close() error {
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
