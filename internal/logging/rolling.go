package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

const (
	filePrefix = "stderrout."
	fileSuffix = ".log"
	dateLayout = "2006_01_02"
)

// RollingFile is a zapcore.WriteSyncer that starts a new date-stamped file
// (stderrout.yyyy_mm_dd.log) each day and removes files older than the
// retention window.
type RollingFile struct {
	mu     sync.Mutex
	fs     afero.Fs
	dir    string
	retain int
	now    func() time.Time

	day  string
	file afero.File
}

// NewRollingFile creates dir if needed and opens today's file for appending.
// Days are counted in loc; nil means the local time zone.
func NewRollingFile(fs afero.Fs, dir string, retainDays int, loc *time.Location) (*RollingFile, error) {
	return newRollingFile(fs, dir, retainDays, loc, time.Now)
}

func newRollingFile(fs afero.Fs, dir string, retainDays int, loc *time.Location, clock func() time.Time) (*RollingFile, error) {
	if loc == nil {
		loc = time.Local
	}
	now := func() time.Time { return clock().In(loc) }
	if err := fs.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", dir, err)
	}
	r := &RollingFile{fs: fs, dir: dir, retain: retainDays, now: now}
	if err := r.rollLocked(r.now()); err != nil {
		return nil, err
	}
	return r, nil
}

// Path returns the file currently written to.
func (r *RollingFile) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pathFor(r.day)
}

func (r *RollingFile) pathFor(day string) string {
	return filepath.Join(r.dir, filePrefix+day+fileSuffix)
}

// Write implements io.Writer, rolling to a new file on day change.
func (r *RollingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Format(dateLayout) != r.day {
		if err := r.rollLocked(now); err != nil {
			return 0, err
		}
	}
	n, err := r.file.Write(p)
	if err != nil {
		return n, fmt.Errorf("write log file: %w", err)
	}
	return n, nil
}

// Sync flushes the current file.
func (r *RollingFile) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	if err := r.file.Sync(); err != nil {
		return fmt.Errorf("sync log file: %w", err)
	}
	return nil
}

// Close closes the current file.
func (r *RollingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func (r *RollingFile) rollLocked(now time.Time) error {
	day := now.Format(dateLayout)
	f, err := r.fs.OpenFile(r.pathFor(day), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	if r.file != nil {
		_ = r.file.Close()
	}
	r.file = f
	r.day = day
	r.removeExpiredLocked(now)
	return nil
}

// removeExpiredLocked is best effort; a file that cannot be removed is
// retried on the next roll.
func (r *RollingFile) removeExpiredLocked(now time.Time) {
	entries, err := afero.ReadDir(r.fs, r.dir)
	if err != nil {
		return
	}
	cutoff := now.AddDate(0, 0, -r.retain)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
		day, err := time.ParseInLocation(dateLayout, stamp, now.Location())
		if err != nil {
			continue
		}
		if day.Before(cutoff) {
			_ = r.fs.Remove(filepath.Join(r.dir, name))
		}
	}
}
