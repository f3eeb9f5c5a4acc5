package source

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/covid-report-etl/internal/fsutil"
)

// Entry is the result of a cache lookup.
type Entry uint8

const (
	EntryMiss Entry = iota
	EntrySnapshot
	// EntryMissing records that the publisher answered "no such file".
	EntryMissing
)

// DiskCache stores one file per report date: mm_dd_yyyy.csv for a body or
// mm_dd_yyyy.404 when the publisher has no report for the date. Files are
// written atomically so a crash never leaves a partial body behind.
type DiskCache struct {
	dir string
}

// NewDiskCache creates dir if needed.
func NewDiskCache(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &DiskCache{dir: dir}, nil
}

// Dir returns the cache directory.
func (c *DiskCache) Dir() string { return c.dir }

// FileName returns the cache file stem for date, e.g. 03_10_2020.
func FileName(date time.Time) string {
	return strings.ToLower(date.Format("01_02_2006"))
}

func (c *DiskCache) snapshotPath(date time.Time) string {
	return filepath.Join(c.dir, FileName(date)+".csv")
}

func (c *DiskCache) markerPath(date time.Time) string {
	return filepath.Join(c.dir, FileName(date)+".404")
}

// Lookup returns the cached body for date, or reports a missing marker or a
// miss. An empty snapshot file is treated as a miss.
func (c *DiskCache) Lookup(date time.Time) (Entry, []byte, error) {
	data, err := os.ReadFile(c.snapshotPath(date))
	switch {
	case err == nil && len(data) > 0:
		return EntrySnapshot, data, nil
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return EntryMiss, nil, fmt.Errorf("read cached snapshot: %w", err)
	}

	if _, err := os.Stat(c.markerPath(date)); err == nil {
		return EntryMissing, nil, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return EntryMiss, nil, fmt.Errorf("stat missing marker: %w", err)
	}
	return EntryMiss, nil, nil
}

// PutSnapshot stores a fetched body.
func (c *DiskCache) PutSnapshot(date time.Time, body []byte) error {
	if err := fsutil.WriteFileAtomic(c.snapshotPath(date), body, 0o644); err != nil {
		return fmt.Errorf("cache snapshot %s: %w", FileName(date), err)
	}
	return nil
}

// PutMissing records that no report exists for date. detail is written into
// the marker for operators.
func (c *DiskCache) PutMissing(date time.Time, detail string) error {
	if err := fsutil.WriteFileAtomic(c.markerPath(date), []byte(detail+"\n"), 0o644); err != nil {
		return fmt.Errorf("cache missing marker %s: %w", FileName(date), err)
	}
	return nil
}

// Evict removes any cached body or marker for date.
func (c *DiskCache) Evict(date time.Time) error {
	var errs []error
	for _, p := range []string{c.snapshotPath(date), c.markerPath(date)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
