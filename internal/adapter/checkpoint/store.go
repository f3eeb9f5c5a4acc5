// Package checkpoint persists the accumulated table so an interrupted
// ingestion resumes without re-merging any date.
//
// A checkpoint directory holds a manifest (checkpoint.json) and one table
// file (table-NNNNNN.csv) whose header is the canonical schema followed by
// report_date. The manifest records the table file's committed length; it is
// replaced atomically after the table data is synced, so it is the commit
// point. Bytes past the committed length are from an interrupted commit and
// are ignored on load and truncated on the next append.
package checkpoint

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/covid-report-etl/internal/domain"
	"github.com/couchcryptid/covid-report-etl/internal/fsutil"
)

const (
	manifestName    = "checkpoint.json"
	lockName        = "ingest.lock"
	manifestVersion = 1
)

type manifest struct {
	Version    int            `json:"version"`
	Generation int            `json:"generation"`
	TableFile  string         `json:"table_file,omitempty"`
	TableSize  int64          `json:"table_size"`
	Rows       int            `json:"rows"`
	LastMerged string         `json:"last_merged,omitempty"`
	Merged     []string       `json:"merged"`
	Columns    []columnRecord `json:"columns"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

type columnRecord struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// Store reads and writes checkpoints in one directory. A Store is used by a
// single ingestion at a time; see Lock.
type Store struct {
	dir    string
	state  manifest
	logger *slog.Logger
}

// Open prepares dir for checkpoints. Call Load before Commit.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, storageErr("create checkpoint dir", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Lock takes the directory's ingest lock. Locks older than ttl are treated
// as abandoned by a crashed process.
func (s *Store) Lock(ttl time.Duration) (*fsutil.Lock, error) {
	lock, err := fsutil.AcquireLock(filepath.Join(s.dir, lockName), ttl)
	if err != nil {
		return nil, fmt.Errorf("checkpoint lock: %w", err)
	}
	return lock, nil
}

// Load restores the last committed table. A directory with no manifest
// yields an empty table.
func (s *Store) Load() (*domain.Table, error) {
	data, err := os.ReadFile(s.path(manifestName))
	if errors.Is(err, fs.ErrNotExist) {
		s.state = manifest{Version: manifestVersion}
		s.cleanup()
		return domain.NewTable(), nil
	}
	if err != nil {
		return nil, storageErr("read manifest", err)
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, storageErr("decode manifest", err)
	}
	if m.Version != manifestVersion {
		return nil, storageErr("manifest", fmt.Errorf("unsupported version %d", m.Version))
	}

	schema, err := m.schema()
	if err != nil {
		return nil, storageErr("manifest schema", err)
	}
	dates := make([]time.Time, 0, len(m.Merged))
	for _, d := range m.Merged {
		t, err := time.Parse(domain.ISODateLayout, d)
		if err != nil {
			return nil, storageErr("manifest merged dates", err)
		}
		dates = append(dates, t)
	}

	var rows []domain.Row
	if m.TableFile != "" {
		rows, err = s.readTable(m.TableFile, m.TableSize, schema)
		if err != nil {
			return nil, err
		}
	}
	if len(rows) != m.Rows {
		return nil, storageErr("table", fmt.Errorf("read %d rows, manifest records %d", len(rows), m.Rows))
	}

	table, err := domain.RestoreTable(schema, rows, dates)
	if err != nil {
		return nil, storageErr("restore", err)
	}
	s.state = m
	s.cleanup()
	s.logger.Info("checkpoint loaded",
		"dir", s.dir, "rows", m.Rows, "dates", len(m.Merged), "columns", schema.Len(), "last_merged", m.LastMerged)
	return table, nil
}

// Commit persists table after one date was merged. added are the rows that
// merge appended; when the schema did not change they are appended to the
// current table file, otherwise a new table file is written in full.
func (s *Store) Commit(table *domain.Table, added []domain.Row, schemaChanged bool) error {
	next := s.state
	next.Version = manifestVersion
	schema := table.Schema()

	switch {
	case schemaChanged || next.TableFile == "":
		next.Generation++
		next.TableFile = fmt.Sprintf("table-%06d.csv", next.Generation)
		size, err := s.writeTable(next.TableFile, schema, table.Rows())
		if err != nil {
			return err
		}
		next.TableSize = size
	case len(added) > 0:
		size, err := s.appendRows(next.TableFile, next.TableSize, added)
		if err != nil {
			return err
		}
		next.TableSize = size
	}

	next.Rows = table.Len()
	next.Columns = columnsOf(schema)
	next.Merged = next.Merged[:0:0]
	for _, d := range table.MergedDates() {
		next.Merged = append(next.Merged, d.Format(domain.ISODateLayout))
	}
	next.LastMerged = ""
	if last, ok := table.LastMerged(); ok {
		next.LastMerged = last.Format(domain.ISODateLayout)
	}
	next.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return storageErr("encode manifest", err)
	}
	if err := fsutil.WriteFileAtomic(s.path(manifestName), data, 0o644); err != nil {
		return storageErr("write manifest", err)
	}

	prev := s.state.TableFile
	s.state = next
	if prev != "" && prev != next.TableFile {
		if err := os.Remove(s.path(prev)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("remove superseded table file", "error", err, "file", prev)
		}
	}
	return nil
}

func (s *Store) writeTable(name string, schema domain.Schema, rows []domain.Row) (int64, error) {
	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.Write(header(schema)); err != nil {
		return 0, storageErr("encode table", err)
	}
	for _, r := range rows {
		if err := w.Write(record(r)); err != nil {
			return 0, storageErr("encode table", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, storageErr("encode table", err)
	}
	if err := fsutil.WriteFileAtomic(s.path(name), []byte(b.String()), 0o644); err != nil {
		return 0, storageErr("write table", err)
	}
	return int64(b.Len()), nil
}

func (s *Store) appendRows(name string, committed int64, rows []domain.Row) (int64, error) {
	f, err := os.OpenFile(s.path(name), os.O_WRONLY, 0o644)
	if err != nil {
		return 0, storageErr("open table", err)
	}
	defer f.Close()

	// Drop anything an interrupted commit left past the committed length.
	if err := f.Truncate(committed); err != nil {
		return 0, storageErr("truncate table", err)
	}
	if _, err := f.Seek(committed, io.SeekStart); err != nil {
		return 0, storageErr("seek table", err)
	}

	bw := bufio.NewWriter(f)
	w := csv.NewWriter(bw)
	for _, r := range rows {
		if err := w.Write(record(r)); err != nil {
			return 0, storageErr("append table", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, storageErr("append table", err)
	}
	if err := bw.Flush(); err != nil {
		return 0, storageErr("append table", err)
	}
	if err := f.Sync(); err != nil {
		return 0, storageErr("sync table", err)
	}
	size, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, storageErr("seek table", err)
	}
	return size, nil
}

func (s *Store) readTable(name string, size int64, schema domain.Schema) ([]domain.Row, error) {
	f, err := os.Open(s.path(name))
	if err != nil {
		return nil, storageErr("open table", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, storageErr("stat table", err)
	}
	if fi.Size() < size {
		return nil, storageErr("table", fmt.Errorf("%s is %d bytes, manifest records %d", name, fi.Size(), size))
	}

	r := csv.NewReader(io.LimitReader(f, size))
	r.FieldsPerRecord = schema.Len() + 1
	head, err := r.Read()
	if err != nil {
		return nil, storageErr("read table header", err)
	}
	if want := header(schema); !slices.Equal(head, want) {
		return nil, storageErr("table header", fmt.Errorf("got %v, want %v", head, want))
	}

	var rows []domain.Row
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, storageErr("read table", err)
		}
		row, err := parseRecord(rec, schema)
		if err != nil {
			return nil, storageErr(fmt.Sprintf("table line %d", line), err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// cleanup removes table files other than the committed one, and temp files,
// left by interrupted commits.
func (s *Store) cleanup() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		stale := strings.HasSuffix(name, ".tmp") ||
			(strings.HasPrefix(name, "table-") && strings.HasSuffix(name, ".csv") && name != s.state.TableFile)
		if !stale {
			continue
		}
		if err := os.Remove(s.path(name)); err != nil {
			s.logger.Warn("remove stale checkpoint file", "error", err, "file", name)
			continue
		}
		s.logger.Debug("removed stale checkpoint file", "file", name)
	}
}

func (s *Store) path(name string) string { return filepath.Join(s.dir, name) }

func (m manifest) schema() (domain.Schema, error) {
	cols := make([]domain.Column, 0, len(m.Columns))
	for _, c := range m.Columns {
		k, err := domain.ParseKind(c.Kind)
		if err != nil {
			return domain.Schema{}, err
		}
		cols = append(cols, domain.Column{Name: c.Name, Kind: k})
	}
	schema := domain.NewSchema(cols...)
	if schema.Len() != len(cols) {
		return domain.Schema{}, errors.New("duplicate column name")
	}
	return schema, nil
}

func columnsOf(schema domain.Schema) []columnRecord {
	out := make([]columnRecord, schema.Len())
	for i, c := range schema.Columns() {
		out[i] = columnRecord{Name: c.Name, Kind: c.Kind.String()}
	}
	return out
}

func header(schema domain.Schema) []string {
	return append(schema.Names(), domain.ReportDateColumn)
}

func record(r domain.Row) []string {
	out := make([]string, len(r.Values)+1)
	for i, v := range r.Values {
		out[i] = v.String()
	}
	out[len(r.Values)] = r.ReportDate.Format(domain.ISODateLayout)
	return out
}

func parseRecord(rec []string, schema domain.Schema) (domain.Row, error) {
	n := schema.Len()
	date, err := time.Parse(domain.ISODateLayout, rec[n])
	if err != nil {
		return domain.Row{}, err
	}
	values := make([]domain.Value, n)
	for i := range n {
		v, err := domain.ParseValue(rec[i], schema.Column(i).Kind)
		if err != nil {
			return domain.Row{}, fmt.Errorf("column %s: %w", schema.Column(i).Name, err)
		}
		values[i] = v
	}
	return domain.Row{ReportDate: date, Values: values}, nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("checkpoint %s: %w: %w", op, domain.ErrStorage, err)
}
