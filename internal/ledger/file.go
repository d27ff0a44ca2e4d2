package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Columns is the header written to ledger files.
var Columns = []string{"url", "status", "last_page"}

// FileStore persists a Ledger as a CSV file.
type FileStore struct {
	path string
}

// NewFileStore returns a store for path. The file need not exist yet.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("ledger path is required")
	}
	return &FileStore{path: path}, nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the ledger. A missing or empty file yields an empty ledger.
func (s *FileStore) Load() (*Ledger, error) {
	// #nosec G304 -- ledger path is operator supplied.
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(), nil
		}
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	l, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", s.path, err)
	}
	return l, nil
}

// Read parses ledger CSV from r. Columns are located by header name; extra
// columns are ignored.
func Read(r io.Reader) (*Ledger, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, col := range Columns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing %q column", col)
		}
	}

	l := New()
	for row := 2; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		entry, skip, err := parseRow(record, idx)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		if skip {
			continue
		}
		l.Put(entry)
	}
	return l, nil
}

func parseRow(record []string, idx map[string]int) (Entry, bool, error) {
	field := func(name string) string {
		i := idx[name]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}
	url := field("url")
	if url == "" {
		return Entry{}, true, nil
	}
	status, err := ParseStatus(field("status"))
	if err != nil {
		return Entry{}, false, err
	}
	lastPage := 0
	if raw := field("last_page"); raw != "" {
		lastPage, err = strconv.Atoi(raw)
		if err != nil || lastPage < 0 {
			return Entry{}, false, fmt.Errorf("invalid last_page %q", raw)
		}
	}
	return Entry{URL: url, Status: status, LastPage: lastPage}, false, nil
}

// Save rewrites the whole file from l. The new content is written to a
// temporary file in the same directory, synced and renamed over the target,
// so readers see either the old or the new ledger.
func (s *FileStore) Save(l *Ledger) (err error) {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = Write(tmp, l); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp ledger: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp ledger: %w", err)
	}
	if err = os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}

// Write renders l as CSV.
func Write(w io.Writer, l *Ledger) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write ledger header: %w", err)
	}
	for _, e := range l.Entries() {
		if err := cw.Write([]string{e.URL, string(e.Status), strconv.Itoa(e.LastPage)}); err != nil {
			return fmt.Errorf("write ledger row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush ledger: %w", err)
	}
	return nil
}
