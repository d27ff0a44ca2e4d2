package crawler

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// FileNameLayout is the time layout that prefixes every listing file.
const FileNameLayout = "15-04_02-01-2006"

// ErrNoRecords is returned when there is nothing to write.
var ErrNoRecords = errors.New("no records")

// CSVSink writes attempt records to a CSV file per attempt.
type CSVSink struct {
	dir    string
	clock  Clock
	ids    IDGenerator
	mirror BlobStore
	prefix string
	logger *zap.Logger
}

// NewCSVSink returns a sink rooted at dir. mirror may be nil; when set every
// written file is also uploaded under prefix.
func NewCSVSink(dir string, clock Clock, ids IDGenerator, mirror BlobStore, prefix string, logger *zap.Logger) (*CSVSink, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", dir, err)
	}
	if clock == nil {
		clock = systemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVSink{
		dir:    dir,
		clock:  clock,
		ids:    ids,
		mirror: mirror,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}, nil
}

// Export writes result.Records with a header row. No file is written for an
// empty result; that is logged and returns an empty path.
func (s *CSVSink) Export(ctx context.Context, result AttemptResult) (string, error) {
	target := filepath.Join(s.dir, s.fileName())
	if err := WriteListingsCSV(target, result.Records); err != nil {
		if errors.Is(err, ErrNoRecords) {
			s.logger.Warn("No listings to export", zap.String("url", result.BaseURL))
			return "", nil
		}
		return "", err
	}
	s.logger.Info("Listings exported",
		zap.String("path", target),
		zap.Int("records", len(result.Records)),
		zap.String("stop", string(result.Stop)),
	)
	if err := s.upload(ctx, target); err != nil {
		return target, err
	}
	return target, nil
}

func (s *CSVSink) fileName() string {
	stamp := s.clock.Now().Format(FileNameLayout)
	if s.ids == nil {
		return stamp + "_listings.csv"
	}
	id, err := s.ids.NewID()
	if err != nil || id == "" {
		return stamp + "_listings.csv"
	}
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 12 {
		id = id[len(id)-12:]
	}
	return fmt.Sprintf("%s_%s_listings.csv", stamp, id)
}

func (s *CSVSink) upload(ctx context.Context, local string) error {
	if s.mirror == nil {
		return nil
	}
	// #nosec G304 -- path is produced by this sink inside its own directory.
	f, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("open export for upload: %w", err)
	}
	defer f.Close()

	objectPath := filepath.Base(local)
	if s.prefix != "" {
		objectPath = path.Join(s.prefix, objectPath)
	}
	uri, err := s.mirror.PutObject(ctx, objectPath, "text/csv; charset=utf-8", f)
	if err != nil {
		return fmt.Errorf("upload export: %w", err)
	}
	s.logger.Info("Listings uploaded", zap.String("uri", uri))
	return nil
}

// WriteListingsCSV writes records to target, replacing any existing file. It
// returns ErrNoRecords without touching the filesystem when records is empty.
func WriteListingsCSV(target string, records []ListingRecord) error {
	if len(records) == 0 {
		return ErrNoRecords
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("create dir for %s: %w", target, err)
	}
	// #nosec G304 -- target is built from configured output directory.
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(ListingColumns); err != nil {
		_ = f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	for _, rec := range records {
		if err := w.Write(rec.Row()); err != nil {
			_ = f.Close()
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush csv: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", target, err)
	}
	return nil
}

// StoreSink mirrors records into a ListingStore.
type StoreSink struct {
	store  ListingStore
	logger *zap.Logger
}

// NewStoreSink wraps store as a ResultSink.
func NewStoreSink(store ListingStore, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{store: store, logger: logger}
}

// Export upserts the records; it never produces a path.
func (s *StoreSink) Export(ctx context.Context, result AttemptResult) (string, error) {
	if len(result.Records) == 0 {
		return "", nil
	}
	n, err := s.store.UpsertListings(ctx, result.BaseURL, result.Records)
	if err != nil {
		return "", fmt.Errorf("upsert listings: %w", err)
	}
	s.logger.Info("Listings stored", zap.Int("rows", n), zap.String("url", result.BaseURL))
	return "", nil
}

// MultiSink exports to every sink in order. Every sink runs even when an
// earlier one fails; the first non-empty path is returned.
type MultiSink []ResultSink

// Export implements ResultSink.
func (m MultiSink) Export(ctx context.Context, result AttemptResult) (string, error) {
	var (
		out  string
		errs []error
	)
	for _, sink := range m {
		if sink == nil {
			continue
		}
		p, err := sink.Export(ctx, result)
		if err != nil {
			errs = append(errs, err)
		}
		if out == "" {
			out = p
		}
	}
	return out, errors.Join(errs...)
}
