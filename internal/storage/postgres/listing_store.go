// Package postgres upserts scraped listings into Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
	"github.com/JakeFAU/listing-crawler/internal/hash/sha256"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the connection pool and target table.
type Config struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// ListingStore keeps one row per listing, keyed by a hash of the start URL and
// the listing's address. Re-scraping a listing refreshes its row.
type ListingStore struct {
	pool  pool
	table string
}

// NewListingStore connects a pool using cfg.
func NewListingStore(ctx context.Context, cfg Config) (*ListingStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ListingStore{pool: p, table: table}, nil
}

// NewListingStoreWithPool builds a store over an existing pool.
func NewListingStoreWithPool(p pool, table string) (*ListingStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &ListingStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = "listings"
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the pool.
func (s *ListingStore) Close() {
	s.pool.Close()
}

// EnsureSchema creates the listings table when it does not exist.
func (s *ListingStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	listing_key      TEXT PRIMARY KEY,
	source_url       TEXT NOT NULL,
	agent_name       TEXT NOT NULL,
	agency_name      TEXT NOT NULL,
	price            TEXT NOT NULL,
	address_line1    TEXT NOT NULL,
	suburb           TEXT,
	state            TEXT,
	postcode         TEXT,
	bedrooms         INTEGER NOT NULL,
	bathrooms        INTEGER NOT NULL,
	car_spaces       INTEGER NOT NULL,
	sqm              TEXT NOT NULL,
	listing_card_tag TEXT,
	alt_image        TEXT,
	property_type    TEXT,
	first_seen_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_seen_at     TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// UpsertListings writes records in one transaction and returns how many rows
// were written.
func (s *ListingStore) UpsertListings(ctx context.Context, sourceURL string, records []crawler.ListingRecord) (n int, err error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
			n = 0
		}
	}()

	query := s.upsertQuery()
	for _, rec := range records {
		if _, err := tx.Exec(ctx, query, listingArgs(sourceURL, rec)...); err != nil {
			return 0, fmt.Errorf("upsert listing %q: %w", rec.AddressLine1, err)
		}
		n++
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

func (s *ListingStore) upsertQuery() string {
	return fmt.Sprintf(`
INSERT INTO %s (
	listing_key, source_url, agent_name, agency_name, price, address_line1,
	suburb, state, postcode, bedrooms, bathrooms, car_spaces, sqm,
	listing_card_tag, alt_image, property_type
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
)
ON CONFLICT (listing_key) DO UPDATE SET
	agent_name = EXCLUDED.agent_name,
	agency_name = EXCLUDED.agency_name,
	price = EXCLUDED.price,
	bedrooms = EXCLUDED.bedrooms,
	bathrooms = EXCLUDED.bathrooms,
	car_spaces = EXCLUDED.car_spaces,
	sqm = EXCLUDED.sqm,
	listing_card_tag = EXCLUDED.listing_card_tag,
	alt_image = EXCLUDED.alt_image,
	property_type = EXCLUDED.property_type,
	last_seen_at = now()`, s.table)
}

// ListingKey identifies a listing within the results of one start URL.
func ListingKey(sourceURL string, rec crawler.ListingRecord) string {
	return sha256.Key(sourceURL, rec.AddressLine1, value(rec.Suburb), value(rec.Postcode))
}

func listingArgs(sourceURL string, rec crawler.ListingRecord) []any {
	return []any{
		ListingKey(sourceURL, rec),
		sourceURL,
		rec.AgentName,
		rec.AgencyName,
		rec.Price,
		rec.AddressLine1,
		rec.Suburb,
		rec.State,
		rec.Postcode,
		rec.Bedrooms,
		rec.Bathrooms,
		rec.CarSpaces,
		rec.Sqm,
		rec.ListingCardTag,
		rec.AltImage,
		rec.PropertyType,
	}
}

func value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
