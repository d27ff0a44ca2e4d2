package crawler

import (
	"context"
	"io"
	"time"
)

// PageProvider renders pages and exposes their DOM. Implementations live in
// internal/fetcher.
type PageProvider interface {
	Navigate(ctx context.Context, url string) error
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	Cookies(ctx context.Context) ([]Cookie, error)
	SetCookies(ctx context.Context, cookies []Cookie) error
	Scroll(ctx context.Context, deltaY int) error
	MoveMouse(ctx context.Context, x, y float64) error
	Viewport(ctx context.Context) (width, height int, err error)
}

// Element is one node on a rendered page.
type Element interface {
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	Text(ctx context.Context) (string, error)
	// Attr returns the attribute value and whether it was present.
	Attr(ctx context.Context, name string) (string, bool, error)
}

// Pacer applies the between-page pacing policy.
type Pacer interface {
	Pace(ctx context.Context, page PageProvider) error
}

// ResultSink persists the records of an attempt and returns where they went.
type ResultSink interface {
	Export(ctx context.Context, result AttemptResult) (string, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// ListingStore upserts extracted listings into a database.
type ListingStore interface {
	UpsertListings(ctx context.Context, sourceURL string, records []ListingRecord) (int, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
