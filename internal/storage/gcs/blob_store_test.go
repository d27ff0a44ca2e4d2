package gcs_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/listing-crawler/internal/storage/gcs"
)

func newTestStore(t *testing.T, handler http.Handler) *gcs.BlobStore {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store, err := gcs.Open(context.Background(), gcs.Config{Bucket: "listings"},
		option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

func TestPutObjectUploads(t *testing.T) {
	t.Parallel()

	const object = "exports/09-00_01-03-2024_abc_listings.csv"
	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/listings/o")
		assert.Equal(t, object, r.URL.Query().Get("name"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), "agent_name,agency_name")
		assert.Contains(t, string(body), "text/csv")

		fmt.Fprintf(w, `{"name":%q,"bucket":"listings"}`, object)
	}))

	uri, err := store.PutObject(context.Background(), object, "text/csv; charset=utf-8",
		strings.NewReader("agent_name,agency_name\n"))
	require.NoError(t, err)
	assert.Equal(t, "gs://listings/"+object, uri)
}

func TestPutObjectRejected(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	_, err := store.PutObject(context.Background(), "x.csv", "text/csv", strings.NewReader("x"))
	require.Error(t, err)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := gcs.New(nil, gcs.Config{Bucket: "b"})
	require.Error(t, err)

	_, err = gcs.Open(context.Background(), gcs.Config{}, option.WithoutAuthentication())
	require.ErrorContains(t, err, "bucket")

	store := newTestStore(t, http.NotFoundHandler())
	_, err = store.PutObject(context.Background(), " ", "text/csv", strings.NewReader("x"))
	require.ErrorContains(t, err, "path is required")
}
