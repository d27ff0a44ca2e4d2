package app

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/config"
	"github.com/JakeFAU/listing-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/listing-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/listing-crawler/internal/progress"
	"github.com/JakeFAU/listing-crawler/internal/storage/local"
	"github.com/JakeFAU/listing-crawler/internal/storage/memory"
)

func listingPage(page, n int) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, `<article data-testid="listing-card-wrapper-premiumplus">
  <p data-testid="listing-card-price">$%d,000</p>
  <span data-testid="address-line1">%d Page Street</span>
  <span data-testid="address-line2">Fitzroy VIC 3065</span>
</article>`, 600+i, page*10+i)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func newSite(t *testing.T, cards map[int]int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, listingPage(page, cards[page]))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig() config.Config {
	return config.Config{
		Crawler: config.CrawlerConfig{
			Provider:          config.ProviderStatic,
			MaxPages:          5,
			MinListings:       2,
			ExtractShortPage:  true,
			NavigationTimeout: 5 * time.Second,
			Timezone:          "UTC",
		},
		Selectors: crawler.DefaultSelectors(),
		Static:    collyfetcher.Config{UserAgent: "listing-crawler-test", Timeout: 5 * time.Second},
		Storage:   config.StorageConfig{Backend: config.StorageMemory, Prefix: "exports"},
	}
}

func newTestApp(t *testing.T, cfg config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestNewRejectsUnknownTimezone(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Crawler.Timezone = "Mars/Olympus_Mons"
	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crawler.timezone")
}

func TestNewSelectsMirror(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	a := newTestApp(t, cfg)
	assert.IsType(t, &memory.BlobStore{}, a.mirror)
	assert.Nil(t, a.Publisher())

	cfg.Storage = config.StorageConfig{Backend: config.StorageLocal, Local: local.Config{BaseDir: t.TempDir()}}
	a = newTestApp(t, cfg)
	assert.IsType(t, &local.BlobStore{}, a.mirror)

	cfg.Storage = config.StorageConfig{Backend: config.StorageNone}
	a = newTestApp(t, cfg)
	assert.Nil(t, a.mirror)
}

func TestCrawlerExportsAndMirrors(t *testing.T) {
	t.Parallel()

	srv := newSite(t, map[int]int{1: 3, 2: 3})
	a := newTestApp(t, testConfig())

	var status bytes.Buffer
	c, release, err := a.NewCrawler(context.Background(), t.TempDir(), &status, nil)
	require.NoError(t, err)
	defer release()

	res, err := c.Crawl(context.Background(), srv.URL+"/sale/", 1)
	require.NoError(t, err)
	assert.Equal(t, crawler.StopNoListings, res.Stop)
	assert.Equal(t, 3, res.LastPage)
	assert.Len(t, res.Records, 6)
	assert.Equal(t, "Scraping page 1.\nScraping page 2.\nScraping page 3.\n", status.String())
	require.NotEmpty(t, res.OutputPath)

	mirror, ok := a.mirror.(*memory.BlobStore)
	require.True(t, ok)
	paths := mirror.Paths()
	require.Len(t, paths, 1)
	assert.True(t, strings.HasPrefix(paths[0], "exports/"))
	obj, _ := mirror.Get(paths[0])
	assert.Contains(t, string(obj.Data), "11 Page Street")
}

func TestSessionsBuildFreshCrawler(t *testing.T) {
	t.Parallel()

	srv := newSite(t, map[int]int{4: 1})
	a := newTestApp(t, testConfig())

	var status bytes.Buffer
	crawl, release, err := a.Sessions(t.TempDir(), &status, nil)(context.Background())
	require.NoError(t, err)
	defer release()

	res, err := crawl(context.Background(), srv.URL+"/sale/", 4)
	require.NoError(t, err)
	assert.Equal(t, crawler.StopShortPage, res.Stop)
	assert.Equal(t, 4, res.LastPage)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "41 Page Street", res.Records[0].AddressLine1)
}

func TestHubFeedsRegistry(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig())
	hub, err := a.NewHub()
	require.NoError(t, err)

	hub.Emit(progress.Event{TS: time.Now(), Stage: progress.StagePageDone, URL: "https://example.com", Page: 1, Cards: 3, Records: 3})
	require.NoError(t, hub.Close(context.Background()))

	n, err := testutil.GatherAndCount(a.Registry(), "listing_crawler_pages_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	id, err := a.NewRunID()
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}
