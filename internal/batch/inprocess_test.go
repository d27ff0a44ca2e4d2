package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

func sessionOf(crawl CrawlFunc, released *int) SessionFactory {
	return func(context.Context) (CrawlFunc, func(), error) {
		return crawl, func() { *released++ }, nil
	}
}

func TestInProcessRunnerSuccess(t *testing.T) {
	t.Parallel()

	released := 0
	r := NewInProcessRunner(sessionOf(func(_ context.Context, baseURL string, start int) (crawler.AttemptResult, error) {
		return crawler.AttemptResult{
			BaseURL:    baseURL,
			StartPage:  start,
			LastPage:   start + 2,
			Stop:       crawler.StopNoListings,
			Records:    make([]crawler.ListingRecord, 12),
			OutputPath: "out/listings.csv",
		}, nil
	}, &released), nil)

	out := r.Run(context.Background(), Attempt{URL: "https://example.test/search", StartPage: 4, Number: 1})
	require.NoError(t, out.Err)
	assert.True(t, out.Succeeded)
	assert.Equal(t, 6, out.LastPage)
	assert.Equal(t, 12, out.Records)
	assert.Equal(t, "out/listings.csv", out.OutputPath)
	assert.Equal(t, 1, released)
}

func TestInProcessRunnerRecoversPanic(t *testing.T) {
	t.Parallel()

	released := 0
	r := NewInProcessRunner(sessionOf(func(context.Context, string, int) (crawler.AttemptResult, error) {
		panic("browser went away")
	}, &released), nil)

	out := r.Run(context.Background(), Attempt{URL: "https://example.test/search", StartPage: 1, Number: 1})
	require.Error(t, out.Err)
	assert.Contains(t, out.Err.Error(), "browser went away")
	assert.False(t, out.Succeeded)
	assert.Zero(t, out.LastPage)
	assert.Equal(t, 1, released)
}

func TestInProcessRunnerReleasePanicAfterResult(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.ErrorLevel)
	factory := func(context.Context) (CrawlFunc, func(), error) {
		crawl := func(_ context.Context, baseURL string, start int) (crawler.AttemptResult, error) {
			return crawler.AttemptResult{BaseURL: baseURL, StartPage: start, LastPage: start, Stop: crawler.StopNoListings}, nil
		}
		return crawl, func() { panic("browser close failed") }, nil
	}
	r := NewInProcessRunner(factory, zap.New(core))

	out := r.Run(context.Background(), Attempt{URL: "https://example.test/search", StartPage: 2, Number: 1})
	require.NoError(t, out.Err)
	assert.True(t, out.Succeeded)
	assert.Equal(t, 2, out.LastPage)

	// The panic is only logged after its outcome was queued, so seeing the
	// log line means the attempt goroutine did not block.
	require.Eventually(t, func() bool {
		return logs.FilterMessage("Crawl attempt panicked").Len() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestInProcessRunnerSessionError(t *testing.T) {
	t.Parallel()

	r := NewInProcessRunner(func(context.Context) (CrawlFunc, func(), error) {
		return nil, nil, errors.New("chrome not found")
	}, nil)

	out := r.Run(context.Background(), Attempt{URL: "https://example.test/search", StartPage: 1, Number: 1})
	require.ErrorContains(t, out.Err, "start session: chrome not found")
	assert.False(t, out.Succeeded)
}

func TestOutcomeFromResult(t *testing.T) {
	t.Parallel()

	navErr := errors.New("navigation failed")
	tests := []struct {
		name      string
		res       crawler.AttemptResult
		err       error
		succeeded bool
		lastPage  int
		errText   string
	}{
		{
			name:      "normal stop",
			res:       crawler.AttemptResult{StartPage: 1, LastPage: 3, Stop: crawler.StopShortPage},
			succeeded: true,
			lastPage:  3,
		},
		{
			name:     "error keeps reported page",
			res:      crawler.AttemptResult{StartPage: 2, LastPage: 4, Stop: crawler.StopNavigationError},
			err:      navErr,
			lastPage: 4,
			errText:  "navigation failed",
		},
		{
			name:    "nothing reported",
			res:     crawler.AttemptResult{StartPage: 5, LastPage: 4, Stop: crawler.StopError},
			err:     navErr,
			errText: "navigation failed",
		},
		{
			name:     "unsuccessful stop without error",
			res:      crawler.AttemptResult{StartPage: 1, LastPage: 1, Stop: crawler.StopCanceled},
			lastPage: 1,
			errText:  "crawl stopped: canceled",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out := outcomeFromResult(tt.res, tt.err)
			assert.Equal(t, tt.succeeded, out.Succeeded)
			assert.Equal(t, tt.lastPage, out.LastPage)
			if tt.errText == "" {
				assert.NoError(t, out.Err)
			} else {
				assert.EqualError(t, out.Err, tt.errText)
			}
		})
	}
}
