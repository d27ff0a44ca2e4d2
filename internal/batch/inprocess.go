package batch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

// CrawlFunc runs one crawl attempt.
type CrawlFunc func(ctx context.Context, baseURL string, startPage int) (crawler.AttemptResult, error)

// SessionFactory builds a fresh crawl session for one attempt. release frees
// its resources, such as the browser.
type SessionFactory func(ctx context.Context) (crawl CrawlFunc, release func(), err error)

// InProcessRunner runs each attempt on its own goroutine behind a recover
// boundary, with a fresh session per attempt.
type InProcessRunner struct {
	newSession SessionFactory
	logger     *zap.Logger
}

// NewInProcessRunner returns a runner that builds sessions with factory.
func NewInProcessRunner(factory SessionFactory, logger *zap.Logger) *InProcessRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InProcessRunner{newSession: factory, logger: logger}
}

// Run implements AttemptRunner.
func (r *InProcessRunner) Run(ctx context.Context, attempt Attempt) Outcome {
	started := time.Now()
	// Room for a result and a panic from release after it.
	done := make(chan Outcome, 2)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- Outcome{Err: fmt.Errorf("attempt panic: %v", rec)}
				r.logger.Error("Crawl attempt panicked",
					zap.String("url", attempt.URL),
					zap.Any("panic", rec),
				)
			}
		}()
		crawl, release, err := r.newSession(ctx)
		if err != nil {
			done <- Outcome{Err: fmt.Errorf("start session: %w", err)}
			return
		}
		defer release()
		res, err := crawl(ctx, attempt.URL, attempt.StartPage)
		done <- outcomeFromResult(res, err)
	}()
	out := <-done
	out.Duration = time.Since(started)
	return out
}

func outcomeFromResult(res crawler.AttemptResult, err error) Outcome {
	out := Outcome{
		Succeeded:  err == nil && res.Succeeded(),
		Records:    len(res.Records),
		OutputPath: res.OutputPath,
		Err:        err,
	}
	if res.LastPage >= res.StartPage && res.StartPage > 0 {
		out.LastPage = res.LastPage
	}
	if err == nil && !out.Succeeded {
		out.Err = fmt.Errorf("crawl stopped: %s", res.Stop)
	}
	return out
}
