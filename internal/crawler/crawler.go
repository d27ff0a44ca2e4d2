package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/progress"
)

// ErrNavigation marks an attempt that ended because a page failed to load.
var ErrNavigation = errors.New("navigation failed")

// StatusLine is the per-page progress line written to the status writer. The
// batch process runner parses it back out of a child's stdout.
const StatusLine = "Scraping page %d.\n"

// Crawler walks the result pages of one start URL.
type Crawler struct {
	cfg       Config
	provider  PageProvider
	extractor *Extractor
	pacer     Pacer
	sink      ResultSink
	status    io.Writer
	events    progress.Emitter
	clock     Clock
	logger    *zap.Logger
}

// NewCrawler wires a Crawler. pacer, sink, status and events may be nil.
func NewCrawler(
	cfg Config,
	provider PageProvider,
	pacer Pacer,
	sink ResultSink,
	status io.Writer,
	events progress.Emitter,
	clock Clock,
	logger *zap.Logger,
) *Crawler {
	cfg = cfg.withDefaults()
	if pacer == nil {
		pacer = NoopPacer{}
	}
	if status == nil {
		status = io.Discard
	}
	if clock == nil {
		clock = systemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{
		cfg:       cfg,
		provider:  provider,
		extractor: NewExtractor(cfg.Selectors),
		pacer:     pacer,
		sink:      sink,
		status:    status,
		events:    events,
		clock:     clock,
		logger:    logger,
	}
}

// Crawl processes pages of baseURL starting at startPage until a stop
// condition, the page cap, or an error. Whatever was extracted is handed to
// the sink before Crawl returns, on every exit path. A nil error means the
// attempt ended on a normal stop condition.
func (c *Crawler) Crawl(ctx context.Context, baseURL string, startPage int) (result AttemptResult, err error) {
	if startPage < 1 {
		startPage = 1
	}
	started := c.clock.Now()
	res := &AttemptResult{
		BaseURL:   baseURL,
		StartPage: startPage,
		LastPage:  startPage - 1,
	}
	logger := c.logger.With(zap.String("url", baseURL), zap.Int("start_page", startPage))

	defer func() {
		if rec := recover(); rec != nil {
			res.Stop = StopError
			err = fmt.Errorf("crawl panic: %v", rec)
		}
		res.Duration = c.clock.Now().Sub(started)
		if exportErr := c.export(context.WithoutCancel(ctx), res); exportErr != nil {
			err = errors.Join(err, exportErr)
		}
		if err != nil {
			logger.Error("Crawl attempt ended with error",
				zap.String("stop", string(res.Stop)),
				zap.Int("last_page", res.LastPage),
				zap.Int("records", len(res.Records)),
				zap.Error(err),
			)
		} else {
			logger.Info("Crawl attempt finished",
				zap.String("stop", string(res.Stop)),
				zap.Int("last_page", res.LastPage),
				zap.Int("pages", res.PagesProcessed),
				zap.Int("records", len(res.Records)),
			)
		}
		result = *res
	}()

	err = c.paginate(ctx, res, logger)
	return *res, err
}

func (c *Crawler) paginate(ctx context.Context, res *AttemptResult, logger *zap.Logger) error {
	page := res.StartPage
	var cookies []Cookie
	for {
		if res.PagesProcessed >= c.cfg.MaxPages {
			logger.Info("Page cap reached, stopping pagination", zap.Int("max_pages", c.cfg.MaxPages))
			res.Stop = StopPageCap
			return nil
		}
		if err := ctx.Err(); err != nil {
			res.Stop = StopCanceled
			return fmt.Errorf("crawl canceled: %w", err)
		}

		pageURL, err := PageURL(res.BaseURL, page)
		if err != nil {
			res.Stop = StopError
			return err
		}

		if len(cookies) > 0 {
			if err := c.provider.SetCookies(ctx, cookies); err != nil {
				res.Stop = StopError
				return fmt.Errorf("restore cookies: %w", err)
			}
		}

		logger.Info("Navigating", zap.String("page_url", pageURL))
		if err := c.navigate(ctx, pageURL); err != nil {
			if ctx.Err() != nil {
				res.Stop = StopCanceled
				return fmt.Errorf("crawl canceled: %w", ctx.Err())
			}
			res.Stop = StopNavigationError
			return fmt.Errorf("%w: page %d: %w", ErrNavigation, page, err)
		}

		cookies, err = c.provider.Cookies(ctx)
		if err != nil {
			res.Stop = StopError
			return fmt.Errorf("capture cookies: %w", err)
		}

		if err := c.pacer.Pace(ctx, c.provider); err != nil {
			res.Stop = stopFor(ctx)
			return fmt.Errorf("pacing page %d: %w", page, err)
		}

		c.reportPage(res, page)

		cards, err := c.provider.QueryAll(ctx, c.cfg.Selectors.ListingCard)
		if err != nil {
			res.Stop = stopFor(ctx)
			return fmt.Errorf("query listing cards on page %d: %w", page, err)
		}
		if len(cards) == 0 {
			logger.Info("No listings found, stopping pagination", zap.Int("page", page))
			res.Stop = StopNoListings
			return nil
		}

		short := len(cards) < c.cfg.MinListings
		if short && !c.cfg.ExtractShortPage {
			logger.Info("Too few listings, stopping pagination",
				zap.Int("page", page), zap.Int("cards", len(cards)))
			res.Stop = StopShortPage
			return nil
		}

		extracted, err := c.extractPage(ctx, res, cards)
		if err != nil {
			res.Stop = stopFor(ctx)
			return fmt.Errorf("extract page %d: %w", page, err)
		}
		logger.Info("Scraped page",
			zap.Int("page", page),
			zap.Int("cards", len(cards)),
			zap.Int("records", extracted),
		)
		c.emit(progress.Event{
			Stage:   progress.StagePageDone,
			URL:     res.BaseURL,
			Page:    page,
			Cards:   len(cards),
			Records: extracted,
		})

		if short {
			logger.Info("Too few listings, stopping pagination after extraction",
				zap.Int("page", page), zap.Int("cards", len(cards)))
			res.Stop = StopShortPage
			return nil
		}

		page++
		res.PagesProcessed++
	}
}

func (c *Crawler) navigate(ctx context.Context, pageURL string) error {
	navCtx, cancel := context.WithTimeout(ctx, c.cfg.NavigationTimeout)
	defer cancel()
	if err := c.provider.Navigate(navCtx, pageURL); err != nil {
		return fmt.Errorf("navigate %s: %w", pageURL, err)
	}
	return nil
}

// extractPage appends valid records as they are read so a failure midway
// keeps the cards already extracted.
func (c *Crawler) extractPage(ctx context.Context, res *AttemptResult, cards []Element) (int, error) {
	extracted := 0
	for _, card := range cards {
		rec, ok, err := c.extractor.Extract(ctx, card)
		if err != nil {
			return extracted, err
		}
		if !ok {
			continue
		}
		res.Records = append(res.Records, rec)
		extracted++
	}
	return extracted, nil
}

func (c *Crawler) reportPage(res *AttemptResult, page int) {
	res.LastPage = page
	if _, err := fmt.Fprintf(c.status, StatusLine, page); err != nil {
		c.logger.Warn("Failed to write status line", zap.Int("page", page), zap.Error(err))
	}
}

func (c *Crawler) export(ctx context.Context, res *AttemptResult) error {
	if c.sink == nil {
		return nil
	}
	path, err := c.sink.Export(ctx, *res)
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}
	res.OutputPath = path
	return nil
}

func (c *Crawler) emit(evt progress.Event) {
	if c.events == nil {
		return
	}
	evt.TS = c.clock.Now()
	c.events.Emit(evt)
}

func stopFor(ctx context.Context) StopReason {
	if ctx.Err() != nil {
		return StopCanceled
	}
	return StopError
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}
