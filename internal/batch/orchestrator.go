package batch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
	"github.com/JakeFAU/listing-crawler/internal/ledger"
	"github.com/JakeFAU/listing-crawler/internal/progress"
)

// LedgerStore loads and persists the progress ledger.
type LedgerStore interface {
	Load() (*ledger.Ledger, error)
	Save(l *ledger.Ledger) error
}

// Publisher sends outcome notifications.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Notification is published once per processed URL.
type Notification struct {
	RunID      string        `json:"run_id"`
	URL        string        `json:"url"`
	Status     ledger.Status `json:"status"`
	LastPage   int           `json:"last_page"`
	Attempts   int           `json:"attempts"`
	Records    int           `json:"records"`
	OutputPath string        `json:"output_path,omitempty"`
	Error      string        `json:"error,omitempty"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Attributes lets brokers filter notifications without decoding them.
func (n Notification) Attributes() map[string]string {
	return map[string]string{"status": string(n.Status), "run_id": n.RunID}
}

// Summary tallies the URLs of one run.
type Summary struct {
	Completed   int
	Failed      int
	Skipped     int
	Interrupted int
	Attempts    int
}

// Options carries the optional collaborators of an Orchestrator.
type Options struct {
	Retry     RetryPolicy
	Events    progress.Emitter
	Publisher Publisher
	Topic     string
	RunID     string
	Clock     crawler.Clock
	Logger    *zap.Logger
}

// Orchestrator processes start URLs one at a time against the ledger.
type Orchestrator struct {
	store  LedgerStore
	runner AttemptRunner
	opts   Options
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator wires an Orchestrator. A zero Retry uses DefaultRetryPolicy.
func NewOrchestrator(store LedgerStore, runner AttemptRunner, opts Options) *Orchestrator {
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = DefaultRetryPolicy().MaxAttempts
	}
	if opts.Clock == nil {
		opts.Clock = utcClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Orchestrator{
		store:  store,
		runner: runner,
		opts:   opts,
		sleep:  sleepContext,
	}
}

// Run processes urls in order. The ledger is saved after every URL that was
// attempted; a failure to save stops the run. When ctx is canceled the run
// stops after persisting the URL in flight.
func (o *Orchestrator) Run(ctx context.Context, urls []string) (Summary, error) {
	var summary Summary
	l, err := o.store.Load()
	if err != nil {
		return summary, fmt.Errorf("load ledger: %w", err)
	}

	started := o.opts.Clock.Now()
	o.emit(progress.Event{Stage: progress.StageRunStart})
	o.opts.Logger.Info("Batch started", zap.Int("urls", len(urls)), zap.Int("ledger_entries", l.Len()))
	defer func() {
		o.emit(progress.Event{Stage: progress.StageRunDone, Dur: o.opts.Clock.Now().Sub(started)})
		o.opts.Logger.Info("Batch finished",
			zap.Int("completed", summary.Completed),
			zap.Int("failed", summary.Failed),
			zap.Int("skipped", summary.Skipped),
			zap.Int("interrupted", summary.Interrupted),
			zap.Int("attempts", summary.Attempts),
		)
	}()

	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("batch canceled: %w", err)
		}
		if err := o.processURL(ctx, l, u, &summary); err != nil {
			return summary, err
		}
	}
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("batch canceled: %w", err)
	}
	return summary, nil
}

func (o *Orchestrator) processURL(ctx context.Context, l *ledger.Ledger, u string, summary *Summary) error {
	logger := o.opts.Logger.With(zap.String("url", u))
	entry, found := l.Get(u)
	if found && entry.Status == ledger.StatusCompleted {
		logger.Info("Already completed, skipping", zap.Int("last_page", entry.LastPage))
		o.emit(progress.Event{Stage: progress.StageURLSkipped, URL: u, Page: entry.LastPage})
		summary.Skipped++
		return nil
	}

	resume := 1
	if found {
		resume = entry.ResumePage()
	} else {
		l.Put(ledger.Entry{URL: u, Status: ledger.StatusPending})
	}
	logger.Info("Processing URL", zap.Int("resume_page", resume))
	o.emit(progress.Event{Stage: progress.StageURLStart, URL: u, Page: resume})

	var (
		final    ledger.Entry
		last     Outcome
		attempts int
		done     bool
	)
	for attempt := 1; attempt <= o.opts.Retry.MaxAttempts && !done; attempt++ {
		attempts = attempt
		summary.Attempts++
		o.emit(progress.Event{Stage: progress.StageAttemptStart, URL: u, Page: resume, Attempt: attempt})

		last = o.runner.Run(ctx, Attempt{URL: u, StartPage: resume, Number: attempt})
		reported := reportedPage(last)
		if last.Succeeded {
			final = ledger.Entry{URL: u, Status: ledger.StatusCompleted, LastPage: reported}
			done = true
			o.emit(progress.Event{
				Stage: progress.StageAttemptDone, URL: u, Page: reported,
				Attempt: attempt, Records: last.Records, Dur: last.Duration,
			})
			break
		}

		resume = reported + 1
		logger.Warn("Crawl attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("last_page", reported),
			zap.Int("next_page", resume),
			zap.Error(last.Err),
		)
		o.emit(progress.Event{
			Stage: progress.StageAttemptError, URL: u, Page: reported,
			Attempt: attempt, Records: last.Records, Dur: last.Duration, Note: errText(last.Err),
		})
		if ctx.Err() != nil {
			break
		}
		if attempt < o.opts.Retry.MaxAttempts {
			if err := o.sleep(ctx, o.opts.Retry.Backoff(attempt)); err != nil {
				break
			}
		}
	}
	interrupted := !done && ctx.Err() != nil
	switch {
	case done:
	case interrupted:
		final = ledger.Entry{URL: u, Status: ledger.StatusPending, LastPage: resume - 1}
	default:
		final = ledger.Entry{URL: u, Status: ledger.StatusFailed, LastPage: resume - 1}
	}
	l.Put(final)

	if err := o.store.Save(l); err != nil {
		return fmt.Errorf("persist ledger after %s: %w", u, err)
	}

	if interrupted {
		summary.Interrupted++
		logger.Warn("URL interrupted, left pending", zap.Int("last_page", final.LastPage), zap.Int("attempts", attempts))
		return nil
	}
	if done {
		summary.Completed++
		logger.Info("URL completed", zap.Int("last_page", final.LastPage), zap.Int("attempts", attempts))
		o.emit(progress.Event{Stage: progress.StageURLDone, URL: u, Page: final.LastPage, Attempt: attempts})
	} else {
		summary.Failed++
		logger.Error("URL failed", zap.Int("last_page", final.LastPage), zap.Int("attempts", attempts), zap.Error(last.Err))
		o.emit(progress.Event{
			Stage: progress.StageURLFailed, URL: u, Page: final.LastPage,
			Attempt: attempts, Note: errText(last.Err),
		})
	}
	o.notify(ctx, final, attempts, last, logger)
	return nil
}

// reportedPage is the page an attempt reached. An attempt that reported no
// page counts as page 1.
func reportedPage(out Outcome) int {
	if out.LastPage >= 1 {
		return out.LastPage
	}
	return 1
}

func (o *Orchestrator) notify(ctx context.Context, e ledger.Entry, attempts int, last Outcome, logger *zap.Logger) {
	if o.opts.Publisher == nil {
		return
	}
	msg := Notification{
		RunID:      o.opts.RunID,
		URL:        e.URL,
		Status:     e.Status,
		LastPage:   e.LastPage,
		Attempts:   attempts,
		Records:    last.Records,
		OutputPath: last.OutputPath,
		Error:      errText(last.Err),
		FinishedAt: o.opts.Clock.Now(),
	}
	if e.Status == ledger.StatusCompleted {
		msg.Error = ""
	}
	id, err := o.opts.Publisher.Publish(context.WithoutCancel(ctx), o.opts.Topic, msg)
	if err != nil {
		logger.Warn("Failed to publish outcome", zap.Error(err))
		return
	}
	logger.Debug("Outcome published", zap.String("message_id", id))
}

func (o *Orchestrator) emit(evt progress.Event) {
	if o.opts.Events == nil {
		return
	}
	evt.RunID = o.opts.RunID
	evt.TS = o.opts.Clock.Now()
	o.opts.Events.Emit(evt)
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

type utcClock struct{}

func (utcClock) Now() time.Time {
	return time.Now().UTC()
}
