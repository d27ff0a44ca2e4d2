package batch

import (
	"context"
	"time"
)

// Attempt is one isolated crawl of a start URL from a resume page.
type Attempt struct {
	URL       string
	StartPage int
	// Number is the 1-based attempt counter for this URL.
	Number int
}

// Outcome is what the orchestrator learns from an attempt.
type Outcome struct {
	// Succeeded is true when the crawl ended on a normal stop condition.
	Succeeded bool
	// LastPage is the last page the attempt reported scraping, or 0 when it
	// reported none.
	LastPage int
	Records  int
	// OutputPath is where the attempt wrote its listings, when known.
	OutputPath string
	// Output holds the captured status text of a child process.
	Output   string
	Duration time.Duration
	Err      error
}

// AttemptRunner executes one attempt inside a fault-containment boundary. A
// fault in the attempt is reported through Outcome, never by panicking.
type AttemptRunner interface {
	Run(ctx context.Context, attempt Attempt) Outcome
}
