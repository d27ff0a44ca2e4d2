// Package progress defines the event structures emitted while crawling.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart     Stage = "RUN_START"
	StageRunDone      Stage = "RUN_DONE"
	StageURLStart     Stage = "URL_START"
	StageURLSkipped   Stage = "URL_SKIPPED"
	StageURLDone      Stage = "URL_DONE"
	StageURLFailed    Stage = "URL_FAILED"
	StageAttemptStart Stage = "ATTEMPT_START"
	StageAttemptDone  Stage = "ATTEMPT_DONE"
	StageAttemptError Stage = "ATTEMPT_ERROR"
	StagePageDone     Stage = "PAGE_DONE"
)

// Event captures a single component of crawl progress.
type Event struct {
	// RunID identifies one batch or crawl invocation. Optional.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// URL is the start URL the event belongs to.
	URL string
	// Page is the page number for page events, or the resume page for
	// attempt events.
	Page int
	// Attempt is the 1-based attempt counter within one URL.
	Attempt int
	// Cards is the number of listing cards seen on a page.
	Cards int
	// Records is the number of records extracted.
	Records int
	// Dur captures attempt or run latency.
	Dur time.Duration
	// Note lets emitters attach low-volume context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageURLStart, StageURLSkipped, StageURLDone, StageURLFailed,
		StageAttemptStart, StageAttemptDone, StageAttemptError:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
	case StagePageDone:
		if e.URL == "" {
			return errors.New("page done requires url")
		}
		if e.Page < 1 {
			return errors.New("page done requires page >= 1")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Cards < 0 || e.Records < 0 {
		return errors.New("counts must be >= 0")
	}
	return nil
}
