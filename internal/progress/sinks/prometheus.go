package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/listing-crawler/internal/progress"
)

// PrometheusSink exports crawl progress as Prometheus collectors.
type PrometheusSink struct {
	runsRunning    prometheus.Gauge
	urlsTotal      *prometheus.CounterVec
	attemptsTotal  *prometheus.CounterVec
	attemptRuntime *prometheus.HistogramVec
	pagesTotal     prometheus.Counter
	cardsTotal     prometheus.Counter
	recordsTotal   prometheus.Counter
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "listing_crawler_runs_running",
			Help: "Batch runs currently in progress.",
		}),
		urlsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "listing_crawler_urls_total",
			Help: "Start URLs finished, partitioned by outcome.",
		}, []string{"outcome"}),
		attemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "listing_crawler_attempts_total",
			Help: "Crawl attempts finished, partitioned by result.",
		}, []string{"result"}),
		attemptRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "listing_crawler_attempt_duration_seconds",
			Help:    "Wall time per crawl attempt.",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 2400},
		}, []string{"result"}),
		pagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "listing_crawler_pages_total",
			Help: "Result pages processed.",
		}),
		cardsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "listing_crawler_cards_total",
			Help: "Listing cards seen on processed pages.",
		}),
		recordsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "listing_crawler_records_total",
			Help: "Listing records extracted.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsRunning,
		s.urlsTotal,
		s.attemptsTotal,
		s.attemptRuntime,
		s.pagesTotal,
		s.cardsTotal,
		s.recordsTotal,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsRunning.Inc()
		case progress.StageRunDone:
			s.runsRunning.Dec()
		case progress.StageURLDone:
			s.urlsTotal.WithLabelValues("completed").Inc()
		case progress.StageURLFailed:
			s.urlsTotal.WithLabelValues("failed").Inc()
		case progress.StageURLSkipped:
			s.urlsTotal.WithLabelValues("skipped").Inc()
		case progress.StageAttemptDone:
			s.observeAttempt(evt, "success")
		case progress.StageAttemptError:
			s.observeAttempt(evt, "error")
		case progress.StagePageDone:
			s.pagesTotal.Inc()
			s.cardsTotal.Add(float64(evt.Cards))
			s.recordsTotal.Add(float64(evt.Records))
		}
	}
	return nil
}

func (s *PrometheusSink) observeAttempt(evt progress.Event, result string) {
	s.attemptsTotal.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.attemptRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
