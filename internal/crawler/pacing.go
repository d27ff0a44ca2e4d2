package crawler

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Range is an inclusive pair of bounds.
type Range[T int | time.Duration] struct {
	Min T `mapstructure:"min"`
	Max T `mapstructure:"max"`
}

// PacingConfig bounds every randomized step of RandomPacer.
type PacingConfig struct {
	Wait       Range[time.Duration] `mapstructure:"wait"`
	Scroll     Range[int]           `mapstructure:"scroll"`
	ScrollWait Range[time.Duration] `mapstructure:"scroll_wait"`
	MouseWait  Range[time.Duration] `mapstructure:"mouse_wait"`
}

// DefaultPacing mirrors a slow human reader: a long settle wait, one scroll and
// one pointer movement per page.
func DefaultPacing() PacingConfig {
	return PacingConfig{
		Wait:       Range[time.Duration]{Min: 5 * time.Second, Max: 10 * time.Second},
		Scroll:     Range[int]{Min: 300, Max: 1000},
		ScrollWait: Range[time.Duration]{Min: time.Second, Max: 3 * time.Second},
		MouseWait:  Range[time.Duration]{Min: time.Second, Max: 2 * time.Second},
	}
}

// Validate rejects negative or inverted bounds.
func (c PacingConfig) Validate() error {
	for name, r := range map[string]Range[time.Duration]{
		"pacing.wait":        c.Wait,
		"pacing.scroll_wait": c.ScrollWait,
		"pacing.mouse_wait":  c.MouseWait,
	} {
		if r.Min < 0 || r.Max < r.Min {
			return fmt.Errorf("%s must satisfy 0 <= min <= max", name)
		}
	}
	if c.Scroll.Min < 0 || c.Scroll.Max < c.Scroll.Min {
		return fmt.Errorf("pacing.scroll must satisfy 0 <= min <= max")
	}
	return nil
}

// pauseController abstracts how the crawler waits between actions.
type pauseController interface {
	Pause(ctx context.Context, delay time.Duration) error
}

type timerPauseController struct{}

func (p *timerPauseController) Pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("pause interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// RandomPacer waits, scrolls and moves the pointer by random amounts within
// the configured bounds.
type RandomPacer struct {
	cfg    PacingConfig
	logger *zap.Logger
	pauser pauseController

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomPacer builds a pacer. A nil rng seeds one from the runtime source.
func NewRandomPacer(cfg PacingConfig, rng *rand.Rand, logger *zap.Logger) *RandomPacer {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RandomPacer{
		cfg:    cfg,
		logger: logger,
		pauser: &timerPauseController{},
		rng:    rng,
	}
}

// Pace runs one wait, scroll and pointer-move cycle against page.
func (p *RandomPacer) Pace(ctx context.Context, page PageProvider) error {
	wait := p.duration(p.cfg.Wait)
	p.logger.Debug("pacing wait", zap.Duration("delay", wait))
	if err := p.pauser.Pause(ctx, wait); err != nil {
		return err
	}

	dy := p.intn(p.cfg.Scroll)
	p.logger.Debug("pacing scroll", zap.Int("pixels", dy))
	if err := page.Scroll(ctx, dy); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	if err := p.pauser.Pause(ctx, p.duration(p.cfg.ScrollWait)); err != nil {
		return err
	}

	width, height, err := page.Viewport(ctx)
	if err != nil {
		return fmt.Errorf("viewport: %w", err)
	}
	x := float64(p.intn(Range[int]{Max: width}))
	y := float64(p.intn(Range[int]{Max: height}))
	p.logger.Debug("pacing pointer", zap.Float64("x", x), zap.Float64("y", y))
	if err := page.MoveMouse(ctx, x, y); err != nil {
		return fmt.Errorf("move mouse: %w", err)
	}
	return p.pauser.Pause(ctx, p.duration(p.cfg.MouseWait))
}

func (p *RandomPacer) duration(r Range[time.Duration]) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return r.Min + time.Duration(p.rng.Int64N(int64(r.Max-r.Min)+1))
}

func (p *RandomPacer) intn(r Range[int]) int {
	if r.Max <= r.Min {
		return r.Min
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return r.Min + p.rng.IntN(r.Max-r.Min+1)
}

// NoopPacer skips pacing entirely.
type NoopPacer struct{}

// Pace implements Pacer.
func (NoopPacer) Pace(ctx context.Context, _ PageProvider) error {
	return ctx.Err()
}
