package crawler

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPauser struct {
	delays []time.Duration
}

func (r *recordingPauser) Pause(ctx context.Context, delay time.Duration) error {
	r.delays = append(r.delays, delay)
	return ctx.Err()
}

func TestRandomPacerStaysWithinBounds(t *testing.T) {
	t.Parallel()

	cfg := DefaultPacing()
	pacer := NewRandomPacer(cfg, rand.New(rand.NewPCG(1, 2)), nil)
	pauser := &recordingPauser{}
	pacer.pauser = pauser
	provider := newFakeProvider(nil)

	for i := 0; i < 50; i++ {
		require.NoError(t, pacer.Pace(context.Background(), provider))
	}
	require.Len(t, pauser.delays, 150)
	for i, d := range pauser.delays {
		var r Range[time.Duration]
		switch i % 3 {
		case 0:
			r = cfg.Wait
		case 1:
			r = cfg.ScrollWait
		default:
			r = cfg.MouseWait
		}
		assert.GreaterOrEqual(t, d, r.Min)
		assert.LessOrEqual(t, d, r.Max)
	}
	for _, dy := range provider.scrolls {
		assert.GreaterOrEqual(t, dy, cfg.Scroll.Min)
		assert.LessOrEqual(t, dy, cfg.Scroll.Max)
	}
	for _, m := range provider.moves {
		assert.GreaterOrEqual(t, m[0], 0.0)
		assert.LessOrEqual(t, m[0], 1280.0)
		assert.GreaterOrEqual(t, m[1], 0.0)
		assert.LessOrEqual(t, m[1], 800.0)
	}
}

func TestRandomPacerHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pacer := NewRandomPacer(DefaultPacing(), nil, nil)
	provider := newFakeProvider(nil)
	start := time.Now()
	err := pacer.Pace(ctx, provider)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
	assert.Empty(t, provider.scrolls)
}

func TestTimerPauseControllerHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pauser := &timerPauseController{}
	start := time.Now()
	err := pauser.Pause(ctx, 5*time.Second)
	require.Error(t, err)
	require.Less(t, time.Since(start), time.Second, "pause should exit immediately when context is done")
}

func TestPacingConfigValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultPacing().Validate())

	inverted := DefaultPacing()
	inverted.Wait = Range[time.Duration]{Min: 10 * time.Second, Max: time.Second}
	assert.ErrorContains(t, inverted.Validate(), "pacing.wait")

	negative := DefaultPacing()
	negative.Scroll.Min = -1
	assert.ErrorContains(t, negative.Validate(), "pacing.scroll")
}
