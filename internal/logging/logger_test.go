package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		cfg   Config
		debug bool
	}{
		{name: "development", cfg: Config{Development: true}, debug: true},
		{name: "production", cfg: Config{}, debug: false},
		{name: "production debug", cfg: Config{Level: "debug"}, debug: true},
		{name: "development warn", cfg: Config{Development: true, Level: "warn"}, debug: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			logger, err := New(tt.cfg)
			require.NoError(t, err)
			defer logger.Sync() //nolint:errcheck // best-effort flush
			assert.Equal(t, tt.debug, logger.Core().Enabled(zap.DebugLevel))
		})
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Level: "verbose"})
	require.ErrorContains(t, err, "logging.level")
}
