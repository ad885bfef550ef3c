package logger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jonesrussell/north-cloud/regwatch/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_BuildsJSONAndConsoleLoggers(t *testing.T) {
	t.Parallel()

	for _, format := range []string{logger.FormatJSON, logger.FormatConsole} {
		l, err := logger.New(logger.Config{
			Level:       "debug",
			Format:      format,
			OutputPaths: []string{"stderr"},
			Service:     "regwatch",
		})
		require.NoError(t, err, format)

		l.With(logger.String("task_id", "t-1")).Debug("scheduled",
			logger.Int("entries", 2),
			logger.Error(errors.New("boom")),
		)
	}
}

func TestFromContext(t *testing.T) {
	t.Parallel()

	fallback, err := logger.New(logger.Config{OutputPaths: []string{"stderr"}})
	require.NoError(t, err)

	reqLogger, err := logger.New(logger.Config{OutputPaths: []string{"stderr"}})
	require.NoError(t, err)

	ctx := logger.WithContext(context.Background(), reqLogger)
	assert.Same(t, reqLogger, logger.FromContext(ctx, fallback))
	assert.Same(t, fallback, logger.FromContext(context.Background(), fallback))
	assert.NotNil(t, logger.FromContext(context.Background(), nil))
}
