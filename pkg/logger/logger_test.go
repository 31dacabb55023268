package logger

import (
	"bytes"
	"context"
	"testing"

	charmlog "github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContext(t *testing.T) {
	t.Run("ShouldReturnDefaultWhenContextHasNoLogger", func(t *testing.T) {
		logger := FromContext(context.Background())
		require.NotNil(t, logger)
		assert.Same(t, defaultLogger, logger)
	})

	t.Run("ShouldReturnAttachedLogger", func(t *testing.T) {
		buf := &bytes.Buffer{}
		attached := charmlog.New(buf)
		ctx := ContextWithLogger(context.Background(), attached)
		logger := FromContext(ctx)
		require.Same(t, attached, logger)
		logger.Info("hello", "key", "value")
		assert.Contains(t, buf.String(), "hello")
	})

	t.Run("ShouldParseLevels", func(t *testing.T) {
		assert.Equal(t, charmlog.DebugLevel, ParseLevel("debug"))
		assert.Equal(t, charmlog.WarnLevel, ParseLevel("warn"))
		assert.Equal(t, charmlog.ErrorLevel, ParseLevel("error"))
		assert.Equal(t, charmlog.InfoLevel, ParseLevel("anything"))
	})
}
