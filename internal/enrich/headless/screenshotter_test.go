package headless

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDisabledWithoutConcurrency(t *testing.T) {
	t.Parallel()

	_, err := New(Config{MaxConcurrency: 0}, nil)
	require.ErrorIs(t, err, ErrDisabled)
}

func TestNilScreenshotterCapture(t *testing.T) {
	t.Parallel()

	var s *Screenshotter
	_, err := s.Capture(t.Context(), "https://example.com")
	assert.ErrorIs(t, err, ErrDisabled)

	require.NoError(t, s.Close(t.Context()))
}
