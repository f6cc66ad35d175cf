package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterWindow(t *testing.T) {
	limiter := NewMemoryLimiter(time.Minute, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok, "Запрос %d должен пройти", i+1)
	}

	ok, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok, "Четвертый запрос в окне должен быть отвергнут")
}

func TestMemoryLimiterPerIdentifier(t *testing.T) {
	limiter := NewMemoryLimiter(time.Minute, 1)
	ctx := context.Background()

	ok, _ := limiter.Allow(ctx, "10.0.0.1")
	assert.True(t, ok)
	ok, _ = limiter.Allow(ctx, "10.0.0.1")
	assert.False(t, ok)

	// Другой идентификатор считается отдельно.
	ok, _ = limiter.Allow(ctx, "10.0.0.2")
	assert.True(t, ok)
}

func TestMemoryLimiterWindowExpiry(t *testing.T) {
	limiter := NewMemoryLimiter(50*time.Millisecond, 1)
	ctx := context.Background()

	ok, _ := limiter.Allow(ctx, "10.0.0.1")
	assert.True(t, ok)
	ok, _ = limiter.Allow(ctx, "10.0.0.1")
	assert.False(t, ok)

	time.Sleep(60 * time.Millisecond)

	ok, _ = limiter.Allow(ctx, "10.0.0.1")
	assert.True(t, ok, "После истечения окна лимит должен сброситься")
}

func TestMemoryLimiterDefaults(t *testing.T) {
	limiter := NewMemoryLimiter(0, 0)
	assert.Equal(t, DefaultWindow, limiter.window)
	assert.Equal(t, DefaultMaxRequests, limiter.max)
}
