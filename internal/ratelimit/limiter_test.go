package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledLimiterAlwaysAllows(t *testing.T) {
	l := NewLimiter(nil, 1, 1, false)
	defer l.Close()

	for i := 0; i < 100; i++ {
		allowed, err := l.Allow(context.Background(), "user")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
}

func TestLocalLimiterEnforcesBurst(t *testing.T) {
	l := NewLimiter(nil, 60, 3, true)
	defer l.Close()

	for i := 0; i < 3; i++ {
		allowed, err := l.Allow(context.Background(), "user")
		require.NoError(t, err)
		assert.True(t, allowed, "send %d within burst", i)
	}

	allowed, err := l.Allow(context.Background(), "user")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestLocalLimiterIsolatesKeys(t *testing.T) {
	l := NewLimiter(nil, 60, 1, true)
	defer l.Close()

	allowed, err := l.Allow(context.Background(), "alice")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = l.Allow(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, allowed)

	// A different user still has their own budget.
	allowed, err = l.Allow(context.Background(), "bob")
	require.NoError(t, err)
	assert.True(t, allowed)
}
