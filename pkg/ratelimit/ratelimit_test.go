package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_Unconfigured(t *testing.T) {
	l := New()
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(context.Background(), "shop"))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiter_MinInterval(t *testing.T) {
	l := New()
	l.Set("shop", 20*time.Millisecond)

	start := time.Now()
	for i := 0; i < 4; i++ {
		require.NoError(t, l.Wait(context.Background(), "shop"))
	}
	// The first request passes immediately, the next three wait one interval each.
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)

	start = time.Now()
	require.NoError(t, l.Wait(context.Background(), "other"))
	assert.Less(t, time.Since(start), 10*time.Millisecond, "other providers are not affected")
}

func TestLimiter_SetSameIntervalKeepsSchedule(t *testing.T) {
	l := New()
	l.Set("shop", 50*time.Millisecond)
	require.NoError(t, l.Wait(context.Background(), "shop"))

	// A worker configuring the same interval must not hand out a fresh burst.
	l.Set("shop", 50*time.Millisecond)
	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), "shop"))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	l.Set("shop", 0)
	start = time.Now()
	require.NoError(t, l.Wait(context.Background(), "shop"))
	assert.Less(t, time.Since(start), 10*time.Millisecond)
}

func TestLimiter_Hold(t *testing.T) {
	l := New()
	l.Hold("shop", 30*time.Millisecond)
	l.Hold("shop", time.Millisecond)

	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), "shop"))
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestLimiter_WaitCancelled(t *testing.T) {
	l := New()
	l.Hold("shop", time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Wait(ctx, "shop"), context.DeadlineExceeded)
}

func TestLimiter_Nil(t *testing.T) {
	var l *Limiter
	assert.NoError(t, l.Wait(context.Background(), "shop"))
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 30*time.Second, ParseRetryAfter("30", now))
	assert.Equal(t, 90*time.Second, ParseRetryAfter("Mon, 01 Jan 2024 12:01:30 GMT", now))
	assert.Zero(t, ParseRetryAfter("Mon, 01 Jan 2024 11:00:00 GMT", now), "dates in the past")
	assert.Zero(t, ParseRetryAfter("", now))
	assert.Zero(t, ParseRetryAfter("-5", now))
	assert.Zero(t, ParseRetryAfter("soon", now))
}
