package ratelimit

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLimiter_BurstThenRefill(t *testing.T) {
	clock := newFakeClock()
	l := New(5, 10, WithClock(clock.Now))

	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow(), "request %d within burst", i+1)
	}
	assert.False(t, l.Allow(), "11th request exceeds burst")

	clock.Advance(time.Second)

	admitted := 0
	for i := 0; i < 20; i++ {
		if l.Allow() {
			admitted++
		}
	}
	assert.GreaterOrEqual(t, admitted, 5)
	assert.LessOrEqual(t, admitted, 10)
}

func TestLimiter_RefillCappedAtBurst(t *testing.T) {
	clock := newFakeClock()
	l := New(5, 10, WithClock(clock.Now))

	for i := 0; i < 10; i++ {
		require.True(t, l.Allow())
	}

	clock.Advance(time.Hour)
	assert.Equal(t, 10.0, l.Tokens())

	admitted := 0
	for l.Allow() {
		admitted++
	}
	assert.Equal(t, 10, admitted)
}

func TestLimiter_AcquireRetryAfter(t *testing.T) {
	clock := newFakeClock()
	l := New(4, 1, WithClock(clock.Now))

	require.NoError(t, l.Acquire())

	err := l.Acquire()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLimitExceeded))

	var limitErr LimitExceededError
	require.True(t, errors.As(err, &limitErr))
	assert.Equal(t, 250*time.Millisecond, limitErr.RetryAfter)

	clock.Advance(125 * time.Millisecond)
	err = l.Acquire()
	require.True(t, errors.As(err, &limitErr))
	assert.Equal(t, 125*time.Millisecond, limitErr.RetryAfter)

	clock.Advance(125 * time.Millisecond)
	assert.NoError(t, l.Acquire())
}

func TestLimiter_FractionalRefill(t *testing.T) {
	clock := newFakeClock()
	l := New(2, 2, WithClock(clock.Now))

	require.True(t, l.Allow())
	require.True(t, l.Allow())
	require.False(t, l.Allow())

	clock.Advance(250 * time.Millisecond)
	assert.False(t, l.Allow(), "half a token is not enough")

	clock.Advance(250 * time.Millisecond)
	assert.True(t, l.Allow())
}

func TestLimiter_ClockGoingBackwards(t *testing.T) {
	clock := newFakeClock()
	l := New(1, 1, WithClock(clock.Now))

	require.True(t, l.Allow())
	clock.Advance(-time.Minute)
	assert.False(t, l.Allow())
	assert.Equal(t, 0.0, l.Tokens())
}

func TestLimiter_Disabled(t *testing.T) {
	l := New(0, 0)
	assert.False(t, l.Enabled())
	for i := 0; i < 1000; i++ {
		require.True(t, l.Allow())
	}
	assert.NoError(t, l.Acquire())
	assert.True(t, math.IsInf(l.Tokens(), 1))

	var nilLimiter *Limiter
	assert.True(t, nilLimiter.Allow())
}

func TestLimiter_Concurrent(t *testing.T) {
	clock := newFakeClock()
	l := New(1, 50, WithClock(clock.Now))

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if l.Allow() {
					admitted.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), admitted.Load(), "exactly burst tokens are handed out")
}

func TestLimiter_RejectionsDoNotDelayRefill(t *testing.T) {
	clock := newFakeClock()
	l := New(10, 1, WithClock(clock.Now))

	require.NoError(t, l.Acquire())
	for i := 0; i < 100; i++ {
		var limitErr LimitExceededError
		require.True(t, errors.As(l.Acquire(), &limitErr))
		require.Equal(t, 100*time.Millisecond, limitErr.RetryAfter)
	}

	clock.Advance(100 * time.Millisecond)
	assert.NoError(t, l.Acquire(), "a token is back after one refill period")
}
