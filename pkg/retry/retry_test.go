package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleepRecorder struct {
	delays []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func TestLockPolicyDelays(t *testing.T) {
	p := LockPolicy()
	want := []time.Duration{
		50 * time.Millisecond,
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		500 * time.Millisecond,
		500 * time.Millisecond,
	}
	for attempt, d := range want {
		assert.Equal(t, d, p.Delay(attempt), "attempt %d", attempt)
	}
}

func TestDoSucceedsWithoutSleeping(t *testing.T) {
	rec := &sleepRecorder{}
	p := LockPolicy()
	p.Sleep = rec.sleep

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context, attempt int) (bool, error) {
		calls++
		return true, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.delays)
}

func TestDoExhaustsAndSkipsFinalSleep(t *testing.T) {
	rec := &sleepRecorder{}
	p := LockPolicy()
	p.Sleep = rec.sleep

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context, attempt int) (bool, error) {
		calls++
		return false, nil
	})

	require.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 5, calls)
	assert.Equal(t, []time.Duration{
		50 * time.Millisecond,
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
	}, rec.delays)
}

func TestDoSucceedsOnThirdAttempt(t *testing.T) {
	rec := &sleepRecorder{}
	p := LockPolicy()
	p.Sleep = rec.sleep

	err := p.Do(context.Background(), func(ctx context.Context, attempt int) (bool, error) {
		return attempt == 2, nil
	})

	require.NoError(t, err)
	assert.Len(t, rec.delays, 2)
}

func TestDoKeepsLastError(t *testing.T) {
	p := PublishPolicy()
	p.Sleep = (&sleepRecorder{}).sleep
	boom := errors.New("broker down")

	err := p.Do(context.Background(), func(ctx context.Context, attempt int) (bool, error) {
		return false, boom
	})

	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, boom)
}

func TestDoPermanentStopsImmediately(t *testing.T) {
	p := LockPolicy()
	rec := &sleepRecorder{}
	p.Sleep = rec.sleep
	bad := errors.New("bad payload")

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context, attempt int) (bool, error) {
		calls++
		return false, Permanent(bad)
	})

	assert.Equal(t, bad, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.delays)
}

func TestDoHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := LockPolicy().Do(ctx, func(ctx context.Context, attempt int) (bool, error) {
		t.Fatal("fn must not run on a cancelled context")
		return false, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTimerSleepReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, timerSleep(ctx, time.Hour), context.Canceled)
}
