package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	waits []time.Duration
}

func (r *recorder) policy() Policy {
	p := DefaultPolicy()
	p.Sleep = func(_ context.Context, d time.Duration) error {
		r.waits = append(r.waits, d)
		return nil
	}
	p.Jitter = func(time.Duration) time.Duration { return 0 }
	return p
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"model is Overloaded", true},
		{"server error: 503", true},
		{"upstream returned 502", true},
		{"context deadline exceeded", true},
		{"request TIMEOUT", true},
		{"model not ready", true},
		{"invalid api key", false},
		{`Post "https://llm-server.internal/v1/chat": dial tcp: connection refused`, false},
		{"request rejected: 401", false},
		{"bad request: 400", false},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(errors.New(tt.msg)))
		})
	}
	assert.False(t, IsTransient(nil))
}

func TestDoExhaustsTransient(t *testing.T) {
	var rec recorder
	calls := 0
	transient := errors.New("server overloaded")

	_, err := Do(context.Background(), rec.policy(), func(context.Context) (string, error) {
		calls++
		return "", transient
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{800 * time.Millisecond, 1600 * time.Millisecond, 3200 * time.Millisecond}, rec.waits)
}

func TestDoFatalAbortsImmediately(t *testing.T) {
	var rec recorder
	calls := 0
	fatal := errors.New("invalid api key")

	_, err := Do(context.Background(), rec.policy(), func(context.Context) (int, error) {
		calls++
		return 0, fatal
	})

	assert.Same(t, fatal, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.waits)
}

func TestDoRecovers(t *testing.T) {
	var rec recorder
	calls := 0

	v, err := Do(context.Background(), rec.policy(), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("503 service unavailable")
		}
		return "OK", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "OK", v)
	assert.Equal(t, 3, calls)
	assert.Len(t, rec.waits, 2)
}

func TestJitterIsAdded(t *testing.T) {
	var rec recorder
	p := rec.policy()
	p.Jitter = func(max time.Duration) time.Duration { return max }

	_, _ = Do(context.Background(), p, func(context.Context) (int, error) {
		return 0, errors.New("timeout")
	})

	require.Len(t, rec.waits, 3)
	assert.Equal(t, 1050*time.Millisecond, rec.waits[0])
}

func TestUniformJitterBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		j := UniformJitter(250 * time.Millisecond)
		assert.GreaterOrEqual(t, j, time.Duration(0))
		assert.LessOrEqual(t, j, 250*time.Millisecond)
	}
	assert.Zero(t, UniformJitter(0))
}

func TestDoStopsOnCancelledSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	p := DefaultPolicy()
	p.Jitter = func(time.Duration) time.Duration { return 0 }
	_, err := Do(ctx, p, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("overloaded")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
