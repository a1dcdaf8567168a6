package mqtt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/hvac-link-core/internal/infrastructure/config"
)

func TestRetryPolicy_SucceedsAfterFailures(t *testing.T) {
	rec := &sleepRecorder{}
	p := RetryPolicy{MaxAttempts: 3, Delay: time.Second, Sleep: rec.sleep}

	var betweens []int
	attempts, err := p.Do(context.Background(),
		func(attempt int) error {
			if attempt < 3 {
				return errors.New("transient")
			}
			return nil
		},
		func(attempt int, _ error) { betweens = append(betweens, attempt) },
	)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if len(betweens) != 2 || betweens[0] != 1 || betweens[1] != 2 {
		t.Errorf("between calls = %v, want [1 2]", betweens)
	}
	if len(rec.delays) != 2 {
		t.Errorf("sleeps = %v, want 2", rec.delays)
	}
}

func TestRetryPolicy_Exhausted(t *testing.T) {
	rec := &sleepRecorder{}
	p := RetryPolicy{MaxAttempts: 3, Delay: time.Second, Sleep: rec.sleep}
	last := errors.New("third failure")

	calls := 0
	attempts, err := p.Do(context.Background(), func(attempt int) error {
		calls++
		if attempt == 3 {
			return last
		}
		return errors.New("earlier failure")
	}, nil)

	if !errors.Is(err, last) {
		t.Errorf("Do() error = %v, want last error", err)
	}
	if attempts != 3 || calls != 3 {
		t.Errorf("attempts = %d calls = %d, want 3", attempts, calls)
	}
	if len(rec.delays) != 2 {
		t.Errorf("no sleep expected after the final attempt, got %v", rec.delays)
	}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	tests := []struct {
		name   string
		policy RetryPolicy
		want   []time.Duration
	}{
		{
			name:   "fixed",
			policy: RetryPolicy{MaxAttempts: 4, Delay: time.Second, Multiplier: 1},
			want:   []time.Duration{time.Second, time.Second, time.Second},
		},
		{
			name:   "exponential capped",
			policy: RetryPolicy{MaxAttempts: 5, Delay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: 300 * time.Millisecond},
			want:   []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &sleepRecorder{}
			tt.policy.Sleep = rec.sleep
			tt.policy.Do(context.Background(), func(int) error { return errors.New("fail") }, nil) //nolint:errcheck // only delays matter

			if len(rec.delays) != len(tt.want) {
				t.Fatalf("delays = %v, want %v", rec.delays, tt.want)
			}
			for i := range tt.want {
				if rec.delays[i] != tt.want[i] {
					t.Errorf("delay[%d] = %v, want %v", i, rec.delays[i], tt.want[i])
				}
			}
		})
	}
}

func TestRetryPolicy_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	attempts, _ := RetryPolicy{}.Do(context.Background(), func(int) error {
		calls++
		return errors.New("fail")
	}, nil)
	if calls != 1 || attempts != 1 {
		t.Errorf("calls = %d attempts = %d, want 1", calls, attempts)
	}
}

func TestRetryPolicy_StopsOnContextError(t *testing.T) {
	calls := 0
	_, err := RetryPolicy{MaxAttempts: 3}.Do(context.Background(), func(int) error {
		calls++
		return context.DeadlineExceeded
	}, nil)
	if !errors.Is(err, context.DeadlineExceeded) || calls != 1 {
		t.Errorf("err = %v calls = %d, want DeadlineExceeded after 1 call", err, calls)
	}
}

func TestRetryPolicy_CancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{MaxAttempts: 3, Delay: time.Hour}

	calls := 0
	_, err := p.Do(ctx, func(int) error {
		calls++
		cancel()
		return errors.New("fail")
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig(config.MQTTPublishConfig{MaxAttempts: 3, RetryDelay: time.Second})
	if p.MaxAttempts != 3 || p.Delay != time.Second || p.Multiplier != 1 {
		t.Errorf("PolicyFromConfig() = %+v", p)
	}
}
