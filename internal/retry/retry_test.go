package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errFlaky = errors.New("flaky")

func TestDo(t *testing.T) {
	tests := []struct {
		name         string
		cfg          Config
		failFirst    int
		wantErr      bool
		wantAttempts int
	}{
		{"succeeds first time", Constant(3, 0), 0, false, 1},
		{"succeeds after retries", Constant(3, time.Millisecond), 2, false, 3},
		{"exhausts retries", Constant(2, time.Millisecond), 10, true, 3},
		{"zero retries runs once", Constant(0, time.Millisecond), 10, true, 1},
		{"negative retries runs once", Config{Retries: -4}, 10, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := Do(context.Background(), tt.cfg, func(attempt int) error {
				attempts++
				if attempt != attempts {
					t.Errorf("attempt = %d, want %d", attempt, attempts)
				}
				if attempts <= tt.failFirst {
					return errFlaky
				}
				return nil
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Do() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, errFlaky) {
				t.Errorf("Do() error = %v, want wrapping errFlaky", err)
			}
			if attempts != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", attempts, tt.wantAttempts)
			}
		})
	}
}

func TestDo_Permanent(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Constant(5, time.Millisecond), func(int) error {
		attempts++
		return Permanent(errFlaky)
	})
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if !IsPermanent(err) || !errors.Is(err, errFlaky) {
		t.Errorf("Do() error = %v, want permanent errFlaky", err)
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}

func TestDo_ContextCancelledDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	err := Do(ctx, Constant(3, time.Hour), func(int) error {
		attempts++
		cancel()
		return errFlaky
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestDo_InvalidConfig(t *testing.T) {
	err := Do(context.Background(), Config{Delay: -time.Second}, func(int) error { return nil })
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Do() error = %v, want ErrInvalidConfig", err)
	}
}

func TestDo_BackoffCapped(t *testing.T) {
	cfg := Config{Retries: 3, Delay: time.Millisecond, Multiplier: 10, MaxDelay: 2 * time.Millisecond}
	var stamps []time.Time

	_ = Do(context.Background(), cfg, func(int) error { //nolint:errcheck // only timing is checked
		stamps = append(stamps, time.Now())
		return errFlaky
	})

	if len(stamps) != 4 {
		t.Fatalf("attempts = %d, want 4", len(stamps))
	}
	// Without the cap the last gap would be 100ms.
	if gap := stamps[3].Sub(stamps[2]); gap > 50*time.Millisecond {
		t.Errorf("last backoff gap = %v, want capped near 2ms", gap)
	}
}
