// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	mperrors "github.com/absmach/mhttp/pkg/errors"
)

var errDial = errors.New("connection refused")

func fail(ctx context.Context) error    { return errDial }
func succeed(ctx context.Context) error { return nil }

func TestCircuitBreaker_Opens(t *testing.T) {
	cb := New(Config{MaxFailures: 3, ResetTimeout: time.Hour})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := cb.Execute(ctx, fail); !errors.Is(err, errDial) {
			t.Fatalf("call %d: error = %v, want %v", i, err, errDial)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want %v", cb.State(), StateOpen)
	}

	called := false
	err := cb.Execute(ctx, func(ctx context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("error = %v, want ErrCircuitOpen", err)
	}
	if !errors.Is(err, mperrors.ErrBackendUnavailable) {
		t.Errorf("error = %v, want it to wrap ErrBackendUnavailable", err)
	}
	if called {
		t.Error("open circuit must not run the call")
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := New(Config{MaxFailures: 2, ResetTimeout: time.Hour})
	ctx := context.Background()

	cb.Execute(ctx, fail)
	cb.Execute(ctx, succeed)
	cb.Execute(ctx, fail)

	if state, failures, _ := cb.Stats(); state != StateClosed || failures != 1 {
		t.Errorf("Stats() = %v, %d, want closed with 1 failure", state, failures)
	}
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	cases := []struct {
		name  string
		calls []func(context.Context) error
		want  State
	}{
		{
			name:  "closes after enough successes",
			calls: []func(context.Context) error{succeed, succeed},
			want:  StateClosed,
		},
		{
			name:  "stays half open below the threshold",
			calls: []func(context.Context) error{succeed},
			want:  StateHalfOpen,
		},
		{
			name:  "reopens on failure",
			calls: []func(context.Context) error{succeed, fail},
			want:  StateOpen,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cb := New(Config{MaxFailures: 1, ResetTimeout: time.Millisecond, SuccessThreshold: 2})
			ctx := context.Background()

			cb.Execute(ctx, fail)
			time.Sleep(5 * time.Millisecond)

			for _, call := range tc.calls {
				cb.Execute(ctx, call)
			}
			if cb.State() != tc.want {
				t.Errorf("State() = %v, want %v", cb.State(), tc.want)
			}
		})
	}
}

func TestCircuitBreaker_HalfOpenLimitsProbes(t *testing.T) {
	cb := New(Config{MaxFailures: 1, ResetTimeout: time.Millisecond, SuccessThreshold: 1})
	ctx := context.Background()

	cb.Execute(ctx, fail)
	time.Sleep(5 * time.Millisecond)

	inFlight := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(ctx, func(ctx context.Context) error {
			close(inFlight)
			<-release
			return nil
		})
	}()
	<-inFlight

	if err := cb.Execute(ctx, succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second probe error = %v, want ErrCircuitOpen", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe error = %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want %v", cb.State(), StateClosed)
	}
}

func TestCircuitBreaker_Timeout(t *testing.T) {
	cb := New(Config{MaxFailures: 1, ResetTimeout: time.Hour, Timeout: 10 * time.Millisecond})

	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
	if cb.State() != StateOpen {
		t.Errorf("State() = %v, want a timed out call to count as a failure", cb.State())
	}
}

func TestCircuitBreaker_CallerCancel(t *testing.T) {
	cb := New(Config{MaxFailures: 1, ResetTimeout: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want a canceled caller not to trip the breaker", cb.State())
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	cb := New(Config{MaxFailures: 1, ResetTimeout: time.Hour})

	changes := make(chan [2]State, 1)
	cb.OnStateChange(func(from, to State) {
		changes <- [2]State{from, to}
	})

	cb.Execute(context.Background(), fail)

	select {
	case got := <-changes:
		if got != [2]State{StateClosed, StateOpen} {
			t.Errorf("state change = %v, want closed -> open", got)
		}
	case <-time.After(time.Second):
		t.Fatal("state change callback not called")
	}
}

func TestState_String(t *testing.T) {
	cases := map[State]string{
		StateClosed:   "closed",
		StateHalfOpen: "half_open",
		StateOpen:     "open",
		State(42):     "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(state), got, want)
		}
	}
}
