package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{10, 30 * time.Second},
		{63, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			if got := exponentialBackoff(tt.attempt); got != tt.want {
				t.Errorf("exponentialBackoff(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"connection closed", errors.New("Exception (504) Reason: \"channel/connection is not open\": connection closed"), true},
		{"EOF", errors.New("read tcp: EOF"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"closed network connection", errors.New("use of closed network connection"), true},
		{"not found", errors.New("queue not found"), false},
		{"validation error", errors.New("invalid routing key"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConnectionError(tt.err); got != tt.want {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestCircuitBreakerStates(t *testing.T) {
	client := &Client{}

	if client.isCircuitOpen() {
		t.Error("new client should start with closed circuit")
	}

	// Failures below the threshold keep the circuit closed.
	for i := 0; i < maxFailures-1; i++ {
		client.recordFailure()
	}
	if client.isCircuitOpen() {
		t.Errorf("circuit should stay closed after %d failures", maxFailures-1)
	}

	// One more failure trips the breaker.
	client.recordFailure()
	if !client.isCircuitOpen() {
		t.Errorf("circuit should open after %d failures", maxFailures)
	}

	// A success resets everything.
	client.recordSuccess()
	if client.isCircuitOpen() {
		t.Error("circuit should close after a success")
	}
	if got := atomic.LoadInt64(&client.failureCount); got != 0 {
		t.Errorf("failureCount = %d after success, want 0", got)
	}
}

func TestCircuitBreakerHalfOpenAfterTimeout(t *testing.T) {
	client := &Client{}

	atomic.StoreInt32(&client.state, StateOpen)
	atomic.StoreInt64(&client.lastFailureNanos, time.Now().Add(-openTimeout-time.Second).UnixNano())

	if client.isCircuitOpen() {
		t.Error("circuit should allow a probe after the open timeout")
	}
	if got := atomic.LoadInt32(&client.state); got != StateHalfOpen {
		t.Errorf("state = %d after timeout, want StateHalfOpen", got)
	}
}

func TestCircuitBreakerConcurrentFailures(t *testing.T) {
	client := &Client{}

	// Failure recording and circuit checks run from concurrent
	// publishers; this is primarily a race detector target.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				client.recordFailure()
				client.isCircuitOpen()
			}
		}()
	}
	wg.Wait()

	if !client.isCircuitOpen() {
		t.Errorf("circuit should be open after %d failures", 8*20)
	}
}

func TestPublishFailsWhenCircuitOpen(t *testing.T) {
	client := &Client{}
	atomic.StoreInt32(&client.state, StateOpen)
	atomic.StoreInt64(&client.lastFailureNanos, time.Now().UnixNano())

	err := client.PublishSnapshotExport(context.Background(), "acc-1", 1)
	if err == nil {
		t.Fatal("expected error when circuit is open")
	}
	if !strings.Contains(err.Error(), "circuit breaker is open") {
		t.Errorf("error = %q, want circuit breaker message", err)
	}
}

func TestPublishRespectsContextCancellation(t *testing.T) {
	client := &Client{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.PublishSnapshotExport(ctx, "acc-1", 1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestSnapshotExportMessageRoundTrip(t *testing.T) {
	msg := NewSnapshotExportMessage("acc-42", 7)

	data, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}

	decoded, err := SnapshotExportMessageFromJSON(data)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}

	if decoded.AccountID != "acc-42" {
		t.Errorf("AccountID = %q, want acc-42", decoded.AccountID)
	}
	if decoded.Version != 7 {
		t.Errorf("Version = %d, want 7", decoded.Version)
	}
	if decoded.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
}

func TestSnapshotExportMessageFromJSONInvalid(t *testing.T) {
	if _, err := SnapshotExportMessageFromJSON([]byte("{not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
