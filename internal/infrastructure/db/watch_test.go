package db

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type scriptedPinger struct {
	mu      sync.Mutex
	results []error
	calls   int
}

func (p *scriptedPinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	p.calls++
	if i < len(p.results) {
		return p.results[i]
	}
	return nil
}

func TestWatch_ReportsConsecutiveFailures(t *testing.T) {
	boom := errors.New("no reachable servers")
	p := &scriptedPinger{results: []error{boom, nil, boom, boom, boom}}

	lost := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		Watch(context.Background(), p, WatchConfig{Interval: time.Millisecond, MaxFailures: 3}, zerolog.Nop(), func(err error) { lost <- err })
		close(done)
	}()

	select {
	case err := <-lost:
		if !errors.Is(err, boom) {
			t.Fatalf("expected wrapped ping error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("onLost not called")
	}
	<-done

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls != 5 {
		t.Fatalf("pings = %d, want 5 (a success resets the count)", p.calls)
	}
}

func TestWatch_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Watch(ctx, &scriptedPinger{}, WatchConfig{Interval: time.Millisecond}, zerolog.Nop(), func(error) {
			t.Error("onLost called for a healthy store")
		})
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
