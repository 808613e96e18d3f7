package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type blockingRunner struct {
	started *atomic.Int32
	err     error
}

func (r *blockingRunner) Run(ctx context.Context) error {
	r.started.Add(1)
	<-ctx.Done()
	return r.err
}

func TestGroup_RunsAllAndClosesInReverse(t *testing.T) {
	var started atomic.Int32
	var mu sync.Mutex
	var closed []int

	g := NewGroup(3, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())

	err := g.Start(ctx, func(ctx context.Context, id int) (*Instance, error) {
		return &Instance{
			Runner: &blockingRunner{started: &started},
			Close: func() error {
				mu.Lock()
				closed = append(closed, id)
				mu.Unlock()
				return nil
			},
		}, nil
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for started.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if started.Load() != 3 {
		t.Fatalf("Expected 3 running instances, got %d", started.Load())
	}

	cancel()
	if err := g.Wait(); err != nil {
		t.Errorf("Wait returned error: %v", err)
	}

	if len(closed) != 3 || closed[0] != 2 || closed[2] != 0 {
		t.Errorf("Expected reverse close order, got %v", closed)
	}
}

func TestGroup_FactoryErrorClosesBuilt(t *testing.T) {
	var started atomic.Int32
	closed := 0

	g := NewGroup(3, zaptest.NewLogger(t))
	err := g.Start(context.Background(), func(ctx context.Context, id int) (*Instance, error) {
		if id == 2 {
			return nil, errors.New("chrome not found")
		}
		return &Instance{
			Runner: &blockingRunner{started: &started},
			Close:  func() error { closed++; return nil },
		}, nil
	})

	if err == nil {
		t.Fatal("Expected error from Start")
	}
	if closed != 2 {
		t.Errorf("Expected 2 instances closed, got %d", closed)
	}
	if started.Load() != 0 {
		t.Errorf("Expected no instance started, got %d", started.Load())
	}
}

func TestGroup_WaitJoinsErrors(t *testing.T) {
	var started atomic.Int32
	boom := errors.New("boom")

	g := NewGroup(2, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	g.Start(ctx, func(ctx context.Context, id int) (*Instance, error) {
		return &Instance{Runner: &blockingRunner{started: &started, err: boom}}, nil
	})
	cancel()

	if err := g.Wait(); !errors.Is(err, boom) {
		t.Errorf("Expected joined boom error, got %v", err)
	}
}
