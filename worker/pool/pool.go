package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Runner is one long lived orchestrator instance.
type Runner interface {
	Run(ctx context.Context) error
}

// Instance is a runner plus whatever it exclusively owns (browser, OCR
// client, HTTP client) and must release after it stops.
type Instance struct {
	Runner Runner
	Close  func() error
}

// Factory builds the i-th instance.
type Factory func(ctx context.Context, id int) (*Instance, error)

// Group runs a fixed number of independent instances against one queue.
type Group struct {
	size      int
	logger    *zap.Logger
	instances []*Instance
	errs      []error
	mu        sync.Mutex
	wg        sync.WaitGroup
}

func NewGroup(size int, logger *zap.Logger) *Group {
	if size < 1 {
		size = 1
	}
	return &Group{size: size, logger: logger}
}

// Start builds every instance and launches it. If any instance fails to
// build, the ones already built are closed and nothing is started.
func (g *Group) Start(ctx context.Context, factory Factory) error {
	for i := 0; i < g.size; i++ {
		inst, err := factory(ctx, i)
		if err != nil {
			g.closeAll()
			return fmt.Errorf("instance %d: %w", i, err)
		}
		g.instances = append(g.instances, inst)
	}

	for i, inst := range g.instances {
		g.wg.Add(1)
		go func(id int, inst *Instance) {
			defer g.wg.Done()
			g.logger.Info("Instance started", zap.Int("instance", id))
			if err := inst.Runner.Run(ctx); err != nil {
				g.logger.Error("Instance stopped with error", zap.Int("instance", id), zap.Error(err))
				g.mu.Lock()
				g.errs = append(g.errs, err)
				g.mu.Unlock()
				return
			}
			g.logger.Info("Instance stopped", zap.Int("instance", id))
		}(i, inst)
	}
	return nil
}

// Wait blocks until every instance has returned, then releases their
// resources in reverse start order.
func (g *Group) Wait() error {
	g.wg.Wait()
	g.closeAll()

	g.mu.Lock()
	defer g.mu.Unlock()
	return errors.Join(g.errs...)
}

func (g *Group) Size() int { return g.size }

func (g *Group) closeAll() {
	for i := len(g.instances) - 1; i >= 0; i-- {
		inst := g.instances[i]
		if inst.Close == nil {
			continue
		}
		if err := inst.Close(); err != nil {
			g.logger.Warn("Failed to close instance", zap.Int("instance", i), zap.Error(err))
		}
	}
	g.instances = nil
}
