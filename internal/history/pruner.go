package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultPruneSchedule runs the pruner at 03:00 every day.
const DefaultPruneSchedule = "0 3 * * *"

// Prunable is a history backend that can be trimmed to its newest entries.
type Prunable interface {
	Prune(ctx context.Context, retain int) (int64, error)
}

// Pruner trims a history backend on a cron schedule.
type Pruner struct {
	target Prunable
	retain int
	logger *slog.Logger
}

// NewPruner creates a Pruner keeping the newest retain entries.
func NewPruner(target Prunable, retain int, logger *slog.Logger) *Pruner {
	if retain <= 0 {
		retain = DefaultRetain
	}
	return &Pruner{
		target: target,
		retain: retain,
		logger: logger.With(slog.String("component", "history_pruner")),
	}
}

// Run executes a single prune.
func (p *Pruner) Run(ctx context.Context) error {
	n, err := p.target.Prune(ctx, p.retain)
	if err != nil {
		return fmt.Errorf("history: prune to %d: %w", p.retain, err)
	}
	p.logger.Info("history: pruned", slog.Int64("removed", n), slog.Int("retain", p.retain))
	return nil
}

// RunCron runs the pruner on a standard 5-field cron schedule (descriptors
// such as "@hourly" also work) until ctx is cancelled.
func (p *Pruner) RunCron(ctx context.Context, expr string) error {
	if expr == "" {
		expr = DefaultPruneSchedule
	}
	c := cron.New(cron.WithLocation(time.UTC))
	_, err := c.AddFunc(expr, func() {
		if err := p.Run(ctx); err != nil {
			p.logger.Error("history: prune failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return fmt.Errorf("history: parse schedule %q: %w", expr, err)
	}

	p.logger.Info("history: pruner started", slog.String("schedule", expr))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	p.logger.Info("history: pruner stopped")
	return nil
}
