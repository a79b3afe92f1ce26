package jobs

import (
	"context"
	"log/slog"
	"time"
)

// VatCachePruner deletes validation cache entries older than a cutoff.
// Implemented by the postgres VAT cache.
type VatCachePruner interface {
	PruneExpired(ctx context.Context, before time.Time) (int64, error)
}

// CleanupConfig configures the periodic VAT cache cleanup.
type CleanupConfig struct {
	// Interval between cleanup runs. Defaults to 24h.
	Interval time.Duration

	// MaxAge is how long entries are kept. Expired entries are already
	// ignored by the validator; pruning just keeps the table small.
	MaxAge time.Duration

	Logger *slog.Logger
}

// Cleanup runs the periodic maintenance loop.
type Cleanup struct {
	pruner VatCachePruner
	cfg    CleanupConfig
	logger *slog.Logger
}

// NewCleanup creates the cleanup job.
func NewCleanup(pruner VatCachePruner, cfg CleanupConfig) *Cleanup {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleanup{pruner: pruner, cfg: cfg, logger: logger}
}

// Run prunes on the configured interval until the context is cancelled.
// A failed run is logged and retried on the next tick.
func (c *Cleanup) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runOnce(ctx)
		}
	}
}

func (c *Cleanup) runOnce(ctx context.Context) {
	cutoff := time.Now().Add(-c.cfg.MaxAge)
	deleted, err := c.pruner.PruneExpired(ctx, cutoff)
	if err != nil {
		c.logger.Error("VAT cache cleanup failed", "error", err)
		return
	}
	if deleted > 0 {
		c.logger.Info("VAT cache pruned", "deleted", deleted, "cutoff", cutoff)
	}
}
