package collector

import (
	"context"
	"time"

	"github.com/vaultshare/fileshare-api/internal/file"
	"github.com/vaultshare/fileshare-api/internal/logging"
	"github.com/vaultshare/fileshare-api/internal/storage"
)

// Collector periodically removes files that are past their expiry, out of
// download quota, or stuck in pending after a failed upload.
type Collector struct {
	repo         file.Repository
	store        storage.BlobStore
	logger       *logging.Logger
	interval     time.Duration
	pendingGrace time.Duration
	now          func() time.Time
}

func New(repo file.Repository, store storage.BlobStore, logger *logging.Logger, interval, pendingGrace time.Duration) *Collector {
	return &Collector{
		repo:         repo,
		store:        store,
		logger:       logger,
		interval:     interval,
		pendingGrace: pendingGrace,
		now:          time.Now,
	}
}

// Run sweeps on a fixed interval until the context is cancelled. Sweeps never
// overlap: a long sweep simply delays the next tick.
func (c *Collector) Run(ctx context.Context) {
	c.logger.Info("expiry collector started", "interval", c.interval.String())

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("expiry collector stopped")
			return
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}

// Sweep removes every purgeable file: storage blob first, record second, so
// an interrupted sweep leaves a record behind for the next run instead of an
// orphan blob. Per-file failures are logged and skipped.
func (c *Collector) Sweep(ctx context.Context) {
	now := c.now()
	pendingCutoff := now.Add(-c.pendingGrace)

	files, err := c.repo.ListPurgeable(ctx, now, pendingCutoff)
	if err != nil {
		c.logger.Error("sweep failed to list purgeable files", "error", err.Error())
		return
	}

	if len(files) == 0 {
		return
	}

	removed := 0
	for _, f := range files {
		if err := c.store.Delete(ctx, f.StorageKey); err != nil {
			c.logger.Warn("sweep failed to delete blob, will retry next run",
				"file_id", f.ID,
				"error", err.Error(),
			)
			continue
		}

		if err := c.repo.Delete(ctx, f.ID); err != nil {
			c.logger.Warn("sweep failed to delete record, will retry next run",
				"file_id", f.ID,
				"error", err.Error(),
			)
			continue
		}

		removed++
	}

	c.logger.Info("sweep completed", "candidates", len(files), "removed", removed)
}
