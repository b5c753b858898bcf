// Package janitor removes stored images that no auction references.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/vbonduro/rifas/internal/imagestore"
	"go.uber.org/zap"
)

// DefaultGracePeriod keeps freshly uploaded images whose auction is still
// being created.
const DefaultGracePeriod = 15 * time.Minute

// referenceLister returns every image reference currently in use.
type referenceLister interface {
	ImageRefs(ctx context.Context) (map[string]struct{}, error)
}

type Janitor struct {
	images imagestore.ImageStore
	refs   referenceLister
	grace  time.Duration
	logger *zap.Logger
	now    func() time.Time
	cron   *cron.Cron
}

func New(images imagestore.ImageStore, refs referenceLister, grace time.Duration, logger *zap.Logger) *Janitor {
	return &Janitor{
		images: images,
		refs:   refs,
		grace:  grace,
		logger: logger,
		now:    time.Now,
		cron:   cron.New(),
	}
}

// Start schedules Sweep with a standard cron spec or a descriptor such as
// "@every 1h". An empty schedule leaves the janitor idle.
func (j *Janitor) Start(ctx context.Context, schedule string) error {
	if schedule == "" {
		j.logger.Info("image janitor disabled")
		return nil
	}

	_, err := j.cron.AddFunc(schedule, func() {
		removed, err := j.Sweep(ctx)
		if err != nil {
			j.logger.Error("image sweep failed", zap.Error(err))
			return
		}
		if removed > 0 {
			j.logger.Info("image sweep complete", zap.Int("removed", removed))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
	}

	j.cron.Start()
	j.logger.Info("image janitor started", zap.String("schedule", schedule))
	return nil
}

// Stop waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// Sweep deletes unreferenced images older than the grace period and returns
// how many were removed. A failed delete is logged and the sweep continues.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	stored, err := j.images.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list images: %w", err)
	}
	if len(stored) == 0 {
		return 0, nil
	}

	// Images are listed before references are read, so an image attached to
	// an auction in between is never seen as orphaned.
	refs, err := j.refs.ImageRefs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list image references: %w", err)
	}

	cutoff := j.now().Add(-j.grace)
	removed := 0
	for _, img := range stored {
		if _, used := refs[img.Key]; used || img.ModTime.After(cutoff) {
			continue
		}
		if err := j.images.Delete(ctx, img.Key); err != nil {
			if !errors.Is(err, imagestore.ErrNotFound) {
				j.logger.Warn("failed to delete orphaned image", zap.String("storage_key", img.Key), zap.Error(err))
			}
			continue
		}
		j.logger.Debug("orphaned image deleted", zap.String("storage_key", img.Key))
		removed++
	}
	return removed, nil
}
