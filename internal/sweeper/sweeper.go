// Package sweeper expires open posts whose ready-by time has passed.
package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/foodshare/apiserver/types"
	"go.uber.org/zap"
)

const sweepTimeout = 30 * time.Second

// Expirer is implemented by services.PostService.
type Expirer interface {
	ExpireOverdue(ctx context.Context) ([]types.Post, error)
}

// Sweeper periodically runs an expiry pass in the background.
type Sweeper struct {
	posts    Expirer
	log      *zap.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a sweeper running every interval. A zero interval disables
// the background loop; RunOnce still works.
func New(posts Expirer, logger *zap.Logger, interval time.Duration) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		posts:    posts,
		log:      logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background loop.
func (w *Sweeper) Start() {
	if w.interval <= 0 {
		w.log.Info("post expiry sweeper disabled")
		return
	}
	w.wg.Add(1)
	go w.run()
	w.log.Info("post expiry sweeper started", zap.Duration("interval", w.interval))
}

// Stop signals the loop to stop and waits for the current pass to finish.
func (w *Sweeper) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *Sweeper) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			w.log.Info("post expiry sweeper stopped")
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
			_, _ = w.RunOnce(ctx)
			cancel()
		}
	}
}

// RunOnce performs a single expiry pass and returns how many posts expired.
func (w *Sweeper) RunOnce(ctx context.Context) (int, error) {
	expired, err := w.posts.ExpireOverdue(ctx)
	if err != nil {
		w.log.Error("failed to expire overdue posts", zap.Error(err))
		return len(expired), err
	}
	if len(expired) > 0 {
		ids := make([]string, 0, len(expired))
		for _, post := range expired {
			ids = append(ids, post.ID)
		}
		w.log.Info("expired overdue posts", zap.Int("count", len(expired)), zap.Strings("post_ids", ids))
	}
	return len(expired), nil
}
