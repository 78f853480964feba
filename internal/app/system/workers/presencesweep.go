package workers

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/travelsync/internal/app/system/timeouts"
	"github.com/dalemusser/travelsync/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// StaleMemberships is the slice of the membership store the sweep needs.
type StaleMemberships interface {
	ListStaleOnline(ctx context.Context, before time.Time, limit int64) ([]models.GroupMembership, error)
	MarkOfflineIfStale(ctx context.Context, groupID, userID primitive.ObjectID, before time.Time) (bool, error)
}

// LiveChecker reports whether a (group, user) still has a live session in
// this process.
type LiveChecker interface {
	IsLive(groupID, userID primitive.ObjectID) bool
}

// PresenceSweep is a background worker that clears online flags left behind
// when a process exits without running its disconnect handlers.
//
// It only trusts this process's hub, so it must run on a single instance.
type PresenceSweep struct {
	members    StaleMemberships
	live       LiveChecker
	log        *zap.Logger
	interval   time.Duration
	staleAfter time.Duration
	batch      int64
	now        func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewPresenceSweep creates the worker.
//
// Parameters:
//   - interval: how often to sweep (e.g., 1 minute)
//   - staleAfter: how long an online row may go without a presence write
//     before it is considered abandoned (e.g., 10 minutes)
func NewPresenceSweep(members StaleMemberships, live LiveChecker, logger *zap.Logger, interval, staleAfter time.Duration) *PresenceSweep {
	return &PresenceSweep{
		members:    members,
		live:       live,
		log:        logger,
		interval:   interval,
		staleAfter: staleAfter,
		batch:      500,
		now:        func() time.Time { return time.Now().UTC() },
		stopCh:     make(chan struct{}),
	}
}

// Start begins the background loop. A non-positive interval disables it.
func (w *PresenceSweep) Start() {
	if w.interval <= 0 {
		w.log.Info("presence sweep disabled")
		return
	}
	w.wg.Add(1)
	go w.run()
	w.log.Info("presence sweep worker started",
		zap.Duration("interval", w.interval),
		zap.Duration("stale_after", w.staleAfter))
}

// Stop signals the worker to stop and waits for it to finish.
func (w *PresenceSweep) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	w.log.Info("presence sweep worker stopped")
}

func (w *PresenceSweep) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.Sweep()
		}
	}
}

// Sweep runs one pass and returns how many memberships were marked offline.
func (w *PresenceSweep) Sweep() int {
	ctx, cancel := timeouts.WithTimeout(context.Background(), timeouts.Long(), w.log, "presence sweep")
	defer cancel()

	cutoff := w.now().Add(-w.staleAfter)
	stale, err := w.members.ListStaleOnline(ctx, cutoff, w.batch)
	if err != nil {
		w.log.Error("failed to list stale presence", zap.Error(err))
		return 0
	}

	cleared := 0
	for _, m := range stale {
		if w.live.IsLive(m.GroupID, m.UserID) {
			continue
		}
		// A join between the listing and this write refreshes updated_at,
		// so the conditional update leaves it alone.
		changed, err := w.members.MarkOfflineIfStale(ctx, m.GroupID, m.UserID, cutoff)
		if err != nil {
			w.log.Warn("failed to clear stale presence",
				zap.String("group_id", m.GroupID.Hex()),
				zap.String("user_id", m.UserID.Hex()),
				zap.Error(err))
			continue
		}
		if changed {
			cleared++
		}
	}

	if cleared > 0 {
		w.log.Info("cleared stale presence", zap.Int("count", cleared))
	}
	return cleared
}
