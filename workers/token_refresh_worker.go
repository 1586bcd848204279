// workers/token_refresh_worker.go
package workers

import (
	"context"
	"log"
	"time"

	"run-challenge-system/models"
	"run-challenge-system/services"

	"gorm.io/gorm"
)

// TokenRefreshWorker proactively refreshes Strava tokens that are about to
// expire, so a user-triggered sync never pays the refresh round trip and a
// long-idle connection does not go stale past the refresh window.
type TokenRefreshWorker struct {
	db        *gorm.DB
	refresher services.TokenRefresher
	interval  time.Duration
	horizon   time.Duration
}

func NewTokenRefreshWorker(db *gorm.DB, refresher services.TokenRefresher) *TokenRefreshWorker {
	return &TokenRefreshWorker{
		db:        db,
		refresher: refresher,
		interval:  15 * time.Minute,
		horizon:   1 * time.Hour,
	}
}

func (w *TokenRefreshWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Strava Token Refresh Worker…")
	go w.run(ctx)
}

func (w *TokenRefreshWorker) run(ctx context.Context) {
	if err := w.refreshBatch(ctx); err != nil {
		log.Printf("⚠️ Initial token refresh sweep failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.refreshBatch(ctx); err != nil {
				log.Printf("❌ Token refresh sweep failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ Strava Token Refresh Worker stopped")
			return
		}
	}
}

// refreshBatch refreshes every active connection expiring within the horizon.
// One bad connection never aborts the sweep.
func (w *TokenRefreshWorker) refreshBatch(ctx context.Context) error {
	deadline := time.Now().Add(w.horizon)

	var conns []models.StravaConnection
	err := w.db.Where("is_active = true AND token_expires_at <= ?", deadline).
		Find(&conns).Error
	if err != nil {
		return err
	}
	if len(conns) == 0 {
		return nil
	}

	log.Printf("[REFRESH] 🔑 Refreshing %d expiring Strava token(s)…", len(conns))

	var refreshed, failed int
	for i := range conns {
		conn := conns[i]
		if err := w.refresher.RefreshConnection(ctx, &conn); err != nil {
			failed++
			log.Printf("[REFRESH] ⚠️ Failed to refresh connection %s (user=%s): %v", conn.ID, conn.UserID, err)
			continue
		}
		refreshed++
	}

	log.Printf("[REFRESH] ✅ Token sweep done (%d refreshed, %d failed)", refreshed, failed)
	return nil
}
