package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/sandeepkv93/feature-flag-store/internal/domain"
)

// HistoryPurger trims expired history snapshots out of live documents on a
// fixed interval. The deleted collection needs no purger; its TTL index
// removes whole documents on its own.
type HistoryPurger struct {
	backend  *Backend
	interval time.Duration
}

func NewHistoryPurger(backend *Backend, interval time.Duration) *HistoryPurger {
	return &HistoryPurger{backend: backend, interval: interval}
}

// Run blocks until ctx is cancelled, purging once per interval. A failed tick
// is logged and the loop keeps going.
func (p *HistoryPurger) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.purgeTick(ctx); err != nil {
				p.backend.logger.Error("history purge failed", "error", err)
			}
		}
	}
}

func (p *HistoryPurger) purgeTick(ctx context.Context) error {
	runID := uuid.NewString()
	now := time.Now().UTC()

	cursor, err := p.backend.current.Find(ctx, bson.M{
		"histories.expiresAt": bson.M{"$lte": now},
	})
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	var stale []domain.FlagRecord
	if err := cursor.All(ctx, &stale); err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(stale))
	for i := range stale {
		rec := &stale[i]
		rec.Histories = stripExpiredSnapshots(rec.Histories, now)
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"name": rec.Name}).
			SetReplacement(rec))
	}

	res, err := p.backend.current.BulkWrite(ctx, models)
	if err != nil {
		return err
	}
	p.backend.logger.Info("purged expired history snapshots",
		"run_id", runID,
		"documents", len(models),
		"modified", res.ModifiedCount,
	)
	return nil
}

// stripExpiredSnapshots drops every snapshot whose expiry is at or before now.
// Snapshots without an expiry are kept forever.
func stripExpiredSnapshots(histories []domain.HistorySnapshot, now time.Time) []domain.HistorySnapshot {
	kept := histories[:0:0]
	for _, h := range histories {
		if h.ExpiresAt != nil && !h.ExpiresAt.After(now) {
			continue
		}
		kept = append(kept, h)
	}
	return kept
}
