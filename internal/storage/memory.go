package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sandeepkv93/feature-flag-store/internal/domain"
	"github.com/sandeepkv93/feature-flag-store/internal/observability"
)

// MemoryBackend keeps flags in process memory with embedded history lists,
// mirroring the document backend's mechanics. It backs local development and
// the orchestrator's tests; it is not meant for production traffic.
type MemoryBackend struct {
	mu        sync.RWMutex
	current   map[string]*domain.FlagRecord
	deleted   map[string]*domain.FlagRecord
	retention time.Duration
}

// NewMemoryBackend builds an empty backend. retention > 0 schedules deleted
// records for expiry, matching the document backend's TTL bucket.
func NewMemoryBackend(retention time.Duration) *MemoryBackend {
	return &MemoryBackend{
		current:   map[string]*domain.FlagRecord{},
		deleted:   map[string]*domain.FlagRecord{},
		retention: retention,
	}
}

func (b *MemoryBackend) Get(ctx context.Context, name string) (*domain.FlagRecord, error) {
	b.mu.RLock()
	rec, ok := b.current[name]
	b.mu.RUnlock()
	if !ok {
		observability.RecordBackendOperation(ctx, "memory", "get", "not_found")
		return nil, domain.ErrNotFound
	}
	observability.RecordBackendOperation(ctx, "memory", "get", "success")
	out := rec.Clone()
	sortHistoriesNewestFirst(out)
	return out, nil
}

func (b *MemoryBackend) GetAll(ctx context.Context) ([]domain.FlagRecord, error) {
	b.mu.RLock()
	out := make([]domain.FlagRecord, 0, len(b.current))
	for _, rec := range b.current {
		clone := rec.Clone()
		sortHistoriesNewestFirst(clone)
		out = append(out, *clone)
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	observability.RecordBackendOperation(ctx, "memory", "get_all", "success")
	return out, nil
}

func (b *MemoryBackend) GetAllDeleted(ctx context.Context) ([]domain.FlagRecord, error) {
	now := time.Now().UTC()

	b.mu.Lock()
	out := make([]domain.FlagRecord, 0, len(b.deleted))
	for name, rec := range b.deleted {
		if rec.ExpiresAt != nil && !rec.ExpiresAt.After(now) {
			// Past its retention window: physically purged, like the TTL
			// index would do in the document store.
			delete(b.deleted, name)
			continue
		}
		clone := rec.Clone()
		sortHistoriesNewestFirst(clone)
		out = append(out, *clone)
	}
	b.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].DeletedAt != nil && out[j].DeletedAt != nil && out[i].DeletedAt.After(*out[j].DeletedAt)
	})
	observability.RecordBackendOperation(ctx, "memory", "get_all_deleted", "success")
	return out, nil
}

func (b *MemoryBackend) Add(ctx context.Context, rec *domain.FlagRecord) error {
	stored := rec.Clone()
	stored.CreatedAt = time.Now().UTC()
	stored.Histories = nil

	b.mu.Lock()
	b.current[stored.Name] = stored
	b.mu.Unlock()

	rec.CreatedAt = stored.CreatedAt
	observability.RecordBackendOperation(ctx, "memory", "add", "success")
	return nil
}

func (b *MemoryBackend) Update(ctx context.Context, rec *domain.FlagRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	prior, ok := b.current[rec.Name]
	if !ok {
		observability.RecordBackendOperation(ctx, "memory", "update", "not_found")
		return domain.ErrNotFound
	}

	now := time.Now().UTC()
	snapshot := domain.NewHistorySnapshot(prior, now)
	if b.retention > 0 {
		expires := snapshot.PeriodEnd.Add(b.retention)
		snapshot.ExpiresAt = &expires
	}

	stored := rec.Clone()
	stored.CreatedAt = prior.CreatedAt
	stored.UpdatedAt = &now
	stored.Histories = append(append([]domain.HistorySnapshot(nil), prior.Histories...), snapshot)
	b.current[stored.Name] = stored

	rec.UpdatedAt = &now
	observability.RecordBackendOperation(ctx, "memory", "update", "success")
	return nil
}

func (b *MemoryBackend) Delete(ctx context.Context, name, auditExtras string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	prior, ok := b.current[name]
	if !ok {
		observability.RecordBackendOperation(ctx, "memory", "delete", "not_found")
		return domain.ErrNotFound
	}

	now := time.Now().UTC()
	snapshot := domain.NewHistorySnapshot(prior, now)

	removed := prior.Clone()
	removed.DeletedAt = &now
	removed.Extras = auditExtras
	removed.Histories = append(removed.Histories, snapshot)
	if b.retention > 0 {
		expires := now.Add(b.retention)
		removed.ExpiresAt = &expires
	}

	delete(b.current, name)
	b.deleted[name] = removed
	observability.RecordBackendOperation(ctx, "memory", "delete", "success")
	return nil
}

func (b *MemoryBackend) Exists(ctx context.Context, name string) (bool, error) {
	b.mu.RLock()
	_, ok := b.current[name]
	b.mu.RUnlock()
	observability.RecordBackendOperation(ctx, "memory", "exists", "success")
	return ok, nil
}

func sortHistoriesNewestFirst(rec *domain.FlagRecord) {
	sort.Slice(rec.Histories, func(i, j int) bool {
		return rec.Histories[i].PeriodEnd.After(rec.Histories[j].PeriodEnd)
	})
}
