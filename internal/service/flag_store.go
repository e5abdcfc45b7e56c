// Package service holds the flag store, the one entry point callers use. It
// composes a storage backend, the in-process cache and the evaluator.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sandeepkv93/feature-flag-store/internal/cache"
	"github.com/sandeepkv93/feature-flag-store/internal/domain"
	"github.com/sandeepkv93/feature-flag-store/internal/evaluator"
	"github.com/sandeepkv93/feature-flag-store/internal/storage"
)

// Options tunes caching and missing-flag behavior.
type Options struct {
	EnableCaching    bool
	CacheAbsoluteTTL time.Duration
	CacheSlidingTTL  time.Duration

	// TreatMissingAsFalse makes IsEnabled answer false for unknown flags
	// instead of surfacing ErrNotFound.
	TreatMissingAsFalse bool
}

func DefaultOptions() Options {
	return Options{
		EnableCaching:       true,
		CacheAbsoluteTTL:    7 * 24 * time.Hour,
		CacheSlidingTTL:     24 * time.Hour,
		TreatMissingAsFalse: true,
	}
}

type FlagStore struct {
	backend             storage.Backend
	cache               *cache.Cache[*domain.FlagRecord]
	eval                *evaluator.Evaluator
	treatMissingAsFalse bool
	logger              *slog.Logger
}

func New(backend storage.Backend, eval *evaluator.Evaluator, opts Options, logger *slog.Logger) *FlagStore {
	if logger == nil {
		logger = slog.Default()
	}
	if eval == nil {
		eval = evaluator.New(logger)
	}
	return &FlagStore{
		backend: backend,
		cache: cache.New(opts.EnableCaching, opts.CacheAbsoluteTTL, opts.CacheSlidingTTL,
			cache.WithUpsertStamp(stampWrite)),
		eval:                eval,
		treatMissingAsFalse: opts.TreatMissingAsFalse,
		logger:              logger,
	}
}

// stampWrite decouples the cached copy from the caller's record and finalizes
// UpdatedAt at the cache-write instant, so reads right after a write observe a
// fresh timestamp even before the backend's own write is visible.
func stampWrite(rec *domain.FlagRecord) *domain.FlagRecord {
	out := rec.Clone()
	now := time.Now().UTC()
	out.UpdatedAt = &now
	return out
}

// Close stops the cache's background expiration loop.
func (s *FlagStore) Close() {
	s.cache.Stop()
}

// IsEnabled evaluates the named flag. With TreatMissingAsFalse an unknown
// flag answers false instead of an error, so callers can guard code paths on
// flags that were never provisioned.
func (s *FlagStore) IsEnabled(ctx context.Context, name string) (bool, error) {
	rec, err := s.Get(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) && s.treatMissingAsFalse {
			s.logger.InfoContext(ctx, fmt.Sprintf(domain.MsgNonExistentFlagRequested, name))
			return false, nil
		}
		return false, err
	}
	return s.eval.Evaluate(rec), nil
}

// Get returns the named flag. Existence is settled before any lazy load, so a
// miss never caches a negative; the existence peek itself does not count as a
// read. The value is then always served through the cache layer, so every hit
// extends the sliding window.
func (s *FlagStore) Get(ctx context.Context, name string) (*domain.FlagRecord, error) {
	if _, ok := s.cache.PeekIfPresent(name); !ok {
		exists, err := s.backend.Exists(ctx, name)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, domain.ErrNotFound
		}
	}
	return s.cache.GetOrCreate(ctx, name, func(ctx context.Context) (*domain.FlagRecord, error) {
		return s.backend.Get(ctx, name)
	})
}

// GetAll lists every current flag and pre-warms the cache with records that
// were not cached yet.
func (s *FlagStore) GetAll(ctx context.Context) ([]domain.FlagRecord, error) {
	recs, err := s.backend.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		rec := recs[i].Clone()
		_, _ = s.cache.GetOrCreate(ctx, rec.Name, func(context.Context) (*domain.FlagRecord, error) {
			return rec, nil
		})
	}
	return recs, nil
}

// GetAllDeleted lists soft-deleted flags still inside their retention window.
func (s *FlagStore) GetAllDeleted(ctx context.Context) ([]domain.FlagRecord, error) {
	return s.backend.GetAllDeleted(ctx)
}

// Add validates and persists a new flag, then writes it through to the cache.
func (s *FlagStore) Add(ctx context.Context, rec *domain.FlagRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	exists, err := s.exists(ctx, rec.Name)
	if err != nil {
		s.logger.ErrorContext(ctx, fmt.Sprintf(domain.MsgErrorWhileAdding, rec.Name), "error", err)
		return err
	}
	if exists {
		s.logger.WarnContext(ctx, fmt.Sprintf(domain.MsgAlreadyExists, rec.Name))
		return domain.ErrAlreadyExists
	}
	if err := s.backend.Add(ctx, rec); err != nil {
		s.logger.ErrorContext(ctx, fmt.Sprintf(domain.MsgErrorWhileAdding, rec.Name), "error", err)
		return err
	}
	s.cache.Upsert(rec.Name, rec)
	return nil
}

// Update validates and persists new state for an existing flag. CreatedAt is
// carried over from the stored record; callers cannot rewrite it.
func (s *FlagStore) Update(ctx context.Context, rec *domain.FlagRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	current, err := s.Get(ctx, rec.Name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, fmt.Sprintf(domain.MsgNotExists, rec.Name))
			return err
		}
		s.logger.ErrorContext(ctx, fmt.Sprintf(domain.MsgErrorWhileUpdating, rec.Name), "error", err)
		return err
	}
	rec.CreatedAt = current.CreatedAt

	if err := s.backend.Update(ctx, rec); err != nil {
		s.logger.ErrorContext(ctx, fmt.Sprintf(domain.MsgErrorWhileUpdating, rec.Name), "error", err)
		return err
	}

	// The cached copy carries the prior state as a snapshot, so reads served
	// from cache see the same history chain the backend now holds.
	cached := rec.Clone()
	snapshot := domain.NewHistorySnapshot(current, timeOrNow(cached.UpdatedAt))
	cached.Histories = append([]domain.HistorySnapshot{snapshot}, current.Histories...)
	s.cache.Upsert(rec.Name, cached)
	return nil
}

func timeOrNow(t *time.Time) time.Time {
	if t != nil {
		return *t
	}
	return time.Now().UTC()
}

// Delete soft-deletes the named flag, recording auditExtras alongside the
// deletion, and evicts it from the cache.
func (s *FlagStore) Delete(ctx context.Context, name, auditExtras string) error {
	exists, err := s.exists(ctx, name)
	if err != nil {
		s.logger.ErrorContext(ctx, fmt.Sprintf(domain.MsgErrorWhileDeleting, name), "error", err)
		return err
	}
	if !exists {
		s.logger.WarnContext(ctx, fmt.Sprintf(domain.MsgNotExists, name))
		return domain.ErrNotFound
	}
	if err := s.backend.Delete(ctx, name, auditExtras); err != nil {
		s.logger.ErrorContext(ctx, fmt.Sprintf(domain.MsgErrorWhileDeleting, name), "error", err)
		return err
	}
	s.cache.Evict(name)
	return nil
}

// GetEnvironmentValue retrieves an environment-variable flag's value parsed
// as T. Disabled flags and flags of the wrong kind are refused.
func GetEnvironmentValue[T evaluator.Value](ctx context.Context, s *FlagStore, name string) (T, error) {
	rec, err := s.Get(ctx, name)
	if err != nil {
		var zero T
		return zero, err
	}
	return evaluator.EnvironmentValue[T](s.eval, rec)
}

func (s *FlagStore) exists(ctx context.Context, name string) (bool, error) {
	if _, ok := s.cache.PeekIfPresent(name); ok {
		return true, nil
	}
	return s.backend.Exists(ctx, name)
}
