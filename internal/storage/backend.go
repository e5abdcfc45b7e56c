// Package storage defines the persistence contract every flag backend must
// satisfy, plus an in-memory implementation used for development and tests.
package storage

import (
	"context"

	"github.com/sandeepkv93/feature-flag-store/internal/domain"
)

// Backend is the persistence contract. Implementations differ in how they
// version records (engine-native temporal tables vs. embedded history lists)
// but must be indistinguishable to callers.
//
// Get returns domain.ErrNotFound when no current record carries the name;
// backends never check for duplicates on Add, that is the orchestrator's job
// via Exists.
type Backend interface {
	Get(ctx context.Context, name string) (*domain.FlagRecord, error)
	GetAll(ctx context.Context) ([]domain.FlagRecord, error)
	GetAllDeleted(ctx context.Context) ([]domain.FlagRecord, error)
	Add(ctx context.Context, rec *domain.FlagRecord) error
	Update(ctx context.Context, rec *domain.FlagRecord) error
	Delete(ctx context.Context, name, auditExtras string) error
	Exists(ctx context.Context, name string) (bool, error)
}
