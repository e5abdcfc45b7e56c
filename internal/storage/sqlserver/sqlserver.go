// Package sqlserver persists flags in a system-versioned (temporal) SQL
// Server table. The engine records a history row on every UPDATE and DELETE,
// so the backend never writes snapshots itself; it only patches deletion
// metadata onto the row the engine just closed.
package sqlserver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sandeepkv93/feature-flag-store/internal/domain"
	"github.com/sandeepkv93/feature-flag-store/internal/observability"
)

const backendName = "sqlserver"

type Backend struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open dials SQL Server with gorm.
func Open(connString string) (*gorm.DB, error) {
	return gorm.Open(sqlserver.Open(connString), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
}

func New(db *gorm.DB, log *slog.Logger) *Backend {
	if log == nil {
		log = slog.Default()
	}
	return &Backend{db: db, logger: log}
}

// Init provisions the thoth schema and the temporal table. Idempotent.
func (b *Backend) Init(ctx context.Context) error {
	if err := b.db.WithContext(ctx).Exec(createSchemaQuery).Error; err != nil {
		return err
	}
	return b.db.WithContext(ctx).Exec(createTableQuery).Error
}

func (b *Backend) Get(ctx context.Context, name string) (*domain.FlagRecord, error) {
	rec, err := b.currentRow(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			observability.RecordBackendOperation(ctx, backendName, "get", "not_found")
		} else {
			observability.RecordBackendOperation(ctx, backendName, "get", "error")
		}
		return nil, err
	}

	var histories []domain.HistorySnapshot
	if err := b.db.WithContext(ctx).Raw(historiesForNameQuery, name).Scan(&histories).Error; err != nil {
		observability.RecordBackendOperation(ctx, backendName, "get", "error")
		return nil, err
	}
	rec.Histories = histories
	observability.RecordBackendOperation(ctx, backendName, "get", "success")
	return rec, nil
}

func (b *Backend) GetAll(ctx context.Context) ([]domain.FlagRecord, error) {
	var recs []domain.FlagRecord
	if err := b.db.WithContext(ctx).Order("CreatedAt DESC").Find(&recs).Error; err != nil {
		observability.RecordBackendOperation(ctx, backendName, "get_all", "error")
		return nil, err
	}

	var histories []domain.HistorySnapshot
	if err := b.db.WithContext(ctx).Raw(allHistoriesQuery).Scan(&histories).Error; err != nil {
		observability.RecordBackendOperation(ctx, backendName, "get_all", "error")
		return nil, err
	}
	byName := map[string][]domain.HistorySnapshot{}
	for _, h := range histories {
		byName[h.Name] = append(byName[h.Name], h)
	}
	for i := range recs {
		recs[i].Histories = byName[recs[i].Name]
	}
	observability.RecordBackendOperation(ctx, backendName, "get_all", "success")
	return recs, nil
}

// GetAllDeleted reads soft-deleted flags back out of the history table: the
// latest closed row per name, provided it carries deletion metadata and no
// current row shadows it. Temporal history is kept forever, so no retention
// window applies here.
func (b *Backend) GetAllDeleted(ctx context.Context) ([]domain.FlagRecord, error) {
	var recs []domain.FlagRecord
	if err := b.db.WithContext(ctx).Raw(latestDeletedQuery).Scan(&recs).Error; err != nil {
		observability.RecordBackendOperation(ctx, backendName, "get_all_deleted", "error")
		return nil, err
	}
	for i := range recs {
		var histories []domain.HistorySnapshot
		if err := b.db.WithContext(ctx).Raw(historiesForNameQuery, recs[i].Name).Scan(&histories).Error; err != nil {
			observability.RecordBackendOperation(ctx, backendName, "get_all_deleted", "error")
			return nil, err
		}
		recs[i].Histories = histories
	}
	observability.RecordBackendOperation(ctx, backendName, "get_all_deleted", "success")
	return recs, nil
}

func (b *Backend) Add(ctx context.Context, rec *domain.FlagRecord) error {
	rec.CreatedAt = time.Now().UTC()
	if err := b.db.WithContext(ctx).Create(rec).Error; err != nil {
		observability.RecordBackendOperation(ctx, backendName, "add", "error")
		return err
	}
	observability.RecordBackendOperation(ctx, backendName, "add", "success")
	return nil
}

// Update persists the new state; the engine's system versioning captures the
// prior state as a history row in the same statement.
func (b *Backend) Update(ctx context.Context, rec *domain.FlagRecord) error {
	now := time.Now().UTC()
	res := b.db.WithContext(ctx).
		Model(&domain.FlagRecord{}).
		Where("Name = ?", rec.Name).
		Updates(map[string]any{
			"Kind":        rec.Kind,
			"SubKind":     rec.SubKind,
			"Enabled":     rec.Enabled,
			"Value":       rec.Value,
			"Description": rec.Description,
			"Extras":      rec.Extras,
			"UpdatedAt":   now,
		})
	if res.Error != nil {
		observability.RecordBackendOperation(ctx, backendName, "update", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordBackendOperation(ctx, backendName, "update", "not_found")
		return domain.ErrNotFound
	}
	rec.UpdatedAt = &now
	observability.RecordBackendOperation(ctx, backendName, "update", "success")
	return nil
}

// Delete removes the current row (closing it into history), then patches the
// just-closed history row with deletion metadata. The patch requires toggling
// system versioning off and back on, which is why the whole sequence runs in
// one transaction. Versioning toggles are not guaranteed transactional by the
// engine: when even the rollback fails, the last known current state is
// re-inserted as a best-effort compensation.
func (b *Backend) Delete(ctx context.Context, name, auditExtras string) error {
	prior, err := b.currentRow(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			observability.RecordBackendOperation(ctx, backendName, "delete", "not_found")
		} else {
			observability.RecordBackendOperation(ctx, backendName, "delete", "error")
		}
		return err
	}

	now := time.Now().UTC()
	tx := b.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		observability.RecordBackendOperation(ctx, backendName, "delete", "error")
		return tx.Error
	}

	steps := []struct {
		query string
		args  []any
	}{
		{deleteCurrentQuery, []any{name}},
		{setVersioningOffQuery, nil},
		{patchClosedHistoryQuery, []any{now, auditExtras, name, name}},
		{setVersioningOnQuery, nil},
	}
	for _, step := range steps {
		if err := tx.Exec(step.query, step.args...).Error; err != nil {
			b.abortDelete(ctx, tx, prior)
			observability.RecordBackendOperation(ctx, backendName, "delete", "error")
			return err
		}
	}
	if err := tx.Commit().Error; err != nil {
		b.abortDelete(ctx, tx, prior)
		observability.RecordBackendOperation(ctx, backendName, "delete", "error")
		return err
	}
	observability.RecordBackendOperation(ctx, backendName, "delete", "success")
	return nil
}

func (b *Backend) Exists(ctx context.Context, name string) (bool, error) {
	var count int64
	err := b.db.WithContext(ctx).
		Model(&domain.FlagRecord{}).
		Where("Name = ?", name).
		Count(&count).Error
	if err != nil {
		observability.RecordBackendOperation(ctx, backendName, "exists", "error")
		return false, err
	}
	observability.RecordBackendOperation(ctx, backendName, "exists", "success")
	return count > 0, nil
}

func (b *Backend) currentRow(ctx context.Context, name string) (*domain.FlagRecord, error) {
	var rec domain.FlagRecord
	err := b.db.WithContext(ctx).Where("Name = ?", name).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// abortDelete rolls the transaction back; if the rollback itself fails the
// current row may be gone with versioning left off, so it re-enables
// versioning and re-inserts the last known state. Recovery here is
// best-effort, not guaranteed-atomic.
func (b *Backend) abortDelete(ctx context.Context, tx *gorm.DB, prior *domain.FlagRecord) {
	if rbErr := tx.Rollback().Error; rbErr == nil {
		return
	}
	// Errors harmlessly when versioning was never toggled off.
	if err := b.db.WithContext(ctx).Exec(setVersioningOnQuery).Error; err != nil {
		b.logger.Warn("could not re-enable system versioning after aborted delete",
			"flag", prior.Name,
			"error", err,
		)
	}
	exists, err := b.Exists(ctx, prior.Name)
	if err != nil || exists {
		return
	}
	if err := b.db.WithContext(ctx).Exec(restoreCurrentQuery,
		prior.Name, prior.Kind, prior.SubKind, prior.Enabled, prior.Value,
		prior.Description, prior.Extras, prior.CreatedAt, prior.UpdatedAt,
	).Error; err != nil {
		b.logger.Error("failed to restore current row after aborted delete",
			"flag", prior.Name,
			"error", err,
		)
	}
}
