// Package mongo persists flags as documents with their history embedded.
// Deleted flags move to a sibling collection where a TTL index purges them
// after the configured retention window; embedded history snapshots are
// trimmed by the HistoryPurger since TTL indexes cannot reach inside arrays.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sandeepkv93/feature-flag-store/internal/domain"
	"github.com/sandeepkv93/feature-flag-store/internal/observability"
)

const (
	backendName       = "mongodb"
	defaultCollection = "FeatureManager"
	deletedSuffix     = "_Deleted"
)

// Options configures the document backend. Collection defaults to
// "FeatureManager"; deleted documents land in "<Collection>_Deleted".
type Options struct {
	Database   string
	Collection string

	// DeletionRetentionTTL schedules deleted documents and history snapshots
	// for physical purging. Zero keeps them forever.
	DeletionRetentionTTL time.Duration
}

type Backend struct {
	client    *mongo.Client
	current   *mongo.Collection
	deleted   *mongo.Collection
	retention time.Duration
	logger    *slog.Logger
}

// Connect dials the cluster and verifies the connection with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return client, nil
}

func New(client *mongo.Client, opts Options, log *slog.Logger) *Backend {
	if opts.Collection == "" {
		opts.Collection = defaultCollection
	}
	if log == nil {
		log = slog.Default()
	}
	db := client.Database(opts.Database)
	return &Backend{
		client:    client,
		current:   db.Collection(opts.Collection),
		deleted:   db.Collection(opts.Collection + deletedSuffix),
		retention: opts.DeletionRetentionTTL,
		logger:    log,
	}
}

// EnsureIndexes provisions the unique name index on the live collection and
// the name plus TTL indexes on the deleted collection. Idempotent.
func (b *Backend) EnsureIndexes(ctx context.Context) error {
	_, err := b.current.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create name index: %w", err)
	}

	_, err = b.deleted.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "name", Value: 1}}},
		{
			// Documents expire at the moment stored in expiresAt.
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create deleted-collection indexes: %w", err)
	}
	return nil
}

func (b *Backend) Get(ctx context.Context, name string) (*domain.FlagRecord, error) {
	var rec domain.FlagRecord
	err := b.current.FindOne(ctx, bson.M{"name": name}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		observability.RecordBackendOperation(ctx, backendName, "get", "not_found")
		return nil, domain.ErrNotFound
	}
	if err != nil {
		observability.RecordBackendOperation(ctx, backendName, "get", "error")
		return nil, err
	}
	sortHistoriesNewestFirst(&rec)
	observability.RecordBackendOperation(ctx, backendName, "get", "success")
	return &rec, nil
}

func (b *Backend) GetAll(ctx context.Context) ([]domain.FlagRecord, error) {
	recs, err := b.findAll(ctx, b.current, bson.D{{Key: "createdAt", Value: -1}})
	if err != nil {
		observability.RecordBackendOperation(ctx, backendName, "get_all", "error")
		return nil, err
	}
	observability.RecordBackendOperation(ctx, backendName, "get_all", "success")
	return recs, nil
}

func (b *Backend) GetAllDeleted(ctx context.Context) ([]domain.FlagRecord, error) {
	recs, err := b.findAll(ctx, b.deleted, bson.D{{Key: "deletedAt", Value: -1}})
	if err != nil {
		observability.RecordBackendOperation(ctx, backendName, "get_all_deleted", "error")
		return nil, err
	}
	observability.RecordBackendOperation(ctx, backendName, "get_all_deleted", "success")
	return recs, nil
}

func (b *Backend) Add(ctx context.Context, rec *domain.FlagRecord) error {
	rec.CreatedAt = time.Now().UTC()
	if _, err := b.current.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			observability.RecordBackendOperation(ctx, backendName, "add", "conflict")
			return domain.ErrAlreadyExists
		}
		observability.RecordBackendOperation(ctx, backendName, "add", "error")
		return err
	}
	observability.RecordBackendOperation(ctx, backendName, "add", "success")
	return nil
}

// Update snapshots the stored state into the embedded history array and
// replaces the document wholesale.
func (b *Backend) Update(ctx context.Context, rec *domain.FlagRecord) error {
	var prior domain.FlagRecord
	err := b.current.FindOne(ctx, bson.M{"name": rec.Name}).Decode(&prior)
	if errors.Is(err, mongo.ErrNoDocuments) {
		observability.RecordBackendOperation(ctx, backendName, "update", "not_found")
		return domain.ErrNotFound
	}
	if err != nil {
		observability.RecordBackendOperation(ctx, backendName, "update", "error")
		return err
	}

	now := time.Now().UTC()
	snapshot := domain.NewHistorySnapshot(&prior, now)
	if b.retention > 0 {
		expires := snapshot.PeriodEnd.Add(b.retention)
		snapshot.ExpiresAt = &expires
	}

	next := rec.Clone()
	next.CreatedAt = prior.CreatedAt
	next.UpdatedAt = &now
	next.Histories = append(prior.Histories, snapshot)

	if _, err := b.current.ReplaceOne(ctx, bson.M{"name": rec.Name}, next); err != nil {
		observability.RecordBackendOperation(ctx, backendName, "update", "error")
		return err
	}
	rec.UpdatedAt = &now
	observability.RecordBackendOperation(ctx, backendName, "update", "success")
	return nil
}

// Delete moves the document to the deleted collection in one transaction,
// stamping deletion metadata and archiving the final state as a snapshot.
func (b *Backend) Delete(ctx context.Context, name, auditExtras string) error {
	var prior domain.FlagRecord
	err := b.current.FindOne(ctx, bson.M{"name": name}).Decode(&prior)
	if errors.Is(err, mongo.ErrNoDocuments) {
		observability.RecordBackendOperation(ctx, backendName, "delete", "not_found")
		return domain.ErrNotFound
	}
	if err != nil {
		observability.RecordBackendOperation(ctx, backendName, "delete", "error")
		return err
	}

	now := time.Now().UTC()
	removed := prior.Clone()
	removed.DeletedAt = &now
	removed.Extras = auditExtras
	removed.Histories = append(removed.Histories, domain.NewHistorySnapshot(&prior, now))
	if b.retention > 0 {
		expires := now.Add(b.retention)
		removed.ExpiresAt = &expires
	}

	session, err := b.client.StartSession()
	if err != nil {
		observability.RecordBackendOperation(ctx, backendName, "delete", "error")
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		if _, err := b.current.DeleteOne(sc, bson.M{"name": name}); err != nil {
			return nil, err
		}
		if _, err := b.deleted.InsertOne(sc, removed); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		observability.RecordBackendOperation(ctx, backendName, "delete", "error")
		return err
	}
	observability.RecordBackendOperation(ctx, backendName, "delete", "success")
	return nil
}

func (b *Backend) Exists(ctx context.Context, name string) (bool, error) {
	count, err := b.current.CountDocuments(ctx, bson.M{"name": name})
	if err != nil {
		observability.RecordBackendOperation(ctx, backendName, "exists", "error")
		return false, err
	}
	observability.RecordBackendOperation(ctx, backendName, "exists", "success")
	return count > 0, nil
}

func (b *Backend) findAll(ctx context.Context, coll *mongo.Collection, sortSpec bson.D) ([]domain.FlagRecord, error) {
	cursor, err := coll.Find(ctx, bson.M{}, options.Find().SetSort(sortSpec))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var recs []domain.FlagRecord
	if err := cursor.All(ctx, &recs); err != nil {
		return nil, err
	}
	for i := range recs {
		sortHistoriesNewestFirst(&recs[i])
	}
	return recs, nil
}

func sortHistoriesNewestFirst(rec *domain.FlagRecord) {
	sort.Slice(rec.Histories, func(i, j int) bool {
		return rec.Histories[i].PeriodEnd.After(rec.Histories[j].PeriodEnd)
	})
}
