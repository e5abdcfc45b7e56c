package mongo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/sandeepkv93/feature-flag-store/internal/domain"
)

const testNamespace = "thoth.FeatureManager"

func subKind(s domain.SubKind) *domain.SubKind { return &s }

func newTestBackend(mt *mtest.T, retention time.Duration) *Backend {
	return New(mt.Client, Options{
		Database:             "thoth",
		DeletionRetentionTTL: retention,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// docOf round-trips a record through bson so mock cursor batches carry
// exactly what the driver would read off the wire.
func docOf(t testing.TB, rec *domain.FlagRecord) bson.D {
	t.Helper()
	raw, err := bson.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc bson.D
	if err := bson.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return doc
}

// startedCommand returns the first command with the given name the driver
// sent during the test.
func startedCommand(mt *mtest.T, name string) bson.Raw {
	for _, ev := range mt.GetAllStartedEvents() {
		if ev.CommandName == name {
			return ev.Command
		}
	}
	return nil
}

func storedFlag(name string, enabled bool, created time.Time) *domain.FlagRecord {
	return &domain.FlagRecord{
		Name:      name,
		Kind:      domain.KindFeatureFlag,
		SubKind:   subKind(domain.SubKindBoolean),
		Enabled:   enabled,
		CreatedAt: created,
	}
}

func TestBackendGet(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("not found", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, testNamespace, mtest.FirstBatch))

		b := newTestBackend(mt, 0)
		if _, err := b.Get(context.Background(), "ghost"); !errors.Is(err, domain.ErrNotFound) {
			mt.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	mt.Run("sorts histories newest first", func(mt *mtest.T) {
		created := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
		rec := storedFlag("x", true, created)
		rec.Histories = []domain.HistorySnapshot{
			{Name: "x", Enabled: false, PeriodStart: created, PeriodEnd: created.Add(time.Hour)},
			{Name: "x", Enabled: true, PeriodStart: created.Add(time.Hour), PeriodEnd: created.Add(2 * time.Hour)},
		}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, testNamespace, mtest.FirstBatch, docOf(mt, rec)))

		b := newTestBackend(mt, 0)
		got, err := b.Get(context.Background(), "x")
		if err != nil {
			mt.Fatalf("get: %v", err)
		}
		if len(got.Histories) != 2 {
			mt.Fatalf("expected 2 snapshots, got %d", len(got.Histories))
		}
		if !got.Histories[0].PeriodEnd.After(got.Histories[1].PeriodEnd) {
			mt.Fatalf("snapshots not newest-first: %v then %v",
				got.Histories[0].PeriodEnd, got.Histories[1].PeriodEnd)
		}
	})
}

func TestBackendAdd(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("stamps created at", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		b := newTestBackend(mt, 0)
		rec := storedFlag("x", true, time.Time{})
		if err := b.Add(context.Background(), rec); err != nil {
			mt.Fatalf("add: %v", err)
		}
		if rec.CreatedAt.IsZero() {
			mt.Fatal("Add must stamp CreatedAt")
		}
	})

	mt.Run("duplicate key", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error",
		}))

		b := newTestBackend(mt, 0)
		err := b.Add(context.Background(), storedFlag("x", true, time.Time{}))
		if !errors.Is(err, domain.ErrAlreadyExists) {
			mt.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})
}

func TestBackendUpdateAppendsSnapshot(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("replace carries prior snapshot", func(mt *mtest.T) {
		created := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
		prior := storedFlag("x", true, created)
		prior.Histories = []domain.HistorySnapshot{
			{Name: "x", Enabled: false, PeriodStart: created, PeriodEnd: created.Add(time.Hour)},
		}
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, testNamespace, mtest.FirstBatch, docOf(mt, prior)),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
		)

		b := newTestBackend(mt, time.Hour)
		next := storedFlag("x", false, time.Time{})
		if err := b.Update(context.Background(), next); err != nil {
			mt.Fatalf("update: %v", err)
		}
		if next.UpdatedAt == nil {
			mt.Fatal("Update must stamp UpdatedAt on success")
		}

		cmd := startedCommand(mt, "update")
		if cmd == nil {
			mt.Fatal("no replace command was sent")
		}
		updates, err := cmd.Lookup("updates").Array().Values()
		if err != nil || len(updates) != 1 {
			mt.Fatalf("unexpected updates payload: %v %v", updates, err)
		}
		replacement := updates[0].Document().Lookup("u").Document()

		if got := replacement.Lookup("enabled").Boolean(); got {
			mt.Fatal("replacement should carry the new disabled state")
		}
		if got := replacement.Lookup("createdAt").Time(); !got.Equal(created) {
			mt.Fatalf("CreatedAt must be preserved from the stored document, got %v", got)
		}
		histories, err := replacement.Lookup("histories").Array().Values()
		if err != nil || len(histories) != 2 {
			mt.Fatalf("expected prior snapshot plus the new one, got %d (%v)", len(histories), err)
		}
		appended := histories[1].Document()
		if !appended.Lookup("enabled").Boolean() {
			mt.Fatal("appended snapshot must capture the prior enabled state")
		}
		expires := appended.Lookup("expiresAt").Time()
		periodEnd := appended.Lookup("periodEnd").Time()
		if expires.Sub(periodEnd) != time.Hour {
			mt.Fatalf("snapshot expiry should be PeriodEnd+retention, got %v", expires.Sub(periodEnd))
		}
	})
}

func TestBackendDeleteMovesDocument(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("move to deleted with retention", func(mt *mtest.T) {
		created := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
		prior := storedFlag("x", true, created)
		prior.Histories = []domain.HistorySnapshot{
			{Name: "x", Enabled: false, PeriodStart: created, PeriodEnd: created.Add(time.Hour)},
		}
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, testNamespace, mtest.FirstBatch, docOf(mt, prior)),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}), // delete
			mtest.CreateSuccessResponse(),                           // insert into deleted
			mtest.CreateSuccessResponse(),                           // commitTransaction
		)

		b := newTestBackend(mt, time.Hour)
		if err := b.Delete(context.Background(), "x", "cleanup"); err != nil {
			mt.Fatalf("delete: %v", err)
		}

		if startedCommand(mt, "delete") == nil {
			mt.Fatal("no delete command was sent to the current collection")
		}
		cmd := startedCommand(mt, "insert")
		if cmd == nil {
			mt.Fatal("no insert command was sent to the deleted collection")
		}
		if got := cmd.Lookup("insert").StringValue(); got != "FeatureManager_Deleted" {
			mt.Fatalf("insert should target the deleted collection, got %q", got)
		}
		docs, err := cmd.Lookup("documents").Array().Values()
		if err != nil || len(docs) != 1 {
			mt.Fatalf("unexpected insert payload: %v %v", docs, err)
		}
		doc := docs[0].Document()

		if got := doc.Lookup("extras").StringValue(); got != "cleanup" {
			mt.Fatalf("audit extras not recorded: %q", got)
		}
		deleted := doc.Lookup("deletedAt").Time()
		expires := doc.Lookup("expiresAt").Time()
		if expires.Sub(deleted) != time.Hour {
			mt.Fatalf("ExpiresAt should be DeletedAt+retention, got %v", expires.Sub(deleted))
		}
		histories, err := doc.Lookup("histories").Array().Values()
		if err != nil || len(histories) != 2 {
			mt.Fatalf("delete must archive the final state, got %d snapshots (%v)", len(histories), err)
		}
		final := histories[1].Document()
		if !final.Lookup("periodEnd").Time().Equal(deleted) {
			mt.Fatal("final snapshot must close at DeletedAt")
		}
	})

	mt.Run("not found", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, testNamespace, mtest.FirstBatch))

		b := newTestBackend(mt, time.Hour)
		if err := b.Delete(context.Background(), "ghost", ""); !errors.Is(err, domain.ErrNotFound) {
			mt.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestPurgeTick(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("strips expired snapshots via bulk replace", func(mt *mtest.T) {
		now := time.Now().UTC()
		expired := now.Add(-time.Minute)
		keeps := now.Add(time.Hour)
		rec := storedFlag("x", true, now.Add(-3*time.Hour))
		rec.Histories = []domain.HistorySnapshot{
			{Name: "x", PeriodEnd: now.Add(-2 * time.Hour), ExpiresAt: &expired},
			{Name: "x", PeriodEnd: now.Add(-time.Hour), ExpiresAt: &keeps},
		}
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, testNamespace, mtest.FirstBatch, docOf(mt, rec)),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
		)

		p := NewHistoryPurger(newTestBackend(mt, time.Hour), time.Hour)
		if err := p.purgeTick(context.Background()); err != nil {
			mt.Fatalf("purge tick: %v", err)
		}

		cmd := startedCommand(mt, "update")
		if cmd == nil {
			mt.Fatal("no bulk replace was sent")
		}
		updates, err := cmd.Lookup("updates").Array().Values()
		if err != nil || len(updates) != 1 {
			mt.Fatalf("unexpected updates payload: %v %v", updates, err)
		}
		replacement := updates[0].Document().Lookup("u").Document()
		histories, err := replacement.Lookup("histories").Array().Values()
		if err != nil || len(histories) != 1 {
			mt.Fatalf("expected only the unexpired snapshot to survive, got %d (%v)", len(histories), err)
		}
	})

	mt.Run("no candidates is a no-op", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, testNamespace, mtest.FirstBatch))

		p := NewHistoryPurger(newTestBackend(mt, time.Hour), time.Hour)
		if err := p.purgeTick(context.Background()); err != nil {
			mt.Fatalf("purge tick: %v", err)
		}
		if startedCommand(mt, "update") != nil {
			mt.Fatal("no bulk write should be issued without expired snapshots")
		}
	})
}
