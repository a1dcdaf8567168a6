package gateway

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/hvac-link-core/internal/infrastructure/database"
	_ "github.com/nerrad567/hvac-link-core/migrations"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db.DB
}

func newTestDirectory(t *testing.T) (*Directory, *sql.DB) {
	t.Helper()
	db := setupTestDB(t)
	return NewDirectory(NewSQLiteRepository(db)), db
}

func mustUpsert(t *testing.T, dir *Directory, id, sub, pub string) {
	t.Helper()
	if _, _, err := dir.Upsert(context.Background(), Gateway{GatewayID: id, SubscribeTopic: sub, PublishTopic: pub}); err != nil {
		t.Fatalf("Upsert(%s) error = %v", id, err)
	}
}

func TestDirectory_UpsertIdempotent(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()
	gw := Gateway{GatewayID: "GW1", SubscribeTopic: "hvac/GW1/up", PublishTopic: "hvac/GW1/down", Description: "plant room"}

	first, created, err := dir.Upsert(ctx, gw)
	if err != nil {
		t.Fatalf("first Upsert() error = %v", err)
	}
	if !created {
		t.Error("first Upsert() created = false, want true")
	}
	if first.Online {
		t.Error("new gateway should start offline")
	}

	second, created, err := dir.Upsert(ctx, gw)
	if err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}
	if created {
		t.Error("second Upsert() created = true, want false")
	}
	if second.SubscribeTopic != first.SubscribeTopic || second.Description != "plant room" {
		t.Errorf("second Upsert() = %+v", second)
	}

	all, err := dir.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 1 {
		t.Errorf("List() = %d gateways, want 1", len(all))
	}
}

func TestDirectory_UpsertUpdatesTopicsKeepsPresence(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()
	mustUpsert(t, dir, "GW1", "old/up", "old/down")

	if _, err := dir.SetOnline(ctx, "GW1", true); err != nil {
		t.Fatalf("SetOnline() error = %v", err)
	}

	g, created, err := dir.Upsert(ctx, Gateway{GatewayID: "GW1", SubscribeTopic: "new/up", PublishTopic: "new/down"})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if created {
		t.Error("Upsert() of existing gateway reported created")
	}
	if g.SubscribeTopic != "new/up" || g.PublishTopic != "new/down" {
		t.Errorf("topics = %q/%q, want new/up, new/down", g.SubscribeTopic, g.PublishTopic)
	}
	if !g.Online {
		t.Error("Upsert() should not reset online flag")
	}
}

func TestDirectory_UpsertValidation(t *testing.T) {
	dir, _ := newTestDirectory(t)

	tests := []struct {
		name string
		gw   Gateway
	}{
		{"missing id", Gateway{SubscribeTopic: "a", PublishTopic: "b"}},
		{"id with slash", Gateway{GatewayID: "a/b", SubscribeTopic: "a", PublishTopic: "b"}},
		{"missing subscribe topic", Gateway{GatewayID: "GW1", PublishTopic: "b"}},
		{"missing publish topic", Gateway{GatewayID: "GW1", SubscribeTopic: "a"}},
		{"wildcard publish topic", Gateway{GatewayID: "GW1", SubscribeTopic: "a", PublishTopic: "hvac/+/down"}},
		{"padded topic", Gateway{GatewayID: "GW1", SubscribeTopic: " a", PublishTopic: "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := dir.Upsert(context.Background(), tt.gw)
			if !errors.Is(err, ErrInvalidGateway) {
				t.Errorf("Upsert() error = %v, want ErrInvalidGateway", err)
			}
		})
	}
}

func TestDirectory_AllSubscribeTopicsDeduplicated(t *testing.T) {
	dir, _ := newTestDirectory(t)
	mustUpsert(t, dir, "GW2", "hvac/up", "hvac/GW2/down")
	mustUpsert(t, dir, "GW1", "hvac/up", "hvac/GW1/down")
	mustUpsert(t, dir, "GW3", "annex/up", "annex/GW3/down")

	topics, err := dir.AllSubscribeTopics(context.Background())
	if err != nil {
		t.Fatalf("AllSubscribeTopics() error = %v", err)
	}

	want := []string{"annex/up", "hvac/up"}
	if len(topics) != len(want) {
		t.Fatalf("AllSubscribeTopics() = %v, want %v", topics, want)
	}
	for i := range want {
		if topics[i] != want[i] {
			t.Errorf("topics[%d] = %q, want %q", i, topics[i], want[i])
		}
	}
}

func TestDirectory_AllSubscribeTopicsEmpty(t *testing.T) {
	dir, _ := newTestDirectory(t)

	topics, err := dir.AllSubscribeTopics(context.Background())
	if err != nil {
		t.Fatalf("AllSubscribeTopics() error = %v", err)
	}
	if len(topics) != 0 {
		t.Errorf("AllSubscribeTopics() = %v, want empty", topics)
	}
}

func TestDirectory_PublishTopicFor(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()
	mustUpsert(t, dir, "GW1", "hvac/GW1/up", "hvac/GW1/down")

	topic, err := dir.PublishTopicFor(ctx, "GW1")
	if err != nil {
		t.Fatalf("PublishTopicFor() error = %v", err)
	}
	if topic != "hvac/GW1/down" {
		t.Errorf("PublishTopicFor() = %q", topic)
	}

	for _, id := range []string{"GW9", "", "gw1"} {
		if _, err := dir.PublishTopicFor(ctx, id); !errors.Is(err, ErrGatewayNotFound) {
			t.Errorf("PublishTopicFor(%q) error = %v, want ErrGatewayNotFound", id, err)
		}
	}
}

func TestDirectory_SetOnline(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()
	mustUpsert(t, dir, "GW1", "up", "down")

	changed, err := dir.SetOnline(ctx, "GW1", true)
	if err != nil || !changed {
		t.Fatalf("SetOnline(true) = %v, %v; want true, nil", changed, err)
	}
	changed, err = dir.SetOnline(ctx, "GW1", true)
	if err != nil || changed {
		t.Errorf("repeat SetOnline(true) = %v, %v; want false, nil", changed, err)
	}

	if err := dir.Touch(ctx, "GW1"); err != nil {
		t.Errorf("Touch() error = %v", err)
	}
	changed, err = dir.SetOnline(ctx, "GW1", false)
	if err != nil || !changed {
		t.Errorf("SetOnline(false) = %v, %v; want true, nil", changed, err)
	}

	if _, err := dir.SetOnline(ctx, "GW9", true); !errors.Is(err, ErrGatewayNotFound) {
		t.Errorf("SetOnline(unknown) error = %v, want ErrGatewayNotFound", err)
	}
}

func TestDirectory_SetOnlineStampsUpdatedAt(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()
	mustUpsert(t, dir, "GW1", "up", "down")

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	dir.now = func() time.Time { return at }
	if _, err := dir.SetOnline(ctx, "GW1", true); err != nil {
		t.Fatalf("SetOnline() error = %v", err)
	}

	g, err := dir.Get(ctx, "GW1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !g.UpdatedAt.Equal(at) {
		t.Errorf("UpdatedAt = %v, want %v", g.UpdatedAt, at)
	}
}

func TestDirectory_Delete(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()
	mustUpsert(t, dir, "GW1", "up", "down")

	if err := dir.Delete(ctx, "GW1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := dir.Get(ctx, "GW1"); !errors.Is(err, ErrGatewayNotFound) {
		t.Errorf("Get after delete error = %v, want ErrGatewayNotFound", err)
	}
	if err := dir.Delete(ctx, "GW1"); !errors.Is(err, ErrGatewayNotFound) {
		t.Errorf("second Delete() error = %v, want ErrGatewayNotFound", err)
	}
}
