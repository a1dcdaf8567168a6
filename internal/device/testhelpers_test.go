package device

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/hvac-link-core/internal/infrastructure/database"
	_ "github.com/nerrad567/hvac-link-core/migrations"
)

// setupTestDB opens an in-memory database with the real schema and two
// registered gateways, GW1 and GW2.
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

	for _, gw := range []string{"GW1", "GW2"} {
		_, err := db.ExecContext(ctx,
			`INSERT INTO gateways (gateway_id, subscribe_topic, publish_topic) VALUES (?, ?, ?)`,
			gw, "up/"+gw, "down/"+gw)
		if err != nil {
			t.Fatalf("seeding gateway %s: %v", gw, err)
		}
	}
	return db.DB
}

// fakeCodes is a gateway-scoped code table for tests.
type fakeCodes map[string]struct {
	status map[string]RunStatus
	mode   map[string]Mode
}

func standardCodes(gateways ...string) fakeCodes {
	codes := fakeCodes{}
	for _, gw := range gateways {
		codes[gw] = struct {
			status map[string]RunStatus
			mode   map[string]Mode
		}{
			status: map[string]RunStatus{"1": StatusRunning, "0": StatusStopped},
			mode: map[string]Mode{
				"0": ModeAuto, "1": ModeCooling, "2": ModeHeating, "3": ModeFan, "4": ModeDehumidify,
			},
		}
	}
	return codes
}

func (f fakeCodes) HasGateway(gw string) bool {
	_, ok := f[gw]
	return ok
}

func (f fakeCodes) DecodeStatus(gw, code string) (RunStatus, error) {
	if v, ok := f[gw].status[code]; ok {
		return v, nil
	}
	return "", fmt.Errorf("unknown status code %q", code)
}

func (f fakeCodes) DecodeMode(gw, code string) (Mode, error) {
	if v, ok := f[gw].mode[code]; ok {
		return v, nil
	}
	return "", fmt.Errorf("unknown mode code %q", code)
}

// recordingSink collects snapshots.
type recordingSink struct {
	mu        sync.Mutex
	snapshots []Device
}

func (s *recordingSink) WriteSnapshot(d *Device, _ string, _ time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, *d)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots)
}

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }
