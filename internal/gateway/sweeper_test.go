package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/hvac-link-core/internal/device"
)

type cascadeCall struct {
	gatewayID string
	online    bool
	source    string
}

type mockCascader struct {
	mu     sync.Mutex
	calls  []cascadeCall
	failOn string
}

func (m *mockCascader) SetGatewayDevicesOnline(_ context.Context, gatewayID string, online bool, source string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, cascadeCall{gatewayID, online, source})
	if gatewayID == m.failOn {
		return 0, errors.New("storage unavailable")
	}
	return 2, nil
}

func (m *mockCascader) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type recordingObserver struct {
	gateways int
	devices  int64
}

func (o *recordingObserver) ObserveSweep(gateways int, devices int64) {
	o.gateways = gateways
	o.devices = devices
}

// seedPresence registers gateways and marks them online as of lastHeard.
func seedPresence(t *testing.T, dir *Directory, lastHeard map[string]time.Time) {
	t.Helper()
	for id, at := range lastHeard {
		mustUpsert(t, dir, id, "hvac/"+id+"/up", "hvac/"+id+"/down")
		dir.now = func() time.Time { return at }
		if _, err := dir.SetOnline(context.Background(), id, true); err != nil {
			t.Fatalf("SetOnline(%s) error = %v", id, err)
		}
	}
	dir.now = time.Now
}

func TestSweeper_SweepOnce(t *testing.T) {
	dir, _ := newTestDirectory(t)
	now := time.Now()
	seedPresence(t, dir, map[string]time.Time{
		"GW1": now.Add(-2 * time.Hour),
		"GW2": now.Add(-5 * time.Minute),
	})

	cascader := &mockCascader{}
	obs := &recordingObserver{}
	s := NewSweeper(dir, cascader, SweeperConfig{StaleAfter: time.Hour, Cascade: true})
	s.SetObserver(obs)

	result, err := s.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce() error = %v", err)
	}
	if len(result.Gateways) != 1 || result.Gateways[0] != "GW1" {
		t.Fatalf("swept = %v, want [GW1]", result.Gateways)
	}
	if result.Devices != 2 {
		t.Errorf("Devices = %d, want 2", result.Devices)
	}
	if obs.gateways != 1 || obs.devices != 2 {
		t.Errorf("observer = %+v", obs)
	}

	if len(cascader.calls) != 1 {
		t.Fatalf("cascade calls = %d, want 1", len(cascader.calls))
	}
	if c := cascader.calls[0]; c.gatewayID != "GW1" || c.online || c.source != device.SourceSweep {
		t.Errorf("cascade call = %+v", c)
	}

	gw1, _ := dir.Get(context.Background(), "GW1")
	gw2, _ := dir.Get(context.Background(), "GW2")
	if gw1.Online {
		t.Error("GW1 should be offline")
	}
	if !gw2.Online {
		t.Error("GW2 should still be online")
	}

	// A second sweep finds nothing: GW1 is already offline.
	result, err = s.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("second SweepOnce() error = %v", err)
	}
	if len(result.Gateways) != 0 {
		t.Errorf("second sweep = %v, want none", result.Gateways)
	}
}

func TestSweeper_KeepsLastHeardTime(t *testing.T) {
	dir, _ := newTestDirectory(t)
	heard := time.Now().Add(-3 * time.Hour).UTC().Truncate(time.Second)
	seedPresence(t, dir, map[string]time.Time{"GW1": heard})

	s := NewSweeper(dir, nil, SweeperConfig{StaleAfter: time.Hour})
	if _, err := s.SweepOnce(context.Background()); err != nil {
		t.Fatalf("SweepOnce() error = %v", err)
	}

	g, err := dir.Get(context.Background(), "GW1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !g.UpdatedAt.Equal(heard) {
		t.Errorf("UpdatedAt = %v, want %v", g.UpdatedAt, heard)
	}
}

func TestSweeper_NoCascade(t *testing.T) {
	dir, _ := newTestDirectory(t)
	seedPresence(t, dir, map[string]time.Time{"GW1": time.Now().Add(-2 * time.Hour)})

	cascader := &mockCascader{}
	s := NewSweeper(dir, cascader, SweeperConfig{StaleAfter: time.Hour, Cascade: false})
	result, err := s.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce() error = %v", err)
	}
	if len(result.Gateways) != 1 {
		t.Errorf("swept = %v, want one gateway", result.Gateways)
	}
	if cascader.callCount() != 0 {
		t.Errorf("cascade calls = %d, want 0", cascader.callCount())
	}
}

func TestSweeper_CascadeFailureContinues(t *testing.T) {
	dir, _ := newTestDirectory(t)
	old := time.Now().Add(-2 * time.Hour)
	seedPresence(t, dir, map[string]time.Time{"GW1": old, "GW2": old})

	cascader := &mockCascader{failOn: "GW1"}
	s := NewSweeper(dir, cascader, SweeperConfig{StaleAfter: time.Hour, Cascade: true})
	result, err := s.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce() error = %v", err)
	}
	if len(result.Gateways) != 2 {
		t.Errorf("swept = %v, want two gateways", result.Gateways)
	}
	if result.Devices != 2 {
		t.Errorf("Devices = %d, want 2 from GW2 only", result.Devices)
	}
}

func TestSweeper_CascadesToRealDevices(t *testing.T) {
	dir, db := newTestDirectory(t)
	ctx := context.Background()
	seedPresence(t, dir, map[string]time.Time{"GW1": time.Now().Add(-2 * time.Hour)})

	repo := device.NewSQLiteRepository(db)
	rec := device.NewReconciler(repo, nil)
	for _, addr := range []string{"1-1", "1-2"} {
		if _, _, err := rec.ReconcileDevice(ctx, "GW1", addr); err != nil {
			t.Fatalf("ReconcileDevice(%s) error = %v", addr, err)
		}
	}

	s := NewSweeper(dir, rec, SweeperConfig{StaleAfter: time.Hour, Cascade: true})
	result, err := s.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce() error = %v", err)
	}
	if result.Devices != 2 {
		t.Errorf("Devices = %d, want 2", result.Devices)
	}

	devices, err := rec.ListByGateway(ctx, "GW1")
	if err != nil {
		t.Fatalf("ListByGateway() error = %v", err)
	}
	for _, d := range devices {
		if d.Online {
			t.Errorf("device %s still online", d.Address)
		}
	}
}

func TestSweeper_StartStop(t *testing.T) {
	dir, _ := newTestDirectory(t)
	seedPresence(t, dir, map[string]time.Time{"GW1": time.Now().Add(-2 * time.Hour)})

	cascader := &mockCascader{}
	s := NewSweeper(dir, cascader, SweeperConfig{StaleAfter: time.Hour, Interval: time.Hour, Cascade: true})
	s.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for cascader.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	s.Stop()
	s.Stop()

	if cascader.callCount() != 1 {
		t.Errorf("cascade calls = %d, want 1 from the initial sweep", cascader.callCount())
	}
}
