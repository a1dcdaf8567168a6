package device

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func newTestReconciler(t *testing.T) (*Reconciler, *recordingSink) {
	t.Helper()
	rec := NewReconciler(NewSQLiteRepository(setupTestDB(t)), standardCodes("GW1"))
	sink := &recordingSink{}
	rec.SetSnapshotSink(sink)
	return rec, sink
}

func TestReconciler_ReconcileAndApply_FullReport(t *testing.T) {
	rec, sink := newTestReconciler(t)
	ctx := context.Background()

	res, err := rec.ReconcileAndApply(ctx, "GW1", "1-1", RawStatus{
		OnOffCode:   strPtr("1"),
		ModeCode:    strPtr("1"),
		SetTemp:     floatPtr(24.0),
		CurrentTemp: floatPtr(25.5),
		FanSpeed:    intPtr(1),
	})
	if err != nil {
		t.Fatalf("ReconcileAndApply() error = %v", err)
	}
	if !res.Created || !res.Changed {
		t.Errorf("Created=%v Changed=%v, want both true", res.Created, res.Changed)
	}

	d := res.Device
	if d.Status != StatusRunning || d.Mode != ModeCooling || d.FanSpeed != FanHigh {
		t.Errorf("status=%s mode=%s fan=%v", d.Status, d.Mode, d.FanSpeed)
	}
	if *d.SetTemp != 24.0 || *d.CurrentTemp != 25.5 {
		t.Errorf("set_temp=%v current_temp=%v", *d.SetTemp, *d.CurrentTemp)
	}
	if !d.Online || d.LastUpdated == nil {
		t.Error("device should be online with last_updated set")
	}
	if sink.count() != 1 {
		t.Errorf("snapshots = %d, want 1", sink.count())
	}
}

func TestReconciler_UnknownCodesSkipOnlyThatField(t *testing.T) {
	rec, _ := newTestReconciler(t)
	ctx := context.Background()

	if _, err := rec.ReconcileAndApply(ctx, "GW1", "1-1", RawStatus{
		OnOffCode: strPtr("1"), ModeCode: strPtr("2"), FanSpeed: intPtr(4),
	}); err != nil {
		t.Fatalf("seed report error = %v", err)
	}

	res, err := rec.ReconcileAndApply(ctx, "GW1", "1-1", RawStatus{
		OnOffCode: strPtr("9"),
		ModeCode:  strPtr("7"),
		FanSpeed:  intPtr(3),
		SetTemp:   floatPtr(22),
	})
	if err != nil {
		t.Fatalf("ReconcileAndApply() error = %v", err)
	}

	d := res.Device
	if d.Status != StatusRunning {
		t.Errorf("Status = %s, want running (unknown code skipped)", d.Status)
	}
	if d.Mode != ModeHeating {
		t.Errorf("Mode = %s, want heating (unknown code skipped)", d.Mode)
	}
	if d.FanSpeed != FanLow {
		t.Errorf("FanSpeed = %v, want low (invalid value skipped)", d.FanSpeed)
	}
	if *d.SetTemp != 22 {
		t.Errorf("SetTemp = %v, want 22", *d.SetTemp)
	}
}

func TestReconciler_UnknownGatewayCreatesNothing(t *testing.T) {
	rec, _ := newTestReconciler(t)
	ctx := context.Background()

	_, err := rec.ReconcileAndApply(ctx, "GW2", "1-1", RawStatus{OnOffCode: strPtr("1")})
	if !errors.Is(err, ErrNoCodeTable) {
		t.Fatalf("error = %v, want ErrNoCodeTable", err)
	}

	devices, err := rec.ListByGateway(ctx, "GW2")
	if err != nil {
		t.Fatalf("ListByGateway() error = %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("devices on GW2 = %d, want 0", len(devices))
	}
}

func TestReconciler_PresenceIndicator(t *testing.T) {
	rec, _ := newTestReconciler(t)
	ctx := context.Background()

	res, err := rec.ReconcileAndApply(ctx, "GW1", "1-1", RawStatus{Presence: strPtr("offline")})
	if err != nil {
		t.Fatalf("ReconcileAndApply() error = %v", err)
	}
	if res.Device.Online {
		t.Error("acs=offline should mark the device offline")
	}

	res, err = rec.ReconcileAndApply(ctx, "GW1", "1-1", RawStatus{CurrentTemp: floatPtr(20)})
	if err != nil {
		t.Fatalf("ReconcileAndApply() error = %v", err)
	}
	if !res.Device.Online {
		t.Error("a decoded report without acs should mark the device online")
	}
}

func TestReconciler_ConcurrentReconcile(t *testing.T) {
	rec, _ := newTestReconciler(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, c, err := rec.ReconcileDevice(ctx, "GW1", "3-3")
			if err != nil {
				t.Errorf("ReconcileDevice() error = %v", err)
				return
			}
			if c {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("created = %d, want 1", created)
	}
	devices, _ := rec.ListByGateway(ctx, "GW1")
	if len(devices) != 1 {
		t.Errorf("devices = %d, want 1", len(devices))
	}
}

func TestReconciler_ApplyStatusRequiresExistingDevice(t *testing.T) {
	rec, _ := newTestReconciler(t)
	_, _, err := rec.ApplyStatus(context.Background(), "GW1", "9-9", RawStatus{SetTemp: floatPtr(20)})
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("ApplyStatus() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestReconciler_Enrich(t *testing.T) {
	rec, _ := newTestReconciler(t)
	ctx := context.Background()

	d, _, err := rec.ReconcileDevice(ctx, "GW1", "1-1")
	if err != nil {
		t.Fatalf("ReconcileDevice() error = %v", err)
	}

	loc := Location{Company: "Acme", Department: "Ops", Building: "A", Floor: "3", Room: "301"}
	enriched, err := rec.Enrich(ctx, d.ID, "Room 301 cassette", loc)
	if err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}
	if enriched.Lifecycle != LifecycleActive {
		t.Errorf("Lifecycle = %s, want active", enriched.Lifecycle)
	}
	if enriched.Name != "Room 301 cassette" || enriched.Location != loc {
		t.Errorf("enriched = %+v", enriched)
	}

	kept, err := rec.Enrich(ctx, d.ID, "", Location{Building: "B"})
	if err != nil {
		t.Fatalf("Enrich() with empty name error = %v", err)
	}
	if kept.Name != "Room 301 cassette" {
		t.Errorf("empty name should keep %q, got %q", "Room 301 cassette", kept.Name)
	}

	if _, err := rec.Enrich(ctx, "missing", "x", loc); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Enrich(missing) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestReconciler_CreateDevice(t *testing.T) {
	rec, _ := newTestReconciler(t)
	ctx := context.Background()

	d := &Device{GatewayID: "GW1", Address: "4-1", Name: "Server room", Location: Location{Building: "A"}}
	if err := rec.CreateDevice(ctx, d); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}
	if d.ID == "" || d.Lifecycle != LifecycleActive || d.Status != StatusStopped || d.Mode != ModeAuto {
		t.Errorf("defaults not applied: %+v", d)
	}

	got, err := rec.GetDevice(ctx, d.ID)
	if err != nil || got.Name != "Server room" {
		t.Errorf("GetDevice() = %+v, %v", got, err)
	}

	if err := rec.CreateDevice(ctx, &Device{GatewayID: "GW9", Address: "1", Name: "x"}); !errors.Is(err, ErrGatewayNotFound) {
		t.Errorf("CreateDevice(unknown gateway) error = %v, want ErrGatewayNotFound", err)
	}

	if err := rec.DeleteDevice(ctx, d.ID); err != nil {
		t.Errorf("DeleteDevice() error = %v", err)
	}
}

func TestReconciler_SetGatewayDevicesOnline(t *testing.T) {
	rec, _ := newTestReconciler(t)
	ctx := context.Background()

	for _, addr := range []string{"1-1", "1-2"} {
		if _, _, err := rec.ReconcileDevice(ctx, "GW1", addr); err != nil {
			t.Fatalf("ReconcileDevice(%s) error = %v", addr, err)
		}
	}

	n, err := rec.SetGatewayDevicesOnline(ctx, "GW1", false, SourceSweep)
	if err != nil || n != 2 {
		t.Fatalf("SetGatewayDevicesOnline() = %d, %v", n, err)
	}
	devices, _ := rec.ListDevices(ctx)
	for _, d := range devices {
		if d.Online {
			t.Errorf("device %s still online", d.Address)
		}
	}
}
