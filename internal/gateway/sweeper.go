package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/hvac-link-core/internal/device"
)

// DeviceCascader pushes a gateway's presence onto its devices. It is
// satisfied by *device.Reconciler.
type DeviceCascader interface {
	SetGatewayDevicesOnline(ctx context.Context, gatewayID string, online bool, source string) (int64, error)
}

// SweepObserver receives the outcome of each sweep (metrics hook).
type SweepObserver interface {
	ObserveSweep(gateways int, devices int64)
}

// SweeperConfig configures the staleness sweep.
type SweeperConfig struct {
	// StaleAfter is how long a gateway may stay silent before it is
	// considered offline. Default: 1 hour.
	StaleAfter time.Duration

	// Interval between sweeps. Default: 1 hour.
	Interval time.Duration

	// Cascade also marks the devices of stale gateways offline.
	Cascade bool
}

// SweepResult summarises one sweep.
type SweepResult struct {
	Gateways []string
	Devices  int64
}

// Sweeper periodically marks silent gateways offline.
type Sweeper struct {
	dir      *Directory
	cascader DeviceCascader
	observer SweepObserver
	cfg      SweeperConfig
	logger   Logger
	now      func() time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewSweeper creates a sweeper. cascader may be nil when Cascade is false.
func NewSweeper(dir *Directory, cascader DeviceCascader, cfg SweeperConfig) *Sweeper {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = time.Hour
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &Sweeper{
		dir:      dir,
		cascader: cascader,
		cfg:      cfg,
		logger:   noopLogger{},
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// SetLogger sets the logger for the sweeper.
func (s *Sweeper) SetLogger(logger Logger) {
	s.logger = logger
}

// SetObserver registers a sweep observer.
func (s *Sweeper) SetObserver(o SweepObserver) {
	s.observer = o
}

// SweepOnce runs a single sweep. A cascade failure for one gateway is
// logged and does not stop the others.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	cutoff := s.now().Add(-s.cfg.StaleAfter)
	ids, err := s.dir.MarkStale(ctx, cutoff)
	if err != nil {
		return SweepResult{}, err
	}

	result := SweepResult{Gateways: ids}
	for _, id := range ids {
		s.logger.Warn("gateway stale, marked offline", "gateway_id", id, "cutoff", cutoff.UTC().Format(time.RFC3339))
		if !s.cfg.Cascade || s.cascader == nil {
			continue
		}
		n, err := s.cascader.SetGatewayDevicesOnline(ctx, id, false, device.SourceSweep)
		if err != nil {
			s.logger.Error("cascading offline to devices failed", "gateway_id", id, "error", err)
			continue
		}
		result.Devices += n
	}

	if s.observer != nil {
		s.observer.ObserveSweep(len(result.Gateways), result.Devices)
	}
	return result, nil
}

// Start runs SweepOnce immediately and then every Interval until ctx is
// cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop halts the sweep loop and waits for it to exit. Safe to call more than once.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if _, err := s.SweepOnce(ctx); err != nil {
		s.logger.Error("gateway sweep failed", "error", err)
	}
}
