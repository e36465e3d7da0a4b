package scheduler

import (
	"context"
	"time"

	"github.com/tabula-sync/tabula/internal/couch"
	"github.com/tabula-sync/tabula/internal/logger"
)

const (
	// DefaultProbeInterval is how often the store is probed for the
	// lifetime of the process.
	DefaultProbeInterval = 30 * time.Second
)

// Drainer replays queued mutations. Implemented by the favorites service.
type Drainer interface {
	Drain(ctx context.Context)
}

// ConnectivityMonitor probes the store on a fixed interval and drains the
// pending queue whenever the store is reachable. Out-of-band "browser
// reports online" notifications trigger an immediate probe and drain;
// offline reports are ignored entirely because the browser's signal is
// unreliable.
type ConnectivityMonitor struct {
	prober   *couch.Prober
	drainer  Drainer
	logger   logger.Logger
	interval time.Duration
	notify   chan struct{}
	stopCh   chan struct{}
}

// NewConnectivityMonitor creates a monitor. interval <= 0 selects the default.
func NewConnectivityMonitor(
	prober *couch.Prober,
	drainer Drainer,
	log logger.Logger,
	interval time.Duration,
) *ConnectivityMonitor {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &ConnectivityMonitor{
		prober:   prober,
		drainer:  drainer,
		logger:   log,
		interval: interval,
		notify:   make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
}

// Start probes once immediately, then begins the periodic loop.
func (m *ConnectivityMonitor) Start(ctx context.Context) error {
	m.probeAndDrain(ctx)

	ticker := time.NewTicker(m.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.probeAndDrain(ctx)
			case <-m.notify:
				m.logger.Info("browser reports online, checking connection")
				m.probeAndDrain(ctx)
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the periodic loop.
func (m *ConnectivityMonitor) Stop() {
	close(m.stopCh)
}

// NotifyOnline schedules an immediate out-of-band probe and drain attempt.
// Safe to call from any goroutine; coalesces when one is already queued.
func (m *ConnectivityMonitor) NotifyOnline() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *ConnectivityMonitor) probeAndDrain(ctx context.Context) {
	if !m.prober.Check(ctx) {
		m.logger.Debug("store not reachable",
			logger.Bool("online", m.prober.Online()))
		return
	}
	m.drainer.Drain(ctx)
}
