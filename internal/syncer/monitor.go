package syncer

import (
	"context"
	"log/slog"
	"time"

	"github.com/jvega/inventa/internal/syncclient"
)

// DefaultProbeInterval is how often the monitor probes the server.
const DefaultProbeInterval = 15 * time.Second

// Monitor watches server reachability through /healthz and feeds the runner:
// while the server is unreachable the runner's interval tick is suspended,
// and the offline to online transition triggers an immediate round so queued
// work drains without waiting for the next tick.
type Monitor struct {
	client   *syncclient.Client
	runner   *Runner
	interval time.Duration
	online   bool
	log      *slog.Logger
}

// NewMonitor creates a Monitor. A zero interval uses DefaultProbeInterval.
func NewMonitor(client *syncclient.Client, runner *Runner, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Monitor{
		client:   client,
		runner:   runner,
		interval: interval,
		online:   true,
		log:      slog.Default().With("component", "monitor"),
	}
}

// Run probes until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.probe()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe()
		}
	}
}

func (m *Monitor) probe() {
	_, err := m.client.HealthCheck()
	nowOnline := err == nil

	if nowOnline != m.online {
		if nowOnline {
			m.log.Info("server reachable again")
		} else {
			m.log.Warn("server unreachable", "err", err)
		}
	}

	wasOnline := m.online
	m.online = nowOnline
	m.runner.SetOnline(nowOnline)

	if nowOnline && !wasOnline {
		m.runner.Trigger()
	}
}
