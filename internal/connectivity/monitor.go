// Package connectivity watches remote reachability and reports transitions.
package connectivity

import (
	"context"
	"log"
	"sync"
	"time"
)

// Pinger is the probe the monitor uses, typically the remote client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// MonitorConfig holds configuration for the connectivity monitor.
type MonitorConfig struct {
	// ProbeInterval is how often reachability is checked. Default: 30s
	ProbeInterval time.Duration

	// ProbeTimeout bounds each individual probe. Default: 5s
	ProbeTimeout time.Duration
}

// Monitor periodically probes the remote service and invokes a callback on
// every online/offline transition. The callback runs on the monitor
// goroutine and must not block for long.
type Monitor struct {
	pinger   Pinger
	config   MonitorConfig
	onChange func(online bool)

	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex

	online    bool
	onlineSet bool
}

// NewMonitor creates a connectivity monitor. onChange fires on every
// transition, including the very first probe result.
func NewMonitor(pinger Pinger, config MonitorConfig, onChange func(online bool)) *Monitor {
	if config.ProbeInterval == 0 {
		config.ProbeInterval = 30 * time.Second
	}
	if config.ProbeTimeout == 0 {
		config.ProbeTimeout = 5 * time.Second
	}

	return &Monitor{
		pinger:   pinger,
		config:   config,
		onChange: onChange,
		stopCh:   make(chan struct{}),
	}
}

// Start begins probing.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = true
	m.ticker = time.NewTicker(m.config.ProbeInterval)
	m.mu.Unlock()

	log.Printf("[ConnectivityMonitor] Started - Interval: %v", m.config.ProbeInterval)

	go func() {
		m.probe()
		m.run()
	}()
}

func (m *Monitor) run() {
	for {
		select {
		case <-m.ticker.C:
			m.probe()
		case <-m.stopCh:
			log.Printf("[ConnectivityMonitor] Stopped")
			return
		}
	}
}

// probe checks reachability once and fires the callback on a transition.
func (m *Monitor) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.ProbeTimeout)
	defer cancel()

	online := m.pinger.Ping(ctx) == nil

	m.mu.Lock()
	changed := !m.onlineSet || m.online != online
	m.online = online
	m.onlineSet = true
	m.mu.Unlock()

	if changed {
		log.Printf("[ConnectivityMonitor] Transition - online=%v", online)
		if m.onChange != nil {
			m.onChange(online)
		}
	}
}

// Online returns the last probed state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// ProbeNow forces an immediate reachability check.
func (m *Monitor) ProbeNow() bool {
	m.probe()
	return m.Online()
}

// Stop stops the monitor.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		if m.ticker != nil {
			m.ticker.Stop()
		}
		close(m.stopCh)
		m.isRunning = false
	})
}
