package connectivity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type stubPinger struct {
	mu  sync.Mutex
	err error
}

func (p *stubPinger) Ping(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *stubPinger) set(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func TestMonitorReportsTransitions(t *testing.T) {
	pinger := &stubPinger{}
	var mu sync.Mutex
	var transitions []bool

	m := NewMonitor(pinger, MonitorConfig{ProbeInterval: time.Hour}, func(online bool) {
		mu.Lock()
		transitions = append(transitions, online)
		mu.Unlock()
	})

	if got := m.ProbeNow(); !got {
		t.Fatal("reachable pinger should probe online")
	}
	// same state again: no new transition
	m.ProbeNow()

	pinger.set(errors.New("down"))
	if got := m.ProbeNow(); got {
		t.Fatal("failing pinger should probe offline")
	}

	pinger.set(nil)
	m.ProbeNow()

	mu.Lock()
	defer mu.Unlock()
	want := []bool{true, false, true}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", transitions, want)
		}
	}
}

func TestMonitorStartStop(t *testing.T) {
	pinger := &stubPinger{}
	m := NewMonitor(pinger, MonitorConfig{ProbeInterval: 10 * time.Millisecond}, nil)

	m.Start()
	m.Start() // second start is a no-op

	time.Sleep(30 * time.Millisecond)
	if !m.Online() {
		t.Error("monitor should have probed online")
	}

	m.Stop()
	m.Stop() // second stop is safe
}
