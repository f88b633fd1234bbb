package services

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
)

// ReachabilityMonitor probes the backend and tells subscribers when
// reachability flips. Any HTTP answer counts as reachable
type ReachabilityMonitor struct {
	probeURL string
	client   *http.Client
	logger   *log.Logger

	mu        sync.Mutex
	cron      *cron.Cron
	known     bool
	reachable bool
	nextID    int
	subs      map[int]func(bool)
}

// NewReachabilityMonitor creates a monitor probing probeURL. An empty URL is always reachable
func NewReachabilityMonitor(probeURL string, timeout time.Duration, logger *log.Logger) *ReachabilityMonitor {
	if logger == nil {
		logger = log.Default()
	}
	return &ReachabilityMonitor{
		probeURL: probeURL,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With("component", "reachability"),
		subs:     make(map[int]func(bool)),
	}
}

// CheckReachable probes now and returns the result
func (m *ReachabilityMonitor) CheckReachable(ctx context.Context) bool {
	ok := m.probe(ctx)
	m.update(ok)
	return ok
}

// Reachable returns the last observed state without probing
func (m *ReachabilityMonitor) Reachable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.known || m.reachable
}

// SubscribeReachability registers fn for state changes
func (m *ReachabilityMonitor) SubscribeReachability(fn func(reachable bool)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Start probes every interval until Stop is called
func (m *ReachabilityMonitor) Start(interval time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cron != nil {
		return fmt.Errorf("reachability monitor already started")
	}

	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.client.Timeout)
		defer cancel()
		m.CheckReachable(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule reachability probe: %w", err)
	}
	c.Start()
	m.cron = c
	m.logger.Info("reachability monitor started", "url", m.probeURL, "interval", interval)
	return nil
}

// Stop halts periodic probing and waits for a running probe to finish
func (m *ReachabilityMonitor) Stop() {
	m.mu.Lock()
	c := m.cron
	m.cron = nil
	m.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

func (m *ReachabilityMonitor) probe(ctx context.Context) bool {
	if m.probeURL == "" {
		return true
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.probeURL, nil)
	if err != nil {
		m.logger.Warn("invalid probe request", "error", err)
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Debug("probe failed", "error", err)
		return false
	}
	resp.Body.Close()
	return true
}

func (m *ReachabilityMonitor) update(reachable bool) {
	m.mu.Lock()
	changed := m.known && m.reachable != reachable
	m.known = true
	m.reachable = reachable
	var subs []func(bool)
	if changed {
		for _, fn := range m.subs {
			subs = append(subs, fn)
		}
	}
	m.mu.Unlock()

	if changed {
		m.logger.Info("reachability changed", "reachable", reachable)
	}
	for _, fn := range subs {
		fn(reachable)
	}
}
