// Package health periodically probes the registry's dependencies — the
// database, the ledger node, the content store, and the notification
// broker — and serves the aggregate status on the health endpoint.
package health

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// Probe checks one dependency. Check returns nil when the dependency is
// reachable and serving.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// EventFunc is an optional callback invoked when a dependency crosses
// the degraded threshold or recovers.
type EventFunc func(ctx context.Context, event string, payload map[string]string)

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(dependency string, success bool)

// Monitor runs periodic dependency probes. A dependency is reported
// degraded only after FailThreshold consecutive failures, so one flaky
// probe does not flip the health endpoint.
type Monitor struct {
	probes     []Probe
	mu         sync.Mutex
	failCounts map[string]int
	degraded   map[string]bool
	cfg        Config
	onEvent    EventFunc
	onMetrics  MetricsRecordFunc
	logger     *zap.Logger
}

// New creates a Monitor over the given probes.
func New(probes []Probe, cfg Config, logger *zap.Logger) *Monitor {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}

	return &Monitor{
		probes:     probes,
		failCounts: make(map[string]int),
		degraded:   make(map[string]bool),
		cfg:        cfg,
		logger:     logger,
	}
}

// SetEventFunc configures the degradation/recovery callback.
func (m *Monitor) SetEventFunc(fn EventFunc) {
	m.onEvent = fn
}

// SetMetricsRecord configures the metrics recording callback.
func (m *Monitor) SetMetricsRecord(fn MetricsRecordFunc) {
	m.onMetrics = fn
}

// Start runs the probe loop until quit is signalled.
func (m *Monitor) Start(quit <-chan os.Signal) {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.cfg.CheckInterval-time.Second)
			m.CheckAll(ctx)
			cancel()
		case <-quit:
			return
		}
	}
}

// CheckAll runs every probe once, concurrently.
func (m *Monitor) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, p := range m.probes {
		wg.Add(1)
		go func(p Probe) {
			defer wg.Done()

			probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
			err := p.Check(probeCtx)
			cancel()
			success := err == nil

			if m.onMetrics != nil {
				m.onMetrics(p.Name, success)
			}

			m.mu.Lock()
			prevCount := m.failCounts[p.Name]
			if success {
				m.failCounts[p.Name] = 0
			} else {
				m.failCounts[p.Name]++
			}
			count := m.failCounts[p.Name]
			if success {
				m.degraded[p.Name] = false
			} else if count >= m.cfg.FailThreshold {
				m.degraded[p.Name] = true
			}
			m.mu.Unlock()

			switch {
			case success && prevCount >= m.cfg.FailThreshold:
				// Transition: degraded → healthy
				m.logger.Info("health: recovered", zap.String("dependency", p.Name))
				if m.onEvent != nil {
					m.onEvent(ctx, "registry.dependency_recovered", map[string]string{
						"dependency": p.Name,
					})
				}
			case !success && count == m.cfg.FailThreshold:
				// Transition: healthy → degraded (exactly at threshold)
				m.logger.Warn("health: degraded",
					zap.String("dependency", p.Name),
					zap.Int("fail_count", count),
					zap.Error(err),
				)
				if m.onEvent != nil {
					m.onEvent(ctx, "registry.dependency_degraded", map[string]string{
						"dependency": p.Name,
						"error":      err.Error(),
					})
				}
			case !success:
				m.logger.Warn("health: probe failed",
					zap.String("dependency", p.Name),
					zap.Int("fail_count", count),
					zap.Error(err),
				)
			}
		}(p)
	}
	wg.Wait()
}

// Status returns the per-dependency view and whether every dependency is
// healthy.
func (m *Monitor) Status() (map[string]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ok := true
	statuses := make(map[string]string, len(m.probes))
	for _, p := range m.probes {
		if m.degraded[p.Name] {
			statuses[p.Name] = "degraded"
			ok = false
		} else {
			statuses[p.Name] = "healthy"
		}
	}
	return statuses, ok
}

// Handler serves the aggregate health status: 200 while every dependency
// is healthy, 503 once any crosses the degraded threshold.
func (m *Monitor) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		statuses, ok := m.Status()
		code := http.StatusOK
		status := "ok"
		if !ok {
			code = http.StatusServiceUnavailable
			status = "degraded"
		}
		c.JSON(code, gin.H{
			"status":       status,
			"dependencies": statuses,
		})
	}
}
