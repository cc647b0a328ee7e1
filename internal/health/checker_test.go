package health_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/credanchor/credanchor/internal/health"
)

// flakyProbe fails until its failure budget is spent.
type flakyProbe struct {
	mu       sync.Mutex
	failures int
}

func (p *flakyProbe) check(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return fmt.Errorf("connection refused")
	}
	return nil
}

func newMonitor(probes []health.Probe) *health.Monitor {
	return health.New(probes, health.Config{
		CheckInterval: time.Minute,
		ProbeTimeout:  time.Second,
		FailThreshold: 3,
	}, zap.NewNop())
}

func TestCheckAll_thresholdTransitions(t *testing.T) {
	probe := &flakyProbe{failures: 3}
	m := newMonitor([]health.Probe{{Name: "database", Check: probe.check}})

	var events []string
	m.SetEventFunc(func(_ context.Context, event string, _ map[string]string) {
		events = append(events, event)
	})

	ctx := context.Background()

	// Two failures: below threshold, still healthy.
	m.CheckAll(ctx)
	m.CheckAll(ctx)
	if _, ok := m.Status(); !ok {
		t.Fatal("monitor degraded below the failure threshold")
	}

	// Third consecutive failure crosses the threshold.
	m.CheckAll(ctx)
	statuses, ok := m.Status()
	if ok || statuses["database"] != "degraded" {
		t.Fatalf("expected degraded at threshold, got %v ok=%t", statuses, ok)
	}

	// A success recovers immediately.
	m.CheckAll(ctx)
	if statuses, ok := m.Status(); !ok || statuses["database"] != "healthy" {
		t.Fatalf("expected recovery, got %v ok=%t", statuses, ok)
	}

	want := []string{"registry.dependency_degraded", "registry.dependency_recovered"}
	if len(events) != len(want) || events[0] != want[0] || events[1] != want[1] {
		t.Errorf("events %v, want %v", events, want)
	}
}

func TestCheckAll_metricsCallback(t *testing.T) {
	m := newMonitor([]health.Probe{
		{Name: "ledger", Check: func(context.Context) error { return nil }},
		{Name: "broker", Check: func(context.Context) error { return fmt.Errorf("down") }},
	})

	var mu sync.Mutex
	results := make(map[string]bool)
	m.SetMetricsRecord(func(dep string, success bool) {
		mu.Lock()
		defer mu.Unlock()
		results[dep] = success
	})

	m.CheckAll(context.Background())

	if !results["ledger"] || results["broker"] {
		t.Errorf("unexpected probe results %v", results)
	}
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	probe := &flakyProbe{failures: 3}
	m := newMonitor([]health.Probe{{Name: "database", Check: probe.check}})

	r := gin.New()
	r.GET("/healthz", m.Handler())

	get := func() int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		return w.Code
	}

	if code := get(); code != http.StatusOK {
		t.Errorf("fresh monitor: status %d, want 200", code)
	}

	for i := 0; i < 3; i++ {
		m.CheckAll(context.Background())
	}
	if code := get(); code != http.StatusServiceUnavailable {
		t.Errorf("degraded monitor: status %d, want 503", code)
	}
}
