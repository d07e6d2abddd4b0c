// Package health polls provider health checks and exposes the results over
// HTTP, Prometheus and the standard gRPC health protocol.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/akylbek/payment-system/payment-core/internal/provider"
	"github.com/akylbek/payment-system/payment-core/internal/telemetry"
)

// ServicePrefix prefixes per-provider service names in the gRPC health server.
const ServicePrefix = "payment-core.provider."

type ProviderLister interface {
	Providers() []provider.Provider
}

type Snapshot struct {
	Provider  string        `json:"provider"`
	Healthy   bool          `json:"healthy"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency"`
	CheckedAt time.Time     `json:"checked_at"`
}

type Monitor struct {
	providers ProviderLister
	interval  time.Duration
	timeout   time.Duration
	server    *grpchealth.Server

	mu     sync.RWMutex
	latest map[string]Snapshot
}

func NewMonitor(providers ProviderLister, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		providers: providers,
		interval:  interval,
		timeout:   5 * time.Second,
		server:    grpchealth.NewServer(),
		latest:    make(map[string]Snapshot),
	}
}

// Run checks immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.CheckAll(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.server.Shutdown()
			return
		case <-ticker.C:
			m.CheckAll(ctx)
		}
	}
}

// CheckAll runs every provider's health check concurrently.
func (m *Monitor) CheckAll(ctx context.Context) []Snapshot {
	providers := m.providers.Providers()
	results := make([]Snapshot, len(providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range providers {
		i, p := i, p
		g.Go(func() error {
			results[i] = m.check(gctx, p)
			return nil
		})
	}
	_ = g.Wait()

	anyHealthy := false
	m.mu.Lock()
	for _, s := range results {
		m.latest[s.Provider] = s
		anyHealthy = anyHealthy || s.Healthy

		status := healthpb.HealthCheckResponse_NOT_SERVING
		gauge := 0.0
		if s.Healthy {
			status = healthpb.HealthCheckResponse_SERVING
			gauge = 1
		}
		m.server.SetServingStatus(ServicePrefix+s.Provider, status)
		telemetry.ProviderUp.WithLabelValues(s.Provider).Set(gauge)
	}
	m.mu.Unlock()

	overall := healthpb.HealthCheckResponse_NOT_SERVING
	if anyHealthy {
		overall = healthpb.HealthCheckResponse_SERVING
	}
	m.server.SetServingStatus("", overall)
	return results
}

func (m *Monitor) check(ctx context.Context, p provider.Provider) (s Snapshot) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	started := time.Now()
	s = Snapshot{Provider: p.Name()}
	defer func() {
		if r := recover(); r != nil {
			s.Healthy = false
			s.Message = "health check panicked"
		}
		s.Latency = time.Since(started)
		s.CheckedAt = time.Now().UTC()
		if !s.Healthy {
			telemetry.Logger.Warn("Provider unhealthy",
				zap.String("provider", s.Provider),
				zap.String("message", s.Message),
			)
		}
	}()

	status := p.HealthCheck(ctx)
	s.Healthy = status.Healthy
	s.Message = status.Message
	return s
}

// Latest returns the most recent snapshot per provider, by name.
func (m *Monitor) Latest() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Snapshot, 0, len(m.latest))
	for _, s := range m.latest {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// Register adds the health service to a gRPC server.
func (m *Monitor) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, m.server)
}

// HealthServer exposes the underlying gRPC health server.
func (m *Monitor) HealthServer() *grpchealth.Server {
	return m.server
}
