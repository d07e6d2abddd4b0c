package health

import (
	"context"
	"testing"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/akylbek/payment-system/payment-core/internal/provider"
	"github.com/akylbek/payment-system/payment-core/internal/provider/sandbox"
)

func TestCheckAll(t *testing.T) {
	up := sandbox.New("alpha", "s")
	down := sandbox.New("beta", "s")
	down.SetHealthy(false)

	reg := provider.NewRegistry()
	_ = reg.Register(up, 1, true)
	_ = reg.Register(down, 2, true)

	m := NewMonitor(reg, 0)
	m.CheckAll(context.Background())

	latest := m.Latest()
	if len(latest) != 2 || latest[0].Provider != "alpha" || !latest[0].Healthy || latest[1].Healthy {
		t.Fatalf("latest = %+v", latest)
	}
	if latest[1].Message == "" || latest[1].CheckedAt.IsZero() {
		t.Fatalf("beta snapshot = %+v", latest[1])
	}

	ctx := context.Background()
	resp, err := m.HealthServer().Check(ctx, &healthpb.HealthCheckRequest{Service: ServicePrefix + "beta"})
	if err != nil || resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("beta grpc = %v, %v", resp, err)
	}
	resp, err = m.HealthServer().Check(ctx, &healthpb.HealthCheckRequest{Service: ""})
	if err != nil || resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("overall grpc = %v, %v", resp, err)
	}

	up.SetHealthy(false)
	m.CheckAll(ctx)
	resp, _ = m.HealthServer().Check(ctx, &healthpb.HealthCheckRequest{Service: ""})
	if resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("overall after outage = %v", resp.Status)
	}
}
