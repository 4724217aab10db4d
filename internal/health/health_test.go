package health

import (
	"context"
	"sync"
	"testing"
)

func TestEmptyRegistryIsHealthy(t *testing.T) {
	healthy, statuses := NewRegistry().CheckAll(context.Background())
	if !healthy {
		t.Fatal("registry with no checkers should report healthy")
	}
	if len(statuses) != 0 {
		t.Fatalf("expected no statuses, got %d", len(statuses))
	}
}

func TestAggregateHealth(t *testing.T) {
	r := NewRegistry()
	r.Register("database", func(_ context.Context) Status {
		return Status{Name: "database", Healthy: true}
	})
	r.Register("certifier", func(_ context.Context) Status {
		return Status{Name: "certifier", Healthy: true, Detail: "minting enabled"}
	})

	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Fatal("expected healthy aggregate")
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	// Registration order is preserved.
	if statuses[0].Name != "database" || statuses[1].Name != "certifier" {
		t.Fatalf("unexpected order: %v", statuses)
	}

	r.Register("rpc", func(_ context.Context) Status {
		return Status{Healthy: false, Detail: "connection refused"}
	})

	healthy, statuses = r.CheckAll(context.Background())
	if healthy {
		t.Fatal("one failing probe must flip the aggregate")
	}
	// A checker that forgets to set its name gets the registered one.
	if statuses[2].Name != "rpc" {
		t.Fatalf("expected name rpc, got %q", statuses[2].Name)
	}
	if statuses[2].Detail != "connection refused" {
		t.Fatalf("unexpected detail %q", statuses[2].Detail)
	}
}

func TestConcurrentRegisterAndCheck(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Register("probe", func(_ context.Context) Status {
				return Status{Name: "probe", Healthy: true}
			})
		}()
		go func() {
			defer wg.Done()
			r.CheckAll(context.Background())
		}()
	}

	wg.Wait()
}
