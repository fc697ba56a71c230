package discover

import (
	"context"
	"testing"

	"github.com/pilyon3/netdisco/internal/config"
	"github.com/pilyon3/netdisco/internal/domain"
	"github.com/pilyon3/netdisco/internal/jobqueue"
)

func gateFixture(cfg config.DiscoverConfig) (*memStore, *jobqueue.MemoryQueue, *Gate) {
	store := newMemStore()
	queue := jobqueue.NewMemoryQueue()
	return store, queue, NewGate(store, queue, cfg)
}

func queuedTargets(t *testing.T, q *jobqueue.MemoryQueue) []string {
	t.Helper()
	jobs, err := q.Jobs(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var targets []string
	for _, j := range jobs {
		targets = append(targets, j.Target)
	}
	return targets
}

func TestGateQueuesNewDevices(t *testing.T) {
	_, queue, gate := gateFixture(config.DiscoverConfig{})

	n := gate.Enqueue(context.Background(), []Peer{
		{IP: "10.0.0.5", Platform: "cisco", ID: "switchB"},
	})
	if n != 1 {
		t.Fatalf("expected 1 queued, got %d", n)
	}

	jobs, _ := queue.Jobs(context.Background())
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	job := jobs[0]
	if job.Action != domain.ActionDiscover || job.Target != "10.0.0.5" {
		t.Errorf("unexpected job %+v", job)
	}
	if job.DedupKey != "switchB" {
		t.Errorf("expected dedup key switchB, got %q", job.DedupKey)
	}
}

func TestGateDeduplication(t *testing.T) {
	t.Run("by IP within a pass", func(t *testing.T) {
		_, queue, gate := gateFixture(config.DiscoverConfig{})
		n := gate.Enqueue(context.Background(), []Peer{
			{IP: "10.0.0.5", ID: "b"},
			{IP: "10.0.0.5", ID: "c"},
		})
		if n != 1 {
			t.Errorf("expected 1 queued, got %d", n)
		}
		if got := queuedTargets(t, queue); len(got) != 1 {
			t.Errorf("expected 1 job, got %v", got)
		}
	})

	t.Run("by identity within a pass", func(t *testing.T) {
		_, queue, gate := gateFixture(config.DiscoverConfig{})
		n := gate.Enqueue(context.Background(), []Peer{
			{IP: "10.0.0.5", ID: "core1"},
			{IP: "10.0.0.6", ID: "core1"},
		})
		if n != 1 {
			t.Errorf("expected 1 queued, got %d", n)
		}
		got := queuedTargets(t, queue)
		if len(got) != 1 || got[0] != "10.0.0.5" {
			t.Errorf("expected only first IP queued, got %v", got)
		}
	})

	t.Run("empty identity never deduplicates", func(t *testing.T) {
		_, queue, gate := gateFixture(config.DiscoverConfig{})
		n := gate.Enqueue(context.Background(), []Peer{
			{IP: "10.0.0.5"},
			{IP: "10.0.0.6"},
		})
		if n != 2 {
			t.Errorf("expected 2 queued, got %d", n)
		}
		if got := queuedTargets(t, queue); len(got) != 2 {
			t.Errorf("expected 2 jobs, got %v", got)
		}
	})
}

func TestGateSkipsKnownDevices(t *testing.T) {
	store, queue, gate := gateFixture(config.DiscoverConfig{})
	store.addDevice(domain.NewDevice("10.0.0.5"))

	n := gate.Enqueue(context.Background(), []Peer{
		{IP: "10.0.0.5", ID: "known"},
		{IP: "10.0.0.6", ID: "fresh"},
	})
	if n != 1 {
		t.Errorf("expected 1 queued, got %d", n)
	}
	got := queuedTargets(t, queue)
	if len(got) != 1 || got[0] != "10.0.0.6" {
		t.Errorf("expected only unknown device queued, got %v", got)
	}
}

func TestGateAdmissionPolicy(t *testing.T) {
	t.Run("no ACL rejects address", func(t *testing.T) {
		_, queue, gate := gateFixture(config.DiscoverConfig{
			No: []string{"192.0.2.0/24"},
		})
		n := gate.Enqueue(context.Background(), []Peer{
			{IP: "192.0.2.9", ID: "lab"},
			{IP: "10.0.0.6", ID: "prod"},
		})
		if n != 1 {
			t.Errorf("expected 1 queued, got %d", n)
		}
		got := queuedTargets(t, queue)
		if len(got) != 1 || got[0] != "10.0.0.6" {
			t.Errorf("expected lab range rejected, got %v", got)
		}
	})

	t.Run("only ACL restricts admission", func(t *testing.T) {
		_, queue, gate := gateFixture(config.DiscoverConfig{
			Only: []string{"10.0.0.0/8"},
		})
		n := gate.Enqueue(context.Background(), []Peer{
			{IP: "172.16.0.1", ID: "outside"},
			{IP: "10.0.0.6", ID: "inside"},
		})
		if n != 1 {
			t.Errorf("expected 1 queued, got %d", n)
		}
		if got := queuedTargets(t, queue); len(got) != 1 || got[0] != "10.0.0.6" {
			t.Errorf("expected only in-range device queued, got %v", got)
		}
	})

	t.Run("platform type policy rejects", func(t *testing.T) {
		_, queue, gate := gateFixture(config.DiscoverConfig{
			NoTypes: []string{"ip phone"},
		})
		n := gate.Enqueue(context.Background(), []Peer{
			{IP: "10.0.0.5", Platform: "Cisco IP Phone 7940", ID: "phone1"},
			{IP: "10.0.0.6", Platform: "cisco WS-C3850", ID: "switch1"},
		})
		if n != 1 {
			t.Errorf("expected 1 queued, got %d", n)
		}
		if got := queuedTargets(t, queue); len(got) != 1 || got[0] != "10.0.0.6" {
			t.Errorf("expected phone rejected, got %v", got)
		}
	})

	t.Run("bad platform pattern dropped at construction", func(t *testing.T) {
		_, queue, gate := gateFixture(config.DiscoverConfig{
			NoTypes: []string{"ip phone", "(unclosed"},
		})
		if len(gate.noTypes) != 1 {
			t.Fatalf("expected 1 compiled pattern, got %d", len(gate.noTypes))
		}
		n := gate.Enqueue(context.Background(), []Peer{
			{IP: "10.0.0.5", Platform: "Cisco IP Phone 7940", ID: "phone1"},
			{IP: "10.0.0.6", Platform: "cisco WS-C3850", ID: "switch1"},
		})
		if n != 1 {
			t.Errorf("expected 1 queued, got %d", n)
		}
		if got := queuedTargets(t, queue); len(got) != 1 || got[0] != "10.0.0.6" {
			t.Errorf("expected valid pattern still enforced, got %v", got)
		}
	})
}
