package discover

import (
	"context"
	"testing"

	"github.com/pilyon3/netdisco/internal/domain"
	"github.com/pilyon3/netdisco/internal/snapshot"
)

func topoFixture() (*memStore, *domain.Device, *domain.Device) {
	m := newMemStore()

	a := domain.NewDevice("10.0.0.1")
	a.DNS = "deviceA.example.com"
	m.addDevice(a)
	m.addPort(&domain.Port{DeviceIP: a.IP, Name: "Gi1/1"})

	b := domain.NewDevice("10.0.0.2")
	b.DNS = "deviceB.example.com"
	m.addDevice(b)
	m.addPort(&domain.Port{DeviceIP: b.IP, Name: "Gi2/1"})

	return m, a, b
}

func TestApplyManualTopology(t *testing.T) {
	ctx := context.Background()
	store, a, b := topoFixture()
	store.links = []domain.TopologyLink{
		{Device1: "10.0.0.1", Port1: "Gi1/1", Device2: "10.0.0.2", Port2: "Gi2/1"},
	}

	applier := NewApplier(store)
	if err := applier.Apply(ctx, a); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	t.Run("both ports updated symmetrically", func(t *testing.T) {
		pa, _ := store.GetPort(ctx, a.IP, "Gi1/1")
		pb, _ := store.GetPort(ctx, b.IP, "Gi2/1")

		if pa.RemoteIP != b.IP || pa.RemotePort != "Gi2/1" {
			t.Errorf("port A points at %s/%s, want %s/Gi2/1", pa.RemoteIP, pa.RemotePort, b.IP)
		}
		if pb.RemoteIP != a.IP || pb.RemotePort != "Gi1/1" {
			t.Errorf("port B points at %s/%s, want %s/Gi1/1", pb.RemoteIP, pb.RemotePort, a.IP)
		}
		for _, p := range []*domain.Port{pa, pb} {
			if !p.ManualTopo {
				t.Error("expected manual_topo set")
			}
			if !p.IsUplink {
				t.Error("expected is_uplink set")
			}
			if p.RemoteType != "" || p.RemoteID != "" {
				t.Error("expected protocol identity cleared on manual link")
			}
		}
	})

	t.Run("resolver leaves manual port untouched", func(t *testing.T) {
		r := newTestResolver(store)
		peers, err := r.Resolve(ctx, a, snapWith(map[string]snapshot.Neighbor{
			"1": {Addr: snapshot.OneAddr("10.9.9.9"), Port: "xe-0/0/0", ID: "intruder"},
		}))
		if err != nil {
			t.Fatal(err)
		}
		if len(peers) != 0 {
			t.Errorf("expected no peers through manual port, got %d", len(peers))
		}
		pa, _ := store.GetPort(ctx, a.IP, "Gi1/1")
		if pa.RemoteIP != b.IP || !pa.ManualTopo {
			t.Error("resolver overwrote a manual port")
		}
	})

	t.Run("second application is idempotent", func(t *testing.T) {
		if err := applier.Apply(ctx, a); err != nil {
			t.Fatalf("second Apply failed: %v", err)
		}
		pa, _ := store.GetPort(ctx, a.IP, "Gi1/1")
		if pa.RemoteIP != b.IP || pa.RemotePort != "Gi2/1" || !pa.ManualTopo || !pa.IsUplink {
			t.Errorf("second application changed values: %+v", pa)
		}
	})
}

func TestApplySkipsUnknownDevices(t *testing.T) {
	ctx := context.Background()
	store, a, b := topoFixture()
	store.links = []domain.TopologyLink{
		{Device1: "10.0.0.1", Port1: "Gi1/1", Device2: "10.99.99.99", Port2: "Gi5/5"},
		{Device1: "deviceA.example.com", Port1: "Gi1/1", Device2: "deviceB.example.com", Port2: "Gi2/1"},
	}

	applier := NewApplier(store)
	if err := applier.Apply(ctx, a); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	// The broken link is skipped; the name-addressed link still lands.
	pa, _ := store.GetPort(ctx, a.IP, "Gi1/1")
	if pa.RemoteIP != b.IP || !pa.ManualTopo {
		t.Errorf("expected link via device names applied, got %+v", pa)
	}
}

func TestApplyClearsStaleFlags(t *testing.T) {
	ctx := context.Background()
	store, a, _ := topoFixture()

	// A previously manual port whose link was removed from the store.
	stale, _ := store.GetPort(ctx, a.IP, "Gi1/1")
	stale.ManualTopo = true
	stale.RemoteIP = "10.0.0.2"

	applier := NewApplier(store)
	if err := applier.Apply(ctx, a); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	pa, _ := store.GetPort(ctx, a.IP, "Gi1/1")
	if pa.ManualTopo {
		t.Error("expected stale manual flag cleared when no link configured")
	}
}
