package discover

import (
	"context"
	"testing"

	"github.com/pilyon3/netdisco/internal/config"
	"github.com/pilyon3/netdisco/internal/domain"
	"github.com/pilyon3/netdisco/internal/snapshot"
)

func resolverFixture() (*memStore, *domain.Device) {
	m := newMemStore()
	dev := domain.NewDevice("10.0.0.10")
	dev.DNS = "switchA.example.com"
	m.addDevice(dev)
	m.addPort(&domain.Port{DeviceIP: dev.IP, Name: "Gi1/1"})
	return m, dev
}

func newTestResolver(store Store) *Resolver {
	return NewResolver(store, config.DiscoverConfig{
		LocalNets: []string{"169.254.0.0/16", "fe80::/10"},
	})
}

func snapWith(neighbors map[string]snapshot.Neighbor) *snapshot.Snapshot {
	return &snapshot.Snapshot{
		HasNeighborProtocol: true,
		Interfaces: map[string]snapshot.Iface{
			"1": {Name: "Gi1/1"},
		},
		Neighbors: neighbors,
	}
}

func TestResolveBasicNeighbor(t *testing.T) {
	store, dev := resolverFixture()
	r := newTestResolver(store)

	peers, err := r.Resolve(context.Background(), dev, snapWith(map[string]snapshot.Neighbor{
		"1": {
			Addr:     snapshot.OneAddr("10.0.0.5"),
			Port:     "Gi2/1",
			Platform: "cisco WS-C3850",
			ID:       "switchB",
		},
	}))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if len(peers) != 1 {
		t.Fatalf("expected 1 peer, got %d", len(peers))
	}
	p := peers[0]
	if p.IP != "10.0.0.5" || p.ID != "switchB" || p.Platform != "cisco WS-C3850" {
		t.Errorf("unexpected peer %+v", p)
	}

	port, _ := store.GetPort(context.Background(), dev.IP, "Gi1/1")
	if port.RemoteIP != "10.0.0.5" {
		t.Errorf("expected remote_ip 10.0.0.5, got %s", port.RemoteIP)
	}
	if port.RemotePort != "Gi2/1" {
		t.Errorf("expected remote_port Gi2/1, got %s", port.RemotePort)
	}
	if !port.IsUplink {
		t.Error("expected is_uplink set")
	}
	if port.ManualTopo {
		t.Error("expected manual_topo unset")
	}
}

func TestResolveSkipsManualPorts(t *testing.T) {
	store, dev := resolverFixture()
	port, _ := store.GetPort(context.Background(), dev.IP, "Gi1/1")
	port.ManualTopo = true
	port.RemoteIP = "10.9.9.9"
	port.RemotePort = "xe-0/0/0"

	r := newTestResolver(store)
	peers, err := r.Resolve(context.Background(), dev, snapWith(map[string]snapshot.Neighbor{
		"1": {Addr: snapshot.OneAddr("10.0.0.5"), Port: "Gi2/1", ID: "switchB"},
	}))
	if err != nil {
		t.Fatal(err)
	}

	if len(peers) != 0 {
		t.Errorf("expected no peers from manual port, got %d", len(peers))
	}
	if port.RemoteIP != "10.9.9.9" || port.RemotePort != "xe-0/0/0" || !port.ManualTopo {
		t.Error("manual port was modified by resolver")
	}
}

func TestResolveUnusableAddress(t *testing.T) {
	t.Run("unspecified address without identity is skipped", func(t *testing.T) {
		store, dev := resolverFixture()
		r := newTestResolver(store)

		peers, err := r.Resolve(context.Background(), dev, snapWith(map[string]snapshot.Neighbor{
			"1": {Addr: snapshot.OneAddr("0.0.0.0"), Port: "Gi2/1"},
		}))
		if err != nil {
			t.Fatal(err)
		}
		if len(peers) != 0 {
			t.Errorf("expected no peers, got %d", len(peers))
		}
		port, _ := store.GetPort(context.Background(), dev.IP, "Gi1/1")
		if port.HasNeighbor() {
			t.Error("expected no port update for unusable entry")
		}
	})

	t.Run("identity recovery substitutes canonical IP", func(t *testing.T) {
		store, dev := resolverFixture()
		known := domain.NewDevice("10.0.0.7")
		known.DNS = "switchB.example.com"
		store.addDevice(known)

		r := newTestResolver(store)
		peers, err := r.Resolve(context.Background(), dev, snapWith(map[string]snapshot.Neighbor{
			"1": {Addr: snapshot.OneAddr("0.0.0.0"), Port: "Gi2/1", ID: "switchB.example.com"},
		}))
		if err != nil {
			t.Fatal(err)
		}
		if len(peers) != 1 || peers[0].IP != "10.0.0.7" {
			t.Fatalf("expected recovery to 10.0.0.7, got %+v", peers)
		}
		port, _ := store.GetPort(context.Background(), dev.IP, "Gi1/1")
		if port.RemoteIP != "10.0.0.7" {
			t.Errorf("expected remote_ip 10.0.0.7, got %s", port.RemoteIP)
		}
	})

	t.Run("link-local address falls back to identity", func(t *testing.T) {
		store, dev := resolverFixture()
		known := domain.NewDevice("10.0.0.7")
		known.DNS = "switchB.example.com"
		store.addDevice(known)

		r := newTestResolver(store)
		peers, err := r.Resolve(context.Background(), dev, snapWith(map[string]snapshot.Neighbor{
			"1": {Addr: snapshot.OneAddr("169.254.1.1"), Port: "Gi2/1", ID: "switchB.example.com"},
		}))
		if err != nil {
			t.Fatal(err)
		}
		if len(peers) != 1 || peers[0].IP != "10.0.0.7" {
			t.Fatalf("expected recovery to 10.0.0.7, got %+v", peers)
		}
	})
}

func TestResolveMultiNeighborEntry(t *testing.T) {
	store, dev := resolverFixture()
	r := newTestResolver(store)

	peers, err := r.Resolve(context.Background(), dev, snapWith(map[string]snapshot.Neighbor{
		"1": {
			Addr: snapshot.ManyAddr([]string{"10.0.0.5", "10.0.0.6"}),
			Port: "Gi2/1",
			ID:   "hub-of-many",
		},
	}))
	if err != nil {
		t.Fatal(err)
	}
	if len(peers) != 0 {
		t.Errorf("expected multi-neighbor entry skipped, got %d peers", len(peers))
	}
}

func TestInterfaceIDRepair(t *testing.T) {
	store, dev := resolverFixture()
	r := newTestResolver(store)

	snap := &snapshot.Snapshot{
		HasNeighborProtocol: true,
		Interfaces: map[string]snapshot.Iface{
			"5.31": {Name: "Gi1/1"},
		},
		Neighbors: map[string]snapshot.Neighbor{
			// mangled composite key with leading "0." marker
			"0.31": {Addr: snapshot.OneAddr("10.0.0.5"), Port: "Gi2/1", ID: "switchB"},
		},
	}

	peers, err := r.Resolve(context.Background(), dev, snap)
	if err != nil {
		t.Fatal(err)
	}
	if len(peers) != 1 {
		t.Fatalf("expected repaired entry to resolve, got %d peers", len(peers))
	}
	port, _ := store.GetPort(context.Background(), dev.IP, "Gi1/1")
	if port.RemoteIP != "10.0.0.5" {
		t.Errorf("expected remote_ip 10.0.0.5, got %s", port.RemoteIP)
	}
}

func TestRemotePortCleanup(t *testing.T) {
	store, dev := resolverFixture()
	r := newTestResolver(store)

	_, err := r.Resolve(context.Background(), dev, snapWith(map[string]snapshot.Neighbor{
		"1": {Addr: snapshot.OneAddr("10.0.0.5"), Port: "Gi2/1\x00\x07", ID: "switchB"},
	}))
	if err != nil {
		t.Fatal(err)
	}

	port, _ := store.GetPort(context.Background(), dev.IP, "Gi1/1")
	if port.RemotePort != "Gi2/1" {
		t.Errorf("expected sanitized remote port Gi2/1, got %q", port.RemotePort)
	}
}

func TestAddressNormalization(t *testing.T) {
	store, dev := resolverFixture()
	r := newTestResolver(store)

	peers, err := r.Resolve(context.Background(), dev, snapWith(map[string]snapshot.Neighbor{
		"1": {Addr: snapshot.OneAddr("2001:DB8:0:0:0:0:0:1"), Port: "xe-0/0/0", ID: "switchB"},
	}))
	if err != nil {
		t.Fatal(err)
	}
	if len(peers) != 1 {
		t.Fatalf("expected 1 peer, got %d", len(peers))
	}
	if peers[0].IP != "2001:db8::1" {
		t.Errorf("expected canonical form 2001:db8::1, got %s", peers[0].IP)
	}
}

func TestNoNeighborCapability(t *testing.T) {
	store, dev := resolverFixture()
	r := newTestResolver(store)

	peers, err := r.Resolve(context.Background(), dev, &snapshot.Snapshot{
		HasNeighborProtocol: false,
		Interfaces:          map[string]snapshot.Iface{"1": {Name: "Gi1/1"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(peers) != 0 {
		t.Errorf("expected empty result without neighbor capability, got %d", len(peers))
	}
}

func TestAggregatePropagation(t *testing.T) {
	store := newMemStore()
	local := store.addDevice(domain.NewDevice("10.0.0.10"))
	remote := domain.NewDevice("10.0.0.5")
	store.addDevice(remote)

	// Local member port in aggregate Po1; remote member in Po2.
	store.addPort(&domain.Port{DeviceIP: local.IP, Name: "Gi1/1", SlaveOf: "Po1"})
	store.addPort(&domain.Port{DeviceIP: local.IP, Name: "Po1"})
	store.addPort(&domain.Port{DeviceIP: remote.IP, Name: "Gi2/1", SlaveOf: "Po2"})
	store.addPort(&domain.Port{DeviceIP: remote.IP, Name: "Po2"})

	r := newTestResolver(store)
	peers, err := r.Resolve(context.Background(), local, snapWith(map[string]snapshot.Neighbor{
		"1": {Addr: snapshot.OneAddr("10.0.0.5"), Port: "Gi2/1", ID: "switchB"},
	}))
	if err != nil {
		t.Fatal(err)
	}
	if len(peers) != 1 {
		t.Fatalf("expected 1 peer, got %d", len(peers))
	}

	master, _ := store.GetPort(context.Background(), local.IP, "Po1")
	if master.RemoteIP != "10.0.0.5" {
		t.Errorf("expected master remote_ip 10.0.0.5, got %s", master.RemoteIP)
	}
	if master.RemotePort != "Po2" {
		t.Errorf("expected master remote_port Po2 (remote master), got %s", master.RemotePort)
	}
	if !master.IsMaster || !master.IsUplink {
		t.Error("expected master flagged is_master and is_uplink")
	}
	if master.ManualTopo {
		t.Error("expected master manual_topo unset")
	}

	t.Run("no propagation without remote aggregate", func(t *testing.T) {
		store := newMemStore()
		local := store.addDevice(domain.NewDevice("10.0.0.10"))
		store.addDevice(domain.NewDevice("10.0.0.5"))
		store.addPort(&domain.Port{DeviceIP: local.IP, Name: "Gi1/1", SlaveOf: "Po1"})
		store.addPort(&domain.Port{DeviceIP: local.IP, Name: "Po1"})
		store.addPort(&domain.Port{DeviceIP: "10.0.0.5", Name: "Gi2/1"}) // standalone

		r := newTestResolver(store)
		if _, err := r.Resolve(context.Background(), local, snapWith(map[string]snapshot.Neighbor{
			"1": {Addr: snapshot.OneAddr("10.0.0.5"), Port: "Gi2/1", ID: "switchB"},
		})); err != nil {
			t.Fatal(err)
		}

		master, _ := store.GetPort(context.Background(), local.IP, "Po1")
		if master.HasNeighbor() {
			t.Error("expected no aggregate propagation for standalone remote port")
		}
	})
}
