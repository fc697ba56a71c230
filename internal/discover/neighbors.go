package discover

import (
	"context"
	"log"
	"net/netip"
	"regexp"
	"sort"
	"strings"

	"github.com/pilyon3/netdisco/internal/config"
	"github.com/pilyon3/netdisco/internal/domain"
	"github.com/pilyon3/netdisco/internal/repository"
	"github.com/pilyon3/netdisco/internal/snapshot"
)

// Peer is one resolved remote endpoint, handed to the queue gate. The
// resolver reports every resolved entry; the gate decides what gets
// queued.
type Peer struct {
	IP       string
	Platform string
	ID       string
}

// Resolver turns a device's raw neighbor tables into authoritative
// per-port neighbor records.
type Resolver struct {
	store      Store
	cfg        config.DiscoverConfig
	strategies []IdentityStrategy
	localNets  []netip.Prefix
}

// NewResolver builds a resolver with the default identity-recovery
// chain.
func NewResolver(store Store, cfg config.DiscoverConfig) *Resolver {
	var nets []netip.Prefix
	for _, raw := range cfg.LocalNets {
		p, err := netip.ParsePrefix(raw)
		if err != nil {
			log.Printf("Ignoring bad local_nets entry %q: %v", raw, err)
			continue
		}
		nets = append(nets, p)
	}
	return &Resolver{
		store:      store,
		cfg:        cfg,
		strategies: defaultIdentityStrategies(),
		localNets:  nets,
	}
}

// portCleanRe strips characters that never appear in legitimate port
// names.
var portCleanRe = regexp.MustCompile(`[^0-9A-Za-z/.,()_:\- ]+`)

// Resolve walks the device's merged neighbor table and writes resolved
// neighbor state to the local port rows. Every malformed entry is
// skipped and logged on its own; nothing here aborts the pass.
func (r *Resolver) Resolve(ctx context.Context, device *domain.Device, snap *snapshot.Snapshot) ([]Peer, error) {
	merged := snap.MergedNeighbors()

	if !snap.HasNeighborProtocol && len(merged) == 0 {
		log.Printf("Device %s has no neighbor protocol enabled", device.IP)
		return nil, nil
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var peers []Peer
	for _, entry := range keys {
		if err := ctx.Err(); err != nil {
			return peers, err
		}
		if peer, ok := r.resolveEntry(ctx, device, snap, entry, merged[entry]); ok {
			peers = append(peers, peer)
		}
	}
	return peers, nil
}

func (r *Resolver) resolveEntry(ctx context.Context, device *domain.Device, snap *snapshot.Snapshot, entry string, n snapshot.Neighbor) (Peer, bool) {
	iid, ok := r.repairInterfaceID(snap, entry)
	if !ok {
		log.Printf("Device %s: neighbor entry %s has no interface mapping, skipped", device.IP, entry)
		return Peer{}, false
	}

	portName := snap.Interfaces[iid].Name
	if portName == "" {
		log.Printf("Device %s: interface %s has no port name, skipped", device.IP, iid)
		return Peer{}, false
	}

	port, err := r.store.GetPort(ctx, device.IP, portName)
	if err != nil {
		log.Printf("Device %s: port %s lookup failed: %v", device.IP, portName, err)
		return Peer{}, false
	}
	if port == nil {
		log.Printf("Device %s: port %s not in storage, skipped", device.IP, portName)
		return Peer{}, false
	}
	if port.ManualTopo {
		log.Printf("Device %s: port %s has manual topology, skipped", device.IP, portName)
		return Peer{}, false
	}

	if n.Addr.IsMultiple() {
		log.Printf("Device %s: port %s reports %d neighbors on one port, skipped",
			device.IP, portName, len(n.Addr.All()))
		return Peer{}, false
	}

	remoteIP, ok := r.resolveRemoteAddr(ctx, device, portName, n)
	if !ok {
		return Peer{}, false
	}

	remotePort := portCleanRe.ReplaceAllString(n.Port, "")
	if remotePort == "" {
		log.Printf("Device %s: port %s neighbor %s reports no remote port", device.IP, portName, remoteIP)
	}

	updated, err := r.store.SetPortNeighbor(ctx, device.IP, portName, repository.PortNeighbor{
		RemoteIP:   remoteIP,
		RemotePort: remotePort,
		RemoteType: n.Platform,
		RemoteID:   n.ID,
		IsUplink:   true,
	})
	if err != nil {
		log.Printf("Device %s: port %s neighbor update failed: %v", device.IP, portName, err)
		return Peer{}, false
	}
	if !updated {
		log.Printf("Device %s: port %s became manual during resolution, skipped", device.IP, portName)
		return Peer{}, false
	}

	r.propagateAggregate(ctx, device, port, remoteIP, remotePort)

	return Peer{IP: remoteIP, Platform: n.Platform, ID: n.ID}, true
}

// repairInterfaceID maps a neighbor-table key to a usable interface
// identifier. Some agents mangle the key into a composite with a
// leading "0." marker; in that case the true identifier is found by
// suffix match against the interface table.
func (r *Resolver) repairInterfaceID(snap *snapshot.Snapshot, entry string) (string, bool) {
	if _, ok := snap.Interfaces[entry]; ok {
		return entry, true
	}
	if !strings.HasPrefix(entry, "0.") {
		return "", false
	}

	suffix := strings.TrimPrefix(entry, "0.")
	var candidates []string
	for iid := range snap.Interfaces {
		if iid == suffix || strings.HasSuffix(iid, "."+suffix) {
			candidates = append(candidates, iid)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Strings(candidates)
	log.Printf("Repaired mangled neighbor key %s to interface %s", entry, candidates[0])
	return candidates[0], true
}

// resolveRemoteAddr validates the reported remote address, falling
// back to identity-based recovery when the address cannot be trusted,
// and normalizes the survivor to canonical textual form.
func (r *Resolver) resolveRemoteAddr(ctx context.Context, device *domain.Device, portName string, n snapshot.Neighbor) (string, bool) {
	raw, has := n.Addr.Single()

	if !has || r.untrusted(raw) {
		if n.ID == "" {
			log.Printf("Device %s: port %s has unusable address %q and no identity, skipped",
				device.IP, portName, raw)
			return "", false
		}
		ip, strategy, ok := recoverIdentity(ctx, n.ID, r.store, r.strategies)
		if !ok {
			log.Printf("Device %s: port %s identity %q matched no known device, skipped",
				device.IP, portName, n.ID)
			return "", false
		}
		log.Printf("Device %s: port %s address %q recovered to %s via %s",
			device.IP, portName, raw, ip, strategy)
		return ip, true
	}

	addr, err := netip.ParseAddr(raw)
	if err != nil {
		log.Printf("Device %s: port %s has unparseable address %q, skipped",
			device.IP, portName, raw)
		return "", false
	}
	if canonical := addr.String(); canonical != raw {
		log.Printf("Device %s: port %s address %q normalized to %s",
			device.IP, portName, raw, canonical)
		return canonical, true
	}
	return raw, true
}

// untrusted reports whether a raw address cannot identify a remote
// device: unspecified, loopback, unparseable, or inside a configured
// local-address range.
func (r *Resolver) untrusted(raw string) bool {
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		// Give identity recovery a chance before rejecting.
		return true
	}
	if addr.IsUnspecified() || addr.IsLoopback() {
		return true
	}
	for _, p := range r.localNets {
		if p.Contains(addr.Unmap()) {
			return true
		}
	}
	return false
}

// propagateAggregate reconstructs LAG-to-LAG adjacency. When the local
// port is a member of an aggregate and the just-resolved remote port
// is too, the local master port is pointed at the remote master.
func (r *Resolver) propagateAggregate(ctx context.Context, device *domain.Device, port *domain.Port, remoteIP, remotePort string) {
	if port.SlaveOf == "" {
		return
	}

	master, err := r.store.GetPort(ctx, device.IP, port.SlaveOf)
	if err != nil || master == nil {
		log.Printf("Device %s: aggregate %s for port %s not in storage", device.IP, port.SlaveOf, port.Name)
		return
	}
	// Already known as an aggregate, or itself a member of one.
	if master.IsMaster || master.SlaveOf != "" {
		return
	}

	remoteDev, err := r.store.GetDevice(ctx, remoteIP)
	if err != nil || remoteDev == nil {
		return
	}
	remote, err := r.store.GetPort(ctx, remoteDev.IP, remotePort)
	if err != nil || remote == nil || remote.SlaveOf == "" {
		return
	}

	updated, err := r.store.SetPortNeighbor(ctx, device.IP, master.Name, repository.PortNeighbor{
		RemoteIP:   remoteIP,
		RemotePort: remote.SlaveOf,
		IsUplink:   true,
		IsMaster:   true,
	})
	if err != nil {
		log.Printf("Device %s: aggregate %s update failed: %v", device.IP, master.Name, err)
		return
	}
	if updated {
		log.Printf("Device %s: aggregate %s linked to %s/%s",
			device.IP, master.Name, remoteIP, remote.SlaveOf)
	}
}
