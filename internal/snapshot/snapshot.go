// Package snapshot defines the contract between discovery and the
// transport layer. A Reader fetches a device's raw interface and
// neighbor tables in one pass; discovery then works entirely from the
// in-memory Snapshot and never touches the network itself.
package snapshot

import (
	"context"

	"github.com/pilyon3/netdisco/internal/domain"
)

// RemoteAddr is the remote-address field of a raw neighbor entry.
// Devices normally report a single address per local port, but some
// agents violate that and report several; the variant makes the two
// cases explicit so callers never guess from a runtime type.
type RemoteAddr struct {
	addrs []string
}

// NoAddr is the absent remote address.
var NoAddr = RemoteAddr{}

// OneAddr builds a single-valued remote address. An empty string yields
// the absent value.
func OneAddr(addr string) RemoteAddr {
	if addr == "" {
		return RemoteAddr{}
	}
	return RemoteAddr{addrs: []string{addr}}
}

// ManyAddr builds a remote address from a raw list, dropping empty
// elements. Zero survivors yield the absent value.
func ManyAddr(addrs []string) RemoteAddr {
	var kept []string
	for _, a := range addrs {
		if a != "" {
			kept = append(kept, a)
		}
	}
	return RemoteAddr{addrs: kept}
}

// IsNone reports whether no address was reported.
func (r RemoteAddr) IsNone() bool { return len(r.addrs) == 0 }

// IsMultiple reports whether more than one address was reported on the
// same local port.
func (r RemoteAddr) IsMultiple() bool { return len(r.addrs) > 1 }

// Single returns the address when exactly one was reported.
func (r RemoteAddr) Single() (string, bool) {
	if len(r.addrs) == 1 {
		return r.addrs[0], true
	}
	return "", false
}

// All returns every reported address.
func (r RemoteAddr) All() []string { return r.addrs }

// Neighbor is one raw neighbor-table entry, keyed in the Snapshot by
// the reporting device's local interface identifier.
type Neighbor struct {
	Addr     RemoteAddr // remote management address as reported
	Port     string     // remote port identifier as reported
	Platform string     // remote platform description
	ID       string     // remote device's self-reported identity
}

// Iface is one row of the interface table.
type Iface struct {
	Name       string
	Up         string // operational state
	AdminUp    string // administrative state
	Type       string
	Speed      int64
	MTU        int
	Descr      string
	LastChange int64 // raw ifLastChange in timeticks

	// SlaveOf names the aggregate port this interface is a member of.
	SlaveOf string
}

// Snapshot holds the raw tables fetched from one device.
type Snapshot struct {
	// Interfaces maps local interface identifiers to interface rows.
	Interfaces map[string]Iface

	// Neighbors holds the IPv4-side neighbor table keyed by local
	// interface identifier.
	Neighbors map[string]Neighbor

	// NeighborAddrsV6 holds the IPv6 variant of the remote-address
	// table, keyed the same way. Entries here override the IPv4
	// address for the same key during the merge.
	NeighborAddrsV6 map[string]RemoteAddr

	// HasNeighborProtocol reports whether any neighbor protocol
	// (CDP/LLDP/FDP/...) is enabled on the device.
	HasNeighborProtocol bool

	// Uptime is the raw sysUpTime reading in timeticks.
	Uptime uint32

	DNS    string
	Name   string
	Vendor string
	Model  string
	OS     string
	Serial string

	// MAC is the device's base MAC address in colon form. Neighbor
	// identity strings sometimes carry only a MAC, so this is what
	// identity recovery matches against.
	MAC string
}

// MergedNeighbors combines the IPv4 and IPv6 neighbor tables into one
// map keyed by local interface identifier. An entry present on both
// sides resolves in favor of the IPv6 address; an IPv6 entry with no
// defined value is dropped rather than shadowing a valid IPv4 address.
func (s *Snapshot) MergedNeighbors() map[string]Neighbor {
	merged := make(map[string]Neighbor, len(s.Neighbors))
	for key, n := range s.Neighbors {
		merged[key] = n
	}
	for key, addr := range s.NeighborAddrsV6 {
		if addr.IsNone() {
			continue
		}
		n := merged[key]
		n.Addr = addr
		merged[key] = n
	}
	return merged
}

// Reader fetches raw device tables over some transport. A failure here
// is the one fatal condition for a discovery pass: the caller reports
// it as a deferred retry rather than resolving anything.
type Reader interface {
	// Driver names the transport this reader speaks ("snmp", "cli").
	Driver() string

	// Read fetches the device's raw tables in one pass.
	Read(ctx context.Context, device *domain.Device) (*Snapshot, error)
}
