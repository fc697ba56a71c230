package clireader

import (
	"bufio"
	"strings"

	"github.com/pilyon3/netdisco/internal/snapshot"
)

// parseNeighborDetail turns LLDP neighbor-detail output into a raw
// snapshot. Each record names its local interface, so the interface
// table is keyed directly by interface name rather than a numeric
// index; neighbor resolution tolerates either form.
func parseNeighborDetail(out string) *snapshot.Snapshot {
	snap := &snapshot.Snapshot{
		Interfaces:      make(map[string]snapshot.Iface),
		Neighbors:       make(map[string]snapshot.Neighbor),
		NeighborAddrsV6: make(map[string]snapshot.RemoteAddr),
	}

	var local string
	var inDescr bool
	var descr []string

	flushDescr := func() {
		if local == "" || len(descr) == 0 {
			return
		}
		n := snap.Neighbors[local]
		n.Platform = strings.TrimSpace(strings.Join(descr, " "))
		snap.Neighbors[local] = n
		descr = nil
	}

	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "---") || trimmed == "" {
			if inDescr && trimmed == "" {
				flushDescr()
				inDescr = false
			}
			continue
		}

		if inDescr {
			descr = append(descr, trimmed)
			continue
		}

		key, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "local intf", "local interface", "local port id":
			local = value
			if _, exists := snap.Interfaces[local]; !exists {
				snap.Interfaces[local] = snapshot.Iface{Name: local}
			}
		case "system name":
			if local != "" {
				n := snap.Neighbors[local]
				n.ID = value
				snap.Neighbors[local] = n
			}
		case "port id":
			if local != "" {
				n := snap.Neighbors[local]
				n.Port = value
				snap.Neighbors[local] = n
			}
		case "system description":
			inDescr = true
			if value != "" {
				descr = append(descr, value)
			}
		case "ip", "management address":
			if local != "" {
				n := snap.Neighbors[local]
				n.Addr = appendAddr(n.Addr, value)
				snap.Neighbors[local] = n
			}
		case "ipv6":
			if local != "" {
				snap.NeighborAddrsV6[local] = appendAddr(snap.NeighborAddrsV6[local], value)
			}
		}
	}
	flushDescr()

	snap.HasNeighborProtocol = len(snap.Neighbors) > 0
	return snap
}

func appendAddr(existing snapshot.RemoteAddr, addr string) snapshot.RemoteAddr {
	if existing.IsNone() {
		return snapshot.OneAddr(addr)
	}
	return snapshot.ManyAddr(append(existing.All(), addr))
}
