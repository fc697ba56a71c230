package domain

import "strings"

// Port represents a single interface on a device, keyed by (device IP,
// port name).
type Port struct {
	DeviceIP string `json:"device_ip"`
	Name     string `json:"name"`

	Up      string `json:"up,omitempty"`       // operational state
	AdminUp string `json:"admin_up,omitempty"` // administrative state
	Type    string `json:"type,omitempty"`
	Speed   int64  `json:"speed,omitempty"` // bits per second
	MTU     int    `json:"mtu,omitempty"`
	Vlan    string `json:"vlan,omitempty"` // native/untagged VLAN
	Descr   string `json:"descr,omitempty"`

	// LastChange is the interface's ifLastChange reading in timeticks,
	// corrected for sysUpTime counter wrap where detected.
	LastChange int64 `json:"last_change,omitempty"`

	// Neighbor fields. RemoteIP/RemotePort identify the far end of the
	// link; RemoteType carries the reported platform string and RemoteID
	// the remote device's self-reported identity, kept for job
	// de-duplication.
	RemoteIP   string `json:"remote_ip,omitempty"`
	RemotePort string `json:"remote_port,omitempty"`
	RemoteType string `json:"remote_type,omitempty"`
	RemoteID   string `json:"remote_id,omitempty"`

	IsUplink bool `json:"is_uplink"`
	IsMaster bool `json:"is_master"` // true if this port aggregates others

	// ManualTopo marks the neighbor fields as operator-declared. While
	// set, discovery must never overwrite them.
	ManualTopo bool `json:"manual_topo"`

	// SlaveOf names the aggregate (master) port this port is a member
	// of, or is empty for standalone ports.
	SlaveOf string `json:"slave_of,omitempty"`
}

// HasNeighbor reports whether any neighbor information is recorded.
func (p *Port) HasNeighbor() bool {
	return p.RemoteIP != "" || p.RemotePort != ""
}

// ShortName lowercases a hostname and truncates it at the first dot.
func ShortName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	return name
}
