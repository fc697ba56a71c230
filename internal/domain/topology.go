package domain

// TopologyLink is a manually configured link between two device ports.
// The link is undirected: (device1, port1) ↔ (device2, port2).
type TopologyLink struct {
	Device1 string `json:"device1"`
	Port1   string `json:"port1"`
	Device2 string `json:"device2"`
	Port2   string `json:"port2"`
}

// Touches reports whether either endpoint of the link belongs to the
// given device identifier (canonical IP or DNS name, as stored).
func (l TopologyLink) Touches(device string) bool {
	return l.Device1 == device || l.Device2 == device
}
