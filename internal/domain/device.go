package domain

import "time"

// Device represents a managed network device, keyed by its canonical IP.
// The canonical (root) IP is the single address chosen to identify the
// device among all addresses it answers on.
type Device struct {
	IP           string     `json:"ip"`
	DNS          string     `json:"dns,omitempty"`
	Name         string     `json:"name,omitempty"`
	Vendor       string     `json:"vendor,omitempty"`
	Model        string     `json:"model,omitempty"`
	OS           string     `json:"os,omitempty"`
	OSVersion    string     `json:"os_version,omitempty"`
	Serial       string     `json:"serial,omitempty"`
	Location     string     `json:"location,omitempty"`
	Contact      string     `json:"contact,omitempty"`
	Layers       string     `json:"layers,omitempty"`
	MAC          string     `json:"mac,omitempty"`

	// Uptime is the last raw sysUpTime reading in timeticks. The counter
	// is 32 bits on the wire and wraps after ~497 days.
	Uptime uint32 `json:"uptime"`

	LastDiscover *time.Time `json:"last_discover,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewDevice creates a device record for the given canonical IP.
func NewDevice(ip string) *Device {
	now := time.Now()
	return &Device{
		IP:        ip,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ShortName returns the device name truncated at the first dot, lowercased.
// Neighbor protocols frequently report only the short form of a hostname.
func (d *Device) ShortName() string {
	name := d.DNS
	if name == "" {
		name = d.Name
	}
	return ShortName(name)
}
